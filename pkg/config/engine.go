package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pg-sharding/xorder/pkg/continuation"
	"github.com/pg-sharding/xorder/pkg/models/value"
)

const (
	DefaultMaxDegreeOfParallelism = 4
	DefaultPageSize               = 100
)

var cfgEngine Engine

type Engine struct {
	LogLevel      string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFileName   string `json:"log_filename" toml:"log_filename" yaml:"log_filename"`
	PrettyLogging bool   `json:"pretty_logging" toml:"pretty_logging" yaml:"pretty_logging"`

	MaxDegreeOfParallelism int    `json:"max_degree_of_parallelism" toml:"max_degree_of_parallelism" yaml:"max_degree_of_parallelism"`
	PageSize               int    `json:"page_size" toml:"page_size" yaml:"page_size"`
	TokenFormat            string `json:"token_format" toml:"token_format" yaml:"token_format"`
	DigestFunction         string `json:"digest_function" toml:"digest_function" yaml:"digest_function"`

	FetchMaxRetries uint64        `json:"fetch_max_retries" toml:"fetch_max_retries" yaml:"fetch_max_retries"`
	FetchRetryBase  time.Duration `json:"fetch_retry_base" toml:"fetch_retry_base" yaml:"fetch_retry_base"`
	// SlowFetchThreshold logs fetches slower than it; zero disables.
	SlowFetchThreshold time.Duration `json:"slow_fetch_threshold" toml:"slow_fetch_threshold" yaml:"slow_fetch_threshold"`

	JaegerUrl           string    `json:"jaeger_url" toml:"jaeger_url" yaml:"jaeger_url"`
	StatisticsQuantiles []float64 `json:"statistics_quantiles" toml:"statistics_quantiles" yaml:"statistics_quantiles"`
}

// DefaultEngine returns the configuration used when no file is given.
func DefaultEngine() Engine {
	return Engine{
		LogLevel:               "info",
		MaxDegreeOfParallelism: DefaultMaxDegreeOfParallelism,
		PageSize:               DefaultPageSize,
		TokenFormat:            continuation.FormatCurrent.String(),
		DigestFunction:         value.DigestCity.String(),
		FetchRetryBase:         50 * time.Millisecond,
		StatisticsQuantiles:    []float64{0.5, 0.9, 0.99},
	}
}

// Validate checks enum fields and fills zero values with defaults.
func (e *Engine) Validate() error {
	def := DefaultEngine()
	if e.MaxDegreeOfParallelism < 0 {
		return fmt.Errorf("max_degree_of_parallelism must not be negative, got %d", e.MaxDegreeOfParallelism)
	}
	if e.MaxDegreeOfParallelism == 0 {
		e.MaxDegreeOfParallelism = def.MaxDegreeOfParallelism
	}
	if e.PageSize < 0 {
		return fmt.Errorf("page_size must not be negative, got %d", e.PageSize)
	}
	if e.PageSize == 0 {
		e.PageSize = def.PageSize
	}
	if e.LogLevel == "" {
		e.LogLevel = def.LogLevel
	}
	if _, err := e.Format(); err != nil {
		return err
	}
	if _, err := e.Digest(); err != nil {
		return err
	}
	if e.FetchRetryBase <= 0 {
		e.FetchRetryBase = def.FetchRetryBase
	}
	for _, q := range e.StatisticsQuantiles {
		if q <= 0 || q >= 1 {
			return fmt.Errorf("statistics quantile %v is outside (0, 1)", q)
		}
	}
	if len(e.StatisticsQuantiles) == 0 {
		e.StatisticsQuantiles = def.StatisticsQuantiles
	}
	return nil
}

func (e *Engine) Format() (continuation.Format, error) {
	return continuation.FormatByName(e.TokenFormat)
}

func (e *Engine) Digest() (value.DigestFunction, error) {
	return value.DigestFunctionByName(e.DigestFunction)
}

// LoadEngineCfg loads the engine configuration from cfgPath. An empty path
// yields the defaults.
//
// Returns:
//   - string: JSON-formatted config
//   - error: An error if any occurred during the loading process.
func LoadEngineCfg(cfgPath string) (string, error) {
	ecfg := DefaultEngine()
	if cfgPath != "" {
		file, err := os.Open(cfgPath)
		if err != nil {
			return "", err
		}
		defer func(file *os.File) {
			if err := file.Close(); err != nil {
				log.Printf("failed to close config file: %v", err)
			}
		}(file)

		if err := initConfig(file, &ecfg); err != nil {
			return "", err
		}
	}
	if err := ecfg.Validate(); err != nil {
		return "", err
	}

	configBytes, err := json.MarshalIndent(&ecfg, "", "  ")
	if err != nil {
		return "", err
	}
	cfgEngine = ecfg
	return string(configBytes), nil
}

// EngineConfig returns the loaded engine configuration.
func EngineConfig() *Engine {
	return &cfgEngine
}
