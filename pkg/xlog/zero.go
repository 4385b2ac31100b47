package xlog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var Zero = NewZeroLogger(os.Stdout, "info", false)

var (
	logFileMu sync.Mutex
	// logFile backs Zero when it writes to a file, nil for stdout.
	logFile *os.File
)

// NewZeroLogger builds a JSON logger writing to w. Pretty switches to a
// human readable console writer.
func NewZeroLogger(w io.Writer, logLevel string, pretty bool) *zerolog.Logger {
	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(w)
	}
	logger = logger.With().Timestamp().Logger().Level(parseLevel(logLevel))

	return &logger
}

// ReloadLogger replaces the global logger with one writing to filepath, or
// to stdout when filepath is empty, and closes the file of the previous
// one. When filepath cannot be opened the current logger stays in place.
func ReloadLogger(filepath string, logLevel string, pretty bool) error {
	f, writer, err := newWriter(filepath)
	if err != nil {
		return errors.Wrapf(err, "open log file %q", filepath)
	}

	logFileMu.Lock()
	defer logFileMu.Unlock()

	prev := logFile
	Zero = NewZeroLogger(writer, logLevel, pretty)
	logFile = f
	if prev != nil && prev != f {
		if err := prev.Close(); err != nil {
			Zero.Warn().Err(err).Str("file", prev.Name()).Msg("failed to close previous log file")
		}
	}
	return nil
}

func UpdateZeroLogLevel(logLevel string) error {
	level := parseLevel(logLevel)
	zeroLogger := Zero.With().Logger().Level(level)
	Zero = &zeroLogger
	return nil
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warning", "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
