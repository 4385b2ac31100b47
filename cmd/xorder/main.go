package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pg-sharding/xorder/pkg"
	"github.com/pg-sharding/xorder/pkg/config"
	"github.com/pg-sharding/xorder/pkg/xlog"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "xorder run --config `path-to-config` --dataset `path-to-dataset` --order-by `keys`",
	Short: "xorder",
	Long:  "xorder merges ORDER BY results of a partitioned store and pages through them with continuation tokens",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgStr, err := config.LoadEngineCfg(cfgPath)
		if err != nil {
			return err
		}
		cfg := config.EngineConfig()
		if err := xlog.ReloadLogger(cfg.LogFileName, cfg.LogLevel, cfg.PrettyLogging); err != nil {
			return err
		}
		if logLevel != "" {
			if err := xlog.UpdateZeroLogLevel(logLevel); err != nil {
				return err
			}
		}
		xlog.Zero.Debug().Msg("Running config: " + cfgStr)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "xorder %s\n", pkg.XorderVersionRevision)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override the configured log level")
	rootCmd.AddCommand(runCmd, decodeCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		xlog.Zero.Fatal().Err(err).Msg("")
	}
}
