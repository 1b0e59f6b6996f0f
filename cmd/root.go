package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resolution-cli/internal/config"
)

var (
	cfg *config.Config

	cfgFile     string
	logLevel    string
	accessCode  string
	storeDriver string
)

var rootCmd = &cobra.Command{
	Use:   "resolution-cli",
	Short: "Prediction market resolution client",
	Long: "Drives the oracle gateway through prompt, collect, audit, judge and bundle, records run history " +
		"and compares oracle outcomes with official results.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.LoadFile(cfgFile)
		if err != nil {
			return err
		}
		applyOverrides(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return err
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.CommandPath()),
			zap.String("gateway", cfg.Gateway.URL),
			zap.String("store", cfg.Store.Driver),
		)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn, error")
	pf.StringVar(&accessCode, "access-code", "", "gateway access code (overrides RESOLUTION_GATEWAY_ACCESS_CODE)")
	pf.StringVar(&storeDriver, "store", "", "run history driver override: sqlite, postgres, none")
}

// applyOverrides folds the persistent flags the user set into c.
func applyOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("access-code") {
		c.Gateway.AccessCode = accessCode
	}
	if flags.Changed("store") {
		c.Store.Driver = storeDriver
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zap.L().Debug("command failed", zap.String("error", eris.ToString(err, true)))
		os.Exit(1)
	}
}
