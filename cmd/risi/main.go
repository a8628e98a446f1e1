package main

import (
	"fmt"
	log "log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"risi/internal/config"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

var rootCmd = &cobra.Command{
	Use:   "risi",
	Short: "Voice assistant daemon",
	Long: `risi listens on the microphone, transcribes what you say, answers it
directly, through tools or by reasoning about it, and speaks the result.`,
	SilenceUsage: true,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(runCmd, askCmd, devicesCmd, toolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and installs the logger.
func setup(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromFlags(cmd.Flags())
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[cfg.Log],
	})))

	if dir, err := config.Dir(); err == nil {
		if err := config.EnsureDir(dir); err != nil {
			log.Warn("Failed to create config dir", "err", err)
		}
	}
	return cfg, nil
}
