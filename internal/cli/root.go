// Package cli holds the connectsphere commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/connectsphere/internal/config"
	"github.com/rudransh-shrivastava/connectsphere/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           `connectsphere`,
	Long:          `connectsphere sends "thinking of you" messages directly between two peers`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONNECTSPHERE_CONFIG"), "path to a TOML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(peerCmd)
	rootCmd.AddCommand(historyCmd)
}

func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.New(os.Stderr, cfg.LogLevel), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
