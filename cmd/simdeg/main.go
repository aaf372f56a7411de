// Command simdeg runs the worker similarity tracker.
//
// Usage:
//
//	simdeg scenario convergence --populations 10,29
//	simdeg serve --config simdeg.yaml --nats nats://127.0.0.1:4222
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lccanon/simdeg/internal/logging"
)

var (
	logLevel string

	rootCmd = &cobra.Command{
		Use:           "simdeg",
		Short:         "Estimate agreement and collusion groups among volunteer computing workers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newScenarioCmd())
	rootCmd.AddCommand(newServeCmd())
}

func newLogger() (*logging.SlogLogger, error) {
	return logging.NewText(os.Stderr, logLevel)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "simdeg:", err)
		os.Exit(1)
	}
}
