// Package cmd provides the command-line interface for nbmsg.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// newRootCmd builds the base command and all of its subcommands.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "nbmsg",
		Short: "nbmsg runs a non-blocking send and receive between in-process " +
			"endpoints and records what happened.",
		Long: `nbmsg runs a non-blocking send and receive between in-process ` +
			`endpoints, waits for both to complete and reports the ` +
			`completion records. Every call and request can be traced ` +
			`into a SQLite database that the inspect command reads back.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringSlice("env-file", nil,
		"Load settings from these files instead of .env")
	rootCmd.PersistentFlags().String("log-level", "",
		"Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newInspectCmd())

	return rootCmd
}

// Execute runs the command line and exits. Exit handlers, such as the ones
// that flush traces, run before the process ends.
func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func parseLevel(cmd *cobra.Command, level slog.Level) (slog.Level, error) {
	str, _ := cmd.Flags().GetString("log-level")
	if str == "" {
		return level, nil
	}

	err := level.UnmarshalText([]byte(str))
	if err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", str, err)
	}

	return level, nil
}
