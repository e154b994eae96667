package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memoryd/internal/app"
)

var (
	dbPathFlag string
	verbose    bool
)

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "memoryd",
		Short:         "Multi-tenant agent memory daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			if dbPathFlag != "" {
				app.SetDBPathOverride(dbPathFlag)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "override the sqlite database path (default: resolved via config)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newManifestCmd())
	return cmd
}

// Execute builds and runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}
