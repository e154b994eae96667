package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := app.GetDBPath()
			if err != nil {
				return err
			}
			db, err := store.OpenDB(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.CloseDB(db) }()

			before, latest, err := store.SchemaVersion(db)
			if err != nil {
				return err
			}
			if err := store.MigrateDB(db, dbPath); err != nil {
				return err
			}
			after, _, err := store.SchemaVersion(db)
			if err != nil {
				return err
			}
			slog.Info("migrations applied", "from", before, "to", after, "latest_known", latest)
			return nil
		},
	}
}
