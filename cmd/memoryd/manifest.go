package main

import (
	"github.com/spf13/cobra"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/notify"
	"github.com/agentmemory/memoryd/internal/output"
	"github.com/agentmemory/memoryd/internal/store"
)

func newManifestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Print the tool manifest (name, description, input schema) as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.LoadSettings()
			if err != nil {
				return err
			}
			db, err := store.InitDB()
			if err != nil {
				return err
			}
			defer func() { _ = store.CloseDB(db) }()

			svc, err := newServices(db, settings, (*notify.Publisher)(nil))
			if err != nil {
				return err
			}
			registry := newRegistry(db, svc)
			return output.PrintSuccess(registry.Manifest())
		},
	}
}
