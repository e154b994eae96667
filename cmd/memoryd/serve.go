package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/notify"
	"github.com/agentmemory/memoryd/internal/store"
)

// consolidationInterval is how often the serve loop sweeps each tenant for
// stale chunks to stratify into reflections (spec §4.L); the job itself
// also no-ops per tenant when nothing has gone stale since the last sweep.
const consolidationInterval = 1 * time.Hour

func newServeCmd() *cobra.Command {
	var disableConsolidation bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the memoryd daemon: open the store, wire tools, start background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), disableConsolidation)
		},
	}
	cmd.Flags().BoolVar(&disableConsolidation, "disable-consolidation", false, "disable the background consolidation sweep")
	return cmd
}

func runServe(ctx context.Context, disableConsolidation bool) error {
	settings, err := app.LoadSettings()
	if err != nil {
		return err
	}

	db, err := store.InitDB()
	if err != nil {
		return err
	}
	defer func() { _ = store.CloseDB(db) }()

	publisher, stopNotify, err := notify.StartEmbedded()
	if err != nil {
		return err
	}
	defer stopNotify()

	svc, err := newServices(db, settings, publisher)
	if err != nil {
		return err
	}
	registry := newRegistry(db, svc)
	slog.Info("memoryd serving", "tool_count", len(registry.Manifest()))

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !disableConsolidation {
		go runConsolidationLoop(runCtx, db, svc)
	}

	<-runCtx.Done()
	slog.Info("memoryd shutting down")
	return nil
}

// runConsolidationLoop sweeps every tenant with at least one event on a
// fixed ticker, per spec §4.L ("a periodic background job... grouped by
// subject... extractive, non-generative").
func runConsolidationLoop(ctx context.Context, db *sql.DB, svc *services) {
	ticker := time.NewTicker(consolidationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tenantIDs, err := store.ListTenantIDs(ctx, db)
			if err != nil {
				slog.Error("consolidation: list tenants failed", "error", err)
				continue
			}
			for _, tenantID := range tenantIDs {
				if err := svc.consolidation.Run(ctx, tenantID); err != nil {
					slog.Error("consolidation run failed", "tenant_id", tenantID, "error", err)
				}
			}
		}
	}
}
