package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/casampa-lab/sinaliza/internal/conflict"
	"github.com/casampa-lab/sinaliza/internal/matching"
	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/pipeline"
	"github.com/casampa-lab/sinaliza/internal/resilience"
	"github.com/casampa-lab/sinaliza/internal/store"
	"github.com/casampa-lab/sinaliza/internal/workflow"
)

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "sinaliza.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens the configured store and applies pending migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// services wires the domain services over one store.
type services struct {
	Pipeline  *pipeline.Pipeline
	Workflow  *workflow.Workflow
	Conflicts *conflict.Service
}

func newServices(st store.Store) *services {
	retry := resilience.FromConfig(cfg.Batch.RetryAttempts, cfg.Batch.RetryBackoffMs)
	return &services{
		Pipeline: pipeline.New(st, pipeline.Options{
			Matching: matching.Options{
				KmTolerance:   cfg.Matching.KmTolerance,
				MinOverlapPct: cfg.Matching.MinOverlapPct,
				TierExactPct:  cfg.Matching.TierExactPct,
				TierHighPct:   cfg.Matching.TierHighPct,
			},
			WriteConcurrency: cfg.Batch.WriteConcurrency,
			Retry:            retry,
		}),
		Workflow: workflow.New(st, workflow.Options{
			Concurrency: cfg.Batch.ReconcileConcurrency,
			Retry:       retry,
		}),
		Conflicts: conflict.NewService(st, conflict.Options{
			KmTolerance:   cfg.Conflict.KmTolerance,
			DistanceM:     cfg.Conflict.DistanceM,
			MinOverlapPct: cfg.Conflict.MinOverlapPct,
		}),
	}
}

// addSelectionFlags registers --lot, --highway and --type on cmd.
func addSelectionFlags(cmd *cobra.Command, required bool) {
	cmd.Flags().String("lot", "", "lot id")
	cmd.Flags().String("highway", "", "highway id (e.g. BR-101)")
	cmd.Flags().String("type", "", "asset type ("+assetTypeNames()+")")
	if required {
		_ = cmd.MarkFlagRequired("lot")
		_ = cmd.MarkFlagRequired("highway")
		_ = cmd.MarkFlagRequired("type")
	}
}

func selectionFromFlags(cmd *cobra.Command) (model.Selection, error) {
	lot, _ := cmd.Flags().GetString("lot")
	highway, _ := cmd.Flags().GetString("highway")
	typ, _ := cmd.Flags().GetString("type")
	sel := model.Selection{LotID: lot, HighwayID: highway}
	if typ == "" {
		return sel, nil
	}
	t, err := model.ParseAssetType(typ)
	if err != nil {
		return sel, err
	}
	sel.AssetType = t
	return sel, nil
}

func assetTypeNames() string {
	types := model.AllAssetTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
