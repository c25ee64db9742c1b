package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/storage"
	chstore "yield-adapter-lab/internal/storage/clickhouse"
	"yield-adapter-lab/internal/storage/memory"
	"yield-adapter-lab/internal/storage/migrations"
	pgstore "yield-adapter-lab/internal/storage/postgres"
)

var errNoDatabase = errors.New("--postgres-dsn is required (use --use-memory for in-memory storage)")

// storeFlags selects the storage backends.
type storeFlags struct {
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool
	migrate       bool
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.postgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (reports, operations)")
	cmd.Flags().StringVar(&f.clickhouseDSN, "clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (stake snapshots)")
	cmd.Flags().BoolVar(&f.useMemory, "use-memory", false, "Use in-memory storage instead of databases")
	cmd.Flags().BoolVar(&f.migrate, "migrate", true, "Apply embedded schema migrations on connect")
}

// allStores holds all storage implementations.
type allStores struct {
	reports    storage.HarvestReportStore
	operations storage.OperationStore
	snapshots  storage.StakeSnapshotStore
}

// createStores opens the selected backends. Without a ClickHouse DSN,
// snapshots stay in memory.
func createStores(ctx context.Context, f *storeFlags, logger *zap.Logger) (*allStores, func(), error) {
	if f.useMemory {
		stores := &allStores{
			reports:    memory.NewHarvestReportStore(),
			operations: memory.NewOperationStore(),
			snapshots:  memory.NewStakeSnapshotStore(),
		}
		return stores, func() {}, nil
	}
	if f.postgresDSN == "" {
		return nil, nil, errNoDatabase
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, f.postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if f.migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	stores := &allStores{
		reports:    pgstore.NewHarvestReportStore(pool),
		operations: pgstore.NewOperationStore(pool),
		snapshots:  memory.NewStakeSnapshotStore(),
	}
	cleanup := func() { pool.Close() }

	if f.clickhouseDSN == "" {
		logger.Info("no clickhouse dsn, stake snapshots kept in memory")
		return stores, cleanup, nil
	}

	// ClickHouse
	var chConn *chstore.Conn
	if f.migrate {
		chConn, err = migrations.RunClickhouseMigrations(ctx, f.clickhouseDSN)
	} else {
		chConn, err = chstore.NewConn(ctx, f.clickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	stores.snapshots = chstore.NewStakeSnapshotStore(chConn)

	return stores, func() {
		if err := chConn.Close(); err != nil {
			logger.Warn("close clickhouse", zap.Error(err))
		}
		pool.Close()
	}, nil
}
