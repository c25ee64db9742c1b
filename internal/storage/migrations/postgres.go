package migrations

import (
	"context"
	"fmt"

	"yield-adapter-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies every embedded Postgres file in lexical order.
// Files use IF NOT EXISTS so reruns are no-ops.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, f := range files {
		if _, err := pool.Exec(ctx, f.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Name, err)
		}
	}
	return nil
}
