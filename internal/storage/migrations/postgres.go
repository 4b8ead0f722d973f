package migrations

import (
	"context"
	"fmt"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded snapshot-store migrations.
// Migrations are idempotent (CREATE ... IF NOT EXISTS).
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, m := range files {
		// pgx simple protocol accepts multiple statements per Exec.
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
