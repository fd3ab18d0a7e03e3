package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FooledKiwi/ridemap-api/internal/migrations"
)

// RunMigrations applies all pending SQL migrations and verifies the schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logf func(format string, args ...any)) error {
	if err := migrations.Run(ctx, pool, logf); err != nil {
		return err
	}
	return migrations.CheckSchema(ctx, pool)
}
