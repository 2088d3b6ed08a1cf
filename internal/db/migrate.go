package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/geocoder89/userhub/internal/db/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// seams for tests
var (
	gooseUp = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseDown = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.DownContext(ctx, db, dir, opts...)
	}
	gooseStatus = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.StatusContext(ctx, db, dir, opts...)
	}
)

// Migrate runs a goose command ("up", "down" or "status") against the
// embedded users migrations.
func Migrate(ctx context.Context, db *sql.DB, command string) error {
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("migrate: dialect: %w", err)
	}

	var run func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error

	switch command {
	case "up":
		run = gooseUp
	case "down":
		run = gooseDown
	case "status":
		run = gooseStatus
	default:
		return fmt.Errorf("migrate: unknown command %q", command)
	}

	if err := run(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}

	return nil
}

// MigratePool runs Migrate through a database/sql handle backed by the pool.
// The handle keeps no idle connections, so it is left for the pool to clean up.
func MigratePool(ctx context.Context, pool *pgxpool.Pool, command string) error {
	return Migrate(ctx, stdlib.OpenDBFromPool(pool), command)
}
