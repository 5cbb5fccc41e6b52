package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	pkgch "BrentShift/pkg/clickhouse"
	applogger "BrentShift/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations is the ClickHouse schema, one statement per file.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// migrate brings the schema up to date; stores call it from Init, so the
// second caller finds nothing to do.
func migrate(ctx context.Context, ch *pkgch.Client, l *applogger.Logger) error {
	ran, err := ch.Migrate(ctx, Migrations())
	if err != nil {
		return fmt.Errorf("clickhouse schema: %w", err)
	}
	if len(ran) > 0 {
		l.Info("clickhouse migrations applied", applogger.String("database", ch.Database()), applogger.Strings("files", ran))
	}
	return nil
}
