package clickhouse

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// DatabasePlaceholder in a migration is replaced by the client's database.
const DatabasePlaceholder = "${DATABASE}"

// Migrate runs the *.sql files of fsys that schema_migrations does not list
// yet, in name order, and returns the names it ran. Each file holds one
// statement; ClickHouse executes no more per call.
func (c *Client) Migrate(ctx context.Context, fsys fs.FS) ([]string, error) {
	track := c.Table("schema_migrations")
	if _, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+track+` (
        version String,
        applied_at DateTime64(3) DEFAULT now64(3)
    ) ENGINE = ReplacingMergeTree(applied_at)
    ORDER BY version`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := c.appliedMigrations(ctx, track)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	var ran []string
	for _, name := range names {
		if applied[name] {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return ran, fmt.Errorf("read migration %s: %w", name, err)
		}
		stmt := strings.ReplaceAll(strings.TrimSpace(string(body)), DatabasePlaceholder, c.database)
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return ran, fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := c.db.ExecContext(ctx, "INSERT INTO "+track+" (version) VALUES (?)", name); err != nil {
			return ran, fmt.Errorf("record migration %s: %w", name, err)
		}
		ran = append(ran, name)
	}
	return ran, nil
}

func (c *Client) appliedMigrations(ctx context.Context, track string) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM "+track+" FINAL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
