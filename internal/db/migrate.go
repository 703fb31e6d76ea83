package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed migrations
var migrationsFS embed.FS

// RunMigrations applies every embedded migration for the store's dialect
// that has not been recorded in schema_migrations yet. It returns the names
// of the migrations it applied.
func (s *Store) RunMigrations(ctx context.Context) ([]string, error) {
	c := s.conn()
	if _, err := c.exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("creating schema_migrations: %w", err)
	}

	names, err := migrationNames(s.dialect)
	if err != nil {
		return nil, err
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, name := range names {
		if applied[name] {
			continue
		}
		body, err := migrationsFS.ReadFile(path.Join("migrations", string(s.dialect), name))
		if err != nil {
			return ran, fmt.Errorf("reading migration %s: %w", name, err)
		}

		err = s.withTx(ctx, "migration", func(c conn) error {
			for _, stmt := range splitStatements(string(body)) {
				if _, err := c.exec(ctx, stmt); err != nil {
					return fmt.Errorf("applying %s: %w", name, err)
				}
			}
			_, err := c.exec(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
				name, s.now().Format("2006-01-02T15:04:05Z"))
			if err != nil {
				return fmt.Errorf("recording %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.conn().query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("listing applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning migration name: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func migrationNames(d Dialect) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, path.Join("migrations", string(d)))
	if err != nil {
		return nil, fmt.Errorf("reading migrations for %s: %w", d, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements breaks a migration file on statement-terminating semicolons.
func splitStatements(body string) []string {
	var stmts []string
	for _, part := range strings.Split(body, ";\n") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if part != "" {
			stmts = append(stmts, part)
		}
	}
	return stmts
}
