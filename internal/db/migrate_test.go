package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	ran, err := s.RunMigrations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ran, "second run should apply nothing")
}

func TestMigrationNamesPerDialect(t *testing.T) {
	for _, d := range []Dialect{DialectSQLite, DialectPostgres} {
		names, err := migrationNames(d)
		require.NoError(t, err)
		assert.Contains(t, names, "001_init.sql", "dialect %s", d)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x INT);\n\nCREATE INDEX i ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, stmts)
}

func TestRebind(t *testing.T) {
	q := `UPDATE tasks SET a = ?, b = ? WHERE id = ?`
	assert.Equal(t, q, rebind(DialectSQLite, q))
	assert.Equal(t, `UPDATE tasks SET a = $1, b = $2 WHERE id = $3`, rebind(DialectPostgres, q))
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url     string
		driver  string
		dialect Dialect
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/db", "pgx", DialectPostgres, false},
		{"postgresql://localhost/db", "pgx", DialectPostgres, false},
		{"sqlite:///tmp/x.db", "sqlite", DialectSQLite, false},
		{"file:/tmp/x.db", "sqlite", DialectSQLite, false},
		{"./openlares.db", "sqlite", DialectSQLite, false},
		{"mysql://localhost/db", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		driver, dsn, dialect, err := parseURL(tt.url)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.driver, driver, tt.url)
		assert.Equal(t, tt.dialect, dialect, tt.url)
		if dialect == DialectSQLite {
			assert.Contains(t, dsn, "foreign_keys(1)")
		}
	}
}
