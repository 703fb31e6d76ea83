// Package db holds the kanban data model and the Store that enforces its
// rules: queue transitions, claim exclusivity and move history.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/openlares/openlares-sub000/internal/events"
)

// Dialect identifies the SQL backend behind a Store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Store is the repository over a Postgres or SQLite database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	events  events.Publisher
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher makes the store emit domain events after each commit.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) {
		if p != nil {
			s.events = p
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Connect opens the database behind url. postgres:// and postgresql:// URLs
// use pgx; sqlite:// URLs, file: DSNs and bare paths use SQLite.
func Connect(ctx context.Context, url string, opts ...Option) (*Store, error) {
	driver, dsn, dialect, err := parseURL(url)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite only supports one writer.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{
		db:      sqlDB,
		dialect: dialect,
		events:  events.Discard,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases the underlying connections.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports which backend the store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func parseURL(url string) (driver, dsn string, dialect Dialect, err error) {
	switch {
	case url == "":
		return "", "", "", errors.New("empty database URL")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "pgx", url, DialectPostgres, nil
	case strings.HasPrefix(url, "sqlite://"):
		return "sqlite", sqliteDSN(strings.TrimPrefix(url, "sqlite://")), DialectSQLite, nil
	case strings.HasPrefix(url, "file:"):
		return "sqlite", sqliteDSN(strings.TrimPrefix(url, "file:")), DialectSQLite, nil
	case strings.Contains(url, "://"):
		return "", "", "", fmt.Errorf("unsupported database URL scheme: %s", url)
	default:
		return "sqlite", sqliteDSN(url), DialectSQLite, nil
	}
}

func sqliteDSN(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_time_format=sqlite"
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn binds a querier to the store's placeholder style.
type conn struct {
	q       querier
	dialect Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, rebind(c.dialect, query), args...)
}

func (s *Store) conn() conn {
	return conn{q: s.db, dialect: s.dialect}
}

// withTx runs fn in a transaction, committing only if fn returns nil.
func (s *Store) withTx(ctx context.Context, what string, fn func(c conn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning %s tx: %w", what, err)
	}
	defer tx.Rollback()

	if err := fn(conn{q: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", what, err)
	}
	return nil
}

func (s *Store) publish(t events.EventType, data map[string]interface{}) {
	s.events.Publish(t, data)
}

// rebind rewrites ? placeholders as $1..$n for Postgres.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports a unique-constraint failure from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
