package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// savepointName is the fixed savepoint used around constraint additions.
// Constraint additions never nest, so one name suffices.
const savepointName = "add_unique"

// Store implements storage.Store for SQLite.
//
// Key design points vs Postgres:
//   - There is no schema DDL; TableSpec.Schema names an attached database
//     ("main" when empty).
//   - Uniqueness is a named UNIQUE INDEX, looked up in sqlite_master.
//   - Timestamps are stored as RFC3339Nano strings for reliable round-trip
//     behavior and easy debugging.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", Open)
}

// Open opens the database file (or ":memory:") named by cfg.DSN.
//
// The pool is capped at one connection so that every statement of an
// invocation, including an in-memory database, sees the same connection.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Kind() string { return "sqlite" }

// MaxIdentifierLength is 0: SQLite does not truncate identifiers.
func (s *Store) MaxIdentifierLength() int { return 0 }

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for tests and tooling that need to inspect tables.
func (s *Store) DB() *sql.DB { return s.db }

// Tx is one dataset transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) CreateTable(ctx context.Context, spec storage.TableSpec) error {
	ddl, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.QualifiedName(), err)
	}
	return nil
}

// TableColumns reads the existing column names via pragma_table_info.
func (t *Tx) TableColumns(ctx context.Context, spec storage.TableSpec) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT name FROM pragma_table_info(?, ?) ORDER BY cid;`, spec.Name, schemaName(spec))
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", spec.QualifiedName(), err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("read columns of %s: %w", spec.QualifiedName(), err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", spec.QualifiedName(), err)
	}
	return cols, nil
}

// HasUniqueConstraint looks up a unique index by exact name.
func (t *Tx) HasUniqueConstraint(ctx context.Context, spec storage.TableSpec, name string) (bool, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s.sqlite_master WHERE type = 'index' AND name = ? AND tbl_name = ?;`,
		sqlIdent(schemaName(spec)))

	var n int
	if err := t.tx.QueryRowContext(ctx, q, name, spec.Name).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup index %s on %s: %w", name, spec.QualifiedName(), err)
	}
	return n > 0, nil
}

// AddUniqueConstraint creates the unique index inside a savepoint.
func (t *Tx) AddUniqueConstraint(ctx context.Context, spec storage.TableSpec, name, column string) error {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+savepointName+";"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, buildAddUniqueSQL(spec, name, column)); err != nil {
		rctx := context.WithoutCancel(ctx)
		if _, rbErr := t.tx.ExecContext(rctx, "ROLLBACK TO "+savepointName+";"); rbErr != nil {
			return fmt.Errorf("add unique index %s: %w (rollback to savepoint: %v)", name, err, rbErr)
		}
		_, _ = t.tx.ExecContext(rctx, "RELEASE "+savepointName+";")
		return fmt.Errorf("add unique index %s: %w", name, err)
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE "+savepointName+";"); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (t *Tx) Upsert(ctx context.Context, spec storage.TableSpec, columns []string, values []any) error {
	if len(columns) == 0 || len(columns) != len(values) {
		return fmt.Errorf("upsert %s: %d columns, %d values", spec.QualifiedName(), len(columns), len(values))
	}
	_, err := t.tx.ExecContext(ctx, buildUpsertSQL(spec, columns), bindValues(values)...)
	return err
}

func (t *Tx) Commit(context.Context) error { return t.tx.Commit() }

func (t *Tx) Rollback(context.Context) error { return t.tx.Rollback() }

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*Tx)(nil)
)
