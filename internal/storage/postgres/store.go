package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/euoc/aws-data-pipeline/internal/storage"
)

func init() {
	storage.Register("postgres", Open)
	storage.RegisterIdentifierLimit("postgres", maxIdentifierLength)
}

/*
Store implements storage.Store for Postgres.

It holds a single pgx.Conn rather than a pool: one invocation loads its files
sequentially over one connection, and every dataset is scoped by one
transaction.

Constraint additions run in a nested pgx.Tx, which pgx issues as a SAVEPOINT.
A failed ALTER TABLE therefore rolls back to the savepoint instead of aborting
the outer transaction.
*/
type Store struct {
	conn *pgx.Conn
}

// Open connects to Postgres using a pgx connection string (URL or keyword form).
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Store{conn: conn}, nil
}

func (s *Store) Kind() string { return "postgres" }

func (s *Store) MaxIdentifierLength() int { return maxIdentifierLength }

// Begin starts the dataset transaction.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Close closes the connection.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close(ctx)
}

// Tx is one dataset transaction.
type Tx struct {
	tx pgx.Tx
}

// CreateTable creates the schema (when qualified) and the table if absent.
func (t *Tx) CreateTable(ctx context.Context, spec storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := t.tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", spec.QualifiedName(), err)
		}
	}
	if _, err := t.tx.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", spec.QualifiedName(), err)
	}
	return nil
}

// TableColumns reads the existing column names from information_schema.
func (t *Tx) TableColumns(ctx context.Context, spec storage.TableSpec) ([]string, error) {
	rows, err := t.tx.Query(ctx, selectColumnsSQL, spec.Schema, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", spec.QualifiedName(), err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", spec.QualifiedName(), err)
	}
	return cols, nil
}

// HasUniqueConstraint looks the constraint up by exact name.
func (t *Tx) HasUniqueConstraint(ctx context.Context, spec storage.TableSpec, name string) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, selectConstraintSQL, spec.Schema, spec.Name, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup constraint %s on %s: %w", name, spec.QualifiedName(), err)
	}
	return exists, nil
}

// AddUniqueConstraint adds the constraint inside a savepoint.
func (t *Tx) AddUniqueConstraint(ctx context.Context, spec storage.TableSpec, name, column string) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := sp.Exec(ctx, buildAddUniqueSQL(spec, name, column)); err != nil {
		if rbErr := sp.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return fmt.Errorf("add constraint %s: %w (rollback to savepoint: %v)", name, err, rbErr)
		}
		return fmt.Errorf("add constraint %s: %w", name, err)
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// Upsert writes one row with bound parameters.
func (t *Tx) Upsert(ctx context.Context, spec storage.TableSpec, columns []string, values []any) error {
	if len(columns) == 0 || len(columns) != len(values) {
		return fmt.Errorf("upsert %s: %d columns, %d values", spec.QualifiedName(), len(columns), len(values))
	}
	_, err := t.tx.Exec(ctx, buildUpsertSQL(spec, columns), values...)
	return err
}

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*Tx)(nil)
)
