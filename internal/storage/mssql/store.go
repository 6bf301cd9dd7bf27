package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/euoc/aws-data-pipeline/internal/storage"
)

const savepointName = "add_unique"

func init() {
	storage.Register("mssql", Open)
	storage.RegisterIdentifierLimit("mssql", maxIdentifierLength)
}

// Store implements storage.Store for Microsoft SQL Server.
//
// Semantics match the Postgres backend:
//   - natural-key upserts are single-row MERGE statements;
//   - constraint additions are isolated with SAVE TRANSACTION so that a
//     failed ALTER TABLE rolls back only itself.
type Store struct {
	db *sql.DB
}

// Open connects using database/sql and the "sqlserver" driver.
//
// This method validates connectivity via PingContext.
func Open(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(1)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Store{db: raw}, nil
}

func (s *Store) Kind() string { return "mssql" }

func (s *Store) MaxIdentifierLength() int { return maxIdentifierLength }

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Close releases database resources held by this store.
func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Tx is one dataset transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) CreateTable(ctx context.Context, spec storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := t.tx.ExecContext(ctx, schemaSQL, spec.Schema); err != nil {
			return fmt.Errorf("create schema for %s: %w", spec.QualifiedName(), err)
		}
	}
	if _, err := t.tx.ExecContext(ctx, tableSQL, mssqlTableIdent(spec)); err != nil {
		return fmt.Errorf("create table %s: %w", spec.QualifiedName(), err)
	}
	return nil
}

func (t *Tx) TableColumns(ctx context.Context, spec storage.TableSpec) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, selectColumnsSQL, spec.Schema, spec.Name)
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

func (t *Tx) HasUniqueConstraint(ctx context.Context, spec storage.TableSpec, name string) (bool, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, selectConstraintSQL, spec.Schema, spec.Name, name).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup constraint %s on %s: %w", name, spec.QualifiedName(), err)
	}
	return n > 0, nil
}

func (t *Tx) AddUniqueConstraint(ctx context.Context, spec storage.TableSpec, name, column string) error {
	if _, err := t.tx.ExecContext(ctx, "SAVE TRANSACTION "+savepointName+";"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, buildAddUniqueSQL(spec, name, column)); err != nil {
		if _, rbErr := t.tx.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TRANSACTION "+savepointName+";"); rbErr != nil {
			return fmt.Errorf("add constraint %s: %w (rollback to savepoint: %v)", name, err, rbErr)
		}
		return fmt.Errorf("add constraint %s: %w", name, err)
	}
	return nil
}

func (t *Tx) Upsert(ctx context.Context, spec storage.TableSpec, columns []string, values []any) error {
	if len(columns) == 0 || len(columns) != len(values) {
		return fmt.Errorf("upsert %s: %d columns, %d values", spec.QualifiedName(), len(columns), len(values))
	}
	_, err := t.tx.ExecContext(ctx, buildUpsertSQL(spec, columns), values...)
	return err
}

func (t *Tx) Commit(context.Context) error { return t.tx.Commit() }

func (t *Tx) Rollback(context.Context) error { return t.tx.Rollback() }

// compile-time sanity checks (no runtime cost).
var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*Tx)(nil)
)
