package loader

import (
	"context"
	"errors"

	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// fakeTx records calls and fails on demand.
type fakeTx struct {
	calls []string

	columns    []string // TableColumns result; nil means "echo the spec"
	constraint bool     // HasUniqueConstraint result

	createErr  error
	columnsErr error
	addErr     error
	upsertErr  map[int]error // 1-based upsert call -> error
	commitErr  error

	upserts    [][]any
	upsertCols []string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) CreateTable(_ context.Context, _ storage.TableSpec) error {
	f.calls = append(f.calls, "create")
	return f.createErr
}

func (f *fakeTx) TableColumns(_ context.Context, t storage.TableSpec) ([]string, error) {
	f.calls = append(f.calls, "columns")
	if f.columnsErr != nil {
		return nil, f.columnsErr
	}
	if f.columns != nil {
		return f.columns, nil
	}
	return t.ColumnNames(), nil
}

func (f *fakeTx) HasUniqueConstraint(_ context.Context, _ storage.TableSpec, name string) (bool, error) {
	f.calls = append(f.calls, "has:"+name)
	return f.constraint, nil
}

func (f *fakeTx) AddUniqueConstraint(_ context.Context, _ storage.TableSpec, name, column string) error {
	f.calls = append(f.calls, "add:"+name+":"+column)
	return f.addErr
}

func (f *fakeTx) Upsert(_ context.Context, _ storage.TableSpec, columns []string, values []any) error {
	f.upsertCols = columns
	if err := f.upsertErr[len(f.upserts)+1]; err != nil {
		return err
	}
	f.upserts = append(f.upserts, values)
	return nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.calls = append(f.calls, "commit")
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.calls = append(f.calls, "rollback")
	f.rolledBack = true
	return nil
}

type fakeStore struct {
	tx       *fakeTx
	beginErr error
	maxIdent int
}

func (s *fakeStore) Kind() string             { return "fake" }
func (s *fakeStore) MaxIdentifierLength() int { return s.maxIdent }
func (s *fakeStore) Close(context.Context) error {
	return nil
}

func (s *fakeStore) Begin(context.Context) (storage.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return s.tx, nil
}

var errBoom = errors.New("boom")
