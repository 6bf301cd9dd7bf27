package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/euoc/aws-data-pipeline/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), storage.Config{
		Kind: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s.(*Store)
}

var customers = storage.TableSpec{
	Name: "customers",
	Columns: []storage.ColumnSpec{
		{Name: "id", Type: storage.Numeric},
		{Name: "name", Type: storage.Text},
	},
	NaturalKey: []string{"id"},
}

func TestTx_CreateTableAndColumns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, customers))
	// Idempotent.
	require.NoError(t, tx.CreateTable(ctx, customers))

	cols, err := tx.TableColumns(ctx, customers)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)
	require.NoError(t, tx.Commit(ctx))
}

func TestTx_UniqueIndexAndUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, customers))

	ok, err := tx.HasUniqueConstraint(ctx, customers, "customers_id_key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tx.AddUniqueConstraint(ctx, customers, "customers_id_key", "id"))

	ok, err = tx.HasUniqueConstraint(ctx, customers, "customers_id_key")
	require.NoError(t, err)
	assert.True(t, ok)

	cols := []string{"id", "name"}
	require.NoError(t, tx.Upsert(ctx, customers, cols, []any{"1", "a"}))
	require.NoError(t, tx.Upsert(ctx, customers, cols, []any{"1", "b"}))
	require.NoError(t, tx.Commit(ctx))

	var n int
	var name string
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*), MAX(name) FROM customers`).Scan(&n, &name))
	assert.Equal(t, 1, n)
	assert.Equal(t, "b", name)
}

func TestTx_AddUniqueConstraintFailureKeepsTxUsable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, customers))

	// Duplicate ids without an index: plain inserts go through the no-key path.
	noKey := customers
	noKey.NaturalKey = nil
	require.NoError(t, tx.Upsert(ctx, noKey, []string{"id", "name"}, []any{"1", "a"}))
	require.NoError(t, tx.Upsert(ctx, noKey, []string{"id", "name"}, []any{"1", "b"}))

	err = tx.AddUniqueConstraint(ctx, customers, "customers_id_key", "id")
	require.Error(t, err)

	// The transaction is still usable after the failed index.
	require.NoError(t, tx.Upsert(ctx, noKey, []string{"id", "name"}, []any{"2", "c"}))
	require.NoError(t, tx.Commit(ctx))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM customers`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestTx_RollbackDiscardsRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(ctx, customers))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	noKey := customers
	noKey.NaturalKey = nil
	require.NoError(t, tx.Upsert(ctx, noKey, []string{"id", "name"}, []any{"1", "a"}))
	require.NoError(t, tx.Rollback(ctx))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM customers`).Scan(&n))
	assert.Zero(t, n)
}

func TestBuildUpsertSQL(t *testing.T) {
	t.Parallel()

	got := buildUpsertSQL(customers, []string{"id", "name"})
	assert.Equal(t,
		`INSERT INTO "main"."customers" ("id", "name") VALUES (?, ?) ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name";`,
		got)

	got = buildUpsertSQL(customers, []string{"id"})
	assert.Equal(t, `INSERT INTO "main"."customers" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING;`, got)
}

func TestBuildCreateSQL_NoKeyAddsAutoincrement(t *testing.T) {
	t.Parallel()

	ddl, err := buildCreateSQL(storage.TableSpec{
		Name:    "events",
		Columns: []storage.ColumnSpec{{Name: "at", Type: storage.Timestamp}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "main"."events" ("record_id" INTEGER PRIMARY KEY AUTOINCREMENT, "at" TIMESTAMP);`,
		ddl)
}
