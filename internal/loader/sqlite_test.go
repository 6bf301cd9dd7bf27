package loader

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/euoc/aws-data-pipeline/internal/storage"
	"github.com/euoc/aws-data-pipeline/internal/storage/sqlite"
)

func openSQLite(t *testing.T) (storage.Store, *sql.DB) {
	t.Helper()
	s, err := sqlite.Open(context.Background(), storage.Config{
		Kind: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "load.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, s.(*sqlite.Store).DB()
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func TestSQLite_EndToEndExample(t *testing.T) {
	ctx := context.Background()
	store, db := openSQLite(t)
	ds := mustDataset(t, []string{"id", "name", "value"},
		[]string{"1", "test1", "100"},
		[]string{"2", "test2", "200"},
	)

	res, err := (&Pipeline{}).Load(ctx, ds, "t", store)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, storage.Synchronized, res.Sync.Status)

	rows, err := db.Query(`SELECT name, type FROM pragma_table_info('t') ORDER BY cid`)
	require.NoError(t, err)
	var got [][2]string
	for rows.Next() {
		var name, typ string
		require.NoError(t, rows.Scan(&name, &typ))
		got = append(got, [2]string{name, typ})
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, [][2]string{{"id", "NUMERIC"}, {"name", "TEXT"}, {"value", "NUMERIC"}}, got)

	var idx int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 't_id_key'`).Scan(&idx))
	assert.Equal(t, 1, idx)

	var name, value string
	require.NoError(t, db.QueryRow(`SELECT name, value FROM t WHERE id = 2`).Scan(&name, &value))
	assert.Equal(t, "test2", name)
	assert.Equal(t, "200", value)
}

func TestSQLite_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, db := openSQLite(t)
	p := &Pipeline{}

	_, err := p.Load(ctx, mustDataset(t, []string{"id", "name"}, []string{"1", "a"}), "people", store)
	require.NoError(t, err)
	_, err = p.Load(ctx, mustDataset(t, []string{"id", "name"}, []string{"1", "b"}), "people", store)
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, db, "people"))
	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM people WHERE id = 1`).Scan(&name))
	assert.Equal(t, "b", name)
}

func TestSQLite_LaterDuplicateWins(t *testing.T) {
	ctx := context.Background()
	store, db := openSQLite(t)

	res, err := (&Pipeline{}).Load(ctx, mustDataset(t, []string{"email", "plan"},
		[]string{"a@x.io", "free"},
		[]string{"a@x.io", "pro"},
	), "accounts", store)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicateKeys)

	assert.Equal(t, 1, count(t, db, "accounts"))
	var plan string
	require.NoError(t, db.QueryRow(`SELECT plan FROM accounts`).Scan(&plan))
	assert.Equal(t, "pro", plan)
}

func TestSQLite_EquivalentNumericKeysCollapse(t *testing.T) {
	ctx := context.Background()
	store, db := openSQLite(t)

	res, err := (&Pipeline{}).Load(ctx, mustDataset(t, []string{"id", "v"},
		[]string{"1", "a"},
		[]string{"1.0", "b"},
		[]string{"01", "c"},
	), "items", store)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DuplicateKeys)
	assert.Equal(t, 1, count(t, db, "items"))

	var v string
	require.NoError(t, db.QueryRow(`SELECT v FROM items`).Scan(&v))
	assert.Equal(t, "c", v)
}

func TestSQLite_NoKeyAppends(t *testing.T) {
	ctx := context.Background()
	store, db := openSQLite(t)
	p := &Pipeline{}

	for i := 0; i < 2; i++ {
		_, err := p.Load(ctx, mustDataset(t, []string{"x"}, []string{"1"}), "events", store)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, count(t, db, "events"))

	var maxID int
	require.NoError(t, db.QueryRow(`SELECT MAX(record_id) FROM events`).Scan(&maxID))
	assert.Equal(t, 2, maxID)
}

func TestSQLite_RowFailureRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	store, db := openSQLite(t)
	_, err := db.Exec(`CREATE TABLE "t" ("id" NUMERIC, "name" TEXT NOT NULL)`)
	require.NoError(t, err)

	ds := mustDataset(t, []string{"id", "name"},
		[]string{"1", "a"},
		[]string{"2", "b"},
		[]string{"3", ""},
		[]string{"4", "d"},
		[]string{"5", "e"},
	)
	res, err := (&Pipeline{}).Load(ctx, ds, "t", store)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 3, we.Row)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, 0, count(t, db, "t"))

	var idx int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 't_id_key'`).Scan(&idx))
	assert.Equal(t, 0, idx, "constraint added inside the failed load must roll back too")
}

func TestSQLite_ConstraintFailureStillAttemptsWrites(t *testing.T) {
	ctx := context.Background()
	store, db := openSQLite(t)
	_, err := db.Exec(`CREATE TABLE "t" ("id" NUMERIC, "name" TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO "t" VALUES (1, 'a'), (1, 'b')`)
	require.NoError(t, err)

	res, err := (&Pipeline{}).Load(ctx, mustDataset(t, []string{"id", "name"}, []string{"2", "c"}), "t", store)

	assert.Equal(t, storage.SynchronizedWithWarning, res.Sync.Status)
	require.Len(t, res.Sync.Reasons, 1)
	assert.Contains(t, res.Sync.Reasons[0], "t_id_key")

	// Without the unique index SQLite rejects the ON CONFLICT target, so the
	// first write fails and the load rolls back.
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, 1, we.Row)
	assert.Equal(t, 2, count(t, db, "t"))
}

func TestSQLite_StampColumnAndDrift(t *testing.T) {
	ctx := context.Background()
	store, db := openSQLite(t)
	stamp := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	p := &Pipeline{StampColumn: "processed_at", Now: func() time.Time { return stamp }}

	_, err := p.Load(ctx, mustDataset(t, []string{"id", "seen"}, []string{"1", "2024-01-02"}), "visits", store)
	require.NoError(t, err)

	res, err := p.Load(ctx, mustDataset(t, []string{"id", "seen", "extra"}, []string{"2", "2024-01-03", "x"}), "visits", store)
	require.NoError(t, err)
	assert.Equal(t, storage.SynchronizedWithWarning, res.Sync.Status)

	assert.Equal(t, 2, count(t, db, "visits"))
	var processed, seen string
	require.NoError(t, db.QueryRow(`SELECT processed_at, seen FROM visits WHERE id = 2`).Scan(&processed, &seen))
	assert.Equal(t, "2024-05-06T07:08:09Z", processed)
	assert.Equal(t, "2024-01-03T00:00:00Z", seen)
}
