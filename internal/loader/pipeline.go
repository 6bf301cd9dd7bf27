// Package loader is the schema-inferring upsert loader.
//
// Pipeline.Load infers column types, detects a natural key, synchronizes the
// destination table and upserts every row of a dataset in one transaction.
// Either every row is committed or none is.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/euoc/aws-data-pipeline/internal/dataset"
	"github.com/euoc/aws-data-pipeline/internal/logging"
	"github.com/euoc/aws-data-pipeline/internal/metrics"
	"github.com/euoc/aws-data-pipeline/internal/schema"
	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// State is the position of a load in its lifecycle.
type State int

const (
	StateInferring State = iota
	StateSynchronizing
	StateWriting
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateInferring:
		return "inferring"
	case StateSynchronizing:
		return "synchronizing"
	case StateWriting:
		return "writing"
	case StateCommitted:
		return "committed"
	default:
		return "rolled_back"
	}
}

// Result describes one load. Rows is non-zero only once State is
// StateCommitted.
type Result struct {
	Table         string
	State         State
	Rows          int
	DuplicateKeys int
	NaturalKey    []string
	Columns       []storage.ColumnSpec
	Sync          storage.SyncResult
}

// Pipeline loads datasets into a store.
type Pipeline struct {
	// Schema is the destination schema; empty means the backend default.
	Schema string

	// StampColumn, when set, adds a Timestamp column holding one UTC time per
	// load. It is never part of the natural key.
	StampColumn string

	Logger *slog.Logger

	// Now is a test seam; nil means time.Now.
	Now func() time.Time
}

// Plan infers the table spec Load would use for ds, without touching a store.
func (p *Pipeline) Plan(ds *dataset.Dataset, table string) (storage.TableSpec, error) {
	if ds == nil {
		return storage.TableSpec{}, fmt.Errorf("nil dataset")
	}
	spec := storage.TableSpec{
		Schema:     p.Schema,
		Name:       table,
		Columns:    schema.InferColumns(ds),
		NaturalKey: schema.DetectNaturalKey(ds.Columns),
	}
	if p.StampColumn != "" {
		if ds.Has(p.StampColumn) {
			return spec, fmt.Errorf("stamp column %q collides with a dataset column", p.StampColumn)
		}
		spec.Columns = append(spec.Columns, storage.ColumnSpec{Name: p.StampColumn, Type: storage.Timestamp})
	}
	return spec, nil
}

// Load writes ds into table over store.
//
// Errors are *SchemaSyncError, *WriteError or *storage.ConnectionError. Any
// failure after the transaction began rolls it back before returning.
func (p *Pipeline) Load(ctx context.Context, ds *dataset.Dataset, table string, store storage.Store) (Result, error) {
	log := logging.OrDefault(p.Logger).With("table", table)
	res := Result{Table: table, State: StateInferring}

	start := time.Now()
	spec, err := p.Plan(ds, table)
	metrics.RecordStep("infer", metrics.Status(err), time.Since(start))
	if err != nil {
		return res, &SchemaSyncError{Table: table, Op: "validate", Err: err}
	}
	res.NaturalKey = spec.NaturalKey
	res.Columns = spec.Columns
	log.Debug("schema inferred", "columns", len(spec.Columns), "natural_key", spec.NaturalKey)

	res.State = StateSynchronizing
	tx, err := store.Begin(ctx)
	if err != nil {
		return res, &storage.ConnectionError{Kind: store.Kind(), Err: fmt.Errorf("begin: %w", err)}
	}
	rollback := func(cause error) (Result, error) {
		res.State = StateRolledBack
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			log.Error("rollback failed", "reason", rbErr.Error())
		}
		log.Error("load rolled back", "reason", cause.Error())
		return res, cause
	}

	start = time.Now()
	// The synchronizer tags its records with the qualified table name itself.
	syncer := &Synchronizer{Logger: p.Logger}
	res.Sync, err = syncer.EnsureTable(ctx, tx, spec, store.MaxIdentifierLength())
	metrics.RecordStep("sync", metrics.Status(err), time.Since(start))
	if err != nil {
		return rollback(err)
	}
	if res.Sync.Status == storage.SynchronizedWithWarning {
		log.Warn("schema synchronized with warnings", "status", res.Sync.Status.String(), "reason", res.Sync.Reasons)
	}

	res.State = StateWriting
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	w, err := NewWriter(tx, spec, res.Sync.Columns, ds, p.StampColumn, now())
	if err != nil {
		return rollback(&WriteError{Table: table, Row: 1, Err: err})
	}

	start = time.Now()
	for i, row := range ds.Rows {
		if err := ctx.Err(); err != nil {
			metrics.RecordStep("write", "error", time.Since(start))
			return rollback(&WriteError{Table: table, Row: i + 1, Err: err})
		}
		if err := w.WriteRow(ctx, row); err != nil {
			metrics.RecordStep("write", "error", time.Since(start))
			return rollback(&WriteError{Table: table, Row: i + 1, Err: err})
		}
	}
	metrics.RecordStep("write", "ok", time.Since(start))

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.RecordStep("commit", metrics.Status(err), time.Since(start))
	if err != nil {
		return rollback(&WriteError{Table: table, Row: 0, Err: err})
	}

	res.State = StateCommitted
	res.Rows = ds.Len()
	res.DuplicateKeys = w.Duplicates()
	metrics.RecordRecords("written", res.Rows)
	metrics.RecordRecords("duplicate_key", res.DuplicateKeys)

	log.Info("load committed", "rows", res.Rows, "natural_key", spec.NaturalKey, "status", res.Sync.Status.String())
	if res.DuplicateKeys > 0 {
		log.Warn("duplicate natural keys in dataset; last row wins", "duplicates", res.DuplicateKeys)
	}
	return res, nil
}
