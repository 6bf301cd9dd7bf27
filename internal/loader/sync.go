package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/euoc/aws-data-pipeline/internal/logging"
	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// Synchronizer makes the destination table match a TableSpec.
//
// It never alters an existing table: columns the table lacks are dropped from
// the write set, and a uniqueness constraint that cannot be added (usually
// because of existing duplicates) downgrades the result to a warning.
type Synchronizer struct {
	Logger *slog.Logger
}

// EnsureTable creates spec's table if absent, reads back its columns and
// makes sure every natural-key column has its named uniqueness constraint.
//
// maxIdent is the backend's identifier limit (0 for none). On error the
// returned result has status SyncFailed and the caller must roll back.
func (s *Synchronizer) EnsureTable(ctx context.Context, tx storage.Tx, spec storage.TableSpec, maxIdent int) (storage.SyncResult, error) {
	log := logging.OrDefault(s.Logger).With("table", spec.QualifiedName())
	res := storage.SyncResult{Status: storage.Synchronized}

	fail := func(op string, err error) (storage.SyncResult, error) {
		res.Fail(err.Error())
		return res, &SchemaSyncError{Table: spec.QualifiedName(), Op: op, Err: err}
	}

	if err := storage.ValidateTableSpec(spec, maxIdent); err != nil {
		return fail("validate", err)
	}
	constraints := make(map[string]string, len(spec.NaturalKey))
	for _, k := range spec.NaturalKey {
		name := storage.ConstraintName(spec.Name, k, maxIdent)
		if err := storage.ValidateIdentifier(name, maxIdent); err != nil {
			return fail("validate", fmt.Errorf("constraint: %w", err))
		}
		constraints[k] = name
	}

	if err := tx.CreateTable(ctx, spec); err != nil {
		return fail("create", err)
	}

	existing, err := tx.TableColumns(ctx, spec)
	if err != nil {
		return fail("catalog", err)
	}
	if len(existing) == 0 {
		return fail("catalog", fmt.Errorf("table not visible in catalog after create"))
	}

	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}
	for _, c := range spec.Columns {
		if have[c.Name] {
			res.Columns = append(res.Columns, c)
			continue
		}
		if spec.IsKeyColumn(c.Name) {
			return fail("columns", fmt.Errorf("natural key column %q missing from existing table", c.Name))
		}
		reason := fmt.Sprintf("column %q not in existing table; ignored", c.Name)
		log.Warn("schema drift", "column", c.Name, "reason", reason)
		res.Warn(reason)
	}
	if len(res.Columns) == 0 {
		return fail("columns", fmt.Errorf("no dataset column exists in the table"))
	}

	for _, k := range spec.NaturalKey {
		name := constraints[k]
		ok, err := tx.HasUniqueConstraint(ctx, spec, name)
		if err != nil {
			return fail("catalog", err)
		}
		if ok {
			log.Debug("unique constraint present", "constraint", name)
			continue
		}
		if err := tx.AddUniqueConstraint(ctx, spec, name, k); err != nil {
			reason := fmt.Sprintf("add unique constraint %s on %q: %v", name, k, err)
			log.Warn("unique constraint not added; upserts on this key may fail", "constraint", name, "reason", err.Error())
			res.Warn(reason)
			continue
		}
		log.Info("unique constraint added", "constraint", name, "natural_key", k)
	}

	return res, nil
}
