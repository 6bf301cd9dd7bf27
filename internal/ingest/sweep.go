package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/euoc/aws-data-pipeline/internal/metrics"
	"github.com/euoc/aws-data-pipeline/internal/parser"
)

// SweepReport summarizes one Sweep.
type SweepReport struct {
	RunID  string
	Bucket string
	Prefix string

	// Files holds one result per attempted object, in listing order.
	Files []FileResult
	// Skipped lists keys that are not tabular files.
	Skipped []string
}

// Loaded counts the committed files.
func (r SweepReport) Loaded() int {
	n := 0
	for _, f := range r.Files {
		if f.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts the files that did not commit.
func (r SweepReport) Failed() int { return len(r.Files) - r.Loaded() }

// Rows is the total number of rows committed.
func (r SweepReport) Rows() int {
	n := 0
	for _, f := range r.Files {
		n += f.Rows
	}
	return n
}

// Sweep loads every tabular object under prefix, in listing order, over one
// store connection. The connection is opened only when there is something to
// load.
//
// By default the first failed file aborts the sweep and its error is returned.
// With ContinueOnError every file is attempted and the returned error joins
// the per-file failures. Files committed before a failure stay committed.
func (h *Handler) Sweep(ctx context.Context, bucket, prefix string) (SweepReport, error) {
	rep := SweepReport{RunID: newRunID(), Bucket: bucket, Prefix: prefix}
	log := h.logger().With("run_id", rep.RunID, "bucket", bucket, "prefix", prefix)

	keys, err := h.Source.List(ctx, bucket, prefix)
	if err != nil {
		return rep, &IngestionError{Bucket: bucket, Key: prefix, Err: fmt.Errorf("list: %w", err)}
	}

	var todo []string
	for _, k := range keys {
		if strings.HasSuffix(k, "/") || !parser.IsTabular(k) {
			rep.Skipped = append(rep.Skipped, k)
			metrics.RecordFile("skipped")
			continue
		}
		todo = append(todo, k)
	}
	log.Info("sweep listed", "objects", len(keys), "tabular", len(todo), "skipped", len(rep.Skipped))
	if len(todo) == 0 {
		return rep, nil
	}

	store, err := h.Connect(ctx)
	if err != nil {
		return rep, err
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error("close store failed", "reason", err.Error())
		}
	}()

	var errs []error
	for _, key := range todo {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		fr := h.loadObject(ctx, log, store, bucket, key, "")
		rep.Files = append(rep.Files, fr)
		if fr.Err == nil {
			continue
		}
		if !h.ContinueOnError {
			log.Error("sweep aborted", "key", key, "reason", fr.Err.Error())
			return rep, fr.Err
		}
		log.Error("file failed; continuing", "key", key, "reason", fr.Err.Error())
		errs = append(errs, fr.Err)
	}

	log.Info("sweep completed", "loaded", rep.Loaded(), "failed", rep.Failed(), "rows", rep.Rows())
	if len(errs) > 0 {
		return rep, fmt.Errorf("sweep: %d of %d files failed: %w", len(errs), len(rep.Files), errors.Join(errs...))
	}
	return rep, nil
}
