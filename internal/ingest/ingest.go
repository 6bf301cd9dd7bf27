// Package ingest connects object sources to the loader: the S3 event handler
// used by Lambda and the batch sweep over a prefix.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/euoc/aws-data-pipeline/internal/config"
	"github.com/euoc/aws-data-pipeline/internal/dataset"
	"github.com/euoc/aws-data-pipeline/internal/loader"
	"github.com/euoc/aws-data-pipeline/internal/logging"
	"github.com/euoc/aws-data-pipeline/internal/metrics"
	"github.com/euoc/aws-data-pipeline/internal/parser"
	"github.com/euoc/aws-data-pipeline/internal/source"
	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// IngestionError means an object could not be read or decoded. It is fatal for
// that object only.
type IngestionError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %v", source.Location{Bucket: e.Bucket, Key: e.Key}, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Connector opens the one store connection an invocation uses.
type Connector func(ctx context.Context) (storage.Store, error)

// PasswordResolver resolves the database password (see internal/secrets).
type PasswordResolver interface {
	Password(ctx context.Context, db config.DB) (string, error)
}

// NewConnector returns a Connector for db. The password is resolved on every
// call so that short-lived IAM tokens are fresh. Every failure is a
// *storage.ConnectionError.
func NewConnector(db config.DB, pw PasswordResolver) Connector {
	return func(ctx context.Context) (storage.Store, error) {
		password := ""
		if db.NeedsPassword() {
			if pw == nil {
				return nil, &storage.ConnectionError{Kind: db.Kind, Err: errors.New("no password resolver")}
			}
			p, err := pw.Password(ctx, db)
			if err != nil {
				return nil, &storage.ConnectionError{Kind: db.Kind, Err: err}
			}
			password = p
		}
		dsn, err := db.ConnString(password)
		if err != nil {
			return nil, &storage.ConnectionError{Kind: db.Kind, Err: err}
		}
		return storage.Open(ctx, storage.Config{Kind: db.Kind, DSN: dsn})
	}
}

// Handler loads objects from Source into the store returned by Connect.
type Handler struct {
	Source   source.Source
	Connect  Connector
	Pipeline *loader.Pipeline
	Decode   parser.Options
	Logger   *slog.Logger

	// ContinueOnError makes Sweep record a failed file and move on instead of
	// aborting.
	ContinueOnError bool
}

// TableName derives the destination table from an object key: the base name
// cut at its first '.', lower-cased ("raw/Customers.2024.csv" -> "customers").
func TableName(key string) string {
	base := path.Base(strings.TrimRight(key, "/"))
	if base == "." || base == "/" {
		return ""
	}
	name, _, _ := strings.Cut(base, ".")
	return strings.ToLower(strings.TrimSpace(name))
}

// FileResult is the outcome for one object.
type FileResult struct {
	Bucket string
	Key    string
	Table  string
	Rows   int
	Load   loader.Result
	Err    error
}

func (h *Handler) logger() *slog.Logger { return logging.OrDefault(h.Logger) }

func (h *Handler) pipeline() *loader.Pipeline {
	if h.Pipeline == nil {
		return &loader.Pipeline{}
	}
	return h.Pipeline
}

func newRunID() string { return uuid.NewString() }

// ReadDataset reads and parses one object.
func (h *Handler) ReadDataset(ctx context.Context, bucket, key string) (*dataset.Dataset, error) {
	start := time.Now()
	ds, err := h.decode(ctx, bucket, key)
	metrics.RecordStep("decode", metrics.Status(err), time.Since(start))
	return ds, err
}

func (h *Handler) decode(ctx context.Context, bucket, key string) (*dataset.Dataset, error) {
	if !parser.IsTabular(key) {
		return nil, &IngestionError{Bucket: bucket, Key: key, Err: errors.New("unsupported file type")}
	}
	rc, err := h.Source.Open(ctx, bucket, key)
	if err != nil {
		return nil, &IngestionError{Bucket: bucket, Key: key, Err: err}
	}
	defer rc.Close()

	ds, err := parser.Decode(key, rc, h.Decode)
	if err != nil {
		return nil, &IngestionError{Bucket: bucket, Key: key, Err: err}
	}
	return ds, nil
}

// LoadObject decodes one object and loads it into table (TableName(key) when
// empty) over store.
func (h *Handler) LoadObject(ctx context.Context, store storage.Store, bucket, key, table string) FileResult {
	return h.loadObject(ctx, h.logger().With("bucket", bucket), store, bucket, key, table)
}

// loadObject expects log to already carry the bucket.
func (h *Handler) loadObject(ctx context.Context, log *slog.Logger, store storage.Store, bucket, key, table string) FileResult {
	if table == "" {
		table = TableName(key)
	}
	fr := FileResult{Bucket: bucket, Key: key, Table: table}
	log = log.With("key", key)

	if table == "" {
		fr.Err = &IngestionError{Bucket: bucket, Key: key, Err: errors.New("cannot derive a table name from the key")}
		metrics.RecordFile("error")
		return fr
	}

	ds, err := h.ReadDataset(ctx, bucket, key)
	if err != nil {
		fr.Err = err
		log.Error("decode failed", "reason", err.Error())
		metrics.RecordFile("error")
		return fr
	}
	log.Info("object decoded", "rows", ds.Len(), "columns", len(ds.Columns))

	p := *h.pipeline()
	p.Logger = log
	res, err := p.Load(ctx, ds, table, store)
	fr.Load = res
	if err != nil {
		fr.Err = err
		metrics.RecordFile("error")
		return fr
	}
	fr.Rows = res.Rows
	metrics.RecordFile("ok")
	return fr
}
