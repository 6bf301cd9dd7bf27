package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// Response is the Lambda invocation result.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

const successBody = "Processing completed successfully"

func failure(err error) Response {
	return Response{StatusCode: 500, Body: "Error processing: " + err.Error()}
}

// objectCreated reports whether rec announces a new S3 object. Every other
// record (deletes, replication, non-S3 sources) is ignored.
func objectCreated(rec events.S3EventRecord) bool {
	return rec.EventSource == "aws:s3" && strings.HasPrefix(rec.EventName, "ObjectCreated:")
}

// HandleS3Event loads every object-created record of evt, in record order,
// over one store connection opened on the first relevant record.
//
// Processing stops at the first failure. Earlier objects stay committed.
// The error return is always nil; failures are reported as a 500 Response.
func (h *Handler) HandleS3Event(ctx context.Context, evt events.S3Event) (Response, error) {
	runID := newRunID()
	log := h.logger().With("run_id", runID)

	var store storage.Store
	defer func() {
		if store == nil {
			return
		}
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error("close store failed", "reason", err.Error())
		}
	}()

	loaded := 0
	for _, rec := range evt.Records {
		if !objectCreated(rec) {
			log.Debug("record ignored", "event_source", rec.EventSource, "event_name", rec.EventName)
			continue
		}
		bucket := rec.S3.Bucket.Name
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			err = &IngestionError{Bucket: bucket, Key: rec.S3.Object.Key, Err: fmt.Errorf("decode key: %w", err)}
			log.Error("invocation failed", "reason", err.Error())
			return failure(err), nil
		}

		if store == nil {
			store, err = h.Connect(ctx)
			if err != nil {
				store = nil
				log.Error("invocation failed", "reason", err.Error())
				return failure(err), nil
			}
		}

		recLog := log.With("bucket", bucket)
		fr := h.loadObject(ctx, recLog, store, bucket, key, "")
		if fr.Err != nil {
			recLog.Error("invocation failed", "key", key, "reason", fr.Err.Error())
			return failure(fr.Err), nil
		}
		loaded++
	}

	log.Info("invocation completed", "records", len(evt.Records), "loaded", loaded)
	return Response{StatusCode: 200, Body: successBody}, nil
}
