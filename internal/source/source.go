// Package source reads objects from S3 or a local directory tree.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned by Open when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Source is an object store the loader can read from.
type Source interface {
	// Open streams one object. The caller closes the reader.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// List returns every key under prefix in listing order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Location is a bucket/key pair.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	if l.Bucket == "" {
		return l.Key
	}
	return "s3://" + l.Bucket + "/" + l.Key
}

// ParseURI splits "s3://bucket/key". Anything else is returned as a bare key
// with an empty bucket (a local path).
func ParseURI(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		if strings.TrimSpace(uri) == "" {
			return Location{}, fmt.Errorf("empty location")
		}
		return Location{Key: uri}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("invalid s3 uri %q (want s3://bucket/key)", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}
