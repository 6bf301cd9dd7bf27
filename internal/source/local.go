package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local serves objects from a directory tree. A bucket is a subdirectory of
// Root; an empty bucket means Root itself.
type Local struct {
	Root string
}

// NewLocal returns a Local source rooted at root ("." when empty).
func NewLocal(root string) *Local {
	if root == "" {
		root = "."
	}
	return &Local{Root: root}
}

func (l *Local) path(bucket, key string) (string, error) {
	base := filepath.Join(l.Root, filepath.FromSlash(bucket))
	p := filepath.Join(base, filepath.FromSlash(key))
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes %s", key, base)
	}
	return p, nil
}

// Open implements Source.
func (l *Local) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// List implements Source. Keys are slash-separated and relative to the
// bucket directory, in lexical order.
func (l *Local) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	base := filepath.Join(l.Root, filepath.FromSlash(bucket))
	var keys []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", base, err)
	}
	return keys, nil
}

var _ Source = (*Local)(nil)
