package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a destination store.
//
// When to use:
//   - Use Config when constructing a Store via Open.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Store is one open connection to the destination database.
//
// IMPORTANT: A Store wraps exactly one connection, not a pool. Every DDL and
// DML statement of an invocation runs over it, and Close must be called on
// every exit path.
type Store interface {
	// Kind returns the registered backend kind ("postgres", "sqlite", "mssql").
	Kind() string

	// MaxIdentifierLength is the longest identifier the backend keeps intact,
	// or 0 when there is no practical limit.
	MaxIdentifierLength() int

	// Begin starts the single transaction that scopes one dataset load.
	Begin(ctx context.Context) (Tx, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Tx is the dialect surface the loader drives inside one transaction.
//
// Backends render their own SQL; every identifier goes through the backend's
// quoting helper and every value is a bound parameter.
type Tx interface {
	// CreateTable issues create-if-absent DDL for t.
	// A surrogate key column is added only when t.NaturalKey is empty.
	CreateTable(ctx context.Context, t TableSpec) error

	// TableColumns returns the column names the existing table has, read from
	// the catalog.
	TableColumns(ctx context.Context, t TableSpec) ([]string, error)

	// HasUniqueConstraint checks the catalog for a uniqueness constraint (or
	// unique index, on SQLite) with exactly this name on t.
	HasUniqueConstraint(ctx context.Context, t TableSpec, name string) (bool, error)

	// AddUniqueConstraint adds a single-column uniqueness constraint.
	//
	// Implementations must isolate the statement in a savepoint so that a
	// failure (for example existing duplicate values) leaves the enclosing
	// transaction usable.
	AddUniqueConstraint(ctx context.Context, t TableSpec, name string, column string) error

	// Upsert writes one row. columns and values are aligned. When
	// t.NaturalKey is non-empty the write updates the existing row with the
	// same key; otherwise it is a plain insert.
	Upsert(ctx context.Context, t TableSpec, columns []string, values []any) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory opens a Store for a backend kind.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
	limits    = map[string]int{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by Open.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// RegisterIdentifierLimit records the identifier limit a backend's
// MaxIdentifierLength reports, so names can be planned without connecting.
func RegisterIdentifierLimit(kind string, n int) {
	mu.Lock()
	defer mu.Unlock()
	limits[kind] = n
}

// IdentifierLimit returns the registered identifier limit for kind, or 0 when
// the kind has none or is unknown.
func IdentifierLimit(kind string) int {
	mu.RLock()
	defer mu.RUnlock()
	return limits[kind]
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns a *ConnectionError if cfg.Kind is empty or unsupported, or if
//     the factory fails to connect. There is no retry.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, &ConnectionError{Kind: cfg.Kind, Err: fmt.Errorf("missing storage kind")}
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, &ConnectionError{Kind: cfg.Kind, Err: fmt.Errorf("unsupported storage kind=%s", cfg.Kind)}
	}

	s, err := f(ctx, cfg)
	if err != nil {
		return nil, &ConnectionError{Kind: cfg.Kind, Err: err}
	}
	return s, nil
}

// ConnectionError reports that the destination store could not be reached.
type ConnectionError struct {
	Kind string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("storage: connect %s: %v", e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
