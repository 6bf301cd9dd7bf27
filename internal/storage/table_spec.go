// The table types live here so that the schema, loader and backend packages
// can all import them without circular deps.
package storage

import (
	"fmt"
	"strings"
)

// ColumnType is the storage type chosen for a column by inference.
type ColumnType int

const (
	Text ColumnType = iota
	Numeric
	Timestamp
)

func (t ColumnType) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case Timestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// MarshalText renders the type by name in JSON output.
func (t ColumnType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ColumnType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "text":
		*t = Text
	case "numeric":
		*t = Numeric
	case "timestamp":
		*t = Timestamp
	default:
		return fmt.Errorf("unknown column type %q", b)
	}
	return nil
}

// ColumnSpec is one inferred column. Immutable once derived.
type ColumnSpec struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// TableSpec describes the destination table for one load.
//
// Schema is optional; when empty the backend's default schema is used
// (current_schema() on Postgres, SCHEMA_NAME() on SQL Server, main on SQLite).
//
// NaturalKey is ordered and may be empty. When empty, the table is created
// with a SurrogateKeyColumn and rows are always appended.
type TableSpec struct {
	Schema     string       `json:"schema,omitempty"`
	Name       string       `json:"name"`
	Columns    []ColumnSpec `json:"columns"`
	NaturalKey []string     `json:"natural_key,omitempty"`
}

// SurrogateKeyColumn is the generated primary key added only when no natural
// key was detected.
const SurrogateKeyColumn = "record_id"

// Column returns the spec for a column name.
func (t TableSpec) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// IsKeyColumn reports whether name is part of the natural key.
func (t TableSpec) IsKeyColumn(name string) bool {
	for _, k := range t.NaturalKey {
		if k == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the column names in table order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// QualifiedName renders schema.name for logs (unquoted).
func (t TableSpec) QualifiedName() string {
	if strings.TrimSpace(t.Schema) == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// SyncStatus is the outcome of schema synchronization.
type SyncStatus int

const (
	Synchronized SyncStatus = iota
	SynchronizedWithWarning
	SyncFailed
)

func (s SyncStatus) String() string {
	switch s {
	case Synchronized:
		return "synchronized"
	case SynchronizedWithWarning:
		return "synchronized_with_warning"
	default:
		return "failed"
	}
}

// SyncResult makes the degraded path of schema synchronization observable.
//
// Columns is the set of columns the subsequent writes may use: the inferred
// columns that also exist in the destination table.
type SyncResult struct {
	Status  SyncStatus
	Reasons []string
	Columns []ColumnSpec
}

// Warn records a recovered problem and downgrades the status.
func (r *SyncResult) Warn(reason string) {
	if r.Status == Synchronized {
		r.Status = SynchronizedWithWarning
	}
	r.Reasons = append(r.Reasons, reason)
}

// Fail marks the result as failed.
func (r *SyncResult) Fail(reason string) {
	r.Status = SyncFailed
	r.Reasons = append(r.Reasons, reason)
}
