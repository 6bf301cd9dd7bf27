package loader

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/euoc/aws-data-pipeline/internal/dataset"
	"github.com/euoc/aws-data-pipeline/internal/schema"
	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// Writer turns dataset rows into bound upserts against one table.
type Writer struct {
	tx   storage.Tx
	spec storage.TableSpec

	columns []string
	types   []storage.ColumnType
	src     []int // dataset column index per written column; -1 for the stamp column
	stamp   time.Time

	keyPos []int // written-column index of each natural-key column
	seen   map[string]struct{}
	dups   int
}

// NewWriter prepares a writer for the synchronized column set. stampColumn,
// when non-empty and present in columns, receives stamp on every row.
func NewWriter(tx storage.Tx, spec storage.TableSpec, columns []storage.ColumnSpec, ds *dataset.Dataset, stampColumn string, stamp time.Time) (*Writer, error) {
	w := &Writer{
		tx:    tx,
		spec:  spec,
		stamp: stamp.UTC(),
		seen:  make(map[string]struct{}),
	}
	for _, c := range columns {
		idx := -1
		if stampColumn == "" || c.Name != stampColumn {
			idx = ds.Index(c.Name)
			if idx < 0 {
				return nil, fmt.Errorf("column %q is not in the dataset", c.Name)
			}
		}
		w.columns = append(w.columns, c.Name)
		w.types = append(w.types, c.Type)
		w.src = append(w.src, idx)
	}
	for _, k := range spec.NaturalKey {
		pos := -1
		for i, c := range w.columns {
			if c == k {
				pos = i
				break
			}
		}
		w.keyPos = append(w.keyPos, pos)
	}
	return w, nil
}

// Duplicates is the number of rows so far whose natural key repeated an
// earlier row of the same dataset (the later row wins).
func (w *Writer) Duplicates() int { return w.dups }

// WriteRow upserts one dataset row.
func (w *Writer) WriteRow(ctx context.Context, row []string) error {
	values := make([]any, len(w.columns))
	for i, idx := range w.src {
		if idx < 0 {
			values[i] = w.stamp
			continue
		}
		raw := ""
		if idx < len(row) {
			raw = row[idx]
		}
		v, err := Coerce(raw, w.types[i])
		if err != nil {
			return fmt.Errorf("column %q: %w", w.columns[i], err)
		}
		values[i] = v
	}
	w.trackKey(values)
	return w.tx.Upsert(ctx, w.spec, w.columns, values)
}

// trackKey compares keys the way the database will: on the coerced values.
func (w *Writer) trackKey(values []any) {
	if len(w.keyPos) == 0 {
		return
	}
	var b strings.Builder
	for i, pos := range w.keyPos {
		if pos < 0 {
			return
		}
		v := storage.NormalizeKey(values[pos], w.types[pos])
		if v == "" {
			// NULL keys never conflict.
			return
		}
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(v)
	}
	k := b.String()
	if _, ok := w.seen[k]; ok {
		w.dups++
		return
	}
	w.seen[k] = struct{}{}
}

// Coerce converts a raw cell to the value bound for a column of type t.
//
// Empty (after trimming) is NULL. Numeric values are bound as decimal text so
// no precision is lost on the way to NUMERIC/DECIMAL; exponent notation is
// expanded because SQL Server will not convert it to DECIMAL. Timestamps are
// bound in UTC: the Postgres and SQL Server drivers drop the zone offset when
// writing a zone-less column.
func Coerce(raw string, t storage.ColumnType) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	switch t {
	case storage.Numeric:
		f, ok := schema.ParseNumber(s)
		if !ok {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		if strings.ContainsAny(s, "eE") && !math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return strings.TrimPrefix(s, "+"), nil
	case storage.Timestamp:
		ts, ok := schema.ParseTimestamp(s)
		if !ok {
			return nil, fmt.Errorf("%q is not a timestamp", s)
		}
		return ts.UTC(), nil
	default:
		return raw, nil
	}
}
