// Package dataset holds the decoded, untyped form of a tabular file.
//
// A Dataset is produced by one of the internal/parser decoders and consumed
// once by the loader. Every value is kept as the raw string that appeared in
// the source; the empty string means "absent" and is written as NULL.
package dataset

import (
	"fmt"
	"strings"
)

// Dataset is an ordered set of rows sharing a fixed, ordered header.
//
// Invariants (enforced by New):
//   - Columns are unique and non-empty.
//   - Every row has exactly len(Columns) values.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// New validates the header and pads short rows with empty values.
//
// Rows longer than the header are rejected: silently dropping trailing cells
// would shift data under the wrong column name in the destination table.
func New(columns []string, rows [][]string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset: no columns")
	}
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("dataset: column %d has an empty name", i+1)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("dataset: duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}

	for i, r := range rows {
		switch {
		case len(r) > len(columns):
			return nil, fmt.Errorf("dataset: row %d has %d values, header has %d", i+1, len(r), len(columns))
		case len(r) < len(columns):
			padded := make([]string, len(columns))
			copy(padded, r)
			rows[i] = padded
		}
	}

	return &Dataset{Columns: columns, Rows: rows}, nil
}

// Len returns the number of data rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// Index returns the position of a column, or -1. Matching is case-sensitive.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the dataset has a column with exactly this name.
func (d *Dataset) Has(name string) bool { return d.Index(name) >= 0 }

// Column returns the values of column i in row order.
func (d *Dataset) Column(i int) []string {
	out := make([]string, len(d.Rows))
	for r, row := range d.Rows {
		out[r] = row[i]
	}
	return out
}

// CleanHeader trims header names, strips a leading UTF-8 BOM from the first
// one and names blank columns "unnamed_<n>" (1-based position).
func CleanHeader(hdr []string) []string {
	out := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("unnamed_%d", i+1)
		}
		out[i] = h
	}
	return out
}
