// Package schema derives a table layout from an untyped dataset: one storage
// type per column and the natural key used for upserts.
//
// Everything here is a pure function of the raw string values. No decoder or
// database is involved.
package schema

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/euoc/aws-data-pipeline/internal/dataset"
	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// InferColumns returns one ColumnSpec per dataset column, in header order.
func InferColumns(ds *dataset.Dataset) []storage.ColumnSpec {
	out := make([]storage.ColumnSpec, len(ds.Columns))
	for i, name := range ds.Columns {
		out[i] = storage.ColumnSpec{Name: name, Type: InferType(ds.Column(i))}
	}
	return out
}

// InferType classifies a column by probing each candidate type in order and
// picking the first one every non-empty value satisfies:
//
//	Numeric -> Timestamp -> Text
//
// Empty (after trimming) values are absent and never disqualify a type. A
// column with no non-empty values is Text.
func InferType(values []string) storage.ColumnType {
	var seen bool
	allNum := true
	allTS := true

	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		seen = true

		if allNum {
			if _, ok := ParseNumber(v); !ok {
				allNum = false
			}
		}
		if allTS {
			if _, ok := ParseTimestamp(v); !ok {
				allTS = false
			}
		}
		if !allNum && !allTS {
			return storage.Text
		}
	}

	switch {
	case !seen:
		return storage.Text
	case allNum:
		return storage.Numeric
	case allTS:
		return storage.Timestamp
	default:
		return storage.Text
	}
}

// ParseNumber reports whether s is a finite decimal or integer literal.
//
// strconv.ParseFloat alone is too permissive for a database column: it also
// accepts "NaN", "Inf" and hexadecimal floats ("0x1p-2"), none of which a
// NUMERIC column will take.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.ContainsAny(s, "xXpP_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out-of-range literals are still numbers; NUMERIC has no float range.
		if !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
	}
	if math.IsNaN(f) || (math.IsInf(f, 0) && err == nil) {
		return 0, false
	}
	return f, true
}

// tsLayouts is the ordered list of accepted date-time layouts. The first
// layout that parses wins, which settles ambiguous day/month orders.
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"01/02/2006 15:04:05",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp parses s with the first matching layout. Values without a
// zone are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, lay := range tsLayouts {
		if t, err := time.ParseInLocation(lay, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
