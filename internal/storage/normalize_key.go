package storage

import (
	"fmt"
	"math/big"
	"time"
)

// NormalizeKey converts a coerced natural-key value of a column of type t to
// the canonical string used for in-memory duplicate detection. Values the
// database treats as equal map to the same string: "1", "1.0" and "01" for
// NUMERIC, and one instant at different offsets for TIMESTAMP.
//
// NULL (nil) maps to "", which callers treat as never conflicting.
func NormalizeKey(v any, t ColumnType) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case string:
		if t == Numeric {
			var r big.Rat
			if _, ok := r.SetString(x); ok {
				return r.RatString()
			}
		}
		return x
	default:
		return fmt.Sprint(v)
	}
}
