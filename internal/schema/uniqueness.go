package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/euoc/aws-data-pipeline/internal/dataset"
)

const distinctCapPerColumn = 10000

// Uniqueness holds bounded per-column distinct counts for a dataset.
//
// PerColumnTotal is the number of rows where the column had a non-empty value
// and is the only correct denominator for ratios. TotalRows is informational.
type Uniqueness struct {
	TotalRows         int
	PerColumnTotal    map[string]int
	PerColumnDistinct map[string]int
	PerColumnCapped   map[string]bool
	ColumnOrder       []string
}

// ComputeUniqueness scans ds and counts distinct non-empty values per column.
//
// Distinct counting is capped at distinctCapPerColumn per column; once the cap
// is hit the set is dropped and the column is marked capped, so high
// cardinality columns (UUIDs, row ids) cannot grow memory without bound.
func ComputeUniqueness(ds *dataset.Dataset) Uniqueness {
	stats := Uniqueness{
		PerColumnTotal:    make(map[string]int, len(ds.Columns)),
		PerColumnDistinct: make(map[string]int, len(ds.Columns)),
		PerColumnCapped:   make(map[string]bool, len(ds.Columns)),
		ColumnOrder:       append([]string(nil), ds.Columns...),
	}
	if ds.Len() == 0 {
		return stats
	}

	sets := make([]map[string]struct{}, len(ds.Columns))
	for i := range sets {
		sets[i] = make(map[string]struct{})
	}

	for _, r := range ds.Rows {
		stats.TotalRows++
		for i, col := range ds.Columns {
			v := strings.TrimSpace(r[i])
			if v == "" {
				continue
			}
			stats.PerColumnTotal[col]++

			if stats.PerColumnCapped[col] {
				continue
			}
			sets[i][v] = struct{}{}
			if len(sets[i]) >= distinctCapPerColumn {
				stats.PerColumnCapped[col] = true
				sets[i] = nil
			}
		}
	}

	for i, col := range ds.Columns {
		if stats.PerColumnCapped[col] {
			stats.PerColumnDistinct[col] = distinctCapPerColumn
			continue
		}
		stats.PerColumnDistinct[col] = len(sets[i])
	}
	return stats
}

// Unique reports whether every non-empty value of col is distinct.
// Capped columns are reported as not provably unique.
func (u Uniqueness) Unique(col string) bool {
	if u.PerColumnCapped[col] {
		return false
	}
	den := u.PerColumnTotal[col]
	return den > 0 && u.PerColumnDistinct[col] == den
}

// Format renders a tab-separated report, least unique columns first.
func (u Uniqueness) Format() string {
	if u.TotalRows <= 0 {
		return "uniqueness: no rows"
	}

	type row struct {
		Col    string
		Dist   int
		Ratio  float64
		Capped bool
		Den    int
	}

	rows := make([]row, 0, len(u.ColumnOrder))
	for _, col := range u.ColumnOrder {
		den := u.PerColumnTotal[col]
		if den <= 0 {
			// No values observed for this column; omit from report.
			continue
		}
		d := u.PerColumnDistinct[col]
		rows = append(rows, row{
			Col:    col,
			Dist:   d,
			Ratio:  float64(d) / float64(den),
			Capped: u.PerColumnCapped[col],
			Den:    den,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Ratio == rows[j].Ratio {
			return rows[i].Col < rows[j].Col
		}
		return rows[i].Ratio < rows[j].Ratio
	})

	var b strings.Builder
	fmt.Fprintf(&b, "uniqueness report:\trows=%d\n", u.TotalRows)
	fmt.Fprintf(&b, "%-15s\t%-7s\t%-7s\tratio\tcapped\n", "col", "unique", "rows")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-15s\t%-7d\t%d\t%.1f%%\t%t\n", r.Col, r.Dist, r.Den, r.Ratio*100, r.Capped)
	}
	return strings.TrimRight(b.String(), "\n")
}
