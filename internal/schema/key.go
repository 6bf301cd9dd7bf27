package schema

// naturalKeyCandidates is checked in order; the first column present wins.
var naturalKeyCandidates = []string{"id", "email"}

// DetectNaturalKey returns the natural key for a header, or nil.
//
// Matching is exact and case-sensitive: "ID" or "Email" are not keys. The
// result has at most one column.
func DetectNaturalKey(columns []string) []string {
	for _, cand := range naturalKeyCandidates {
		for _, c := range columns {
			if c == cand {
				return []string{cand}
			}
		}
	}
	return nil
}
