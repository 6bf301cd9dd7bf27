package loader

import "fmt"

// SchemaSyncError reports a fatal schema synchronization failure: an invalid
// identifier, a failed CREATE TABLE, or an unreadable catalog. Failing to add
// a uniqueness constraint is not fatal and never produces this error.
type SchemaSyncError struct {
	Table string
	Op    string // validate | create | catalog | columns
	Err   error
}

func (e *SchemaSyncError) Error() string {
	return fmt.Sprintf("schema sync %s (%s): %v", e.Table, e.Op, e.Err)
}

func (e *SchemaSyncError) Unwrap() error { return e.Err }

// WriteError reports a failed row write or commit. The whole load was rolled
// back. Row is 1-based in dataset order; 0 means the commit itself failed.
type WriteError struct {
	Table string
	Row   int
	Err   error
}

func (e *WriteError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("commit %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("write %s row %d: %v", e.Table, e.Row, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
