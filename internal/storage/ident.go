package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidateIdentifier rejects names that cannot be safely quoted as a single
// SQL identifier.
//
// Quoting (pgIdent, sqlIdent, mssqlIdent) already neutralizes embedded quote
// characters; this check covers what quoting cannot: empty names, NUL bytes,
// invalid UTF-8, and names the backend would silently truncate (which would
// make catalog lookups by exact name miss).
func ValidateIdentifier(name string, maxLen int) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("identifier is empty")
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("identifier %q contains a NUL byte", name)
	case !utf8.ValidString(name):
		return fmt.Errorf("identifier %q is not valid UTF-8", name)
	case maxLen > 0 && len(name) > maxLen:
		return fmt.Errorf("identifier %q is longer than %d bytes", name, maxLen)
	}
	return nil
}

// ValidateTableSpec checks every identifier of t against maxLen.
func ValidateTableSpec(t TableSpec, maxLen int) error {
	if t.Schema != "" {
		if err := ValidateIdentifier(t.Schema, maxLen); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	if err := ValidateIdentifier(t.Name, maxLen); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	for _, c := range t.Columns {
		if err := ValidateIdentifier(c.Name, maxLen); err != nil {
			return fmt.Errorf("table %s: column: %w", t.Name, err)
		}
		if c.Name == SurrogateKeyColumn && len(t.NaturalKey) == 0 {
			return fmt.Errorf("table %s: column %q collides with the generated surrogate key", t.Name, c.Name)
		}
	}
	for _, k := range t.NaturalKey {
		if _, ok := t.Column(k); !ok {
			return fmt.Errorf("table %s: natural key column %q is not a table column", t.Name, k)
		}
	}
	return nil
}

// ConstraintName returns the deterministic uniqueness constraint name for a
// key column: "{table}_{column}_key".
//
// When the name exceeds maxLen it is cut and suffixed with 8 hex chars of a
// sha256 of the full name, so the result is stable across runs and still
// unique per (table, column).
func ConstraintName(table, column string, maxLen int) string {
	name := table + "_" + column + "_key"
	if maxLen <= 0 || len(name) <= maxLen {
		return name
	}

	sum := sha256.Sum256([]byte(name))
	suffix := "_" + hex.EncodeToString(sum[:])[:8]

	cut := maxLen - len(suffix)
	// Never split a multi-byte rune.
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + suffix
}
