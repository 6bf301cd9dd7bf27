package postgres

import (
	"fmt"
	"strings"

	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// maxIdentifierLength is NAMEDATALEN-1. Longer names are silently truncated
// by the server, which would break exact-name catalog lookups.
const maxIdentifierLength = 63

// pgIdent quotes a single identifier, doubling embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgTable renders the (optionally schema-qualified) quoted table name.
func pgTable(t storage.TableSpec) string {
	if strings.TrimSpace(t.Schema) == "" {
		return pgIdent(t.Name)
	}
	return pgIdent(t.Schema) + "." + pgIdent(t.Name)
}

// pgType maps an inferred column type to its Postgres storage type.
func pgType(ct storage.ColumnType) string {
	switch ct {
	case storage.Numeric:
		return "NUMERIC"
	case storage.Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// buildCreateSQL builds the create-if-absent DDL for t.
//
// Behavior:
//   - schemaSQL is empty unless t.Schema is set.
//   - A SERIAL surrogate primary key is prepended only when t has no natural key.
//   - Uniqueness for natural-key columns is NOT declared here; it is added by
//     name afterwards so that tables created by older runs converge too.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("table %s: no columns", t.Name)
	}

	if strings.TrimSpace(t.Schema) != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(t.Schema))
	}

	defs := make([]string, 0, len(t.Columns)+1)
	if len(t.NaturalKey) == 0 {
		defs = append(defs, fmt.Sprintf(`%s SERIAL PRIMARY KEY`, pgIdent(storage.SurrogateKeyColumn)))
	}
	for _, c := range t.Columns {
		defs = append(defs, fmt.Sprintf(`%s %s`, pgIdent(c.Name), pgType(c.Type)))
	}

	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgTable(t), strings.Join(defs, ", "))
	return schemaSQL, tableSQL, nil
}

// buildAddUniqueSQL builds the named single-column uniqueness constraint DDL.
func buildAddUniqueSQL(t storage.TableSpec, name, column string) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s);`,
		pgTable(t), pgIdent(name), pgIdent(column))
}

// buildUpsertSQL constructs a single-row INSERT for Postgres.
//
// Why this exists:
//   - It is pure and deterministic, so placeholder numbering and the conflict
//     clause can be unit tested without a database.
//
// Behavior:
//   - No natural key: plain INSERT.
//   - Natural key: ON CONFLICT (<key>) DO UPDATE SET c = EXCLUDED.c for every
//     written non-key column.
//   - Natural key and every written column is a key column: DO NOTHING.
//
// Constraints:
//   - columns must be non-empty and contain every natural-key column.
func buildUpsertSQL(t storage.TableSpec, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTable(t))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
	}
	b.WriteString(")")

	if len(t.NaturalKey) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, k := range t.NaturalKey {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(k))
		}
		b.WriteString(")")

		var sets []string
		for _, c := range columns {
			if t.IsKeyColumn(c) {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(c), pgIdent(c)))
		}
		if len(sets) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET ")
			b.WriteString(strings.Join(sets, ", "))
		}
	}

	b.WriteString(";")
	return b.String()
}

// Catalog lookups. The schema parameter falls back to current_schema() so an
// unqualified TableSpec resolves the same table the DDL created.
const (
	selectColumnsSQL = `SELECT column_name
FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
  AND table_name = $2
ORDER BY ordinal_position;`

	selectConstraintSQL = `SELECT EXISTS (
  SELECT 1
  FROM information_schema.table_constraints
  WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
    AND table_name = $2
    AND constraint_name = $3
    AND constraint_type = 'UNIQUE'
);`
)
