package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/euoc/aws-data-pipeline/internal/storage"
)

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// schemaName returns the attached database the table lives in.
func schemaName(t storage.TableSpec) string {
	if s := strings.TrimSpace(t.Schema); s != "" {
		return s
	}
	return "main"
}

func sqlTable(t storage.TableSpec) string {
	return sqlIdent(schemaName(t)) + "." + sqlIdent(t.Name)
}

// sqliteType returns the declared column type.
//
// SQLite only cares about affinity: NUMERIC coerces "10" to an integer and
// "1.5" to a real; TIMESTAMP also gets NUMERIC affinity but RFC3339 text stays
// text, which is what formatSQLiteTime writes.
func sqliteType(ct storage.ColumnType) string {
	switch ct {
	case storage.Numeric:
		return "NUMERIC"
	case storage.Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// buildCreateSQL generates the create-if-absent DDL for t.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s: no columns", t.Name)
	}

	defs := make([]string, 0, len(t.Columns)+1)
	if len(t.NaturalKey) == 0 {
		defs = append(defs, fmt.Sprintf("%s INTEGER PRIMARY KEY AUTOINCREMENT", sqlIdent(storage.SurrogateKeyColumn)))
	}
	for _, c := range t.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", sqlIdent(c.Name), sqliteType(c.Type)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", sqlTable(t), strings.Join(defs, ", ")), nil
}

// buildAddUniqueSQL builds the uniqueness DDL.
//
// SQLite has no ALTER TABLE ... ADD CONSTRAINT. A named unique index is the
// equivalent and is accepted as an ON CONFLICT target.
func buildAddUniqueSQL(t storage.TableSpec, name, column string) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX %s.%s ON %s (%s);",
		sqlIdent(schemaName(t)), sqlIdent(name), sqlIdent(t.Name), sqlIdent(column))
}

// buildUpsertSQL constructs a single-row INSERT with the same conflict rules
// as the Postgres backend (SQLite >= 3.24 upsert syntax).
func buildUpsertSQL(t storage.TableSpec, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlTable(t))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES (")
	b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	b.WriteString(")")

	if len(t.NaturalKey) > 0 {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(joinIdentList(t.NaturalKey))
		b.WriteString(")")

		var sets []string
		for _, c := range columns {
			if t.IsKeyColumn(c) {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", sqlIdent(c), sqlIdent(c)))
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

func joinIdentList(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = sqlIdent(c)
	}
	return strings.Join(parts, ", ")
}

// bindValues converts values into what the driver stores predictably.
// time.Time becomes RFC3339Nano text; everything else passes through.
func bindValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if ts, ok := v.(time.Time); ok {
			out[i] = formatSQLiteTime(ts)
			continue
		}
		out[i] = v
	}
	return out
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
// We store timestamps as TEXT for reliable scanning/parsing with modernc.org/sqlite.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
