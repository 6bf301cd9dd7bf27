package mssql

import (
	"fmt"
	"strings"

	"github.com/euoc/aws-data-pipeline/internal/storage"
)

// maxIdentifierLength is the sysname limit.
const maxIdentifierLength = 128

// mssqlIdent returns a bracket-quoted identifier.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns the bracket-quoted, optionally schema-qualified
// table name.
//
// Example:
//
//	{Schema: "dbo", Name: "imports"} -> [dbo].[imports]
func mssqlTableIdent(t storage.TableSpec) string {
	if strings.TrimSpace(t.Schema) == "" {
		return mssqlIdent(t.Name)
	}
	return mssqlIdent(t.Schema) + "." + mssqlIdent(t.Name)
}

// mssqlType maps an inferred type to a SQL Server column type.
//
// Key columns cannot be NVARCHAR(MAX): a unique index key is capped at 900
// bytes, so text keys use NVARCHAR(450).
func mssqlType(c storage.ColumnSpec, isKey bool) string {
	switch c.Type {
	case storage.Numeric:
		return "DECIMAL(38,10)"
	case storage.Timestamp:
		return "DATETIME2"
	default:
		if isKey {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

// buildCreateSQL returns the schema and table DDL batches.
//
// Both are wrapped in catalog guards (SCHEMA_ID / OBJECT_ID) because SQL
// Server has no IF NOT EXISTS for CREATE TABLE. The guarded name is passed as
// @p1, never interpolated.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("mssql: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("mssql: table %s has no columns", t.Name)
	}

	if strings.TrimSpace(t.Schema) != "" {
		schemaSQL = "IF SCHEMA_ID(@p1) IS NULL EXEC(N'CREATE SCHEMA ' + QUOTENAME(@p1));"
	}

	parts := make([]string, 0, len(t.Columns)+1)
	if len(t.NaturalKey) == 0 {
		parts = append(parts, fmt.Sprintf("%s INT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(storage.SurrogateKeyColumn)))
	}
	for _, c := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s NULL", mssqlIdent(c.Name), mssqlType(c, t.IsKeyColumn(c.Name))))
	}

	tableSQL = fmt.Sprintf(
		"IF OBJECT_ID(@p1, N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		mssqlTableIdent(t),
		strings.Join(parts, ", "),
	)
	return schemaSQL, tableSQL, nil
}

func buildAddUniqueSQL(t storage.TableSpec, name, column string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s);",
		mssqlTableIdent(t), mssqlIdent(name), mssqlIdent(column))
}

// buildUpsertSQL constructs a single-row write for SQL Server.
//
// Behavior:
//   - No natural key: plain INSERT.
//   - Natural key: MERGE ... WITH (HOLDLOCK) keyed on the natural key, which
//     serializes concurrent writers on the same key. When every written column
//     is a key column there is no WHEN MATCHED branch.
//
// Parameters are @p1..@pN in column order.
func buildUpsertSQL(t storage.TableSpec, columns []string) string {
	params := make([]string, len(columns))
	idents := make([]string, len(columns))
	for i, c := range columns {
		params[i] = fmt.Sprintf("@p%d", i+1)
		idents[i] = mssqlIdent(c)
	}

	if len(t.NaturalKey) == 0 {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
			mssqlTableIdent(t), strings.Join(idents, ", "), strings.Join(params, ", "))
	}

	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(mssqlTableIdent(t))
	b.WriteString(" WITH (HOLDLOCK) AS tgt USING (SELECT ")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(params[i])
		b.WriteString(" AS ")
		b.WriteString(idents[i])
	}
	b.WriteString(") AS src ON ")
	for i, k := range t.NaturalKey {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "tgt.%s = src.%s", mssqlIdent(k), mssqlIdent(k))
	}

	var sets []string
	for _, c := range columns {
		if t.IsKeyColumn(c) {
			continue
		}
		sets = append(sets, fmt.Sprintf("tgt.%s = src.%s", mssqlIdent(c), mssqlIdent(c)))
	}
	if len(sets) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}

	srcCols := make([]string, len(columns))
	for i, id := range idents {
		srcCols[i] = "src." + id
	}
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(strings.Join(idents, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(srcCols, ", "))
	b.WriteString(");")
	return b.String()
}

const (
	selectColumnsSQL = `SELECT COLUMN_NAME
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, N''), SCHEMA_NAME())
  AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION;`

	selectConstraintSQL = `SELECT COUNT(*)
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS
WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, N''), SCHEMA_NAME())
  AND TABLE_NAME = @p2
  AND CONSTRAINT_NAME = @p3
  AND CONSTRAINT_TYPE = 'UNIQUE';`
)
