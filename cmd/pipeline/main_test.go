package main

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/euoc/aws-data-pipeline/internal/config"
	"github.com/euoc/aws-data-pipeline/internal/storage"
)

var managedEnv = []string{
	"S3_BUCKET", "S3_PREFIX", "S3_ENDPOINT", "S3_USE_PATH_STYLE",
	"DB_KIND", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
	"DB_SECRET_NAME", "DB_IAM_AUTH", "DB_SSLMODE", "DB_SCHEMA", "DB_DSN", "DB_CONNECT_TIMEOUT",
	"LOAD_STAMP_COLUMN", "SOURCE_ENCODING", "CSV_DELIMITER", "SWEEP_CONTINUE_ON_ERROR",
	"LOG_LEVEL", "LOG_FORMAT", "METRICS_BACKEND", "PUSHGATEWAY_URL", "METRICS_TAGS", "METRICS_JOB",
}

// cleanEnv blanks every variable the CLI reads, then applies kv pairs.
func cleanEnv(t *testing.T, kv ...string) {
	t.Helper()
	for _, k := range managedEnv {
		t.Setenv(k, "")
	}
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	for i := 0; i+1 < len(kv); i += 2 {
		t.Setenv(kv[i], kv[i+1])
	}
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(append([]string{"--env-file", ""}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestProbe_PrintsPlan(t *testing.T) {
	cleanEnv(t)
	path := writeFile(t, "Customers.csv", "id,name,joined\n1,a,2024-01-02\n2,b,2024-02-03\n")

	code, out, stderr := run(t, "probe", path)
	require.Equal(t, exitOK, code, stderr)

	var got struct {
		Table       string            `json:"table"`
		Rows        int               `json:"rows"`
		Surrogate   string            `json:"surrogate_key"`
		Constraints []string          `json:"constraints"`
		Spec        storage.TableSpec `json:"spec"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "customers", got.Table)
	assert.Equal(t, 2, got.Rows)
	assert.Empty(t, got.Surrogate)
	assert.Equal(t, []string{"customers_id_key"}, got.Constraints)
	assert.Equal(t, []string{"id"}, got.Spec.NaturalKey)
	assert.Contains(t, out, `"type": "timestamp"`)
}

func TestProbe_NoKeyUsesSurrogate(t *testing.T) {
	cleanEnv(t)
	path := writeFile(t, "events.csv", "x,y\n1,2\n")

	code, out, _ := run(t, "probe", path, "--table", "Custom")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, `"table": "Custom"`)
	assert.Contains(t, out, `"surrogate_key": "record_id"`)
}

func TestProbe_ConstraintNamesFollowBackendLimit(t *testing.T) {
	long := strings.Repeat("quarterly_", 6)
	path := writeFile(t, "t.csv", "id\n1\n")

	for _, tc := range []struct {
		kind  string
		limit int
	}{
		{"postgres", 63},
		{"mssql", 128},
		{"sqlite", 0},
	} {
		cleanEnv(t, "DB_KIND", tc.kind)
		code, out, stderr := run(t, "probe", path, "--table", long)
		require.Equal(t, exitOK, code, stderr)

		var got struct {
			Backend     string   `json:"backend"`
			Constraints []string `json:"constraints"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got), out)
		assert.Equal(t, tc.kind, got.Backend)
		assert.Equal(t, []string{storage.ConstraintName(long, "id", tc.limit)}, got.Constraints, tc.kind)
	}
	assert.NotEqual(t, storage.ConstraintName(long, "id", 63), storage.ConstraintName(long, "id", 0))

	cleanEnv(t, "DB_KIND", "postgres")
	code, _, stderr := run(t, "probe", path, "--table", long+long)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "longer than 63 bytes")
}

func TestProbe_Report(t *testing.T) {
	cleanEnv(t)
	path := writeFile(t, "t.csv", "id,plan\n1,free\n2,free\n")

	code, out, _ := run(t, "probe", "--report", path)
	require.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(out, "uniqueness report:\trows=2"), out)
}

func TestProbe_BadDelimiterIsConfigError(t *testing.T) {
	cleanEnv(t, "CSV_DELIMITER", "ab")
	path := writeFile(t, "t.csv", "id\n1\n")

	code, _, stderr := run(t, "probe", path)
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "CSV_DELIMITER")
}

func TestLoad_LocalFileIntoSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	cleanEnv(t, "DB_KIND", "sqlite", "DB_DSN", dbPath, "LOG_LEVEL", "error")
	path := writeFile(t, "people.csv", "id,name\n1,a\n2,b\n")

	code, out, stderr := run(t, "load", path)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "loaded 2 rows into people (synchronized)\n", out)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM people`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestLoad_MissingFileFails(t *testing.T) {
	cleanEnv(t, "DB_KIND", "sqlite", "DB_DSN", filepath.Join(t.TempDir(), "cli.db"), "LOG_LEVEL", "error")

	code, _, stderr := run(t, "load", filepath.Join(t.TempDir(), "absent.csv"))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "object not found")
}

func TestConfigErrorsExitTwo(t *testing.T) {
	tests := []struct {
		name string
		env  []string
		args []string
		want string
	}{
		{name: "unknown_kind", env: []string{"DB_KIND", "oracle"}, args: []string{"load", "x.csv"}, want: "DB_KIND"},
		{name: "network_without_host", args: []string{"load", "x.csv"}, want: "DB_HOST"},
		{name: "sweep_without_bucket", env: []string{"DB_KIND", "sqlite", "DB_DSN", "x.db"}, args: []string{"sweep"}, want: "S3_BUCKET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t, tt.env...)
			code, _, stderr := run(t, tt.args...)
			assert.Equal(t, exitConfig, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestUsageErrorExitsOne(t *testing.T) {
	cleanEnv(t)
	code, _, _ := run(t, "load")
	assert.Equal(t, exitFailure, code)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(errors.New("x")))
	assert.Equal(t, exitConfig, exitCode(fmt.Errorf("wrapped: %w", &config.Error{})))
	assert.Equal(t, exitFailure, exitCode(&storage.ConnectionError{Kind: "postgres", Err: errors.New("refused")}))
}
