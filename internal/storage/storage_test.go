package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Panics(t *testing.T) {
	noop := func(context.Context, Config) (Store, error) { return nil, nil }

	assert.Panics(t, func() { Register("", noop) })
	assert.Panics(t, func() { Register("test-nil", nil) })

	Register("test-dup", noop)
	assert.Panics(t, func() { Register("test-dup", noop) })
	assert.Contains(t, Kinds(), "test-dup")
}

func TestIdentifierLimit(t *testing.T) {
	RegisterIdentifierLimit("test-limit", 30)
	assert.Equal(t, 30, IdentifierLimit("test-limit"))
	assert.Zero(t, IdentifierLimit("test-unknown"))
}

func TestOpen_WrapsFailuresAsConnectionError(t *testing.T) {
	boom := errors.New("dial tcp: refused")
	Register("test-fail", func(context.Context, Config) (Store, error) { return nil, boom })

	tests := []struct {
		name string
		kind string
	}{
		{name: "empty_kind", kind: ""},
		{name: "unknown_kind", kind: "oracle"},
		{name: "factory_error", kind: "test-fail"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(context.Background(), Config{Kind: tc.kind})
			var ce *ConnectionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.kind, ce.Kind)
		})
	}

	_, err := Open(context.Background(), Config{Kind: "test-fail"})
	assert.ErrorIs(t, err, boom)
}

func TestConstraintName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "customers_email_key", ConstraintName("customers", "email", 63))
	assert.Equal(t, "customers_email_key", ConstraintName("customers", "email", 0))

	long := strings.Repeat("t", 60)
	got := ConstraintName(long, "email", 63)
	assert.Len(t, got, 63)
	assert.Equal(t, got, ConstraintName(long, "email", 63), "must be deterministic")
	assert.NotEqual(t, got, ConstraintName(long, "id", 63), "must differ per column")
	assert.True(t, strings.HasPrefix(got, long[:40]))
}

func TestConstraintName_DoesNotSplitRunes(t *testing.T) {
	t.Parallel()

	got := ConstraintName(strings.Repeat("é", 40), "c", 63)
	assert.LessOrEqual(t, len(got), 63)
	assert.True(t, strings.ToValidUTF8(got, "?") == got)
}

func TestValidateIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		max     int
		wantErr bool
	}{
		{name: "plain", in: "customers", max: 63},
		{name: "quotes_are_fine", in: `we"ird`, max: 63},
		{name: "empty", in: "", wantErr: true},
		{name: "blank", in: "   ", wantErr: true},
		{name: "nul", in: "a\x00b", wantErr: true},
		{name: "invalid_utf8", in: "a\xffb", wantErr: true},
		{name: "too_long", in: strings.Repeat("a", 64), max: 63, wantErr: true},
		{name: "no_limit", in: strings.Repeat("a", 300), max: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateIdentifier(tc.in, tc.max)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTableSpec(t *testing.T) {
	t.Parallel()

	ok := TableSpec{Name: "t", Columns: []ColumnSpec{{Name: "id"}}, NaturalKey: []string{"id"}}
	require.NoError(t, ValidateTableSpec(ok, 63))

	noCols := TableSpec{Name: "t"}
	assert.Error(t, ValidateTableSpec(noCols, 63))

	badKey := TableSpec{Name: "t", Columns: []ColumnSpec{{Name: "a"}}, NaturalKey: []string{"id"}}
	assert.Error(t, ValidateTableSpec(badKey, 63))

	collides := TableSpec{Name: "t", Columns: []ColumnSpec{{Name: SurrogateKeyColumn}}}
	assert.Error(t, ValidateTableSpec(collides, 63))

	badSchema := TableSpec{Schema: "\x00", Name: "t", Columns: []ColumnSpec{{Name: "a"}}}
	assert.Error(t, ValidateTableSpec(badSchema, 63))
}

func TestSyncResult_WarnAndFail(t *testing.T) {
	t.Parallel()

	var r SyncResult
	assert.Equal(t, Synchronized, r.Status)

	r.Warn("constraint failed")
	assert.Equal(t, SynchronizedWithWarning, r.Status)

	r.Fail("catalog unreadable")
	r.Warn("late warning")
	assert.Equal(t, SyncFailed, r.Status, "warn never upgrades a failure")
	assert.Len(t, r.Reasons, 3)
	assert.Equal(t, "failed", r.Status.String())
}

func TestTableSpec_Helpers(t *testing.T) {
	t.Parallel()

	spec := TableSpec{
		Schema:     "public",
		Name:       "users",
		Columns:    []ColumnSpec{{Name: "email"}, {Name: "age", Type: Numeric}},
		NaturalKey: []string{"email"},
	}
	assert.Equal(t, "public.users", spec.QualifiedName())
	assert.Equal(t, []string{"email", "age"}, spec.ColumnNames())
	assert.True(t, spec.IsKeyColumn("email"))
	assert.False(t, spec.IsKeyColumn("age"))

	c, ok := spec.Column("age")
	require.True(t, ok)
	assert.Equal(t, "numeric", c.Type.String())
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	tests := []struct {
		in   any
		typ  ColumnType
		want string
	}{
		{nil, Numeric, ""},
		{"42", Numeric, "42"},
		{"42.0", Numeric, "42"},
		{"042", Numeric, "42"},
		{"-0.50", Numeric, "-1/2"},
		{"042", Text, "042"},
		{" a ", Text, " a "},
		{ts, Timestamp, "2024-01-02T02:04:05Z"},
		{ts.UTC(), Timestamp, "2024-01-02T02:04:05Z"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeKey(tc.in, tc.typ), "%v (%s)", tc.in, tc.typ)
	}
}

func TestColumnType_Text(t *testing.T) {
	t.Parallel()

	for _, ct := range []ColumnType{Text, Numeric, Timestamp} {
		b, err := ct.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", ct, err)
		}
		var back ColumnType
		if err := back.UnmarshalText(b); err != nil || back != ct {
			t.Fatalf("UnmarshalText(%q) = %v, %v; want %v", b, back, err, ct)
		}
	}
	var ct ColumnType
	if err := ct.UnmarshalText([]byte("blob")); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
