package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding/charmap"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key    string
		format Format
		comp   Compression
	}{
		{"raw/customers.csv", FormatCSV, CompressionNone},
		{"raw/CUSTOMERS.CSV", FormatCSV, CompressionNone},
		{"raw/events.tsv.gz", FormatTSV, CompressionGZ},
		{"a/b/c.ndjson.zst", FormatJSON, CompressionZSTD},
		{"x.jsonl.xz", FormatJSON, CompressionXZ},
		{"book.xlsx", FormatXLSX, CompressionNone},
		{"book.xlsx.gz", FormatUnknown, CompressionGZ},
		{"notes.txt", FormatUnknown, CompressionNone},
		{"archive.gz", FormatUnknown, CompressionGZ},
		{"raw/", FormatUnknown, CompressionNone},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			f, c := Detect(tt.key)
			assert.Equal(t, tt.format, f)
			assert.Equal(t, tt.comp, c)
			assert.Equal(t, tt.format != FormatUnknown, IsTabular(tt.key))
		})
	}
}

const sample = "id,name,value\n1,test1,100\n2,test2,200\n"

func compress(t *testing.T, c Compression, data string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	switch c {
	case CompressionGZ:
		w := gzip.NewWriter(&buf)
		_, err := w.Write([]byte(data))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CompressionZSTD:
		w, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write([]byte(data))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CompressionXZ:
		w, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write([]byte(data))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		buf.WriteString(data)
	}
	return &buf
}

func TestDecode_Compressed(t *testing.T) {
	t.Parallel()

	for key, c := range map[string]Compression{
		"t.csv":     CompressionNone,
		"t.csv.gz":  CompressionGZ,
		"t.csv.zst": CompressionZSTD,
		"t.csv.xz":  CompressionXZ,
	} {
		t.Run(key, func(t *testing.T) {
			ds, err := Decode(key, compress(t, c, sample), Options{})
			require.NoError(t, err)
			assert.Equal(t, []string{"id", "name", "value"}, ds.Columns)
			assert.Equal(t, [][]string{{"1", "test1", "100"}, {"2", "test2", "200"}}, ds.Rows)
		})
	}
}

func TestDecode_DelimiterAndTSV(t *testing.T) {
	t.Parallel()

	ds, err := Decode("t.csv", strings.NewReader("a;b\n1;2\n"), Options{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ds.Columns)

	ds, err = Decode("t.tsv", strings.NewReader("a\tb\n1\t2\n"), Options{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ds.Rows[0])
}

func TestDecode_JSONLinesKeepsNestedArrays(t *testing.T) {
	t.Parallel()

	line := `{"id":7,"items":[{"sku":"a"},{"sku":"b"}]}` + "\n"
	for _, key := range []string{"orders.ndjson", "orders.JSONL", "orders.json"} {
		ds, err := Decode(key, strings.NewReader(line), Options{})
		require.NoError(t, err, key)
		assert.Equal(t, []string{"id", "items"}, ds.Columns, key)
		assert.Equal(t, 1, ds.Len(), key)
	}

	envelope := `{"data":[{"id":1},{"id":2}]}`
	ds, err := Decode("page.json", strings.NewReader(envelope), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	ds, err = Decode("page.ndjson", strings.NewReader(envelope), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"data"}, ds.Columns)
}

func TestDecode_Transcodes(t *testing.T) {
	t.Parallel()

	encoded, err := charmap.Windows1250.NewEncoder().String("id,město\n1,Plzeň\n")
	require.NoError(t, err)

	ds, err := Decode("t.csv", strings.NewReader(encoded), Options{Encoding: "windows-1250"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "město"}, ds.Columns)
	assert.Equal(t, "Plzeň", ds.Rows[0][1])
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	_, err := Decode("t.txt", strings.NewReader(sample), Options{})
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = Decode("t.csv", strings.NewReader(sample), Options{Encoding: "klingon"})
	assert.ErrorContains(t, err, "unknown encoding")

	_, err = Decode("t.csv.gz", strings.NewReader("not gzip"), Options{})
	assert.Error(t, err)

	_, err = Decode("t.csv", strings.NewReader(""), Options{})
	assert.Error(t, err)
}
