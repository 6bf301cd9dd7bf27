// Package parser turns the bytes of a tabular object into a dataset.Dataset.
//
// The decoder is chosen from the object key's extension; an optional
// compression suffix (.gz, .zst, .xz) is peeled off first. Text formats can be
// transcoded from a legacy encoding before decoding.
package parser

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/euoc/aws-data-pipeline/internal/dataset"
	"github.com/euoc/aws-data-pipeline/internal/parser/csv"
	"github.com/euoc/aws-data-pipeline/internal/parser/json"
	"github.com/euoc/aws-data-pipeline/internal/parser/xlsx"
)

// Format is a decodable file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTSV
	FormatJSON
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatTSV:
		return "tsv"
	case FormatJSON:
		return "json"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

var formatsByExt = map[string]Format{
	".csv":    FormatCSV,
	".tsv":    FormatTSV,
	".json":   FormatJSON,
	".ndjson": FormatJSON,
	".jsonl":  FormatJSON,
	".xlsx":   FormatXLSX,
}

// Options tunes decoding.
type Options struct {
	// Delimiter for FormatCSV. Zero means ','. TSV always uses '\t'.
	Delimiter rune
	// Encoding is a WHATWG encoding label ("utf-8", "windows-1250", ...).
	// Empty means UTF-8.
	Encoding string
}

// Detect returns the format and compression for an object key.
// Matching is case-insensitive.
func Detect(key string) (Format, Compression) {
	f, comp, _ := detect(key)
	return f, comp
}

// detect also returns the format extension, which tells JSON documents from
// JSON Lines.
func detect(key string) (Format, Compression, string) {
	name := strings.ToLower(path.Base(key))

	comp := CompressionNone
	for c, ext := range compressionExt {
		if strings.HasSuffix(name, ext) {
			comp = c
			name = strings.TrimSuffix(name, ext)
			break
		}
	}

	ext := path.Ext(name)
	f, ok := formatsByExt[ext]
	if !ok {
		return FormatUnknown, comp, ext
	}
	// Workbooks are already ZIP archives.
	if f == FormatXLSX && comp != CompressionNone {
		return FormatUnknown, comp, ext
	}
	return f, comp, ext
}

// IsTabular reports whether key names a file this package can decode.
func IsTabular(key string) bool {
	f, _ := Detect(key)
	return f != FormatUnknown
}

// Decode decompresses, transcodes and decodes r according to key.
//
// Errors:
//   - unsupported extension, unknown encoding label, corrupt compression
//     stream, or any decoder error. The caller wraps them as ingestion errors.
func Decode(key string, r io.Reader, opt Options) (*dataset.Dataset, error) {
	format, comp, ext := detect(key)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unsupported file type: %s", path.Base(key))
	}

	dr, closeFn, err := decompress(r, comp)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeFn() }()

	if format != FormatXLSX {
		dr, err = transcode(dr, opt.Encoding)
		if err != nil {
			return nil, err
		}
	}

	var ds *dataset.Dataset
	switch format {
	case FormatCSV:
		comma := opt.Delimiter
		if comma == 0 {
			comma = ','
		}
		ds, err = csv.Read(dr, comma)
	case FormatTSV:
		ds, err = csv.Read(dr, '\t')
	case FormatJSON:
		if ext == ".json" {
			ds, err = json.Read(dr)
		} else {
			ds, err = json.ReadLines(dr)
		}
	case FormatXLSX:
		ds, err = xlsx.Read(dr)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return ds, nil
}
