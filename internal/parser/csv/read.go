package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/euoc/aws-data-pipeline/internal/dataset"
)

// ErrNoHeader is returned for input without a header record.
var ErrNoHeader = errors.New("csv: no header row")

// Read decodes a delimited file with a mandatory header row into a Dataset.
//
// Behavior:
//   - Header names are trimmed; a leading UTF-8 BOM is stripped; blank names
//     become "unnamed_<n>".
//   - Cells are trimmed. Empty cells stay empty (written as NULL).
//   - Short records are padded; records longer than the header are an error
//     reported with their 1-based line number.
//   - Blank lines are skipped (encoding/csv behavior).
func Read(r io.Reader, comma rune) (*dataset.Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	hdr, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := dataset.CleanHeader(hdr)

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read: %w", err)
		}
		if len(rec) > len(columns) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(columns))
		}
		row := make([]string, len(rec))
		for i, v := range rec {
			row[i] = strings.TrimSpace(v)
		}
		rows = append(rows, row)
	}

	return dataset.New(columns, rows)
}
