// Package xlsx decodes the first worksheet of an Excel workbook.
package xlsx

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/euoc/aws-data-pipeline/internal/dataset"
)

// ErrNoHeader is returned when the first sheet has no non-empty row.
var ErrNoHeader = errors.New("xlsx: no header row")

// Read decodes the first sheet of the workbook in r.
//
// Leading empty rows are skipped; the first non-empty row is the header and
// follows the same rules as the CSV decoder. excelize omits trailing empty
// cells, so short rows are padded.
//
// The workbook is a ZIP archive, so excelize buffers the whole input.
func Read(r io.Reader) (*dataset.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx: no sheets")
	}
	sheet := sheets[0]

	iter, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("open rows of sheet %s: %w", sheet, err)
	}
	defer iter.Close()

	var (
		columns []string
		rows    [][]string
	)
	for n := 1; iter.Next(); n++ {
		rec, err := iter.Columns()
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", sheet, n, err)
		}
		if columns == nil {
			if len(rec) == 0 {
				continue
			}
			columns = dataset.CleanHeader(rec)
			continue
		}
		if len(rec) > len(columns) {
			return nil, fmt.Errorf("sheet %s row %d: %d cells, header has %d", sheet, n, len(rec), len(columns))
		}
		row := make([]string, len(rec))
		for i, v := range rec {
			row[i] = strings.TrimSpace(v)
		}
		rows = append(rows, row)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	if columns == nil {
		return nil, ErrNoHeader
	}

	return dataset.New(columns, rows)
}
