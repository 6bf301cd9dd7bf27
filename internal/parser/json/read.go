package json

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/euoc/aws-data-pipeline/internal/dataset"
)

// ErrNoRecords is returned when the input holds no JSON objects.
var ErrNoRecords = errors.New("json: no records")

// Read decodes a JSON document into a Dataset.
//
// Accepted shapes:
//   - a root array of objects;
//   - a stream of objects (one pretty-printed object, or several);
//   - a single envelope object whose only array-of-objects field holds the
//     records (e.g. {"data": [{...}, {...}], "meta": {...}}). An object with
//     any scalar field is a record, not an envelope.
//
// Columns are the sorted union of keys over all records. null and missing
// keys become empty values; numbers keep their literal text; nested objects
// and arrays are kept as compact JSON text.
func Read(r io.Reader) (*dataset.Dataset, error) {
	return read(r, true)
}

// ReadLines decodes NDJSON / JSON Lines. Every object is a record; a lone
// object is never unwrapped as an envelope.
func ReadLines(r io.Reader) (*dataset.Dataset, error) {
	return read(r, false)
}

func read(r io.Reader, envelope bool) (*dataset.Dataset, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, ErrNoRecords
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	var objs []map[string]any
	switch first {
	case '[':
		var arr []any
		if err := dec.Decode(&arr); err != nil {
			return nil, fmt.Errorf("json: decode array: %w", err)
		}
		objs, err = objectsOf(arr)
		if err != nil {
			return nil, err
		}
	case '{':
		for n := 1; ; n++ {
			var obj map[string]any
			err := dec.Decode(&obj)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("json: record %d: %w", n, err)
			}
			objs = append(objs, obj)
		}
		if envelope && len(objs) == 1 {
			if inner, ok := envelopeRecords(objs[0]); ok {
				objs = inner
			}
		}
	default:
		return nil, fmt.Errorf("json: unsupported root %q", first)
	}

	if len(objs) == 0 {
		return nil, ErrNoRecords
	}
	return toDataset(objs)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	// Skip a UTF-8 BOM.
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func objectsOf(arr []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(arr))
	for i, v := range arr {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("json: element %d is not an object", i+1)
		}
		out = append(out, obj)
	}
	return out, nil
}

// envelopeRecords returns the records of an envelope object: no scalar
// fields, exactly one field that is a non-empty array of objects, and no other
// array-of-objects fields.
func envelopeRecords(obj map[string]any) ([]map[string]any, bool) {
	var found []map[string]any
	count := 0
	for _, v := range obj {
		switch v.(type) {
		case []any, map[string]any:
		default:
			return nil, false
		}
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		objs, err := objectsOf(arr)
		if err != nil {
			continue
		}
		found = objs
		count++
	}
	if count != 1 {
		return nil, false
	}
	return found, true
}

func toDataset(objs []map[string]any) (*dataset.Dataset, error) {
	keys := map[string]struct{}{}
	for _, o := range objs {
		for k := range o {
			keys[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(keys))
	for k := range keys {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	rows := make([][]string, len(objs))
	for i, o := range objs {
		row := make([]string, len(columns))
		for j, c := range columns {
			s, err := scalarString(o[c])
			if err != nil {
				return nil, fmt.Errorf("json: record %d field %q: %w", i+1, c, err)
			}
			row[j] = s
		}
		rows[i] = row
	}
	return dataset.New(columns, rows)
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
