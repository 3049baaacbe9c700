package exchange

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// maxSampleRows is the number of rows included in an import preview.
const maxSampleRows = 5

// BuildPreview reads uploaded file content and produces the column list, a
// small sample of rows, and a first-pass column mapping for the chosen entity
// type. The preview commits to no interpretation: it is discarded once the
// mapping is finalized or the dialog is dismissed.
//
// Delimited text treats the first line as the header; structured text must be
// an array of uniform objects. The spreadsheet kind is rejected with
// ErrPreviewUnsupported. Malformed content yields ErrParse.
func BuildPreview(kind FileKind, data []byte, entityType string) (*ImportPreview, error) {
	def, ok := Lookup(entityType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}

	var columns []string
	var rows []map[string]string
	var err error

	switch kind {
	case FileKindCSV:
		columns, rows, err = parseDelimited(data)
	case FileKindJSON:
		columns, rows, err = parseStructured(data)
	case FileKindXLSX:
		return nil, fmt.Errorf("%w: %s", ErrPreviewUnsupported, kind)
	default:
		return nil, fmt.Errorf("%w: unknown file kind %q", ErrPreviewUnsupported, kind)
	}
	if err != nil {
		return nil, err
	}

	sample := rows
	if len(sample) > maxSampleRows {
		sample = sample[:maxSampleRows]
	}

	// Preview and first-pass mapping are produced together so the operator
	// sees both at once.
	return &ImportPreview{
		Columns:    columns,
		SampleRows: sample,
		Mappings:   InferMappings(columns, def, nil),
	}, nil
}

// parseDelimited parses CSV content: first line is the header, cells are
// trimmed, and rows with no non-whitespace content are dropped.
func parseDelimited(data []byte) ([]string, []map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file", ErrParse)
	}

	header := records[0]
	columns := make([]string, len(header))
	for i, c := range header {
		columns[i] = strings.TrimSpace(c)
	}

	var rows []map[string]string
	for _, rec := range records[1:] {
		if isEmptyRow(rec) {
			continue
		}
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return columns, rows, nil
}

// parseStructured parses a JSON array of uniform objects. Columns are the key
// set of the first element, in its original key order.
func parseStructured(data []byte) ([]string, []map[string]string, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file", ErrParse)
	}

	columns, err := firstObjectKeys(data)
	if err != nil {
		return nil, nil, err
	}

	rows := make([]map[string]string, 0, len(raw))
	for _, obj := range raw {
		row := make(map[string]string, len(columns))
		for _, col := range columns {
			row[col] = stringifyValue(obj[col])
		}
		rows = append(rows, row)
	}

	return columns, rows, nil
}

// firstObjectKeys walks the JSON tokens of the first array element so key
// order matches the document, which map decoding would lose.
func firstObjectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	// Opening '[' then '{' of the first element.
	for _, want := range []json.Delim{'[', '{'} {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if d, ok := tok.(json.Delim); !ok || d != want {
			return nil, fmt.Errorf("%w: expected array of objects", ErrParse)
		}
	}

	var keys []string
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return keys, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected object key", ErrParse)
		}
		keys = append(keys, key)

		// Consume the value belonging to this key, nested or not.
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	}
}

// stringifyValue renders a decoded JSON value as a cell string.
func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		// Integral numbers render without a decimal point.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// isEmptyRow reports whether a record has no non-whitespace content.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
