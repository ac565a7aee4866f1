package receipt

import (
	"bytes"
	"encoding/json"

	"github.com/zombor/receipt-parser/internal/scanning"
)

// Table is a set of line items with a fixed column layout.
// Columns hold every key seen in any record, in first-appearance order, and
// each row has exactly one cell per column. A nil cell encodes as null.
type Table struct {
	Columns []string
	Rows    [][]json.RawMessage
}

// NormalizeLineItems lays records out on a shared set of columns
func NormalizeLineItems(records []scanning.Record) *Table {
	t := &Table{
		Columns: make([]string, 0),
		Rows:    make([][]json.RawMessage, 0, len(records)),
	}

	index := make(map[string]int)
	for _, rec := range records {
		for _, f := range rec.Fields {
			if _, ok := index[f.Name]; !ok {
				index[f.Name] = len(t.Columns)
				t.Columns = append(t.Columns, f.Name)
			}
		}
	}

	for _, rec := range records {
		row := make([]json.RawMessage, len(t.Columns))
		for _, f := range rec.Fields {
			row[index[f.Name]] = f.Value
		}
		t.Rows = append(t.Rows, row)
	}

	return t
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// MarshalJSON renders the table as an array of objects, one per row
func (t *Table) MarshalJSON() ([]byte, error) {
	keys := make([][]byte, len(t.Columns))
	for i, col := range t.Columns {
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for r, row := range t.Rows {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for c, key := range keys {
			if c > 0 {
				buf.WriteByte(',')
			}
			buf.Write(key)
			buf.WriteByte(':')
			if c < len(row) && row[c] != nil {
				buf.Write(row[c])
			} else {
				buf.WriteString("null")
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
