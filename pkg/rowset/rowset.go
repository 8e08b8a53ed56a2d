// Package rowset holds decoded result sets and typed row access.
package rowset

import (
	"fmt"

	"github.com/querydeck/dbridge/pkg/bridge"
)

// Result is one decoded result set: ordered column names plus row
// tuples. A Result with zero rows is a valid empty grid, not an error.
type Result struct {
	Columns []string
	Rows    [][]any

	index map[string]int
}

// New builds a Result and computes the column-name index once.
func New(columns []string, rows [][]any) *Result {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &Result{Columns: columns, Rows: rows, index: idx}
}

// Len returns the number of rows.
func (r *Result) Len() int { return len(r.Rows) }

// Row returns a typed accessor for row i.
func (r *Result) Row(i int) Row {
	return Row{result: r, cells: r.Rows[i]}
}

// Row accesses one tuple's cells by column name through the result's
// header index.
type Row struct {
	result *Result
	cells  []any
}

// Get returns the named cell. Unknown column names are rejected with a
// NotFoundError rather than silently yielding nil.
func (w Row) Get(column string) (any, error) {
	i, ok := w.result.index[column]
	if !ok {
		return nil, &NotFoundError{Column: column}
	}
	if i >= len(w.cells) {
		return nil, nil
	}
	return w.cells[i], nil
}

// GetString returns the named cell as a string, mapping null to the
// empty string.
func (w Row) GetString(column string) (string, error) {
	v, err := w.Get(column)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// NotFoundError reports a column name absent from a result's header.
type NotFoundError struct {
	Column string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in result set", e.Column)
}

// DecodePair decodes a (header, rows) reply value, the shape returned
// by select-all and the *-info calls.
func DecodePair(v any) (*Result, error) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return nil, &bridge.TransportError{Op: "decode", Err: fmt.Errorf("expected (header, rows) pair, got %T", v)}
	}
	cols, err := DecodeColumns(pair[0])
	if err != nil {
		return nil, err
	}
	rows, err := DecodeRows(pair[1])
	if err != nil {
		return nil, err
	}
	return New(cols, rows), nil
}

// DecodeColumns decodes a fetch-columns reply into column names.
func DecodeColumns(v any) ([]string, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, &bridge.TransportError{Op: "decode", Err: fmt.Errorf("expected column list, got %T", v)}
	}
	cols := make([]string, len(raw))
	for i, c := range raw {
		s, ok := c.(string)
		if !ok {
			return nil, &bridge.TransportError{Op: "decode", Err: fmt.Errorf("column %d is %T, not string", i, c)}
		}
		cols[i] = s
	}
	return cols, nil
}

// DecodeRows decodes a fetch reply into row tuples. A nil value is an
// empty row list.
func DecodeRows(v any) ([][]any, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, &bridge.TransportError{Op: "decode", Err: fmt.Errorf("expected row list, got %T", v)}
	}
	rows := make([][]any, len(raw))
	for i, r := range raw {
		cells, ok := r.([]any)
		if !ok {
			return nil, &bridge.TransportError{Op: "decode", Err: fmt.Errorf("row %d is %T, not tuple", i, r)}
		}
		rows[i] = cells
	}
	return rows, nil
}
