package warehouse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrShape marks a result that does not have the shape its consumer
// requires: a missing column, no rows for a single value query, a null or
// non-numeric cell where a number is expected.
var ErrShape = errors.New("unexpected result shape")

type Row []Value

// Result is a tabular query result with ordered, named columns.
type Result struct {
	Columns []string
	Rows    []Row
}

// NewResult is a convenience constructor used by executors and tests.
func NewResult(columns []string, rows ...Row) *Result {
	return &Result{Columns: columns, Rows: rows}
}

// ColumnIndex resolves a column name case-insensitively.
func (r *Result) ColumnIndex(name string) (int, error) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: column %q not in result (have %s)", ErrShape, name, strings.Join(r.Columns, ", "))
}

// HasColumn reports whether the result carries the named column.
func (r *Result) HasColumn(name string) bool {
	_, err := r.ColumnIndex(name)
	return err == nil
}

// Column returns every value of the named column in row order.
func (r *Result) Column(name string) ([]Value, error) {
	idx, err := r.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	out := make([]Value, 0, len(r.Rows))
	for _, row := range r.Rows {
		if idx >= len(row) {
			return nil, fmt.Errorf("%w: row has %d cells, column %q is at %d", ErrShape, len(row), name, idx)
		}
		out = append(out, row[idx])
	}
	return out, nil
}

// SingleValue returns the first column of the first row.
func (r *Result) SingleValue() (Value, error) {
	if len(r.Columns) == 0 {
		return Value{}, fmt.Errorf("%w: query returned no columns", ErrShape)
	}
	if len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return Value{}, fmt.Errorf("%w: query returned no rows", ErrShape)
	}
	return r.Rows[0][0], nil
}

// SingleDecimal is SingleValue followed by a numeric conversion.
func (r *Result) SingleDecimal() (decimal.Decimal, error) {
	v, err := r.SingleValue()
	if err != nil {
		return decimal.Zero, err
	}
	return v.Decimal()
}

// Strings returns the text form of every value in the named column.
func (r *Result) Strings(name string) ([]string, error) {
	values, err := r.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out, nil
}

// Decimals returns the named column as numbers.
func (r *Result) Decimals(name string) ([]decimal.Decimal, error) {
	values, err := r.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := v.Decimal()
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		out[i] = d
	}
	return out, nil
}
