package warehouse

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the type tag of a result cell.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	default:
		return "null"
	}
}

// Value is one cell of a query result: text, an arbitrary precision number,
// or null.
type Value struct {
	kind Kind
	text string
	num  decimal.Decimal
}

func Null() Value { return Value{kind: KindNull} }

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }

// Int is shorthand for an integral number value.
func Int(i int64) Value { return Number(decimal.NewFromInt(i)) }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Decimal returns the numeric value of v. Text that parses as a number is
// accepted, since some drivers return NUMBER columns as strings.
func (v Value) Decimal() (decimal.Decimal, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindText:
		d, err := decimal.NewFromString(strings.TrimSpace(v.text))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: value %q is not numeric", ErrShape, v.text)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: value is null", ErrShape)
	}
}

// String renders the canonical text form used in set comparisons and
// failure details.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.num.String()
	default:
		return "NULL"
	}
}

// Equal reports whether two values are the same. Numbers compare by value so
// 1.0 equals 1.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num.Equal(o.num)
	case KindText:
		return v.text == o.text
	default:
		return true
	}
}
