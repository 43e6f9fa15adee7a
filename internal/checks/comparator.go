package checks

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "dashcheck/pkg/errors"
)

// Comparator is a numeric comparison operator from a closed set.
type Comparator string

const (
	Equal          Comparator = "="
	NotEqual       Comparator = "!="
	Less           Comparator = "<"
	LessOrEqual    Comparator = "<="
	Greater        Comparator = ">"
	GreaterOrEqual Comparator = ">="
)

var comparatorTokens = map[string]Comparator{
	"=":  Equal,
	"==": Equal,
	"!=": NotEqual,
	"<>": NotEqual,
	"<":  Less,
	"<=": LessOrEqual,
	">":  Greater,
	">=": GreaterOrEqual,
}

// ParseComparator resolves a configured operator token. Anything outside
// the supported set is a configuration error.
func ParseComparator(token string) (Comparator, error) {
	c, ok := comparatorTokens[strings.TrimSpace(token)]
	if !ok {
		return "", apperrors.New(apperrors.ErrCodeUnsupportedComparator,
			fmt.Sprintf("unsupported comparison operator %q", token)).
			WithContext("operator", token).
			WithSuggestions("Use one of =, ==, !=, <>, <, <=, >, >=")
	}
	return c, nil
}

// Compare evaluates a <op> b.
func (c Comparator) Compare(a, b decimal.Decimal) (bool, error) {
	switch c {
	case Equal:
		return a.Equal(b), nil
	case NotEqual:
		return !a.Equal(b), nil
	case Less:
		return a.LessThan(b), nil
	case LessOrEqual:
		return a.LessThanOrEqual(b), nil
	case Greater:
		return a.GreaterThan(b), nil
	case GreaterOrEqual:
		return a.GreaterThanOrEqual(b), nil
	}
	return false, apperrors.New(apperrors.ErrCodeUnsupportedComparator,
		fmt.Sprintf("unsupported comparison operator %q", string(c)))
}
