package checks

import (
	"fmt"
	"strings"
)

// PrimaryKey is an ordered list of key columns. Composite keys are rendered
// as one delimited text expression so both sides of a comparison produce
// comparable values.
type PrimaryKey struct {
	Columns []string
}

func NewPrimaryKey(columns ...string) PrimaryKey {
	return PrimaryKey{Columns: columns}
}

// Expression renders the key as a single VARCHAR expression.
func (k PrimaryKey) Expression() string {
	if len(k.Columns) == 1 {
		return castVarchar(k.Columns[0])
	}
	parts := make([]string, len(k.Columns))
	for i, c := range k.Columns {
		parts[i] = castVarchar(c)
	}
	return fmt.Sprintf("CONCAT_WS('|', %s)", strings.Join(parts, ", "))
}

func (k PrimaryKey) String() string {
	return strings.Join(k.Columns, ", ")
}

func (k PrimaryKey) validate(id, entity, side string) error {
	if len(k.Columns) == 0 {
		return configError(id, entity, side+" key has no columns")
	}
	for _, c := range k.Columns {
		if strings.TrimSpace(c) == "" {
			return configError(id, entity, side+" key has an empty column name")
		}
	}
	return nil
}

func castVarchar(column string) string {
	return fmt.Sprintf("CAST(%s AS VARCHAR)", column)
}
