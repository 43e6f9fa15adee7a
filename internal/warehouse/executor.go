// Package warehouse defines the query capability the validation core runs
// against, plus catalog helpers built only on that capability.
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Executor runs a query and returns its rows. Failures (bad SQL, missing
// objects, connectivity, timeouts) are returned as errors and never as an
// empty result.
type Executor interface {
	Query(ctx context.Context, query string) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, query string) (*Result, error)

func (f ExecutorFunc) Query(ctx context.Context, query string) (*Result, error) {
	return f(ctx, query)
}

// Namespace is a schema, optionally qualified by its database.
type Namespace struct {
	Database string
	Schema   string
}

// ParseNamespace accepts "SCHEMA" or "DB.SCHEMA".
func ParseNamespace(s string) (Namespace, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Namespace{}, fmt.Errorf("namespace is empty")
	}
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		return Namespace{Schema: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Namespace{}, fmt.Errorf("invalid namespace %q", s)
		}
		return Namespace{Database: parts[0], Schema: parts[1]}, nil
	default:
		return Namespace{}, fmt.Errorf("invalid namespace %q: expected SCHEMA or DB.SCHEMA", s)
	}
}

func (n Namespace) String() string {
	if n.Database == "" {
		return n.Schema
	}
	return n.Database + "." + n.Schema
}

// Table renders a reference to table inside the namespace.
func (n Namespace) Table(table string) string {
	return n.String() + "." + table
}

func (n Namespace) informationSchema() string {
	if n.Database == "" {
		return "information_schema"
	}
	return n.Database + ".information_schema"
}

// Literal quotes s as a SQL string literal.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ListTables returns the sorted table names of a namespace.
func ListTables(ctx context.Context, exec Executor, ns Namespace) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT TABLE_NAME FROM %s.TABLES WHERE UPPER(TABLE_SCHEMA) = UPPER(%s) ORDER BY TABLE_NAME",
		ns.informationSchema(), Literal(ns.Schema))

	res, err := exec.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	tables, err := res.Strings("TABLE_NAME")
	if err != nil {
		return nil, err
	}
	sort.Strings(tables)
	return tables, nil
}

// ListColumns returns the column names of a table in ordinal order.
func ListColumns(ctx context.Context, exec Executor, ns Namespace, table string) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT COLUMN_NAME FROM %s.COLUMNS WHERE UPPER(TABLE_SCHEMA) = UPPER(%s) AND UPPER(TABLE_NAME) = UPPER(%s) ORDER BY ORDINAL_POSITION",
		ns.informationSchema(), Literal(ns.Schema), Literal(table))

	res, err := exec.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return res.Strings("COLUMN_NAME")
}

// ProbeColumns returns the column names of ref without reading any rows.
func ProbeColumns(ctx context.Context, exec Executor, ref string) ([]string, error) {
	res, err := exec.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", ref))
	if err != nil {
		return nil, err
	}
	return res.Columns, nil
}

// ContainsFold reports whether name is in columns, ignoring case.
func ContainsFold(columns []string, name string) bool {
	for _, c := range columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
