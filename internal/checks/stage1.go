package checks

import (
	"context"
	"fmt"

	"dashcheck/internal/warehouse"
)

// RegionRowCountParams identifies one regional source table and the union
// table it is consolidated into.
type RegionRowCountParams struct {
	Table  string
	Region string
	Source warehouse.Namespace
	Union  warehouse.Namespace
}

// RegionRowCount (1.1) compares the row count of a regional source table
// with the union table's rows tagged with that region.
func RegionRowCount(ctx context.Context, exec warehouse.Executor, p RegionRowCountParams) (Result, error) {
	const id = "1.1"

	source := p.Source.Table(p.Table)
	union := p.Union.Table(p.Table)

	expected, err := single(ctx, exec, id, p.Table,
		fmt.Sprintf("SELECT COUNT(*) AS COUNT FROM %s", source))
	if err != nil {
		return Result{}, err
	}

	actual, err := single(ctx, exec, id, p.Table,
		fmt.Sprintf("SELECT COUNT(*) AS COUNT FROM %s WHERE %s = %s", union, RegionColumn, warehouse.Literal(p.Region)))
	if err != nil {
		return Result{}, err
	}

	detail := fmt.Sprintf("region %s: expected %s rows (from %s), actual %s rows in %s",
		p.Region, expected, source, actual, union)

	return verdict(id, expected.Equal(actual), detail, map[string]string{
		"region":   p.Region,
		"expected": expected.String(),
		"actual":   actual.String(),
	}), nil
}

type NullRegionsParams struct {
	Table string
	Union warehouse.Namespace
}

// NullRegions (1.2) passes when no union row has a null region.
func NullRegions(ctx context.Context, exec warehouse.Executor, p NullRegionsParams) (Result, error) {
	const id = "1.2"

	union := p.Union.Table(p.Table)
	nulls, err := single(ctx, exec, id, p.Table,
		fmt.Sprintf("SELECT COUNT(*) AS COUNT FROM %s WHERE %s IS NULL", union, RegionColumn))
	if err != nil {
		return Result{}, err
	}

	detail := fmt.Sprintf("%s rows with a null %s in %s", nulls, RegionColumn, union)
	return verdict(id, nulls.IsZero(), detail, map[string]string{
		"null_rows": nulls.String(),
	}), nil
}
