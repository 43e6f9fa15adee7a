package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"dashcheck/internal/warehouse"
)

// PrimaryKeyParams describes a base table and, optionally, the union-side
// source it is derived from. ParentQuery is a fragment starting at FROM; an
// empty fragment makes the parent comparisons not applicable.
type PrimaryKeyParams struct {
	Table       string
	Base        warehouse.Namespace
	Key         PrimaryKey
	ParentQuery string
	ParentKey   PrimaryKey
}

func (p PrimaryKeyParams) hasParent() bool {
	return strings.TrimSpace(p.ParentQuery) != ""
}

func (p PrimaryKeyParams) validateParent(id string) error {
	if err := p.Key.validate(id, p.Table, "base"); err != nil {
		return err
	}
	if err := p.ParentKey.validate(id, p.Table, "parent"); err != nil {
		return err
	}
	if len(p.Key.Columns) != len(p.ParentKey.Columns) {
		return configError(id, p.Table, fmt.Sprintf("base key has %d columns but parent key has %d",
			len(p.Key.Columns), len(p.ParentKey.Columns)))
	}
	if !StartsAtFrom(p.ParentQuery) {
		return configError(id, p.Table, "parent query must start at the FROM clause")
	}
	return nil
}

// StartsAtFrom reports whether fragment's first token is the FROM keyword.
func StartsAtFrom(fragment string) bool {
	fields := strings.Fields(fragment)
	return len(fields) > 0 && strings.EqualFold(fields[0], "FROM")
}

// PrimaryKeyCount (2.1) compares the distinct key count of a base table with
// the distinct key count of its parent.
func PrimaryKeyCount(ctx context.Context, exec warehouse.Executor, p PrimaryKeyParams) (Result, error) {
	const id = "2.1"

	if !p.hasParent() {
		return notApplicable(id, fmt.Sprintf("no parent source declared for %s", p.Table)), nil
	}
	if err := p.validateParent(id); err != nil {
		return Result{}, err
	}

	base, err := single(ctx, exec, id, p.Table,
		fmt.Sprintf("SELECT COUNT(DISTINCT %s) AS COUNT FROM %s", p.Key.Expression(), p.Base.Table(p.Table)))
	if err != nil {
		return Result{}, err
	}

	parent, err := single(ctx, exec, id, p.Table,
		fmt.Sprintf("SELECT COUNT(DISTINCT %s) AS COUNT %s", p.ParentKey.Expression(), strings.TrimSpace(p.ParentQuery)))
	if err != nil {
		return Result{}, err
	}

	detail := fmt.Sprintf("distinct keys (%s): base %s, parent %s", p.Key, base, parent)
	return verdict(id, base.Equal(parent), detail, map[string]string{
		"base_keys":   base.String(),
		"parent_keys": parent.String(),
	}), nil
}

// PrimaryKeySet (2.2) passes when the base and parent key sets are equal.
func PrimaryKeySet(ctx context.Context, exec warehouse.Executor, p PrimaryKeyParams) (Result, error) {
	const id = "2.2"

	if !p.hasParent() {
		return notApplicable(id, fmt.Sprintf("no parent source declared for %s", p.Table)), nil
	}
	if err := p.validateParent(id); err != nil {
		return Result{}, err
	}

	baseRes, err := run(ctx, exec, id, p.Table,
		fmt.Sprintf("SELECT DISTINCT %s AS PK FROM %s", p.Key.Expression(), p.Base.Table(p.Table)))
	if err != nil {
		return Result{}, err
	}
	baseSet, baseNulls, err := keySet(baseRes)
	if err != nil {
		return Result{}, queryError(id, p.Table, err)
	}

	parentRes, err := run(ctx, exec, id, p.Table,
		fmt.Sprintf("SELECT DISTINCT %s AS PK %s", p.ParentKey.Expression(), strings.TrimSpace(p.ParentQuery)))
	if err != nil {
		return Result{}, err
	}
	parentSet, parentNulls, err := keySet(parentRes)
	if err != nil {
		return Result{}, queryError(id, p.Table, err)
	}

	onlyBase := difference(baseSet, parentSet)
	onlyParent := difference(parentSet, baseSet)

	detail := fmt.Sprintf("base has %d distinct keys, parent has %d; %d only in base %s, %d only in parent %s",
		len(baseSet), len(parentSet), len(onlyBase), sample(onlyBase), len(onlyParent), sample(onlyParent))
	if baseNulls > 0 || parentNulls > 0 {
		detail += fmt.Sprintf("; NULL keys: base %d, parent %d", baseNulls, parentNulls)
	}

	pass := len(onlyBase) == 0 && len(onlyParent) == 0 && (baseNulls > 0) == (parentNulls > 0)
	return verdict(id, pass, detail, map[string]string{
		"base_keys":      fmt.Sprint(len(baseSet)),
		"parent_keys":    fmt.Sprint(len(parentSet)),
		"only_in_base":   fmt.Sprint(len(onlyBase)),
		"only_in_parent": fmt.Sprint(len(onlyParent)),
		"base_nulls":     fmt.Sprint(baseNulls),
		"parent_nulls":   fmt.Sprint(parentNulls),
	}), nil
}

// keySet collects the non-NULL PK values of res and counts the NULL ones. A
// composite key is NULL when any of its columns is.
func keySet(res *warehouse.Result) (map[string]struct{}, int, error) {
	values, err := res.Column("PK")
	if err != nil {
		return nil, 0, err
	}
	set := make(map[string]struct{}, len(values))
	nulls := 0
	for _, v := range values {
		if v.IsNull() {
			nulls++
			continue
		}
		set[v.String()] = struct{}{}
	}
	return set, nulls, nil
}

// PrimaryKeyUniqueness (2.3) passes when no key value occurs more than once
// in the base table.
func PrimaryKeyUniqueness(ctx context.Context, exec warehouse.Executor, p PrimaryKeyParams) (Result, error) {
	const id = "2.3"

	if err := p.Key.validate(id, p.Table, "base"); err != nil {
		return Result{}, err
	}

	expr := p.Key.Expression()
	res, err := run(ctx, exec, id, p.Table,
		fmt.Sprintf("SELECT %s AS PK, COUNT(*) AS COUNTER FROM %s GROUP BY %s HAVING COUNT(*) > 1",
			expr, p.Base.Table(p.Table), expr))
	if err != nil {
		return Result{}, err
	}

	keys, err := res.Strings("PK")
	if err != nil {
		return Result{}, queryError(id, p.Table, err)
	}
	counters, err := res.Strings("COUNTER")
	if err != nil {
		return Result{}, queryError(id, p.Table, err)
	}

	dups := make([]string, len(keys))
	for i := range keys {
		dups[i] = fmt.Sprintf("%s x%s", keys[i], counters[i])
	}
	sort.Strings(dups)

	detail := fmt.Sprintf("%d duplicated key value(s) on (%s) %s", len(keys), p.Key, sample(dups))
	return verdict(id, len(keys) == 0, detail, map[string]string{
		"duplicate_keys": fmt.Sprint(len(keys)),
	}), nil
}

// DefinitionParams describes a maintained look-up table. With a ProdQuery
// the live value set (minus Exclusions) must equal the look-up values;
// without one, the look-up table must have no rows whose inclusion flag is
// null.
type DefinitionParams struct {
	Name         string
	LookUp       warehouse.Namespace
	LookUpTable  string
	LookUpColumn string
	ProdQuery    string
	ProdColumn   string
	Exclusions   []string
}

// DefinitionCoverage (2.4) detects production values missing from a
// definition look-up table.
func DefinitionCoverage(ctx context.Context, exec warehouse.Executor, p DefinitionParams) (Result, error) {
	const id = "2.4"

	if strings.TrimSpace(p.ProdQuery) == "" {
		return uncategorised(ctx, exec, id, p)
	}

	lookUpRes, err := run(ctx, exec, id, p.Name,
		fmt.Sprintf("SELECT DISTINCT %s FROM %s", p.LookUpColumn, p.LookUp.Table(p.LookUpTable)))
	if err != nil {
		return Result{}, err
	}
	lookUpValues, err := lookUpRes.Strings(p.LookUpColumn)
	if err != nil {
		return Result{}, queryError(id, p.Name, err)
	}

	prodRes, err := run(ctx, exec, id, p.Name, p.ProdQuery)
	if err != nil {
		return Result{}, err
	}
	prodValues, err := prodRes.Strings(p.ProdColumn)
	if err != nil {
		return Result{}, queryError(id, p.Name, err)
	}

	lookUp := stringSet(lookUpValues)
	live := stringSet(prodValues)
	for _, excluded := range p.Exclusions {
		delete(live, excluded)
	}

	missing := difference(live, lookUp)
	stale := difference(lookUp, live)

	detail := fmt.Sprintf("definition %s (%s.%s): %d value(s) missing from look-up %s, %d look-up value(s) not in production %s",
		p.Name, p.LookUpTable, p.LookUpColumn, len(missing), sample(missing), len(stale), sample(stale))

	return verdict(id, len(missing) == 0 && len(stale) == 0, detail, map[string]string{
		"missing": fmt.Sprint(len(missing)),
		"stale":   fmt.Sprint(len(stale)),
	}), nil
}

func uncategorised(ctx context.Context, exec warehouse.Executor, id string, p DefinitionParams) (Result, error) {
	res, err := run(ctx, exec, id, p.Name,
		fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NULL",
			p.LookUpColumn, p.LookUp.Table(p.LookUpTable), LookUpFlagColumn))
	if err != nil {
		return Result{}, err
	}
	values, err := res.Strings(p.LookUpColumn)
	if err != nil {
		return Result{}, queryError(id, p.Name, err)
	}
	sort.Strings(values)

	detail := fmt.Sprintf("definition %s: %d uncategorised value(s) in %s.%s %s",
		p.Name, len(values), p.LookUpTable, p.LookUpColumn, sample(values))
	return verdict(id, len(values) == 0, detail, map[string]string{
		"uncategorised": fmt.Sprint(len(values)),
	}), nil
}
