package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"dashcheck/internal/warehouse"
)

// DashboardSumParams describes a summed dashboard statistic and the base
// query that computes it independently. OverlapQuery optionally returns
// (entity id, pathway_name) rows used to discount entities counted under
// several pathways.
type DashboardSumParams struct {
	Statistic    string
	Dashboard    warehouse.Namespace
	Table        string
	BaseQuery    string
	OverlapQuery string
}

// DashboardSum (3.2) compares the dashboard sum of a statistic with the
// base-computed value. When the table has a pathway breakdown with a
// "Select all" row, only that row is summed and PathwaySum must also pass.
func DashboardSum(ctx context.Context, exec warehouse.Executor, p DashboardSumParams) (Result, error) {
	const id = "3.2"

	ref := p.Dashboard.Table(p.Table)
	columns, err := warehouse.ProbeColumns(ctx, exec, ref)
	if err != nil {
		return Result{}, queryError(id, p.Table, err)
	}

	dashQuery := fmt.Sprintf("SELECT SUM(%s) FROM %s", p.Statistic, ref)
	var breakdown *Result
	if warehouse.ContainsFold(columns, PathwayColumn) {
		totals, err := pathwayTotals(ctx, exec, id, p.Table, ref, p.Statistic)
		if err != nil {
			return Result{}, err
		}
		if hasPathway(totals, SelectAll) {
			dashQuery += fmt.Sprintf(" WHERE %s = %s", PathwayColumn, warehouse.Literal(SelectAll))

			var members map[string][]string
			if strings.TrimSpace(p.OverlapQuery) != "" {
				if members, err = pathwayMembers(ctx, exec, id, p.Table, p.OverlapQuery); err != nil {
					return Result{}, err
				}
			}
			inner, err := PathwaySum(p.Statistic, totals, members)
			if err != nil {
				return Result{}, err
			}
			breakdown = &inner
		}
	}

	dash, err := sum(ctx, exec, id, p.Table, dashQuery)
	if err != nil {
		return Result{}, err
	}
	base, err := single(ctx, exec, id, p.Table, p.BaseQuery)
	if err != nil {
		return Result{}, err
	}

	values := map[string]string{
		"dashboard": dash.String(),
		"base":      base.String(),
	}
	detail := fmt.Sprintf("%s in %s: dashboard sum %s, base %s", p.Statistic, ref, dash, base)
	ok := dash.Equal(base)
	if breakdown != nil {
		detail += fmt.Sprintf("; check 3.1 %s: %s", breakdown.Status, breakdown.Detail)
		for k, v := range breakdown.Values {
			values["3.1."+k] = v
		}
		ok = ok && breakdown.Passed()
	}

	return verdict(id, ok, detail, values), nil
}

// CumulativeParams describes a running-total statistic. DashboardQuery must
// return a region column, the statistic column and optionally pathway_name,
// one row per region (and pathway).
type CumulativeParams struct {
	Statistic      string
	Regions        []string
	DashboardQuery string
	BaseQuery      string
}

// CumulativeTotal (3.3) sums the statistic over every configured region and
// compares it with the base total. With a pathway breakdown, only the
// "Select all" rows are used, or the rows of the only pathway; several
// pathways without "Select all" make the check not applicable.
func CumulativeTotal(ctx context.Context, exec warehouse.Executor, p CumulativeParams) (Result, error) {
	const id = "3.3"

	res, err := run(ctx, exec, id, p.Statistic, p.DashboardQuery)
	if err != nil {
		return Result{}, err
	}
	regions, err := res.Strings(RegionColumn)
	if err != nil {
		return Result{}, queryError(id, p.Statistic, err)
	}
	values, err := res.Column(p.Statistic)
	if err != nil {
		return Result{}, queryError(id, p.Statistic, err)
	}

	var pathways []string
	selected := ""
	if res.HasColumn(PathwayColumn) {
		if pathways, err = res.Strings(PathwayColumn); err != nil {
			return Result{}, queryError(id, p.Statistic, err)
		}
		distinct := stringSet(pathways)
		switch _, ok := distinct[SelectAll]; {
		case ok:
			selected = SelectAll
		case len(distinct) == 1:
			selected = pathways[0]
		case len(distinct) == 0:
		default:
			return notApplicable(id, fmt.Sprintf("%s has %d pathways and no %q row",
				p.Statistic, len(distinct), SelectAll)), nil
		}
	}

	perRegion := make(map[string]decimal.Decimal, len(p.Regions))
	for i, region := range regions {
		if pathways != nil && pathways[i] != selected {
			continue
		}
		v, err := orZero(values[i])
		if err != nil {
			return Result{}, queryError(id, p.Statistic, err)
		}
		perRegion[region] = perRegion[region].Add(v)
	}

	total := decimal.Zero
	parts := make([]string, 0, len(p.Regions))
	missing := make([]string, 0)
	for _, region := range p.Regions {
		v, ok := perRegion[region]
		if !ok {
			missing = append(missing, region)
			continue
		}
		total = total.Add(v)
		parts = append(parts, fmt.Sprintf("%s=%s", region, v))
	}

	base, err := single(ctx, exec, id, p.Statistic, p.BaseQuery)
	if err != nil {
		return Result{}, err
	}

	scope := "all rows"
	if selected != "" {
		scope = "pathway " + selected
	}
	detail := fmt.Sprintf("%s (%s): region total %s [%s] vs base %s",
		p.Statistic, scope, total, strings.Join(parts, ", "), base)
	if len(missing) > 0 {
		detail += fmt.Sprintf("; no rows for region(s) %s", sample(missing))
	}

	return verdict(id, len(missing) == 0 && total.Equal(base), detail, map[string]string{
		"dashboard":       total.String(),
		"base":            base.String(),
		"missing_regions": fmt.Sprint(len(missing)),
	}), nil
}

type InvariantParams struct {
	Statistic string
	Dashboard warehouse.Namespace
	Table     string
	BaseQuery string
}

// PathwayInvariant (3.4) checks a statistic that must not vary by pathway:
// every pathway's value is the same and equals the base value.
func PathwayInvariant(ctx context.Context, exec warehouse.Executor, p InvariantParams) (Result, error) {
	const id = "3.4"

	ref := p.Dashboard.Table(p.Table)
	totals, err := pathwayTotals(ctx, exec, id, p.Table, ref, p.Statistic)
	if err != nil {
		return Result{}, err
	}
	base, err := single(ctx, exec, id, p.Table, p.BaseQuery)
	if err != nil {
		return Result{}, err
	}

	if len(totals) == 0 {
		return verdict(id, false, fmt.Sprintf("%s in %s: no pathway rows, base %s", p.Statistic, ref, base),
			map[string]string{"base": base.String()}), nil
	}

	parts := make([]string, 0, len(totals))
	differing := make([]string, 0)
	for _, t := range totals {
		parts = append(parts, fmt.Sprintf("%s=%s", t.Pathway, t.Value))
		if !t.Value.Equal(base) {
			differing = append(differing, t.Pathway)
		}
	}

	detail := fmt.Sprintf("%s in %s: pathways [%s] vs base %s", p.Statistic, ref, strings.Join(parts, ", "), base)
	if len(differing) > 0 {
		detail += fmt.Sprintf("; differing pathway(s) %s", sample(differing))
	}

	return verdict(id, len(differing) == 0, detail, map[string]string{
		"base":      base.String(),
		"pathways":  fmt.Sprint(len(totals)),
		"differing": fmt.Sprint(len(differing)),
	}), nil
}

type BusinessLogicParams struct {
	Name       string
	LogicQuery string
	BaseQuery  string
}

// BusinessLogic (3.5) compares two single-value queries for equality.
func BusinessLogic(ctx context.Context, exec warehouse.Executor, p BusinessLogicParams) (Result, error) {
	const id = "3.5"

	logic, err := single(ctx, exec, id, p.Name, p.LogicQuery)
	if err != nil {
		return Result{}, err
	}
	base, err := single(ctx, exec, id, p.Name, p.BaseQuery)
	if err != nil {
		return Result{}, err
	}

	detail := fmt.Sprintf("%s: business logic %s, base %s", p.Name, logic, base)
	return verdict(id, logic.Equal(base), detail, map[string]string{
		"logic": logic.String(),
		"base":  base.String(),
	}), nil
}

type ComparisonParams struct {
	Name       string
	LeftQuery  string
	RightQuery string
	Operator   Comparator
}

// DashboardComparison (3.6) evaluates left <op> right over two single-value
// dashboard queries.
func DashboardComparison(ctx context.Context, exec warehouse.Executor, p ComparisonParams) (Result, error) {
	const id = "3.6"

	// Reject unknown operators before touching the warehouse.
	op, err := ParseComparator(string(p.Operator))
	if err != nil {
		return Result{}, err
	}

	left, err := single(ctx, exec, id, p.Name, p.LeftQuery)
	if err != nil {
		return Result{}, err
	}
	right, err := single(ctx, exec, id, p.Name, p.RightQuery)
	if err != nil {
		return Result{}, err
	}

	ok, err := op.Compare(left, right)
	if err != nil {
		return Result{}, err
	}

	detail := fmt.Sprintf("%s: %s %s %s", p.Name, left, op, right)
	return verdict(id, ok, detail, map[string]string{
		"left":     left.String(),
		"right":    right.String(),
		"operator": string(op),
	}), nil
}

func pathwayTotals(ctx context.Context, exec warehouse.Executor, id, entity, ref, statistic string) ([]PathwayTotal, error) {
	res, err := run(ctx, exec, id, entity,
		fmt.Sprintf("SELECT %s, SUM(%s) AS %s FROM %s GROUP BY %s",
			PathwayColumn, statistic, statistic, ref, PathwayColumn))
	if err != nil {
		return nil, err
	}
	names, err := res.Strings(PathwayColumn)
	if err != nil {
		return nil, queryError(id, entity, err)
	}
	values, err := res.Column(statistic)
	if err != nil {
		return nil, queryError(id, entity, err)
	}

	totals := make([]PathwayTotal, len(names))
	for i := range names {
		v, err := orZero(values[i])
		if err != nil {
			return nil, queryError(id, entity, err)
		}
		totals[i] = PathwayTotal{Pathway: names[i], Value: v}
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Pathway < totals[j].Pathway })
	return totals, nil
}

// pathwayMembers groups the first column of the overlap query by pathway.
func pathwayMembers(ctx context.Context, exec warehouse.Executor, id, entity, query string) (map[string][]string, error) {
	res, err := run(ctx, exec, id, entity, query)
	if err != nil {
		return nil, err
	}
	if len(res.Columns) == 0 {
		return nil, queryError(id, entity, fmt.Errorf("%w: overlap query returned no columns", warehouse.ErrShape))
	}
	ids, err := res.Strings(res.Columns[0])
	if err != nil {
		return nil, queryError(id, entity, err)
	}
	pathways, err := res.Strings(PathwayColumn)
	if err != nil {
		return nil, queryError(id, entity, err)
	}

	members := make(map[string][]string)
	for i := range ids {
		members[pathways[i]] = append(members[pathways[i]], ids[i])
	}
	return members, nil
}

func hasPathway(totals []PathwayTotal, name string) bool {
	for _, t := range totals {
		if t.Pathway == name {
			return true
		}
	}
	return false
}

func orZero(v warehouse.Value) (decimal.Decimal, error) {
	if v.IsNull() {
		return decimal.Zero, nil
	}
	return v.Decimal()
}
