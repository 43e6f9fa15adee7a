package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"dashcheck/internal/checks"
	"dashcheck/internal/ledger"
	"dashcheck/internal/warehouse"
	apperrors "dashcheck/pkg/errors"
	"dashcheck/pkg/models"
)

// Stage1 compares every regional source table with the tenant's union
// database (1.1 per region and table, 1.2 once per table). The first failing
// region of a table records under "1.1", later ones under "1.1.<region>".
func (r *Runner) Stage1(ctx context.Context, tenant models.Tenant, l *ledger.Ledger) (*ledger.Ledger, error) {
	union, err := namespace(tenant.UnionDatabase, "union_database")
	if err != nil {
		return l, err
	}
	if len(tenant.Regions) != len(tenant.SourceDatabases) {
		return l, apperrors.ConfigError(
			fmt.Sprintf("tenant %s: %d regions but %d source databases", tenant.Name, len(tenant.Regions), len(tenant.SourceDatabases)),
			"source_databases")
	}

	var jobs []job
	seen := make(map[string]bool)
	for i, region := range tenant.Regions {
		source, err := namespace(tenant.SourceDatabases[i], "source_databases")
		if err != nil {
			return l, err
		}
		tables, err := warehouse.ListTables(ctx, r.exec, source)
		if err != nil {
			return l, catalogError(err, fmt.Sprintf("stage 1: listing tables in %s failed", source))
		}

		for _, table := range tables {
			params := checks.RegionRowCountParams{Table: table, Region: region, Source: source, Union: union}
			jobs = append(jobs, job{
				check:    "1.1",
				entity:   table,
				database: union.String(),
				key:      "1.1",
				altKey:   "1.1." + region,
				kind:     ledger.KindFailure,
				message: fmt.Sprintf("Check 1.1 - Table %s for region: %s - Inconsistent region count between region production & union",
					table, region),
				run: func(ctx context.Context) (checks.Result, error) {
					return checks.RegionRowCount(ctx, r.exec, params)
				},
			})

			if seen[table] {
				continue
			}
			seen[table] = true
			nulls := checks.NullRegionsParams{Table: table, Union: union}
			jobs = append(jobs, job{
				check:    "1.2",
				entity:   table,
				database: union.String(),
				key:      "1.2",
				kind:     ledger.KindFailure,
				message:  fmt.Sprintf("Check 1.2 - Table %s: has null region values for region column in union table", table),
				run: func(ctx context.Context) (checks.Result, error) {
					return checks.NullRegions(ctx, r.exec, nulls)
				},
			})
		}
	}

	r.logger.WithFields(logrus.Fields{
		"tenant": tenant.Name,
		"stage":  1,
		"checks": len(jobs),
	}).Info("running stage")
	return l, r.execute(ctx, l, jobs)
}

// Stage2 checks base tables against their declared parents (2.1-2.3) and
// definition look-up tables (2.4). Base tables without a mapping are
// recorded as not checked.
func (r *Runner) Stage2(ctx context.Context, tenant models.Tenant, l *ledger.Ledger) (*ledger.Ledger, error) {
	base, err := namespace(tenant.BaseDatabase, "base_database")
	if err != nil {
		return l, err
	}

	tables, err := warehouse.ListTables(ctx, r.exec, base)
	if err != nil {
		return l, catalogError(err, fmt.Sprintf("stage 2: listing tables in %s failed", base))
	}

	// Warehouse catalogs usually report upper-case names; mappings are
	// matched case-insensitively and recorded under their configured name.
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[strings.ToLower(t)] = true
	}
	mapped := make(map[string]string, len(tenant.Tables))
	names := make([]string, 0, len(tenant.Tables))
	for name := range tenant.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !present[strings.ToLower(name)] {
			return l, apperrors.ConfigError(
				fmt.Sprintf("tenant %s: table %s has a primary-parent mapping but does not exist in %s", tenant.Name, name, base),
				fmt.Sprintf("tables.%s", name))
		}
		mapped[strings.ToLower(name)] = name
	}

	var jobs []job
	for _, table := range tables {
		name, ok := mapped[strings.ToLower(table)]
		if !ok {
			jobs = append(jobs, notCheckedJob(table, base.String()))
			continue
		}

		mapping := tenant.Tables[name]
		if err := r.verifyKeyColumns(ctx, base, name, mapping.KeyColumns); err != nil {
			return l, err
		}

		params := checks.PrimaryKeyParams{
			Table:       name,
			Base:        base,
			Key:         checks.NewPrimaryKey(mapping.KeyColumns...),
			ParentQuery: mapping.ParentQuery,
			ParentKey:   checks.NewPrimaryKey(mapping.ParentKeyColumns...),
		}
		for _, c := range []struct {
			id      string
			message string
			fn      func(context.Context, warehouse.Executor, checks.PrimaryKeyParams) (checks.Result, error)
		}{
			{"2.1", "Inconsistent Primary key count between base & union tables", checks.PrimaryKeyCount},
			{"2.2", "Inconsistent or missing primary keys between base & union tables", checks.PrimaryKeySet},
			{"2.3", "Primary key constraint broken - primary key duplicates", checks.PrimaryKeyUniqueness},
		} {
			c := c
			jobs = append(jobs, job{
				check:    c.id,
				entity:   name,
				database: base.String(),
				key:      c.id,
				kind:     ledger.KindFailure,
				message:  fmt.Sprintf("Check %s - Table %s - %s", c.id, name, c.message),
				run: func(ctx context.Context) (checks.Result, error) {
					return c.fn(ctx, r.exec, params)
				},
			})
		}
	}

	for _, d := range tenant.Definitions {
		lookUp, err := namespace(d.LookUpDatabase, "definitions.look_up_database")
		if err != nil {
			return l, err
		}
		params := checks.DefinitionParams{
			Name:         d.Name,
			LookUp:       lookUp,
			LookUpTable:  d.LookUpTable,
			LookUpColumn: d.LookUpColumn,
			ProdQuery:    d.ProdQuery,
			ProdColumn:   d.ProdColumn,
			Exclusions:   d.Exclusions,
		}
		jobs = append(jobs, job{
			check:    "2.4",
			entity:   d.Name,
			database: lookUp.String(),
			key:      "2.4",
			kind:     ledger.KindWarning,
			message:  fmt.Sprintf("Check 2.4 - Definition %s - new definition value missing from definition look-up table", d.Name),
			run: func(ctx context.Context) (checks.Result, error) {
				return checks.DefinitionCoverage(ctx, r.exec, params)
			},
		})
	}

	r.logger.WithFields(logrus.Fields{
		"tenant": tenant.Name,
		"stage":  2,
		"checks": len(jobs),
	}).Info("running stage")
	return l, r.execute(ctx, l, jobs)
}

func notCheckedJob(table, database string) job {
	return job{
		check:    "2.0",
		entity:   table,
		database: database,
		key:      "2.0",
		kind:     ledger.KindNotChecked,
		message:  fmt.Sprintf("Check 2.1, 2.2, 2.3 - Table %s has not been checked for stage two checks", table),
		run: func(context.Context) (checks.Result, error) {
			return checks.Result{
				ID:     "2.0",
				Status: checks.StatusNotApplicable,
				Detail: "no primary-parent mapping configured",
			}, nil
		},
	}
}

func (r *Runner) verifyKeyColumns(ctx context.Context, base warehouse.Namespace, table string, keys []string) error {
	columns, err := warehouse.ListColumns(ctx, r.exec, base, table)
	if err != nil {
		return catalogError(err, fmt.Sprintf("stage 2: listing columns of %s failed", base.Table(table)))
	}
	for _, k := range keys {
		if !warehouse.ContainsFold(columns, k) {
			return apperrors.ConfigError(
				fmt.Sprintf("key column %s does not exist in %s", k, base.Table(table)),
				fmt.Sprintf("tables.%s.key_columns", table))
		}
	}
	return nil
}

// Stage3 reconciles dashboard tables. Each loop numbers its findings with
// its own counter; the entity is always the dashboard table of the entry
// being checked.
func (r *Runner) Stage3(ctx context.Context, tenant models.Tenant, l *ledger.Ledger) (*ledger.Ledger, error) {
	dash, err := namespace(tenant.DashboardDatabase, "dashboard_database")
	if err != nil {
		return l, err
	}
	db := dash.String()

	var jobs []job

	sums := ledger.NewCounter("3.2")
	for _, s := range tenant.Statistics {
		params := checks.DashboardSumParams{
			Statistic:    s.Name,
			Dashboard:    dash,
			Table:        s.DashboardTable,
			BaseQuery:    s.BaseQuery,
			OverlapQuery: s.OverlapQuery,
		}
		jobs = append(jobs, job{
			check:    "3.2",
			entity:   s.DashboardTable,
			database: db,
			key:      sums.Next(),
			kind:     ledger.KindFailure,
			message: fmt.Sprintf("Check 3.1 and 3.2 - Dashboard Table %s: - Dashboard statistic %s sum is inconsistent with derived base table statistic sum",
				s.DashboardTable, s.Name),
			run: func(ctx context.Context) (checks.Result, error) {
				return checks.DashboardSum(ctx, r.exec, params)
			},
		})
	}

	cumulative := ledger.NewCounter("3.3")
	for _, c := range tenant.Cumulative {
		params := checks.CumulativeParams{
			Statistic:      c.Name,
			Regions:        tenant.Regions,
			DashboardQuery: c.DashboardQuery,
			BaseQuery:      c.BaseQuery,
		}
		jobs = append(jobs, job{
			check:    "3.3",
			entity:   c.DashboardTable,
			database: db,
			key:      cumulative.Next(),
			kind:     ledger.KindFailure,
			message: fmt.Sprintf("Check 3.3 - Dashboard Table %s: - Dashboard cumulative statistic %s sum is inconsistent with derived base table statistic sum",
				c.DashboardTable, c.Name),
			run: func(ctx context.Context) (checks.Result, error) {
				return checks.CumulativeTotal(ctx, r.exec, params)
			},
		})
	}

	invariants := ledger.NewCounter("3.4")
	for _, inv := range tenant.Invariants {
		params := checks.InvariantParams{
			Statistic: inv.Name,
			Dashboard: dash,
			Table:     inv.DashboardTable,
			BaseQuery: inv.BaseQuery,
		}
		jobs = append(jobs, job{
			check:    "3.4",
			entity:   inv.DashboardTable,
			database: db,
			key:      invariants.Next(),
			kind:     ledger.KindFailure,
			message: fmt.Sprintf("Check 3.4 - Dashboard Table %s: - Dashboard onboard statistic %s is inconsistent across levels with derived base table statistic sum",
				inv.DashboardTable, inv.Name),
			run: func(ctx context.Context) (checks.Result, error) {
				return checks.PathwayInvariant(ctx, r.exec, params)
			},
		})
	}

	logic := ledger.NewCounter("3.5")
	for _, b := range tenant.BusinessLogic {
		params := checks.BusinessLogicParams{Name: b.Name, LogicQuery: b.LogicQuery, BaseQuery: b.BaseQuery}
		jobs = append(jobs, job{
			check:    "3.5",
			entity:   b.DashboardTable,
			database: db,
			key:      logic.Next(),
			kind:     ledger.KindFailure,
			message:  fmt.Sprintf("Check 3.5 - Dashboard Table %s: - business logic check failed - %s", b.DashboardTable, b.Name),
			run: func(ctx context.Context) (checks.Result, error) {
				return checks.BusinessLogic(ctx, r.exec, params)
			},
		})
	}

	comparisons := ledger.NewCounter("3.6")
	for _, c := range tenant.Comparisons {
		params := checks.ComparisonParams{
			Name:       c.Name,
			LeftQuery:  c.LeftQuery,
			RightQuery: c.RightQuery,
			Operator:   checks.Comparator(c.Operator),
		}
		jobs = append(jobs, job{
			check:    "3.6",
			entity:   c.DashboardTable,
			database: db,
			key:      comparisons.Next(),
			kind:     ledger.KindFailure,
			message:  fmt.Sprintf("Check 3.6 - Dashboard Table %s: - in-dashboard comparison logic check failed - %s", c.DashboardTable, c.Name),
			run: func(ctx context.Context) (checks.Result, error) {
				return checks.DashboardComparison(ctx, r.exec, params)
			},
		})
	}

	r.logger.WithFields(logrus.Fields{
		"tenant": tenant.Name,
		"stage":  3,
		"checks": len(jobs),
	}).Info("running stage")
	return l, r.execute(ctx, l, jobs)
}
