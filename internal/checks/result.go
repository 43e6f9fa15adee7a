// Package checks implements the validation catalog. Every check is a pure
// function of its parameters and a warehouse.Executor: it issues its queries,
// compares the results and returns a verdict with a self-describing detail.
// Checks never record anything; the stage drivers do.
package checks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"dashcheck/internal/warehouse"
	apperrors "dashcheck/pkg/errors"
)

// Column and label conventions shared by the dashboard tables.
const (
	PathwayColumn    = "pathway_name"
	SelectAll        = "Select all"
	RegionColumn     = "region"
	LookUpFlagColumn = "look_up_inclusion_flag"
)

// Status is the tri-state outcome of a check.
type Status int

const (
	StatusPass Status = iota
	StatusFail
	StatusNotApplicable
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	default:
		return "not_applicable"
	}
}

// Result is the verdict of one check invocation.
type Result struct {
	ID     string
	Status Status
	Detail string
	// Values holds every compared value by name.
	Values map[string]string
}

// Passed treats not-applicable as passing.
func (r Result) Passed() bool { return r.Status != StatusFail }

func verdict(id string, ok bool, detail string, values map[string]string) Result {
	status := StatusFail
	if ok {
		status = StatusPass
	}
	return Result{ID: id, Status: status, Detail: detail, Values: values}
}

func notApplicable(id, detail string) Result {
	return Result{ID: id, Status: StatusNotApplicable, Detail: detail}
}

// queryError annotates an executor or result-shape error with the check and
// entity it happened in.
func queryError(id, entity string, err error) error {
	if errors.Is(err, warehouse.ErrShape) {
		return apperrors.ShapeError(id, entity, err.Error())
	}

	code := apperrors.GetErrorCode(err)
	switch {
	case errors.Is(err, context.Canceled):
		code = apperrors.ErrCodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = apperrors.ErrCodeSQLTimeout
	case code == apperrors.ErrCodeInternal:
		code = apperrors.ErrCodeSQLExecution
	}
	return apperrors.Wrap(err, code, fmt.Sprintf("check %s on %s: query failed", id, entity)).
		WithContext("check", id).
		WithContext("entity", entity)
}

func configError(id, entity, message string) error {
	return apperrors.New(apperrors.ErrCodeConfigInvalid, fmt.Sprintf("check %s on %s: %s", id, entity, message)).
		WithContext("check", id).
		WithContext("entity", entity)
}

func run(ctx context.Context, exec warehouse.Executor, id, entity, query string) (*warehouse.Result, error) {
	res, err := exec.Query(ctx, query)
	if err != nil {
		return nil, queryError(id, entity, err)
	}
	return res, nil
}

// single runs a query whose contract is one row with the numeric value in
// the first column.
func single(ctx context.Context, exec warehouse.Executor, id, entity, query string) (decimal.Decimal, error) {
	res, err := run(ctx, exec, id, entity, query)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := res.SingleDecimal()
	if err != nil {
		return decimal.Zero, queryError(id, entity, err)
	}
	return d, nil
}

// sum is like single but reads a NULL as zero, which is what SUM yields
// over an empty table.
func sum(ctx context.Context, exec warehouse.Executor, id, entity, query string) (decimal.Decimal, error) {
	res, err := run(ctx, exec, id, entity, query)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := res.SingleValue()
	if err != nil {
		return decimal.Zero, queryError(id, entity, err)
	}
	if v.IsNull() {
		return decimal.Zero, nil
	}
	d, err := v.Decimal()
	if err != nil {
		return decimal.Zero, queryError(id, entity, err)
	}
	return d, nil
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// difference returns the sorted members of a that are not in b.
func difference(a, b map[string]struct{}) []string {
	out := make([]string, 0)
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

const sampleLimit = 10

// sample renders up to sampleLimit members of a sorted list.
func sample(values []string) string {
	if len(values) <= sampleLimit {
		return "[" + strings.Join(values, ", ") + "]"
	}
	return fmt.Sprintf("[%s, ... %d more]", strings.Join(values[:sampleLimit], ", "), len(values)-sampleLimit)
}
