package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"dashcheck/internal/common"
	"dashcheck/internal/ledger"
	apperrors "dashcheck/pkg/errors"
)

const summarySheet = "Summary"

var findingHeader = []interface{}{"Entity", "Database", "Check", "Kind", "Message", "Downstream"}

// WriteWorkbook saves an xlsx file with a summary sheet and one sheet of
// findings per tenant.
func WriteWorkbook(path string, set *ledger.Set, opts Options) error {
	out, err := common.PrepareOutput(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeReportWrite, "invalid workbook path").
			WithContext("path", path)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return workbookError(err, out)
	}
	if err := f.SetSheetRow(summarySheet, "A1", &[]interface{}{"Tenant", "Failures", "Warnings", "Not checked"}); err != nil {
		return workbookError(err, out)
	}
	for i, s := range Summary(set) {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{s.Tenant, s.Failures, s.Warnings, s.NotChecked}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return workbookError(err, out)
		}
	}

	used := map[string]bool{strings.ToLower(summarySheet): true}
	for _, l := range set.Ledgers() {
		sheet := sheetName(l.Tenant(), used)
		if _, err := f.NewSheet(sheet); err != nil {
			return workbookError(err, out)
		}
		if err := f.SetSheetRow(sheet, "A1", &findingHeader); err != nil {
			return workbookError(err, out)
		}

		r := 2
		for _, rec := range l.Records() {
			for _, finding := range rec.Findings {
				if !opts.keep(finding.Kind) {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(1, r)
				row := []interface{}{
					rec.Entity,
					rec.Database,
					finding.Key,
					finding.Kind.String(),
					finding.Message,
					strings.Join(rec.Dependencies, ", "),
				}
				if err := f.SetSheetRow(sheet, cell, &row); err != nil {
					return workbookError(err, out)
				}
				r++
			}
		}
	}

	if err := f.SaveAs(out); err != nil {
		return workbookError(err, out)
	}
	return nil
}

// sheetName makes a tenant name a valid, unique sheet name: at most 31
// characters and none of : \ / ? * [ ].
func sheetName(tenant string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, tenant)
	if name == "" {
		name = "tenant"
	}
	if len([]rune(name)) > 31 {
		name = string([]rune(name)[:31])
	}

	base := name
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		runes := []rune(base)
		if len(runes)+len(suffix) > 31 {
			runes = runes[:31-len(suffix)]
		}
		name = string(runes) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func workbookError(err error, path string) error {
	return apperrors.Wrap(err, apperrors.ErrCodeReportWrite, "failed to write workbook").
		WithContext("path", path)
}
