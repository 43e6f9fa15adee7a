// Package report renders tenant ledgers for people: the plain failures
// output, a terminal table, JSON and an xlsx workbook.
package report

import (
	"fmt"
	"io"
	"strings"

	"dashcheck/internal/ledger"
)

// Options controls what the renderers include.
type Options struct {
	// IncludeNotChecked adds coverage advisories (skipped checks and
	// unmapped tables) to the output.
	IncludeNotChecked bool
	// Color enables ANSI colours in RenderTable.
	Color bool
}

func (o Options) keep(kind ledger.Kind) bool {
	return kind != ledger.KindNotChecked || o.IncludeNotChecked
}

var (
	leadRule  = strings.Repeat("-", 60)
	trailRule = strings.Repeat("-", 53)
)

// Text renders every tenant ledger in the failures output format. Each
// finding is followed by one cascade warning per downstream entity.
func Text(set *ledger.Set, opts Options) string {
	var b strings.Builder
	for _, l := range set.Ledgers() {
		tenant := l.Tenant()
		fmt.Fprintf(&b, "%sBeginning Failures Output for %s%s\n\n", leadRule, tenant, trailRule)
		fmt.Fprintf(&b, "For client %s, the failures are:\n\n", tenant)

		for _, rec := range l.Records() {
			for _, f := range rec.Findings {
				if !opts.keep(f.Kind) {
					continue
				}
				b.WriteString(f.Message)
				b.WriteString("\n\n")
				if f.Kind == ledger.KindNotChecked {
					continue
				}
				for _, dep := range rec.Dependencies {
					fmt.Fprintf(&b, "WARNING: Check %s failed for %s - this may affect the downstream table %s\n\n",
						f.Key, rec.Entity, dep)
				}
			}
		}

		fmt.Fprintf(&b, "%sEnd of Failures output for %s%s\n\n\n", leadRule, tenant, trailRule)
	}
	return b.String()
}

// RenderText writes Text(set, opts) to w.
func RenderText(w io.Writer, set *ledger.Set, opts Options) error {
	_, err := io.WriteString(w, Text(set, opts))
	return err
}
