package report

import "dashcheck/internal/ledger"

// Counts tallies findings by kind.
type Counts struct {
	Failures   int `json:"failures"`
	Warnings   int `json:"warnings"`
	NotChecked int `json:"not_checked"`
}

type TenantSummary struct {
	Tenant string `json:"tenant"`
	Counts
}

// Summary counts each tenant's findings, in ledger order.
func Summary(set *ledger.Set) []TenantSummary {
	ledgers := set.Ledgers()
	out := make([]TenantSummary, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, TenantSummary{
			Tenant: l.Tenant(),
			Counts: countsOf(l),
		})
	}
	return out
}

func countsOf(l *ledger.Ledger) Counts {
	return Counts{
		Failures:   l.Count(ledger.KindFailure),
		Warnings:   l.Count(ledger.KindWarning),
		NotChecked: l.Count(ledger.KindNotChecked),
	}
}

// Total adds up a summary.
func Total(summaries []TenantSummary) Counts {
	var c Counts
	for _, s := range summaries {
		c.Failures += s.Failures
		c.Warnings += s.Warnings
		c.NotChecked += s.NotChecked
	}
	return c
}
