package checks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// PathwayTotal is a statistic's value for one pathway.
type PathwayTotal struct {
	Pathway string
	Value   decimal.Decimal
}

// PairwiseOverlap returns, for every unordered pair of pathways, the number
// of entity ids present in both, summed over all pairs. The aggregate
// pathway is ignored.
func PairwiseOverlap(members map[string][]string) int {
	names := make([]string, 0, len(members))
	sets := make(map[string]map[string]struct{}, len(members))
	for name, ids := range members {
		if name == SelectAll {
			continue
		}
		names = append(names, name)
		sets[name] = stringSet(ids)
	}
	sort.Strings(names)

	overlap := 0
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := sets[names[i]], sets[names[j]]
			if len(b) < len(a) {
				a, b = b, a
			}
			for id := range a {
				if _, ok := b[id]; ok {
					overlap++
				}
			}
		}
	}
	return overlap
}

// PathwaySum (3.1) checks that the "Select all" value equals the sum of the
// individual pathways. When members is non-nil it maps each pathway to the
// entity ids it counts, and entities shared by a pair of pathways are
// subtracted from the sum once per pair.
func PathwaySum(statistic string, totals []PathwayTotal, members map[string][]string) (Result, error) {
	const id = "3.1"

	var (
		selectAll decimal.Decimal
		found     bool
		sum       = decimal.Zero
		parts     = make([]string, 0, len(totals))
	)
	sorted := append([]PathwayTotal(nil), totals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pathway < sorted[j].Pathway })

	for _, t := range sorted {
		if t.Pathway == SelectAll {
			selectAll, found = t.Value, true
			continue
		}
		sum = sum.Add(t.Value)
		parts = append(parts, fmt.Sprintf("%s=%s", t.Pathway, t.Value))
	}
	if !found {
		return Result{}, configError(id, statistic, fmt.Sprintf("no %q pathway in breakdown", SelectAll))
	}

	overlap := 0
	if members != nil {
		overlap = PairwiseOverlap(members)
	}
	expected := sum.Sub(decimal.NewFromInt(int64(overlap)))

	detail := fmt.Sprintf("%s: %s %s vs pathway sum %s (%s) minus overlap %d = %s",
		statistic, SelectAll, selectAll, sum, strings.Join(parts, ", "), overlap, expected)

	return verdict(id, selectAll.Equal(expected), detail, map[string]string{
		"select_all":  selectAll.String(),
		"pathway_sum": sum.String(),
		"overlap":     fmt.Sprint(overlap),
	}), nil
}
