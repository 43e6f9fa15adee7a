package ledger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcheck/internal/lineage"
)

func TestRecordCreatesLazilyAndKeepsOrder(t *testing.T) {
	l := New("acme")
	assert.Equal(t, 0, l.Len())

	l.Record("fact_encounter", "acme_base_tables", "2.3", KindFailure, "dup keys")
	l.Record("encounters", "acme_prod_union", "1.1", KindFailure, "count mismatch")
	l.Record("fact_encounter", "acme_base_tables", "2.1", KindFailure, "key count")

	assert.Equal(t, []string{"fact_encounter", "encounters"}, l.Entities())

	rec, ok := l.Get("fact_encounter")
	require.True(t, ok)
	assert.Equal(t, "acme", rec.Tenant)
	assert.Equal(t, "acme_base_tables", rec.Database)
	require.Len(t, rec.Findings, 2)
	assert.Equal(t, "2.3", rec.Findings[0].Key)
	assert.Equal(t, "2.1", rec.Findings[1].Key)
	assert.Empty(t, rec.Dependencies)
}

func TestRecordSameKeyOverwrites(t *testing.T) {
	l := New("acme")
	l.Record("t", "db", "1.1", KindFailure, "first")
	l.Record("t", "db", "1.1", KindFailure, "second")

	rec, _ := l.Get("t")
	require.Len(t, rec.Findings, 1)
	assert.Equal(t, "second", rec.Findings[0].Message)
}

func TestFailuresIgnoreAdvisories(t *testing.T) {
	l := New("acme")
	l.Record("roles", "sandbox", "2.4", KindWarning, "stale")
	l.Record("dim_domain", "base", "2.0", KindNotChecked, "no parent")
	assert.False(t, l.HasFailures())
	assert.Equal(t, 1, l.Count(KindWarning))
	assert.Equal(t, 1, l.Count(KindNotChecked))

	l.Record("overview", "dash", "3.1.1", KindFailure, "sum")
	assert.True(t, l.HasFailures())
	failures := l.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "overview", failures[0].Entity)
	assert.Equal(t, "3.1.1", failures[0].Key)
}

func TestDependenciesFromLineage(t *testing.T) {
	g := lineage.New(map[string][]string{"encounters": {"fact_encounter"}})
	l := New("acme", WithDependencies(g))

	l.Record("encounters", "acme_prod_union", "1.2", KindFailure, "nulls")
	rec, _ := l.Get("encounters")
	assert.Equal(t, []string{"fact_encounter"}, rec.Dependencies)
}

func TestRecordsAreCopies(t *testing.T) {
	l := New("acme")
	l.Record("t", "db", "1.1", KindFailure, "m")

	recs := l.Records()
	recs[0].Findings[0].Message = "changed"

	rec, _ := l.Get("t")
	assert.Equal(t, "m", rec.Findings[0].Message)
}

func TestConcurrentRecording(t *testing.T) {
	l := New("acme")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Record(fmt.Sprintf("t%d", i%5), "db", fmt.Sprintf("k%d", i), KindFailure, "m")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, l.Len())
	assert.Len(t, l.Failures(), 50)
}

func TestCounter(t *testing.T) {
	c := NewCounter("3.1")
	assert.Equal(t, "3.1.1", c.Next())
	assert.Equal(t, "3.1.2", c.Next())
	assert.Equal(t, "3.3.1", NewCounter("3.3").Next())
}

func TestSet(t *testing.T) {
	s := NewSet()
	a := s.For("acme")
	assert.Same(t, a, s.For("acme"))
	s.For("globex")

	require.Len(t, s.Ledgers(), 2)
	assert.Equal(t, "globex", s.Ledgers()[1].Tenant())
	assert.False(t, s.HasFailures())

	a.Record("t", "db", "1.2", KindFailure, "m")
	assert.True(t, s.HasFailures())
}
