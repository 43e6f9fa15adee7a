package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"dashcheck/internal/warehouse"
)

// MockWarehouse is a scripted warehouse.Executor. Each rule matches queries
// containing all of its fragments (whitespace-insensitive); when several
// rules match, the one with the most matched text wins.
type MockWarehouse struct {
	mu sync.Mutex

	rules []*Rule

	// Execution tracking
	ExecutedQueries []ExecutedQuery

	// Delay is applied before every query; it honours context cancellation.
	Delay time.Duration
}

// ExecutedQuery represents a query that was executed
type ExecutedQuery struct {
	Query     string
	Timestamp time.Time
}

// Rule is a canned response for matching queries.
type Rule struct {
	fragments []string
	result    *warehouse.Result
	err       error
	calls     int
}

// NewMockWarehouse creates an empty mock; every query fails until a rule
// matches it.
func NewMockWarehouse() *MockWarehouse {
	return &MockWarehouse{ExecutedQueries: make([]ExecutedQuery, 0)}
}

// On registers a rule for queries containing every fragment.
func (m *MockWarehouse) On(fragments ...string) *Rule {
	m.mu.Lock()
	defer m.mu.Unlock()

	norm := make([]string, len(fragments))
	for i, f := range fragments {
		norm[i] = normalize(f)
	}
	r := &Rule{fragments: norm}
	m.rules = append(m.rules, r)
	return r
}

// Return sets the result for the rule.
func (r *Rule) Return(res *warehouse.Result) *Rule {
	r.result = res
	return r
}

// ReturnCount answers with a single COUNT column holding n.
func (r *Rule) ReturnCount(n int64) *Rule {
	return r.Return(warehouse.NewResult([]string{"COUNT"}, warehouse.Row{warehouse.Int(n)}))
}

// ReturnValue answers with one positional column holding v.
func (r *Rule) ReturnValue(v warehouse.Value) *Rule {
	return r.Return(warehouse.NewResult([]string{"_col0"}, warehouse.Row{v}))
}

// ReturnStrings answers with a single text column.
func (r *Rule) ReturnStrings(column string, values ...string) *Rule {
	rows := make([]warehouse.Row, len(values))
	for i, v := range values {
		rows[i] = warehouse.Row{warehouse.Text(v)}
	}
	return r.Return(warehouse.NewResult([]string{column}, rows...))
}

// Fail makes the rule return err.
func (r *Rule) Fail(err error) *Rule {
	r.err = err
	return r
}

func (r *Rule) score(query string) int {
	total := 0
	for _, f := range r.fragments {
		if !strings.Contains(query, f) {
			return -1
		}
		total += len(f)
	}
	return total
}

// Query implements warehouse.Executor.
func (m *MockWarehouse) Query(ctx context.Context, query string) (*warehouse.Result, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExecutedQueries = append(m.ExecutedQueries, ExecutedQuery{
		Query:     query,
		Timestamp: time.Now(),
	})

	normalized := normalize(query)
	var best *Rule
	bestScore := -1
	for _, r := range m.rules {
		if s := r.score(normalized); s > bestScore {
			best, bestScore = r, s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("mock warehouse: unexpected query: %s", normalized)
	}

	best.calls++
	if best.err != nil {
		return nil, best.err
	}
	if best.result == nil {
		return warehouse.NewResult(nil), nil
	}
	return best.result, nil
}

// Calls returns how many queries the rule answered.
func (m *MockWarehouse) Calls(r *Rule) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return r.calls
}

// GetExecutedQueries returns all executed queries
func (m *MockWarehouse) GetExecutedQueries() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]ExecutedQuery, len(m.ExecutedQueries))
	copy(result, m.ExecutedQueries)
	return result
}

// QueryCount returns the number of executed queries.
func (m *MockWarehouse) QueryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExecutedQueries)
}

// Reset clears all rules and execution history
func (m *MockWarehouse) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules = nil
	m.ExecutedQueries = make([]ExecutedQuery, 0)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
