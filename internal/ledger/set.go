package ledger

import "sync"

// Set maps tenant names to their ledgers for one validation run.
type Set struct {
	mu      sync.Mutex
	order   []string
	ledgers map[string]*Ledger
}

func NewSet() *Set {
	return &Set{ledgers: make(map[string]*Ledger)}
}

// For returns the tenant's ledger, creating it with opts on first use.
func (s *Set) For(tenant string, opts ...Option) *Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.ledgers[tenant]; ok {
		return l
	}
	l := New(tenant, opts...)
	s.ledgers[tenant] = l
	s.order = append(s.order, tenant)
	return l
}

// Ledgers returns every tenant ledger in creation order.
func (s *Set) Ledgers() []*Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Ledger, 0, len(s.order))
	for _, t := range s.order {
		out = append(out, s.ledgers[t])
	}
	return out
}

// HasFailures reports whether any tenant recorded a validation failure.
func (s *Set) HasFailures() bool {
	for _, l := range s.Ledgers() {
		if l.HasFailures() {
			return true
		}
	}
	return false
}
