// Package ledger accumulates validation findings per tenant, grouped by the
// entity (table or definition) they concern.
package ledger

import (
	"fmt"
	"sync"
)

// Kind classifies a finding.
type Kind int

const (
	KindFailure Kind = iota
	KindWarning
	// KindNotChecked marks coverage gaps: a check that could not be applied.
	KindNotChecked
)

func (k Kind) String() string {
	switch k {
	case KindFailure:
		return "FAILURE"
	case KindWarning:
		return "WARNING"
	default:
		return "NOT CHECKED"
	}
}

// Finding is one message recorded under a check key such as "2.3" or
// "3.1.2".
type Finding struct {
	Key     string
	Kind    Kind
	Message string
}

// Record holds the findings for one entity in insertion order.
type Record struct {
	Entity       string
	Tenant       string
	Database     string
	Dependencies []string
	Findings     []Finding
}

// Finding returns the finding recorded under key.
func (r Record) Finding(key string) (Finding, bool) {
	for _, f := range r.Findings {
		if f.Key == key {
			return f, true
		}
	}
	return Finding{}, false
}

// DependencyResolver returns the entities downstream of entity.
type DependencyResolver interface {
	Downstream(entity string) []string
}

// Ledger is the per-tenant failure ledger. It is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	tenant  string
	deps    DependencyResolver
	order   []string
	records map[string]*Record
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDependencies stamps each new record with its downstream entities.
func WithDependencies(r DependencyResolver) Option {
	return func(l *Ledger) { l.deps = r }
}

func New(tenant string, opts ...Option) *Ledger {
	l := &Ledger{
		tenant:  tenant,
		records: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Tenant() string { return l.tenant }

// Record adds a finding for entity, creating the entity's record on first
// use. Recording an existing key again replaces its message in place.
func (l *Ledger) Record(entity, database, key string, kind Kind, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[entity]
	if !ok {
		rec = &Record{
			Entity:   entity,
			Tenant:   l.tenant,
			Database: database,
		}
		if l.deps != nil {
			rec.Dependencies = l.deps.Downstream(entity)
		}
		l.records[entity] = rec
		l.order = append(l.order, entity)
	}

	for i := range rec.Findings {
		if rec.Findings[i].Key == key {
			rec.Findings[i].Kind = kind
			rec.Findings[i].Message = message
			return
		}
	}
	rec.Findings = append(rec.Findings, Finding{Key: key, Kind: kind, Message: message})
}

// Get returns a copy of the record for entity.
func (l *Ledger) Get(entity string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[entity]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Records returns copies of every record in the order entities were first
// recorded.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, 0, len(l.order))
	for _, entity := range l.order {
		out = append(out, l.records[entity].clone())
	}
	return out
}

// Entities returns the entity keys in first-recorded order.
func (l *Ledger) Entities() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

// Len returns the number of entities with at least one finding.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Entry is a finding together with the entity it belongs to.
type Entry struct {
	Entity   string
	Database string
	Finding
}

// Failures returns every KindFailure finding across entities.
func (l *Ledger) Failures() []Entry {
	return l.filter(func(k Kind) bool { return k == KindFailure })
}

// HasFailures reports whether any validation failure was recorded. Warnings
// and coverage gaps do not count.
func (l *Ledger) HasFailures() bool {
	return len(l.Failures()) > 0
}

// Count returns the number of findings of the given kind.
func (l *Ledger) Count(kind Kind) int {
	return len(l.filter(func(k Kind) bool { return k == kind }))
}

func (l *Ledger) filter(keep func(Kind) bool) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, entity := range l.order {
		rec := l.records[entity]
		for _, f := range rec.Findings {
			if keep(f.Kind) {
				out = append(out, Entry{Entity: rec.Entity, Database: rec.Database, Finding: f})
			}
		}
	}
	return out
}

func (r *Record) clone() Record {
	c := *r
	c.Dependencies = append([]string(nil), r.Dependencies...)
	c.Findings = append([]Finding(nil), r.Findings...)
	return c
}

// Counter numbers repeated invocations of a check: "3.1.1", "3.1.2", ...
type Counter struct {
	prefix string
	n      int
}

func NewCounter(prefix string) *Counter {
	return &Counter{prefix: prefix}
}

// Next returns the next key.
func (c *Counter) Next() string {
	c.n++
	return fmt.Sprintf("%s.%d", c.prefix, c.n)
}
