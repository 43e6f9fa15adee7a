package report

import (
	"encoding/json"
	"io"

	"dashcheck/internal/ledger"
)

type jsonReport struct {
	Total   Counts       `json:"total"`
	Tenants []jsonTenant `json:"tenants"`
}

type jsonTenant struct {
	TenantSummary
	Entities []jsonEntity `json:"entities"`
}

type jsonEntity struct {
	Entity       string        `json:"entity"`
	Database     string        `json:"database"`
	Dependencies []string      `json:"dependencies,omitempty"`
	Findings     []jsonFinding `json:"findings"`
}

type jsonFinding struct {
	Key     string `json:"key"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RenderJSON writes the ledgers as an indented JSON document.
func RenderJSON(w io.Writer, set *ledger.Set, opts Options) error {
	summaries := Summary(set)
	doc := jsonReport{Total: Total(summaries), Tenants: make([]jsonTenant, 0, len(summaries))}

	for i, l := range set.Ledgers() {
		t := jsonTenant{TenantSummary: summaries[i], Entities: []jsonEntity{}}
		for _, rec := range l.Records() {
			e := jsonEntity{
				Entity:       rec.Entity,
				Database:     rec.Database,
				Dependencies: rec.Dependencies,
			}
			for _, f := range rec.Findings {
				if !opts.keep(f.Kind) {
					continue
				}
				e.Findings = append(e.Findings, jsonFinding{Key: f.Key, Kind: f.Kind.String(), Message: f.Message})
			}
			if len(e.Findings) > 0 {
				t.Entities = append(t.Entities, e)
			}
		}
		doc.Tenants = append(doc.Tenants, t)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
