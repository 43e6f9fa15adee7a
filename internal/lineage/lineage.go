// Package lineage resolves which entities consume a given table, so a
// failure upstream can be reported against everything built from it.
package lineage

import "sort"

// Graph holds direct edges from an entity to the entities that consume it.
type Graph struct {
	edges map[string][]string
}

// New builds a graph from entity -> direct downstream entities.
func New(edges map[string][]string) *Graph {
	g := &Graph{edges: make(map[string][]string, len(edges))}
	for from, to := range edges {
		g.edges[from] = append([]string(nil), to...)
	}
	return g
}

// Downstream returns every entity reachable from entity, sorted. The entity
// itself is never included, even when the graph has a cycle.
func (g *Graph) Downstream(entity string) []string {
	if g == nil || len(g.edges) == 0 {
		return nil
	}

	seen := map[string]bool{entity: true}
	queue := append([]string(nil), g.edges[entity]...)
	var out []string
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, g.edges[next]...)
	}
	sort.Strings(out)
	return out
}

// Unknown returns the entities that appear only as edge targets and have no
// entry of their own. It is informational: leaf entities are legitimate.
func (g *Graph) Unknown() []string {
	var out []string
	seen := make(map[string]bool)
	for _, targets := range g.edges {
		for _, t := range targets {
			if _, ok := g.edges[t]; !ok && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}
