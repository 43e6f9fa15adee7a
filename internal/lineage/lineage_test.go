package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownstream(t *testing.T) {
	g := New(map[string][]string{
		"encounters":     {"fact_encounter"},
		"fact_encounter": {"overview", "weekly"},
		"weekly":         {"encounters"}, // cycle back to the root
	})

	assert.Empty(t, g.Downstream("patients_never_seen"))
	assert.Equal(t, []string{"fact_encounter", "overview", "weekly"}, g.Downstream("encounters"))
	assert.Equal(t, []string{"encounters", "overview", "weekly"}, g.Downstream("fact_encounter"))
	assert.Empty(t, g.Downstream("overview"))
	assert.Equal(t, []string{"overview"}, g.Unknown())
}

func TestNilGraph(t *testing.T) {
	var g *Graph
	assert.Nil(t, g.Downstream("x"))
	assert.Nil(t, New(nil).Downstream("x"))
}
