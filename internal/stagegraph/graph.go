// Package stagegraph holds the system-defined workflow graph that recipes and
// batches are checked against. The graph is embedded reference data and is
// read-only after load.
package stagegraph

import (
	_ "embed"
	"fmt"
	"sync"

	"brewcore/pkg/domain"

	"gopkg.in/yaml.v3"
)

// Stage type ids referenced by fixed composite rules.
const (
	MustPrep         = "must_prep"
	Fermentation     = "fermentation"
	Clarification    = "clarification"
	Aging            = "aging"
	Stabilisation    = "stabilisation"
	FlavorAdjustment = "flavor_adjustment"
	Priming          = "priming"
	Packaging        = "packaging"
)

//go:embed stages.yaml
var defaultStages []byte

// Graph is an immutable lookup over stage type nodes.
type Graph struct {
	order []string
	nodes map[string]domain.StageType
}

type document struct {
	Stages []domain.StageType `yaml:"stages"`
}

var (
	defaultOnce  sync.Once
	defaultGraph *Graph
	defaultErr   error
)

// Default returns the embedded graph. It panics if the embedded document is
// malformed, which can only happen through a bad edit of stages.yaml.
func Default() *Graph {
	defaultOnce.Do(func() {
		defaultGraph, defaultErr = Parse(defaultStages)
	})
	if defaultErr != nil {
		panic(fmt.Errorf("stagegraph: embedded graph: %w", defaultErr))
	}
	return defaultGraph
}

// Parse decodes a YAML stage document and checks that every edge points at a
// known node.
func Parse(data []byte) (*Graph, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode stages: %w", err)
	}
	return New(doc.Stages)
}

// New builds a graph from explicit nodes.
func New(stages []domain.StageType) (*Graph, error) {
	g := &Graph{nodes: make(map[string]domain.StageType, len(stages))}
	for _, st := range stages {
		if st.ID == "" {
			return nil, fmt.Errorf("stage %q has no id", st.Name)
		}
		if _, dup := g.nodes[st.ID]; dup {
			return nil, fmt.Errorf("duplicate stage id %q", st.ID)
		}
		st.AllowedContexts = append([]domain.UsageContext(nil), st.AllowedContexts...)
		g.nodes[st.ID] = st
		g.order = append(g.order, st.ID)
	}
	for _, st := range g.nodes {
		if st.Requires != "" {
			if _, ok := g.nodes[st.Requires]; !ok {
				return nil, fmt.Errorf("stage %q requires unknown stage %q", st.ID, st.Requires)
			}
		}
		if st.Excludes != "" {
			if _, ok := g.nodes[st.Excludes]; !ok {
				return nil, fmt.Errorf("stage %q excludes unknown stage %q", st.ID, st.Excludes)
			}
		}
	}
	return g, nil
}

// Lookup returns the node for id.
func (g *Graph) Lookup(id string) (domain.StageType, bool) {
	st, ok := g.nodes[id]
	if !ok {
		return domain.StageType{}, false
	}
	st.AllowedContexts = append([]domain.UsageContext(nil), st.AllowedContexts...)
	return st, true
}

// Name returns the display name for id, falling back to the id itself.
func (g *Graph) Name(id string) string {
	if st, ok := g.nodes[id]; ok {
		return st.Name
	}
	return id
}

// IsRequired reports whether stages of type id must be completed.
func (g *Graph) IsRequired(id string) bool {
	return g.nodes[id].IsRequired
}

// Stages lists all nodes in document order.
func (g *Graph) Stages() []domain.StageType {
	out := make([]domain.StageType, 0, len(g.order))
	for _, id := range g.order {
		st, _ := g.Lookup(id)
		out = append(out, st)
	}
	return out
}

// Required lists the ids of required stage types in document order.
func (g *Graph) Required() []string {
	var out []string
	for _, id := range g.order {
		if g.nodes[id].IsRequired {
			out = append(out, id)
		}
	}
	return out
}
