package orchestrator

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"caseflow/internal/services"
)

// Kind classifies a unit.
type Kind string

const (
	KindIngest Kind = "ingest"
	KindHealth Kind = "health"
)

// UnitSpec declares one node of the graph.
type UnitSpec struct {
	Name      string   `yaml:"name" json:"name"`
	Kind      Kind     `yaml:"kind" json:"kind"`
	Source    string   `yaml:"source,omitempty" json:"source,omitempty"`
	Stage     string   `yaml:"stage,omitempty" json:"stage,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Graph is a validated set of units in declaration order.
type Graph struct {
	Units []UnitSpec `yaml:"units" json:"units"`
	index map[string]int
}

// DefaultGraph is the built-in graph: independent ingestion per source,
// transcript documents after the transcript sources they link to, and the
// three health stages in order.
func DefaultGraph() Graph {
	g := Graph{Units: []UnitSpec{
		{Name: "ingest_at", Kind: KindIngest, Source: "at"},
		{Name: "ingest_wi", Kind: KindIngest, Source: "wi"},
		{Name: "ingest_trt", Kind: KindIngest, Source: "trt"},
		{Name: "ingest_interview", Kind: KindIngest, Source: "interview"},
		{Name: "ingest_documents", Kind: KindIngest, Source: "documents", DependsOn: []string{"ingest_at", "ingest_wi", "ingest_trt"}},
		{Name: "health_staging", Kind: KindHealth, Stage: "staging"},
		{Name: "health_propagation", Kind: KindHealth, Stage: "propagation", DependsOn: []string{"health_staging"}},
		{Name: "health_functional", Kind: KindHealth, Stage: "functional", DependsOn: []string{"health_propagation"}},
	}}
	if err := g.Validate(); err != nil {
		panic(err)
	}
	return g
}

// ParseGraph decodes and validates a YAML graph definition.
func ParseGraph(data []byte) (Graph, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Graph{}, services.Wrap(services.ErrConfiguration, "orchestrator", "parse graph", "definition is empty", nil)
	}
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Graph{}, services.Wrap(services.ErrConfiguration, "orchestrator", "parse graph", "decode yaml", err)
	}
	if err := g.Validate(); err != nil {
		return Graph{}, err
	}
	return g, nil
}

// LoadGraph reads a graph file; an empty path selects DefaultGraph.
func LoadGraph(path string) (Graph, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultGraph(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Graph{}, services.Wrap(services.ErrConfiguration, "orchestrator", "load graph", path, err)
	}
	g, err := ParseGraph(data)
	if err != nil {
		return Graph{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func invalid(format string, args ...any) error {
	return services.Wrap(services.ErrConfiguration, "orchestrator", "validate graph", fmt.Sprintf(format, args...), nil)
}

// Validate rejects empty graphs, duplicate or unnamed units, unknown kinds,
// unknown dependencies, and cycles.
func (g *Graph) Validate() error {
	if len(g.Units) == 0 {
		return invalid("graph has no units")
	}
	g.index = make(map[string]int, len(g.Units))
	for i, unit := range g.Units {
		name := strings.TrimSpace(unit.Name)
		if name == "" {
			return invalid("unit %d has no name", i)
		}
		if _, dup := g.index[name]; dup {
			return invalid("duplicate unit %s", name)
		}
		switch unit.Kind {
		case KindIngest:
			if unit.Source == "" {
				return invalid("ingest unit %s has no source", name)
			}
		case KindHealth:
			if unit.Stage == "" {
				return invalid("health unit %s has no stage", name)
			}
		default:
			return invalid("unit %s has unknown kind %q", name, unit.Kind)
		}
		g.Units[i].Name = name
		g.index[name] = i
	}
	for _, unit := range g.Units {
		for _, dep := range unit.DependsOn {
			if _, ok := g.index[dep]; !ok {
				return invalid("unit %s depends on unknown unit %s", unit.Name, dep)
			}
		}
	}
	if _, err := g.order(g.names()); err != nil {
		return err
	}
	return nil
}

func (g Graph) names() []string {
	out := make([]string, len(g.Units))
	for i, unit := range g.Units {
		out[i] = unit.Name
	}
	return out
}

// Unit returns a unit by name.
func (g Graph) Unit(name string) (UnitSpec, bool) {
	i, ok := g.index[name]
	if !ok {
		return UnitSpec{}, false
	}
	return g.Units[i], true
}

// Select returns the named units plus everything they transitively depend on,
// in dependency order. No names selects every unit of kind; an empty kind
// with no names selects the whole graph.
func (g Graph) Select(kind Kind, names ...string) ([]UnitSpec, error) {
	if len(names) == 0 {
		for _, unit := range g.Units {
			if kind == "" || unit.Kind == kind {
				names = append(names, unit.Name)
			}
		}
	}
	wanted := make(map[string]bool)
	var visit func(name string) error
	visit = func(name string) error {
		if wanted[name] {
			return nil
		}
		unit, ok := g.Unit(name)
		if !ok {
			return services.Wrap(services.ErrValidation, "orchestrator", "select", fmt.Sprintf("unknown unit %q", name), nil)
		}
		wanted[name] = true
		for _, dep := range unit.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	selected := make([]string, 0, len(wanted))
	for _, name := range g.names() {
		if wanted[name] {
			selected = append(selected, name)
		}
	}
	ordered, err := g.order(selected)
	if err != nil {
		return nil, err
	}
	out := make([]UnitSpec, len(ordered))
	for i, name := range ordered {
		out[i], _ = g.Unit(name)
	}
	return out, nil
}

// order topologically sorts names, keeping declaration order among peers.
func (g Graph) order(names []string) ([]string, error) {
	inSet := make(map[string]bool, len(names))
	for _, name := range names {
		inSet[name] = true
	}
	indegree := make(map[string]int, len(names))
	dependents := make(map[string][]string)
	for _, name := range names {
		unit, _ := g.Unit(name)
		for _, dep := range unit.DependsOn {
			if inSet[dep] {
				indegree[name]++
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}
	position := func(name string) int { return g.index[name] }
	var ready []string
	for _, name := range names {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	ordered := make([]string, 0, len(names))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool { return position(ready[i]) < position(ready[j]) })
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	if len(ordered) != len(names) {
		var stuck []string
		for _, name := range names {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, invalid("dependency cycle among %s", strings.Join(stuck, ", "))
	}
	return ordered, nil
}
