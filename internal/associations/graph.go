package associations

import (
	"fmt"
)

// Kind is the type of a declared association
type Kind string

const (
	HasOne        Kind = "hasOne"
	HasMany       Kind = "hasMany"
	BelongsTo     Kind = "belongsTo"
	BelongsToMany Kind = "belongsToMany"
)

// Valid reports whether k is a known association kind
func (k Kind) Valid() bool {
	switch k {
	case HasOne, HasMany, BelongsTo, BelongsToMany:
		return true
	}
	return false
}

// RequiresInverse reports whether an edge of this kind needs a belongsTo back
func (k Kind) RequiresInverse() bool {
	return k == HasOne || k == HasMany
}

// Association is a typed edge from Source to Target
type Association struct {
	Kind       Kind   `json:"kind" yaml:"kind"`
	Source     string `json:"source" yaml:"-"`
	Target     string `json:"target" yaml:"target"`
	Alias      string `json:"alias" yaml:"alias"`
	ForeignKey string `json:"foreign_key,omitempty" yaml:"foreign_key"`
}

// Model is a node of the graph
type Model struct {
	Name         string        `json:"name"`
	TableName    string        `json:"table_name"`
	Associations []Association `json:"associations"`
}

// Graph holds the declared models indexed by name. Insertion order is kept
// so checks and reports are deterministic.
type Graph struct {
	models []*Model
	index  map[string]int
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddModel adds a model node. The table name defaults to the model name.
func (g *Graph) AddModel(name, tableName string) (*Model, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if _, exists := g.index[name]; exists {
		return nil, fmt.Errorf("model %s already declared", name)
	}
	if tableName == "" {
		tableName = name
	}

	m := &Model{Name: name, TableName: tableName}
	g.index[name] = len(g.models)
	g.models = append(g.models, m)
	return m, nil
}

// Associate declares an edge on the source model. The target does not have
// to exist yet; a dangling target is reported by Check.
func (g *Graph) Associate(source string, kind Kind, target, alias, foreignKey string) error {
	m := g.Model(source)
	if m == nil {
		return fmt.Errorf("model %s not declared", source)
	}
	if !kind.Valid() {
		return fmt.Errorf("model %s: unknown association kind %q", source, kind)
	}
	if target == "" {
		return fmt.Errorf("model %s: association target is required", source)
	}
	if alias == "" {
		alias = target
	}

	m.Associations = append(m.Associations, Association{
		Kind:       kind,
		Source:     source,
		Target:     target,
		Alias:      alias,
		ForeignKey: foreignKey,
	})
	return nil
}

// Model returns the named model or nil
func (g *Graph) Model(name string) *Model {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.models[i]
}

// Models returns every model in insertion order
func (g *Graph) Models() []*Model {
	out := make([]*Model, len(g.models))
	copy(out, g.models)
	return out
}

// Len returns the number of models
func (g *Graph) Len() int {
	return len(g.models)
}
