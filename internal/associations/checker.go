package associations

import (
	"fmt"

	"github.com/ksred/schema-guard/internal/utils"
)

// Violation is one association without its required inverse
type Violation struct {
	Message   string `json:"message"`
	TableName string `json:"table_name"`
	Model     string `json:"model"`
	Alias     string `json:"alias,omitempty"`
}

// Violations is the result of a consistency check
type Violations []Violation

// Err returns nil for an empty list and a *utils.ConsistencyError otherwise
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}

	messages := make([]string, len(v))
	for i, violation := range v {
		messages[i] = violation.Message
	}
	return &utils.ConsistencyError{Messages: messages}
}

// CheckMatchingBelongsTo looks for a belongsTo on associatedModelName that
// points back at modelName. It never modifies the graph.
func CheckMatchingBelongsTo(graph *Graph, modelName, associatedModelName string) []Violation {
	return checkEdge(graph, Association{
		Kind:   HasMany,
		Source: modelName,
		Target: associatedModelName,
		Alias:  associatedModelName,
	})
}

// Check walks every hasOne and hasMany edge in the graph and collects all violations
func Check(graph *Graph) Violations {
	var violations Violations
	for _, m := range graph.Models() {
		for _, a := range m.Associations {
			if !a.Kind.RequiresInverse() {
				continue
			}
			violations = append(violations, checkEdge(graph, a)...)
		}
	}
	return violations
}

func checkEdge(graph *Graph, edge Association) []Violation {
	target := graph.Model(edge.Target)
	if target == nil {
		return []Violation{{
			Message: fmt.Sprintf("%s %s %s (as %s) but model %s is not declared",
				edge.Source, edge.Kind, edge.Target, edge.Alias, edge.Target),
			TableName: edge.Target,
			Model:     edge.Target,
			Alias:     edge.Alias,
		}}
	}

	for _, inverse := range target.Associations {
		if inverse.Kind != BelongsTo || inverse.Target != edge.Source {
			continue
		}
		if foreignKeysCompatible(edge.ForeignKey, inverse.ForeignKey) {
			return nil
		}
	}

	return []Violation{{
		Message: fmt.Sprintf("%s %s %s (as %s) but %s has no matching belongsTo %s",
			edge.Source, edge.Kind, edge.Target, edge.Alias, edge.Target, edge.Source),
		TableName: target.TableName,
		Model:     target.Name,
		Alias:     edge.Alias,
	}}
}

// foreignKeysCompatible treats an undeclared key on either side as a match
func foreignKeysCompatible(a, b string) bool {
	return a == "" || b == "" || a == b
}
