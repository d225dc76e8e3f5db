package associations

import (
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm/schema"
)

var relationshipKinds = map[schema.RelationshipType]Kind{
	schema.HasOne:    HasOne,
	schema.HasMany:   HasMany,
	schema.BelongsTo: BelongsTo,
	schema.Many2Many: BelongsToMany,
}

// FromGormModels derives a graph from gorm model structs using their
// relationship tags. No database connection is needed. Models referenced by
// a relationship but not passed in are left undeclared.
func FromGormModels(models ...interface{}) (*Graph, error) {
	cache := &sync.Map{}
	namer := schema.NamingStrategy{}

	schemas := make([]*schema.Schema, 0, len(models))
	graph := NewGraph()
	for _, model := range models {
		s, err := schema.Parse(model, cache, namer)
		if err != nil {
			return nil, fmt.Errorf("failed to parse model %T: %w", model, err)
		}
		if _, err := graph.AddModel(s.Name, s.Table); err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}

	for _, s := range schemas {
		names := make([]string, 0, len(s.Relationships.Relations))
		for name := range s.Relationships.Relations {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			rel := s.Relationships.Relations[name]
			kind, ok := relationshipKinds[rel.Type]
			if !ok || rel.FieldSchema == nil {
				continue
			}
			if err := graph.Associate(s.Name, kind, rel.FieldSchema.Name, rel.Name, foreignKeyOf(rel)); err != nil {
				return nil, err
			}
		}
	}

	return graph, nil
}

func foreignKeyOf(rel *schema.Relationship) string {
	if rel.Type == schema.Many2Many {
		return ""
	}
	for _, ref := range rel.References {
		if ref.ForeignKey != nil && ref.PrimaryKey != nil {
			return ref.ForeignKey.DBName
		}
	}
	return ""
}
