package associations

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// graphFile is the on-disk layout of a model graph:
//
//	models:
//	  Order:
//	    table: orders
//	    associations:
//	      - kind: hasMany
//	        target: LineItem
//	        alias: items
//	        foreign_key: order_id
type graphFile struct {
	Models map[string]modelFile `yaml:"models"`
}

type modelFile struct {
	Table        string        `yaml:"table"`
	Associations []Association `yaml:"associations"`
}

// LoadFile reads a graph definition from a YAML file
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model graph %s: %w", path, err)
	}

	graph, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return graph, nil
}

// Parse builds a graph from YAML. Models are added in name order.
func Parse(data []byte) (*Graph, error) {
	var file graphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model graph: %w", err)
	}

	names := make([]string, 0, len(file.Models))
	for name := range file.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	graph := NewGraph()
	for _, name := range names {
		if _, err := graph.AddModel(name, file.Models[name].Table); err != nil {
			return nil, err
		}
	}

	for _, name := range names {
		for _, a := range file.Models[name].Associations {
			if err := graph.Associate(name, a.Kind, a.Target, a.Alias, a.ForeignKey); err != nil {
				return nil, err
			}
		}
	}

	return graph, nil
}
