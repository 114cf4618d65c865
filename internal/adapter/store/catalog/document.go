package catalog

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"go.ngs.io/wms-api/internal/domain"
)

// Layer types understood by the catalog.
const (
	TypeMap        = "map"
	TypeGRIB       = "grib"
	TypeGRIBVector = "grib_vector"
)

// Document is the layer catalog file.
//
//	layers:
//	  - layer:
//	      name: t2m
//	      type: grib
//	      path: /data/t2m.grib
//	      index: [1, 2, 3]
//	      style_version: 2
//	      styles:
//	        - _verb: mcont
//	          contour_shade: "on"
type Document struct {
	Layers []Entry `yaml:"layers"`
}

// Entry wraps one layer definition.
type Entry struct {
	Layer *LayerConfig `yaml:"layer"`
}

// LayerConfig defines one catalog layer.
type LayerConfig struct {
	Name         string           `yaml:"name"`
	Title        string           `yaml:"title"`
	Type         string           `yaml:"type"`
	Path         string           `yaml:"path"`
	Index        Index            `yaml:"index"`
	StyleVersion int              `yaml:"style_version"`
	Styles       []map[string]any `yaml:"styles"`
}

// Index lists the 1-based GRIB message positions of the fields of a layer.
// Scalar layers use one position per field, vector layers a [u, v] pair.
type Index [][]int

// UnmarshalYAML accepts a single position, a list of positions or a list of
// position pairs.
func (x *Index) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		n, err := strconv.Atoi(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: invalid index %q", node.Line, node.Value)
		}
		*x = Index{{n}}
		return nil
	case yaml.SequenceNode:
		out := make(Index, 0, len(node.Content))
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				n, err := strconv.Atoi(item.Value)
				if err != nil {
					return fmt.Errorf("line %d: invalid index %q", item.Line, item.Value)
				}
				out = append(out, []int{n})
			case yaml.SequenceNode:
				var pair []int
				if err := item.Decode(&pair); err != nil {
					return fmt.Errorf("line %d: %w", item.Line, err)
				}
				out = append(out, pair)
			default:
				return fmt.Errorf("line %d: unsupported index entry", item.Line)
			}
		}
		*x = out
		return nil
	}
	return fmt.Errorf("line %d: unsupported index", node.Line)
}

// ReadDocument parses the catalog at path.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open catalog %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not parse catalog %s: %w", path, err)
	}
	for i, e := range doc.Layers {
		if e.Layer == nil {
			return nil, fmt.Errorf("catalog %s: entry %d defines no layer", path, i)
		}
	}
	return &doc, nil
}

// Find returns the definition of the layer called name.
func (d *Document) Find(name string) (*LayerConfig, bool) {
	for _, e := range d.Layers {
		if e.Layer.Name == name {
			return e.Layer, true
		}
	}
	return nil, false
}

// styles converts the configured plotting commands into the single "default"
// style of a catalog layer.
func (c *LayerConfig) styles() ([]domain.Style, error) {
	cmds := make([]domain.StyleCommand, 0, len(c.Styles))
	for _, s := range c.Styles {
		verb, _ := s["_verb"].(string)
		if verb == "" {
			return nil, fmt.Errorf("layer %s: style %v has no _verb", c.Name, s)
		}
		params := make(map[string]any, len(s)-1)
		for k, v := range s {
			if k != "_verb" {
				params[k] = v
			}
		}
		cmds = append(cmds, domain.StyleCommand{Verb: verb, Params: params})
	}
	return []domain.Style{{Name: "default", Title: "default", Commands: cmds}}, nil
}

func (c *LayerConfig) validate() error {
	if c.Type == "" {
		return errors.New("no type is specified")
	}
	switch c.Type {
	case TypeMap:
		return nil
	case TypeGRIB, TypeGRIBVector:
	default:
		return fmt.Errorf("unsupported layer type %q", c.Type)
	}
	if c.Path == "" {
		return errors.New("no path is specified")
	}
	if len(c.Index) == 0 {
		return errors.New("no index is specified")
	}
	want := 1
	if c.Type == TypeGRIBVector {
		want = 2
	}
	for _, idx := range c.Index {
		if len(idx) != want {
			return fmt.Errorf("index entry %v: expected %d position(s)", idx, want)
		}
	}
	return nil
}
