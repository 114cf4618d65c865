package domain

import (
	"fmt"
	"sort"
)

// DefaultAlias names the layer of the first field ever indexed.
const DefaultAlias = "default"

// Index maps layer names (and aliases) to layers. It performs no I/O and no
// locking; callers serialise writes.
type Index struct {
	grouped bool
	layers  map[string]Layer
	aliases map[string]string
	arena   Arena
}

// NewIndex creates an empty index. In grouped mode fields are aggregated by
// their group name so levels become a dimension of one layer.
func NewIndex(grouped bool) *Index {
	return &Index{
		grouped: grouped,
		layers:  make(map[string]Layer),
		aliases: make(map[string]string),
	}
}

// Grouped reports whether layers are keyed by group name.
func (x *Index) Grouped() bool { return x.grouped }

// Adopt moves a batch into the index arena and returns the fields to add.
func (x *Index) Adopt(b *Batch) []*Field {
	return x.arena.Adopt(b)
}

// AddField aggregates a field into its layer. It returns false when the
// layer already holds a field with the same (time, level) key.
func (x *Index) AddField(f *Field) (bool, error) {
	name, title := f.LayerKey(x.grouped)
	if _, ok := x.aliases[DefaultAlias]; !ok {
		x.aliases[DefaultAlias] = name
	}

	existing, ok := x.layers[name]
	if !ok {
		x.layers[name] = NewDataLayer(name, title, f)
		return true, nil
	}
	dl, ok := existing.(*DataLayer)
	if !ok {
		return false, fmt.Errorf("layer %s is not a data layer", name)
	}
	return dl.AddField(f, title)
}

// AddLayer registers a prebuilt layer, replacing any layer of the same name.
func (x *Index) AddLayer(l Layer) {
	name := l.Info().Name
	if _, ok := x.aliases[DefaultAlias]; !ok {
		x.aliases[DefaultAlias] = name
	}
	x.layers[name] = l
}

// SetAlias makes alias resolve to target.
func (x *Index) SetAlias(alias, target string) {
	x.aliases[alias] = target
}

// Aliases returns a copy of the alias table.
func (x *Index) Aliases() map[string]string {
	out := make(map[string]string, len(x.aliases))
	for k, v := range x.aliases {
		out[k] = v
	}
	return out
}

// Resolve follows the alias chain of name and returns the layer.
func (x *Index) Resolve(name string) (Layer, error) {
	requested := name
	seen := make(map[string]bool)
	for {
		target, ok := x.aliases[name]
		if !ok {
			break
		}
		if seen[name] {
			return nil, fmt.Errorf("resolving %s: %w", requested, ErrAliasCycle)
		}
		seen[name] = true
		name = target
	}
	l, ok := x.layers[name]
	if !ok {
		return nil, &LayerNotDefinedError{Name: requested}
	}
	return l, nil
}

// Layer resolves name and selects the field matching dims.
func (x *Index) Layer(name string, dims *Dims) (*Field, error) {
	l, err := x.Resolve(name)
	if err != nil {
		return nil, err
	}
	return l.Select(dims)
}

// Layers returns every layer sorted by name.
func (x *Index) Layers() []Layer {
	names := make([]string, 0, len(x.layers))
	for name := range x.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Layer, len(names))
	for i, name := range names {
		out[i] = x.layers[name]
	}
	return out
}

// Len returns the number of layers.
func (x *Index) Len() int { return len(x.layers) }

// Companion returns the companion of f, or nil.
func (x *Index) Companion(f *Field) *Field {
	return x.arena.Companion(f)
}

// Field returns the arena field with the given id.
func (x *Index) Field(id FieldID) *Field {
	return x.arena.Get(id)
}

// FieldCount returns the number of fields reachable through data layers.
func (x *Index) FieldCount() int {
	n := 0
	for _, l := range x.layers {
		if dl, ok := l.(*DataLayer); ok {
			n += dl.Len()
		}
	}
	return n
}
