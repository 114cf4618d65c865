// Package catalog serves layers declared in a YAML catalog instead of layers
// discovered by scanning data files. Fields are addressed by GRIB message
// position and selected through the dim_index dimension.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.ngs.io/wms-api/internal/domain"
)

// Availability is the catalog-backed layer index.
type Availability struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	loaded bool
	index  *domain.Index
	arena  domain.Arena
}

// New creates an availability reading the catalog at path on first use.
func New(path string, logger *slog.Logger) *Availability {
	return &Availability{
		path:   path,
		logger: logger,
		index:  domain.NewIndex(false),
	}
}

// Load reads the whole catalog. It only does work on the first call.
func (a *Availability) Load(ctx context.Context) error {
	a.mu.RLock()
	loaded := a.loaded
	a.mu.RUnlock()
	if loaded {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := ReadDocument(a.path)
	if err != nil {
		return err
	}
	for i, e := range doc.Layers {
		if err := a.addLayer(i, e.Layer); err != nil {
			return err
		}
	}
	a.loaded = true
	a.logger.Info("catalog loaded", "path", a.path, "layers", a.index.Len())
	return nil
}

// addLayer builds and registers one layer. The caller holds the write lock.
func (a *Availability) addLayer(id int, c *LayerConfig) error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("catalog layer %d (%s): %w", id, c.Name, err)
	}
	name := c.Name
	if name == "" {
		name = fmt.Sprintf("%s_%d", c.Type, id)
	}
	title := c.Title
	if title == "" {
		title = name
	}

	base := &layer{
		LayerInfo: domain.LayerInfo{Name: name, Title: title, ZIndex: id},
		loader:    a,
	}
	if err := base.setStyles(c); err != nil {
		return err
	}

	if c.Type == TypeMap {
		a.index.AddLayer(&MapLayer{layer: base})
		return nil
	}

	dl := &DataLayer{layer: base}
	for _, idx := range c.Index {
		f := a.field(c.Path, name, title, idx[0])
		if c.Type == TypeGRIBVector {
			v := a.field(c.Path, name, title, idx[1])
			a.arena.Link(f, v)
		}
		dl.fields = append(dl.fields, f)
	}
	a.index.AddLayer(dl)
	return nil
}

func (a *Availability) field(path, name, title string, position int) *domain.Field {
	f := domain.NewField(domain.FormatGRIB, path)
	f.SetIdentity(name, title)
	f.Locator.Position = position
	return a.arena.Add(f)
}

// loadLayer adds the layer called name if the catalog now defines it.
func (a *Availability) loadLayer(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.index.Resolve(name); err == nil {
		return nil
	}
	doc, err := ReadDocument(a.path)
	if err != nil {
		return err
	}
	c, ok := doc.Find(name)
	if !ok {
		return &domain.LayerNotDefinedError{Name: name}
	}
	a.logger.Info("loading catalog layer on demand", "layer", name)
	return a.addLayer(a.index.Len()+1, c)
}

// reloadStyles implements styleLoader.
func (a *Availability) reloadStyles(l *layer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc, err := ReadDocument(a.path)
	if err != nil {
		return err
	}
	c, ok := doc.Find(l.Name)
	if !ok {
		return nil
	}
	a.logger.Info("reloading catalog styles", "layer", l.Name, "style_version", c.StyleVersion)
	return l.setStyles(c)
}

// Layers returns every catalog layer sorted by name.
func (a *Availability) Layers(ctx context.Context) ([]domain.Layer, error) {
	if err := a.Load(ctx); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.Layers(), nil
}

// Lookup resolves a layer, loading it from the catalog when it is not known yet.
func (a *Availability) Lookup(ctx context.Context, name string) (domain.Layer, error) {
	if err := a.Load(ctx); err != nil {
		return nil, err
	}
	a.mu.RLock()
	l, err := a.index.Resolve(name)
	a.mu.RUnlock()

	var notDefined *domain.LayerNotDefinedError
	if !errors.As(err, &notDefined) {
		return l, err
	}
	if err := a.loadLayer(name); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.Resolve(name)
}

// Layer resolves name and selects the field matching dims.
func (a *Availability) Layer(ctx context.Context, name string, dims *domain.Dims) (*domain.Field, error) {
	l, err := a.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return l.Select(dims)
}

// Companion returns the other component of a vector field.
func (a *Availability) Companion(f *domain.Field) *domain.Field {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.arena.Companion(f)
}

// Aliases returns the alias table.
func (a *Availability) Aliases() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.Aliases()
}
