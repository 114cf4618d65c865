package catalog

import (
	"fmt"
	"strconv"
	"sync"

	"go.ngs.io/wms-api/internal/domain"
)

// styleLoader re-reads the styles of a layer from the catalog file.
type styleLoader interface {
	reloadStyles(l *layer) error
}

// layer holds what map and data layers share: identity and a versioned style
// set that can be refreshed from the catalog.
type layer struct {
	domain.LayerInfo
	loader styleLoader

	mu      sync.RWMutex
	version int
	styles  []domain.Style
}

func (l *layer) Info() domain.LayerInfo { return l.LayerInfo }

func (l *layer) Styles() []domain.Style {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.styles
}

func (l *layer) setStyles(c *LayerConfig) error {
	styles, err := c.styles()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.styles = styles
	l.version = c.StyleVersion
	l.mu.Unlock()
	return nil
}

// Style returns the default style. A non-empty name is the style version the
// client expects; a different version triggers a reload from the catalog, and
// a version still different afterwards is a StyleNotDefinedError.
func (l *layer) Style(name string) (*domain.Style, error) {
	if name != "" && name != "default" {
		want, err := strconv.Atoi(name)
		if err != nil {
			return nil, &domain.StyleNotDefinedError{Name: name}
		}
		l.mu.RLock()
		current := l.version
		l.mu.RUnlock()
		if want != current {
			if err := l.loader.reloadStyles(l); err != nil {
				return nil, err
			}
			l.mu.RLock()
			current = l.version
			l.mu.RUnlock()
			if want != current {
				return nil, &domain.StyleNotDefinedError{Name: name}
			}
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.styles) == 0 {
		return nil, &domain.StyleNotDefinedError{Name: name}
	}
	return &l.styles[0], nil
}

// MapLayer is a coastline layer whose styles are plotter commands.
type MapLayer struct {
	*layer
}

// FixedLayer implements domain.Layer.
func (m *MapLayer) FixedLayer() bool { return true }

// Dimensions implements domain.Layer.
func (m *MapLayer) Dimensions() []domain.Dimension { return nil }

// Select returns a static field carrying the layer styles.
func (m *MapLayer) Select(_ *domain.Dims) (*domain.Field, error) {
	f := domain.NewField(domain.FormatStatic, "")
	f.SetIdentity(m.Name, m.Title)
	f.Styles = m.Styles()
	return f, nil
}

// DataLayer addresses its fields by position in the catalog index list.
type DataLayer struct {
	*layer
	fields []*domain.Field
}

// Fields returns the fields in index order.
func (d *DataLayer) Fields() []*domain.Field { return d.fields }

// FixedLayer implements domain.Layer.
func (d *DataLayer) FixedLayer() bool { return len(d.fields) == 0 }

// Dimensions implements domain.Layer.
func (d *DataLayer) Dimensions() []domain.Dimension {
	if d.FixedLayer() {
		return nil
	}
	return []domain.Dimension{domain.NewIndexDimension(len(d.fields))}
}

// Select picks the field at dims.DimIndex, the first one when unset.
func (d *DataLayer) Select(dims *domain.Dims) (*domain.Field, error) {
	if len(d.fields) == 0 {
		return nil, fmt.Errorf("layer %s: %w", d.Name, domain.ErrNoFieldsFound)
	}
	if dims == nil || dims.DimIndex == "" {
		return d.withStyles(d.fields[0]), nil
	}
	i, err := strconv.Atoi(dims.DimIndex)
	if err != nil {
		return nil, &domain.InvalidDimensionError{Dimension: domain.DimIndexName, Value: dims.DimIndex, Err: err}
	}
	if i < 0 || i >= len(d.fields) {
		return nil, &domain.InvalidDimensionError{
			Dimension: domain.DimIndexName,
			Value:     dims.DimIndex,
			Err:       fmt.Errorf("out of range 0..%d", len(d.fields)-1),
		}
	}
	return d.withStyles(d.fields[i]), nil
}

// withStyles returns a copy of f carrying the current layer styles. Indexed
// fields are shared between requests and never written after loading.
func (d *DataLayer) withStyles(f *domain.Field) *domain.Field {
	c := *f
	c.Styles = d.Styles()
	return &c
}
