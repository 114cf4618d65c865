package domain

import (
	"errors"
	"sort"
	"strconv"
	"time"
)

// Layer is anything a WMS client can request by name.
type Layer interface {
	Info() LayerInfo
	FixedLayer() bool
	Dimensions() []Dimension
	Styles() []Style
	Style(name string) (*Style, error)
	Select(dims *Dims) (*Field, error)
}

// LayerInfo holds the advertised identity of a layer.
type LayerInfo struct {
	Name        string
	Title       string
	Description string
	ZIndex      int
}

// DataLayer aggregates the fields sharing one layer name, keyed by (time, level).
type DataLayer struct {
	LayerInfo

	first  *Field
	fields map[FieldKey]*Field
	order  []FieldKey // Insertion order.
}

// NewDataLayer creates a layer seeded with its first field.
func NewDataLayer(name, title string, f *Field) *DataLayer {
	l := &DataLayer{
		LayerInfo: LayerInfo{Name: name, Title: title},
		first:     f,
		fields:    make(map[FieldKey]*Field),
	}
	key := f.Key()
	l.fields[key] = f
	l.order = append(l.order, key)
	return l
}

// Info implements Layer.
func (l *DataLayer) Info() LayerInfo { return l.LayerInfo }

// AddField inserts a field under its (time, level) key. It returns false when
// the key is already taken; the stored field is kept in that case.
// A title different from the layer title is a TitleConflictError.
func (l *DataLayer) AddField(f *Field, title string) (bool, error) {
	if title != l.Title {
		return false, &TitleConflictError{Layer: l.Name, Stored: l.Title, Got: title}
	}
	key := f.Key()
	if _, ok := l.fields[key]; ok {
		return false, nil
	}
	l.fields[key] = f
	l.order = append(l.order, key)
	return true, nil
}

// First returns the field the layer was created with.
func (l *DataLayer) First() *Field { return l.first }

// Len returns the number of fields in the layer.
func (l *DataLayer) Len() int { return len(l.fields) }

// Fields returns the fields in insertion order.
func (l *DataLayer) Fields() []*Field {
	out := make([]*Field, len(l.order))
	for i, k := range l.order {
		out[i] = l.fields[k]
	}
	return out
}

// FixedLayer reports whether the layer has no time axis.
func (l *DataLayer) FixedLayer() bool {
	return l.first.Time == nil
}

// Dimensions derives the time and elevation dimensions of the layer.
func (l *DataLayer) Dimensions() []Dimension {
	var dims []Dimension
	if !l.FixedLayer() {
		seen := make(map[int64]bool)
		var times []time.Time
		for _, k := range l.order {
			f := l.fields[k]
			if f.Time == nil || seen[k.Time] {
				continue
			}
			seen[k.Time] = true
			times = append(times, *f.Time)
		}
		dims = append(dims, NewTimeDimension(times))
	}

	var levels []float64
	for _, k := range l.order {
		if k.HasLevel {
			levels = append(levels, k.Level)
		}
	}
	if len(levels) > 0 {
		dims = append(dims, NewElevationDimension(levels, l.first.LevelType))
	}
	return dims
}

// Styles returns the styles of the first field.
func (l *DataLayer) Styles() []Style { return l.first.Styles }

// Style looks up a style by name.
func (l *DataLayer) Style(name string) (*Style, error) {
	return l.first.Style(name)
}

// Select resolves dimension selectors to a single field.
// A nil dims returns the first field of the layer.
func (l *DataLayer) Select(dims *Dims) (*Field, error) {
	if dims == nil {
		return l.first, nil
	}

	var t *time.Time
	if dims.Time != "" {
		parsed, err := ParseTime(dims.Time)
		if err != nil {
			return nil, &InvalidDimensionError{Dimension: TimeName, Value: dims.Time, Err: err}
		}
		t = &parsed
	} else {
		t = l.first.Time
	}

	var level *float64
	if dims.Elevation != "" {
		v, err := strconv.ParseFloat(dims.Elevation, 64)
		if err != nil {
			return nil, &InvalidDimensionError{Dimension: ElevationName, Value: dims.Elevation, Err: err}
		}
		level = &v
	} else {
		level = l.defaultLevel(t)
	}

	key := NewFieldKey(t, level)
	if f, ok := l.fields[key]; ok {
		return f, nil
	}
	return nil, &FieldNotFoundError{Layer: l.Name, Requested: key, Available: l.keys()}
}

// defaultLevel returns the level of the first inserted field at time t.
func (l *DataLayer) defaultLevel(t *time.Time) *float64 {
	probe := NewFieldKey(t, nil)
	for _, k := range l.order {
		if k.Fixed == probe.Fixed && k.Time == probe.Time {
			return l.fields[k].Level
		}
	}
	return l.first.Level
}

// keys returns every key sorted by time then level.
func (l *DataLayer) keys() []FieldKey {
	keys := make([]FieldKey, len(l.order))
	copy(keys, l.order)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Time != keys[j].Time {
			return keys[i].Time < keys[j].Time
		}
		return keys[i].Level < keys[j].Level
	})
	return keys
}

// ParseTime parses a WMS time value. Only the first 19 characters
// (YYYY-MM-DDTHH:MM:SS) are significant; the result is UTC.
func ParseTime(s string) (time.Time, error) {
	if len(s) < 19 {
		return time.Time{}, errors.New("expected YYYY-MM-DDTHH:MM:SS")
	}
	return time.Parse("2006-01-02T15:04:05", s[:19])
}

// StaticLayer is a map decoration drawn by the plotter itself
// (coastlines, grid, boundaries).
type StaticLayer struct {
	LayerInfo
	styles []Style
}

// NewStaticLayer creates a static plotter layer.
func NewStaticLayer(name, title string, zindex int, styles ...Style) *StaticLayer {
	return &StaticLayer{
		LayerInfo: LayerInfo{Name: name, Title: title, ZIndex: zindex},
		styles:    styles,
	}
}

// Info implements Layer.
func (s *StaticLayer) Info() LayerInfo { return s.LayerInfo }

// FixedLayer implements Layer.
func (s *StaticLayer) FixedLayer() bool { return true }

// Dimensions implements Layer.
func (s *StaticLayer) Dimensions() []Dimension { return nil }

// Styles implements Layer.
func (s *StaticLayer) Styles() []Style { return s.styles }

// Style implements Layer. Decorations are drawn the same way whatever style
// a client names, so an unknown name is not a StyleNotDefinedError: it
// returns a nil style and the plotter's default decoration is drawn.
func (s *StaticLayer) Style(name string) (*Style, error) {
	st, err := findStyle(s.styles, name)
	if err != nil {
		return nil, nil
	}
	return st, nil
}

// Select returns a pseudo field naming the decoration.
func (s *StaticLayer) Select(_ *Dims) (*Field, error) {
	f := NewField(FormatStatic, "")
	f.SetIdentity(s.Name, s.Title)
	f.Styles = s.styles
	return f, nil
}
