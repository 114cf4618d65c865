package domain

import (
	"fmt"
	"strconv"
	"time"
)

// LevelType classifies the vertical coordinate of a field.
type LevelType int

const (
	// LevelNone is used when the source carries no vertical information.
	LevelNone LevelType = iota
	// LevelSurface covers single-level fields (surface, mean sea level, height above ground).
	LevelSurface
	// LevelPressure is an isobaric level expressed in hPa.
	LevelPressure
	// LevelModel is a model, hybrid or other computed level.
	LevelModel
)

// String returns the short level-type label.
func (t LevelType) String() string {
	switch t {
	case LevelSurface:
		return "sfc"
	case LevelPressure:
		return "pl"
	case LevelModel:
		return "ml"
	default:
		return "none"
	}
}

// Format identifies the adapter that produced a field.
type Format string

const (
	FormatGRIB    Format = "grib"
	FormatNetCDF  Format = "netcdf"
	FormatGeoJSON Format = "geojson"
	FormatStatic  Format = "static"
)

// FieldID indexes a field inside an Arena.
type FieldID int

// NoField marks an unset field reference.
const NoField FieldID = -1

// Slice pins one non-spatial NetCDF dimension to an index.
type Slice struct {
	Name  string // Dimension name.
	Index int    // Position along the dimension.
	Info  bool   // Scalar auxiliary coordinate, only shown in titles.
}

// Locator tells a renderer where a field lives inside its file.
// The availability index never interprets it.
type Locator struct {
	Offset   int64 // GRIB: byte offset of the message.
	Position int   // GRIB: 1-based message position in the file.

	Variable string  // NetCDF: data variable name.
	Slices   []Slice // NetCDF: index per non-spatial dimension.

	Features      []byte // GeoJSON: encoded FeatureCollection.
	ValueProperty string // GeoJSON: property plotted, empty for the aggregate field.
}

// Field is one renderable 2D slice of a dataset.
type Field struct {
	ID     FieldID
	Format Format
	Path   string

	ShortName string
	LongName  string

	Name       string // Layer key in ungrouped mode.
	Title      string
	GroupName  string // Layer key in dimension-grouped mode.
	GroupTitle string

	// NameSuffix and TitleSuffix are appended to the short and long names
	// when the identity is (re)computed, e.g. "_500" and " at 500".
	NameSuffix  string
	TitleSuffix string

	Time      *time.Time // Nil for fixed (time-invariant) fields.
	LevelType LevelType
	Level     *float64

	Locator   Locator
	Companion FieldID
	Vector    bool

	Styles []Style
}

// NewField returns a field with no companion.
func NewField(format Format, path string) *Field {
	return &Field{
		ID:        NoField,
		Format:    format,
		Path:      path,
		Companion: NoField,
	}
}

// SetIdentity assigns the short and long names and recomputes the derived
// layer names and titles.
func (f *Field) SetIdentity(shortName, longName string) {
	f.ShortName = shortName
	f.LongName = longName
	f.rename(shortName, longName)
}

// rename recomputes the derived names from a display name, leaving the
// parameter names untouched.
func (f *Field) rename(name, title string) {
	f.Name = name + f.NameSuffix
	f.Title = title + f.TitleSuffix
	f.GroupName = name
	f.GroupTitle = title
}

// LayerKey returns the name and title the field is aggregated under.
func (f *Field) LayerKey(grouped bool) (name, title string) {
	if grouped {
		return f.GroupName, f.GroupTitle
	}
	return f.Name, f.Title
}

// Validate checks the level invariant.
func (f *Field) Validate() error {
	if (f.LevelType == LevelPressure || f.LevelType == LevelModel) && f.Level == nil {
		return fmt.Errorf("field %s: %s level type without a level value", f.Name, f.LevelType)
	}
	return nil
}

// Key returns the (time, level) key of the field.
func (f *Field) Key() FieldKey {
	return NewFieldKey(f.Time, f.Level)
}

// Style looks up one of the field's styles by name.
// An empty name selects the first style, or none when the field has no styles.
func (f *Field) Style(name string) (*Style, error) {
	return findStyle(f.Styles, name)
}

func (f *Field) String() string {
	return fmt.Sprintf("%s[%s,%s]", f.Format, f.Path, f.Name)
}

// FieldKey is the comparable (time, level) key of a field inside a layer.
type FieldKey struct {
	Fixed    bool  // No time.
	Time     int64 // Unix seconds when not fixed.
	HasLevel bool
	Level    float64
}

// NewFieldKey builds a key from optional time and level values.
func NewFieldKey(t *time.Time, level *float64) FieldKey {
	k := FieldKey{Fixed: t == nil}
	if t != nil {
		k.Time = t.Unix()
	}
	if level != nil {
		k.HasLevel = true
		k.Level = *level
	}
	return k
}

func (k FieldKey) String() string {
	ts := "none"
	if !k.Fixed {
		ts = FormatTime(time.Unix(k.Time, 0))
	}
	ls := "none"
	if k.HasLevel {
		ls = FormatLevel(k.Level)
	}
	return fmt.Sprintf("(time=%s, elevation=%s)", ts, ls)
}

// FormatTime renders a timestamp the way WMS dimension extents expect it.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05") + "Z"
}

// FormatLevel renders a level without a trailing ".0" for integral values.
func FormatLevel(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Dims holds the dimension selectors of a query. Empty strings select defaults.
type Dims struct {
	Time      string
	Elevation string
	DimIndex  string
}
