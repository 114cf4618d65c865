// Package cdf extracts fields from NetCDF classic and NetCDF-4 files.
//
// Every data variable that has latitude and longitude coordinates becomes one
// field per combination of its non-spatial coordinate values. Variables listed
// in another variable's "coordinates" or "bounds" attribute are never data.
package cdf

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/wms-api/internal/domain"
)

// libnetcdf is not thread-safe.
var lock sync.Mutex

type coordKind int

const (
	kindOther coordKind = iota
	kindLatitude
	kindLongitude
	kindTime
	kindPressure
	kindModel
)

// metadata holds the CF attributes the reader looks at.
type metadata struct {
	StandardName string
	LongName     string
	Axis         string
	Units        string
	Coordinates  string
	Bounds       string
}

func (m metadata) kind(name string) coordKind {
	switch {
	case m.StandardName == "longitude" || m.StandardName == "projection_x_coordinate" || m.LongName == "longitude":
		return kindLongitude
	case m.StandardName == "latitude" || m.StandardName == "projection_y_coordinate" || m.LongName == "latitude":
		return kindLatitude
	case m.StandardName == "time" || m.StandardName == "forecast_reference_time" || m.Axis == "T":
		return kindTime
	case m.StandardName == "air_pressure":
		return kindPressure
	case m.StandardName == "model_level_number" || m.StandardName == "altitude":
		return kindModel
	}
	// Files without CF metadata still name their axes.
	switch strings.ToLower(name) {
	case "lon", "longitude":
		return kindLongitude
	case "lat", "latitude":
		return kindLatitude
	}
	return kindOther
}

type variable struct {
	name string
	v    netcdf.Var
	dims []string
	meta metadata
}

// coordinate is a decoded coordinate variable.
type coordinate struct {
	name   string
	kind   coordKind
	info   bool
	values []float64
	times  []time.Time
}

func (c *coordinate) len() int {
	return len(c.values)
}

func (c *coordinate) label(i int) string {
	if c.kind == kindTime {
		return domain.FormatTime(c.times[i])
	}
	return domain.FormatLevel(c.values[i])
}

// Reader extracts NetCDF fields through libnetcdf.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a NetCDF reader.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger}
}

// Fields implements store.FieldReader.
func (r *Reader) Fields(ctx context.Context, path string) ([]*domain.Field, error) {
	lock.Lock()
	defer lock.Unlock()

	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	vars, err := listVariables(nc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	skip := make(map[string]bool)
	for _, v := range vars {
		for _, n := range strings.Fields(v.meta.Coordinates) {
			skip[n] = true
		}
		for _, n := range strings.Fields(v.meta.Bounds) {
			skip[n] = true
		}
	}

	byName := make(map[string]*variable, len(vars))
	for _, v := range vars {
		byName[v.name] = v
	}

	coords := make(map[string]*coordinate)
	var fields []*domain.Field
	for _, v := range vars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if skip[v.name] || isCoordinateVariable(v) {
			continue
		}
		vf, err := r.variableFields(path, v, byName, coords)
		if err != nil {
			return nil, fmt.Errorf("%s: variable %s: %w", path, v.name, err)
		}
		fields = append(fields, vf...)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: no 2D fields: %w", path, domain.ErrNoFieldsFound)
	}
	return fields, nil
}

func (r *Reader) variableFields(path string, v *variable, byName map[string]*variable, cache map[string]*coordinate) ([]*domain.Field, error) {
	var (
		coords []*coordinate
		hasLat bool
		hasLon bool
	)
	add := func(name string, info bool) error {
		cv, ok := byName[name]
		if !ok {
			return nil
		}
		c, err := decodeCoordinate(cv, cache)
		if err != nil {
			return err
		}
		switch c.kind {
		case kindLatitude:
			hasLat = true
			return nil
		case kindLongitude:
			hasLon = true
			return nil
		}
		if info && c.len() != 1 {
			r.logger.Debug("ignoring non-scalar auxiliary coordinate",
				"path", path, "variable", v.name, "coordinate", name)
			return nil
		}
		ic := *c
		ic.info = info
		coords = append(coords, &ic)
		return nil
	}

	dimSet := make(map[string]bool, len(v.dims))
	for _, d := range v.dims {
		dimSet[d] = true
		if cv, ok := byName[d]; ok && isCoordinateVariable(cv) {
			if err := add(d, false); err != nil {
				return nil, err
			}
		}
	}
	for _, n := range strings.Fields(v.meta.Coordinates) {
		if dimSet[n] {
			continue
		}
		if err := add(n, true); err != nil {
			return nil, err
		}
	}

	if !hasLat || !hasLon {
		r.logger.Info("skipping NetCDF variable (not a 2D field)", "path", path, "variable", v.name)
		return nil, nil
	}

	title := v.meta.LongName
	if title == "" {
		title = v.meta.StandardName
	}
	if title == "" {
		title = v.name
	}

	var out []*domain.Field
	product(coords, func(idx []int) {
		f := domain.NewField(domain.FormatNetCDF, path)
		f.LevelType = domain.LevelNone
		f.Locator.Variable = v.name
		var suffix strings.Builder
		for i, c := range coords {
			f.Locator.Slices = append(f.Locator.Slices, domain.Slice{Name: c.name, Index: idx[i], Info: c.info})
			switch c.kind {
			case kindTime:
				t := c.times[idx[i]]
				f.Time = &t
			case kindPressure, kindModel:
				level := c.values[idx[i]]
				f.Level = &level
				f.LevelType = domain.LevelModel
				if c.kind == kindPressure {
					f.LevelType = domain.LevelPressure
				}
			}
			if c.info {
				fmt.Fprintf(&suffix, " (%s=%s)", c.name, c.label(idx[i]))
			}
		}
		f.TitleSuffix = suffix.String()
		f.SetIdentity(v.name, title)
		out = append(out, f)
	})
	return out, nil
}

// product calls fn with every index combination of coords, last coordinate
// varying fastest. With no coordinates fn is called once.
func product(coords []*coordinate, fn func([]int)) {
	idx := make([]int, len(coords))
	for _, c := range coords {
		if c.len() == 0 {
			return
		}
	}
	for {
		fn(append([]int(nil), idx...))
		i := len(coords) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < coords[i].len() {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

func isCoordinateVariable(v *variable) bool {
	return len(v.dims) == 1 && v.dims[0] == v.name
}

func listVariables(nc netcdf.Dataset) ([]*variable, error) {
	n, err := nc.NVars()
	if err != nil {
		return nil, fmt.Errorf("failed to count variables: %w", err)
	}
	out := make([]*variable, 0, n)
	for i := 0; i < n; i++ {
		v := nc.VarN(i)
		name, err := v.Name()
		if err != nil {
			return nil, fmt.Errorf("failed to get variable %d name: %w", i, err)
		}
		dims, err := v.Dims()
		if err != nil {
			return nil, fmt.Errorf("failed to get dimensions of %s: %w", name, err)
		}
		dimNames := make([]string, len(dims))
		for j, d := range dims {
			if dimNames[j], err = d.Name(); err != nil {
				return nil, fmt.Errorf("failed to get dimension name of %s: %w", name, err)
			}
		}
		out = append(out, &variable{name: name, v: v, dims: dimNames, meta: readMetadata(v)})
	}
	return out, nil
}

func readMetadata(v netcdf.Var) metadata {
	return metadata{
		StandardName: textAttr(v, "standard_name"),
		LongName:     textAttr(v, "long_name"),
		Axis:         textAttr(v, "axis"),
		Units:        textAttr(v, "units"),
		Coordinates:  textAttr(v, "coordinates"),
		Bounds:       textAttr(v, "bounds"),
	}
}

// textAttr returns a character attribute, or "" when it is missing or not text.
func textAttr(v netcdf.Var, name string) string {
	a := v.Attr(name)
	if a == (netcdf.Attr{}) {
		return ""
	}
	t, err := a.Type()
	if err != nil || t != netcdf.CHAR {
		return ""
	}
	n, err := a.Len()
	if err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return ""
	}
	return strings.TrimRight(string(buf), "\x00 ")
}

func decodeCoordinate(v *variable, cache map[string]*coordinate) (*coordinate, error) {
	if c, ok := cache[v.name]; ok {
		return c, nil
	}
	c := &coordinate{name: v.name, kind: v.meta.kind(v.name)}
	// Spatial axes are never enumerated.
	if c.kind != kindLatitude && c.kind != kindLongitude {
		values, err := readFloat64s(v.v)
		if err != nil {
			return nil, fmt.Errorf("coordinate %s: %w", v.name, err)
		}
		c.values = values
		switch c.kind {
		case kindTime:
			c.times, err = decodeTimes(v.meta.Units, values)
			if err != nil {
				return nil, fmt.Errorf("coordinate %s: %w", v.name, err)
			}
		case kindPressure:
			if strings.EqualFold(v.meta.Units, "Pa") {
				for i := range c.values {
					c.values[i] /= 100
				}
			}
		}
	}
	cache[v.name] = c
	return c, nil
}

// readFloat64s reads a whole numeric variable as float64.
func readFloat64s(v netcdf.Var) ([]float64, error) {
	length, err := v.Len()
	if err != nil {
		return nil, fmt.Errorf("failed to get length: %w", err)
	}
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	out := make([]float64, length)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, length)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, length)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, length)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT64:
		tmp := make([]int64, length)
		if err := v.ReadInt64s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}

var timeUnits = map[string]time.Duration{
	"second":  time.Second,
	"seconds": time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"s":       time.Second,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"min":     time.Minute,
	"mins":    time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"hr":      time.Hour,
	"hrs":     time.Hour,
	"h":       time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"d":       24 * time.Hour,
}

var referenceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04Z",
	"2006-01-02",
	"2006-1-2 15:4:5",
	"2006-1-2",
}

// decodeTimes converts CF "<unit> since <reference>" offsets to UTC times.
func decodeTimes(units string, values []float64) ([]time.Time, error) {
	unit, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return nil, fmt.Errorf("unsupported time units %q", units)
	}
	step, ok := timeUnits[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return nil, fmt.Errorf("unsupported time unit %q", unit)
	}
	ref, err := parseReference(since)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		out[i] = ref.Add(time.Duration(v * float64(step))).UTC()
	}
	return out, nil
}

func parseReference(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, " UTC")
	// Drop a fractional ".0" on the seconds, common in CF files.
	if i := strings.LastIndex(s, "."); i > 0 && strings.Count(s[i+1:], "0") == len(s[i+1:]) {
		s = s[:i]
	}
	for _, layout := range referenceLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time reference %q", s)
}
