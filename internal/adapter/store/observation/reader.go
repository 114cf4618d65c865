// Package observation extracts point observation fields from GeoJSON files.
//
// A file holds a Feature or a FeatureCollection of Points whose properties
// are either one observation (with a "time") or a "timeseries" list of them.
// Each supported property at each time becomes one field, and all supported
// properties at one time form an aggregate field named after the file.
package observation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"go.ngs.io/wms-api/internal/domain"
)

// Supported lists the observation properties kept from the input.
var Supported = map[string]bool{
	"air_temperature":              true,
	"wind_to_direction":            true,
	"wind_speed":                   true,
	"precipitation_amount":         true,
	"thunderstorm_probability":     true,
	"surface_air_pressure_reduced": true,
	"cloud_area_fraction":          true,
	"present_weather":              true,
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp and returns it in UTC. Timestamps
// without an offset are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 time %q", s)
}

// observation is one station value set at one time.
type observation struct {
	point   orb.Point
	station string
	time    time.Time
	raw     string
	values  map[string]any
}

// Reader extracts GeoJSON observation fields.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a GeoJSON reader.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger}
}

// Fields implements store.FieldReader.
func (r *Reader) Fields(ctx context.Context, path string) ([]*domain.Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read GeoJSON file: %w", err)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var features []*geojson.Feature
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		features = fc.Features
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		features = []*geojson.Feature{f}
	case "":
		r.logger.Warn("GeoJSON type not found", "path", path)
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNoFieldsFound)
	default:
		r.logger.Warn("unsupported GeoJSON type", "path", path, "type", head.Type)
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNoFieldsFound)
	}

	var obs []observation
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obs = append(obs, r.observations(path, f)...)
	}

	fields, err := r.group(path, obs)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNoFieldsFound)
	}
	return fields, nil
}

func (r *Reader) observations(path string, f *geojson.Feature) []observation {
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		r.logger.Warn("skipping non-point feature", "path", path, "geometry", geometryType(f.Geometry))
		return nil
	}
	station, _ := f.Properties["name"].(string)

	var sets []map[string]any
	if ts, ok := f.Properties["timeseries"].([]any); ok {
		for _, item := range ts {
			if m, ok := item.(map[string]any); ok {
				sets = append(sets, m)
			}
		}
	} else {
		sets = append(sets, f.Properties)
	}

	var out []observation
	for _, props := range sets {
		raw, _ := props["time"].(string)
		if raw == "" {
			r.logger.Warn("observation without time, skipping", "path", path, "station", station)
			continue
		}
		t, err := ParseTime(raw)
		if err != nil {
			r.logger.Warn("skipping observation", "path", path, "station", station, "error", err)
			continue
		}
		values := make(map[string]any)
		for k, v := range props {
			k = strings.ToLower(k)
			if Supported[k] {
				values[k] = v
			}
		}
		out = append(out, observation{point: pt, station: station, time: t, raw: raw, values: values})
	}
	return out
}

type groupKey struct {
	property string
	time     int64
}

type group struct {
	property string
	time     time.Time
	fc       *geojson.FeatureCollection
}

// group builds one field per (property, time), in order of first appearance,
// followed by one aggregate field per time.
func (r *Reader) group(path string, obs []observation) ([]*domain.Field, error) {
	var (
		perProperty []*group
		perTime     []*group
		byProperty  = make(map[groupKey]*group)
		byTime      = make(map[int64]*group)
	)
	for _, o := range obs {
		props := make([]string, 0, len(o.values))
		for k := range o.values {
			props = append(props, k)
		}
		sort.Strings(props)

		for _, p := range props {
			key := groupKey{property: p, time: o.time.Unix()}
			g, ok := byProperty[key]
			if !ok {
				g = &group{property: p, time: o.time, fc: geojson.NewFeatureCollection()}
				byProperty[key] = g
				perProperty = append(perProperty, g)
			}
			g.fc.Append(feature(o, map[string]any{p: o.values[p]}))
		}

		g, ok := byTime[o.time.Unix()]
		if !ok {
			g = &group{time: o.time, fc: geojson.NewFeatureCollection()}
			byTime[o.time.Unix()] = g
			perTime = append(perTime, g)
		}
		g.fc.Append(feature(o, o.values))
	}

	layer := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	fields := make([]*domain.Field, 0, len(perProperty)+len(perTime))
	for _, g := range perProperty {
		f, err := newField(path, g.property, g)
		if err != nil {
			return nil, err
		}
		f.Locator.ValueProperty = g.property
		fields = append(fields, f)
	}
	for _, g := range perTime {
		f, err := newField(path, layer, g)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func feature(o observation, values map[string]any) *geojson.Feature {
	f := geojson.NewFeature(o.point)
	f.Properties["time"] = o.raw
	f.Properties["name"] = o.station
	for k, v := range values {
		f.Properties[k] = v
	}
	return f
}

func newField(path, name string, g *group) (*domain.Field, error) {
	payload, err := g.fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s features: %w", name, err)
	}
	f := domain.NewField(domain.FormatGeoJSON, path)
	t := g.time
	f.Time = &t
	f.LevelType = domain.LevelNone
	f.Locator.Features = payload
	f.SetIdentity(name, name)
	return f, nil
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "none"
	}
	return g.GeoJSONType()
}
