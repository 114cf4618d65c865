package observation

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/wms-api/internal/domain"
)

const stations = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [8.8, 53.1]},
      "properties": {
        "name": "Bremen",
        "timeseries": [
          {"time": "2024-01-01T00:00:00Z", "air_temperature": 274.1, "Wind_Speed": 3.2, "station_id": "10224"},
          {"time": "2024-01-01T01:00:00+01:00", "air_temperature": 273.9}
        ]
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [10.0, 53.6]},
      "properties": {"name": "Hamburg", "time": "2024-01-01T00:00:00Z", "air_temperature": 275.0}
    },
    {
      "type": "Feature",
      "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]},
      "properties": {"time": "2024-01-01T00:00:00Z", "air_temperature": 270}
    }
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestReader_FeatureCollection(t *testing.T) {
	path := writeFile(t, "synop.geojson", stations)

	fields, err := NewReader(slog.Default()).Fields(context.Background(), path)
	require.NoError(t, err)

	byName := map[string][]*domain.Field{}
	for _, f := range fields {
		byName[f.Name] = append(byName[f.Name], f)
	}

	// Both timeseries entries map to midnight UTC.
	require.Len(t, byName["air_temperature"], 1)
	require.Len(t, byName["wind_speed"], 1)
	require.Len(t, byName["synop"], 1)
	assert.NotContains(t, byName, "station_id")

	temp := byName["air_temperature"][0]
	assert.Equal(t, domain.FormatGeoJSON, temp.Format)
	assert.Equal(t, "air_temperature", temp.Locator.ValueProperty)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *temp.Time)

	fc, err := geojson.UnmarshalFeatureCollection(temp.Locator.Features)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3)
	assert.Equal(t, "Bremen", fc.Features[0].Properties["name"])

	agg := byName["synop"][0]
	assert.Empty(t, agg.Locator.ValueProperty)
	fc, err = geojson.UnmarshalFeatureCollection(agg.Locator.Features)
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, 3.2, fc.Features[0].Properties["wind_speed"])
	assert.NotContains(t, fc.Features[0].Properties, "Wind_Speed")
}

func TestReader_SingleFeature(t *testing.T) {
	path := writeFile(t, "obs.json", `{"type": "Feature",
		"geometry": {"type": "Point", "coordinates": [1, 2]},
		"properties": {"time": "2024-06-01T12:00:00", "cloud_area_fraction": 0.5}}`)

	fields, err := NewReader(slog.Default()).Fields(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, fields, 2)
	assert.Equal(t, "cloud_area_fraction", fields[0].Name)
	assert.Equal(t, "obs", fields[1].Name)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), *fields[1].Time)
}

func TestReader_NoUsableObservations(t *testing.T) {
	tests := map[string]string{
		"geometry": `{"type": "Polygon", "coordinates": []}`,
		"no time":  `{"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 2]}, "properties": {"air_temperature": 1}}`,
		"no type":  `{"features": []}`,
	}
	for name, content := range tests {
		path := writeFile(t, "x.geojson", content)
		_, err := NewReader(slog.Default()).Fields(context.Background(), path)
		assert.ErrorIs(t, err, domain.ErrNoFieldsFound, name)
	}
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2024-01-01T06:00:00+06:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}
