package cdf

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/wms-api/internal/domain"
)

func setText(t *testing.T, v netcdf.Var, name, value string) {
	t.Helper()
	require.NoError(t, v.Attr(name).WriteBytes([]byte(value)))
}

// createForecastNC writes a file with:
//
//	t(time, level, lat, lon)  temperature on 2 times x 2 pressure levels
//	t2m(time, lat, lon)       with a scalar "height" auxiliary coordinate
//	time_bnds(time, nv)       bounds of time, never a field
//	crs(nv)                   no spatial coordinates
func createForecastNC(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forecast.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	require.NoError(t, err)
	defer f.Close()

	timeDim, _ := f.AddDim("time", 2)
	levelDim, _ := f.AddDim("level", 2)
	latDim, _ := f.AddDim("lat", 2)
	lonDim, _ := f.AddDim("lon", 3)
	nvDim, _ := f.AddDim("nv", 2)
	oneDim, _ := f.AddDim("one", 1)

	vtime, _ := f.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeDim})
	setText(t, vtime, "standard_name", "time")
	setText(t, vtime, "units", "hours since 2024-01-01 00:00:00.0")
	setText(t, vtime, "bounds", "time_bnds")

	vlevel, _ := f.AddVar("level", netcdf.FLOAT, []netcdf.Dim{levelDim})
	setText(t, vlevel, "standard_name", "air_pressure")
	setText(t, vlevel, "units", "hPa")

	vlat, _ := f.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	setText(t, vlat, "standard_name", "latitude")
	vlon, _ := f.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	setText(t, vlon, "standard_name", "longitude")

	vheight, _ := f.AddVar("height", netcdf.DOUBLE, []netcdf.Dim{oneDim})
	setText(t, vheight, "long_name", "height above ground")

	vbnds, _ := f.AddVar("time_bnds", netcdf.DOUBLE, []netcdf.Dim{timeDim, nvDim})
	vcrs, _ := f.AddVar("crs", netcdf.INT, []netcdf.Dim{nvDim})

	vt, _ := f.AddVar("t", netcdf.FLOAT, []netcdf.Dim{timeDim, levelDim, latDim, lonDim})
	setText(t, vt, "long_name", "Temperature")
	vt2m, _ := f.AddVar("t2m", netcdf.FLOAT, []netcdf.Dim{timeDim, latDim, lonDim})
	setText(t, vt2m, "standard_name", "air_temperature")
	setText(t, vt2m, "coordinates", "height")

	require.NoError(t, f.EndDef())

	require.NoError(t, vtime.WriteFloat64s([]float64{0, 6}))
	require.NoError(t, vlevel.WriteFloat32s([]float32{850, 500}))
	require.NoError(t, vlat.WriteFloat64s([]float64{35, 36}))
	require.NoError(t, vlon.WriteFloat64s([]float64{139, 140, 141}))
	require.NoError(t, vheight.WriteFloat64s([]float64{2}))
	require.NoError(t, vbnds.WriteFloat64s([]float64{0, 0, 0, 6}))
	require.NoError(t, vcrs.WriteInt32s([]int32{0, 0}))
	require.NoError(t, vt.WriteFloat32s(make([]float32, 2*2*2*3)))
	require.NoError(t, vt2m.WriteFloat32s(make([]float32, 2*2*3)))
	return path
}

func TestReader_Fields(t *testing.T) {
	path := createForecastNC(t)

	fields, err := NewReader(slog.Default()).Fields(context.Background(), path)
	require.NoError(t, err)

	var temp, t2m []*domain.Field
	for _, f := range fields {
		switch f.Name {
		case "t":
			temp = append(temp, f)
		case "t2m":
			t2m = append(t2m, f)
		default:
			t.Errorf("unexpected field %s", f.Name)
		}
	}
	require.Len(t, temp, 4)
	require.Len(t, t2m, 2)

	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f := temp[3]
	assert.Equal(t, domain.FormatNetCDF, f.Format)
	assert.Equal(t, "Temperature", f.Title)
	assert.Equal(t, domain.LevelPressure, f.LevelType)
	require.NotNil(t, f.Level)
	assert.Equal(t, 500.0, *f.Level)
	require.NotNil(t, f.Time)
	assert.Equal(t, ref.Add(6*time.Hour), *f.Time)
	assert.Equal(t, "t", f.Locator.Variable)
	assert.Equal(t, []domain.Slice{{Name: "time", Index: 1}, {Name: "level", Index: 1}}, f.Locator.Slices)

	g := t2m[0]
	assert.Equal(t, "air_temperature (height=2)", g.Title)
	assert.Equal(t, "air_temperature", g.GroupTitle)
	assert.Equal(t, domain.LevelNone, g.LevelType)
	assert.Nil(t, g.Level)
	assert.Equal(t, ref, *g.Time)
	assert.Equal(t, []domain.Slice{{Name: "time", Index: 0}, {Name: "height", Index: 0, Info: true}}, g.Locator.Slices)
}

func TestReader_NoSpatialVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	require.NoError(t, err)
	nDim, _ := f.AddDim("n", 3)
	v, _ := f.AddVar("values", netcdf.DOUBLE, []netcdf.Dim{nDim})
	require.NoError(t, f.EndDef())
	require.NoError(t, v.WriteFloat64s([]float64{1, 2, 3}))
	require.NoError(t, f.Close())

	_, err = NewReader(slog.Default()).Fields(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrNoFieldsFound)
}

func TestDecodeTimes(t *testing.T) {
	tests := []struct {
		units string
		value float64
		want  time.Time
	}{
		{"hours since 1900-01-01 00:00:00.0", 24, time.Date(1900, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"seconds since 1970-01-01T00:00:00Z", 90, time.Date(1970, 1, 1, 0, 1, 30, 0, time.UTC)},
		{"days since 2000-01-01", 1.5, time.Date(2000, 1, 2, 12, 0, 0, 0, time.UTC)},
		{"minutes since 2024-03-01 06:00", 30, time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := decodeTimes(tt.units, []float64{tt.value})
		require.NoError(t, err, tt.units)
		assert.Equal(t, tt.want, got[0], tt.units)
	}

	_, err := decodeTimes("hours", []float64{1})
	assert.Error(t, err)
	_, err = decodeTimes("fortnights since 2000-01-01", []float64{1})
	assert.Error(t, err)
}

func TestMetadataKind(t *testing.T) {
	assert.Equal(t, kindLongitude, metadata{StandardName: "projection_x_coordinate"}.kind("x"))
	assert.Equal(t, kindLatitude, metadata{LongName: "latitude"}.kind("y"))
	assert.Equal(t, kindTime, metadata{Axis: "T"}.kind("valid"))
	assert.Equal(t, kindModel, metadata{StandardName: "model_level_number"}.kind("lev"))
	assert.Equal(t, kindLatitude, metadata{}.kind("LAT"))
	assert.Equal(t, kindOther, metadata{}.kind("member"))
}

func TestProduct(t *testing.T) {
	a := &coordinate{values: []float64{1, 2}}
	b := &coordinate{values: []float64{1, 2, 3}}

	var got [][]int
	product([]*coordinate{a, b}, func(idx []int) { got = append(got, idx) })
	assert.Equal(t, [][]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}, got)

	calls := 0
	product(nil, func([]int) { calls++ })
	assert.Equal(t, 1, calls)
}
