package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeLevelLayer(t *testing.T) *DataLayer {
	t.Helper()
	ts := at("2024-01-01T00:00:00Z")
	l := NewDataLayer("t", "Temperature", plainField("t", "Temperature", ts, LevelPressure, lvl(850)))
	for _, level := range []float64{500, 300} {
		added, err := l.AddField(plainField("t", "Temperature", ts, LevelPressure, lvl(level)), "Temperature")
		require.NoError(t, err)
		require.True(t, added)
	}
	return l
}

func TestDataLayer_ThreeLevels(t *testing.T) {
	l := threeLevelLayer(t)

	assert.Equal(t, 3, l.Len())
	assert.False(t, l.FixedLayer())

	dims := l.Dimensions()
	require.Len(t, dims, 2)
	assert.Equal(t, "time", dims[0].Name)
	assert.Equal(t, "2024-01-01T00:00:00Z", dims[0].Extent)
	assert.Equal(t, "elevation", dims[1].Name)
	assert.Equal(t, "hectoPascal", dims[1].Units)
	assert.Equal(t, "300,500,850", dims[1].Extent)

	f, err := l.Select(&Dims{Time: "2024-01-01T00:00:00Z", Elevation: "500"})
	require.NoError(t, err)
	assert.Equal(t, 500.0, *f.Level)
}

func TestDataLayer_SelectUnknownElevationListsCombinations(t *testing.T) {
	l := threeLevelLayer(t)

	_, err := l.Select(&Dims{Time: "2024-01-01T00:00:00Z", Elevation: "999"})
	require.Error(t, err)

	var nf *FieldNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Len(t, nf.Available, 3)
	assert.Contains(t, err.Error(), "elevation=300")
	assert.Contains(t, err.Error(), "elevation=500")
	assert.Contains(t, err.Error(), "elevation=850")
}

func TestDataLayer_SelectNilReturnsFirst(t *testing.T) {
	l := threeLevelLayer(t)

	f, err := l.Select(nil)
	require.NoError(t, err)
	assert.Same(t, l.First(), f)
}

func TestDataLayer_SelectDefaults(t *testing.T) {
	l := threeLevelLayer(t)

	f, err := l.Select(&Dims{})
	require.NoError(t, err)
	assert.Equal(t, 850.0, *f.Level)
}

func TestDataLayer_SelectTruncatesTimeSuffix(t *testing.T) {
	l := threeLevelLayer(t)

	f, err := l.Select(&Dims{Time: "2024-01-01T00:00:00.000Z", Elevation: "300"})
	require.NoError(t, err)
	assert.Equal(t, 300.0, *f.Level)
}

func TestDataLayer_SelectInvalidValues(t *testing.T) {
	l := threeLevelLayer(t)

	_, err := l.Select(&Dims{Time: "yesterday"})
	var inv *InvalidDimensionError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "time", inv.Dimension)

	_, err = l.Select(&Dims{Elevation: "high"})
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "elevation", inv.Dimension)
}

func TestDataLayer_DuplicateKeyKeepsOriginal(t *testing.T) {
	ts := at("2024-01-01T00:00:00Z")
	first := plainField("2t", "2 metre temperature", ts, LevelSurface, nil)
	l := NewDataLayer("2t", "2 metre temperature", first)

	dup := plainField("2t", "2 metre temperature", ts, LevelSurface, nil)
	added, err := l.AddField(dup, "2 metre temperature")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, l.Len())

	f, err := l.Select(nil)
	require.NoError(t, err)
	assert.Same(t, first, f)
}

func TestDataLayer_TitleConflict(t *testing.T) {
	ts := at("2024-01-01T00:00:00Z")
	l := NewDataLayer("t", "Temperature", plainField("t", "Temperature", ts, LevelPressure, lvl(500)))

	_, err := l.AddField(plainField("t", "Air temperature", ts, LevelPressure, lvl(850)), "Air temperature")

	var conflict *TitleConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "Temperature", conflict.Stored)
}

func TestDataLayer_FixedLayerHasNoTimeDimension(t *testing.T) {
	l := NewDataLayer("lsm", "Land-sea mask", plainField("lsm", "Land-sea mask", nil, LevelSurface, nil))

	assert.True(t, l.FixedLayer())
	assert.Empty(t, l.Dimensions())

	f, err := l.Select(&Dims{})
	require.NoError(t, err)
	assert.Equal(t, "lsm", f.Name)
}

func TestDataLayer_TimeSeries(t *testing.T) {
	l := NewDataLayer("msl", "Mean sea level pressure",
		plainField("msl", "Mean sea level pressure", at("2024-01-01T00:00:00Z"), LevelSurface, nil))
	for _, ts := range []string{"2024-01-01T06:00:00Z", "2024-01-01T12:00:00Z"} {
		_, err := l.AddField(plainField("msl", "Mean sea level pressure", at(ts), LevelSurface, nil), "Mean sea level pressure")
		require.NoError(t, err)
	}

	dims := l.Dimensions()
	require.Len(t, dims, 1)
	assert.Equal(t, "2024-01-01T00:00:00Z/2024-01-01T12:00:00Z/PT6H", dims[0].Extent)

	f, err := l.Select(&Dims{Time: "2024-01-01T06:00:00"})
	require.NoError(t, err)
	assert.Equal(t, at("2024-01-01T06:00:00Z").Unix(), f.Time.Unix())
}

func TestStaticLayer(t *testing.T) {
	l := NewStaticLayer("grid", "Grid", 99999)

	assert.True(t, l.FixedLayer())
	assert.Nil(t, l.Dimensions())

	f, err := l.Select(nil)
	require.NoError(t, err)
	assert.Equal(t, FormatStatic, f.Format)
	assert.Equal(t, "grid", f.Name)

	st, err := l.Style("anything")
	require.NoError(t, err)
	assert.Nil(t, st)
}
