package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func hoursFrom(base string, hours ...int) []time.Time {
	t0 := *at(base)
	out := make([]time.Time, len(hours))
	for i, h := range hours {
		out[i] = t0.Add(time.Duration(h) * time.Hour)
	}
	return out
}

func TestTimeDimension_CompactsEqualSteps(t *testing.T) {
	d := NewTimeDimension(hoursFrom("2024-01-01T00:00:00Z", 0, 6, 12, 18))

	assert.Equal(t, "time", d.Name)
	assert.Equal(t, "ISO8601", d.Units)
	assert.Equal(t, "2024-01-01T00:00:00Z", d.Default)
	assert.Equal(t, "2024-01-01T00:00:00Z/2024-01-01T18:00:00Z/PT6H", d.Extent)
}

func TestTimeDimension_SortsInput(t *testing.T) {
	d := NewTimeDimension(hoursFrom("2024-01-01T00:00:00Z", 12, 0, 6))

	assert.Equal(t, "2024-01-01T00:00:00Z", d.Default)
	assert.Equal(t, "2024-01-01T00:00:00Z/2024-01-01T12:00:00Z/PT6H", d.Extent)
}

func TestTimeDimension_TwoTimesStayExplicit(t *testing.T) {
	d := NewTimeDimension(hoursFrom("2024-01-01T00:00:00Z", 0, 6))

	assert.Equal(t, "2024-01-01T00:00:00Z,2024-01-01T06:00:00Z", d.Extent)
}

func TestTimeDimension_MixedSteps(t *testing.T) {
	d := NewTimeDimension(hoursFrom("2024-01-01T00:00:00Z", 0, 3, 6, 9, 21, 33))

	assert.Equal(t,
		"2024-01-01T00:00:00Z/2024-01-01T09:00:00Z/PT3H,2024-01-01T21:00:00Z,2024-01-02T09:00:00Z",
		d.Extent)
}

func TestTimeDimension_ZeroDeltaNeverCompacts(t *testing.T) {
	d := NewTimeDimension(hoursFrom("2024-01-01T00:00:00Z", 0, 0, 0))

	assert.Equal(t,
		"2024-01-01T00:00:00Z,2024-01-01T00:00:00Z,2024-01-01T00:00:00Z",
		d.Extent)
}

func TestTimeDimension_DuplicateBeforeRun(t *testing.T) {
	d := NewTimeDimension(hoursFrom("2024-01-01T00:00:00Z", 0, 0, 6, 12))

	assert.Equal(t,
		"2024-01-01T00:00:00Z,2024-01-01T00:00:00Z/2024-01-01T12:00:00Z/PT6H",
		d.Extent)
}

func TestTimeDimension_MinuteSteps(t *testing.T) {
	t0 := *at("2024-01-01T00:00:00Z")
	times := []time.Time{t0, t0.Add(15 * time.Minute), t0.Add(30 * time.Minute)}

	d := NewTimeDimension(times)

	assert.Equal(t, "2024-01-01T00:00:00Z/2024-01-01T00:30:00Z/PT15M", d.Extent)
}

func TestElevationDimension_Pressure(t *testing.T) {
	d := NewElevationDimension([]float64{850, 300, 500, 500}, LevelPressure)

	assert.Equal(t, "elevation", d.Name)
	assert.Equal(t, "hectoPascal", d.Units)
	assert.Equal(t, "hPa", d.UnitSymbol)
	assert.Equal(t, "300,500,850", d.Extent)
	assert.Equal(t, "300", d.Default)
}

func TestElevationDimension_ModelLevels(t *testing.T) {
	d := NewElevationDimension([]float64{137, 1, 60}, LevelModel)

	assert.Equal(t, "computed_surface", d.Units)
	assert.Empty(t, d.UnitSymbol)
	assert.Equal(t, "1,60,137", d.Extent)
}

func TestIndexDimension(t *testing.T) {
	d := NewIndexDimension(4)

	assert.Equal(t, "dim_index", d.Name)
	assert.Equal(t, "0/3/1", d.Extent)
	assert.Equal(t, "0", d.Default)
}
