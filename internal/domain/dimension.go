package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Dimension describes a WMS dimension advertised for a layer.
type Dimension struct {
	Name       string `json:"name"`
	Units      string `json:"units"`
	UnitSymbol string `json:"unit_symbol,omitempty"`
	Default    string `json:"default"`
	Extent     string `json:"extent"`
}

// NewTimeDimension builds the time dimension from the given timestamps.
// Times are sorted; runs of three or more timestamps sharing the same
// positive step collapse into a start/end/period token.
func NewTimeDimension(times []time.Time) Dimension {
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	d := Dimension{
		Name:  TimeName,
		Units: "ISO8601",
	}
	if len(sorted) > 0 {
		d.Default = FormatTime(sorted[0])
	}
	d.Extent = strings.Join(timeExtent(sorted), ",")
	return d
}

func timeExtent(times []time.Time) []string {
	var extent []string
	for i := 0; i < len(times); {
		j := i
		var step time.Duration
		if i+2 < len(times) {
			step = times[i+1].Sub(times[i])
			if step > 0 {
				for j+1 < len(times) && times[j+1].Sub(times[j]) == step {
					j++
				}
			}
		}
		if j-i+1 >= 3 {
			extent = append(extent, fmt.Sprintf("%s/%s/%s",
				FormatTime(times[i]), FormatTime(times[j]), isoPeriod(step)))
			i = j + 1
			continue
		}
		extent = append(extent, FormatTime(times[i]))
		i++
	}
	return extent
}

func isoPeriod(step time.Duration) string {
	switch {
	case step%time.Hour == 0:
		return fmt.Sprintf("PT%dH", step/time.Hour)
	case step%time.Minute == 0:
		return fmt.Sprintf("PT%dM", step/time.Minute)
	default:
		return fmt.Sprintf("PT%dS", step/time.Second)
	}
}

// NewElevationDimension builds the elevation dimension from the distinct levels
// of a layer. Pressure layers are advertised in hectoPascal.
func NewElevationDimension(levels []float64, levelType LevelType) Dimension {
	seen := make(map[float64]bool, len(levels))
	distinct := make([]float64, 0, len(levels))
	for _, l := range levels {
		if !seen[l] {
			seen[l] = true
			distinct = append(distinct, l)
		}
	}
	sort.Float64s(distinct)

	d := Dimension{Name: ElevationName}
	if levelType == LevelPressure {
		d.Units = "hectoPascal"
		d.UnitSymbol = "hPa"
	} else {
		d.Units = "computed_surface"
	}

	extent := make([]string, len(distinct))
	for i, l := range distinct {
		extent[i] = FormatLevel(l)
	}
	if len(extent) > 0 {
		d.Default = extent[0]
	}
	d.Extent = strings.Join(extent, ",")
	return d
}

// Dimension names.
const (
	TimeName      = "time"
	ElevationName = "elevation"
	DimIndexName  = "dim_index"
)

// NewIndexDimension builds the dim_index dimension of a catalog layer with n fields.
func NewIndexDimension(n int) Dimension {
	return Dimension{
		Name:    DimIndexName,
		Units:   "no",
		Default: "0",
		Extent:  fmt.Sprintf("0/%d/1", n-1),
	}
}
