// Package main generates a small forecast NetCDF file and a GeoJSON
// observation file for trying the server without real model output.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RegionalGrid defines the geographic bounds and resolution.
type RegionalGrid struct {
	LatMin     float64
	LatMax     float64
	LonMin     float64
	LonMax     float64
	Resolution float64 // degrees
}

func (g RegionalGrid) axes() (lat, lon []float64) {
	nLat := int((g.LatMax-g.LatMin)/g.Resolution) + 1
	nLon := int((g.LonMax-g.LonMin)/g.Resolution) + 1
	lat = make([]float64, nLat)
	for i := range lat {
		lat[i] = g.LatMin + float64(i)*g.Resolution
	}
	lon = make([]float64, nLon)
	for i := range lon {
		lon[i] = g.LonMin + float64(i)*g.Resolution
	}
	return lat, lon
}

// station is one observation site.
type station struct {
	Name string
	Lat  float64
	Lon  float64
}

var stations = []station{
	{"Reading", 51.44, -0.94},
	{"Bonn", 50.73, 7.10},
	{"Bologna", 44.49, 11.34},
	{"Toulouse", 43.60, 1.44},
}

var pressureLevels = []float32{1000, 850, 500}

func main() {
	outDir := flag.String("out", "./data", "Output directory")
	region := flag.String("region", "europe", "Region: europe, global, or custom")
	latMin := flag.Float64("lat-min", 30.0, "Minimum latitude (custom region)")
	latMax := flag.Float64("lat-max", 60.0, "Maximum latitude (custom region)")
	lonMin := flag.Float64("lon-min", -10.0, "Minimum longitude (custom region)")
	lonMax := flag.Float64("lon-max", 40.0, "Maximum longitude (custom region)")
	resolution := flag.Float64("resolution", 0.5, "Grid resolution in degrees")
	baseStr := flag.String("base", "2024-01-01T00:00:00Z", "Forecast base time (RFC3339)")
	steps := flag.Int("steps", 5, "Number of forecast steps")
	stepHours := flag.Int("step-hours", 6, "Hours between forecast steps")
	flag.Parse()

	var grid RegionalGrid
	switch *region {
	case "europe":
		grid = RegionalGrid{LatMin: 30, LatMax: 60, LonMin: -10, LonMax: 40, Resolution: *resolution}
	case "global":
		grid = RegionalGrid{LatMin: -90, LatMax: 90, LonMin: -180, LonMax: 180, Resolution: 1.0}
	case "custom":
		grid = RegionalGrid{LatMin: *latMin, LatMax: *latMax, LonMin: *lonMin, LonMax: *lonMax, Resolution: *resolution}
	default:
		log.Fatalf("Unknown region: %s (use europe, global, or custom)", *region)
	}

	base, err := time.Parse(time.RFC3339, *baseStr)
	if err != nil {
		log.Fatalf("Invalid base time: %v", err)
	}
	if *steps < 1 || *stepHours < 1 {
		log.Fatalf("steps and step-hours must be positive")
	}
	hours := make([]float64, *steps)
	for i := range hours {
		hours[i] = float64(i * *stepHours)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	ncPath := filepath.Join(*outDir, "forecast.nc")
	if err := writeForecast(ncPath, grid, base.UTC(), hours); err != nil {
		log.Fatalf("Failed to write %s: %v", ncPath, err)
	}
	lat, lon := grid.axes()
	log.Printf("Generated %s (%d x %d grid, %d steps, %d levels)", ncPath, len(lat), len(lon), len(hours), len(pressureLevels))

	obsPath := filepath.Join(*outDir, "observations.geojson")
	if err := writeObservations(obsPath, base.UTC(), hours); err != nil {
		log.Fatalf("Failed to write %s: %v", obsPath, err)
	}
	log.Printf("Generated %s (%d stations)", obsPath, len(stations))
}

func setText(v netcdf.Var, attrs map[string]string) error {
	for name, value := range attrs {
		if err := v.Attr(name).WriteBytes([]byte(value)); err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
	}
	return nil
}

// writeForecast writes temperature on pressure levels and a 10 m wind pair.
func writeForecast(path string, grid RegionalGrid, base time.Time, hours []float64) error {
	lat, lon := grid.axes()
	nt, nz, ny, nx := len(hours), len(pressureLevels), len(lat), len(lon)

	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer ds.Close()

	timeDim, err := ds.AddDim("time", uint64(nt))
	if err != nil {
		return err
	}
	levelDim, err := ds.AddDim("level", uint64(nz))
	if err != nil {
		return err
	}
	latDim, err := ds.AddDim("lat", uint64(ny))
	if err != nil {
		return err
	}
	lonDim, err := ds.AddDim("lon", uint64(nx))
	if err != nil {
		return err
	}

	type variable struct {
		name  string
		typ   netcdf.Type
		dims  []netcdf.Dim
		attrs map[string]string
	}
	defs := []variable{
		{"time", netcdf.DOUBLE, []netcdf.Dim{timeDim}, map[string]string{
			"standard_name": "time",
			"units":         "hours since " + base.Format("2006-01-02 15:04:05"),
		}},
		{"level", netcdf.FLOAT, []netcdf.Dim{levelDim}, map[string]string{
			"standard_name": "air_pressure", "units": "hPa",
		}},
		{"lat", netcdf.DOUBLE, []netcdf.Dim{latDim}, map[string]string{
			"standard_name": "latitude", "units": "degrees_north",
		}},
		{"lon", netcdf.DOUBLE, []netcdf.Dim{lonDim}, map[string]string{
			"standard_name": "longitude", "units": "degrees_east",
		}},
		{"t", netcdf.FLOAT, []netcdf.Dim{timeDim, levelDim, latDim, lonDim}, map[string]string{
			"standard_name": "air_temperature", "long_name": "Temperature", "units": "K",
		}},
		{"u10", netcdf.FLOAT, []netcdf.Dim{timeDim, latDim, lonDim}, map[string]string{
			"standard_name": "eastward_wind", "long_name": "10 metre U wind component", "units": "m s**-1",
		}},
		{"v10", netcdf.FLOAT, []netcdf.Dim{timeDim, latDim, lonDim}, map[string]string{
			"standard_name": "northward_wind", "long_name": "10 metre V wind component", "units": "m s**-1",
		}},
	}
	vars := make(map[string]netcdf.Var, len(defs))
	for _, d := range defs {
		v, err := ds.AddVar(d.name, d.typ, d.dims)
		if err != nil {
			return fmt.Errorf("variable %s: %w", d.name, err)
		}
		if err := setText(v, d.attrs); err != nil {
			return fmt.Errorf("variable %s: %w", d.name, err)
		}
		vars[d.name] = v
	}
	if err := ds.EndDef(); err != nil {
		return err
	}

	temp := make([]float32, 0, nt*nz*ny*nx)
	u := make([]float32, 0, nt*ny*nx)
	v := make([]float32, 0, nt*ny*nx)
	for it, h := range hours {
		phase := h * math.Pi / 12
		for _, p := range pressureLevels {
			// Roughly 6.5 K/km lapse with a standard atmosphere scale height.
			surface := 288.0 - 6.5*7.4*math.Log(1000/float64(p))
			for _, la := range lat {
				for _, lo := range lon {
					val := surface - 0.6*(la-45) + 3*math.Sin(lo*math.Pi/25+phase)
					temp = append(temp, float32(val))
				}
			}
		}
		for _, la := range lat {
			for _, lo := range lon {
				u = append(u, float32(8*math.Cos(la*math.Pi/30)+2*math.Sin(phase+float64(it))))
				v = append(v, float32(4*math.Sin(lo*math.Pi/20+phase)))
			}
		}
	}

	if err := vars["time"].WriteFloat64s(hours); err != nil {
		return err
	}
	if err := vars["level"].WriteFloat32s(pressureLevels); err != nil {
		return err
	}
	if err := vars["lat"].WriteFloat64s(lat); err != nil {
		return err
	}
	if err := vars["lon"].WriteFloat64s(lon); err != nil {
		return err
	}
	if err := vars["t"].WriteFloat32s(temp); err != nil {
		return err
	}
	if err := vars["u10"].WriteFloat32s(u); err != nil {
		return err
	}
	return vars["v10"].WriteFloat32s(v)
}

// writeObservations writes one timeseries feature per station.
func writeObservations(path string, base time.Time, hours []float64) error {
	fc := geojson.NewFeatureCollection()
	for i, s := range stations {
		f := geojson.NewFeature(orb.Point{s.Lon, s.Lat})
		f.Properties["name"] = s.Name
		series := make([]any, len(hours))
		for j, h := range hours {
			series[j] = map[string]any{
				"time":                 base.Add(time.Duration(h) * time.Hour).Format(time.RFC3339),
				"air_temperature":      math.Round((12+float64(i)-0.2*h)*10) / 10,
				"wind_speed":           5 + float64((i+j)%4),
				"wind_to_direction":    float64((90 * (i + j)) % 360),
				"precipitation_amount": float64(j%3) * 0.4,
			}
		}
		f.Properties["timeseries"] = series
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
