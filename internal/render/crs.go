package render

import (
	"fmt"
	"sort"

	"go.ngs.io/wms-api/internal/domain"
)

// CRS is a coordinate reference system the plotter can project to.
type CRS struct {
	Name       string
	Projection string // Plotter projection name.
	// Bounding box in the CRS axis units.
	MinX, MinY, MaxX, MaxY float64
	// LatLonAxes is set when WMS 1.3.0 orders the bbox latitude first.
	LatLonAxes bool
}

// BoundingBox is a geographic extent in degrees.
type BoundingBox struct {
	West, South, East, North float64
}

// GeographicBoundingBox is the extent advertised for every layer.
var GeographicBoundingBox = BoundingBox{West: -180, South: -90, East: 180, North: 90}

var crss = map[string]CRS{
	"EPSG:4326": {Name: "EPSG:4326", Projection: "EPSG:4326", MinX: -90, MinY: -180, MaxX: 90, MaxY: 180, LatLonAxes: true},
	"CRS:84":    {Name: "CRS:84", Projection: "EPSG:4326", MinX: -180, MinY: -90, MaxX: 180, MaxY: 90},
	"EPSG:3857": {
		Name: "EPSG:3857", Projection: "EPSG:3857",
		MinX: -20037508.34, MinY: -20037508.34, MaxX: 20037508.34, MaxY: 20037508.34,
	},
}

// UnsupportedCRSError is returned for a CRS the plotter cannot draw.
type UnsupportedCRSError struct {
	CRS string
}

func (e *UnsupportedCRSError) Error() string {
	return fmt.Sprintf("unsupported CRS '%s'", e.CRS)
}

// LookupCRS returns the named CRS.
func LookupCRS(name string) (CRS, error) {
	c, ok := crss[name]
	if !ok {
		return CRS{}, &UnsupportedCRSError{CRS: name}
	}
	return c, nil
}

// SupportedCRSs returns every CRS sorted by name.
func SupportedCRSs() []CRS {
	out := make([]CRS, 0, len(crss))
	for _, c := range crss {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Static decoration layers drawn by the plotter.
const (
	staticTop    = 99999
	staticBottom = -99999
)

// StaticLayers returns the foreground, background, grid and boundaries layers.
func StaticLayers() []domain.Layer {
	return []domain.Layer{
		domain.NewStaticLayer("foreground", "Foreground", staticTop),
		domain.NewStaticLayer("background", "Background", staticBottom),
		domain.NewStaticLayer("grid", "Grid", staticTop),
		domain.NewStaticLayer("boundaries", "Boundaries", staticTop),
	}
}
