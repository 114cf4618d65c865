// Package formats assembles the store registry for every supported data
// file format.
package formats

import (
	"log/slog"

	"go.ngs.io/wms-api/internal/adapter/store"
	"go.ngs.io/wms-api/internal/adapter/store/cdf"
	"go.ngs.io/wms-api/internal/adapter/store/grib"
	"go.ngs.io/wms-api/internal/adapter/store/observation"
)

// File signatures.
const (
	magicGRIB    = "GRIB"
	magicHDF5    = "\x89HDF"
	magicCDF1    = "CDF\x01"
	magicCDF2    = "CDF\x02"
	magicCDF5    = "CDF\x05"
	formatGRIB   = "grib"
	formatNetCDF = "netcdf"
	formatJSON   = "geojson"
)

// NewRegistry returns a registry recognising GRIB editions 1 and 2, NetCDF
// (classic, 64-bit offset, CDF-5 and NetCDF-4) and GeoJSON observations.
func NewRegistry(logger *slog.Logger) *store.Registry {
	r := store.NewRegistry()
	r.Register(formatGRIB, store.Magic(magicGRIB), grib.NewReader(logger))

	nc := cdf.NewReader(logger)
	for _, m := range []string{magicCDF1, magicCDF2, magicCDF5, magicHDF5} {
		r.Register(formatNetCDF, store.Magic(m), nc)
	}

	r.Register(formatJSON, store.JSONObject(), observation.NewReader(logger))
	return r
}
