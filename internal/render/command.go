// Package render turns resolved fields into plotting commands and runs the
// external plotting program that draws them.
//
// A plot is described as an ordered list of commands (verb plus parameters)
// in the vocabulary of the Magics plotting library: output, mmap, mgrib,
// mnetcdf, mgeojson, mcoast, mcont, mwind, msymb and mlegend.
package render

import (
	"fmt"

	"go.ngs.io/wms-api/internal/domain"
)

// Command is one plotting call.
type Command struct {
	Verb   string         `json:"verb"`
	Params map[string]any `json:"params"`
}

// Context gives renderers access to the index a field came from.
type Context interface {
	// Companion returns the other component of a vector field, or nil.
	Companion(f *domain.Field) *domain.Field
}

// FieldCommands returns the commands drawing f with the given style. Legend
// parameters are merged into the style command.
func FieldCommands(ctx Context, f *domain.Field, style *domain.Style, legend map[string]any) ([]Command, error) {
	var data Command
	switch f.Format {
	case domain.FormatGRIB:
		data = gribCommand(ctx, f)
	case domain.FormatNetCDF:
		data = netcdfCommand(f)
	case domain.FormatGeoJSON:
		data = geojsonCommand(f)
	case domain.FormatStatic:
		return coastCommands(f, style), nil
	default:
		return nil, fmt.Errorf("cannot render %s: %w", f, domain.ErrUnsupportedFormat)
	}
	return append([]Command{data}, styleCommands(f, style, legend)...), nil
}

func gribCommand(ctx Context, f *domain.Field) Command {
	params := map[string]any{"grib_input_file_name": f.Path}
	var companion *domain.Field
	if f.Vector && ctx != nil {
		companion = ctx.Companion(f)
	}
	if companion != nil {
		params["grib_wind_position_1"] = f.Locator.Position
		params["grib_wind_position_2"] = companion.Locator.Position
	} else {
		params["grib_field_position"] = f.Locator.Position
	}
	return Command{Verb: "mgrib", Params: params}
}

func netcdfCommand(f *domain.Field) Command {
	params := map[string]any{
		"netcdf_filename":       f.Path,
		"netcdf_value_variable": f.Locator.Variable,
	}
	var settings []string
	for _, s := range f.Locator.Slices {
		if s.Info {
			continue
		}
		settings = append(settings, fmt.Sprintf("%s:%d", s.Name, s.Index))
	}
	if len(settings) > 0 {
		params["netcdf_dimension_setting"] = settings
		params["netcdf_dimension_setting_method"] = "index"
	}
	return Command{Verb: "mnetcdf", Params: params}
}

func geojsonCommand(f *domain.Field) Command {
	params := map[string]any{
		"geojson_input_type": "string",
		"geojson_input":      string(f.Locator.Features),
	}
	if f.Locator.ValueProperty != "" {
		params["geojson_value_property"] = f.Locator.ValueProperty
	}
	return Command{Verb: "mgeojson", Params: params}
}

// coastCommands draws a static decoration. Configured style commands are all
// drawn as coastlines; otherwise the layer name selects the coastline style.
func coastCommands(f *domain.Field, style *domain.Style) []Command {
	if style != nil && len(style.Commands) > 0 {
		out := make([]Command, len(style.Commands))
		for i, c := range style.Commands {
			out[i] = Command{Verb: "mcoast", Params: copyParams(c.Params)}
		}
		return out
	}
	return []Command{{Verb: "mcoast", Params: map[string]any{
		"map_coastline_general_style": f.Name,
		"map_coastline_resolution":    "medium",
	}}}
}

func styleCommands(f *domain.Field, style *domain.Style, legend map[string]any) []Command {
	if style != nil && len(style.Commands) > 0 {
		out := make([]Command, len(style.Commands))
		for i, c := range style.Commands {
			out[i] = Command{Verb: c.Verb, Params: merge(c.Params, legend)}
		}
		return out
	}

	switch {
	case f.Format == domain.FormatGeoJSON:
		params := map[string]any{"symbol_type": "number", "symbol_table_mode": "off"}
		if style != nil {
			params["symbol_advanced_table_selection_type"] = "list"
			params["symbol_style_name"] = style.Name
		}
		return []Command{{Verb: "msymb", Params: merge(params, legend)}}
	case f.Vector:
		params := map[string]any{}
		if style != nil {
			params["wind_automatic_setting"] = "style_name"
			params["wind_style_name"] = style.Name
		}
		return []Command{{Verb: "mwind", Params: merge(params, legend)}}
	}

	params := map[string]any{}
	if style != nil {
		params["contour_automatic_setting"] = "style_name"
		params["contour_style_name"] = style.Name
	}
	return []Command{{Verb: "mcont", Params: merge(params, legend)}}
}

func copyParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func merge(base, extra map[string]any) map[string]any {
	out := copyParams(base)
	for k, v := range extra {
		out[k] = v
	}
	return out
}
