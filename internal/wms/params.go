// Package wms implements the OGC Web Map Service protocol surface: request
// parameter parsing, exception reports and capabilities documents for
// versions 1.1.1 and 1.3.0.
package wms

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.ngs.io/wms-api/internal/domain"
)

// Supported protocol versions.
const (
	Version111 = "1.1.1"
	Version130 = "1.3.0"
)

// Request names, lower-cased.
const (
	GetCapabilities  = "getcapabilities"
	GetMap           = "getmap"
	GetLegendGraphic = "getlegendgraphic"
)

// Defaults applied when a request omits them.
const (
	DefaultService = "wms"
	DefaultVersion = Version130
	DefaultRequest = GetCapabilities
	DefaultFormat  = "image/png"

	legendWidth  = 600
	legendHeight = 150
)

// MacroParam asks GetMap for the plot document instead of the image.
const MacroParam = "_macro"

type kind int

const (
	text kind = iota
	list
	integer
	boolean
	bbox
)

type param struct {
	kind     kind
	required bool
}

var (
	capabilitiesParams = map[string]param{
		"format":         {kind: text},
		"request":        {kind: text, required: true},
		"service":        {kind: text, required: true},
		"updatesequence": {kind: text},
		"version":        {kind: text},
	}

	getMapParams111 = map[string]param{
		"bbox":        {kind: bbox, required: true},
		"bgcolor":     {kind: text},
		"srs":         {kind: text, required: true},
		"elevation":   {kind: text},
		"exceptions":  {kind: text},
		"format":      {kind: text, required: true},
		"height":      {kind: integer, required: true},
		"layers":      {kind: list, required: true},
		"request":     {kind: text, required: true},
		"styles":      {kind: list},
		"time":        {kind: text},
		"transparent": {kind: boolean},
		"version":     {kind: text, required: true},
		"width":       {kind: integer, required: true},
	}

	legendParams = map[string]param{
		"exceptions":  {kind: text},
		"format":      {kind: text},
		"height":      {kind: integer},
		"layer":       {kind: text, required: true},
		"request":     {kind: text, required: true},
		"style":       {kind: text},
		"version":     {kind: text},
		"width":       {kind: integer},
		"transparent": {kind: boolean},
	}
)

// getMapParams130 differs from 1.1.1 by naming the reference system crs and
// accepting the dim_index selector.
var getMapParams130 = func() map[string]param {
	m := make(map[string]param, len(getMapParams111)+1)
	for k, v := range getMapParams111 {
		m[k] = v
	}
	delete(m, "srs")
	m["crs"] = param{kind: text, required: true}
	m[domain.DimIndexName] = param{kind: text}
	return m
}()

func knownParams(request, version string) map[string]param {
	switch request {
	case GetCapabilities:
		return capabilitiesParams
	case GetMap:
		if version == Version111 {
			return getMapParams111
		}
		return getMapParams130
	case GetLegendGraphic:
		return legendParams
	}
	return nil
}

// Params holds the query parameters of a request with lower-cased keys.
type Params map[string]string

// Normalize lower-cases parameter keys, keeping the first value of each.
func Normalize(values url.Values) Params {
	p := make(Params, len(values))
	for k, v := range values {
		key := strings.ToLower(k)
		if _, ok := p[key]; ok || len(v) == 0 {
			continue
		}
		p[key] = v[0]
	}
	return p
}

func (p Params) get(name, def string) string {
	if v, ok := p[name]; ok && v != "" {
		return v
	}
	return def
}

// Service returns the lower-cased service name.
func (p Params) Service() string { return strings.ToLower(p.get("service", DefaultService)) }

// Request returns the lower-cased request name.
func (p Params) Request() string { return strings.ToLower(p.get("request", DefaultRequest)) }

// Version returns the negotiated protocol version.
func (p Params) Version() string { return negotiate(p.get("version", DefaultVersion)) }

// Macro reports whether the plot document was requested.
func (p Params) Macro() bool {
	v, _ := strconv.ParseBool(p[MacroParam])
	return v
}

// negotiate maps a client version to the highest supported one not above it.
func negotiate(v string) string {
	parts := strings.SplitN(v, ".", 3)
	nums := [3]int{}
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return DefaultVersion
		}
		nums[i] = n
	}
	if nums[0] > 1 || (nums[0] == 1 && nums[1] >= 3) {
		return Version130
	}
	return Version111
}

// Filter keeps the parameters known for the request and checks that the
// required ones are present.
func (p Params) Filter() (Params, error) {
	request := p.Request()
	known := knownParams(request, p.Version())
	if known == nil {
		return nil, &OperationNotSupportedError{Request: p.get("request", DefaultRequest)}
	}
	out := make(Params, len(known))
	for name, spec := range known {
		v, ok := p[name]
		if !ok || v == "" {
			if spec.required && name != "request" && name != "service" && name != "version" {
				return nil, &MissingParameterError{Name: name}
			}
			continue
		}
		out[name] = v
	}
	if v, ok := p[MacroParam]; ok {
		out[MacroParam] = v
	}
	return out, nil
}

// MissingParameterError is returned when a required parameter is absent.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter '%s'", e.Name)
}

// InvalidParameterError is returned when a parameter value cannot be used.
type InvalidParameterError struct {
	Name   string
	Value  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid value '%s' for parameter '%s'", e.Value, e.Name)
	}
	return fmt.Sprintf("invalid value '%s' for parameter '%s': %s", e.Value, e.Name, e.Reason)
}

// ServiceNotDefinedError is returned for a service other than WMS.
type ServiceNotDefinedError struct {
	Service string
}

func (e *ServiceNotDefinedError) Error() string {
	return fmt.Sprintf("service '%s' is not supported", e.Service)
}

// OperationNotSupportedError is returned for an unknown request.
type OperationNotSupportedError struct {
	Request string
}

func (e *OperationNotSupportedError) Error() string {
	return fmt.Sprintf("operation '%s' is not supported", e.Request)
}

func parseInt(p Params, name string, def int) (int, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &InvalidParameterError{Name: name, Value: v, Reason: "expected a positive integer"}
	}
	return n, nil
}

func parseBool(p Params, name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	switch strings.ToUpper(v) {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	}
	return false, &InvalidParameterError{Name: name, Value: v, Reason: "expected TRUE or FALSE"}
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func parseBBox(v string) ([4]float64, error) {
	var box [4]float64
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return box, &InvalidParameterError{Name: "bbox", Value: v, Reason: "expected minx,miny,maxx,maxy"}
	}
	for i, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return box, &InvalidParameterError{Name: "bbox", Value: v, Reason: err.Error()}
		}
		box[i] = f
	}
	if box[0] >= box[2] || box[1] >= box[3] {
		return box, &InvalidParameterError{Name: "bbox", Value: v, Reason: "minimum must be below maximum"}
	}
	return box, nil
}

// CapabilitiesParams are the parsed parameters of GetCapabilities.
type CapabilitiesParams struct {
	Version        string
	Format         string
	UpdateSequence string
}

// ParseCapabilities parses a GetCapabilities request.
func ParseCapabilities(p Params) (*CapabilitiesParams, error) {
	f, err := p.Filter()
	if err != nil {
		return nil, err
	}
	return &CapabilitiesParams{
		Version:        p.Version(),
		Format:         f["format"],
		UpdateSequence: f["updatesequence"],
	}, nil
}

// MapParams are the parsed parameters of GetMap.
type MapParams struct {
	Version     string
	Layers      []string
	Styles      []string // Same length as Layers, empty for the default style.
	CRS         string
	BBox        [4]float64
	Width       int
	Height      int
	Format      string
	Transparent bool
	BGColor     string
	Exceptions  string
	Dims        domain.Dims
	Macro       bool
}

// ParseMap parses a GetMap request. Version 1.1.1 names the reference
// system srs; it is reported as CRS.
func ParseMap(p Params) (*MapParams, error) {
	f, err := p.Filter()
	if err != nil {
		return nil, err
	}
	m := &MapParams{
		Version:    p.Version(),
		Layers:     parseList(f["layers"]),
		Format:     f["format"],
		BGColor:    f["bgcolor"],
		Exceptions: f["exceptions"],
		Macro:      f.Macro(),
		Dims: domain.Dims{
			Time:      f["time"],
			Elevation: f["elevation"],
			DimIndex:  f[domain.DimIndexName],
		},
	}
	m.CRS = f["crs"]
	if m.Version == Version111 {
		m.CRS = f["srs"]
	}
	if m.BBox, err = parseBBox(f["bbox"]); err != nil {
		return nil, err
	}
	if m.Width, err = parseInt(f, "width", 0); err != nil {
		return nil, err
	}
	if m.Height, err = parseInt(f, "height", 0); err != nil {
		return nil, err
	}
	if m.Transparent, err = parseBool(f, "transparent", false); err != nil {
		return nil, err
	}

	styles := parseList(f["styles"])
	if len(styles) > len(m.Layers) {
		return nil, &InvalidParameterError{Name: "styles", Value: f["styles"], Reason: "more styles than layers"}
	}
	m.Styles = make([]string, len(m.Layers))
	copy(m.Styles, styles)
	return m, nil
}

// LegendParams are the parsed parameters of GetLegendGraphic.
type LegendParams struct {
	Version     string
	Layer       string
	Style       string
	Format      string
	Width       int
	Height      int
	Transparent bool
	Exceptions  string
}

// ParseLegend parses a GetLegendGraphic request.
func ParseLegend(p Params) (*LegendParams, error) {
	f, err := p.Filter()
	if err != nil {
		return nil, err
	}
	l := &LegendParams{
		Version:    p.Version(),
		Layer:      f["layer"],
		Style:      f["style"],
		Format:     f.get("format", DefaultFormat),
		Exceptions: f["exceptions"],
	}
	if l.Width, err = parseInt(f, "width", legendWidth); err != nil {
		return nil, err
	}
	if l.Height, err = parseInt(f, "height", legendHeight); err != nil {
		return nil, err
	}
	if l.Transparent, err = parseBool(f, "transparent", true); err != nil {
		return nil, err
	}
	return l, nil
}
