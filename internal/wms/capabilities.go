package wms

import (
	"bytes"
	"encoding/xml"
	"net/url"
	"sort"
	"strconv"

	"go.ngs.io/wms-api/internal/domain"
	"go.ngs.io/wms-api/internal/render"
)

// Service describes the server in capabilities documents.
type Service struct {
	Title    string
	Abstract string
	URL      string // Online resource of every operation.
}

// CapabilitiesInput is everything advertised by GetCapabilities.
type CapabilitiesInput struct {
	Service        Service
	UpdateSequence string
	Formats        []string
	CRSs           []render.CRS
	Layers         []domain.Layer
}

type onlineResource struct {
	Xlink string `xml:"xmlns:xlink,attr"`
	Type  string `xml:"xlink:type,attr"`
	Href  string `xml:"xlink:href,attr"`
}

func resource(href string) onlineResource {
	return onlineResource{Xlink: "http://www.w3.org/1999/xlink", Type: "simple", Href: href}
}

type dcpType struct {
	Get onlineResource `xml:"HTTP>Get>OnlineResource"`
}

type operation struct {
	Formats []string `xml:"Format"`
	DCPType dcpType  `xml:"DCPType"`
}

type requests struct {
	GetCapabilities  operation `xml:"GetCapabilities"`
	GetMap           operation `xml:"GetMap"`
	GetLegendGraphic operation `xml:"GetLegendGraphic"`
}

type serviceSection struct {
	Name           string         `xml:"Name"`
	Title          string         `xml:"Title"`
	Abstract       string         `xml:"Abstract,omitempty"`
	OnlineResource onlineResource `xml:"OnlineResource"`
}

type legendURL struct {
	Width          int            `xml:"width,attr"`
	Height         int            `xml:"height,attr"`
	Format         string         `xml:"Format"`
	OnlineResource onlineResource `xml:"OnlineResource"`
}

type style struct {
	Name      string     `xml:"Name"`
	Title     string     `xml:"Title"`
	Abstract  string     `xml:"Abstract,omitempty"`
	LegendURL *legendURL `xml:"LegendURL,omitempty"`
}

type boundingBox struct {
	CRS  string  `xml:"CRS,attr,omitempty"`
	SRS  string  `xml:"SRS,attr,omitempty"`
	MinX float64 `xml:"minx,attr"`
	MinY float64 `xml:"miny,attr"`
	MaxX float64 `xml:"maxx,attr"`
	MaxY float64 `xml:"maxy,attr"`
}

type geographicBoundingBox struct {
	West  float64 `xml:"westBoundLongitude"`
	East  float64 `xml:"eastBoundLongitude"`
	South float64 `xml:"southBoundLatitude"`
	North float64 `xml:"northBoundLatitude"`
}

type dimension struct {
	Name       string `xml:"name,attr"`
	Units      string `xml:"units,attr"`
	UnitSymbol string `xml:"unitSymbol,attr,omitempty"`
	Default    string `xml:"default,attr,omitempty"`
	Extent     string `xml:",chardata"`
}

// dimension111 declares a dimension; its values are listed in an extent.
type dimension111 struct {
	Name       string `xml:"name,attr"`
	Units      string `xml:"units,attr"`
	UnitSymbol string `xml:"unitSymbol,attr,omitempty"`
}

type extent111 struct {
	Name    string `xml:"name,attr"`
	Default string `xml:"default,attr,omitempty"`
	Values  string `xml:",chardata"`
}

type layer130 struct {
	Queryable    int                    `xml:"queryable,attr"`
	Opaque       int                    `xml:"opaque,attr"`
	Name         string                 `xml:"Name,omitempty"`
	Title        string                 `xml:"Title"`
	Abstract     string                 `xml:"Abstract,omitempty"`
	CRS          []string               `xml:"CRS"`
	GeographicBB *geographicBoundingBox `xml:"EX_GeographicBoundingBox,omitempty"`
	BoundingBox  []boundingBox          `xml:"BoundingBox"`
	Dimensions   []dimension            `xml:"Dimension"`
	Styles       []style                `xml:"Style"`
	Layers       []layer130             `xml:"Layer"`
}

type capabilities130 struct {
	XMLName        xml.Name       `xml:"WMS_Capabilities"`
	Version        string         `xml:"version,attr"`
	UpdateSequence string         `xml:"updateSequence,attr,omitempty"`
	Xmlns          string         `xml:"xmlns,attr"`
	Xsi            string         `xml:"xmlns:xsi,attr"`
	SchemaLocation string         `xml:"xsi:schemaLocation,attr"`
	Service        serviceSection `xml:"Service"`
	Capability     struct {
		Request    requests `xml:"Request"`
		Exceptions []string `xml:"Exception>Format"`
		Layer      layer130 `xml:"Layer"`
	} `xml:"Capability"`
}

type latLonBoundingBox struct {
	MinX float64 `xml:"minx,attr"`
	MinY float64 `xml:"miny,attr"`
	MaxX float64 `xml:"maxx,attr"`
	MaxY float64 `xml:"maxy,attr"`
}

type layer111 struct {
	Queryable   int                `xml:"queryable,attr"`
	Opaque      int                `xml:"opaque,attr"`
	Name        string             `xml:"Name,omitempty"`
	Title       string             `xml:"Title"`
	Abstract    string             `xml:"Abstract,omitempty"`
	SRS         []string           `xml:"SRS"`
	LatLonBB    *latLonBoundingBox `xml:"LatLonBoundingBox,omitempty"`
	BoundingBox []boundingBox      `xml:"BoundingBox"`
	Dimensions  []dimension111     `xml:"Dimension"`
	Extents     []extent111        `xml:"Extent"`
	Styles      []style            `xml:"Style"`
	Layers      []layer111         `xml:"Layer"`
}

type capabilities111 struct {
	XMLName        xml.Name       `xml:"WMT_MS_Capabilities"`
	Version        string         `xml:"version,attr"`
	UpdateSequence string         `xml:"updateSequence,attr,omitempty"`
	Service        serviceSection `xml:"Service"`
	Capability     struct {
		Request    requests `xml:"Request"`
		Exceptions []string `xml:"Exception>Format"`
		Layer      layer111 `xml:"Layer"`
	} `xml:"Capability"`
}

const doctype111Capabilities = `<!DOCTYPE WMT_MS_Capabilities SYSTEM "http://schemas.opengis.net/wms/1.1.1/WMS_MS_Capabilities.dtd">` + "\n"

// Capabilities content types.
const (
	CapabilitiesType111 = "application/vnd.ogc.wms_xml"
	CapabilitiesType130 = "text/xml"
)

// Capabilities renders the capabilities document for version and returns
// its content type and body. Layers are listed by ascending z-index.
func Capabilities(version string, in CapabilitiesInput) (string, []byte, error) {
	layers := make([]domain.Layer, len(in.Layers))
	copy(layers, in.Layers)
	sort.SliceStable(layers, func(i, j int) bool {
		return layers[i].Info().ZIndex < layers[j].Info().ZIndex
	})

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	var doc any
	contentType := CapabilitiesType130
	if version == Version111 {
		buf.WriteString(doctype111Capabilities)
		doc = build111(in, layers)
		contentType = CapabilitiesType111
	} else {
		doc = build130(in, layers)
	}
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", nil, err
	}
	return contentType, buf.Bytes(), nil
}

func buildRequests(in CapabilitiesInput, capabilitiesFormat string) requests {
	dcp := dcpType{Get: resource(in.Service.URL)}
	return requests{
		GetCapabilities:  operation{Formats: []string{capabilitiesFormat}, DCPType: dcp},
		GetMap:           operation{Formats: in.Formats, DCPType: dcp},
		GetLegendGraphic: operation{Formats: in.Formats, DCPType: dcp},
	}
}

func buildService(in CapabilitiesInput) serviceSection {
	return serviceSection{
		Name:           "WMS",
		Title:          in.Service.Title,
		Abstract:       in.Service.Abstract,
		OnlineResource: resource(in.Service.URL),
	}
}

func crsNames(crss []render.CRS) []string {
	out := make([]string, len(crss))
	for i, c := range crss {
		out[i] = c.Name
	}
	return out
}

func build130(in CapabilitiesInput, layers []domain.Layer) capabilities130 {
	doc := capabilities130{
		Version:        Version130,
		UpdateSequence: in.UpdateSequence,
		Xmlns:          "http://www.opengis.net/wms",
		Xsi:            "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: "http://www.opengis.net/wms http://schemas.opengis.net/wms/1.3.0/capabilities_1_3_0.xsd",
		Service:        buildService(in),
	}
	doc.Capability.Request = buildRequests(in, CapabilitiesType130)
	doc.Capability.Exceptions = []string{"XML"}

	gb := render.GeographicBoundingBox
	root := layer130{
		Title:        in.Service.Title,
		CRS:          crsNames(in.CRSs),
		GeographicBB: &geographicBoundingBox{West: gb.West, East: gb.East, South: gb.South, North: gb.North},
	}
	for _, c := range in.CRSs {
		root.BoundingBox = append(root.BoundingBox, boundingBox{CRS: c.Name, MinX: c.MinX, MinY: c.MinY, MaxX: c.MaxX, MaxY: c.MaxY})
	}
	for _, l := range layers {
		info := l.Info()
		child := layer130{
			Name:     info.Name,
			Title:    info.Title,
			Abstract: info.Description,
			Styles:   buildStyles(in.Service.URL, Version130, l),
		}
		for _, d := range l.Dimensions() {
			child.Dimensions = append(child.Dimensions, dimension{
				Name: d.Name, Units: d.Units, UnitSymbol: d.UnitSymbol, Default: d.Default, Extent: d.Extent,
			})
		}
		root.Layers = append(root.Layers, child)
	}
	doc.Capability.Layer = root
	return doc
}

func build111(in CapabilitiesInput, layers []domain.Layer) capabilities111 {
	doc := capabilities111{
		Version:        Version111,
		UpdateSequence: in.UpdateSequence,
		Service:        buildService(in),
	}
	doc.Capability.Request = buildRequests(in, CapabilitiesType111)
	doc.Capability.Exceptions = []string{ContentType111}

	gb := render.GeographicBoundingBox
	root := layer111{
		Title:    in.Service.Title,
		SRS:      crsNames(in.CRSs),
		LatLonBB: &latLonBoundingBox{MinX: gb.West, MinY: gb.South, MaxX: gb.East, MaxY: gb.North},
	}
	for _, c := range in.CRSs {
		minX, minY, maxX, maxY := c.MinX, c.MinY, c.MaxX, c.MaxY
		if c.LatLonAxes {
			// 1.1.1 always orders axes east, north.
			minX, minY, maxX, maxY = c.MinY, c.MinX, c.MaxY, c.MaxX
		}
		root.BoundingBox = append(root.BoundingBox, boundingBox{SRS: c.Name, MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY})
	}
	for _, l := range layers {
		info := l.Info()
		child := layer111{
			Name:     info.Name,
			Title:    info.Title,
			Abstract: info.Description,
			Styles:   buildStyles(in.Service.URL, Version111, l),
		}
		for _, d := range l.Dimensions() {
			child.Dimensions = append(child.Dimensions, dimension111{Name: d.Name, Units: d.Units, UnitSymbol: d.UnitSymbol})
			child.Extents = append(child.Extents, extent111{Name: d.Name, Default: d.Default, Values: d.Extent})
		}
		root.Layers = append(root.Layers, child)
	}
	doc.Capability.Layer = root
	return doc
}

func buildStyles(base, version string, l domain.Layer) []style {
	name := l.Info().Name
	var out []style
	for _, s := range l.Styles() {
		out = append(out, style{
			Name:     s.Name,
			Title:    s.Title,
			Abstract: s.Description,
			LegendURL: &legendURL{
				Width:          legendWidth,
				Height:         legendHeight,
				Format:         DefaultFormat,
				OnlineResource: resource(LegendHref(base, version, name, s.Name)),
			},
		})
	}
	return out
}

// LegendHref returns the GetLegendGraphic URL of a layer style.
func LegendHref(base, version, layer, style string) string {
	q := url.Values{}
	q.Set("service", "WMS")
	q.Set("request", "GetLegendGraphic")
	q.Set("version", version)
	q.Set("format", DefaultFormat)
	q.Set("layer", layer)
	q.Set("style", style)
	q.Set("width", strconv.Itoa(legendWidth))
	q.Set("height", strconv.Itoa(legendHeight))
	return base + "?" + q.Encode()
}
