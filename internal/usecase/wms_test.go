package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/wms-api/internal/adapter/store/catalog"
	"go.ngs.io/wms-api/internal/domain"
	"go.ngs.io/wms-api/internal/observability"
	"go.ngs.io/wms-api/internal/render"
	"go.ngs.io/wms-api/internal/wms"
)

// indexCatalog serves a prebuilt index.
type indexCatalog struct {
	index *domain.Index
	err   error
}

func (c *indexCatalog) Layers(_ context.Context) ([]domain.Layer, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.index.Layers(), nil
}

func (c *indexCatalog) Lookup(_ context.Context, name string) (domain.Layer, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.index.Resolve(name)
}

func (c *indexCatalog) Companion(f *domain.Field) *domain.Field { return c.index.Companion(f) }
func (c *indexCatalog) Aliases() map[string]string            { return c.index.Aliases() }

// recordingPlotter remembers the last request and returns canned images.
type recordingPlotter struct {
	plots   int
	mapReq  render.MapRequest
	legend  render.LegendRequest
	failure error
}

func (p *recordingPlotter) Plot(_ context.Context, rc render.Context, req render.MapRequest) ([]byte, error) {
	p.plots++
	p.mapReq = req
	if _, err := render.MapDocument(rc, req, "map"); err != nil {
		return nil, err
	}
	return []byte("PNG"), p.failure
}

func (p *recordingPlotter) Legend(_ context.Context, _ render.Context, req render.LegendRequest) ([]byte, error) {
	p.legend = req
	return []byte("LEGEND"), p.failure
}

func (p *recordingPlotter) Macro(_ context.Context, rc render.Context, req render.MapRequest) ([]byte, error) {
	doc, err := render.MapDocument(rc, req, "map")
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func (p *recordingPlotter) StaticLayers() []domain.Layer { return render.StaticLayers() }
func (p *recordingPlotter) CRSs() []render.CRS           { return render.SupportedCRSs() }

func temperatureIndex(t *testing.T) *domain.Index {
	t.Helper()
	x := domain.NewIndex(false)
	for _, h := range []int{0, 6, 12} {
		f := titled("2t", "2 metre temperature", h)
		f.Path = "/data/2t.grib"
		f.Locator.Position = h/6 + 1
		f.Styles = []domain.Style{{Name: "contour"}, {Name: "shaded"}}
		_, err := x.AddField(f)
		require.NoError(t, err)
	}
	return x
}

func newService(t *testing.T, cacheSize int) (*WMSService, *recordingPlotter, *observability.Metrics) {
	t.Helper()
	plotter := &recordingPlotter{}
	metrics := observability.NewMetricsForTesting()
	s := NewWMSService(&indexCatalog{index: temperatureIndex(t)}, plotter, WMSOptions{
		Service:   wms.Service{Title: "Test", URL: "http://localhost/wms"},
		CacheSize: cacheSize,
		Metrics:   metrics,
	}, slog.Default())
	return s, plotter, metrics
}

func query(s string) url.Values {
	v, err := url.ParseQuery(s)
	if err != nil {
		panic(err)
	}
	return v
}

const getMap = "service=WMS&request=GetMap&version=1.3.0&crs=EPSG:4326&bbox=30,-10,60,40" +
	"&width=400&height=200&format=image/png"

func TestWMSService_GetMap(t *testing.T) {
	s, plotter, metrics := newService(t, 0)

	resp := s.Handle(context.Background(), query(getMap+"&layers=background,2t,foreground&styles=,shaded,&time=2024-01-01T06:00:00Z"))
	require.False(t, resp.Exception, string(resp.Body))
	assert.Equal(t, "image/png", resp.ContentType)
	assert.Equal(t, []byte("PNG"), resp.Body)

	req := plotter.mapReq
	require.Len(t, req.Layers, 3)
	assert.Equal(t, "background", req.Layers[0].Layer.Info().Name)
	assert.Equal(t, domain.FormatStatic, req.Layers[0].Field.Format)
	assert.Equal(t, ref.Add(6*time.Hour), *req.Layers[1].Field.Time)
	assert.Equal(t, "shaded", req.Layers[1].Style.Name)
	assert.Equal(t, [4]float64{30, -10, 60, 40}, req.BBox)
	assert.Equal(t, 1.0, counterValue(t, metrics.Requests.WithLabelValues(wms.GetMap, "ok")))
}

func TestWMSService_GetMapCache(t *testing.T) {
	s, plotter, metrics := newService(t, 8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp := s.Handle(ctx, query(getMap+"&layers=2t"))
		require.False(t, resp.Exception)
	}
	assert.Equal(t, 1, plotter.plots)
	assert.Equal(t, 2.0, counterValue(t, metrics.PlotCache.WithLabelValues("hit")))

	// A different time is a different field.
	s.Handle(ctx, query(getMap+"&layers=2t&time=2024-01-01T12:00:00Z"))
	assert.Equal(t, 2, plotter.plots)
}

func TestWMSService_GetMapMacro(t *testing.T) {
	s, plotter, _ := newService(t, 0)

	resp := s.Handle(context.Background(), query(getMap+"&layers=2t&_macro=true"))
	require.False(t, resp.Exception, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Zero(t, plotter.plots)

	var doc render.Document
	require.NoError(t, json.Unmarshal(resp.Body, &doc))
	assert.Equal(t, []render.DocumentLayer{{Layer: "2t", Style: "contour"}}, doc.Layers)
}

func TestWMSService_Exceptions(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"unknown layer", getMap + "&layers=nope", "LayerNotDefined"},
		{"unknown style", getMap + "&layers=2t&styles=fancy", "StyleNotDefined"},
		{"missing time", getMap + "&layers=2t&time=2024-02-01T00:00:00Z", "InvalidDimensionValue"},
		{"bad time", getMap + "&layers=2t&time=yesterday", "InvalidDimensionValue"},
		{"bad crs", strings.Replace(getMap, "EPSG:4326", "EPSG:2154", 1) + "&layers=2t", "InvalidCRS"},
		{"bad format", strings.Replace(getMap, "image/png", "image/gif", 1) + "&layers=2t", "InvalidFormat"},
		{"missing layers", getMap, "MissingParameterValue"},
		{"bad bbox", strings.Replace(getMap, "30,-10,60,40", "60,-10,30,40", 1) + "&layers=2t", "InvalidParameterValue"},
		{"bad service", "service=WFS&request=GetCapabilities", "ServiceNotDefined"},
		{"bad request", "service=WMS&request=GetFeatureInfo", "OperationNotSupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newService(t, 0)
			resp := s.Handle(context.Background(), query(tt.query))
			require.True(t, resp.Exception)
			assert.Equal(t, wms.ContentType130, resp.ContentType)
			assert.Contains(t, string(resp.Body), `code="`+tt.code+`"`)
		})
	}
}

func TestWMSService_Exception111(t *testing.T) {
	s, _, metrics := newService(t, 0)
	resp := s.Handle(context.Background(), query("service=WMS&request=GetMap&version=1.1.1&layers=2t"+
		"&srs=EPSG:9999&bbox=-10,30,40,60&width=10&height=10&format=image/png"))
	require.True(t, resp.Exception)
	assert.Equal(t, wms.ContentType111, resp.ContentType)
	assert.Contains(t, string(resp.Body), `code="InvalidSRS"`)
	assert.Equal(t, 1.0, counterValue(t, metrics.Requests.WithLabelValues(wms.GetMap, "error")))
}

func TestWMSService_PlotFailureIsGeneric(t *testing.T) {
	s, plotter, _ := newService(t, 0)
	plotter.failure = errors.New("plot command failed: exit status 1")
	resp := s.Handle(context.Background(), query(getMap+"&layers=2t"))
	require.True(t, resp.Exception)
	assert.NotContains(t, string(resp.Body), "code=")
	assert.Contains(t, string(resp.Body), "exit status 1")
}

func TestWMSService_GetLegendGraphic(t *testing.T) {
	s, plotter, _ := newService(t, 0)
	resp := s.Handle(context.Background(), query("request=GetLegendGraphic&layer=2t&style=shaded&width=100"))
	require.False(t, resp.Exception, string(resp.Body))
	assert.Equal(t, []byte("LEGEND"), resp.Body)

	req := plotter.legend
	assert.Equal(t, 100, req.Width)
	assert.Equal(t, 150, req.Height)
	assert.True(t, req.Transparent)
	assert.Equal(t, "shaded", req.Layer.Style.Name)
	assert.Equal(t, ref, *req.Layer.Field.Time)
}

func TestWMSService_GetCapabilities(t *testing.T) {
	s, _, _ := newService(t, 0)

	// No parameters at all defaults to a 1.3.0 GetCapabilities.
	resp := s.Handle(context.Background(), url.Values{})
	require.False(t, resp.Exception, string(resp.Body))
	assert.Equal(t, wms.CapabilitiesType130, resp.ContentType)
	doc := string(resp.Body)
	assert.Contains(t, doc, "<Name>2t</Name>")
	assert.Contains(t, doc, "<Name>grid</Name>")

	resp = s.Handle(context.Background(), query("service=WMS&request=GetCapabilities&version=1.1.1"))
	assert.Equal(t, wms.CapabilitiesType111, resp.ContentType)
}

func TestWMSService_CatalogFailure(t *testing.T) {
	s := NewWMSService(&indexCatalog{err: errors.New("scan failed")}, &recordingPlotter{}, WMSOptions{}, slog.Default())
	resp := s.Handle(context.Background(), url.Values{})
	assert.True(t, resp.Exception)

	_, err := s.Availability(context.Background())
	assert.Error(t, err)
}

func TestWMSService_Availability(t *testing.T) {
	a := NewAvailability(dataDir(t), newRegistry(), AvailabilityOptions{}, slog.Default())
	s := NewWMSService(a, &recordingPlotter{}, WMSOptions{}, slog.Default())

	report, err := s.Availability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t_850", report.Aliases[domain.DefaultAlias])
	require.Len(t, report.Layers, 3)

	wind := report.Layers[0]
	assert.Equal(t, "10u/10v", wind.Name)
	require.Len(t, wind.Fields, 1)
	assert.Equal(t, "10v", wind.Fields[0].Companion)
	assert.Equal(t, "sfc", wind.Fields[0].LevelType)

	assert.NotNil(t, report.LoadedAt)
	assert.Len(t, report.Paths, 3)
}

func TestWMSService_StaticLayerIgnoresUnknownStyle(t *testing.T) {
	s, plotter, _ := newService(t, 0)
	resp := s.Handle(context.Background(), query(getMap+"&layers=grid,2t&styles=fancy,shaded"))
	require.False(t, resp.Exception, string(resp.Body))
	require.Len(t, plotter.mapReq.Layers, 2)
	assert.Nil(t, plotter.mapReq.Layers[0].Style)
}

// colourPlotter returns the contour colour of the first layer's style as the
// image, so tests can see which style was drawn.
type colourPlotter struct {
	recordingPlotter
}

func (p *colourPlotter) Plot(_ context.Context, _ render.Context, req render.MapRequest) ([]byte, error) {
	p.plots++
	st := req.Layers[0].Style
	return []byte(fmt.Sprint(st.Commands[0].Params["contour_line_colour"])), nil
}

func catalogYAML(version int, colour string) string {
	return fmt.Sprintf(`
layers:
  - layer:
      name: t2m
      type: grib
      path: /data/t2m.grib
      index: [1]
      style_version: %d
      styles:
        - _verb: mcont
          contour_line_colour: %s
`, version, colour)
}

func TestWMSService_GetMapCacheFollowsStyleReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML(1, "red")), 0o644))

	plotter := &colourPlotter{}
	s := NewWMSService(catalog.New(path, slog.Default()), plotter, WMSOptions{CacheSize: 8}, slog.Default())
	ctx := context.Background()

	resp := s.Handle(ctx, query(getMap+"&layers=t2m&styles=1"))
	require.False(t, resp.Exception, string(resp.Body))
	assert.Equal(t, "red", string(resp.Body))

	resp = s.Handle(ctx, query(getMap+"&layers=t2m&styles=1"))
	assert.Equal(t, "red", string(resp.Body))
	assert.Equal(t, 1, plotter.plots)

	require.NoError(t, os.WriteFile(path, []byte(catalogYAML(2, "blue")), 0o644))

	resp = s.Handle(ctx, query(getMap+"&layers=t2m&styles=2"))
	require.False(t, resp.Exception, string(resp.Body))
	assert.Equal(t, "blue", string(resp.Body))
	assert.Equal(t, 2, plotter.plots)

	resp = s.Handle(ctx, query(getMap+"&layers=t2m&styles=1"))
	require.True(t, resp.Exception)
	assert.Contains(t, string(resp.Body), `code="StyleNotDefined"`)
}

func TestStyleKey(t *testing.T) {
	red := &domain.Style{Name: "default", Commands: []domain.StyleCommand{{Verb: "mcont", Params: map[string]any{"contour_line_colour": "red"}}}}
	blue := &domain.Style{Name: "default", Commands: []domain.StyleCommand{{Verb: "mcont", Params: map[string]any{"contour_line_colour": "blue"}}}}
	assert.Empty(t, styleKey(nil))
	assert.NotEqual(t, styleKey(red), styleKey(blue))
	assert.Equal(t, styleKey(red), styleKey(&domain.Style{Name: "default", Commands: red.Commands}))
}
