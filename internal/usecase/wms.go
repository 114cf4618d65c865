package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/groupcache/lru"
	"github.com/jonboulle/clockwork"

	"go.ngs.io/wms-api/internal/domain"
	"go.ngs.io/wms-api/internal/observability"
	"go.ngs.io/wms-api/internal/render"
	"go.ngs.io/wms-api/internal/wms"
)

// Catalog is a queryable set of layers: the scanned availability or the
// YAML layer catalog.
type Catalog interface {
	Layers(ctx context.Context) ([]domain.Layer, error)
	Lookup(ctx context.Context, name string) (domain.Layer, error)
	Companion(f *domain.Field) *domain.Field
	Aliases() map[string]string
}

// Plotter draws maps and legends.
type Plotter interface {
	Plot(ctx context.Context, rc render.Context, req render.MapRequest) ([]byte, error)
	Legend(ctx context.Context, rc render.Context, req render.LegendRequest) ([]byte, error)
	Macro(ctx context.Context, rc render.Context, req render.MapRequest) ([]byte, error)
	StaticLayers() []domain.Layer
	CRSs() []render.CRS
}

// Response is the body returned for a WMS request.
type Response struct {
	ContentType string
	Body        []byte
	Exception   bool
}

// WMSOptions configures a WMSService.
type WMSOptions struct {
	Service   wms.Service
	CacheSize int // Map images kept; 0 disables the cache.
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
}

// WMSService answers GetCapabilities, GetMap and GetLegendGraphic.
type WMSService struct {
	catalog Catalog
	plotter Plotter
	opts    WMSOptions
	logger  *slog.Logger

	cacheMu sync.Mutex
	cache   *lru.Cache
}

// NewWMSService creates the WMS use case.
func NewWMSService(catalog Catalog, plotter Plotter, opts WMSOptions, logger *slog.Logger) *WMSService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	s := &WMSService{catalog: catalog, plotter: plotter, opts: opts, logger: logger}
	if opts.CacheSize > 0 {
		s.cache = lru.New(opts.CacheSize)
	}
	return s
}

// Handle dispatches a WMS query. Failures are rendered as exception reports
// in the requested protocol version.
func (s *WMSService) Handle(ctx context.Context, values url.Values) *Response {
	p := wms.Normalize(values)
	request := p.Request()

	resp, err := s.dispatch(ctx, p)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		resp = s.exception(p.Version(), err)
	}
	label := request
	switch request {
	case wms.GetCapabilities, wms.GetMap, wms.GetLegendGraphic:
	default:
		label = "unknown"
	}
	s.opts.Metrics.Requests.WithLabelValues(label, outcome).Inc()
	return resp
}

func (s *WMSService) dispatch(ctx context.Context, p wms.Params) (*Response, error) {
	if svc := p.Service(); svc != wms.DefaultService {
		return nil, &wms.ServiceNotDefinedError{Service: svc}
	}
	switch p.Request() {
	case wms.GetCapabilities:
		req, err := wms.ParseCapabilities(p)
		if err != nil {
			return nil, err
		}
		return s.GetCapabilities(ctx, req)
	case wms.GetMap:
		req, err := wms.ParseMap(p)
		if err != nil {
			return nil, err
		}
		return s.GetMap(ctx, req)
	case wms.GetLegendGraphic:
		req, err := wms.ParseLegend(p)
		if err != nil {
			return nil, err
		}
		return s.GetLegendGraphic(ctx, req)
	}
	_, err := p.Filter()
	return nil, err
}

func (s *WMSService) exception(version string, err error) *Response {
	exc := wms.FromError(err)
	if exc.Code == wms.CodeGeneric {
		s.logger.Error("wms request failed", "error", err)
	} else {
		s.logger.Info("wms exception", "code", exc.Code, "error", err)
	}
	ct, body, rerr := exc.Report(version)
	if rerr != nil {
		return &Response{ContentType: "text/plain", Body: []byte(exc.Error()), Exception: true}
	}
	return &Response{ContentType: ct, Body: body, Exception: true}
}

// GetCapabilities lists the catalog layers and the plotter's static layers.
func (s *WMSService) GetCapabilities(ctx context.Context, req *wms.CapabilitiesParams) (*Response, error) {
	layers, err := s.catalog.Layers(ctx)
	if err != nil {
		return nil, err
	}
	layers = append(layers, s.plotter.StaticLayers()...)
	ct, body, err := wms.Capabilities(req.Version, wms.CapabilitiesInput{
		Service:        s.opts.Service,
		UpdateSequence: req.UpdateSequence,
		Formats:        []string{wms.DefaultFormat},
		CRSs:           s.plotter.CRSs(),
		Layers:         layers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode capabilities: %w", err)
	}
	return &Response{ContentType: ct, Body: body}, nil
}

// lookup resolves a layer in the catalog, then among the static layers.
func (s *WMSService) lookup(ctx context.Context, name string) (domain.Layer, error) {
	l, err := s.catalog.Lookup(ctx, name)
	var notDefined *domain.LayerNotDefinedError
	if err == nil || !errors.As(err, &notDefined) {
		return l, err
	}
	for _, sl := range s.plotter.StaticLayers() {
		if sl.Info().Name == name {
			return sl, nil
		}
	}
	return nil, err
}

func (s *WMSService) resolve(ctx context.Context, name, style string, dims *domain.Dims) (render.LayerPlot, error) {
	l, err := s.lookup(ctx, name)
	if err != nil {
		return render.LayerPlot{}, err
	}
	f, err := l.Select(dims)
	if err != nil {
		return render.LayerPlot{}, err
	}
	st, err := l.Style(style)
	if err != nil {
		return render.LayerPlot{}, err
	}
	return render.LayerPlot{Layer: l, Field: f, Style: st}, nil
}

// GetMap renders the requested layers, bottom first. With _macro set the
// plot document is returned instead of the image.
func (s *WMSService) GetMap(ctx context.Context, req *wms.MapParams) (*Response, error) {
	mr := render.MapRequest{
		Format:      req.Format,
		Width:       req.Width,
		Height:      req.Height,
		BBox:        req.BBox,
		CRS:         req.CRS,
		Version:     req.Version,
		Transparent: req.Transparent,
	}
	for i, name := range req.Layers {
		dims := req.Dims
		lp, err := s.resolve(ctx, name, req.Styles[i], &dims)
		if err != nil {
			return nil, err
		}
		mr.Layers = append(mr.Layers, lp)
	}

	if req.Macro {
		doc, err := s.plotter.Macro(ctx, s.catalog, mr)
		if err != nil {
			return nil, err
		}
		return &Response{ContentType: "application/json", Body: doc}, nil
	}

	key := cacheKey(mr)
	if img, ok := s.cached(key); ok {
		return &Response{ContentType: req.Format, Body: img}, nil
	}
	start := s.opts.Clock.Now()
	img, err := s.plotter.Plot(ctx, s.catalog, mr)
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.PlotDuration.WithLabelValues("map").Observe(s.opts.Clock.Since(start).Seconds())
	s.store(key, img)
	return &Response{ContentType: req.Format, Body: img}, nil
}

// GetLegendGraphic renders the legend of a layer style.
func (s *WMSService) GetLegendGraphic(ctx context.Context, req *wms.LegendParams) (*Response, error) {
	lp, err := s.resolve(ctx, req.Layer, req.Style, nil)
	if err != nil {
		return nil, err
	}
	start := s.opts.Clock.Now()
	img, err := s.plotter.Legend(ctx, s.catalog, render.LegendRequest{
		Format:      req.Format,
		Width:       req.Width,
		Height:      req.Height,
		Transparent: req.Transparent,
		Layer:       lp,
	})
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.PlotDuration.WithLabelValues("legend").Observe(s.opts.Clock.Since(start).Seconds())
	return &Response{ContentType: req.Format, Body: img}, nil
}

// cacheKey identifies a rendering by its area, output and resolved fields.
func cacheKey(mr render.MapRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%v|%dx%d|%t", mr.Version, mr.CRS, mr.Format, mr.BBox, mr.Width, mr.Height, mr.Transparent)
	for _, lp := range mr.Layers {
		fmt.Fprintf(&b, "|%s:%s#%d:%s:%s", lp.Layer.Info().Name, lp.Field.Path, lp.Field.ID, lp.Field.Key(), styleKey(lp.Style))
	}
	return b.String()
}

// styleKey names a style by its content so a reloaded style with the same
// name misses the cache.
func styleKey(st *domain.Style) string {
	if st == nil {
		return ""
	}
	return fmt.Sprintf("%s@%016x", st.Name, xxhash.Sum64String(fmt.Sprintf("%v", st.Commands)))
}

func (s *WMSService) cached(key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	s.cacheMu.Lock()
	v, ok := s.cache.Get(key)
	s.cacheMu.Unlock()
	result := "miss"
	if ok {
		result = "hit"
	}
	s.opts.Metrics.PlotCache.WithLabelValues(result).Inc()
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (s *WMSService) store(key string, img []byte) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Add(key, img)
	s.cacheMu.Unlock()
}

// LayerReport describes one layer in the availability report.
type LayerReport struct {
	Name       string             `json:"name"`
	Title      string             `json:"title"`
	ZIndex     int                `json:"zindex"`
	Dimensions []domain.Dimension `json:"dimensions,omitempty"`
	Styles     []string           `json:"styles,omitempty"`
	Fields     []FieldReport      `json:"fields,omitempty"`
}

// FieldReport describes one field of a layer.
type FieldReport struct {
	Name      string     `json:"name"`
	Format    string     `json:"format"`
	Path      string     `json:"path"`
	Time      *time.Time `json:"time,omitempty"`
	Level     *float64   `json:"level,omitempty"`
	LevelType string     `json:"level_type"`
	Companion string     `json:"companion,omitempty"`
}

// AvailabilityReport is the JSON view of the indexed data.
type AvailabilityReport struct {
	LoadedAt *time.Time            `json:"loaded_at,omitempty"`
	Aliases  map[string]string     `json:"aliases"`
	Layers   []LayerReport         `json:"layers"`
	Paths    map[string]PathStatus `json:"paths,omitempty"`
}

type fieldLister interface {
	Fields() []*domain.Field
}

type pathStatuser interface {
	Status() (map[string]PathStatus, time.Time)
}

// Availability reports the catalog layers with their fields.
func (s *WMSService) Availability(ctx context.Context) (*AvailabilityReport, error) {
	layers, err := s.catalog.Layers(ctx)
	if err != nil {
		return nil, err
	}
	report := &AvailabilityReport{Aliases: s.catalog.Aliases(), Layers: make([]LayerReport, 0, len(layers))}
	for _, l := range layers {
		info := l.Info()
		lr := LayerReport{Name: info.Name, Title: info.Title, ZIndex: info.ZIndex, Dimensions: l.Dimensions()}
		for _, st := range l.Styles() {
			lr.Styles = append(lr.Styles, st.Name)
		}
		if fl, ok := l.(fieldLister); ok {
			for _, f := range fl.Fields() {
				fr := FieldReport{
					Name: f.Name, Format: string(f.Format), Path: f.Path,
					Time: f.Time, Level: f.Level, LevelType: f.LevelType.String(),
				}
				if c := s.catalog.Companion(f); c != nil {
					fr.Companion = c.ShortName
				}
				lr.Fields = append(lr.Fields, fr)
			}
		}
		report.Layers = append(report.Layers, lr)
	}
	if ps, ok := s.catalog.(pathStatuser); ok {
		paths, loadedAt := ps.Status()
		report.Paths = paths
		if !loadedAt.IsZero() {
			report.LoadedAt = &loadedAt
		}
	}
	return report, nil
}
