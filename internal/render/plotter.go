package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"go.ngs.io/wms-api/internal/domain"
)

// outputTypes maps MIME types to plotter output formats.
var outputTypes = map[string]string{
	"image/png": "png",
}

// UnsupportedFormatError is returned for an output format the plotter cannot produce.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format '%s'", e.Format)
}

// LayerPlot is one resolved layer of a request.
type LayerPlot struct {
	Layer domain.Layer
	Field *domain.Field
	Style *domain.Style
}

// MapRequest describes a GetMap rendering.
type MapRequest struct {
	Format      string
	Width       int
	Height      int
	BBox        [4]float64
	CRS         string
	Version     string
	Transparent bool
	Layers      []LayerPlot
}

// LegendRequest describes a GetLegendGraphic rendering.
type LegendRequest struct {
	Format      string
	Width       int
	Height      int
	Transparent bool
	Layer       LayerPlot
}

// DocumentLayer records which style a layer of the document was drawn with.
type DocumentLayer struct {
	Layer string `json:"layer"`
	Style string `json:"style,omitempty"`
}

// Document is the complete input of one plotter run.
type Document struct {
	Layers   []DocumentLayer `json:"layers,omitempty"`
	Commands []Command       `json:"commands"`
}

func outputFormat(mime string) (string, error) {
	f, ok := outputTypes[mime]
	if !ok {
		return "", &UnsupportedFormatError{Format: mime}
	}
	return f, nil
}

// Plotter sizes are in centimetres; WMS sizes in pixels.
func cm(px int) float64 { return float64(px) / 40 }

func outputCommand(format string, width int, transparent bool, name string) Command {
	return Command{Verb: "output", Params: map[string]any{
		"output_formats":                      []string{format},
		"output_name_first_page_number":       "off",
		"output_cairo_transparent_background": transparent,
		"output_width":                        width,
		"output_name":                         name,
	}}
}

func pageParams(width, height int) map[string]any {
	w, h := cm(width), cm(height)
	return map[string]any{
		"subpage_frame":       "off",
		"page_x_length":       w,
		"page_y_length":       h,
		"super_page_x_length": w,
		"super_page_y_length": h,
		"subpage_x_length":    w,
		"subpage_y_length":    h,
		"subpage_x_position":  0.0,
		"subpage_y_position":  0.0,
		"output_width":        width,
		"page_frame":          "off",
		"page_id_line":        "off",
	}
}

// MapDocument builds the plot document of a GetMap request writing its image
// to output (without extension).
func MapDocument(rc Context, req MapRequest, output string) (*Document, error) {
	format, err := outputFormat(req.Format)
	if err != nil {
		return nil, err
	}
	crs, err := LookupCRS(req.CRS)
	if err != nil {
		return nil, err
	}

	minX, minY, maxX, maxY := req.BBox[0], req.BBox[1], req.BBox[2], req.BBox[3]
	lowerLat, lowerLon, upperLat, upperLon := minY, minX, maxY, maxX
	if crs.LatLonAxes && req.Version != "1.1.1" {
		lowerLat, lowerLon, upperLat, upperLon = minX, minY, maxX, maxY
	}
	mmap := pageParams(req.Width, req.Height)
	mmap["subpage_map_projection"] = crs.Projection
	mmap["subpage_lower_left_latitude"] = lowerLat
	mmap["subpage_lower_left_longitude"] = lowerLon
	mmap["subpage_upper_right_latitude"] = upperLat
	mmap["subpage_upper_right_longitude"] = upperLon

	doc := &Document{Commands: []Command{
		outputCommand(format, req.Width, req.Transparent, output),
		{Verb: "mmap", Params: mmap},
	}}
	for _, lp := range req.Layers {
		cmds, err := FieldCommands(rc, lp.Field, lp.Style, nil)
		if err != nil {
			return nil, err
		}
		doc.Commands = append(doc.Commands, cmds...)
		doc.Layers = append(doc.Layers, documentLayer(lp))
	}
	return doc, nil
}

// LegendDocument builds the plot document of a GetLegendGraphic request.
func LegendDocument(rc Context, req LegendRequest, output string) (*Document, error) {
	format, err := outputFormat(req.Format)
	if err != nil {
		return nil, err
	}
	doc := &Document{Commands: []Command{
		outputCommand(format, req.Width, req.Transparent, output),
		{Verb: "mmap", Params: pageParams(req.Width, req.Height)},
	}}

	cmds, err := FieldCommands(rc, req.Layer.Field, req.Layer.Style, map[string]any{
		"legend":              "on",
		"contour_legend_only": true,
	})
	if err != nil {
		return nil, err
	}
	doc.Commands = append(doc.Commands, cmds...)

	fontSize := "25%"
	if req.Width < req.Height {
		fontSize = "5%"
	}
	doc.Commands = append(doc.Commands, Command{Verb: "mlegend", Params: map[string]any{
		"legend_title":          "on",
		"legend_title_text":     req.Layer.Layer.Info().Title,
		"legend_display_type":   "continuous",
		"legend_box_mode":       "positional",
		"legend_only":           true,
		"legend_box_x_position": 0.0,
		"legend_box_y_position": 0.0,
		"legend_box_x_length":   cm(req.Width),
		"legend_box_y_length":   cm(req.Height),
		"legend_box_blanking":   !req.Transparent,
		"legend_text_font_size": fontSize,
		"legend_text_colour":    "navy",
	}})
	doc.Layers = []DocumentLayer{documentLayer(req.Layer)}
	return doc, nil
}

func documentLayer(lp LayerPlot) DocumentLayer {
	dl := DocumentLayer{Layer: lp.Layer.Info().Name}
	if lp.Style != nil {
		dl.Style = lp.Style.Name
	}
	return dl
}

// ExecPlotter renders documents with an external program invoked as
// "<command> <document.json>". The program writes <output_name>.<format>.
type ExecPlotter struct {
	command []string
	timeout time.Duration
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// NewExecPlotter creates a plotter running command, with at most concurrency
// plots at once and each bounded by timeout.
func NewExecPlotter(command string, timeout time.Duration, concurrency int64, logger *slog.Logger) (*ExecPlotter, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, errors.New("plot command is empty")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &ExecPlotter{
		command: args,
		timeout: timeout,
		sem:     semaphore.NewWeighted(concurrency),
		logger:  logger,
	}, nil
}

// StaticLayers returns the decorations the plotter draws on its own.
func (p *ExecPlotter) StaticLayers() []domain.Layer { return StaticLayers() }

// CRSs returns the supported coordinate reference systems.
func (p *ExecPlotter) CRSs() []CRS { return SupportedCRSs() }

// Macro returns the plot document of req as indented JSON instead of an image.
func (p *ExecPlotter) Macro(_ context.Context, rc Context, req MapRequest) ([]byte, error) {
	doc, err := MapDocument(rc, req, "map")
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Plot renders a map image.
func (p *ExecPlotter) Plot(ctx context.Context, rc Context, req MapRequest) ([]byte, error) {
	return p.run(ctx, req.Format, func(output string) (*Document, error) {
		return MapDocument(rc, req, output)
	})
}

// Legend renders a legend image.
func (p *ExecPlotter) Legend(ctx context.Context, rc Context, req LegendRequest) ([]byte, error) {
	return p.run(ctx, req.Format, func(output string) (*Document, error) {
		return LegendDocument(rc, req, output)
	})
}

func (p *ExecPlotter) run(ctx context.Context, mime string, build func(output string) (*Document, error)) ([]byte, error) {
	format, err := outputFormat(mime)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "wms-plot-")
	if err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	output := filepath.Join(dir, "plot")
	doc, err := build(output)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plot document: %w", err)
	}
	docPath := filepath.Join(dir, "plot.json")
	if err := os.WriteFile(docPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write plot document: %w", err)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := append(append([]string(nil), p.command[1:]...), docPath)
	cmd := exec.CommandContext(runCtx, p.command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	start := time.Now()
	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("plot timed out after %s", p.timeout)
		}
		return nil, fmt.Errorf("plot command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	p.logger.Debug("plot rendered", "commands", len(doc.Commands), "duration", time.Since(start))

	img, err := os.ReadFile(output + "." + format)
	if err != nil {
		return nil, fmt.Errorf("plot produced no image: %w", err)
	}
	return img, nil
}
