package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"go.ngs.io/wms-api/internal/domain"
	"go.ngs.io/wms-api/internal/observability"
	"go.ngs.io/wms-api/internal/render"
)

// Extractor reads the fields of one data file and pairs their vector
// components.
type Extractor interface {
	Extract(ctx context.Context, path string) (*domain.Batch, error)
}

// Path scan outcomes.
const (
	StatusOK          = "ok"
	StatusUnsupported = "unsupported"
	StatusEmpty       = "empty"
	StatusError       = "error"
)

// PathStatus records the scan outcome of one file.
type PathStatus struct {
	Status string `json:"status"`
	Fields int    `json:"fields"`
	Error  string `json:"error,omitempty"`
}

// AvailabilityOptions configures a filesystem-backed availability.
type AvailabilityOptions struct {
	Grouped   bool // Aggregate levels of a parameter into one layer.
	Recursive bool // Descend into subdirectories.
	Workers   int  // Files extracted concurrently.
	Styler    render.Styler
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
}

// Availability indexes the data files below a root path. The scan runs once,
// on first use.
type Availability struct {
	root      string
	extractor Extractor
	opts      AvailabilityOptions
	logger    *slog.Logger

	mu       sync.RWMutex
	loaded   bool
	loadErr  error
	index    *domain.Index
	status   map[string]PathStatus
	loadedAt time.Time
}

// NewAvailability creates an availability over root, which may be a
// directory or a single file.
func NewAvailability(root string, extractor Extractor, opts AvailabilityOptions, logger *slog.Logger) *Availability {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	return &Availability{
		root:      root,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
		index:     domain.NewIndex(opts.Grouped),
		status:    make(map[string]PathStatus),
	}
}

// Load scans the root once. Later calls return the outcome of the first
// completed scan. A title conflict fails the load.
func (a *Availability) Load(ctx context.Context) error {
	a.mu.RLock()
	loaded, err := a.loaded, a.loadErr
	a.mu.RUnlock()
	if loaded {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return a.loadErr
	}
	err = a.load(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Interrupted scans are retried by the next caller.
		a.index = domain.NewIndex(a.opts.Grouped)
		a.status = make(map[string]PathStatus)
		return err
	}
	a.loaded, a.loadErr = true, err
	return err
}

type extraction struct {
	path  string
	batch *domain.Batch
	err   error
}

func (a *Availability) load(ctx context.Context) error {
	start := a.opts.Clock.Now()
	paths, err := a.listFiles()
	if err != nil {
		return err
	}
	a.logger.Info("scanning data files", "root", a.root, "files", len(paths), "workers", a.opts.Workers)

	results := make([]extraction, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, p := range paths {
		g.Go(func() error {
			batch, err := a.extractor.Extract(gctx, p)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = extraction{path: p, batch: batch, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Insertion follows path order so aliases and layer order are stable.
	for _, r := range results {
		if err := a.insert(r); err != nil {
			return err
		}
	}

	a.loadedAt = a.opts.Clock.Now()
	m := a.opts.Metrics
	m.ScanDuration.Observe(a.loadedAt.Sub(start).Seconds())
	m.LayersIndexed.Set(float64(a.index.Len()))
	m.FieldsIndexed.Set(float64(a.index.FieldCount()))
	a.logger.Info("availability loaded",
		"layers", a.index.Len(), "fields", a.index.FieldCount(), "duration", a.loadedAt.Sub(start))
	return nil
}

func (a *Availability) insert(r extraction) error {
	m := a.opts.Metrics
	if r.err != nil {
		st := PathStatus{Status: StatusError, Error: r.err.Error()}
		switch {
		case errors.Is(r.err, domain.ErrUnsupportedFormat):
			st.Status = StatusUnsupported
			a.logger.Debug("skipping unsupported file", "path", r.path)
		case errors.Is(r.err, domain.ErrNoFieldsFound):
			st.Status = StatusEmpty
			a.logger.Info("no fields found", "path", r.path)
		default:
			a.logger.Warn("failed to scan file", "path", r.path, "error", r.err)
		}
		a.status[r.path] = st
		m.FilesScanned.WithLabelValues(st.Status).Inc()
		return nil
	}

	fields := a.index.Adopt(r.batch)
	for _, f := range fields {
		if a.opts.Styler != nil && f.Styles == nil {
			f.Styles = a.opts.Styler.Styles(f)
		}
		added, err := a.index.AddField(f)
		if err != nil {
			return fmt.Errorf("%s: %w", r.path, err)
		}
		if !added {
			m.DuplicateField.Inc()
			a.logger.Info("duplicate field ignored", "path", r.path, "field", f.Name, "key", f.Key().String())
		}
	}
	a.status[r.path] = PathStatus{Status: StatusOK, Fields: len(fields)}
	m.FilesScanned.WithLabelValues(StatusOK).Inc()
	return nil
}

// listFiles returns the regular files below root in lexical order. Hidden
// files and directories are skipped.
func (a *Availability) listFiles() ([]string, error) {
	info, err := os.Stat(a.root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat data path: %w", err)
	}
	if !info.IsDir() {
		return []string{a.root}, nil
	}

	var paths []string
	err = filepath.WalkDir(a.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".") && p != a.root
		if d.IsDir() {
			if p != a.root && (hidden || !a.opts.Recursive) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden && d.Type().IsRegular() {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk data path: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Layers returns every layer sorted by name.
func (a *Availability) Layers(ctx context.Context) ([]domain.Layer, error) {
	if err := a.Load(ctx); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.Layers(), nil
}

// Lookup resolves a layer name or alias.
func (a *Availability) Lookup(ctx context.Context, name string) (domain.Layer, error) {
	if err := a.Load(ctx); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.Resolve(name)
}

// Layer resolves name and selects the field matching dims.
func (a *Availability) Layer(ctx context.Context, name string, dims *domain.Dims) (*domain.Field, error) {
	if err := a.Load(ctx); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.Layer(name, dims)
}

// Companion returns the other component of a vector field.
func (a *Availability) Companion(f *domain.Field) *domain.Field {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.Companion(f)
}

// Aliases returns the alias table.
func (a *Availability) Aliases() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index.Aliases()
}

// Status returns the per-path scan outcome and the load time.
func (a *Availability) Status() (map[string]PathStatus, time.Time) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]PathStatus, len(a.status))
	for k, v := range a.status {
		out[k] = v
	}
	return out, a.loadedAt
}
