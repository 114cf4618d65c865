package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/wms-api/internal/adapter/store"
	"go.ngs.io/wms-api/internal/adapter/store/grib"
	"go.ngs.io/wms-api/internal/adapter/store/grib/gribtest"
	"go.ngs.io/wms-api/internal/adapter/store/observation"
	"go.ngs.io/wms-api/internal/domain"
	"go.ngs.io/wms-api/internal/observability"
	"go.ngs.io/wms-api/internal/render"
)

var ref = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func temperature(pa uint32, step int) []byte {
	return gribtest.Message2(ref, gribtest.Field2{TimeUnit: 1, Step: step, SurfaceType: 100, Value: pa})
}

func surface(category, number int, height uint32) []byte {
	return gribtest.Message2(ref, gribtest.Field2{
		Category: category, Number: number, TimeUnit: 1, SurfaceType: 103, Value: height,
	})
}

func writeData(t *testing.T, dir, name string, msgs ...[]byte) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, bytes.Join(msgs, nil), 0o644))
}

// dataDir lays out temperatures on two pressure levels, a wind pair, an
// unsupported file, a hidden file and a subdirectory holding 2 m temperature.
func dataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeData(t, dir, "a_temp.grib",
		temperature(85000, 0), temperature(50000, 0),
		temperature(85000, 6), temperature(50000, 6),
		temperature(85000, 0), // Duplicate of the first message.
	)
	writeData(t, dir, "b_wind.grib", surface(2, 2, 10), surface(2, 3, 10))
	writeData(t, dir, "notes.txt", []byte("not a data file"))
	writeData(t, dir, ".hidden.grib", surface(0, 0, 2))
	writeData(t, dir, "sub/c.grib", surface(0, 0, 2))
	return dir
}

func newRegistry() *store.Registry {
	r := store.NewRegistry()
	r.Register("grib", store.Magic("GRIB"), grib.NewReader(slog.Default()))
	r.Register("geojson", store.JSONObject(), observation.NewReader(slog.Default()))
	return r
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}

func layerNames(layers []domain.Layer) []string {
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = l.Info().Name
	}
	return out
}

func TestAvailability_ScansDirectory(t *testing.T) {
	dir := dataDir(t)
	clock := clockwork.NewFakeClockAt(ref)
	metrics := observability.NewMetricsForTesting()
	a := NewAvailability(dir, newRegistry(), AvailabilityOptions{
		Recursive: true,
		Workers:   3,
		Styler:    render.NewDefaultStyler(),
		Clock:     clock,
		Metrics:   metrics,
	}, slog.Default())

	layers, err := a.Layers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10u/10v", "2t", "t_500", "t_850"}, layerNames(layers))
	assert.Equal(t, "t_850", a.Aliases()[domain.DefaultAlias])

	status, loadedAt := a.Status()
	assert.Equal(t, ref, loadedAt)
	assert.Equal(t, PathStatus{Status: StatusOK, Fields: 5}, status[filepath.Join(dir, "a_temp.grib")])
	assert.Equal(t, PathStatus{Status: StatusOK, Fields: 1}, status[filepath.Join(dir, "b_wind.grib")])
	assert.Equal(t, StatusUnsupported, status[filepath.Join(dir, "notes.txt")].Status)
	assert.NotContains(t, status, filepath.Join(dir, ".hidden.grib"))
	assert.Contains(t, status, filepath.Join(dir, "sub", "c.grib"))

	assert.Equal(t, 1.0, counterValue(t, metrics.DuplicateField))
	assert.Equal(t, 1.0, counterValue(t, metrics.FilesScanned.WithLabelValues(StatusUnsupported)))
	assert.Equal(t, 3.0, counterValue(t, metrics.FilesScanned.WithLabelValues(StatusOK)))
}

func TestAvailability_SelectAndStyles(t *testing.T) {
	a := NewAvailability(dataDir(t), newRegistry(), AvailabilityOptions{
		Recursive: true,
		Styler:    render.NewDefaultStyler(),
	}, slog.Default())
	ctx := context.Background()

	f, err := a.Layer(ctx, "t_500", &domain.Dims{Time: "2024-01-01T06:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, ref.Add(6*time.Hour), *f.Time)
	assert.Equal(t, 4, f.Locator.Position)
	require.NotEmpty(t, f.Styles)
	assert.Equal(t, "sh_all_fM50t58i2", f.Styles[0].Name)

	def, err := a.Layer(ctx, domain.DefaultAlias, nil)
	require.NoError(t, err)
	assert.Equal(t, "t_850", def.Name)

	wind, err := a.Layer(ctx, "10u/10v", nil)
	require.NoError(t, err)
	assert.True(t, wind.Vector)
	v := a.Companion(wind)
	require.NotNil(t, v)
	assert.Equal(t, "10v", v.ShortName)
	assert.Equal(t, "arrows", wind.Styles[0].Name)

	_, err = a.Lookup(ctx, "missing")
	var notDefined *domain.LayerNotDefinedError
	assert.ErrorAs(t, err, &notDefined)
}

func TestAvailability_NonRecursive(t *testing.T) {
	a := NewAvailability(dataDir(t), newRegistry(), AvailabilityOptions{}, slog.Default())
	layers, err := a.Layers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10u/10v", "t_500", "t_850"}, layerNames(layers))
}

func TestAvailability_GroupedDimensions(t *testing.T) {
	a := NewAvailability(dataDir(t), newRegistry(), AvailabilityOptions{Grouped: true}, slog.Default())
	l, err := a.Lookup(context.Background(), "t")
	require.NoError(t, err)

	dims := l.Dimensions()
	require.Len(t, dims, 2)
	assert.Equal(t, domain.ElevationName, dims[1].Name)
	assert.Equal(t, "500,850", dims[1].Extent)
}

func TestAvailability_SingleFile(t *testing.T) {
	dir := dataDir(t)
	a := NewAvailability(filepath.Join(dir, "b_wind.grib"), newRegistry(), AvailabilityOptions{}, slog.Default())
	layers, err := a.Layers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10u/10v"}, layerNames(layers))
}

func TestAvailability_MissingRoot(t *testing.T) {
	a := NewAvailability(filepath.Join(t.TempDir(), "absent"), newRegistry(), AvailabilityOptions{}, slog.Default())
	_, err := a.Layers(context.Background())
	assert.Error(t, err)
}

// stubExtractor returns canned fields per file base name.
type stubExtractor struct {
	mu     sync.Mutex
	calls  int
	fields map[string][]*domain.Field
}

func (s *stubExtractor) Extract(ctx context.Context, path string) (*domain.Batch, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields, ok := s.fields[filepath.Base(path)]
	if !ok {
		return nil, domain.ErrNoFieldsFound
	}
	return domain.PairCompanions(path, fields), nil
}

func titled(name, title string, hour int) *domain.Field {
	f := domain.NewField(domain.FormatGRIB, "")
	f.SetIdentity(name, title)
	v := ref.Add(time.Duration(hour) * time.Hour)
	f.Time = &v
	return f
}

func TestAvailability_TitleConflictFailsLoad(t *testing.T) {
	dir := t.TempDir()
	writeData(t, dir, "a", []byte("x"))
	writeData(t, dir, "b", []byte("x"))
	ext := &stubExtractor{fields: map[string][]*domain.Field{
		"a": {titled("t", "Temperature", 0)},
		"b": {titled("t", "Air temperature", 6)},
	}}
	a := NewAvailability(dir, ext, AvailabilityOptions{Workers: 2}, slog.Default())

	_, err := a.Layers(context.Background())
	var conflict *domain.TitleConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "t", conflict.Layer)

	// The failed load is not retried.
	_, err = a.Lookup(context.Background(), "t")
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, ext.calls)
}

func TestAvailability_CancelledLoadIsRetried(t *testing.T) {
	dir := t.TempDir()
	writeData(t, dir, "a", []byte("x"))
	ext := &stubExtractor{fields: map[string][]*domain.Field{"a": {titled("t", "Temperature", 0)}}}
	a := NewAvailability(dir, ext, AvailabilityOptions{}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Layers(ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	layers, err := a.Layers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, layerNames(layers))
}

func TestAvailability_ConcurrentQueriesLoadOnce(t *testing.T) {
	dir := t.TempDir()
	writeData(t, dir, "a", []byte("x"))
	ext := &stubExtractor{fields: map[string][]*domain.Field{"a": {titled("t", "Temperature", 0)}}}
	a := NewAvailability(dir, ext, AvailabilityOptions{}, slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Layer(context.Background(), "t", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ext.calls)
}
