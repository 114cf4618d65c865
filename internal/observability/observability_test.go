package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("scan failed", "path", "/data/a.grib")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "scan failed", rec["msg"])
	assert.Equal(t, "/data/a.grib", rec["path"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "text")
	logger.Debug("field indexed", "layer", "2t")
	assert.Contains(t, buf.String(), "layer=2t")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()
	m.FilesScanned.WithLabelValues("ok").Add(3)
	m.Requests.WithLabelValues("getmap", "error").Inc()

	assert.Equal(t, 3.0, counterValue(t, m.FilesScanned.WithLabelValues("ok")))
	assert.Equal(t, 1.0, counterValue(t, m.Requests.WithLabelValues("getmap", "error")))
	// A second set must not collide with the first.
	assert.NotPanics(t, func() { NewMetricsForTesting() })
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}
