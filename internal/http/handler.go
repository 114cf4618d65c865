package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"go.ngs.io/wms-api/internal/usecase"
)

// Service is the WMS use case served over HTTP.
type Service interface {
	Handle(ctx context.Context, values url.Values) *usecase.Response
	Availability(ctx context.Context) (*usecase.AvailabilityReport, error)
}

// Handler handles HTTP requests for the map service.
type Handler struct {
	service Service
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service Service, clock clockwork.Clock, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		clock:   clock,
		logger:  logger,
	}
}

// WMS handles GET /wms. Service exceptions are XML documents returned with
// status 200, as OGC clients expect.
func (h *Handler) WMS(c *gin.Context) {
	resp := h.service.Handle(c.Request.Context(), c.Request.URL.Query())
	if resp.Exception {
		h.logger.Debug("wms exception", "query", c.Request.URL.RawQuery)
	}
	c.Data(http.StatusOK, resp.ContentType, resp.Body)
}

// GetAvailability handles GET /availability.
func (h *Handler) GetAvailability(c *gin.Context) {
	report, err := h.service.Availability(c.Request.Context())
	if err != nil {
		h.logger.Error("availability failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   h.clock.Now().UTC().Format(time.RFC3339),
	})
}
