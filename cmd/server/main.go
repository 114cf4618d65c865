// Package main provides the WMS HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"go.ngs.io/wms-api/internal/adapter/store/catalog"
	"go.ngs.io/wms-api/internal/adapter/store/formats"
	"go.ngs.io/wms-api/internal/config"
	httpHandler "go.ngs.io/wms-api/internal/http"
	"go.ngs.io/wms-api/internal/observability"
	"go.ngs.io/wms-api/internal/render"
	"go.ngs.io/wms-api/internal/usecase"
	"go.ngs.io/wms-api/internal/wms"
)

const version = "0.1.0"

// loader is a catalog that can be scanned ahead of the first request.
type loader interface {
	usecase.Catalog
	Load(ctx context.Context) error
}

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("wms-api version %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	var cat loader
	if cfg.LayersConfig != "" {
		logger.Info("using layer catalog", "path", cfg.LayersConfig)
		cat = catalog.New(cfg.LayersConfig, logger)
	} else {
		logger.Info("scanning data path", "path", cfg.DataPath,
			"recursive", cfg.ScanRecursive, "grouped", cfg.GroupDimensions)
		cat = usecase.NewAvailability(cfg.DataPath, formats.NewRegistry(logger), usecase.AvailabilityOptions{
			Grouped:   cfg.GroupDimensions,
			Recursive: cfg.ScanRecursive,
			Workers:   cfg.ScanWorkers,
			Styler:    render.NewDefaultStyler(),
			Clock:     clock,
			Metrics:   metrics,
		}, logger)
	}

	plotter, err := render.NewExecPlotter(cfg.PlotCommand, cfg.PlotTimeout, cfg.PlotConcurrency, logger)
	if err != nil {
		logger.Error("failed to initialize plotter", "error", err)
		os.Exit(1)
	}

	service := usecase.NewWMSService(cat, plotter, usecase.WMSOptions{
		Service:   wms.Service{Title: cfg.WMSTitle, URL: cfg.BaseURL},
		CacheSize: cfg.PlotCacheSize,
		Clock:     clock,
		Metrics:   metrics,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scan before serving so the first GetCapabilities is fast. A failed
	// scan is reported by every request until restart.
	if err := cat.Load(ctx); err != nil {
		logger.Error("initial load failed", "error", err)
	}

	router := httpHandler.SetupRouter(service, httpHandler.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Gatherer:       prometheus.DefaultGatherer,
		Clock:          clock,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "wms", cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("WMS API Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  wms-api [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  BASE_URL                Public URL of the /wms endpoint (default: http://localhost:PORT/wms)")
	fmt.Println("  WMS_TITLE               Service title in capabilities (default: Meteorological WMS)")
	fmt.Println("  DATA_PATH               Data file or directory to scan (default: ./data)")
	fmt.Println("  LAYERS_CONFIG           YAML layer catalog; replaces the directory scan when set")
	fmt.Println("  GROUP_DIMENSIONS        Merge levels of a parameter into one layer (default: false)")
	fmt.Println("  SCAN_RECURSIVE          Descend into subdirectories (default: true)")
	fmt.Println("  SCAN_WORKERS            Files read concurrently (default: 4)")
	fmt.Println("  PLOT_COMMAND            Plotting program (default: magics-plot)")
	fmt.Println("  PLOT_TIMEOUT            Per-plot timeout (default: 30s)")
	fmt.Println("  PLOT_CONCURRENCY        Plots run at once (default: 2)")
	fmt.Println("  PLOT_CACHE_SIZE         Map images cached, 0 disables (default: 128)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  LOG_LEVEL               debug, info, warn or error (default: info)")
	fmt.Println("  LOG_FORMAT              json or text (default: json)")
	fmt.Println("  SHUTDOWN_TIMEOUT        Graceful shutdown timeout (default: 10s)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Serve every GRIB, NetCDF and GeoJSON file below /srv/data")
	fmt.Println("  DATA_PATH=/srv/data wms-api")
	fmt.Println()
	fmt.Println("  # Serve a fixed layer catalog on a custom port")
	fmt.Println("  PORT=3000 LAYERS_CONFIG=layers.yaml wms-api")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /wms             WMS 1.1.1 and 1.3.0 (GetCapabilities, GetMap, GetLegendGraphic)")
	fmt.Println("  GET /availability    Indexed layers, fields and scan status as JSON")
	fmt.Println("  GET /health          Health check")
	fmt.Println("  GET /metrics         Prometheus metrics")
	fmt.Println()
}
