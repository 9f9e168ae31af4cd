package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnknownOlympus/lookout/internal/config"
	"github.com/UnknownOlympus/lookout/internal/location"
	"github.com/UnknownOlympus/lookout/internal/mapview"
	"github.com/UnknownOlympus/lookout/internal/metrics"
	"github.com/UnknownOlympus/lookout/internal/models"
	"github.com/UnknownOlympus/lookout/internal/repository"
	"github.com/UnknownOlympus/lookout/internal/service"
	"github.com/UnknownOlympus/lookout/internal/ui"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

const shutdownTimeout = 5 * time.Second

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	// This allows for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load application configuration.
	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics with exemplar
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	// The position store is optional: without a database the screen starts empty.
	var (
		dtb  *pgxpool.Pool
		repo repository.Interface
	)
	if cfg.Database.Enabled() {
		var err error
		dtb, err = repository.NewDatabase(
			ctx, cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
		)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer dtb.Close()

		store := repository.NewRepository(dtb, logger)
		if err = store.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare DB schema: %v", err)
		}
		repo = store
	} else {
		logger.InfoContext(ctx, "No database configured, last known position is disabled")
	}

	// Create map provider using factory pattern based on configuration.
	mapProvider, err := mapview.NewProvider(mapview.ProviderConfig{
		Type:      mapview.ProviderType(cfg.Map.ProviderType),
		APIKey:    cfg.Map.APIKey,
		BaseURL:   cfg.Map.BaseURL,
		RateLimit: cfg.Map.RateLimit,
		Timeout:   cfg.Map.Timeout,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to create map provider: %v", err)
	}
	logger.InfoContext(ctx, "Map provider initialized", "type", cfg.Map.ProviderType)

	source, err := location.NewSource(location.SourceConfig{
		Type:         location.SourceType(cfg.Source.Type),
		SerialPort:   cfg.Source.SerialPort,
		BaudRate:     cfg.Source.BaudRate,
		ReplayFile:   cfg.Source.ReplayFile,
		MQTTBroker:   cfg.Source.MQTTBroker,
		MQTTTopic:    cfg.Source.MQTTTopic,
		MQTTClientID: cfg.Source.MQTTClientID,
		SimStart:     models.Coordinates{Latitude: cfg.Source.SimLatitude, Longitude: cfg.Source.SimLongitude},
		SimAltitude:  cfg.Source.SimAltitude,
		SimSpeed:     cfg.Source.SimSpeed,
		SimBearing:   cfg.Source.SimBearing,
		SimRate:      cfg.Source.SimRate,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("Failed to create location source: %v", err)
	}
	logger.InfoContext(ctx, "Location source initialized", "type", cfg.Source.Type)

	host := ui.NewWebHost(logger, appMetrics.UIClients)
	defer host.Close()

	screen := service.NewScreenService(logger, host, source, mapProvider, repo, appMetrics, service.Options{
		DeviceID:        cfg.DeviceID,
		TickInterval:    cfg.TickInterval(),
		PersistInterval: cfg.PersistInterval,
		FetchTimeout:    cfg.Map.Timeout,
		Zoom:            cfg.Map.Zoom,
		Width:           cfg.Map.Width,
		Height:          cfg.Map.Height,
		ProviderName:    cfg.Map.ProviderType,
	})

	// Log that the application has started.
	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return startMonitoringServer(groupCtx, logger, reg, dtb, cfg.Port)
	})
	group.Go(func() error {
		return startUIServer(groupCtx, logger, host.Handler(), cfg.UIAddr)
	})
	group.Go(func() error {
		return screen.Run(groupCtx)
	})

	if err = group.Wait(); err != nil {
		logger.ErrorContext(ctx, "Application stopped with error", "error", err)
		return
	}

	// Log graceful shutdown completion.
	logger.InfoContext(ctx, "Application stopped gracefully.")
}

// startMonitoringServer starts an HTTP server that provides health check and metrics endpoints.
// It listens on the specified port and shuts down once ctx is cancelled.
//
// Parameters:
// - ctx: A context.Context for managing cancellation and timeouts.
// - log: A logger for logging server events and errors.
// - reg: A registry with Prometheus collectors.
// - dtb: A pgxpool connector for database methods (ping), nil without a database
// - port: The port number on which the server will listen.
func startMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	dtb *pgxpool.Pool,
	port int,
) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, req *http.Request) {
		log.DebugContext(ctx, "Performing health checks...")
		status, body := http.StatusOK, "OK"
		if dtb != nil {
			if err := dtb.Ping(req.Context()); err != nil {
				status, body = http.StatusServiceUnavailable, "DB ping failed"
			}
		}
		writer.WriteHeader(status)
		_, err := writer.Write([]byte(body))
		if err != nil {
			log.ErrorContext(ctx, "failed to write reply", "error", err)
		}

		log.DebugContext(ctx, "Health checks completed", "status", status)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.InfoContext(ctx, "Starting monitoring server", "port", port)
	readTimeout := 5
	writeTimeout := 10
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}

	return serve(ctx, log, server, "monitoring")
}

// startUIServer serves the screen page and its WebSocket feed on addr.
func startUIServer(ctx context.Context, log *slog.Logger, handler http.Handler, addr string) error {
	log.InfoContext(ctx, "Starting UI server", "addr", addr)
	readHeaderTimeout := 5
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(readHeaderTimeout) * time.Second,
	}

	return serve(ctx, log, server, "UI")
}

func serve(ctx context.Context, log *slog.Logger, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Server failed", "server", name, "error", err)
			return fmt.Errorf("%s server failed: %w", name, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down %s server: %w", name, err)
		}
		log.InfoContext(ctx, "Server stopped", "server", name)
		return nil
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					return a
				},
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)

		log.Error(
			"The env parameter was not specified	 or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
