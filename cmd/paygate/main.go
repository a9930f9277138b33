package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lumipay/paygate/internal/gateway/app"
	"github.com/lumipay/paygate/internal/gateway/domain"
	"github.com/lumipay/paygate/internal/gateway/provider"
	"github.com/lumipay/paygate/internal/gateway/repository/postgres"
	transporthttp "github.com/lumipay/paygate/internal/gateway/transport/http"
	"github.com/lumipay/paygate/internal/platform/config"
	"github.com/lumipay/paygate/internal/platform/database"
	"github.com/lumipay/paygate/internal/platform/logger"
	"github.com/lumipay/paygate/internal/platform/messagebroker"
	"github.com/lumipay/paygate/internal/platform/migrate"
)

const (
	serviceName     = "paygate"
	shutdownTimeout = 15 * time.Second
)

// httpLogger is a middleware that logs HTTP requests using slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			requestID := chiMiddleware.GetReqID(r.Context())

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", requestID),
				slog.String("remote_ip", r.RemoteAddr),
			)
		}
		return http.HandlerFunc(fn)
	}
}

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not load .env file", "error", err)
	}

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)

	appLogger.Info("Payment gateway adapter starting...",
		"http_port", cfg.HTTPPort,
		"metrics_port", cfg.MetricsPort,
		"provider_base_url", cfg.ProviderBaseURL,
		"log_level", cfg.LogLevel,
	)

	if cfg.MigrationsPath != "" {
		if err := migrate.Run(cfg.PostgresDSN, cfg.MigrationsPath, appLogger); err != nil {
			appLogger.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}
	}

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS", "url", cfg.NATSUrl)

	providerLocation, err := time.LoadLocation(cfg.ProviderTimezone)
	if err != nil {
		appLogger.Error("Invalid provider time zone", "timezone", cfg.ProviderTimezone, "error", err)
		os.Exit(1)
	}

	transactionRepo := postgres.NewPgTransactionRepository(dbPool, appLogger)
	providerClient := provider.NewHTTPClient(appLogger, cfg.ProviderBaseURL, &http.Client{
		Timeout: time.Duration(cfg.ProviderTimeoutSeconds) * time.Second,
	})
	orderNos := domain.NewOrderNoGenerator(cfg.SiteID)

	orchestrator := app.NewOrchestrator(transactionRepo, providerClient, orderNos, app.OrchestratorConfig{
		MerchantID:       cfg.MerchantID,
		SiteID:           cfg.SiteID,
		NotifyURL:        strings.TrimSuffix(cfg.CallbackBaseURL, "/") + "/api/v1/notify",
		ValidityWindow:   time.Duration(cfg.OrderValidityMinutes) * time.Minute,
		ProviderLocation: providerLocation,
	}, appLogger)
	reconciler := app.NewReconciler(transactionRepo, natsClient, appLogger)

	validate := validator.New(validator.WithRequiredStructEnabled())
	transactionHandler := transporthttp.NewTransactionHandler(orchestrator, cfg.SecretKey, validate, appLogger)
	callbackHandler := transporthttp.NewCallbackHandler(reconciler, cfg.SecretKey, appLogger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(chiMiddleware.Timeout(60 * time.Second))
	router.Use(httpLogger(appLogger))
	router.Use(transporthttp.PrometheusMetricsMiddleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Route("/api/v1", func(r chi.Router) {
		transactionHandler.RegisterRoutes(r)
		callbackHandler.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("Metrics HTTP server shut down gracefully.")
		return nil
	})

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown of servers...")

		shutdownCtx, cancelShutdownTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdownTimeout()

		var shutdownErrors error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("http shutdown: %w", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}
		return shutdownErrors
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Service stopped.")
}
