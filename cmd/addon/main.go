package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ogero/stremio-bilibili/internal"
	"github.com/ogero/stremio-bilibili/internal/common"
	"github.com/ogero/stremio-bilibili/internal/config"
	"github.com/ogero/stremio-bilibili/internal/loki"
	"github.com/ogero/stremio-bilibili/pkg/bilibili"
	slogchi "github.com/samber/slog-chi"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	serviceName    = "stremio-bilibili"
	serviceVersion = "0.1.0"
)

func main() {

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		common.Log.Error("Failed to config.Load", "err", err)
		os.Exit(1)
	}

	shutdownLogger, err := common.InitLogger(serviceName, serviceVersion, cfg.ServiceEnvironment, cfg.OtelExporterEndpoint)
	if err != nil {
		common.Log.Error("Failed to common.InitLogger", "err", err)
		os.Exit(1)
	}

	shutdownInstrumentation, err := common.InitInstrumentation(serviceName, serviceVersion, cfg.ServiceEnvironment, cfg.OtelExporterEndpoint)
	if err != nil {
		common.Log.Error("Failed to common.InitInstrumentation", "err", err)
		os.Exit(1)
	}

	catalogService, err := internal.NewCatalogService(
		cfg.StatsWebsocketChannel,
		bilibili.NewBilibili(cfg.BilibiliAPIBase),
		loki.NewLoki(cfg.LokiHost, serviceName),
	)
	if err != nil {
		common.Log.Error("Failed to internal.NewCatalogService", "err", err)
		os.Exit(1)
	}

	pollingCtx, stopPolling := context.WithCancel(context.Background())
	go catalogService.StartPollingStats(pollingCtx, cfg.StatsPollingInterval)

	app, err := internal.NewApp(catalogService)
	if err != nil {
		common.Log.Error("Failed to internal.NewApp", "err", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(slogchi.New(common.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{
			"Content-Type",
			"X-Requested-With",
			"Accept",
			"Accept-Language",
			"Accept-Encoding",
			"Content-Language",
			"Origin",
		},
		MaxAge: 300,
	}))
	r.Mount("/", app.Router())

	srv := &http.Server{
		Addr:    cfg.ServerListenAddr,
		Handler: otelhttp.NewHandler(r, serviceName),
	}
	go func() {
		common.Log.Info("Listening", "addr", cfg.ServerListenAddr)
		common.Log.Info("Install at " + fmt.Sprintf("%s/manifest.json", cfg.AddonHost))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.Log.Error("Failed to http.Server.ListenAndServe", "err", err)
		}
	}()

	<-quit

	stopPolling()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		common.Log.Error("Failed to http server shutdown", "err", err)
	}

	common.Log.Info("Bye!")

	shutdownInstrumentation(ctx)
	_ = shutdownLogger(ctx)
}
