package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the service settings read from the environment.
type Config struct {
	// AddonHost is the public (external) base URL where the addon is accessible.
	// Only scheme and host are kept.
	AddonHost string `env:"ADDON_HOST" envDefault:"http://127.0.0.1:3593"`
	// ServerListenAddr specifies the network address that the HTTP server will listen on.
	ServerListenAddr string `env:"SERVER_LISTEN_ADDR" envDefault:":3593"`
	// ServiceEnvironment names the deployment, "lcl" and "dk" also log to stdout.
	ServiceEnvironment string `env:"SERVICE_ENVIRONMENT" envDefault:"lcl"`
	// OtelExporterEndpoint is the OTLP gRPC collector for logs, traces and metrics.
	OtelExporterEndpoint string `env:"OTEL_EXPORTER_ENDPOINT" envDefault:"127.0.0.1:4317"`
	// LokiHost is queried for the 24h stats.
	LokiHost string `env:"LOKI_HOST" envDefault:"http://127.0.0.1:3100"`
	// StatsWebsocketChannel is the centrifuge channel stats are published on.
	StatsWebsocketChannel string `env:"STATS_WEBSOCKET_CHANNEL" envDefault:"stats"`
	// StatsPollingInterval is how often Loki is polled.
	StatsPollingInterval time.Duration `env:"STATS_POLLING_INTERVAL" envDefault:"1m"`
	// BilibiliAPIBase is the Bilibili API host.
	BilibiliAPIBase string `env:"BILIBILI_API_BASE" envDefault:"https://api.bilibili.com"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to env.ParseAs: %w", err)
	}

	u, err := url.Parse(cfg.AddonHost)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ADDON_HOST: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ADDON_HOST %q, expected scheme://host", cfg.AddonHost)
	}
	cfg.AddonHost = fmt.Sprintf("%s://%s", u.Scheme, u.Host)

	return &cfg, nil
}
