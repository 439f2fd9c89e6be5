// Package server parses playback server flags and starts the HTTP service.
package server

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/isoviz/isoviz/internal/platform/config"
	"github.com/isoviz/isoviz/internal/platform/otel"
	playback "github.com/isoviz/isoviz/internal/services/playback/app"
)

// Config holds playback server configuration.
type Config struct {
	HTTPAddr          string        `env:"ISOVIZ_HTTP_ADDR"           envDefault:":8080"`
	ScenarioDir       string        `env:"ISOVIZ_SCENARIO_DIR"`
	ReadHeaderTimeout time.Duration `env:"ISOVIZ_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"ISOVIZ_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "playback HTTP listen address")
	fs.StringVar(&cfg.ScenarioDir, "scenario-dir", cfg.ScenarioDir, "directory of extra lua scenarios")
	fs.DurationVar(&cfg.ReadHeaderTimeout, "read-header-timeout", cfg.ReadHeaderTimeout, "HTTP read header timeout")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the playback app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "playback")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		_ = shutdown(context.Background())
	}()

	if err := playback.Run(ctx, playback.Config{
		HTTPAddr:          cfg.HTTPAddr,
		ScenarioDir:       cfg.ScenarioDir,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}); err != nil {
		return fmt.Errorf("serve playback: %w", err)
	}
	return nil
}
