package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/0xReLogic/TryHackMe/internal/config"
	"github.com/0xReLogic/TryHackMe/internal/greeting"
	"github.com/0xReLogic/TryHackMe/internal/logging"
	"github.com/0xReLogic/TryHackMe/internal/publicip"
	"github.com/0xReLogic/TryHackMe/internal/ratelimit"
	"github.com/0xReLogic/TryHackMe/internal/server"
	"github.com/0xReLogic/TryHackMe/internal/tracing"
)

const (
	title   = "Try Hack Me"
	version = "0.0.1337"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or .env configuration file (default: nearest .env)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.FindDotenv(".")
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Init(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = run(cfg, path, sigCh)
	_ = logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run serves until stop fires or the server fails. Deferred cleanup (tracing flush)
// always runs before it returns.
func run(cfg config.Config, path string, stop <-chan os.Signal) error {
	logging.LogInfo("service_info", map[string]interface{}{
		"title":         title,
		"version":       version,
		"debug":         cfg.Debug,
		"template_mode": string(cfg.TemplateMode),
		"config_file":   path,
	})
	if cfg.PublicIPServiceURL == "" {
		logging.GetLogger().Warn("public_ip_service_url_unset")
	}

	if cfg.TracingEnabled {
		shutdown, err := tracing.InitTracing(context.Background(), cfg.TracingServiceName, version, cfg.TracingEndpoint)
		if err != nil {
			logging.LogError("Failed to initialize tracing", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logging.GetLogger().Warn("tracing_shutdown_failed", zap.Error(err))
				}
			}()
			logging.LogInfo("Tracing initialized", map[string]interface{}{
				"service":  cfg.TracingServiceName,
				"endpoint": cfg.TracingEndpoint,
			})
		}
	}

	if path != "" {
		err := config.Watch(path, func(next config.Config) {
			logging.SetLevel(next.LogLevel)
			logging.GetLogger().Info("config_reloaded", zap.String("log_level", next.LogLevel))
		}, func(err error) {
			logging.GetLogger().Warn("config_reload_failed", zap.Error(err))
		})
		if err != nil {
			logging.GetLogger().Warn("config_watch_failed", zap.Error(err))
		}
	}

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logging.LogInfo("Rate limiting initialized", map[string]interface{}{
			"rps":   cfg.RateLimitRPS,
			"burst": cfg.RateLimitBurst,
		})
	}

	srv := server.New(
		cfg,
		publicip.NewClient(cfg.PublicIPServiceURL, cfg.PublicIPTimeout),
		greeting.NewRenderer(cfg),
		limiter,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logging.GetLogger().Error("failed_to_start_server", zap.Error(err))
		}
		return err
	case <-stop:
	}

	logging.GetLogger().Info("shutting_down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.GetLogger().Error("shutdown_failed", zap.Error(err))
		return err
	}
	return nil
}
