package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vzahanych/land2port/internal/config"
	"github.com/vzahanych/land2port/internal/health"
	"github.com/vzahanych/land2port/internal/journal"
	"github.com/vzahanych/land2port/internal/logger"
	"github.com/vzahanych/land2port/internal/metrics"
	"github.com/vzahanych/land2port/internal/reframe"
	"github.com/vzahanych/land2port/internal/service"
	"github.com/vzahanych/land2port/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", config.GetEnvWithDefault("LAND2PORT_CONFIG", ""), "Path to configuration file")
	flag.StringVar(&configPath, "c", config.GetEnvWithDefault("LAND2PORT_CONFIG", ""), "Path to configuration file (short)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting land2port",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
	)

	cfgSvc, err := config.NewService(configPath, log)
	if err != nil {
		log.Fatal("Failed to create config service", "error", err)
	}

	m := metrics.New()

	var jnl *journal.Journal
	if cfg.Storage.JournalEnabled {
		jnl, err = journal.Open(cfg.Storage.DataDir, log)
		if err != nil {
			log.Fatal("Failed to open journal", "error", err)
		}
		defer jnl.Close()
	}

	// New sessions pick up reloaded settings; running ones keep theirs
	sessions := web.NewSessions(func() reframe.Config {
		return cfgSvc.Get().EngineConfig()
	}, cfg.Web.MaxSessions, jnl, m, log)

	server := web.NewServer(&cfg.Web, sessions, m, log)
	server.SetVersion(version)

	retention := time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour
	janitor := web.NewJanitor(sessions, jnl, cfg.Web.SessionTTL, retention, log)

	svcMgr := service.NewManager(log)
	svcMgr.Register(server)
	svcMgr.Register(janitor)

	healthMgr := health.NewManager(log, svcMgr)
	healthMgr.RegisterChecker(health.NewStorageChecker(cfg.Storage.DataDir, cfg.Storage.MaxDiskUsagePercent))
	if jnl != nil {
		healthMgr.RegisterChecker(health.NewJournalChecker(jnl, jnl.Path()))
	}
	server.SetHealth(healthMgr)

	cfgSvc.Watch(func(ctx context.Context, oldConfig, newConfig *config.Config) error {
		if oldConfig.Web != newConfig.Web || oldConfig.Storage != newConfig.Storage || oldConfig.Log != newConfig.Log {
			log.Warn("Web, storage and log settings apply after restart")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svcMgr.Start(ctx); err != nil {
		log.Error("Failed to start services", "error", err)
		shutdown(svcMgr, log)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := cfgSvc.Reload(ctx); err != nil {
				log.Error("Configuration reload failed", "error", err)
			}
			continue
		}
		log.Info("Received shutdown signal", "signal", sig)
		break
	}

	if err := shutdown(svcMgr, log); err != nil {
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}

func shutdown(svcMgr *service.Manager, log *logger.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svcMgr.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		return err
	}
	return nil
}
