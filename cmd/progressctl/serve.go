package main

import (
	"context"
	"os/signal"
	"sort"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/youlearn/youlearn-progress/config"
	httpapi "github.com/youlearn/youlearn-progress/internal/interface/http"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info("starting progress api",
			logger.String("env", string(cfg.App.Environment)),
			logger.String("version", cfg.App.Version),
			logger.String("driver", cfg.Storage.Driver),
		)

		rt, err := wire(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()
		log.Info("feature flags", logger.Strings("enabled", enabledFeatures(cfg.Features)))

		// Without auto-migrate the postgres schema may not exist yet; run
		// migrate and seed explicitly in that case.
		if cfg.Storage.Driver != config.DriverPostgres || cfg.Database.AutoMigrate {
			if _, err := rt.app.SeedCatalog.Handle(ctx); err != nil {
				return err
			}
		}

		if !cfg.App.Debug {
			gin.SetMode(gin.ReleaseMode)
		}

		srvCfg := httpapi.DefaultConfig()
		srvCfg.Host = cfg.HTTP.Host
		srvCfg.Port = cfg.HTTP.Port
		srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
		srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
		srvCfg.IdleTimeout = cfg.HTTP.IdleTimeout
		srvCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins

		server := httpapi.NewServer(srvCfg, httpapi.Dependencies{
			App:           rt.app,
			Content:       rt.content,
			Celebrations:  rt.celebrations,
			Features:      cfg.Features,
			HealthChecker: rt.health,
			Logger:        log,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			return err
		}
		published, failed := rt.bus.Stats()
		log.Info("stopped", logger.Int64("events_published", published), logger.Int64("events_failed", failed))
		return nil
	},
}

func enabledFeatures(ff *config.FeatureFlags) []string {
	var names []string
	for name, f := range ff.GetAllFeatures() {
		if f.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
