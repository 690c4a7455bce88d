package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/houselocator/internal/adapters/http"
	"github.com/samirrijal/houselocator/internal/adapters/memcache"
	natsadapter "github.com/samirrijal/houselocator/internal/adapters/nats"
	"github.com/samirrijal/houselocator/internal/adapters/postgres"
	"github.com/samirrijal/houselocator/internal/adapters/valkey"
	"github.com/samirrijal/houselocator/internal/core/domain"
	"github.com/samirrijal/houselocator/internal/core/ports"
	"github.com/samirrijal/houselocator/internal/core/usecases"
	"github.com/samirrijal/houselocator/internal/pkg/config"
	"github.com/samirrijal/houselocator/internal/pkg/logging"
	"github.com/samirrijal/houselocator/internal/pkg/metrics"
	"github.com/samirrijal/houselocator/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("houselocator-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go reportPoolStats(ctx, db)

	// Cache: shared Valkey when available, in-process otherwise.
	var (
		cache  ports.CacheService
		pinger http.Pinger
		local  *memcache.Cache
	)
	if cfg.Valkey.Enabled {
		vc, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			logger.Warn("valkey unavailable, using in-process cache", "error", err)
		} else {
			defer vc.Close()
			cache, pinger = vc, vc
		}
	}
	if cache == nil {
		local = memcache.New(5 * time.Minute)
		cache, pinger = local, local
	}

	// NATS: change events out, plus the WebSocket relay.
	var (
		natsConn  *nats.Conn
		publisher ports.EventPublisher
	)
	if cfg.NATS.Enabled {
		natsConn, err = natsadapter.Connect(cfg.NATS.URL, "houselocator-api")
		if err != nil {
			logger.Warn("nats unavailable", "error", err)
		} else {
			defer natsConn.Close()
			if pub, err := natsadapter.NewPublisher(natsConn); err != nil {
				logger.Warn("jetstream unavailable", "error", err)
			} else {
				publisher = pub
			}
		}
	}

	// Another replica's write leaves this replica's in-process cache stale.
	if local != nil && publisher != nil {
		sub, err := natsadapter.NewSubscriber(natsConn)
		if err == nil {
			err = sub.SubscribePropertyEvents(ctx, "", func(_ context.Context, ev *domain.PropertyEvent) error {
				local.Flush()
				logger.Debug("local cache flushed", "event", ev.Type, "id", ev.ID)
				return nil
			})
		}
		if err != nil {
			logger.Warn("cache invalidation subscription failed", "error", err)
		} else {
			defer sub.Close()
		}
	}

	houses := usecases.NewPropertyService(postgres.NewPropertyRepo(db), cache, publisher, logger)

	deps := &http.Dependencies{
		Houses:         houses,
		Viewport:       cfg.Map.Viewport(),
		Logger:         logger,
		RateLimit:      cfg.Server.RateLimit,
		RequestTimeout: cfg.Server.RequestTimeout,
		Version:        version,
		NATS:           natsConn,
		DB:             db,
		Cache:          pinger,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Houselocator API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("API server starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received, draining connections", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	logger.Info("server stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Stat())
		}
	}
}
