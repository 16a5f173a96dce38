// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/nightstake/internal/auth"
	"github.com/jason-s-yu/nightstake/internal/cache"
	"github.com/jason-s-yu/nightstake/internal/chain"
	"github.com/jason-s-yu/nightstake/internal/config"
	"github.com/jason-s-yu/nightstake/internal/database"
	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/jason-s-yu/nightstake/internal/handlers"
	"github.com/jason-s-yu/nightstake/internal/metrics"
	"github.com/jason-s-yu/nightstake/internal/realtime"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	issuer, err := newIssuer(cfg.Auth)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := realtime.NewHub(0, logger)
	sinks := game.Broadcasters{hub}
	opts := []game.Option{
		game.WithLogger(logger),
		game.WithMetrics(metrics.NewMatchCollector(registry)),
	}

	var store *database.Store
	if cfg.Database.URL != "" {
		pool, err := database.ConnectDB(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatalf("database: %v", err)
		}
		store = database.NewStore(pool)
		opts = append(opts, game.WithPersistence(store))
	} else {
		logger.Warn("database.url not set, matches are kept in memory only")
	}

	var publisher *cache.EventPublisher
	if cfg.Redis.Addr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		publisher = cache.NewEventPublisher(rdb, cfg.Redis.Queue, cfg.Redis.Buffer, logger)
		sinks = append(sinks, publisher)
	} else {
		logger.Warn("redis.addr not set, match events are not recorded")
	}

	if cfg.Chain.URL != "" {
		client, err := chain.NewClient(cfg.Chain.URL, cfg.Chain.Timeout, cfg.Chain.MaxRetries, logger)
		if err != nil {
			logger.Fatalf("chain: %v", err)
		}
		opts = append(opts, game.WithSettlement(client))
	} else {
		logger.Warn("chain.url not set, matches run off-chain")
	}

	opts = append(opts, game.WithBroadcaster(sinks))
	mg := game.NewManager(cfg.GameConfig(), opts...)
	defer mg.Close()

	srv := &handlers.Server{
		Manager:        mg,
		Hub:            hub,
		Issuer:         issuer,
		Challenges:     auth.NewChallenges(0),
		Logger:         logger,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		OriginPatterns: cfg.Server.AllowedOrigins,
	}
	if store != nil {
		srv.History = store
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return game.NewMonitor(mg, cfg.MonitorConfig()).Run(gctx)
	})
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Errorf("server exited: %v", err)
	}
	logger.Info("Server shutdown complete.")
}

func newIssuer(cfg config.AuthConfig) (*auth.Issuer, error) {
	if cfg.KeyPath != "" {
		return auth.NewIssuerFromFile(cfg.KeyPath, cfg.TokenExpire)
	}
	return auth.NewIssuer(cfg.TokenExpire)
}
