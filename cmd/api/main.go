package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/pkg/backend"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "storefront api stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	jobMetrics := metrics.NewJobMetrics(registry)

	client, err := backend.NewClient(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithMetrics(metrics.NewBackendMetrics(registry)),
		backend.WithBreaker(backend.BreakerSettings{
			MaxFailures: cfg.Backend.BreakerMaxFailure,
			OpenFor:     cfg.Backend.BreakerOpenFor,
			Interval:    cfg.Backend.BreakerInterval,
		}),
	)
	if err != nil {
		return err
	}

	gateway, err := cart.NewGateway(client)
	if err != nil {
		return err
	}
	cartCache, err := cart.NewCache(gateway,
		cart.WithFetchTimeout(cfg.Backend.Timeout),
		cart.WithCacheLogger(logg),
	)
	if err != nil {
		return err
	}
	defer cartCache.Wait()
	coordinator, err := cart.NewCoordinator(gateway, cartCache, cart.DefaultLinks(), logg)
	if err != nil {
		return err
	}

	sessions := checkout.NewSessions()
	checkoutService, err := checkout.NewService(client, cartCache, logg)
	if err != nil {
		return err
	}

	draftStore, err := returns.NewStore(redisClient, cfg.Returns.DraftTTL, logg)
	if err != nil {
		return err
	}
	drafts, err := returns.NewDrafts(draftStore)
	if err != nil {
		return err
	}
	returnsService, err := returns.NewService(client, cfg.Returns.MaxImageBytes(), logg)
	if err != nil {
		return err
	}

	sweeper, err := newSweeper(cfg, logg, jobMetrics, cartCache, coordinator, sessions)
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, redisClient, registry,
			routes.Cart{Cache: cartCache, Coordinator: coordinator},
			routes.Checkout{Sessions: sessions, Service: checkoutService},
			routes.Returns{Drafts: drafts, Service: returnsService},
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting storefront api")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := sweeper.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "storefront api shutting down gracefully")
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func newSweeper(
	cfg *config.Config,
	logg *logger.Logger,
	jobMetrics *metrics.JobMetrics,
	cartCache *cart.Cache,
	coordinator *cart.Coordinator,
	sessions *checkout.Sessions,
) (*cron.Service, error) {
	cartJob, err := cron.NewCartSweepJob(cron.CartSweepJobParams{
		Logger:  logg,
		Cache:   cartCache,
		Lines:   coordinator,
		Idle:    cfg.Cart.CacheIdleTTL,
		Metrics: jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	checkoutJob, err := cron.NewCheckoutSweepJob(cron.CheckoutSweepJobParams{
		Logger:   logg,
		Sessions: sessions,
		Idle:     cfg.Checkout.SessionIdleTTL,
		Metrics:  jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(cartJob, checkoutJob),
		Metrics:  jobMetrics,
		Interval: cfg.Sweeper.Interval,
	})
}
