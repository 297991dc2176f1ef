package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultCartIdle    = 30 * time.Minute
	defaultSessionIdle = 2 * time.Hour
)

// Sweeper drops in-memory state nobody touched within idle and reports how much it dropped.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

type CartSweepJobParams struct {
	Logger *logger.Logger
	// Cache holds per-shopper cart snapshots; Lines holds per-line mutation states.
	Cache   Sweeper
	Lines   Sweeper
	Idle    time.Duration
	Metrics *metrics.JobMetrics
}

func NewCartSweepJob(params CartSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("cart cache required")
	}
	idle := params.Idle
	if idle <= 0 {
		idle = defaultCartIdle
	}
	return &cartSweepJob{
		logg:    params.Logger,
		cache:   params.Cache,
		lines:   params.Lines,
		idle:    idle,
		metrics: params.Metrics,
	}, nil
}

type cartSweepJob struct {
	logg    *logger.Logger
	cache   Sweeper
	lines   Sweeper
	idle    time.Duration
	metrics *metrics.JobMetrics
}

func (j *cartSweepJob) Name() string { return "cart-cache-sweep" }

func (j *cartSweepJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cart sweep: %w", err)
	}
	snapshots := j.cache.Sweep(j.idle)
	lines := 0
	if j.lines != nil {
		lines = j.lines.Sweep(j.idle)
	}
	j.metrics.AddEvicted(j.Name(), snapshots+lines)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"idle":              j.idle.String(),
		"snapshots_evicted": snapshots,
		"lines_forgotten":   lines,
	}), "cart sweep complete")
	return nil
}

type CheckoutSweepJobParams struct {
	Logger   *logger.Logger
	Sessions Sweeper
	Idle     time.Duration
	Metrics  *metrics.JobMetrics
}

func NewCheckoutSweepJob(params CheckoutSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("checkout sessions required")
	}
	idle := params.Idle
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	return &checkoutSweepJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		idle:     idle,
		metrics:  params.Metrics,
	}, nil
}

type checkoutSweepJob struct {
	logg     *logger.Logger
	sessions Sweeper
	idle     time.Duration
	metrics  *metrics.JobMetrics
}

func (j *checkoutSweepJob) Name() string { return "checkout-session-sweep" }

func (j *checkoutSweepJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("checkout sweep: %w", err)
	}
	dropped := j.sessions.Sweep(j.idle)
	j.metrics.AddEvicted(j.Name(), dropped)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"idle":             j.idle.String(),
		"sessions_dropped": dropped,
	}), "checkout session sweep complete")
	return nil
}
