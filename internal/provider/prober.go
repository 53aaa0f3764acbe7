package provider

import (
	"context"
	"log/slog"
	"time"
)

// Prober drives scheduled health checks independently of payment traffic.
type Prober struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewProber(registry *Registry, interval, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "health_prober"),
	}
}

// RunOnce performs a single synchronous probe pass. Tests call this directly.
func (p *Prober) RunOnce(ctx context.Context) {
	p.registry.ProbeAll(ctx, p.timeout)
}

func (p *Prober) Run(ctx context.Context) {
	p.logger.Info("starting health prober", "interval", p.interval, "probe_timeout", p.timeout)

	// seed health state before the first tick
	p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping health prober")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}
