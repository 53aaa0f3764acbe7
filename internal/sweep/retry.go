package sweep

import (
	"context"
	"log/slog"
	"time"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
)

// RetrySweeper re-enters eligible FAILED payments through normal provider
// selection, so a retry can land on a different provider than the attempt
// that failed.
type RetrySweeper struct {
	source   PaymentSource
	ledger   Ledger
	logger   *slog.Logger
	interval time.Duration
	backoff  time.Duration
	limit    int
}

func NewRetrySweeper(source PaymentSource, ledger Ledger, cfg internal.RetrySweepConfig, logger *slog.Logger) *RetrySweeper {
	return &RetrySweeper{
		source:   source,
		ledger:   ledger,
		logger:   logger.With("component", "retry_sweep"),
		interval: cfg.Interval,
		backoff:  cfg.Backoff,
		limit:    cfg.Limit,
	}
}

// RunOnce performs a single synchronous sweep pass. Tests call this directly.
func (s *RetrySweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.backoff)
	candidates, err := s.source.GetFailedForRetry(cutoff, s.limit)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, p := range candidates {
		if !p.CanRetry() {
			continue
		}
		resp, retryErr := s.ledger.RetryPayment(ctx, p.ID, internal.SystemActor)
		if retryErr != nil {
			s.logger.Warn("retry attempt not possible",
				"payment_id", p.ID,
				"internal_reference", p.InternalReference,
				"error", retryErr)
			continue
		}
		retried++
		s.logger.Info("payment retried",
			"payment_id", p.ID,
			"internal_reference", p.InternalReference,
			"status", resp.Status,
			"retry_count", resp.RetryCount)
	}

	if len(candidates) > 0 {
		s.logger.Info("retry sweep finished", "candidates", len(candidates), "retried", retried)
	}
	return retried, nil
}

func (s *RetrySweeper) Run(ctx context.Context) {
	s.logger.Info("starting retry sweep", "interval", s.interval, "backoff", s.backoff)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping retry sweep")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("retry sweep pass failed", "error", err)
			}
		}
	}
}

// Scheduler starts standalone payments whose scheduled date has passed.
// Batch members are excluded; the batch orchestrator owns those.
type Scheduler struct {
	source   PaymentSource
	ledger   Ledger
	logger   *slog.Logger
	interval time.Duration
	limit    int
}

func NewScheduler(source PaymentSource, ledger Ledger, interval time.Duration, limit int, logger *slog.Logger) *Scheduler {
	if limit <= 0 {
		limit = 100
	}
	return &Scheduler{
		source:   source,
		ledger:   ledger,
		logger:   logger.With("component", "payment_scheduler"),
		interval: interval,
		limit:    limit,
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	due, err := s.source.GetScheduled(time.Now(), s.limit)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, p := range due {
		if p.BatchID != nil || p.Status != paymentdm.StatusPending {
			continue
		}
		if _, processErr := s.ledger.ProcessPayment(ctx, p.ID, internal.SystemActor); processErr != nil {
			s.logger.Warn("could not process scheduled payment",
				"payment_id", p.ID,
				"internal_reference", p.InternalReference,
				"error", processErr)
			continue
		}
		started++
	}
	return started, nil
}

func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("starting payment scheduler", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping payment scheduler")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("scheduler pass failed", "error", err)
			}
		}
	}
}
