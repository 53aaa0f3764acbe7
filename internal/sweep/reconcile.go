package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
)

// Reconciler finds payments that have sat in PROCESSING past the cutoff and
// asks their provider what actually happened. Any answer is applied through
// the normal status-check path, so reconciliation can only make the same
// transitions an operator could.
type Reconciler struct {
	source     PaymentSource
	ledger     Ledger
	auditor    Recorder
	logger     *slog.Logger
	interval   time.Duration
	stuckAfter time.Duration
	limit      int
}

func NewReconciler(source PaymentSource, ledger Ledger, auditor Recorder, cfg internal.ReconciliationConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		source:     source,
		ledger:     ledger,
		auditor:    auditor,
		logger:     logger.With("component", "reconciliation"),
		interval:   cfg.Interval,
		stuckAfter: cfg.StuckAfter,
		limit:      cfg.Limit,
	}
}

// Result summarizes one reconciliation pass.
type Result struct {
	Checked       int
	Settled       int
	Failed        int
	Discrepancies int
}

// RunOnce performs a single synchronous reconciliation pass.
func (r *Reconciler) RunOnce(ctx context.Context) (*Result, error) {
	cutoff := time.Now().Add(-r.stuckAfter)
	stuck, err := r.source.GetStuckProcessing(cutoff, r.limit)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, p := range stuck {
		result.Checked++
		before := p.Status

		resp, checkErr := r.ledger.CheckPaymentStatus(ctx, p.ID)
		if checkErr != nil {
			r.logger.Warn("reconciliation check failed",
				"payment_id", p.ID,
				"internal_reference", p.InternalReference,
				"error", checkErr)
			continue
		}

		if resp.Status == before {
			continue
		}

		result.Discrepancies++
		switch resp.Status {
		case paymentdm.StatusCompleted:
			result.Settled++
		case paymentdm.StatusFailed:
			result.Failed++
		}

		r.auditor.Record(&auditdm.Record{
			PaymentID:   &p.ID,
			EventType:   auditdm.EventReconciliationDiscrepancy,
			OldStatus:   string(before),
			NewStatus:   string(resp.Status),
			Description: fmt.Sprintf("Reconciliation moved payment from %s to %s", before, resp.Status),
			Actor:       internal.SystemActor,
		})
		r.logger.Info("reconciliation resolved payment",
			"payment_id", p.ID,
			"internal_reference", p.InternalReference,
			"old_status", before,
			"new_status", resp.Status)
	}

	if result.Checked > 0 {
		r.auditor.Record(&auditdm.Record{
			EventType: auditdm.EventReconciliationRun,
			Description: fmt.Sprintf("Reconciliation pass: %d checked, %d settled, %d failed, %d discrepancies",
				result.Checked, result.Settled, result.Failed, result.Discrepancies),
			Actor: internal.SystemActor,
		})
		r.logger.Info("reconciliation pass finished",
			"checked", result.Checked,
			"settled", result.Settled,
			"failed", result.Failed,
			"discrepancies", result.Discrepancies)
	}
	return result, nil
}

func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("starting reconciliation sweep", "interval", r.interval, "stuck_after", r.stuckAfter)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping reconciliation sweep")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconciliation pass failed", "error", err)
			}
		}
	}
}
