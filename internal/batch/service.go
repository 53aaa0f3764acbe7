package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
	batchdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/batch"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	"github.com/Kirachon/dsr-payment-service/internal/core/events"
	"github.com/Kirachon/dsr-payment-service/internal/payment"
)

const conflictRetries = 3

// scheduledBatchLimit caps how many due batches one scheduler pass starts.
const scheduledBatchLimit = 50

type Recorder interface {
	Record(record *auditdm.Record)
}

type Service struct {
	repository RepositoryAPI
	payments   PaymentStore
	processor  Processor
	auditor    Recorder
	eventBus   *events.EventBus
	logger     *slog.Logger
	dispatcher *Dispatcher

	// failureThreshold is the FAILED-member fraction at or above which a
	// finished batch counts as FAILED. 1.0 means only a fully failed batch.
	failureThreshold float64
}

func NewService(
	repository RepositoryAPI,
	payments PaymentStore,
	processor Processor,
	auditor Recorder,
	eventBus *events.EventBus,
	logger *slog.Logger,
	cfg internal.DispatchConfig,
) *Service {
	threshold := cfg.BatchFailureThreshold
	if threshold <= 0 || threshold > 1.0 {
		threshold = 1.0
	}

	s := &Service{
		repository:       repository,
		payments:         payments,
		processor:        processor,
		auditor:          auditor,
		eventBus:         eventBus,
		logger:           logger.With("component", "batch_service"),
		failureThreshold: threshold,
	}
	s.dispatcher = NewDispatcher(DispatcherConfig{
		MaxWorkers:   cfg.MaxWorkers,
		JobQueueSize: cfg.JobQueueSize,
	}, s.logger, s.processJob)
	return s
}

// Shutdown drains the worker pool. In-flight submissions finish.
func (s *Service) Shutdown() {
	s.dispatcher.Shutdown()
}

func (s *Service) CreateBatch(req *CreateBatchRequest, createdBy string) (*BatchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	totalAmount := decimal.Zero
	for _, p := range req.Payments {
		totalAmount = totalAmount.Add(p.Amount)
	}

	b := &batchdm.Batch{
		ID:              uuid.New(),
		BatchNumber:     generateBatchNumber(now),
		ProgramID:       req.ProgramID,
		ProgramName:     req.ProgramName,
		Status:          batchdm.StatusPending,
		TotalAmount:     totalAmount,
		Currency:        req.Currency,
		TotalPayments:   len(req.Payments),
		PendingPayments: len(req.Payments),
		ScheduledAt:     scheduledAt,
		Description:     req.Description,
		CreatedBy:       createdBy,
		UpdatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repository.Create(b); err != nil {
		return nil, internal.NewInternalError("failed to create batch", err)
	}

	for i, paymentReq := range req.Payments {
		member, err := payment.BuildPayment(paymentReq, createdBy, &b.ID)
		if err != nil {
			return nil, err
		}
		if err := s.payments.Create(member); err != nil {
			return nil, internal.NewInternalError(
				fmt.Sprintf("failed to create batch member %d of %d", i+1, len(req.Payments)), err)
		}
	}

	s.auditor.Record(auditdm.BatchEvent(b.ID, auditdm.EventBatchCreated,
		"", string(batchdm.StatusPending),
		fmt.Sprintf("Batch %s created with %d payments", b.BatchNumber, b.TotalPayments), createdBy))
	s.logger.Info("batch created",
		"batch_id", b.ID,
		"batch_number", b.BatchNumber,
		"total_payments", b.TotalPayments,
		"total_amount", b.TotalAmount)

	return NewBatchResponse(b), nil
}

func (s *Service) GetBatch(id uuid.UUID) (*BatchResponse, error) {
	b, err := s.repository.GetByID(id)
	if err != nil {
		return nil, err
	}
	return NewBatchResponse(b), nil
}

func (s *Service) GetBatchByNumber(batchNumber string) (*BatchResponse, error) {
	b, err := s.repository.GetByBatchNumber(batchNumber)
	if err != nil {
		return nil, err
	}
	return NewBatchResponse(b), nil
}

func (s *Service) SearchBatches(filter SearchFilter) ([]*BatchResponse, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	batches, err := s.repository.Search(filter)
	if err != nil {
		return nil, internal.NewInternalError("failed to search batches", err)
	}
	responses := make([]*BatchResponse, len(batches))
	for i, b := range batches {
		responses[i] = NewBatchResponse(b)
	}
	return responses, nil
}

// StartBatch moves a PENDING batch to PROCESSING and kicks off the run. The
// version guard makes sure exactly one caller wins the transition, so a
// batch is never run twice.
func (s *Service) StartBatch(ctx context.Context, id uuid.UUID, actor string) (*BatchResponse, error) {
	b, err := s.mutate(id, func(b *batchdm.Batch) error {
		if !b.CanStart() {
			return internal.NewValidationError(
				fmt.Sprintf("batch %s is %s, only PENDING batches can be started", b.BatchNumber, b.Status),
				internal.ErrCodeInvalidBatchStatus)
		}
		now := time.Now()
		b.Status = batchdm.StatusProcessing
		b.StartedAt = &now
		b.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(auditdm.BatchEvent(b.ID, auditdm.EventBatchStarted,
		string(batchdm.StatusPending), string(batchdm.StatusProcessing),
		"Batch processing started", actor))
	s.logger.Info("batch started", "batch_id", b.ID, "batch_number", b.BatchNumber)

	go s.runBatch(b.ID, actor)

	return NewBatchResponse(b), nil
}

// PauseBatch asks the run loop to stop before the next payment. In-flight
// submissions are not interrupted.
func (s *Service) PauseBatch(ctx context.Context, id uuid.UUID, actor string) (*BatchResponse, error) {
	b, err := s.mutate(id, func(b *batchdm.Batch) error {
		if b.Status != batchdm.StatusProcessing {
			return internal.NewValidationError(
				fmt.Sprintf("batch %s is %s, only PROCESSING batches can be paused", b.BatchNumber, b.Status),
				internal.ErrCodeInvalidBatchStatus)
		}
		b.Status = batchdm.StatusPaused
		b.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(auditdm.BatchEvent(b.ID, auditdm.EventBatchPaused,
		string(batchdm.StatusProcessing), string(batchdm.StatusPaused),
		"Batch processing paused", actor))
	s.logger.Info("batch paused", "batch_id", b.ID, "batch_number", b.BatchNumber)

	return NewBatchResponse(b), nil
}

func (s *Service) ResumeBatch(ctx context.Context, id uuid.UUID, actor string) (*BatchResponse, error) {
	b, err := s.mutate(id, func(b *batchdm.Batch) error {
		if b.Status != batchdm.StatusPaused {
			return internal.NewValidationError(
				fmt.Sprintf("batch %s is %s, only PAUSED batches can be resumed", b.BatchNumber, b.Status),
				internal.ErrCodeInvalidBatchStatus)
		}
		b.Status = batchdm.StatusProcessing
		b.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(auditdm.BatchEvent(b.ID, auditdm.EventBatchResumed,
		string(batchdm.StatusPaused), string(batchdm.StatusProcessing),
		"Batch processing resumed", actor))
	s.logger.Info("batch resumed", "batch_id", b.ID, "batch_number", b.BatchNumber)

	go s.runBatch(b.ID, actor)

	return NewBatchResponse(b), nil
}

// CancelBatch cancels the batch and cascades to every member that has not
// reached a terminal state. Members a provider already settled stay settled.
// The run loop is halted first and the batch only moves to CANCELLED once
// the member cascade is done, so no member keeps processing under a
// terminal batch.
func (s *Service) CancelBatch(ctx context.Context, id uuid.UUID, reason, actor string) (*BatchResponse, error) {
	b, err := s.repository.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransition(batchdm.StatusCancelled) {
		return nil, internal.NewValidationError(
			fmt.Sprintf("batch %s is %s and cannot be cancelled", b.BatchNumber, b.Status),
			internal.ErrCodeInvalidBatchStatus)
	}
	oldStatus := b.Status

	// a running batch is paused first so the run loop stops enqueueing
	// members while the cascade runs
	if b.Status == batchdm.StatusProcessing {
		b, err = s.mutate(id, func(b *batchdm.Batch) error {
			if b.Status != batchdm.StatusProcessing {
				return nil
			}
			b.Status = batchdm.StatusPaused
			b.UpdatedBy = actor
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	members, err := s.payments.GetByBatchID(b.ID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load batch members for cancellation", err)
	}
	cancelled := 0
	for _, member := range members {
		if member.IsTerminal() {
			continue
		}
		if _, cancelErr := s.processor.CancelPayment(ctx, member.ID, reason, actor); cancelErr != nil {
			s.logger.Warn("could not cancel batch member",
				"batch_id", b.ID,
				"payment_id", member.ID,
				"error", cancelErr)
			continue
		}
		cancelled++
	}

	b, err = s.mutate(id, func(b *batchdm.Batch) error {
		if !b.Status.CanTransition(batchdm.StatusCancelled) {
			return internal.NewValidationError(
				fmt.Sprintf("batch %s is %s and cannot be cancelled", b.BatchNumber, b.Status),
				internal.ErrCodeInvalidBatchStatus)
		}
		members, loadErr := s.payments.GetByBatchID(b.ID)
		if loadErr != nil {
			return internal.NewInternalError("failed to load batch members", loadErr)
		}
		b.UpdateCounts(members)
		now := time.Now()
		b.Status = batchdm.StatusCancelled
		b.CompletedAt = &now
		b.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(auditdm.BatchEvent(b.ID, auditdm.EventBatchCancelled,
		string(oldStatus), string(batchdm.StatusCancelled),
		fmt.Sprintf("Batch cancelled (%s), %d members cancelled", reason, cancelled), actor))
	s.logger.Info("batch cancelled",
		"batch_id", b.ID,
		"batch_number", b.BatchNumber,
		"members_cancelled", cancelled,
		"reason", reason)

	return NewBatchResponse(b), nil
}

func (s *Service) Progress(id uuid.UUID) (*ProgressResponse, error) {
	b, err := s.repository.GetByID(id)
	if err != nil {
		return nil, err
	}
	return NewProgressResponse(b), nil
}

// ProcessScheduled starts every PENDING batch whose scheduled date has
// passed. Called by the worker's scheduler loop.
func (s *Service) ProcessScheduled(ctx context.Context, before time.Time) (int, error) {
	due, err := s.repository.GetScheduled(before, scheduledBatchLimit)
	if err != nil {
		return 0, internal.NewInternalError("failed to load scheduled batches", err)
	}

	started := 0
	for _, b := range due {
		if _, startErr := s.StartBatch(ctx, b.ID, internal.SystemActor); startErr != nil {
			s.logger.Warn("could not start scheduled batch",
				"batch_id", b.ID,
				"batch_number", b.BatchNumber,
				"error", startErr)
			continue
		}
		started++
	}
	return started, nil
}

// runBatch feeds PENDING members into the worker pool, checking the batch
// status between payments so pause and cancel take effect cooperatively.
func (s *Service) runBatch(batchID uuid.UUID, actor string) {
	members, err := s.payments.GetByBatchID(batchID)
	if err != nil {
		s.logger.Error("failed to load batch members", "batch_id", batchID, "error", err)
		return
	}

	var wg sync.WaitGroup
	interrupted := false
	for _, member := range members {
		if member.Status != paymentdm.StatusPending {
			continue
		}

		current, err := s.repository.GetByID(batchID)
		if err != nil {
			s.logger.Error("failed to re-read batch during run", "batch_id", batchID, "error", err)
			break
		}
		if current.Status != batchdm.StatusProcessing {
			s.logger.Info("batch run interrupted",
				"batch_id", batchID,
				"status", current.Status)
			interrupted = true
			break
		}

		wg.Add(1)
		enqueued := s.dispatcher.Enqueue(Job{
			BatchID:   batchID,
			PaymentID: member.ID,
			Actor:     actor,
			Done:      wg.Done,
		})
		if !enqueued {
			wg.Done()
			interrupted = true
			break
		}
	}

	wg.Wait()

	if _, err := s.refreshCounts(batchID); err != nil {
		s.logger.Error("failed to refresh batch counts", "batch_id", batchID, "error", err)
		return
	}
	if !interrupted {
		s.finalize(batchID, actor)
	}
}

func (s *Service) processJob(job Job) {
	defer job.Done()

	ctx := internal.ContextWithActor(context.Background(), job.Actor)
	resp, err := s.processor.ProcessPayment(ctx, job.PaymentID, job.Actor)
	if err != nil {
		s.logger.Error("batch member processing error",
			"batch_id", job.BatchID,
			"payment_id", job.PaymentID,
			"error", err)
		return
	}
	s.logger.Debug("batch member processed",
		"batch_id", job.BatchID,
		"payment_id", job.PaymentID,
		"status", resp.Status)

	if _, err := s.refreshCounts(job.BatchID); err != nil {
		s.logger.Error("failed to refresh batch counts",
			"batch_id", job.BatchID,
			"error", err)
	}
}

// finalize settles the batch's terminal status once no members are pending.
func (s *Service) finalize(batchID uuid.UUID, actor string) {
	var completedEvent *events.BatchCompletedEvent

	b, err := s.mutate(batchID, func(b *batchdm.Batch) error {
		completedEvent = nil
		if b.Status != batchdm.StatusProcessing || b.PendingPayments > 0 {
			return nil
		}
		final := batchdm.StatusCompleted
		if b.FailureRate() >= s.failureThreshold {
			final = batchdm.StatusFailed
		}
		now := time.Now()
		b.Status = final
		b.CompletedAt = &now
		b.UpdatedBy = actor
		completedEvent = events.NewBatchCompletedEvent(
			b.ID, b.BatchNumber, string(final),
			b.SuccessfulPayments, b.FailedPayments, b.SuccessRate())
		return nil
	})
	if err != nil {
		s.logger.Error("failed to finalize batch", "batch_id", batchID, "error", err)
		return
	}
	if completedEvent == nil {
		return
	}

	eventType := auditdm.EventBatchCompleted
	if b.Status == batchdm.StatusFailed {
		eventType = auditdm.EventBatchFailed
	}
	s.auditor.Record(auditdm.BatchEvent(b.ID, eventType,
		string(batchdm.StatusProcessing), string(b.Status),
		fmt.Sprintf("Batch finished: %d successful, %d failed (%.1f%%)",
			b.SuccessfulPayments, b.FailedPayments, b.SuccessRate()), actor))

	if err := s.eventBus.Publish(context.Background(), completedEvent); err != nil {
		s.logger.Error("failed to publish batch completed event", "batch_id", b.ID, "error", err)
	}

	s.logger.Info("batch finished",
		"batch_id", b.ID,
		"batch_number", b.BatchNumber,
		"status", b.Status,
		"successful", b.SuccessfulPayments,
		"failed", b.FailedPayments,
		"success_rate", b.SuccessRate())
}

// refreshCounts recomputes the tallies from the member set and persists
// them under the version guard.
func (s *Service) refreshCounts(batchID uuid.UUID) (*batchdm.Batch, error) {
	members, err := s.payments.GetByBatchID(batchID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load batch members", err)
	}
	return s.mutate(batchID, func(b *batchdm.Batch) error {
		b.UpdateCounts(members)
		return nil
	})
}

func (s *Service) mutate(id uuid.UUID, apply func(*batchdm.Batch) error) (*batchdm.Batch, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		b, err := s.repository.GetByID(id)
		if err != nil {
			return nil, err
		}
		if err := apply(b); err != nil {
			return nil, err
		}
		b.UpdatedAt = time.Now()

		err = s.repository.Update(b)
		if err == nil {
			return b, nil
		}
		if appErr, ok := internal.IsAppError(err); !ok || appErr.Code != internal.ErrCodeVersionConflict {
			return nil, err
		}
		lastErr = err
	}
	return nil, internal.NewInternalError("batch update kept conflicting with concurrent writers", lastErr)
}

func generateBatchNumber(at time.Time) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:10]
	return fmt.Sprintf("BATCH-%d-%s", at.Year(), token)
}
