package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	"github.com/Kirachon/dsr-payment-service/internal/core/events"
	"github.com/Kirachon/dsr-payment-service/internal/provider"
)

// conflictRetries bounds the read-modify-write loop on version conflicts.
const conflictRetries = 3

type Recorder interface {
	Record(record *auditdm.Record)
}

type Service struct {
	repository    RepositoryAPI
	providers     ProviderAPI
	auditor       Recorder
	eventBus      *events.EventBus
	logger        *slog.Logger
	submitTimeout time.Duration
}

func NewService(
	repository RepositoryAPI,
	providers ProviderAPI,
	auditor Recorder,
	eventBus *events.EventBus,
	logger *slog.Logger,
	submitTimeout time.Duration,
) *Service {
	if submitTimeout <= 0 {
		submitTimeout = 30 * time.Second
	}
	return &Service{
		repository:    repository,
		providers:     providers,
		auditor:       auditor,
		eventBus:      eventBus,
		logger:        logger.With("component", "payment_service"),
		submitTimeout: submitTimeout,
	}
}

func (s *Service) CreatePayment(req *CreatePaymentRequest, createdBy string) (*PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.providers.MethodSupported(req.Method) {
		return nil, internal.NewValidationError(
			fmt.Sprintf("no registered provider supports payment method %s", req.Method),
			internal.ErrCodeUnsupportedMethod)
	}

	p, err := BuildPayment(req, createdBy, nil)
	if err != nil {
		return nil, err
	}

	if err := s.repository.Create(p); err != nil {
		return nil, internal.NewInternalError("failed to create payment", err)
	}

	s.auditor.Record(auditdm.PaymentCreated(p.ID, createdBy))
	s.logger.Info("payment created",
		"payment_id", p.ID,
		"internal_reference", p.InternalReference,
		"amount", p.Amount,
		"method", p.Method)

	return NewPaymentResponse(p), nil
}

func (s *Service) GetPayment(id uuid.UUID) (*PaymentResponse, error) {
	p, err := s.repository.GetByID(id)
	if err != nil {
		return nil, err
	}
	return NewPaymentResponse(p), nil
}

func (s *Service) GetPaymentByReference(reference string) (*PaymentResponse, error) {
	p, err := s.repository.GetByInternalReference(reference)
	if err != nil {
		return nil, err
	}
	return NewPaymentResponse(p), nil
}

func (s *Service) SearchPayments(filter SearchFilter) ([]*PaymentResponse, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	payments, err := s.repository.Search(filter)
	if err != nil {
		return nil, internal.NewInternalError("failed to search payments", err)
	}
	responses := make([]*PaymentResponse, len(payments))
	for i, p := range payments {
		responses[i] = NewPaymentResponse(p)
	}
	return responses, nil
}

// ProcessPayment runs one disbursement attempt: select a provider, move the
// payment to PROCESSING, submit, and apply the outcome. Provider-side
// failures are translated into the payment's status rather than returned as
// errors; the error return is reserved for not-found, invalid-state and
// persistence problems.
func (s *Service) ProcessPayment(ctx context.Context, id uuid.UUID, actor string) (*PaymentResponse, error) {
	p, err := s.repository.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p.Status != paymentdm.StatusPending {
		return nil, internal.NewValidationError(
			fmt.Sprintf("payment %s is %s, only PENDING payments can be processed", p.InternalReference, p.Status),
			internal.ErrCodeInvalidPaymentStatus)
	}

	correlationID := uuid.New().String()
	logger := s.logger.With(
		"payment_id", p.ID,
		"internal_reference", p.InternalReference,
		"correlation_id", correlationID)

	fspCode, err := s.providers.SelectProvider(p.Method, p.Amount)
	if err != nil {
		logger.Warn("no eligible provider", "method", p.Method, "error", err)
		return s.failPayment(ctx, p.ID, actor, correlationID, "", err)
	}
	s.auditor.Record(auditdm.ProviderSelected(p.ID, fspCode, correlationID))

	p, err = s.mutate(p.ID, func(p *paymentdm.Payment) error {
		if p.Status != paymentdm.StatusPending {
			return internal.NewValidationError(
				fmt.Sprintf("payment %s moved to %s during processing", p.InternalReference, p.Status),
				internal.ErrCodeInvalidPaymentStatus)
		}
		now := time.Now()
		p.Status = paymentdm.StatusProcessing
		p.FSPCode = fspCode
		p.ProcessedAt = &now
		p.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.auditor.Record(auditdm.StatusChanged(p.ID,
		string(paymentdm.StatusPending), string(paymentdm.StatusProcessing), actor, correlationID))

	submitReq := provider.SubmitRequest{
		PaymentID:              p.ID,
		InternalReference:      p.InternalReference,
		Amount:                 p.Amount,
		Currency:               p.Currency,
		Method:                 p.Method,
		RecipientAccountNumber: p.RecipientAccountNumber,
		RecipientAccountName:   p.RecipientAccountName,
		RecipientMobileNumber:  p.RecipientMobileNumber,
		Description:            "Disbursement " + p.InternalReference,
		CorrelationID:          correlationID,
	}
	if raw, marshalErr := json.Marshal(submitReq); marshalErr == nil {
		s.auditor.Record(auditdm.ProviderRequest(p.ID, fspCode, string(raw), correlationID))
	}

	submitCtx, cancel := internal.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	resp, err := s.providers.Submit(submitCtx, fspCode, submitReq)
	if err != nil {
		logger.Warn("provider submit failed", "fsp_code", fspCode, "error", err)
		return s.failPayment(ctx, p.ID, actor, correlationID, fspCode, err)
	}
	if raw, marshalErr := json.Marshal(resp); marshalErr == nil {
		s.auditor.Record(auditdm.ProviderResponse(p.ID, fspCode, string(raw), correlationID))
	}

	p, err = s.mutate(p.ID, func(p *paymentdm.Payment) error {
		fspRef := resp.FSPReference
		p.FSPReference = &fspRef
		p.UpdatedBy = actor
		if resp.Status == provider.SubmitStatusCompleted {
			now := time.Now()
			p.Status = paymentdm.StatusCompleted
			p.CompletedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if p.Status == paymentdm.StatusCompleted {
		s.auditor.Record(auditdm.StatusChanged(p.ID,
			string(paymentdm.StatusProcessing), string(paymentdm.StatusCompleted), actor, correlationID))
		s.publishCompleted(ctx, p)
		logger.Info("payment completed", "fsp_code", fspCode, "fsp_reference", resp.FSPReference)
	} else {
		logger.Info("payment submitted, awaiting settlement",
			"fsp_code", fspCode,
			"fsp_reference", resp.FSPReference,
			"provider_status", resp.Status)
	}

	return NewPaymentResponse(p), nil
}

// failPayment records the failed attempt and moves the payment to FAILED.
// The provider error is absorbed into the payment state; the caller gets a
// FAILED response and a nil error.
func (s *Service) failPayment(ctx context.Context, id uuid.UUID, actor, correlationID, fspCode string, cause error) (*PaymentResponse, error) {
	reason := cause.Error()
	retryable := false
	if appErr, ok := internal.IsAppError(cause); ok {
		s.auditor.Record(auditdm.ProviderError(id, fspCode, string(appErr.Code), appErr.Message, correlationID))
		retryable = appErr.Retryable()
	} else {
		s.auditor.Record(auditdm.ProviderError(id, fspCode, "UNKNOWN", reason, correlationID))
	}

	var oldStatus paymentdm.Status
	p, err := s.mutate(id, func(p *paymentdm.Payment) error {
		if p.Status.IsTerminal() {
			return internal.ErrCannotCancel
		}
		oldStatus = p.Status
		p.Status = paymentdm.StatusFailed
		p.FailureReason = &reason
		p.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(auditdm.StatusChanged(p.ID, string(oldStatus), string(paymentdm.StatusFailed), actor, correlationID))
	if publishErr := s.eventBus.Publish(ctx, events.NewPaymentFailedEvent(
		p.ID, p.InternalReference, p.FSPCode, reason, p.RetryCount, retryable && p.CanRetry())); publishErr != nil {
		s.logger.Error("failed to publish payment failed event", "payment_id", p.ID, "error", publishErr)
	}

	return NewPaymentResponse(p), nil
}

// CancelPayment cancels a payment that has not reached a terminal state.
// For payments already handed to a provider it first asks the provider to
// cancel; a transfer the provider has already settled cannot be taken back.
func (s *Service) CancelPayment(ctx context.Context, id uuid.UUID, reason, actor string) (*PaymentResponse, error) {
	p, err := s.repository.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return nil, internal.NewValidationError(
			fmt.Sprintf("payment %s is %s and cannot be cancelled", p.InternalReference, p.Status),
			internal.ErrCodeCannotCancel)
	}

	correlationID := uuid.New().String()

	if p.Status == paymentdm.StatusProcessing && p.FSPReference != nil {
		cancelCtx, cancel := internal.WithTimeout(ctx, s.submitTimeout)
		defer cancel()

		resp, cancelErr := s.providers.Cancel(cancelCtx, p.FSPCode, *p.FSPReference)
		if cancelErr != nil {
			s.auditor.Record(auditdm.ProviderError(p.ID, p.FSPCode, string(internal.ErrCodeCannotCancel),
				cancelErr.Error(), correlationID))
			return nil, internal.NewValidationError(
				fmt.Sprintf("provider %s could not cancel payment %s: %v", p.FSPCode, p.InternalReference, cancelErr),
				internal.ErrCodeCannotCancel)
		}
		if resp.AlreadySettled {
			return nil, internal.NewValidationError(
				fmt.Sprintf("payment %s was already settled by provider %s", p.InternalReference, p.FSPCode),
				internal.ErrCodeCannotCancel)
		}
	}

	oldStatus := p.Status
	p, err = s.mutate(p.ID, func(p *paymentdm.Payment) error {
		if p.Status.IsTerminal() {
			return internal.NewValidationError(
				fmt.Sprintf("payment %s is %s and cannot be cancelled", p.InternalReference, p.Status),
				internal.ErrCodeCannotCancel)
		}
		p.Status = paymentdm.StatusCancelled
		p.FailureReason = &reason
		p.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(&auditdm.Record{
		PaymentID:     &p.ID,
		EventType:     auditdm.EventPaymentCancelled,
		OldStatus:     string(oldStatus),
		NewStatus:     string(paymentdm.StatusCancelled),
		Description:   "Payment cancelled: " + reason,
		Actor:         actor,
		CorrelationID: correlationID,
	})
	s.logger.Info("payment cancelled",
		"payment_id", p.ID,
		"internal_reference", p.InternalReference,
		"reason", reason)

	return NewPaymentResponse(p), nil
}

// RetryPayment moves a FAILED payment back to PENDING with an incremented
// attempt counter, then runs a fresh processing pass. Each retry goes
// through provider selection again, so an unhealthy provider is naturally
// routed around.
func (s *Service) RetryPayment(ctx context.Context, id uuid.UUID, actor string) (*PaymentResponse, error) {
	p, err := s.repository.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p.Status != paymentdm.StatusFailed {
		return nil, internal.NewValidationError(
			fmt.Sprintf("payment %s is %s, only FAILED payments can be retried", p.InternalReference, p.Status),
			internal.ErrCodeInvalidPaymentStatus)
	}
	if p.RetryCount >= p.MaxRetryCount {
		return nil, internal.NewRetriesExhaustedError(
			fmt.Sprintf("payment %s exhausted %d of %d retries", p.InternalReference, p.RetryCount, p.MaxRetryCount))
	}

	p, err = s.mutate(p.ID, func(p *paymentdm.Payment) error {
		if p.Status != paymentdm.StatusFailed {
			return internal.ErrInvalidPaymentStatus
		}
		if p.RetryCount >= p.MaxRetryCount {
			return internal.NewRetriesExhaustedError(
				fmt.Sprintf("payment %s exhausted %d of %d retries", p.InternalReference, p.RetryCount, p.MaxRetryCount))
		}
		p.Status = paymentdm.StatusPending
		p.RetryCount++
		p.FailureReason = nil
		p.FSPReference = nil
		p.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(&auditdm.Record{
		PaymentID:   &p.ID,
		EventType:   auditdm.EventPaymentRetry,
		OldStatus:   string(paymentdm.StatusFailed),
		NewStatus:   string(paymentdm.StatusPending),
		Description: fmt.Sprintf("Retry attempt %d of %d", p.RetryCount, p.MaxRetryCount),
		Actor:       actor,
	})
	s.logger.Info("payment retry scheduled",
		"payment_id", p.ID,
		"retry_count", p.RetryCount,
		"max_retry_count", p.MaxRetryCount)

	return s.ProcessPayment(ctx, p.ID, actor)
}

// CheckPaymentStatus polls the provider for a PROCESSING payment and applies
// any settlement the provider reports. Payments not awaiting a provider are
// returned as-is.
func (s *Service) CheckPaymentStatus(ctx context.Context, id uuid.UUID) (*PaymentResponse, error) {
	p, err := s.repository.GetByID(id)
	if err != nil {
		return nil, err
	}
	if p.Status != paymentdm.StatusProcessing || p.FSPReference == nil {
		return NewPaymentResponse(p), nil
	}

	correlationID := uuid.New().String()
	checkCtx, cancel := internal.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	resp, err := s.providers.CheckStatus(checkCtx, p.FSPCode, *p.FSPReference)
	if err != nil {
		// a transient check failure leaves the payment as it was
		s.logger.Warn("status check failed",
			"payment_id", p.ID,
			"fsp_code", p.FSPCode,
			"error", err)
		return NewPaymentResponse(p), nil
	}

	s.auditor.Record(&auditdm.Record{
		PaymentID:     &p.ID,
		EventType:     auditdm.EventStatusCheck,
		Description:   fmt.Sprintf("FSP %s reports status %s", p.FSPCode, resp.Status),
		CorrelationID: correlationID,
	})

	switch resp.Status {
	case provider.SubmitStatusCompleted:
		p, err = s.mutate(p.ID, func(p *paymentdm.Payment) error {
			if p.Status != paymentdm.StatusProcessing {
				return nil
			}
			completedAt := time.Now()
			if resp.CompletedAt != nil {
				completedAt = *resp.CompletedAt
			}
			p.Status = paymentdm.StatusCompleted
			p.CompletedAt = &completedAt
			return nil
		})
		if err != nil {
			return nil, err
		}
		if p.Status == paymentdm.StatusCompleted {
			s.auditor.Record(auditdm.StatusChanged(p.ID,
				string(paymentdm.StatusProcessing), string(paymentdm.StatusCompleted),
				internal.SystemActor, correlationID))
			s.publishCompleted(ctx, p)
		}
	case provider.SubmitStatusRejected:
		reason := resp.ErrorMessage
		if reason == "" {
			reason = "provider rejected the payment"
		}
		p, err = s.mutate(p.ID, func(p *paymentdm.Payment) error {
			if p.Status != paymentdm.StatusProcessing {
				return nil
			}
			p.Status = paymentdm.StatusFailed
			p.FailureReason = &reason
			return nil
		})
		if err != nil {
			return nil, err
		}
		if p.Status == paymentdm.StatusFailed {
			s.auditor.Record(auditdm.StatusChanged(p.ID,
				string(paymentdm.StatusProcessing), string(paymentdm.StatusFailed),
				internal.SystemActor, correlationID))
		}
	}

	return NewPaymentResponse(p), nil
}

func (s *Service) Statistics() (*StatisticsResponse, error) {
	byStatus, err := s.repository.StatisticsByStatus()
	if err != nil {
		return nil, internal.NewInternalError("failed to load status statistics", err)
	}
	byFSP, err := s.repository.StatisticsByFSP()
	if err != nil {
		return nil, internal.NewInternalError("failed to load provider statistics", err)
	}
	return &StatisticsResponse{ByStatus: byStatus, ByFSP: byFSP}, nil
}

func (s *Service) publishCompleted(ctx context.Context, p *paymentdm.Payment) {
	fspRef := ""
	if p.FSPReference != nil {
		fspRef = *p.FSPReference
	}
	event := events.NewPaymentCompletedEvent(
		p.ID, p.InternalReference, p.FSPCode, fspRef, p.Amount.String(), p.Currency)
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish payment completed event", "payment_id", p.ID, "error", err)
	}
}

// mutate runs a read-modify-write cycle, retrying on version conflicts so a
// concurrent writer does not fail the whole operation. Every status change
// goes through here, so the lifecycle table is checked on each write.
func (s *Service) mutate(id uuid.UUID, apply func(*paymentdm.Payment) error) (*paymentdm.Payment, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		p, err := s.repository.GetByID(id)
		if err != nil {
			return nil, err
		}
		oldStatus := p.Status
		if err := apply(p); err != nil {
			return nil, err
		}
		if p.Status != oldStatus && !oldStatus.CanTransition(p.Status) {
			return nil, internal.NewValidationError(
				fmt.Sprintf("payment %s cannot move from %s to %s", p.InternalReference, oldStatus, p.Status),
				internal.ErrCodeInvalidPaymentStatus)
		}
		p.UpdatedAt = time.Now()

		err = s.repository.Update(p)
		if err == nil {
			return p, nil
		}
		if appErr, ok := internal.IsAppError(err); !ok || appErr.Code != internal.ErrCodeVersionConflict {
			return nil, err
		}
		lastErr = err
	}
	return nil, internal.NewInternalError("payment update kept conflicting with concurrent writers", lastErr)
}

// BuildPayment constructs a PENDING ledger row from a validated request.
// The batch orchestrator uses it to create member payments with the same
// shape as standalone ones.
func BuildPayment(req *CreatePaymentRequest, createdBy string, batchID *uuid.UUID) (*paymentdm.Payment, error) {
	now := time.Now()
	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	var metadata json.RawMessage
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, internal.NewInternalError("failed to encode payment metadata", err)
		}
		metadata = raw
	}

	return &paymentdm.Payment{
		ID:                     uuid.New(),
		HouseholdID:            req.HouseholdID,
		ProgramID:              req.ProgramID,
		BeneficiaryID:          req.BeneficiaryID,
		Amount:                 req.Amount,
		Currency:               req.Currency,
		Status:                 paymentdm.StatusPending,
		Method:                 req.Method,
		InternalReference:      generateInternalReference(now),
		RecipientAccountNumber: req.RecipientAccountNumber,
		RecipientAccountName:   req.RecipientAccountName,
		RecipientMobileNumber:  req.RecipientMobileNumber,
		ScheduledAt:            scheduledAt,
		MaxRetryCount:          req.MaxRetryCount,
		BatchID:                batchID,
		Metadata:               metadata,
		CreatedBy:              createdBy,
		UpdatedBy:              createdBy,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

func generateInternalReference(at time.Time) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:12]
	return fmt.Sprintf("PAY-%d-%s", at.Year(), token)
}
