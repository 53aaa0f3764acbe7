package audit

import (
	"log/slog"

	"github.com/google/uuid"

	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
)

// RepositoryAPI is insert-and-query only; records are never updated.
type RepositoryAPI interface {
	Append(record *auditdm.Record) error
	GetByPaymentID(paymentID uuid.UUID) ([]*auditdm.Record, error)
	GetByBatchID(batchID uuid.UUID) ([]*auditdm.Record, error)
	GetByCorrelationID(correlationID string) ([]*auditdm.Record, error)
}

// Recorder is the narrow interface the ledger and orchestrator depend on.
type Recorder interface {
	Record(record *auditdm.Record)
}

type Service struct {
	repository RepositoryAPI
	logger     *slog.Logger
}

func NewService(repository RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repository: repository,
		logger:     logger.With("component", "audit"),
	}
}

// Record appends one immutable record. Audit failures are logged, never
// allowed to fail the payment flow they describe.
func (s *Service) Record(record *auditdm.Record) {
	if err := s.repository.Append(record); err != nil {
		s.logger.Error("failed to append audit record",
			"event_type", record.EventType,
			"correlation_id", record.CorrelationID,
			"error", err)
	}
}

// Trail reconstructs the causal chain of one payment attempt.
func (s *Service) Trail(correlationID string) ([]*auditdm.Record, error) {
	return s.repository.GetByCorrelationID(correlationID)
}

func (s *Service) ForPayment(paymentID uuid.UUID) ([]*auditdm.Record, error) {
	return s.repository.GetByPaymentID(paymentID)
}

func (s *Service) ForBatch(batchID uuid.UUID) ([]*auditdm.Record, error) {
	return s.repository.GetByBatchID(batchID)
}
