package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventPaymentCreated   EventType = "PAYMENT_CREATED"
	EventPaymentSubmitted EventType = "PAYMENT_SUBMITTED"
	EventPaymentCompleted EventType = "PAYMENT_COMPLETED"
	EventPaymentFailed    EventType = "PAYMENT_FAILED"
	EventPaymentCancelled EventType = "PAYMENT_CANCELLED"
	EventPaymentRetry     EventType = "PAYMENT_RETRY"
	EventStatusChanged    EventType = "STATUS_CHANGED"

	EventBatchCreated   EventType = "BATCH_CREATED"
	EventBatchStarted   EventType = "BATCH_STARTED"
	EventBatchPaused    EventType = "BATCH_PAUSED"
	EventBatchResumed   EventType = "BATCH_RESUMED"
	EventBatchCompleted EventType = "BATCH_COMPLETED"
	EventBatchFailed    EventType = "BATCH_FAILED"
	EventBatchCancelled EventType = "BATCH_CANCELLED"

	EventProviderSelected EventType = "PROVIDER_SELECTED"
	EventProviderRequest  EventType = "PROVIDER_REQUEST"
	EventProviderResponse EventType = "PROVIDER_RESPONSE"
	EventProviderError    EventType = "PROVIDER_ERROR"
	EventStatusCheck      EventType = "STATUS_CHECK"
	EventWebhook          EventType = "WEBHOOK"

	EventReconciliationRun         EventType = "RECONCILIATION_RUN"
	EventReconciliationDiscrepancy EventType = "RECONCILIATION_DISCREPANCY"
	EventSystemError               EventType = "SYSTEM_ERROR"
)

// Record is append-only: inserted once, never updated.
type Record struct {
	ID               uuid.UUID       `gorm:"column:audit_id;type:uuid;primaryKey"`
	PaymentID        *uuid.UUID      `gorm:"column:payment_id;type:uuid;index"`
	BatchID          *uuid.UUID      `gorm:"column:batch_id;type:uuid;index"`
	EventType        EventType       `gorm:"column:event_type;size:50;not null;index"`
	OldStatus        string          `gorm:"column:old_status;size:50"`
	NewStatus        string          `gorm:"column:new_status;size:50"`
	Description      string          `gorm:"column:description;size:1000"`
	ProviderRequest  string          `gorm:"column:provider_request;type:text"`
	ProviderResponse string          `gorm:"column:provider_response;type:text"`
	ErrorCode        string          `gorm:"column:error_code;size:50"`
	ErrorMessage     string          `gorm:"column:error_message;size:1000"`
	Actor            string          `gorm:"column:actor;size:100"`
	CorrelationID    string          `gorm:"column:correlation_id;size:100;index"`
	Metadata         json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;not null;index"`
}

func (Record) TableName() string {
	return "payment_audit_logs"
}

func PaymentCreated(paymentID uuid.UUID, actor string) *Record {
	return &Record{
		PaymentID:   &paymentID,
		EventType:   EventPaymentCreated,
		Description: "Payment created",
		Actor:       actor,
	}
}

func StatusChanged(paymentID uuid.UUID, oldStatus, newStatus, actor, correlationID string) *Record {
	return &Record{
		PaymentID:     &paymentID,
		EventType:     EventStatusChanged,
		OldStatus:     oldStatus,
		NewStatus:     newStatus,
		Description:   fmt.Sprintf("Payment status changed from %s to %s", oldStatus, newStatus),
		Actor:         actor,
		CorrelationID: correlationID,
	}
}

func ProviderRequest(paymentID uuid.UUID, fspCode, request, correlationID string) *Record {
	return &Record{
		PaymentID:       &paymentID,
		EventType:       EventProviderRequest,
		Description:     "Request sent to FSP " + fspCode,
		ProviderRequest: request,
		CorrelationID:   correlationID,
	}
}

func ProviderResponse(paymentID uuid.UUID, fspCode, response, correlationID string) *Record {
	return &Record{
		PaymentID:        &paymentID,
		EventType:        EventProviderResponse,
		Description:      "Response received from FSP " + fspCode,
		ProviderResponse: response,
		CorrelationID:    correlationID,
	}
}

func ProviderError(paymentID uuid.UUID, fspCode, errorCode, errorMessage, correlationID string) *Record {
	return &Record{
		PaymentID:     &paymentID,
		EventType:     EventProviderError,
		Description:   "FSP " + fspCode + " call failed",
		ErrorCode:     errorCode,
		ErrorMessage:  errorMessage,
		CorrelationID: correlationID,
	}
}

func ProviderSelected(paymentID uuid.UUID, fspCode, correlationID string) *Record {
	return &Record{
		PaymentID:     &paymentID,
		EventType:     EventProviderSelected,
		Description:   "Selected FSP " + fspCode,
		CorrelationID: correlationID,
	}
}

func BatchEvent(batchID uuid.UUID, eventType EventType, oldStatus, newStatus, description, actor string) *Record {
	return &Record{
		BatchID:     &batchID,
		EventType:   eventType,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
		Description: description,
		Actor:       actor,
	}
}

func SystemError(paymentID uuid.UUID, errorCode, errorMessage, actor string) *Record {
	return &Record{
		PaymentID:    &paymentID,
		EventType:    EventSystemError,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		Description:  "System error occurred",
		Actor:        actor,
	}
}
