package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypeBatchCompleted   = "batch.completed"
)

type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID         uuid.UUID `json:"payment_id"`
	InternalReference string    `json:"internal_reference"`
	FSPCode           string    `json:"fsp_code"`
	FSPReference      string    `json:"fsp_reference"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
}

func NewPaymentCompletedEvent(paymentID uuid.UUID, internalRef, fspCode, fspRef, amount, currency string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":         paymentID.String(),
				"internal_reference": internalRef,
				"fsp_code":           fspCode,
				"fsp_reference":      fspRef,
				"amount":             amount,
				"currency":           currency,
			},
		},
		PaymentID:         paymentID,
		InternalReference: internalRef,
		FSPCode:           fspCode,
		FSPReference:      fspRef,
		Amount:            amount,
		Currency:          currency,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID         uuid.UUID `json:"payment_id"`
	InternalReference string    `json:"internal_reference"`
	FSPCode           string    `json:"fsp_code"`
	FailureReason     string    `json:"failure_reason"`
	RetryCount        int       `json:"retry_count"`
	Retryable         bool      `json:"retryable"`
}

func NewPaymentFailedEvent(paymentID uuid.UUID, internalRef, fspCode, failureReason string, retryCount int, retryable bool) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":         paymentID.String(),
				"internal_reference": internalRef,
				"fsp_code":           fspCode,
				"failure_reason":     failureReason,
				"retry_count":        retryCount,
				"retryable":          retryable,
			},
		},
		PaymentID:         paymentID,
		InternalReference: internalRef,
		FSPCode:           fspCode,
		FailureReason:     failureReason,
		RetryCount:        retryCount,
		Retryable:         retryable,
	}
}

type BatchCompletedEvent struct {
	BaseEvent
	BatchID            uuid.UUID `json:"batch_id"`
	BatchNumber        string    `json:"batch_number"`
	Status             string    `json:"status"`
	SuccessfulPayments int       `json:"successful_payments"`
	FailedPayments     int       `json:"failed_payments"`
	SuccessRate        float64   `json:"success_rate"`
}

func NewBatchCompletedEvent(batchID uuid.UUID, batchNumber, status string, successful, failed int, successRate float64) *BatchCompletedEvent {
	return &BatchCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBatchCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"batch_id":            batchID.String(),
				"batch_number":        batchNumber,
				"status":              status,
				"successful_payments": successful,
				"failed_payments":     failed,
				"success_rate":        successRate,
			},
		},
		BatchID:            batchID,
		BatchNumber:        batchNumber,
		Status:             status,
		SuccessfulPayments: successful,
		FailedPayments:     failed,
		SuccessRate:        successRate,
	}
}
