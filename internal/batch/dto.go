package batch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	"github.com/Kirachon/dsr-payment-service/internal/core/common/validation"
	batchdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/batch"
	"github.com/Kirachon/dsr-payment-service/internal/payment"
)

// CreateBatchRequest carries the full member set up front; a batch's
// payment set is fixed at creation.
type CreateBatchRequest struct {
	ProgramID   uuid.UUID                       `json:"program_id"`
	ProgramName string                          `json:"program_name"`
	Currency    string                          `json:"currency"`
	ScheduledAt *time.Time                      `json:"scheduled_date,omitempty"`
	Description string                          `json:"description,omitempty"`
	Payments    []*payment.CreatePaymentRequest `json:"payments"`
	Metadata    map[string]interface{}          `json:"metadata,omitempty"`
}

func (r *CreateBatchRequest) Validate() error {
	if r.Currency == "" {
		r.Currency = "PHP"
	}

	validator := validation.NewValidator()
	validator.Field("program_id", r.ProgramID).Required()
	validator.Field("program_name", r.ProgramName).Required().MaxLength(200)
	validator.Field("currency", r.Currency).Required().CurrencyCode()
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if len(r.Payments) == 0 {
		return internal.NewValidationError("batch must contain at least one payment", internal.ErrCodeValidationFailed)
	}
	for i, p := range r.Payments {
		p.ProgramID = r.ProgramID
		if p.Currency == "" {
			p.Currency = r.Currency
		}
		if err := p.Validate(); err != nil {
			if appErr, ok := internal.IsAppError(err); ok {
				return appErr.WithDetails(fmt.Sprintf("payment %d: %s", i, appErr.GetDetailedMessage()))
			}
			return err
		}
	}
	return nil
}

type CancelBatchRequest struct {
	Reason string `json:"reason"`
}

func (r *CancelBatchRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("reason", r.Reason).Required().MaxLength(500)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type SearchFilter struct {
	ProgramID *uuid.UUID
	Status    *batchdm.Status
	From      *time.Time
	To        *time.Time
	Offset    int
	Limit     int
}

type BatchResponse struct {
	ID                 uuid.UUID       `json:"batch_id"`
	BatchNumber        string          `json:"batch_number"`
	ProgramID          uuid.UUID       `json:"program_id"`
	ProgramName        string          `json:"program_name"`
	Status             batchdm.Status  `json:"status"`
	StatusDescription  string          `json:"status_description"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Currency           string          `json:"currency"`
	TotalPayments      int             `json:"total_payments"`
	SuccessfulPayments int             `json:"successful_payments"`
	FailedPayments     int             `json:"failed_payments"`
	PendingPayments    int             `json:"pending_payments"`
	SuccessRate        float64         `json:"success_rate"`
	ScheduledAt        time.Time       `json:"scheduled_date"`
	StartedAt          *time.Time      `json:"started_date,omitempty"`
	CompletedAt        *time.Time      `json:"completed_date,omitempty"`
	Description        string          `json:"description,omitempty"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
	CreatedBy          string          `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int64           `json:"version"`
}

func NewBatchResponse(b *batchdm.Batch) *BatchResponse {
	return &BatchResponse{
		ID:                 b.ID,
		BatchNumber:        b.BatchNumber,
		ProgramID:          b.ProgramID,
		ProgramName:        b.ProgramName,
		Status:             b.Status,
		StatusDescription:  b.Status.Description(),
		TotalAmount:        b.TotalAmount,
		Currency:           b.Currency,
		TotalPayments:      b.TotalPayments,
		SuccessfulPayments: b.SuccessfulPayments,
		FailedPayments:     b.FailedPayments,
		PendingPayments:    b.PendingPayments,
		SuccessRate:        b.SuccessRate(),
		ScheduledAt:        b.ScheduledAt,
		StartedAt:          b.StartedAt,
		CompletedAt:        b.CompletedAt,
		Description:        b.Description,
		Metadata:           b.Metadata,
		CreatedBy:          b.CreatedBy,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
		Version:            b.Version,
	}
}

// ProgressResponse is the polling shape for an in-flight batch.
type ProgressResponse struct {
	BatchID            uuid.UUID      `json:"batch_id"`
	BatchNumber        string         `json:"batch_number"`
	Status             batchdm.Status `json:"status"`
	TotalPayments      int            `json:"total_payments"`
	SuccessfulPayments int            `json:"successful_payments"`
	FailedPayments     int            `json:"failed_payments"`
	PendingPayments    int            `json:"pending_payments"`
	ProcessedPayments  int            `json:"processed_payments"`
	SuccessRate        float64        `json:"success_rate"`
	PercentDone        float64        `json:"percent_done"`
}

func NewProgressResponse(b *batchdm.Batch) *ProgressResponse {
	processed := b.SuccessfulPayments + b.FailedPayments
	percent := 0.0
	if b.TotalPayments > 0 {
		percent = float64(processed) / float64(b.TotalPayments) * 100.0
	}
	return &ProgressResponse{
		BatchID:            b.ID,
		BatchNumber:        b.BatchNumber,
		Status:             b.Status,
		TotalPayments:      b.TotalPayments,
		SuccessfulPayments: b.SuccessfulPayments,
		FailedPayments:     b.FailedPayments,
		PendingPayments:    b.PendingPayments,
		ProcessedPayments:  processed,
		SuccessRate:        b.SuccessRate(),
		PercentDone:        percent,
	}
}
