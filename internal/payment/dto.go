package payment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	errors "github.com/Kirachon/dsr-payment-service/internal"
	"github.com/Kirachon/dsr-payment-service/internal/core/common/validation"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
)

// CreatePaymentRequest is the inbound boundary from the registration and
// eligibility services.
type CreatePaymentRequest struct {
	HouseholdID            uuid.UUID              `json:"household_id"`
	ProgramID              uuid.UUID              `json:"program_id"`
	BeneficiaryID          uuid.UUID              `json:"beneficiary_id"`
	Amount                 decimal.Decimal        `json:"amount"`
	Currency               string                 `json:"currency"`
	Method                 paymentdm.Method       `json:"payment_method"`
	RecipientAccountNumber string                 `json:"recipient_account_number,omitempty"`
	RecipientAccountName   string                 `json:"recipient_account_name,omitempty"`
	RecipientMobileNumber  string                 `json:"recipient_mobile_number,omitempty"`
	ScheduledAt            *time.Time             `json:"scheduled_date,omitempty"`
	MaxRetryCount          int                    `json:"max_retry_count,omitempty"`
	Metadata               map[string]interface{} `json:"metadata,omitempty"`
}

func (r *CreatePaymentRequest) Validate() error {
	if r.Currency == "" {
		r.Currency = "PHP"
	}
	if r.MaxRetryCount <= 0 {
		r.MaxRetryCount = 3
	}

	validator := validation.NewValidator()
	validator.Field("household_id", r.HouseholdID).Required()
	validator.Field("program_id", r.ProgramID).Required()
	validator.Field("beneficiary_id", r.BeneficiaryID).Required()
	validator.Field("amount", r.Amount).Required().PositiveAmount()
	validator.Field("currency", r.Currency).Required().CurrencyCode()
	validator.Field("recipient_mobile_number", r.RecipientMobileNumber).MobileNumberPH()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if !r.Method.Valid() {
		return errors.NewValidationFieldError("payment_method",
			fmt.Sprintf("unknown payment method %q", r.Method), errors.ErrCodeInvalidMethod)
	}

	return nil
}

type CancelPaymentRequest struct {
	Reason string `json:"reason"`
}

func (r *CancelPaymentRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("reason", r.Reason).Required().MaxLength(500)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type SearchFilter struct {
	HouseholdID *uuid.UUID
	ProgramID   *uuid.UUID
	BatchID     *uuid.UUID
	Status      *paymentdm.Status
	FSPCode     string
	From        *time.Time
	To          *time.Time
	Offset      int
	Limit       int
}

// PaymentResponse carries the computed fields so callers never derive
// status locally.
type PaymentResponse struct {
	ID                     uuid.UUID        `json:"payment_id"`
	HouseholdID            uuid.UUID        `json:"household_id"`
	ProgramID              uuid.UUID        `json:"program_id"`
	BeneficiaryID          uuid.UUID        `json:"beneficiary_id"`
	Amount                 decimal.Decimal  `json:"amount"`
	Currency               string           `json:"currency"`
	Status                 paymentdm.Status `json:"status"`
	StatusDescription      string           `json:"status_description"`
	Method                 paymentdm.Method `json:"payment_method"`
	FSPCode                string           `json:"fsp_code,omitempty"`
	FSPReference           *string          `json:"fsp_reference_number,omitempty"`
	InternalReference      string           `json:"internal_reference_number"`
	RecipientAccountNumber string           `json:"recipient_account_number,omitempty"`
	RecipientAccountName   string           `json:"recipient_account_name,omitempty"`
	RecipientMobileNumber  string           `json:"recipient_mobile_number,omitempty"`
	ScheduledAt            time.Time        `json:"scheduled_date"`
	ProcessedAt            *time.Time       `json:"processed_date,omitempty"`
	CompletedAt            *time.Time       `json:"completed_date,omitempty"`
	FailureReason          *string          `json:"failure_reason,omitempty"`
	RetryCount             int              `json:"retry_count"`
	MaxRetryCount          int              `json:"max_retry_count"`
	CanRetry               bool             `json:"can_retry"`
	IsCompleted            bool             `json:"is_completed"`
	IsTerminal             bool             `json:"is_terminal"`
	BatchID                *uuid.UUID       `json:"batch_id,omitempty"`
	Metadata               json.RawMessage  `json:"metadata,omitempty"`
	CreatedBy              string           `json:"created_by"`
	UpdatedBy              string           `json:"updated_by,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	Version                int64            `json:"version"`
}

func NewPaymentResponse(p *paymentdm.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                     p.ID,
		HouseholdID:            p.HouseholdID,
		ProgramID:              p.ProgramID,
		BeneficiaryID:          p.BeneficiaryID,
		Amount:                 p.Amount,
		Currency:               p.Currency,
		Status:                 p.Status,
		StatusDescription:      p.Status.Description(),
		Method:                 p.Method,
		FSPCode:                p.FSPCode,
		FSPReference:           p.FSPReference,
		InternalReference:      p.InternalReference,
		RecipientAccountNumber: p.RecipientAccountNumber,
		RecipientAccountName:   p.RecipientAccountName,
		RecipientMobileNumber:  p.RecipientMobileNumber,
		ScheduledAt:            p.ScheduledAt,
		ProcessedAt:            p.ProcessedAt,
		CompletedAt:            p.CompletedAt,
		FailureReason:          p.FailureReason,
		RetryCount:             p.RetryCount,
		MaxRetryCount:          p.MaxRetryCount,
		CanRetry:               p.CanRetry(),
		IsCompleted:            p.IsCompleted(),
		IsTerminal:             p.IsTerminal(),
		BatchID:                p.BatchID,
		Metadata:               p.Metadata,
		CreatedBy:              p.CreatedBy,
		UpdatedBy:              p.UpdatedBy,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
		Version:                p.Version,
	}
}

type StatusStatistic struct {
	Status      paymentdm.Status `gorm:"column:status" json:"status"`
	Count       int64            `gorm:"column:count" json:"count"`
	TotalAmount decimal.Decimal  `gorm:"column:total_amount" json:"total_amount"`
}

type FSPStatistic struct {
	FSPCode     string          `gorm:"column:fsp_code" json:"fsp_code"`
	Count       int64           `gorm:"column:count" json:"count"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount" json:"total_amount"`
}

type StatisticsResponse struct {
	ByStatus []StatusStatistic `json:"by_status"`
	ByFSP    []FSPStatistic    `json:"by_fsp"`
}

// ParseStatus maps a query-string value onto a payment status.
func ParseStatus(value string) (paymentdm.Status, bool) {
	status := paymentdm.Status(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case paymentdm.StatusPending, paymentdm.StatusProcessing, paymentdm.StatusCompleted,
		paymentdm.StatusFailed, paymentdm.StatusCancelled:
		return status, true
	}
	return "", false
}
