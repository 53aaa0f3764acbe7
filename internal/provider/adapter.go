package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
)

type SubmitStatus string

const (
	SubmitStatusSubmitted  SubmitStatus = "SUBMITTED"
	SubmitStatusProcessing SubmitStatus = "PROCESSING"
	SubmitStatusCompleted  SubmitStatus = "COMPLETED"
	SubmitStatusRejected   SubmitStatus = "REJECTED"
	SubmitStatusCancelled  SubmitStatus = "CANCELLED"
)

type SubmitRequest struct {
	PaymentID              uuid.UUID       `json:"payment_id"`
	InternalReference      string          `json:"internal_reference"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	Method                 payment.Method  `json:"method"`
	RecipientAccountNumber string          `json:"recipient_account_number,omitempty"`
	RecipientAccountName   string          `json:"recipient_account_name,omitempty"`
	RecipientMobileNumber  string          `json:"recipient_mobile_number,omitempty"`
	Description            string          `json:"description,omitempty"`
	CorrelationID          string          `json:"correlation_id"`
}

type SubmitResponse struct {
	FSPReference      string           `json:"fsp_reference"`
	InternalReference string           `json:"internal_reference"`
	Status            SubmitStatus     `json:"status"`
	StatusMessage     string           `json:"status_message,omitempty"`
	ErrorCode         string           `json:"error_code,omitempty"`
	ErrorMessage      string           `json:"error_message,omitempty"`
	Fee               *decimal.Decimal `json:"fee,omitempty"`
	ProcessedAt       time.Time        `json:"processed_at"`
}

func (r *SubmitResponse) Accepted() bool {
	switch r.Status {
	case SubmitStatusSubmitted, SubmitStatusProcessing, SubmitStatusCompleted:
		return true
	}
	return false
}

type StatusResponse struct {
	FSPReference  string       `json:"fsp_reference"`
	Status        SubmitStatus `json:"status"`
	StatusMessage string       `json:"status_message,omitempty"`
	ErrorCode     string       `json:"error_code,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

type CancelResponse struct {
	FSPReference   string `json:"fsp_reference"`
	Cancelled      bool   `json:"cancelled"`
	AlreadySettled bool   `json:"already_settled"`
	Message        string `json:"message,omitempty"`
}

// Adapter is the uniform capability every FSP integration implements.
//
// Submit must be idempotent on InternalReference: resubmitting the same
// reference returns the prior result instead of disbursing twice.
// CheckStatus must not mutate provider-side state. Cancel is best-effort;
// a transfer the provider has already settled comes back AlreadySettled
// rather than as an error.
type Adapter interface {
	FSPCode() string
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
	CheckStatus(ctx context.Context, fspReference string) (*StatusResponse, error)
	Cancel(ctx context.Context, fspReference string) (*CancelResponse, error)
	Healthy(ctx context.Context) bool
	SupportedMethods() []payment.Method
	SupportsAmount(amount decimal.Decimal) bool
}

// TransientError marks a failure worth retrying (network, timeout). Anything
// an adapter returns that is not transient is treated as permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient provider error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	// context timeouts on adapter calls are network-shaped failures
	return errors.Is(err, context.DeadlineExceeded)
}
