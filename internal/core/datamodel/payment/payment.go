package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

var statusDescriptions = map[Status]string{
	StatusPending:    "Payment is pending processing",
	StatusProcessing: "Payment is being processed",
	StatusCompleted:  "Payment completed successfully",
	StatusFailed:     "Payment failed",
	StatusCancelled:  "Payment was cancelled",
}

func (s Status) Description() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return string(s)
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition encodes the payment lifecycle. A PENDING payment can fail
// directly when no provider is eligible; FAILED goes back to PENDING for
// retries; terminal states accept nothing.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	case StatusFailed:
		return to == StatusPending || to == StatusCancelled
	default:
		return false
	}
}

type Method string

const (
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodEWallet      Method = "E_WALLET"
	MethodCashPickup   Method = "CASH_PICKUP"
	MethodCheck        Method = "CHECK"
	MethodPrepaidCard  Method = "PREPAID_CARD"
)

func (m Method) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodEWallet, MethodCashPickup, MethodCheck, MethodPrepaidCard:
		return true
	}
	return false
}

type Payment struct {
	ID                     uuid.UUID       `gorm:"column:payment_id;type:uuid;primaryKey"`
	HouseholdID            uuid.UUID       `gorm:"column:household_id;type:uuid;not null;index"`
	ProgramID              uuid.UUID       `gorm:"column:program_id;type:uuid;not null;index"`
	BeneficiaryID          uuid.UUID       `gorm:"column:beneficiary_id;type:uuid;not null"`
	Amount                 decimal.Decimal `gorm:"column:amount;type:numeric(15,2);not null"`
	Currency               string          `gorm:"column:currency;size:3;not null;default:PHP"`
	Status                 Status          `gorm:"column:status;size:20;not null;index"`
	Method                 Method          `gorm:"column:payment_method;size:20;not null"`
	FSPCode                string          `gorm:"column:fsp_code;size:20"`
	FSPReference           *string         `gorm:"column:fsp_reference_number;size:100;index"`
	InternalReference      string          `gorm:"column:internal_reference_number;size:50;not null;uniqueIndex"`
	RecipientAccountNumber string          `gorm:"column:recipient_account_number;size:100"`
	RecipientAccountName   string          `gorm:"column:recipient_account_name;size:200"`
	RecipientMobileNumber  string          `gorm:"column:recipient_mobile_number;size:20"`
	ScheduledAt            time.Time       `gorm:"column:scheduled_date"`
	ProcessedAt            *time.Time      `gorm:"column:processed_date"`
	CompletedAt            *time.Time      `gorm:"column:completed_date"`
	FailureReason          *string         `gorm:"column:failure_reason;size:500"`
	RetryCount             int             `gorm:"column:retry_count;not null;default:0"`
	MaxRetryCount          int             `gorm:"column:max_retry_count;not null;default:3"`
	BatchID                *uuid.UUID      `gorm:"column:batch_id;type:uuid;index"`
	Metadata               json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedBy              string          `gorm:"column:created_by;size:100;not null"`
	UpdatedBy              string          `gorm:"column:updated_by;size:100"`
	CreatedAt              time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt              time.Time       `gorm:"column:updated_at"`
	Version                int64           `gorm:"column:version;not null;default:0"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) CanRetry() bool {
	return p.RetryCount < p.MaxRetryCount &&
		(p.Status == StatusFailed || p.Status == StatusPending)
}

func (p *Payment) IsTerminal() bool {
	return p.Status.IsTerminal()
}

func (p *Payment) IsCompleted() bool {
	return p.Status == StatusCompleted
}

func (p *Payment) IsFailed() bool {
	return p.Status == StatusFailed
}

func (p *Payment) IsPending() bool {
	return p.Status == StatusPending
}

func (p *Payment) IsProcessing() bool {
	return p.Status == StatusProcessing
}
