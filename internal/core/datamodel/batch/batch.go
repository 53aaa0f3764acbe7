package batch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusPaused     Status = "PAUSED"
)

var statusDescriptions = map[Status]string{
	StatusPending:    "Batch is pending processing",
	StatusProcessing: "Batch is being processed",
	StatusCompleted:  "Batch processing completed",
	StatusFailed:     "Batch processing failed",
	StatusCancelled:  "Batch was cancelled",
	StatusPaused:     "Batch processing paused",
}

func (s Status) Description() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return string(s)
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusPaused || to == StatusCancelled
	case StatusPaused:
		return to == StatusProcessing || to == StatusCancelled
	default:
		return false
	}
}

type Batch struct {
	ID                 uuid.UUID       `gorm:"column:batch_id;type:uuid;primaryKey"`
	BatchNumber        string          `gorm:"column:batch_number;size:50;not null;uniqueIndex"`
	ProgramID          uuid.UUID       `gorm:"column:program_id;type:uuid;not null;index"`
	ProgramName        string          `gorm:"column:program_name;size:200;not null"`
	Status             Status          `gorm:"column:status;size:20;not null;index"`
	TotalAmount        decimal.Decimal `gorm:"column:total_amount;type:numeric(15,2);not null"`
	Currency           string          `gorm:"column:currency;size:3;not null;default:PHP"`
	TotalPayments      int             `gorm:"column:total_payments;not null"`
	SuccessfulPayments int             `gorm:"column:successful_payments;not null;default:0"`
	FailedPayments     int             `gorm:"column:failed_payments;not null;default:0"`
	PendingPayments    int             `gorm:"column:pending_payments;not null;default:0"`
	ScheduledAt        time.Time       `gorm:"column:scheduled_date;not null;index"`
	StartedAt          *time.Time      `gorm:"column:started_date"`
	CompletedAt        *time.Time      `gorm:"column:completed_date"`
	Description        string          `gorm:"column:description;size:500"`
	Metadata           json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedBy          string          `gorm:"column:created_by;size:100;not null"`
	UpdatedBy          string          `gorm:"column:updated_by;size:100"`
	CreatedAt          time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time       `gorm:"column:updated_at"`
	Version            int64           `gorm:"column:version;not null;default:0"`
}

func (Batch) TableName() string {
	return "payment_batches"
}

func (b *Batch) CanStart() bool {
	return b.Status == StatusPending
}

func (b *Batch) IsTerminal() bool {
	return b.Status.IsTerminal()
}

func (b *Batch) IsProcessing() bool {
	return b.Status == StatusProcessing
}

// UpdateCounts recomputes the settled/pending tallies from the member set.
// Counts are never edited independently of the payments they summarize.
func (b *Batch) UpdateCounts(members []*payment.Payment) {
	successful, failed, pending := 0, 0, 0
	for _, p := range members {
		switch p.Status {
		case payment.StatusCompleted:
			successful++
		case payment.StatusFailed:
			failed++
		case payment.StatusPending, payment.StatusProcessing:
			pending++
		}
	}
	b.SuccessfulPayments = successful
	b.FailedPayments = failed
	b.PendingPayments = pending
}

func (b *Batch) SuccessRate() float64 {
	if b.TotalPayments == 0 {
		return 0.0
	}
	return float64(b.SuccessfulPayments) / float64(b.TotalPayments) * 100.0
}

func (b *Batch) FailureRate() float64 {
	if b.TotalPayments == 0 {
		return 0.0
	}
	return float64(b.FailedPayments) / float64(b.TotalPayments)
}
