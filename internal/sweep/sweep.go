// Package sweep holds the background passes that keep the ledger honest:
// automatic retries for failed payments and reconciliation of payments a
// provider never answered for.
package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"

	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	"github.com/Kirachon/dsr-payment-service/internal/payment"
)

// PaymentSource is the read side the sweeps scan with.
type PaymentSource interface {
	GetFailedForRetry(attemptedBefore time.Time, limit int) ([]*paymentdm.Payment, error)
	GetStuckProcessing(updatedBefore time.Time, limit int) ([]*paymentdm.Payment, error)
	GetScheduled(before time.Time, limit int) ([]*paymentdm.Payment, error)
}

// Ledger is the write side: all mutations go through the payment service so
// sweeps obey the same state machine as everything else.
type Ledger interface {
	ProcessPayment(ctx context.Context, id uuid.UUID, actor string) (*payment.PaymentResponse, error)
	RetryPayment(ctx context.Context, id uuid.UUID, actor string) (*payment.PaymentResponse, error)
	CheckPaymentStatus(ctx context.Context, id uuid.UUID) (*payment.PaymentResponse, error)
}

type Recorder interface {
	Record(record *auditdm.Record)
}
