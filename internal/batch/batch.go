package batch

import (
	"context"
	"time"

	"github.com/google/uuid"

	batchdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/batch"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	"github.com/Kirachon/dsr-payment-service/internal/payment"
)

// RepositoryAPI is the batch persistence contract. Update is guarded by the
// version counter, same as the payment ledger.
type RepositoryAPI interface {
	Create(b *batchdm.Batch) error
	GetByID(id uuid.UUID) (*batchdm.Batch, error)
	GetByBatchNumber(batchNumber string) (*batchdm.Batch, error)
	Search(filter SearchFilter) ([]*batchdm.Batch, error)
	Update(b *batchdm.Batch) error
	GetScheduled(before time.Time, limit int) ([]*batchdm.Batch, error)
}

// PaymentStore is the slice of the payment repository the orchestrator
// needs: creating member rows and reading them back for count recomputes.
type PaymentStore interface {
	Create(p *paymentdm.Payment) error
	GetByBatchID(batchID uuid.UUID) ([]*paymentdm.Payment, error)
}

// Processor runs individual payments through the ledger's normal flow so
// batch members behave exactly like standalone payments. The payment
// service satisfies this directly.
type Processor interface {
	ProcessPayment(ctx context.Context, id uuid.UUID, actor string) (*payment.PaymentResponse, error)
	CancelPayment(ctx context.Context, id uuid.UUID, reason, actor string) (*payment.PaymentResponse, error)
}

type ServiceAPI interface {
	CreateBatch(req *CreateBatchRequest, createdBy string) (*BatchResponse, error)
	GetBatch(id uuid.UUID) (*BatchResponse, error)
	GetBatchByNumber(batchNumber string) (*BatchResponse, error)
	SearchBatches(filter SearchFilter) ([]*BatchResponse, error)
	StartBatch(ctx context.Context, id uuid.UUID, actor string) (*BatchResponse, error)
	PauseBatch(ctx context.Context, id uuid.UUID, actor string) (*BatchResponse, error)
	ResumeBatch(ctx context.Context, id uuid.UUID, actor string) (*BatchResponse, error)
	CancelBatch(ctx context.Context, id uuid.UUID, reason, actor string) (*BatchResponse, error)
	Progress(id uuid.UUID) (*ProgressResponse, error)
	ProcessScheduled(ctx context.Context, before time.Time) (int, error)
}
