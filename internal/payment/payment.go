package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	"github.com/Kirachon/dsr-payment-service/internal/provider"
)

// RepositoryAPI is the ledger's persistence contract. Update applies a full
// row write guarded by the version counter and fails with a conflict when
// the row moved underneath the caller.
type RepositoryAPI interface {
	Create(p *paymentdm.Payment) error
	GetByID(id uuid.UUID) (*paymentdm.Payment, error)
	GetByInternalReference(reference string) (*paymentdm.Payment, error)
	GetByBatchID(batchID uuid.UUID) ([]*paymentdm.Payment, error)
	Search(filter SearchFilter) ([]*paymentdm.Payment, error)
	Update(p *paymentdm.Payment) error
	GetScheduled(before time.Time, limit int) ([]*paymentdm.Payment, error)
	GetFailedForRetry(attemptedBefore time.Time, limit int) ([]*paymentdm.Payment, error)
	GetStuckProcessing(updatedBefore time.Time, limit int) ([]*paymentdm.Payment, error)
	CountByStatus(status paymentdm.Status) (int64, error)
	StatisticsByStatus() ([]StatusStatistic, error)
	StatisticsByFSP() ([]FSPStatistic, error)
}

// ProviderAPI is the slice of the registry the ledger depends on.
type ProviderAPI interface {
	SelectProvider(method paymentdm.Method, amount decimal.Decimal) (string, error)
	Submit(ctx context.Context, fspCode string, req provider.SubmitRequest) (*provider.SubmitResponse, error)
	CheckStatus(ctx context.Context, fspCode, fspReference string) (*provider.StatusResponse, error)
	Cancel(ctx context.Context, fspCode, fspReference string) (*provider.CancelResponse, error)
	MethodSupported(method paymentdm.Method) bool
}

// ServiceAPI is what the batch orchestrator and the HTTP handlers call.
type ServiceAPI interface {
	CreatePayment(req *CreatePaymentRequest, createdBy string) (*PaymentResponse, error)
	GetPayment(id uuid.UUID) (*PaymentResponse, error)
	GetPaymentByReference(reference string) (*PaymentResponse, error)
	SearchPayments(filter SearchFilter) ([]*PaymentResponse, error)
	ProcessPayment(ctx context.Context, id uuid.UUID, actor string) (*PaymentResponse, error)
	CancelPayment(ctx context.Context, id uuid.UUID, reason, actor string) (*PaymentResponse, error)
	RetryPayment(ctx context.Context, id uuid.UUID, actor string) (*PaymentResponse, error)
	CheckPaymentStatus(ctx context.Context, id uuid.UUID) (*PaymentResponse, error)
	Statistics() (*StatisticsResponse, error)
}
