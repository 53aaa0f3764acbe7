package sweep_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	"github.com/Kirachon/dsr-payment-service/internal/payment"
	"github.com/Kirachon/dsr-payment-service/internal/sweep"
)

func TestSweep(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sweep Suite")
}

type mockSource struct {
	failed    []*paymentdm.Payment
	stuck     []*paymentdm.Payment
	scheduled []*paymentdm.Payment
}

func (m *mockSource) GetFailedForRetry(attemptedBefore time.Time, limit int) ([]*paymentdm.Payment, error) {
	return m.failed, nil
}

func (m *mockSource) GetStuckProcessing(updatedBefore time.Time, limit int) ([]*paymentdm.Payment, error) {
	return m.stuck, nil
}

func (m *mockSource) GetScheduled(before time.Time, limit int) ([]*paymentdm.Payment, error) {
	return m.scheduled, nil
}

type mockLedger struct {
	retried      []uuid.UUID
	processed    []uuid.UUID
	retryError   error
	checkOutcome paymentdm.Status
	checkError   error
	checkedIDs   []uuid.UUID
}

func (m *mockLedger) ProcessPayment(ctx context.Context, id uuid.UUID, actor string) (*payment.PaymentResponse, error) {
	m.processed = append(m.processed, id)
	return &payment.PaymentResponse{ID: id, Status: paymentdm.StatusCompleted}, nil
}

func (m *mockLedger) RetryPayment(ctx context.Context, id uuid.UUID, actor string) (*payment.PaymentResponse, error) {
	if m.retryError != nil {
		return nil, m.retryError
	}
	m.retried = append(m.retried, id)
	return &payment.PaymentResponse{ID: id, Status: paymentdm.StatusCompleted, RetryCount: 1}, nil
}

func (m *mockLedger) CheckPaymentStatus(ctx context.Context, id uuid.UUID) (*payment.PaymentResponse, error) {
	m.checkedIDs = append(m.checkedIDs, id)
	if m.checkError != nil {
		return nil, m.checkError
	}
	status := m.checkOutcome
	if status == "" {
		status = paymentdm.StatusProcessing
	}
	return &payment.PaymentResponse{ID: id, Status: status}, nil
}

type mockRecorder struct {
	records []*auditdm.Record
}

func (m *mockRecorder) Record(record *auditdm.Record) {
	m.records = append(m.records, record)
}

func failedPayment(retryCount, maxRetry int) *paymentdm.Payment {
	return &paymentdm.Payment{
		ID:                uuid.New(),
		Status:            paymentdm.StatusFailed,
		RetryCount:        retryCount,
		MaxRetryCount:     maxRetry,
		InternalReference: "PAY-2026-" + uuid.NewString()[:8],
	}
}

var _ = Describe("RetrySweeper", func() {
	var (
		source  *mockSource
		ledger  *mockLedger
		sweeper *sweep.RetrySweeper
		ctx     context.Context
	)

	BeforeEach(func() {
		source = &mockSource{}
		ledger = &mockLedger{}
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		sweeper = sweep.NewRetrySweeper(source, ledger, internal.RetrySweepConfig{
			Interval: time.Minute,
			Backoff:  30 * time.Minute,
			Limit:    100,
		}, lg)
		ctx = context.Background()
	})

	It("retries every eligible failed payment", func() {
		source.failed = []*paymentdm.Payment{failedPayment(0, 3), failedPayment(2, 3)}

		retried, err := sweeper.RunOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(retried).To(Equal(2))
		Expect(ledger.retried).To(HaveLen(2))
	})

	It("skips payments with exhausted attempts", func() {
		source.failed = []*paymentdm.Payment{failedPayment(3, 3), failedPayment(1, 3)}

		retried, err := sweeper.RunOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(retried).To(Equal(1))
	})

	It("keeps sweeping when one retry fails", func() {
		source.failed = []*paymentdm.Payment{failedPayment(0, 3)}
		ledger.retryError = internal.ErrInvalidPaymentStatus

		retried, err := sweeper.RunOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(retried).To(Equal(0))
	})
})

var _ = Describe("Scheduler", func() {
	var (
		source    *mockSource
		ledger    *mockLedger
		scheduler *sweep.Scheduler
		ctx       context.Context
	)

	BeforeEach(func() {
		source = &mockSource{}
		ledger = &mockLedger{}
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		scheduler = sweep.NewScheduler(source, ledger, time.Minute, 100, lg)
		ctx = context.Background()
	})

	It("processes due standalone payments only", func() {
		batchID := uuid.New()
		standalone := &paymentdm.Payment{ID: uuid.New(), Status: paymentdm.StatusPending}
		member := &paymentdm.Payment{ID: uuid.New(), Status: paymentdm.StatusPending, BatchID: &batchID}
		source.scheduled = []*paymentdm.Payment{standalone, member}

		started, err := scheduler.RunOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(started).To(Equal(1))
		Expect(ledger.processed).To(ConsistOf([]uuid.UUID{standalone.ID}))
	})
})

var _ = Describe("Reconciler", func() {
	var (
		source     *mockSource
		ledger     *mockLedger
		auditor    *mockRecorder
		reconciler *sweep.Reconciler
		ctx        context.Context
	)

	stuckPayment := func() *paymentdm.Payment {
		return &paymentdm.Payment{
			ID:                uuid.New(),
			Status:            paymentdm.StatusProcessing,
			InternalReference: "PAY-2026-" + uuid.NewString()[:8],
		}
	}

	BeforeEach(func() {
		source = &mockSource{}
		ledger = &mockLedger{}
		auditor = &mockRecorder{}
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		reconciler = sweep.NewReconciler(source, ledger, auditor, internal.ReconciliationConfig{
			Interval:   15 * time.Minute,
			StuckAfter: 24 * time.Hour,
			Limit:      100,
		}, lg)
		ctx = context.Background()
	})

	It("records a discrepancy when the provider settled the payment", func() {
		source.stuck = []*paymentdm.Payment{stuckPayment()}
		ledger.checkOutcome = paymentdm.StatusCompleted

		result, err := reconciler.RunOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Checked).To(Equal(1))
		Expect(result.Settled).To(Equal(1))
		Expect(result.Discrepancies).To(Equal(1))

		var types []auditdm.EventType
		for _, r := range auditor.records {
			types = append(types, r.EventType)
		}
		Expect(types).To(ContainElement(auditdm.EventReconciliationDiscrepancy))
		Expect(types).To(ContainElement(auditdm.EventReconciliationRun))
	})

	It("counts nothing when the provider still reports processing", func() {
		source.stuck = []*paymentdm.Payment{stuckPayment(), stuckPayment()}
		ledger.checkOutcome = paymentdm.StatusProcessing

		result, err := reconciler.RunOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Checked).To(Equal(2))
		Expect(result.Discrepancies).To(Equal(0))
	})

	It("keeps going when a single check fails", func() {
		source.stuck = []*paymentdm.Payment{stuckPayment(), stuckPayment()}
		ledger.checkError = internal.NewProviderTransientError("unreachable", nil)

		result, err := reconciler.RunOnce(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Checked).To(Equal(2))
		Expect(result.Discrepancies).To(Equal(0))
	})
})
