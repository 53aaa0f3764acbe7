package batch_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	"github.com/Kirachon/dsr-payment-service/internal/batch"
	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
	batchdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/batch"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	"github.com/Kirachon/dsr-payment-service/internal/core/events"
	"github.com/Kirachon/dsr-payment-service/internal/payment"
)

func TestBatchService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Batch Service Suite")
}

// Mock batch repository with the same version semantics as the real one
type mockBatchRepository struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*batchdm.Batch
}

func newMockBatchRepository() *mockBatchRepository {
	return &mockBatchRepository{batches: make(map[uuid.UUID]*batchdm.Batch)}
}

func (m *mockBatchRepository) Create(b *batchdm.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *b
	m.batches[b.ID] = &copied
	return nil
}

func (m *mockBatchRepository) GetByID(id uuid.UUID) (*batchdm.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, internal.ErrBatchNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *mockBatchRepository) GetByBatchNumber(batchNumber string) (*batchdm.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.BatchNumber == batchNumber {
			copied := *b
			return &copied, nil
		}
	}
	return nil, internal.ErrBatchNotFound
}

func (m *mockBatchRepository) Search(filter batch.SearchFilter) ([]*batchdm.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*batchdm.Batch
	for _, b := range m.batches {
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		if filter.ProgramID != nil && b.ProgramID != *filter.ProgramID {
			continue
		}
		copied := *b
		result = append(result, &copied)
	}
	return result, nil
}

func (m *mockBatchRepository) Update(b *batchdm.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.batches[b.ID]
	if !ok {
		return internal.ErrBatchNotFound
	}
	if stored.Version != b.Version {
		return internal.ErrVersionConflict
	}
	copied := *b
	copied.Version = b.Version + 1
	m.batches[b.ID] = &copied
	b.Version = copied.Version
	return nil
}

func (m *mockBatchRepository) GetScheduled(before time.Time, limit int) ([]*batchdm.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*batchdm.Batch
	for _, b := range m.batches {
		if b.Status == batchdm.StatusPending && !b.ScheduledAt.After(before) {
			copied := *b
			result = append(result, &copied)
		}
	}
	return result, nil
}

// paymentWorld is both the member store and the processor: statuses changed
// by processing are visible to count recomputes, like the shared database.
type paymentWorld struct {
	mu          sync.Mutex
	payments    map[uuid.UUID]*paymentdm.Payment
	failTargets map[uuid.UUID]bool
	failAll     bool
	gate        chan struct{}
	processed   int
}

func newPaymentWorld() *paymentWorld {
	return &paymentWorld{
		payments:    make(map[uuid.UUID]*paymentdm.Payment),
		failTargets: make(map[uuid.UUID]bool),
	}
}

func (w *paymentWorld) Create(p *paymentdm.Payment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	copied := *p
	w.payments[p.ID] = &copied
	return nil
}

func (w *paymentWorld) GetByBatchID(batchID uuid.UUID) ([]*paymentdm.Payment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var result []*paymentdm.Payment
	for _, p := range w.payments {
		if p.BatchID != nil && *p.BatchID == batchID {
			copied := *p
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (w *paymentWorld) ProcessPayment(ctx context.Context, id uuid.UUID, actor string) (*payment.PaymentResponse, error) {
	if w.gate != nil {
		<-w.gate
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.payments[id]
	if !ok {
		return nil, internal.ErrPaymentNotFound
	}
	if w.failAll || w.failTargets[id] {
		p.Status = paymentdm.StatusFailed
	} else {
		p.Status = paymentdm.StatusCompleted
	}
	w.processed++
	return &payment.PaymentResponse{ID: p.ID, Status: p.Status}, nil
}

func (w *paymentWorld) CancelPayment(ctx context.Context, id uuid.UUID, reason, actor string) (*payment.PaymentResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.payments[id]
	if !ok {
		return nil, internal.ErrPaymentNotFound
	}
	if p.Status.IsTerminal() {
		return nil, internal.ErrCannotCancel
	}
	p.Status = paymentdm.StatusCancelled
	return &payment.PaymentResponse{ID: p.ID, Status: p.Status}, nil
}

func (w *paymentWorld) processedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed
}

func (w *paymentWorld) statusCounts(batchID uuid.UUID) map[paymentdm.Status]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	counts := make(map[paymentdm.Status]int)
	for _, p := range w.payments {
		if p.BatchID != nil && *p.BatchID == batchID {
			counts[p.Status]++
		}
	}
	return counts
}

type mockRecorder struct {
	mu      sync.Mutex
	records []*auditdm.Record
}

func (m *mockRecorder) Record(record *auditdm.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
}

func (m *mockRecorder) eventTypes() []auditdm.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]auditdm.EventType, len(m.records))
	for i, r := range m.records {
		result[i] = r.EventType
	}
	return result
}

var _ = Describe("BatchService", func() {
	var (
		repository *mockBatchRepository
		world      *paymentWorld
		auditor    *mockRecorder
		bus        *events.EventBus
		service    *batch.Service
		ctx        context.Context
	)

	newService := func(threshold float64) *batch.Service {
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus = events.NewEventBus(lg)
		return batch.NewService(repository, world, world, auditor, bus, lg, internal.DispatchConfig{
			MaxWorkers:            4,
			JobQueueSize:          200,
			BatchFailureThreshold: threshold,
		})
	}

	createRequest := func(count int) *batch.CreateBatchRequest {
		req := &batch.CreateBatchRequest{
			ProgramID:   uuid.New(),
			ProgramName: "4Ps Quarterly Disbursement",
			Currency:    "PHP",
		}
		for i := 0; i < count; i++ {
			req.Payments = append(req.Payments, &payment.CreatePaymentRequest{
				HouseholdID:           uuid.New(),
				BeneficiaryID:         uuid.New(),
				Amount:                decimal.NewFromInt(500),
				Method:                paymentdm.MethodEWallet,
				RecipientMobileNumber: "09171234567",
			})
		}
		return req
	}

	batchStatus := func(id uuid.UUID) func() batchdm.Status {
		return func() batchdm.Status {
			b, err := repository.GetByID(id)
			if err != nil {
				return ""
			}
			return b.Status
		}
	}

	BeforeEach(func() {
		repository = newMockBatchRepository()
		world = newPaymentWorld()
		auditor = &mockRecorder{}
		service = newService(1.0)
		ctx = context.Background()
	})

	AfterEach(func() {
		service.Shutdown()
	})

	Describe("CreateBatch", func() {
		It("seeds counts and creates the member payments", func() {
			resp, err := service.CreateBatch(createRequest(5), "operator1")

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal(batchdm.StatusPending))
			Expect(resp.BatchNumber).To(HavePrefix("BATCH-"))
			Expect(resp.TotalPayments).To(Equal(5))
			Expect(resp.PendingPayments).To(Equal(5))
			Expect(resp.TotalAmount.Equal(decimal.NewFromInt(2500))).To(BeTrue())

			members, err := world.GetByBatchID(resp.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(members).To(HaveLen(5))
			for _, member := range members {
				Expect(member.Status).To(Equal(paymentdm.StatusPending))
				Expect(member.ProgramID).To(Equal(resp.ProgramID))
			}
			Expect(auditor.eventTypes()).To(ContainElement(auditdm.EventBatchCreated))
		})

		It("rejects an empty payment set", func() {
			_, err := service.CreateBatch(createRequest(0), "operator1")

			Expect(err).To(HaveOccurred())
		})

		It("rejects the batch when a member is invalid", func() {
			req := createRequest(3)
			req.Payments[1].Amount = decimal.Zero

			_, err := service.CreateBatch(req, "operator1")

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("StartBatch", func() {
		It("processes every member and completes the batch", func() {
			created, err := service.CreateBatch(createRequest(10), "operator1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.StartBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())

			Eventually(batchStatus(created.ID), 5*time.Second, 20*time.Millisecond).
				Should(Equal(batchdm.StatusCompleted))

			final, err := repository.GetByID(created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(final.SuccessfulPayments).To(Equal(10))
			Expect(final.FailedPayments).To(Equal(0))
			Expect(final.PendingPayments).To(Equal(0))
			Expect(final.SuccessRate()).To(BeNumerically("==", 100.0))
			Expect(final.CompletedAt).NotTo(BeNil())
		})

		It("completes with the observed success rate when a few members fail", func() {
			created, err := service.CreateBatch(createRequest(100), "operator1")
			Expect(err).NotTo(HaveOccurred())

			members, err := world.GetByBatchID(created.ID)
			Expect(err).NotTo(HaveOccurred())
			for _, member := range members[:3] {
				world.failTargets[member.ID] = true
			}

			_, err = service.StartBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())

			Eventually(batchStatus(created.ID), 10*time.Second, 20*time.Millisecond).
				Should(Equal(batchdm.StatusCompleted))

			final, err := repository.GetByID(created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(final.SuccessfulPayments).To(Equal(97))
			Expect(final.FailedPayments).To(Equal(3))
			Expect(final.SuccessRate()).To(BeNumerically("~", 97.0, 0.001))
		})

		It("fails the batch when every member fails", func() {
			world.failAll = true
			created, err := service.CreateBatch(createRequest(5), "operator1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.StartBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())

			Eventually(batchStatus(created.ID), 5*time.Second, 20*time.Millisecond).
				Should(Equal(batchdm.StatusFailed))
			Expect(auditor.eventTypes()).To(ContainElement(auditdm.EventBatchFailed))
		})

		It("honors a lower configured failure threshold", func() {
			service.Shutdown()
			service = newService(0.5)

			created, err := service.CreateBatch(createRequest(10), "operator1")
			Expect(err).NotTo(HaveOccurred())

			members, err := world.GetByBatchID(created.ID)
			Expect(err).NotTo(HaveOccurred())
			for _, member := range members[:6] {
				world.failTargets[member.ID] = true
			}

			_, err = service.StartBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())

			Eventually(batchStatus(created.ID), 5*time.Second, 20*time.Millisecond).
				Should(Equal(batchdm.StatusFailed))
		})

		It("refuses to start a batch twice", func() {
			created, err := service.CreateBatch(createRequest(3), "operator1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.StartBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())

			Eventually(batchStatus(created.ID), 5*time.Second, 20*time.Millisecond).
				Should(Equal(batchdm.StatusCompleted))

			_, err = service.StartBatch(ctx, created.ID, "operator1")
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidBatchStatus))
		})
	})

	Describe("Pause and Resume", func() {
		It("pauses between payments and finishes after resume", func() {
			world.gate = make(chan struct{})
			created, err := service.CreateBatch(createRequest(8), "operator1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.StartBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())

			Eventually(batchStatus(created.ID), 2*time.Second, 10*time.Millisecond).
				Should(Equal(batchdm.StatusProcessing))

			_, err = service.PauseBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())
			Expect(batchStatus(created.ID)()).To(Equal(batchdm.StatusPaused))

			close(world.gate)

			// the run loop stops at PAUSED once in-flight members finish
			Eventually(batchStatus(created.ID), 5*time.Second, 20*time.Millisecond).
				Should(Equal(batchdm.StatusPaused))

			_, err = service.ResumeBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())

			Eventually(batchStatus(created.ID), 5*time.Second, 20*time.Millisecond).
				Should(Equal(batchdm.StatusCompleted))

			final, err := repository.GetByID(created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(final.SuccessfulPayments).To(Equal(8))
			Expect(auditor.eventTypes()).To(ContainElement(auditdm.EventBatchPaused))
			Expect(auditor.eventTypes()).To(ContainElement(auditdm.EventBatchResumed))
		})

		It("refuses to pause a batch that is not processing", func() {
			created, err := service.CreateBatch(createRequest(3), "operator1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.PauseBatch(ctx, created.ID, "operator1")

			Expect(err).To(HaveOccurred())
		})

		It("refuses to resume a batch that is not paused", func() {
			created, err := service.CreateBatch(createRequest(3), "operator1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ResumeBatch(ctx, created.ID, "operator1")

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CancelBatch", func() {
		It("cascades cancellation to every pending member without processing any", func() {
			created, err := service.CreateBatch(createRequest(5), "operator1")
			Expect(err).NotTo(HaveOccurred())

			resp, err := service.CancelBatch(ctx, created.ID, "program suspended", "operator1")

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal(batchdm.StatusCancelled))
			Expect(resp.CompletedAt).NotTo(BeNil())

			counts := world.statusCounts(created.ID)
			Expect(counts[paymentdm.StatusCancelled]).To(Equal(5))
			Expect(world.processedCount()).To(Equal(0))
			Expect(auditor.eventTypes()).To(ContainElement(auditdm.EventBatchCancelled))
		})

		It("leaves settled members untouched", func() {
			created, err := service.CreateBatch(createRequest(4), "operator1")
			Expect(err).NotTo(HaveOccurred())

			members, err := world.GetByBatchID(created.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = world.ProcessPayment(ctx, members[0].ID, "operator1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.CancelBatch(ctx, created.ID, "program suspended", "operator1")
			Expect(err).NotTo(HaveOccurred())

			counts := world.statusCounts(created.ID)
			Expect(counts[paymentdm.StatusCompleted]).To(Equal(1))
			Expect(counts[paymentdm.StatusCancelled]).To(Equal(3))
		})

		It("halts a running batch before moving it to cancelled", func() {
			world.gate = make(chan struct{})
			created, err := service.CreateBatch(createRequest(6), "operator1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.StartBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())
			Eventually(batchStatus(created.ID), 2*time.Second, 10*time.Millisecond).
				Should(Equal(batchdm.StatusProcessing))

			resp, err := service.CancelBatch(ctx, created.ID, "program suspended", "operator1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal(batchdm.StatusCancelled))
			Expect(resp.CompletedAt).NotTo(BeNil())

			// the interrupted run loop must not finalize the batch again
			close(world.gate)
			Consistently(batchStatus(created.ID), 500*time.Millisecond, 50*time.Millisecond).
				Should(Equal(batchdm.StatusCancelled))
		})

		It("refuses to cancel a completed batch", func() {
			created, err := service.CreateBatch(createRequest(2), "operator1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.StartBatch(ctx, created.ID, "operator1")
			Expect(err).NotTo(HaveOccurred())
			Eventually(batchStatus(created.ID), 5*time.Second, 20*time.Millisecond).
				Should(Equal(batchdm.StatusCompleted))

			_, err = service.CancelBatch(ctx, created.ID, "too late", "operator1")

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Progress", func() {
		It("reports computed progress figures", func() {
			created, err := service.CreateBatch(createRequest(4), "operator1")
			Expect(err).NotTo(HaveOccurred())

			progress, err := service.Progress(created.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(progress.TotalPayments).To(Equal(4))
			Expect(progress.PendingPayments).To(Equal(4))
			Expect(progress.PercentDone).To(BeNumerically("==", 0.0))
		})
	})

	Describe("ProcessScheduled", func() {
		It("starts batches whose scheduled date has passed", func() {
			past := time.Now().Add(-time.Hour)
			req := createRequest(2)
			req.ScheduledAt = &past
			created, err := service.CreateBatch(req, "operator1")
			Expect(err).NotTo(HaveOccurred())

			future := time.Now().Add(time.Hour)
			laterReq := createRequest(2)
			laterReq.ScheduledAt = &future
			later, err := service.CreateBatch(laterReq, "operator1")
			Expect(err).NotTo(HaveOccurred())

			started, err := service.ProcessScheduled(ctx, time.Now())

			Expect(err).NotTo(HaveOccurred())
			Expect(started).To(Equal(1))
			Eventually(batchStatus(created.ID), 5*time.Second, 20*time.Millisecond).
				Should(Equal(batchdm.StatusCompleted))
			Expect(batchStatus(later.ID)()).To(Equal(batchdm.StatusPending))
		})
	})
})
