package postgres

import (
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	paymentpkg "github.com/Kirachon/dsr-payment-service/internal/payment"
)

func TestPaymentRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Payment Repository Suite")
}

// PaymentSQLite mirrors the payments table with text columns in place of
// jsonb and uuid for SQLite compatibility
type PaymentSQLite struct {
	ID                     string     `gorm:"column:payment_id;primaryKey"`
	HouseholdID            string     `gorm:"column:household_id;not null;index"`
	ProgramID              string     `gorm:"column:program_id;not null;index"`
	BeneficiaryID          string     `gorm:"column:beneficiary_id;not null"`
	Amount                 string     `gorm:"column:amount;type:numeric;not null"`
	Currency               string     `gorm:"column:currency;not null;default:PHP"`
	Status                 string     `gorm:"column:status;not null;index"`
	Method                 string     `gorm:"column:payment_method;not null"`
	FSPCode                string     `gorm:"column:fsp_code"`
	FSPReference           *string    `gorm:"column:fsp_reference_number;index"`
	InternalReference      string     `gorm:"column:internal_reference_number;not null;uniqueIndex"`
	RecipientAccountNumber string     `gorm:"column:recipient_account_number"`
	RecipientAccountName   string     `gorm:"column:recipient_account_name"`
	RecipientMobileNumber  string     `gorm:"column:recipient_mobile_number"`
	ScheduledAt            time.Time  `gorm:"column:scheduled_date"`
	ProcessedAt            *time.Time `gorm:"column:processed_date"`
	CompletedAt            *time.Time `gorm:"column:completed_date"`
	FailureReason          *string    `gorm:"column:failure_reason"`
	RetryCount             int        `gorm:"column:retry_count;not null;default:0"`
	MaxRetryCount          int        `gorm:"column:max_retry_count;not null;default:3"`
	BatchID                *string    `gorm:"column:batch_id;index"`
	Metadata               string     `gorm:"column:metadata;type:text"`
	CreatedBy              string     `gorm:"column:created_by;not null"`
	UpdatedBy              string     `gorm:"column:updated_by"`
	CreatedAt              time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
	Version                int64      `gorm:"column:version;not null;default:0"`
}

func (PaymentSQLite) TableName() string {
	return "payments"
}

var _ = ginkgo.Describe("PaymentRepository", func() {
	var (
		db   *gorm.DB
		repo paymentpkg.RepositoryAPI
	)

	newPayment := func(status paymentdm.Status, amount int64) *paymentdm.Payment {
		return &paymentdm.Payment{
			ID:                uuid.New(),
			HouseholdID:       uuid.New(),
			ProgramID:         uuid.New(),
			BeneficiaryID:     uuid.New(),
			Amount:            decimal.NewFromInt(amount),
			Currency:          "PHP",
			Status:            status,
			Method:            paymentdm.MethodEWallet,
			InternalReference: "PAY-2026-" + uuid.NewString()[:12],
			ScheduledAt:       time.Now().UTC(),
			MaxRetryCount:     3,
			CreatedBy:         "tester",
			CreatedAt:         time.Now().UTC(),
			UpdatedAt:         time.Now().UTC(),
		}
	}

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		err = db.AutoMigrate(&PaymentSQLite{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewPaymentRepository(db)
	})

	ginkgo.Describe("Create and GetByID", func() {
		ginkgo.It("round-trips a payment", func() {
			p := newPayment(paymentdm.StatusPending, 500)

			err := repo.Create(p)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			loaded, err := repo.GetByID(p.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(loaded.InternalReference).To(gomega.Equal(p.InternalReference))
			gomega.Expect(loaded.Status).To(gomega.Equal(paymentdm.StatusPending))
			gomega.Expect(loaded.Amount.Equal(decimal.NewFromInt(500))).To(gomega.BeTrue())
		})

		ginkgo.It("returns the not-found sentinel for an unknown ID", func() {
			_, err := repo.GetByID(uuid.New())

			gomega.Expect(err).To(gomega.MatchError(internal.ErrPaymentNotFound))
		})

		ginkgo.It("rejects a duplicate internal reference", func() {
			p1 := newPayment(paymentdm.StatusPending, 500)
			gomega.Expect(repo.Create(p1)).To(gomega.Succeed())

			p2 := newPayment(paymentdm.StatusPending, 700)
			p2.InternalReference = p1.InternalReference

			gomega.Expect(repo.Create(p2)).ToNot(gomega.Succeed())
		})
	})

	ginkgo.Describe("GetByInternalReference", func() {
		ginkgo.It("finds the payment by its reference", func() {
			p := newPayment(paymentdm.StatusPending, 500)
			gomega.Expect(repo.Create(p)).To(gomega.Succeed())

			loaded, err := repo.GetByInternalReference(p.InternalReference)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(loaded.ID).To(gomega.Equal(p.ID))
		})
	})

	ginkgo.Describe("Update", func() {
		ginkgo.It("bumps the version on a clean write", func() {
			p := newPayment(paymentdm.StatusPending, 500)
			gomega.Expect(repo.Create(p)).To(gomega.Succeed())

			p.Status = paymentdm.StatusProcessing
			err := repo.Update(p)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Version).To(gomega.Equal(int64(1)))

			loaded, err := repo.GetByID(p.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(loaded.Status).To(gomega.Equal(paymentdm.StatusProcessing))
			gomega.Expect(loaded.Version).To(gomega.Equal(int64(1)))
		})

		ginkgo.It("rejects a write based on a stale version", func() {
			p := newPayment(paymentdm.StatusPending, 500)
			gomega.Expect(repo.Create(p)).To(gomega.Succeed())

			stale, err := repo.GetByID(p.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			p.Status = paymentdm.StatusProcessing
			gomega.Expect(repo.Update(p)).To(gomega.Succeed())

			stale.Status = paymentdm.StatusCancelled
			err = repo.Update(stale)

			gomega.Expect(err).To(gomega.MatchError(internal.ErrVersionConflict))

			loaded, err := repo.GetByID(p.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(loaded.Status).To(gomega.Equal(paymentdm.StatusProcessing))
		})
	})

	ginkgo.Describe("Search", func() {
		ginkgo.It("filters by status and provider", func() {
			pending := newPayment(paymentdm.StatusPending, 500)
			failed := newPayment(paymentdm.StatusFailed, 700)
			failed.FSPCode = "GCASH"
			gomega.Expect(repo.Create(pending)).To(gomega.Succeed())
			gomega.Expect(repo.Create(failed)).To(gomega.Succeed())

			status := paymentdm.StatusFailed
			results, err := repo.Search(paymentpkg.SearchFilter{Status: &status, FSPCode: "GCASH", Limit: 10})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(results).To(gomega.HaveLen(1))
			gomega.Expect(results[0].ID).To(gomega.Equal(failed.ID))
		})
	})

	ginkgo.Describe("GetFailedForRetry", func() {
		ginkgo.It("returns failed payments with retries left", func() {
			retryable := newPayment(paymentdm.StatusFailed, 500)
			retryable.RetryCount = 1
			exhausted := newPayment(paymentdm.StatusFailed, 700)
			exhausted.RetryCount = 3
			gomega.Expect(repo.Create(retryable)).To(gomega.Succeed())
			gomega.Expect(repo.Create(exhausted)).To(gomega.Succeed())

			results, err := repo.GetFailedForRetry(time.Now().UTC().Add(time.Minute), 10)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(results).To(gomega.HaveLen(1))
			gomega.Expect(results[0].ID).To(gomega.Equal(retryable.ID))
		})
	})

	ginkgo.Describe("GetStuckProcessing", func() {
		ginkgo.It("returns processing payments that stopped moving", func() {
			stuck := newPayment(paymentdm.StatusProcessing, 500)
			stuck.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
			fresh := newPayment(paymentdm.StatusProcessing, 700)
			gomega.Expect(repo.Create(stuck)).To(gomega.Succeed())
			gomega.Expect(repo.Create(fresh)).To(gomega.Succeed())

			results, err := repo.GetStuckProcessing(time.Now().UTC().Add(-24*time.Hour), 10)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(results).To(gomega.HaveLen(1))
			gomega.Expect(results[0].ID).To(gomega.Equal(stuck.ID))
		})
	})

	ginkgo.Describe("StatisticsByStatus", func() {
		ginkgo.It("aggregates counts and totals per status", func() {
			gomega.Expect(repo.Create(newPayment(paymentdm.StatusCompleted, 500))).To(gomega.Succeed())
			gomega.Expect(repo.Create(newPayment(paymentdm.StatusCompleted, 700))).To(gomega.Succeed())
			gomega.Expect(repo.Create(newPayment(paymentdm.StatusFailed, 300))).To(gomega.Succeed())

			stats, err := repo.StatisticsByStatus()

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			byStatus := make(map[paymentdm.Status]paymentpkg.StatusStatistic)
			for _, stat := range stats {
				byStatus[stat.Status] = stat
			}
			gomega.Expect(byStatus[paymentdm.StatusCompleted].Count).To(gomega.Equal(int64(2)))
			gomega.Expect(byStatus[paymentdm.StatusCompleted].TotalAmount.Equal(decimal.NewFromInt(1200))).To(gomega.BeTrue())
			gomega.Expect(byStatus[paymentdm.StatusFailed].Count).To(gomega.Equal(int64(1)))
		})
	})
})
