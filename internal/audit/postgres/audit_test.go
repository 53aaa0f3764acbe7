package postgres

import (
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/google/uuid"

	auditpkg "github.com/Kirachon/dsr-payment-service/internal/audit"
	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
)

func TestAuditRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Audit Repository Suite")
}

// RecordSQLite mirrors the payment_audit_logs table with text columns in
// place of jsonb and uuid for SQLite compatibility
type RecordSQLite struct {
	ID               string    `gorm:"column:audit_id;primaryKey"`
	PaymentID        *string   `gorm:"column:payment_id;index"`
	BatchID          *string   `gorm:"column:batch_id;index"`
	EventType        string    `gorm:"column:event_type;not null;index"`
	OldStatus        string    `gorm:"column:old_status"`
	NewStatus        string    `gorm:"column:new_status"`
	Description      string    `gorm:"column:description"`
	ProviderRequest  string    `gorm:"column:provider_request;type:text"`
	ProviderResponse string    `gorm:"column:provider_response;type:text"`
	ErrorCode        string    `gorm:"column:error_code"`
	ErrorMessage     string    `gorm:"column:error_message"`
	Actor            string    `gorm:"column:actor"`
	CorrelationID    string    `gorm:"column:correlation_id;index"`
	Metadata         string    `gorm:"column:metadata;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;index"`
}

func (RecordSQLite) TableName() string {
	return "payment_audit_logs"
}

var _ = ginkgo.Describe("AuditRepository", func() {
	var (
		db   *gorm.DB
		repo auditpkg.RepositoryAPI
	)

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		err = db.AutoMigrate(&RecordSQLite{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewAuditRepository(db)
	})

	ginkgo.Describe("Append", func() {
		ginkgo.It("assigns an ID and timestamp when missing", func() {
			paymentID := uuid.New()
			record := auditdm.PaymentCreated(paymentID, "tester")

			err := repo.Append(record)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(record.ID).ToNot(gomega.Equal(uuid.Nil))
			gomega.Expect(record.CreatedAt.IsZero()).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("GetByPaymentID", func() {
		ginkgo.It("returns records for the payment in append order", func() {
			paymentID := uuid.New()
			otherID := uuid.New()

			first := auditdm.PaymentCreated(paymentID, "tester")
			first.CreatedAt = time.Now().UTC().Add(-2 * time.Minute)
			second := auditdm.StatusChanged(paymentID, "PENDING", "PROCESSING", "tester", "corr-1")
			second.CreatedAt = time.Now().UTC().Add(-time.Minute)

			gomega.Expect(repo.Append(first)).To(gomega.Succeed())
			gomega.Expect(repo.Append(second)).To(gomega.Succeed())
			gomega.Expect(repo.Append(auditdm.PaymentCreated(otherID, "tester"))).To(gomega.Succeed())

			records, err := repo.GetByPaymentID(paymentID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(records).To(gomega.HaveLen(2))
			gomega.Expect(records[0].EventType).To(gomega.Equal(auditdm.EventPaymentCreated))
			gomega.Expect(records[1].EventType).To(gomega.Equal(auditdm.EventStatusChanged))
			gomega.Expect(records[1].OldStatus).To(gomega.Equal("PENDING"))
		})
	})

	ginkgo.Describe("GetByBatchID", func() {
		ginkgo.It("returns only records for the batch", func() {
			batchID := uuid.New()

			record := auditdm.BatchEvent(batchID, auditdm.EventBatchStarted, "PENDING", "PROCESSING", "Batch started", "tester")
			gomega.Expect(repo.Append(record)).To(gomega.Succeed())
			gomega.Expect(repo.Append(auditdm.BatchEvent(uuid.New(), auditdm.EventBatchCreated, "", "PENDING", "Batch created", "tester"))).To(gomega.Succeed())

			records, err := repo.GetByBatchID(batchID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(records).To(gomega.HaveLen(1))
			gomega.Expect(records[0].EventType).To(gomega.Equal(auditdm.EventBatchStarted))
		})
	})

	ginkgo.Describe("GetByCorrelationID", func() {
		ginkgo.It("reconstructs one attempt across event types", func() {
			paymentID := uuid.New()
			correlationID := uuid.NewString()

			events := []*auditdm.Record{
				auditdm.ProviderSelected(paymentID, "GCASH", correlationID),
				auditdm.ProviderRequest(paymentID, "GCASH", `{"amount":"500"}`, correlationID),
				auditdm.ProviderResponse(paymentID, "GCASH", `{"status":"COMPLETED"}`, correlationID),
			}
			base := time.Now().UTC().Add(-time.Minute)
			for i, ev := range events {
				ev.CreatedAt = base.Add(time.Duration(i) * time.Second)
				gomega.Expect(repo.Append(ev)).To(gomega.Succeed())
			}
			gomega.Expect(repo.Append(auditdm.ProviderSelected(paymentID, "BDO", uuid.NewString()))).To(gomega.Succeed())

			records, err := repo.GetByCorrelationID(correlationID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(records).To(gomega.HaveLen(3))
			gomega.Expect(records[0].EventType).To(gomega.Equal(auditdm.EventProviderSelected))
			gomega.Expect(records[2].EventType).To(gomega.Equal(auditdm.EventProviderResponse))
		})
	})
})
