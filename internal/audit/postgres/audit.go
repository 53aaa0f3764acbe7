package postgres

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	auditpkg "github.com/Kirachon/dsr-payment-service/internal/audit"
	auditdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/audit"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) auditpkg.RepositoryAPI {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(record *auditdm.Record) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return r.db.Create(record).Error
}

func (r *AuditRepository) GetByPaymentID(paymentID uuid.UUID) ([]*auditdm.Record, error) {
	var records []*auditdm.Record
	err := r.db.Where("payment_id = ?", paymentID).Order("created_at").Find(&records).Error
	return records, err
}

func (r *AuditRepository) GetByBatchID(batchID uuid.UUID) ([]*auditdm.Record, error) {
	var records []*auditdm.Record
	err := r.db.Where("batch_id = ?", batchID).Order("created_at").Find(&records).Error
	return records, err
}

func (r *AuditRepository) GetByCorrelationID(correlationID string) ([]*auditdm.Record, error) {
	var records []*auditdm.Record
	err := r.db.Where("correlation_id = ?", correlationID).Order("created_at").Find(&records).Error
	return records, err
}
