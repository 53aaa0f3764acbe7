package postgres

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	paymentdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
	paymentpkg "github.com/Kirachon/dsr-payment-service/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *paymentdm.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id uuid.UUID) (*paymentdm.Payment, error) {
	var p paymentdm.Payment
	err := r.db.Where("payment_id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByInternalReference(reference string) (*paymentdm.Payment, error) {
	var p paymentdm.Payment
	err := r.db.Where("internal_reference_number = ?", reference).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByBatchID(batchID uuid.UUID) ([]*paymentdm.Payment, error) {
	var payments []*paymentdm.Payment
	err := r.db.Where("batch_id = ?", batchID).Order("created_at").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) Search(filter paymentpkg.SearchFilter) ([]*paymentdm.Payment, error) {
	query := r.db.Model(&paymentdm.Payment{})
	if filter.HouseholdID != nil {
		query = query.Where("household_id = ?", *filter.HouseholdID)
	}
	if filter.ProgramID != nil {
		query = query.Where("program_id = ?", *filter.ProgramID)
	}
	if filter.BatchID != nil {
		query = query.Where("batch_id = ?", *filter.BatchID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FSPCode != "" {
		query = query.Where("fsp_code = ?", filter.FSPCode)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var payments []*paymentdm.Payment
	err := query.Order("created_at DESC").Find(&payments).Error
	return payments, err
}

// Update writes the full row guarded by the version the caller read. A
// zero-row result means another writer bumped the version first.
func (r *PaymentRepository) Update(p *paymentdm.Payment) error {
	currentVersion := p.Version
	p.Version = currentVersion + 1
	p.UpdatedAt = time.Now()

	result := r.db.Model(&paymentdm.Payment{}).
		Where("payment_id = ? AND version = ?", p.ID, currentVersion).
		Select("*").
		Omit("payment_id", "created_at", "created_by").
		Updates(p)
	if result.Error != nil {
		p.Version = currentVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		p.Version = currentVersion
		return internal.ErrVersionConflict
	}
	return nil
}

func (r *PaymentRepository) GetScheduled(before time.Time, limit int) ([]*paymentdm.Payment, error) {
	var payments []*paymentdm.Payment
	err := r.db.Where("status = ? AND scheduled_date <= ?", paymentdm.StatusPending, before).
		Order("scheduled_date").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) GetFailedForRetry(attemptedBefore time.Time, limit int) ([]*paymentdm.Payment, error) {
	var payments []*paymentdm.Payment
	err := r.db.Where("status = ? AND retry_count < max_retry_count AND updated_at <= ?",
		paymentdm.StatusFailed, attemptedBefore).
		Order("updated_at").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) GetStuckProcessing(updatedBefore time.Time, limit int) ([]*paymentdm.Payment, error) {
	var payments []*paymentdm.Payment
	err := r.db.Where("status = ? AND updated_at <= ?", paymentdm.StatusProcessing, updatedBefore).
		Order("updated_at").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) CountByStatus(status paymentdm.Status) (int64, error) {
	var count int64
	err := r.db.Model(&paymentdm.Payment{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func (r *PaymentRepository) StatisticsByStatus() ([]paymentpkg.StatusStatistic, error) {
	var stats []paymentpkg.StatusStatistic
	err := r.db.Model(&paymentdm.Payment{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount").
		Group("status").
		Order("status").
		Scan(&stats).Error
	return stats, err
}

func (r *PaymentRepository) StatisticsByFSP() ([]paymentpkg.FSPStatistic, error) {
	var stats []paymentpkg.FSPStatistic
	err := r.db.Model(&paymentdm.Payment{}).
		Select("fsp_code, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total_amount").
		Where("fsp_code <> ''").
		Group("fsp_code").
		Order("fsp_code").
		Scan(&stats).Error
	return stats, err
}
