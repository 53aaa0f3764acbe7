package postgres

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	internal "github.com/Kirachon/dsr-payment-service/internal"
	batchpkg "github.com/Kirachon/dsr-payment-service/internal/batch"
	batchdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/batch"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) batchpkg.RepositoryAPI {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(b *batchdm.Batch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return r.db.Create(b).Error
}

func (r *BatchRepository) GetByID(id uuid.UUID) (*batchdm.Batch, error) {
	var b batchdm.Batch
	err := r.db.Where("batch_id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrBatchNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *BatchRepository) GetByBatchNumber(batchNumber string) (*batchdm.Batch, error) {
	var b batchdm.Batch
	err := r.db.Where("batch_number = ?", batchNumber).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrBatchNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *BatchRepository) Search(filter batchpkg.SearchFilter) ([]*batchdm.Batch, error) {
	query := r.db.Model(&batchdm.Batch{})
	if filter.ProgramID != nil {
		query = query.Where("program_id = ?", *filter.ProgramID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
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

	var batches []*batchdm.Batch
	err := query.Order("created_at DESC").Find(&batches).Error
	return batches, err
}

// Update writes the full row guarded by the version the caller read.
func (r *BatchRepository) Update(b *batchdm.Batch) error {
	currentVersion := b.Version
	b.Version = currentVersion + 1
	b.UpdatedAt = time.Now()

	result := r.db.Model(&batchdm.Batch{}).
		Where("batch_id = ? AND version = ?", b.ID, currentVersion).
		Select("*").
		Omit("batch_id", "created_at", "created_by").
		Updates(b)
	if result.Error != nil {
		b.Version = currentVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		b.Version = currentVersion
		return internal.ErrVersionConflict
	}
	return nil
}

func (r *BatchRepository) GetScheduled(before time.Time, limit int) ([]*batchdm.Batch, error) {
	var batches []*batchdm.Batch
	err := r.db.Where("status = ? AND scheduled_date <= ?", batchdm.StatusPending, before).
		Order("scheduled_date").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}
