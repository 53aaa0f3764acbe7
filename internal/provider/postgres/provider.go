package postgres

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	providerdm "github.com/Kirachon/dsr-payment-service/internal/core/datamodel/provider"
	providerpkg "github.com/Kirachon/dsr-payment-service/internal/provider"
)

type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) providerpkg.ConfigStore {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) Create(cfg *providerdm.Config) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	return r.db.Create(cfg).Error
}

func (r *ConfigRepository) GetAll() ([]*providerdm.Config, error) {
	var configs []*providerdm.Config
	err := r.db.Order("fsp_code").Find(&configs).Error
	return configs, err
}

func (r *ConfigRepository) GetByCode(fspCode string) (*providerdm.Config, error) {
	var cfg providerdm.Config
	err := r.db.Where("fsp_code = ?", fspCode).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *ConfigRepository) UpdateHealth(fspCode string, status providerdm.HealthStatus, checkedAt time.Time) error {
	return r.db.Model(&providerdm.Config{}).
		Where("fsp_code = ?", fspCode).
		Updates(map[string]interface{}{
			"health_status":     status,
			"last_health_check": checkedAt,
			"updated_at":        time.Now(),
			"version":           gorm.Expr("version + 1"),
		}).Error
}
