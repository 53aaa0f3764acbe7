package provider

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kirachon/dsr-payment-service/internal/core/datamodel/payment"
)

type HealthStatus string

const (
	HealthUnknown   HealthStatus = "UNKNOWN"
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

type FeeType string

const (
	FeeTypeFixed      FeeType = "FIXED"
	FeeTypePercentage FeeType = "PERCENTAGE"
)

// Config describes one FSP integration. Health fields are written only by
// the probe loop and the submission-failure fallback.
type Config struct {
	ID                  uuid.UUID        `gorm:"column:config_id;type:uuid;primaryKey"`
	FSPCode             string           `gorm:"column:fsp_code;size:20;not null;uniqueIndex"`
	FSPName             string           `gorm:"column:fsp_name;size:100;not null"`
	SupportedMethods    string           `gorm:"column:supported_methods;size:200;not null"`
	SupportedCurrencies string           `gorm:"column:supported_currencies;size:100;default:PHP"`
	MinAmount           *decimal.Decimal `gorm:"column:min_amount;type:numeric(15,2)"`
	MaxAmount           *decimal.Decimal `gorm:"column:max_amount;type:numeric(15,2)"`
	TransactionFee      *decimal.Decimal `gorm:"column:transaction_fee;type:numeric(10,4)"`
	FeeType             FeeType          `gorm:"column:fee_type;size:20;default:FIXED"`
	Active              bool             `gorm:"column:is_active;not null;default:true"`
	Sandbox             bool             `gorm:"column:is_sandbox;not null;default:false"`
	HealthStatus        HealthStatus     `gorm:"column:health_status;size:20;default:UNKNOWN"`
	LastHealthCheck     *time.Time       `gorm:"column:last_health_check"`
	CreatedBy           string           `gorm:"column:created_by;size:100;not null"`
	UpdatedBy           string           `gorm:"column:updated_by;size:100"`
	CreatedAt           time.Time        `gorm:"column:created_at;not null"`
	UpdatedAt           time.Time        `gorm:"column:updated_at"`
	Version             int64            `gorm:"column:version;not null;default:0"`
}

func (Config) TableName() string {
	return "fsp_configurations"
}

func (c *Config) IsHealthy() bool {
	return c.HealthStatus == HealthHealthy
}

func (c *Config) IsOperational() bool {
	return c.Active && c.IsHealthy()
}

// Methods parses the comma-separated supported_methods column.
func (c *Config) Methods() []payment.Method {
	parts := strings.Split(c.SupportedMethods, ",")
	methods := make([]payment.Method, 0, len(parts))
	for _, part := range parts {
		m := payment.Method(strings.TrimSpace(part))
		if m.Valid() {
			methods = append(methods, m)
		}
	}
	return methods
}

func (c *Config) SupportsMethod(method payment.Method) bool {
	for _, m := range c.Methods() {
		if m == method {
			return true
		}
	}
	return false
}

func (c *Config) SupportsAmount(amount decimal.Decimal) bool {
	if c.MinAmount != nil && amount.LessThan(*c.MinAmount) {
		return false
	}
	if c.MaxAmount != nil && amount.GreaterThan(*c.MaxAmount) {
		return false
	}
	return true
}

func (c *Config) SupportsCurrency(currency string) bool {
	return c.SupportedCurrencies != "" &&
		strings.Contains(c.SupportedCurrencies, currency)
}

func (c *Config) CalculateFee(amount decimal.Decimal) decimal.Decimal {
	if c.TransactionFee == nil {
		return decimal.Zero
	}
	if c.FeeType == FeeTypePercentage {
		return amount.Mul(*c.TransactionFee).Div(decimal.NewFromInt(100))
	}
	return *c.TransactionFee
}
