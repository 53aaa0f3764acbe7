package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Env            string               `mapstructure:"env"`
	Server         ServerConfig         `mapstructure:"http_server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	Dispatch       DispatchConfig       `mapstructure:"dispatch"`
	Providers      ProvidersConfig      `mapstructure:"providers"`
	RetrySweep     RetrySweepConfig     `mapstructure:"retry_sweep"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

// DispatchConfig bounds in-flight submissions when a batch is processing.
type DispatchConfig struct {
	MaxWorkers   int `mapstructure:"max_workers"`
	JobQueueSize int `mapstructure:"job_queue_size"`
	// BatchFailureThreshold is the fraction of failed payments at or above
	// which a finished batch is marked FAILED instead of COMPLETED.
	BatchFailureThreshold float64       `mapstructure:"batch_failure_threshold"`
	SubmitTimeout         time.Duration `mapstructure:"submit_timeout"`
}

type ProvidersConfig struct {
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	ProbeTimeout        time.Duration `mapstructure:"probe_timeout"`
}

type RetrySweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// Backoff is the minimum age of the last attempt before a failed payment
	// becomes eligible for automatic retry.
	Backoff time.Duration `mapstructure:"backoff"`
	Limit   int           `mapstructure:"limit"`
}

type ReconciliationConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// StuckAfter is how long a payment may sit in PROCESSING without an
	// update before the sweep re-queries the provider.
	StuckAfter time.Duration `mapstructure:"stuck_after"`
	Limit      int           `mapstructure:"limit"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- DEFAULTS -----------------

func (c *DispatchConfig) ApplyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 10
	}
	if c.JobQueueSize <= 0 {
		c.JobQueueSize = 100
	}
	if c.BatchFailureThreshold <= 0 || c.BatchFailureThreshold > 1 {
		c.BatchFailureThreshold = 1.0
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
	}
}

func (c *ProvidersConfig) ApplyDefaults() {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = time.Minute
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
}

func (c *RetrySweepConfig) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.Backoff <= 0 {
		c.Backoff = 30 * time.Minute
	}
	if c.Limit <= 0 {
		c.Limit = 100
	}
}

func (c *ReconciliationConfig) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = 24 * time.Hour
	}
	if c.Limit <= 0 {
		c.Limit = 100
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Dispatch.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("dispatch config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	c.Dispatch.ApplyDefaults()
	c.Providers.ApplyDefaults()
	c.RetrySweep.ApplyDefaults()
	c.Reconciliation.ApplyDefaults()

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *DispatchConfig) Validate() error {
	if c.BatchFailureThreshold < 0 || c.BatchFailureThreshold > 1 {
		return errors.New("batch_failure_threshold must be between 0 and 1")
	}
	return nil
}
