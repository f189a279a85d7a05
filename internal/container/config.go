// Package container provides dependency injection and lifecycle management
// for the membership approval workflow.
package container

import (
	"fmt"
	"time"

	"github.com/memberhub/approval-workflow/internal/infrastructure/cache"
	"github.com/memberhub/approval-workflow/internal/infrastructure/messaging"
	"github.com/memberhub/approval-workflow/pkg/database"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database connection; migrations run on start when AutoMigrate is set
	Database    database.Config
	AutoMigrate bool

	Auth      AuthConfig
	Workflow  WorkflowConfig
	Cache     CacheConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
	Metrics   MetricsConfig
	Report    ReportConfig
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// WorkflowConfig tunes the executor and member creation.
type WorkflowConfig struct {
	// TxTimeout bounds a single transition transaction
	TxTimeout time.Duration

	// MembershipMonths is the validity of a newly created membership
	MembershipMonths int
}

// CacheConfig selects the statistics cache.
type CacheConfig struct {
	// Driver is memory, redis or none
	Driver        string
	TTL           time.Duration
	SweepInterval time.Duration
	Redis         cache.RedisConfig
}

// KafkaConfig controls event publishing.
type KafkaConfig struct {
	Enabled bool
	messaging.KafkaConfig
}

// SchedulerConfig holds the periodic job settings.
type SchedulerConfig struct {
	// Enabled starts the cron scheduler with the container
	Enabled             bool
	BirthdayCron        string
	ReconciliationCron  string
	ReconciliationBatch int
	JobTimeout          time.Duration
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled           bool
	RuntimeCollectors bool
}

// ReportConfig holds spreadsheet export settings.
type ReportConfig struct {
	Organisation string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: database.Config{
			Driver:          database.DialectSQLite,
			Path:            "data/workflow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		AutoMigrate: true,
		Auth: AuthConfig{
			Issuer: "memberhub",
		},
		Workflow: WorkflowConfig{
			TxTimeout:        5 * time.Second,
			MembershipMonths: 12,
		},
		Cache: CacheConfig{
			Driver:        "memory",
			TTL:           15 * time.Minute,
			SweepInterval: time.Minute,
		},
		Scheduler: SchedulerConfig{
			BirthdayCron:        "0 7 * * *",
			ReconciliationCron:  "*/15 * * * *",
			ReconciliationBatch: 100,
			JobTimeout:          5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:           true,
			RuntimeCollectors: true,
		},
		Report: ReportConfig{
			Organisation: "Membership",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if !c.Database.Driver.IsValid() {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Workflow.TxTimeout <= 0 {
		return fmt.Errorf("workflow.tx_timeout must be positive")
	}

	switch c.Cache.Driver {
	case "memory", "none":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Cache.Driver)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}

	return nil
}
