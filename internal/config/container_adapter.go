package config

import (
	"github.com/memberhub/approval-workflow/internal/container"
	"github.com/memberhub/approval-workflow/internal/infrastructure/cache"
	"github.com/memberhub/approval-workflow/internal/infrastructure/messaging"
	"github.com/memberhub/approval-workflow/pkg/database"
)

// ToContainerConfig converts the file-based Config into the container's
// configuration, translating string settings into their typed forms.
// runScheduler decides whether the container starts the cron scheduler.
func (c *Config) ToContainerConfig(runScheduler bool) *container.Config {
	return &container.Config{
		Database: database.Config{
			Driver:          database.Dialect(c.Database.Driver),
			DSN:             c.Database.DSN,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		AutoMigrate: c.Database.AutoMigrate,
		Auth: container.AuthConfig{
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
		},
		Workflow: container.WorkflowConfig{
			TxTimeout:        c.Workflow.TxTimeout,
			MembershipMonths: c.Workflow.MembershipMonths,
		},
		Cache: container.CacheConfig{
			Driver:        c.Cache.Driver,
			TTL:           c.Cache.TTL,
			SweepInterval: c.Cache.SweepInterval,
			Redis: cache.RedisConfig{
				Addr:      c.Cache.RedisAddr,
				Password:  c.Cache.RedisPassword,
				DB:        c.Cache.RedisDB,
				Namespace: c.Cache.RedisNamespace,
				Timeout:   c.Cache.RedisTimeout,
			},
		},
		Kafka: container.KafkaConfig{
			Enabled: c.Kafka.Enabled,
			KafkaConfig: messaging.KafkaConfig{
				Brokers:      c.Kafka.Brokers,
				Topic:        c.Kafka.Topic,
				MaxAttempts:  c.Kafka.MaxAttempts,
				WriteTimeout: c.Kafka.WriteTimeout,
			},
		},
		Scheduler: container.SchedulerConfig{
			Enabled:             runScheduler,
			BirthdayCron:        c.Scheduler.BirthdayCron,
			ReconciliationCron:  c.Scheduler.ReconciliationCron,
			ReconciliationBatch: c.Scheduler.ReconciliationBatch,
			JobTimeout:          c.Scheduler.JobTimeout,
		},
		Metrics: container.MetricsConfig{
			Enabled:           c.Metrics.Enabled,
			RuntimeCollectors: c.Metrics.RuntimeCollectors,
		},
		Report: container.ReportConfig{
			Organisation: c.Report.Organisation,
		},
	}
}
