package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Report    ReportConfig    `mapstructure:"report"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the SQL backend. Path is used by sqlite, DSN by
// postgres and mysql.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// WorkflowConfig tunes the action executor and member creation
type WorkflowConfig struct {
	TxTimeout        time.Duration `mapstructure:"tx_timeout"`
	MembershipMonths int           `mapstructure:"membership_months"`
}

// CacheConfig selects the statistics cache backend: memory, redis or none
type CacheConfig struct {
	Driver         string        `mapstructure:"driver"`
	TTL            time.Duration `mapstructure:"ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	RedisNamespace string        `mapstructure:"redis_namespace"`
	RedisTimeout   time.Duration `mapstructure:"redis_timeout"`
}

// KafkaConfig controls publishing of workflow events
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SchedulerConfig holds cron specs for the periodic jobs. An empty spec
// leaves the job available to run-once only.
type SchedulerConfig struct {
	BirthdayCron        string        `mapstructure:"birthday_cron"`
	ReconciliationCron  string        `mapstructure:"reconciliation_cron"`
	ReconciliationBatch int           `mapstructure:"reconciliation_batch"`
	JobTimeout          time.Duration `mapstructure:"job_timeout"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RuntimeCollectors bool `mapstructure:"runtime_collectors"`
}

// ReportConfig holds spreadsheet export settings
type ReportConfig struct {
	Organisation string `mapstructure:"organisation"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from file and environment variables. With an
// empty configPath only defaults and the environment are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/workflow.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.issuer", "memberhub")

	v.SetDefault("workflow.tx_timeout", 5*time.Second)
	v.SetDefault("workflow.membership_months", 12)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", 15*time.Minute)
	v.SetDefault("cache.sweep_interval", time.Minute)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_namespace", "membership")
	v.SetDefault("cache.redis_timeout", 2*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "membership-workflow-events")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.write_timeout", 10*time.Second)

	v.SetDefault("scheduler.birthday_cron", "0 7 * * *")
	v.SetDefault("scheduler.reconciliation_cron", "*/15 * * * *")
	v.SetDefault("scheduler.reconciliation_batch", 100)
	v.SetDefault("scheduler.job_timeout", 5*time.Minute)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.runtime_collectors", true)

	v.SetDefault("report.organisation", "Membership")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the credentials and endpoints that deployments set
// through plain environment names
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"database.dsn":         "DATABASE_URL",
		"auth.jwt_secret":      "JWT_SECRET",
		"cache.redis_addr":     "REDIS_ADDR",
		"cache.redis_password": "REDIS_PASSWORD",
		"kafka.brokers":        "KAFKA_BROKERS",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" && c.Database.DSN == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres", "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or mysql, got %q", c.Database.Driver)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}

	if c.Workflow.TxTimeout <= 0 {
		return fmt.Errorf("workflow.tx_timeout must be positive")
	}
	if c.Workflow.MembershipMonths <= 0 {
		return fmt.Errorf("workflow.membership_months must be positive")
	}

	switch c.Cache.Driver {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("cache.driver must be memory, redis or none, got %q", c.Cache.Driver)
	}
	if c.Cache.Driver != "none" && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	return nil
}
