package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/dispatcher"
	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/application/service"
	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	"github.com/memberhub/approval-workflow/internal/infrastructure/membership"
	"github.com/memberhub/approval-workflow/internal/infrastructure/messaging"
	"github.com/memberhub/approval-workflow/internal/infrastructure/metrics"
	"github.com/memberhub/approval-workflow/internal/infrastructure/security"
	"github.com/memberhub/approval-workflow/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *DatabaseBundle
	repositories *RepositoryBundle

	// Infrastructure - Supporting
	metrics   *metrics.Recorder
	cache     *CacheBundle
	publisher *messaging.KafkaPublisher
	creator   *membership.Service
	tokens    *security.TokenManager

	// Application
	dispatcher dispatcher.Dispatcher
	executor   workflow.Executor
	services   *ServiceBundle

	// Workers
	scheduler *worker.Scheduler
	workers   *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Entities   port.EntityRepository
	Audit      port.AuditRepository
	Payments   port.PaymentRepository
	Members    port.MemberRepository
	Statistics port.StatisticsRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Review         service.ReviewService
	Audit          service.AuditService
	Statistics     service.StatisticsService
	Submission     service.SubmissionService
	Payment        service.PaymentService
	Reconciliation service.ReconciliationService
	Birthday       service.BirthdayService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components:
// 1. Database and repositories
// 2. Metrics, cache, event publisher
// 3. Dispatcher, member creator and executor
// 4. Application services and event subscriptions
// 5. Scheduler, started only when enabled
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", c.initDatabase},
		{"infrastructure", c.initInfrastructure},
		{"workflow", c.initWorkflow},
		{"services", c.initServices},
		{"workers", c.initWorkers},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Container step initialized", zap.String("step", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %v", len(errs), errs[0])
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized so far
func (c *Container) teardown() []error {
	var errs []error
	record := func(name string, err error) {
		if err != nil {
			c.logger.Error("Failed to close component", zap.String("component", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}

	if c.cancel != nil {
		c.cancel()
	}
	if c.workers != nil && c.workers.IsRunning() {
		record("workers", c.workers.StopAll())
	}
	// drains async handlers before their sinks close
	if c.dispatcher != nil {
		record("dispatcher", c.dispatcher.Close())
		c.dispatcher = nil
	}
	if c.publisher != nil {
		record("kafka publisher", c.publisher.Close())
		c.publisher = nil
	}
	record("cache", c.cache.Close())
	c.cache = nil
	if c.database != nil {
		record("database", c.database.Conn.Close())
		c.database = nil
	}
	return errs
}

func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the database and reports the scheduler state
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.database == nil {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	} else if err := c.database.Conn.PingContext(ctx); err != nil {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
		status.Overall = false
	} else {
		status.Components["database"] = ComponentHealth{Healthy: true}
	}

	if c.config.Scheduler.Enabled {
		running := c.workers != nil && c.workers.IsRunning()
		status.Components["scheduler"] = ComponentHealth{Healthy: running}
		if !running {
			status.Overall = false
		}
	}

	status.Components["dispatcher"] = ComponentHealth{Healthy: c.dispatcher != nil}
	if c.dispatcher == nil {
		status.Overall = false
	}

	return status
}

func (c *Container) initDatabase() error {
	db, err := ProvideDatabase(c.ctx, c.config.Database, c.config.AutoMigrate, c.logger)
	if err != nil {
		return err
	}
	c.database = db

	repos, err := ProvideRepositories(db.Store, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initInfrastructure() error {
	c.metrics = ProvideMetrics(c.config.Metrics)

	cacheBundle, err := ProvideCache(c.ctx, c.config.Cache, c.logger)
	if err != nil {
		return err
	}
	c.cache = cacheBundle

	c.publisher = ProvidePublisher(c.config.Kafka, c.logger)
	c.tokens = security.NewTokenManager(c.config.Auth.JWTSecret, c.config.Auth.Issuer)
	return nil
}

func (c *Container) initWorkflow() error {
	c.dispatcher = ProvideDispatcher(c.logger)
	c.creator = ProvideMemberCreator(c.repositories, c.database.Store, c.config.Workflow, c.logger)

	executor, err := ProvideExecutor(&ExecutorDeps{
		Repos:      c.repositories,
		TxManager:  c.database.Store,
		Dispatcher: c.dispatcher,
		Creator:    c.creator,
		Metrics:    c.metricsRecorder(),
		TxTimeout:  c.config.Workflow.TxTimeout,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.executor = executor
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		Executor:   c.executor,
		Dispatcher: c.dispatcher,
		Creator:    c.creator,
		Cache:      c.cache.Cache,
		CacheTTL:   c.config.Cache.TTL,
		Renderer:   ProvideRenderer(c.config.Report, c.logger),
		Metrics:    c.metricsRecorder(),
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	SubscribeHandlers(c.dispatcher, services, c.metrics, c.publisher)
	c.logSubscriptions()
	return nil
}

// logSubscriptions records which consumers are attached to each event type
func (c *Container) logSubscriptions() {
	for _, typ := range event.AllTypes() {
		handlers := c.dispatcher.ListHandlers(typ)
		names := make([]string, 0, len(handlers))
		for _, h := range handlers {
			names = append(names, h.Name)
		}
		c.logger.Info("Event subscriptions",
			zap.String("event_type", typ.String()),
			zap.Strings("handlers", names))
	}
}

func (c *Container) initWorkers() error {
	scheduler, err := ProvideScheduler(c.config.Scheduler, c.services, c.logger)
	if err != nil {
		return err
	}
	c.scheduler = scheduler

	c.workers = worker.NewManager(c.logger.Named("workers"))
	if !c.config.Scheduler.Enabled {
		return nil
	}

	c.workers.Register(scheduler)
	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// metricsRecorder returns a nil interface when metrics are disabled
func (c *Container) metricsRecorder() port.MetricsRecorder {
	if c.metrics == nil {
		return nil
	}
	return c.metrics
}

// Accessors

func (c *Container) Config() *Config {
	return c.config
}

func (c *Container) Logger() *zap.Logger {
	return c.logger
}

func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

func (c *Container) Services() *ServiceBundle {
	return c.services
}

func (c *Container) Executor() workflow.Executor {
	return c.executor
}

func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

func (c *Container) Tokens() *security.TokenManager {
	return c.tokens
}

// Metrics returns nil when metrics are disabled
func (c *Container) Metrics() *metrics.Recorder {
	return c.metrics
}

func (c *Container) Scheduler() *worker.Scheduler {
	return c.scheduler
}
