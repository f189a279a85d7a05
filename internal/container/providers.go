package container

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/dispatcher"
	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/application/service"
	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	"github.com/memberhub/approval-workflow/internal/infrastructure/cache"
	"github.com/memberhub/approval-workflow/internal/infrastructure/membership"
	"github.com/memberhub/approval-workflow/internal/infrastructure/messaging"
	"github.com/memberhub/approval-workflow/internal/infrastructure/metrics"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/repository"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb"
	"github.com/memberhub/approval-workflow/internal/infrastructure/report"
	"github.com/memberhub/approval-workflow/internal/infrastructure/worker"
	"github.com/memberhub/approval-workflow/pkg/database"
	"github.com/memberhub/approval-workflow/pkg/utils"
)

// DatabaseBundle holds the raw connection and the transaction-aware wrapper
type DatabaseBundle struct {
	Conn  *database.DB
	Store *sqldb.DB
}

// CacheBundle holds the statistics cache and whatever must be closed with it
type CacheBundle struct {
	Cache  port.Cache
	closer io.Closer
}

// Close releases the cache backend
func (b *CacheBundle) Close() error {
	if b == nil || b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// ProvideDatabase opens the configured backend and applies the embedded
// migrations when autoMigrate is set
func ProvideDatabase(ctx context.Context, cfg database.Config, autoMigrate bool, logger *zap.Logger) (*DatabaseBundle, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		migrator := database.NewMigrator(conn, logger)
		if err := migrator.RunMigrations(ctx, database.EmbeddedMigrations()); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		Conn:  conn,
		Store: sqldb.NewDB(conn.DB, conn.Dialect, logger),
	}, nil
}

// ProvideRepositories creates every repository over one store
func ProvideRepositories(store *sqldb.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if store == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &RepositoryBundle{
		Entities:   repository.NewEntityRepository(store, logger),
		Audit:      repository.NewAuditRepository(store, logger),
		Payments:   repository.NewPaymentRepository(store, logger),
		Members:    repository.NewMemberRepository(store, logger),
		Statistics: repository.NewStatisticsRepository(store, logger),
	}, nil
}

// ProvideMetrics returns nil when metrics are disabled
func ProvideMetrics(cfg MetricsConfig) *metrics.Recorder {
	if !cfg.Enabled {
		return nil
	}
	return metrics.NewRecorder(cfg.RuntimeCollectors)
}

// ProvideCache builds the statistics cache. The "none" driver yields an empty
// bundle and statistics are always computed.
func ProvideCache(ctx context.Context, cfg CacheConfig, logger *zap.Logger) (*CacheBundle, error) {
	switch cfg.Driver {
	case "none":
		return &CacheBundle{}, nil

	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("Statistics cache backed by redis", zap.String("addr", cfg.Redis.Addr))
		c := cache.NewRedisCache(client, cfg.Redis.Namespace)
		return &CacheBundle{Cache: c, closer: c}, nil

	case "memory", "":
		c := cache.NewMemoryCache(cfg.SweepInterval)
		return &CacheBundle{Cache: c, closer: c}, nil
	}
	return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
}

// ProvidePublisher returns nil when kafka is disabled
func ProvidePublisher(cfg KafkaConfig, logger *zap.Logger) *messaging.KafkaPublisher {
	if !cfg.Enabled {
		return nil
	}
	writer := messaging.NewKafkaWriter(cfg.KafkaConfig)
	logger.Info("Publishing workflow events to kafka",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return messaging.NewKafkaPublisher(writer, cfg.Topic, logger)
}

// ProvideDispatcher creates the event dispatcher
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
	)
}

// ExecutorDeps holds what the action executor is built from
type ExecutorDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Creator    port.MemberCreator
	Metrics    port.MetricsRecorder
	TxTimeout  time.Duration
	Logger     *zap.Logger
}

// ProvideExecutor builds the single entry point for workflow mutations
func ProvideExecutor(deps *ExecutorDeps) (workflow.Executor, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil {
		return nil, fmt.Errorf("repositories and transaction manager are required")
	}

	opts := []workflow.ExecutorOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithMemberCreator(deps.Creator),
		workflow.WithLogger(deps.Logger.Named("executor")),
		workflow.WithTxTimeout(deps.TxTimeout),
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}

	return workflow.NewExecutor(
		deps.Repos.Entities,
		deps.Repos.Audit,
		deps.Repos.Payments,
		deps.TxManager,
		opts...,
	), nil
}

// ProvideMemberCreator builds the idempotent member creation service
func ProvideMemberCreator(repos *RepositoryBundle, tx port.TransactionManager, cfg WorkflowConfig, logger *zap.Logger) *membership.Service {
	return membership.NewService(
		repos.Members,
		repos.Entities,
		tx,
		logger.Named("membership"),
		membership.WithMembershipMonths(cfg.MembershipMonths),
	)
}

// ServiceDeps holds what the application services are built from
type ServiceDeps struct {
	Repos      *RepositoryBundle
	Executor   workflow.Executor
	Dispatcher dispatcher.Dispatcher
	Creator    port.MemberCreator
	Cache      port.Cache
	CacheTTL   time.Duration
	Renderer   port.StatisticsRenderer
	Metrics    port.MetricsRecorder
	Logger     *zap.Logger
}

// ProvideServices creates all application services
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.Executor == nil {
		return nil, fmt.Errorf("repositories and executor are required")
	}

	kv := utils.NewKVLogger(deps.Logger)
	repos := deps.Repos

	statsOpts := []service.StatisticsOption{service.WithStatisticsRenderer(deps.Renderer)}
	if deps.Cache != nil {
		statsOpts = append(statsOpts, service.WithStatisticsCache(deps.Cache, deps.CacheTTL))
	}
	if deps.Metrics != nil {
		statsOpts = append(statsOpts, service.WithStatisticsMetrics(deps.Metrics))
	}

	return &ServiceBundle{
		Review:         service.NewReviewService(deps.Executor, repos.Entities, kv.With("service", "review")),
		Audit:          service.NewAuditService(repos.Entities, repos.Audit, kv.With("service", "audit")),
		Statistics:     service.NewStatisticsService(repos.Statistics, kv.With("service", "statistics"), statsOpts...),
		Submission:     service.NewSubmissionService(repos.Entities, repos.Members, deps.Dispatcher, kv.With("service", "submission")),
		Payment:        service.NewPaymentService(repos.Entities, repos.Payments, deps.Dispatcher, kv.With("service", "payment")),
		Reconciliation: service.NewReconciliationService(repos.Entities, deps.Creator, deps.Dispatcher, deps.Metrics, kv.With("service", "reconciliation")),
		Birthday:       service.NewBirthdayService(repos.Members, deps.Dispatcher, kv.With("service", "birthday")),
	}, nil
}

// ProvideRenderer builds the statistics spreadsheet renderer
func ProvideRenderer(cfg ReportConfig, logger *zap.Logger) port.StatisticsRenderer {
	return report.NewWorkbookRenderer(cfg.Organisation, logger.Named("report"))
}

// SubscribeHandlers wires event consumers. Statistics invalidation runs for
// every event that changes counts; metrics and kafka see every event.
func SubscribeHandlers(d dispatcher.Dispatcher, services *ServiceBundle, recorder *metrics.Recorder, publisher *messaging.KafkaPublisher) {
	for _, t := range []event.Type{
		event.TypeEntitySubmitted,
		event.TypeStageChanged,
		event.TypeMemberCreated,
		event.TypePaymentVerified,
	} {
		d.SubscribeNamed(t, "statistics_invalidation", services.Statistics.HandleWorkflowEvent)
	}

	for _, t := range event.AllTypes() {
		if recorder != nil {
			d.SubscribeNamed(t, "metrics", recorder.HandleEvent)
		}
		if publisher != nil {
			d.SubscribeNamed(t, "kafka_publisher", publisher.Handle)
		}
	}
}

// ProvideScheduler registers the periodic jobs. An empty cron spec keeps a
// job available to RunOnce without scheduling it.
func ProvideScheduler(cfg SchedulerConfig, services *ServiceBundle, logger *zap.Logger) (*worker.Scheduler, error) {
	scheduler := worker.NewScheduler(logger.Named("scheduler"), cfg.JobTimeout)

	if err := scheduler.Schedule(cfg.BirthdayCron, worker.NewBirthdayJob(services.Birthday, time.Now)); err != nil {
		return nil, err
	}
	if err := scheduler.Schedule(cfg.ReconciliationCron, worker.NewReconciliationJob(services.Reconciliation, cfg.ReconciliationBatch)); err != nil {
		return nil, err
	}
	return scheduler, nil
}
