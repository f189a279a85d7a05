package service

import (
	"context"
	"sync"
	"time"

	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

// Mock repositories
type mockEntityRepo struct {
	createFunc       func(ctx context.Context, e *entity.WorkflowEntity) error
	getByIDFunc      func(ctx context.Context, t entity.EntityType, id int64) (*entity.WorkflowEntity, error)
	listApprovedFunc func(ctx context.Context, limit int) ([]*entity.WorkflowEntity, error)
	lastListLimit    int
}

func (m *mockEntityRepo) Create(ctx context.Context, e *entity.WorkflowEntity) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, e)
	}
	e.ID = 1
	return nil
}

func (m *mockEntityRepo) GetByID(ctx context.Context, t entity.EntityType, id int64) (*entity.WorkflowEntity, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, t, id)
	}
	e := entity.NewSubmitted(t, entity.Applicant{FirstName: "Thandi", LastName: "Mokoena"})
	e.ID = id
	return e, nil
}

func (m *mockEntityRepo) GetForUpdate(ctx context.Context, t entity.EntityType, id int64) (*entity.WorkflowEntity, error) {
	return m.GetByID(ctx, t, id)
}

func (m *mockEntityRepo) UpdateWorkflow(ctx context.Context, e *entity.WorkflowEntity) error {
	return nil
}

func (m *mockEntityRepo) SetMemberID(ctx context.Context, applicationID, memberID int64) error {
	return nil
}

func (m *mockEntityRepo) ListApprovedWithoutMember(ctx context.Context, limit int) ([]*entity.WorkflowEntity, error) {
	m.lastListLimit = limit
	if m.listApprovedFunc != nil {
		return m.listApprovedFunc(ctx, limit)
	}
	return nil, nil
}

type mockAuditRepo struct {
	listFunc func(ctx context.Context, t entity.EntityType, id int64, afterID int64, limit int) ([]*entity.AuditEntry, error)
}

func (m *mockAuditRepo) Append(ctx context.Context, entry *entity.AuditEntry) error {
	return nil
}

func (m *mockAuditRepo) ListByEntity(ctx context.Context, t entity.EntityType, id int64, afterID int64, limit int) ([]*entity.AuditEntry, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, t, id, afterID, limit)
	}
	return nil, nil
}

type mockPaymentRepo struct {
	createFunc       func(ctx context.Context, p *entity.PaymentTransaction) error
	getByIDFunc      func(ctx context.Context, id int64) (*entity.PaymentTransaction, error)
	markVerifiedFunc func(ctx context.Context, id, verifierID int64, notes string, at time.Time) (bool, error)
	created          []*entity.PaymentTransaction
}

func (m *mockPaymentRepo) Create(ctx context.Context, p *entity.PaymentTransaction) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, p)
	}
	p.ID = int64(len(m.created) + 1)
	m.created = append(m.created, p)
	return nil
}

func (m *mockPaymentRepo) GetByID(ctx context.Context, id int64) (*entity.PaymentTransaction, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockPaymentRepo) ListByEntity(ctx context.Context, t entity.EntityType, id int64) ([]*entity.PaymentTransaction, error) {
	return m.created, nil
}

func (m *mockPaymentRepo) CountCompleted(ctx context.Context, t entity.EntityType, id int64) (int, int64, error) {
	return 0, 0, nil
}

func (m *mockPaymentRepo) MarkVerified(ctx context.Context, id, verifierID int64, notes string, at time.Time) (bool, error) {
	if m.markVerifiedFunc != nil {
		return m.markVerifiedFunc(ctx, id, verifierID, notes, at)
	}
	return true, nil
}

type mockMemberRepo struct {
	getByIDFunc  func(ctx context.Context, id int64) (*entity.Member, error)
	birthdayFunc func(ctx context.Context, month time.Month, day int) ([]*entity.Member, error)
}

func (m *mockMemberRepo) Create(ctx context.Context, member *entity.Member) error {
	return nil
}

func (m *mockMemberRepo) GetByID(ctx context.Context, id int64) (*entity.Member, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockMemberRepo) GetByApplicationID(ctx context.Context, applicationID int64) (*entity.Member, error) {
	return nil, nil
}

func (m *mockMemberRepo) ListByBirthday(ctx context.Context, month time.Month, day int) ([]*entity.Member, error) {
	if m.birthdayFunc != nil {
		return m.birthdayFunc(ctx, month, day)
	}
	return nil, nil
}

type mockStatisticsRepo struct {
	mu    sync.Mutex
	calls int
	stats *entity.WorkflowStatistics
	err   error
}

func (m *mockStatisticsRepo) Aggregate(ctx context.Context, filter entity.StatisticsFilter) (*entity.WorkflowStatistics, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := *m.stats
	s.EntityType = filter.EntityType
	return &s, nil
}

func (m *mockStatisticsRepo) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, prefix)
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.data, k)
		}
	}
	return nil
}

type mockExecutor struct {
	executeFunc func(ctx context.Context, cmd workflow.Command) (*workflow.Result, error)
	commands    []workflow.Command
}

func (m *mockExecutor) Execute(ctx context.Context, cmd workflow.Command) (*workflow.Result, error) {
	m.commands = append(m.commands, cmd)
	if m.executeFunc != nil {
		return m.executeFunc(ctx, cmd)
	}
	return &workflow.Result{Entity: &entity.WorkflowEntity{ID: cmd.EntityID, Type: cmd.EntityType}}, nil
}

type mockMemberCreator struct {
	createFunc func(ctx context.Context, app *entity.WorkflowEntity) (int64, error)
	calls      []int64
}

func (m *mockMemberCreator) CreateMember(ctx context.Context, app *entity.WorkflowEntity) (int64, error) {
	m.calls = append(m.calls, app.ID)
	if m.createFunc != nil {
		return m.createFunc(ctx, app)
	}
	return 9000 + app.ID, nil
}

type mockMetrics struct {
	memberFailures int
	cacheResults   []string
}

func (m *mockMetrics) RecordTransition(entityType entity.EntityType, action, outcome string) {}

func (m *mockMetrics) RecordMemberCreationFailure() {
	m.memberFailures++
}

func (m *mockMetrics) RecordStatisticsCache(result string) {
	m.cacheResults = append(m.cacheResults, result)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func actor(id int64, role domainwf.Role) workflow.Actor {
	return workflow.Actor{UserID: id, Role: role}
}

func wantKind(err error, kind domainwf.Kind) bool {
	return domainwf.KindOf(err) == kind
}
