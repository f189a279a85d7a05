package workflow

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/dispatcher"
	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/repository"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb/sqldbtest"
)

var (
	reviewerA = Actor{UserID: 101, Role: domainwf.RoleFinancialReviewer}
	approverA = Actor{UserID: 101, Role: domainwf.RoleMembershipApprover}
	approverB = Actor{UserID: 202, Role: domainwf.RoleMembershipApprover}
)

type fakeMemberCreator struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (f *fakeMemberCreator) CreateMember(ctx context.Context, app *entity.WorkflowEntity) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, app.ID)
	if f.err != nil {
		return 0, f.err
	}
	return 5000 + app.ID, nil
}

type recordingMetrics struct {
	mu        sync.Mutex
	outcomes  []string
	memberErr int
}

func (m *recordingMetrics) RecordTransition(entityType entity.EntityType, action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, action+":"+outcome)
}

func (m *recordingMetrics) RecordMemberCreationFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberErr++
}

func (m *recordingMetrics) RecordStatisticsCache(result string) {}

type testEnv struct {
	executor Executor
	tx       port.TransactionManager
	entities port.EntityRepository
	audit    port.AuditRepository
	payments port.PaymentRepository
	members  *fakeMemberCreator
	metrics  *recordingMetrics
	memberID int64
}

func setupExecutor(t *testing.T, opts ...ExecutorOption) *testEnv {
	t.Helper()
	db := sqldbtest.Open(t)
	logger := zap.NewNop()

	env := &testEnv{
		tx:       db,
		entities: repository.NewEntityRepository(db, logger),
		audit:    repository.NewAuditRepository(db, logger),
		payments: repository.NewPaymentRepository(db, logger),
		members:  &fakeMemberCreator{},
		metrics:  &recordingMetrics{},
	}
	existing := &entity.Member{FirstName: "Existing", MembershipExpiry: time.Now().AddDate(0, 1, 0)}
	require.NoError(t, repository.NewMemberRepository(db, logger).Create(context.Background(), existing))
	env.memberID = existing.ID

	opts = append([]ExecutorOption{WithMemberCreator(env.members), WithMetrics(env.metrics)}, opts...)
	env.executor = NewExecutor(env.entities, env.audit, env.payments, db, opts...)
	return env
}

func (env *testEnv) submit(t *testing.T, typ entity.EntityType) *entity.WorkflowEntity {
	t.Helper()
	e := entity.NewSubmitted(typ, entity.Applicant{FirstName: "Lerato", LastName: "Dlamini", IDNumber: "8801015800087"})
	if typ == entity.EntityRenewal {
		e.MemberID = &env.memberID
		e.RenewalPeriodMonths = 12
	}
	require.NoError(t, env.entities.Create(context.Background(), e))
	return e
}

func (env *testEnv) pay(t *testing.T, e *entity.WorkflowEntity, status entity.PaymentStatus) {
	t.Helper()
	p := &entity.PaymentTransaction{Amount: decimal.NewFromInt(200), Method: entity.MethodCash, Status: status}
	p.SetEntity(e.Type, e.ID)
	require.NoError(t, env.payments.Create(context.Background(), p))
}

func (env *testEnv) run(e *entity.WorkflowEntity, action domainwf.Action, actor Actor, payload Payload) (*Result, error) {
	return env.executor.Execute(context.Background(), Command{
		EntityType: e.Type,
		EntityID:   e.ID,
		Action:     action,
		Actor:      actor,
		Payload:    payload,
	})
}

func (env *testEnv) stage(t *testing.T, e *entity.WorkflowEntity) domainwf.Stage {
	t.Helper()
	got, err := env.entities.GetByID(context.Background(), e.Type, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got.Stage
}

func (env *testEnv) trail(t *testing.T, e *entity.WorkflowEntity) []*entity.AuditEntry {
	t.Helper()
	entries, err := env.audit.ListByEntity(context.Background(), e.Type, e.ID, 0, 100)
	require.NoError(t, err)
	return entries
}

func assertKind(t *testing.T, err error, kind domainwf.Kind) *domainwf.Error {
	t.Helper()
	require.Error(t, err)
	we, ok := domainwf.AsError(err)
	require.True(t, ok, "expected workflow error, got %T: %v", err, err)
	assert.Equal(t, kind, we.Kind, we.Error())
	return we
}

func TestExecutor_Entity42Scenario(t *testing.T) {
	env := setupExecutor(t)

	var app *entity.WorkflowEntity
	for app == nil || app.ID < 42 {
		app = env.submit(t, entity.EntityApplication)
	}
	require.Equal(t, int64(42), app.ID)
	env.pay(t, app, entity.PaymentCompleted)

	res, err := env.run(app, domainwf.ActionStartFinancialReview, reviewerA, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StageFinancialReview, res.Entity.Stage)
	assert.Equal(t, entity.AuditFinancialReviewStart, res.AuditEntry.ActionType)

	res, err = env.run(app, domainwf.ActionApprovePayment, reviewerA, Payload{Notes: "verified"})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StagePaymentApproved, res.Entity.Stage)
	assert.Equal(t, "verified", res.Entity.FinancialAdminNotes)
	require.Len(t, env.trail(t, app), 2)

	_, err = env.run(app, domainwf.ActionStartFinalReview, approverA, Payload{})
	we := assertKind(t, err, domainwf.KindForbidden)
	assert.ErrorIs(t, err, domainwf.ErrForbidden)
	assert.Equal(t, domainwf.StagePaymentApproved, we.CurrentStage)
	assert.Equal(t, domainwf.StagePaymentApproved, env.stage(t, app))
	assert.Len(t, env.trail(t, app), 2, "forbidden attempt must not write an audit entry")

	res, err = env.run(app, domainwf.ActionStartFinalReview, approverB, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StageFinalReview, res.Entity.Stage)
	assert.Equal(t, domainwf.StageFinalReview, env.stage(t, app))

	trail := env.trail(t, app)
	require.Len(t, trail, 3)
	assert.Equal(t, entity.AuditFinancialReviewStart, trail[0].ActionType)
	assert.Equal(t, entity.AuditFinancialApprove, trail[1].ActionType)
	assert.Equal(t, entity.AuditFinalReviewStart, trail[2].ActionType)
	assert.Equal(t, domainwf.RoleMembershipApprover, trail[2].UserRole)
	assert.Equal(t, int64(202), trail[2].UserID)
}

func TestExecutor_RoundTrip(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)
	env.pay(t, app, entity.PaymentCompleted)

	for _, step := range []struct {
		action domainwf.Action
		actor  Actor
	}{
		{domainwf.ActionStartFinancialReview, reviewerA},
		{domainwf.ActionApprovePayment, reviewerA},
		{domainwf.ActionStartFinalReview, approverB},
		{domainwf.ActionApproveMembership, approverB},
	} {
		_, err := env.run(app, step.action, step.actor, Payload{Notes: "ok"})
		require.NoError(t, err, step.action)
	}

	got, err := env.entities.GetByID(context.Background(), app.Type, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StageApproved, got.Stage)
	assert.Equal(t, entity.FinancialApproved, got.FinancialStatus)
	assert.Equal(t, entity.StatusApproved, got.Status)
	assert.Equal(t, int64(101), *got.FinancialReviewedBy)
	assert.Equal(t, int64(202), *got.FinalReviewedBy)
	assert.NotNil(t, got.FinalReviewedAt)

	trail := env.trail(t, app)
	require.Len(t, trail, 4)
	var decisions []entity.AuditActionType
	for i, entry := range trail {
		if i > 0 {
			assert.Greater(t, entry.ID, trail[i-1].ID)
			assert.False(t, entry.CreatedAt.Before(trail[i-1].CreatedAt))
			assert.Equal(t, trail[i-1].NewWorkflowStage, entry.PreviousWorkflowStage)
		}
		if entry.ActionType == entity.AuditFinancialApprove || entry.ActionType == entity.AuditFinalApprove {
			decisions = append(decisions, entry.ActionType)
		}
	}
	assert.Equal(t, []entity.AuditActionType{entity.AuditFinancialApprove, entity.AuditFinalApprove}, decisions)
	assert.Equal(t, []int64{app.ID}, env.members.calls)
}

func TestExecutor_ApprovePaymentRequiresCompletedPayment(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)
	env.pay(t, app, entity.PaymentPending)
	env.pay(t, app, entity.PaymentFailed)

	_, err := env.run(app, domainwf.ActionStartFinancialReview, reviewerA, Payload{})
	require.NoError(t, err)

	_, err = env.run(app, domainwf.ActionApprovePayment, reviewerA, Payload{})
	assertKind(t, err, domainwf.KindValidation)
	assert.ErrorIs(t, err, domainwf.ErrValidation)
	assert.Equal(t, domainwf.StageFinancialReview, env.stage(t, app))
	assert.Len(t, env.trail(t, app), 1)
}

func TestExecutor_RejectionRequiresReason(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)

	_, err := env.run(app, domainwf.ActionStartFinancialReview, reviewerA, Payload{})
	require.NoError(t, err)

	_, err = env.run(app, domainwf.ActionRejectPayment, reviewerA, Payload{RejectionReason: "   "})
	assertKind(t, err, domainwf.KindValidation)

	res, err := env.run(app, domainwf.ActionRejectPayment, reviewerA, Payload{RejectionReason: "proof of payment is illegible"})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StageRejected, res.Entity.Stage)
	assert.Equal(t, entity.FinancialRejected, res.Entity.FinancialStatus)
	assert.Equal(t, entity.StatusRejected, res.Entity.Status)
	assert.Equal(t, "proof of payment is illegible", res.Entity.FinancialRejectionReason)
	assert.Equal(t, entity.AuditFinancialReject, res.AuditEntry.ActionType)

	_, err = env.run(app, domainwf.ActionApprovePayment, reviewerA, Payload{})
	we := assertKind(t, err, domainwf.KindInvalidTransition)
	assert.Equal(t, domainwf.StageRejected, we.CurrentStage)
}

func TestExecutor_FinalRejection(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)
	env.pay(t, app, entity.PaymentCompleted)

	for _, step := range []struct {
		action domainwf.Action
		actor  Actor
	}{
		{domainwf.ActionStartFinancialReview, reviewerA},
		{domainwf.ActionApprovePayment, reviewerA},
		{domainwf.ActionStartFinalReview, approverB},
	} {
		_, err := env.run(app, step.action, step.actor, Payload{})
		require.NoError(t, err)
	}

	res, err := env.run(app, domainwf.ActionRejectMembership, approverB, Payload{RejectionReason: "not resident in ward"})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StageRejected, res.Entity.Stage)
	assert.Equal(t, entity.FinancialApproved, res.Entity.FinancialStatus)
	assert.Equal(t, entity.StatusRejected, res.Entity.Status)
	assert.Equal(t, "not resident in ward", res.Entity.RejectionReason)
	assert.Empty(t, env.members.calls)
}

func TestExecutor_ErrorKinds(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)

	t.Run("illegal action carries current stage", func(t *testing.T) {
		_, err := env.run(app, domainwf.ActionApproveMembership, approverB, Payload{})
		we := assertKind(t, err, domainwf.KindInvalidTransition)
		assert.Equal(t, domainwf.StageSubmitted, we.CurrentStage)
	})

	t.Run("wrong role", func(t *testing.T) {
		_, err := env.run(app, domainwf.ActionStartFinancialReview, approverB, Payload{})
		assertKind(t, err, domainwf.KindForbidden)
		assert.Equal(t, domainwf.StageSubmitted, env.stage(t, app))
	})

	t.Run("missing entity", func(t *testing.T) {
		_, err := env.executor.Execute(context.Background(), Command{
			EntityType: entity.EntityApplication, EntityID: 9999,
			Action: domainwf.ActionStartFinancialReview, Actor: reviewerA,
		})
		assertKind(t, err, domainwf.KindNotFound)
		assert.ErrorIs(t, err, domainwf.ErrNotFound)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := env.run(app, domainwf.Action("escalate"), reviewerA, Payload{})
		assertKind(t, err, domainwf.KindValidation)
	})

	t.Run("reviewer already assigned", func(t *testing.T) {
		reviewer := int64(77)
		app2 := env.submit(t, entity.EntityApplication)
		app2.FinancialReviewedBy = &reviewer
		require.NoError(t, env.entities.UpdateWorkflow(context.Background(), app2))

		_, err := env.run(app2, domainwf.ActionStartFinancialReview, reviewerA, Payload{})
		assertKind(t, err, domainwf.KindInvalidTransition)
	})

	assert.Len(t, env.trail(t, app), 0)
}

func TestExecutor_RenewalTrack(t *testing.T) {
	env := setupExecutor(t)
	renewal := env.submit(t, entity.EntityRenewal)
	env.pay(t, renewal, entity.PaymentCompleted)

	_, err := env.run(renewal, domainwf.ActionStartFinancialReview, reviewerA, Payload{})
	require.NoError(t, err)
	_, err = env.run(renewal, domainwf.ActionApprovePayment, reviewerA, Payload{})
	require.NoError(t, err)

	_, err = env.run(renewal, domainwf.ActionStartFinalReview, approverB, Payload{})
	assertKind(t, err, domainwf.KindInvalidTransition)

	_, err = env.run(renewal, domainwf.ActionCompleteRenewal, approverA, Payload{})
	assertKind(t, err, domainwf.KindForbidden)

	res, err := env.run(renewal, domainwf.ActionCompleteRenewal, approverB, Payload{Notes: "renewed for 12 months"})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StageCompleted, res.Entity.Stage)
	assert.Equal(t, entity.StatusCompleted, res.Entity.Status)
	assert.Equal(t, entity.AuditRenewalComplete, res.AuditEntry.ActionType)
	require.NotNil(t, res.AuditEntry.RenewalID)
	assert.Nil(t, res.AuditEntry.ApplicationID)
	assert.Empty(t, env.members.calls, "renewals never create members")
}

func TestExecutor_ConcurrentStartHasOneWinner(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)

	const workers = 6
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := env.run(app, domainwf.ActionStartFinancialReview, Actor{UserID: id, Role: domainwf.RoleFinancialReviewer}, Payload{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			losses = append(losses, err)
		}(int64(300 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	require.Len(t, losses, workers-1)
	for _, err := range losses {
		assert.Equal(t, domainwf.KindInvalidTransition, domainwf.KindOf(err), err.Error())
	}
	assert.Len(t, env.trail(t, app), 1)
}

func TestExecutor_MemberCreationFailureKeepsApproval(t *testing.T) {
	dispatched := make(chan *event.Event, 8)
	d := dispatcher.NewDispatcher()
	d.Subscribe(event.TypeMemberCreationFailed, func(ctx context.Context, evt *event.Event) error {
		dispatched <- evt
		return nil
	})
	t.Cleanup(func() { _ = d.Close() })

	env := setupExecutor(t, WithDispatcher(d))
	env.members.err = errors.New("members service unavailable")

	app := env.submit(t, entity.EntityApplication)
	env.pay(t, app, entity.PaymentCompleted)
	for _, step := range []struct {
		action domainwf.Action
		actor  Actor
	}{
		{domainwf.ActionStartFinancialReview, reviewerA},
		{domainwf.ActionApprovePayment, reviewerA},
		{domainwf.ActionStartFinalReview, approverB},
	} {
		_, err := env.run(app, step.action, step.actor, Payload{})
		require.NoError(t, err)
	}

	res, err := env.run(app, domainwf.ActionApproveMembership, approverB, Payload{})
	require.NoError(t, err)
	require.NotNil(t, res.Downstream)
	assert.Equal(t, domainwf.KindDownstream, res.Downstream.Kind)
	assert.ErrorIs(t, res.Downstream, domainwf.ErrDownstream)
	assert.Nil(t, res.Entity.MemberID)
	assert.Equal(t, domainwf.StageApproved, env.stage(t, app))
	assert.Equal(t, 1, env.metrics.memberErr)

	select {
	case evt := <-dispatched:
		assert.Equal(t, app.ID, evt.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("member.creation_failed was not dispatched")
	}
}

func TestExecutor_MemberCreationSuccessSetsMemberID(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)
	env.pay(t, app, entity.PaymentCompleted)

	var res *Result
	for _, step := range []struct {
		action domainwf.Action
		actor  Actor
	}{
		{domainwf.ActionStartFinancialReview, reviewerA},
		{domainwf.ActionApprovePayment, reviewerA},
		{domainwf.ActionStartFinalReview, approverB},
		{domainwf.ActionApproveMembership, approverB},
	} {
		var err error
		res, err = env.run(app, step.action, step.actor, Payload{})
		require.NoError(t, err)
	}

	assert.Nil(t, res.Downstream)
	require.NotNil(t, res.Entity.MemberID)
	assert.Equal(t, 5000+app.ID, *res.Entity.MemberID)
}

// replay walks the transition table directly, ignoring guards
func replay(t entity.EntityType, actions []domainwf.Action) domainwf.Stage {
	table := map[domainwf.Stage]map[domainwf.Action]domainwf.Stage{
		domainwf.StageSubmitted:       {domainwf.ActionStartFinancialReview: domainwf.StageFinancialReview},
		domainwf.StageFinancialReview: {domainwf.ActionApprovePayment: domainwf.StagePaymentApproved, domainwf.ActionRejectPayment: domainwf.StageRejected},
		domainwf.StagePaymentApproved: {domainwf.ActionStartFinalReview: domainwf.StageFinalReview},
		domainwf.StageFinalReview:     {domainwf.ActionApproveMembership: domainwf.StageApproved, domainwf.ActionRejectMembership: domainwf.StageRejected},
	}
	if t == entity.EntityRenewal {
		table[domainwf.StagePaymentApproved] = map[domainwf.Action]domainwf.Stage{domainwf.ActionCompleteRenewal: domainwf.StageCompleted}
		delete(table, domainwf.StageFinalReview)
	}

	stage := domainwf.StageSubmitted
	for _, a := range actions {
		if next, ok := table[stage][a]; ok {
			stage = next
		}
	}
	return stage
}

func actorFor(a domainwf.Action) Actor {
	switch a {
	case domainwf.ActionStartFinancialReview, domainwf.ActionApprovePayment, domainwf.ActionRejectPayment:
		return reviewerA
	}
	return approverB
}

func TestExecutor_StageMatchesTableReplay(t *testing.T) {
	env := setupExecutor(t)
	all := []domainwf.Action{
		domainwf.ActionStartFinancialReview, domainwf.ActionApprovePayment, domainwf.ActionRejectPayment,
		domainwf.ActionStartFinalReview, domainwf.ActionApproveMembership, domainwf.ActionRejectMembership,
		domainwf.ActionCompleteRenewal,
	}

	sequences := [][]domainwf.Action{
		{domainwf.ActionStartFinancialReview, domainwf.ActionApprovePayment, domainwf.ActionStartFinalReview, domainwf.ActionApproveMembership},
		{domainwf.ActionApprovePayment, domainwf.ActionStartFinancialReview, domainwf.ActionRejectPayment, domainwf.ActionApprovePayment},
		{domainwf.ActionStartFinancialReview, domainwf.ActionStartFinancialReview, domainwf.ActionApprovePayment, domainwf.ActionCompleteRenewal},
		{domainwf.ActionStartFinancialReview, domainwf.ActionApprovePayment, domainwf.ActionStartFinalReview, domainwf.ActionRejectMembership, domainwf.ActionApproveMembership},
	}
	// every action from every reachable prefix
	for _, a := range all {
		for _, b := range all {
			sequences = append(sequences, []domainwf.Action{domainwf.ActionStartFinancialReview, a, b})
		}
	}

	for _, typ := range []entity.EntityType{entity.EntityApplication, entity.EntityRenewal} {
		for i, seq := range sequences {
			t.Run(fmt.Sprintf("%s/%d", typ, i), func(t *testing.T) {
				e := env.submit(t, typ)
				env.pay(t, e, entity.PaymentCompleted)

				successes := 0
				for _, a := range seq {
					if _, err := env.run(e, a, actorFor(a), Payload{RejectionReason: "incomplete"}); err == nil {
						successes++
					} else {
						assert.Equal(t, domainwf.KindInvalidTransition, domainwf.KindOf(err), err.Error())
					}
				}

				assert.Equal(t, replay(typ, seq), env.stage(t, e))
				assert.Len(t, env.trail(t, e), successes)
			})
		}
	}
}

type failingEntities struct {
	port.EntityRepository
	err error
}

func (f *failingEntities) GetForUpdate(ctx context.Context, t entity.EntityType, id int64) (*entity.WorkflowEntity, error) {
	return nil, fmt.Errorf("failed to get %s %d: %w", t, id, f.err)
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestExecutor_ClassifiesStoreErrors(t *testing.T) {
	cmd := Command{EntityType: entity.EntityApplication, EntityID: 1, Action: domainwf.ActionStartFinancialReview, Actor: reviewerA}

	t.Run("lost connection is transient", func(t *testing.T) {
		ex := NewExecutor(&failingEntities{err: driver.ErrBadConn}, nil, nil, passthroughTx{})
		_, err := ex.Execute(context.Background(), cmd)
		we := assertKind(t, err, domainwf.KindTransient)
		assert.True(t, we.Kind.Retryable())
	})

	t.Run("deadline is transient", func(t *testing.T) {
		ex := NewExecutor(&failingEntities{err: context.DeadlineExceeded}, nil, nil, passthroughTx{})
		_, err := ex.Execute(context.Background(), cmd)
		assertKind(t, err, domainwf.KindTransient)
	})

	t.Run("anything else is internal", func(t *testing.T) {
		ex := NewExecutor(&failingEntities{err: errors.New("syntax error near FROM")}, nil, nil, passthroughTx{})
		_, err := ex.Execute(context.Background(), cmd)
		we := assertKind(t, err, domainwf.KindInternal)
		assert.NotContains(t, we.Message, "syntax")
	})
}

// slowAudit holds the transaction open after the audit row is written
type slowAudit struct {
	port.AuditRepository
	delay time.Duration
}

func (s *slowAudit) Append(ctx context.Context, entry *entity.AuditEntry) error {
	if err := s.AuditRepository.Append(ctx, entry); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

func TestExecutor_CommitPastDeadlineIsTransient(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)

	slow := NewExecutor(env.entities, &slowAudit{AuditRepository: env.audit, delay: 200 * time.Millisecond}, env.payments, env.tx,
		WithTxTimeout(50*time.Millisecond))
	_, err := slow.Execute(context.Background(), Command{
		EntityType: app.Type,
		EntityID:   app.ID,
		Action:     domainwf.ActionStartFinancialReview,
		Actor:      reviewerA,
	})

	we := assertKind(t, err, domainwf.KindTransient)
	assert.True(t, we.Kind.Retryable())
	assert.Equal(t, domainwf.StageSubmitted, env.stage(t, app))
	assert.Empty(t, env.trail(t, app))
}

func TestExecutor_FinalDecisionSeparationOfDuties(t *testing.T) {
	for _, action := range []domainwf.Action{domainwf.ActionApproveMembership, domainwf.ActionRejectMembership} {
		t.Run(action.String(), func(t *testing.T) {
			env := setupExecutor(t)
			app := env.submit(t, entity.EntityApplication)
			env.pay(t, app, entity.PaymentCompleted)
			for _, step := range []struct {
				action domainwf.Action
				actor  Actor
			}{
				{domainwf.ActionStartFinancialReview, reviewerA},
				{domainwf.ActionApprovePayment, reviewerA},
				{domainwf.ActionStartFinalReview, approverB},
			} {
				_, err := env.run(app, step.action, step.actor, Payload{})
				require.NoError(t, err)
			}

			// approverA is the user who approved the payment
			_, err := env.run(app, action, approverA, Payload{RejectionReason: "duplicate application"})
			we := assertKind(t, err, domainwf.KindForbidden)
			assert.ErrorIs(t, err, domainwf.ErrForbidden)
			assert.Equal(t, domainwf.StageFinalReview, we.CurrentStage)
			assert.Equal(t, domainwf.StageFinalReview, env.stage(t, app))
			assert.Len(t, env.trail(t, app), 3)
			assert.Empty(t, env.members.calls)
		})
	}
}

func TestExecutor_ApprovePaymentLinksTransaction(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)
	env.pay(t, app, entity.PaymentFailed)
	env.pay(t, app, entity.PaymentCompleted)

	payments, err := env.payments.ListByEntity(context.Background(), app.Type, app.ID)
	require.NoError(t, err)
	var completed int64
	for _, p := range payments {
		if p.Status == entity.PaymentCompleted {
			completed = p.ID
		}
	}
	require.NotZero(t, completed)

	res, err := env.run(app, domainwf.ActionStartFinancialReview, reviewerA, Payload{})
	require.NoError(t, err)
	assert.Nil(t, res.AuditEntry.TransactionID)

	res, err = env.run(app, domainwf.ActionApprovePayment, reviewerA, Payload{})
	require.NoError(t, err)
	require.NotNil(t, res.AuditEntry.TransactionID)
	assert.Equal(t, completed, *res.AuditEntry.TransactionID)

	trail := env.trail(t, app)
	require.Len(t, trail, 2)
	require.NotNil(t, trail[1].TransactionID)
	assert.Equal(t, completed, *trail[1].TransactionID)
}

func TestExecutor_EventsShareCorrelation(t *testing.T) {
	env := setupExecutor(t)
	app := env.submit(t, entity.EntityApplication)
	env.pay(t, app, entity.PaymentCompleted)
	for _, step := range []struct {
		action domainwf.Action
		actor  Actor
	}{
		{domainwf.ActionStartFinancialReview, reviewerA},
		{domainwf.ActionApprovePayment, reviewerA},
		{domainwf.ActionStartFinalReview, approverB},
	} {
		_, err := env.run(app, step.action, step.actor, Payload{})
		require.NoError(t, err)
	}

	types := []event.Type{event.TypeStageChanged, event.TypeMembershipApproved, event.TypeMemberCreated}
	received := make(chan *event.Event, 8)
	d := dispatcher.NewDispatcher()
	for _, typ := range types {
		d.Subscribe(typ, func(ctx context.Context, evt *event.Event) error {
			received <- evt
			return nil
		})
	}
	approve := NewExecutor(env.entities, env.audit, env.payments, env.tx, WithDispatcher(d), WithMemberCreator(env.members))

	ctx := event.ContextWithCorrelation(context.Background(), "req-approve-1")
	_, err := approve.Execute(ctx, Command{
		EntityType: app.Type,
		EntityID:   app.ID,
		Action:     domainwf.ActionApproveMembership,
		Actor:      approverB,
	})
	require.NoError(t, err)
	require.NoError(t, d.Close())
	close(received)

	seen := map[event.Type]string{}
	for evt := range received {
		seen[evt.Type] = evt.CorrelationID
	}
	require.Len(t, seen, len(types))
	for _, typ := range types {
		assert.Equal(t, "req-approve-1", seen[typ], typ.String())
	}
}

func TestExecutor_EventsCorrelateWithoutCaller(t *testing.T) {
	received := make(chan *event.Event, 4)
	d := dispatcher.NewDispatcher()
	d.Subscribe(event.TypeStageChanged, func(ctx context.Context, evt *event.Event) error {
		received <- evt
		return nil
	})

	env := setupExecutor(t, WithDispatcher(d))
	app := env.submit(t, entity.EntityApplication)
	_, err := env.run(app, domainwf.ActionStartFinancialReview, reviewerA, Payload{})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	evt := <-received
	assert.Equal(t, evt.ID, evt.CorrelationID)
}
