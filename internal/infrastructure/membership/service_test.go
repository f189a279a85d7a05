package membership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/workflow"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/repository"
	"github.com/memberhub/approval-workflow/internal/infrastructure/persistence/sqldb/sqldbtest"
)

var fixedNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	entities port.EntityRepository
	members  port.MemberRepository
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := sqldbtest.Open(t)
	logger := zap.NewNop()
	entities := repository.NewEntityRepository(db, logger)
	members := repository.NewMemberRepository(db, logger)
	return fixture{
		svc:      NewService(members, entities, db, logger, WithClock(func() time.Time { return fixedNow })),
		entities: entities,
		members:  members,
	}
}

func approvedApplication(t *testing.T, f fixture) *entity.WorkflowEntity {
	t.Helper()
	ctx := context.Background()
	dob := time.Date(1988, 1, 1, 0, 0, 0, 0, time.UTC)
	app := entity.NewSubmitted(entity.EntityApplication, entity.Applicant{
		FirstName:   "Lerato",
		LastName:    "Nkosi",
		IDNumber:    "8801015800082",
		DateOfBirth: &dob,
		WardCode:    "79800001",
	})
	require.NoError(t, f.entities.Create(ctx, app))

	reviewer, approver := int64(10), int64(20)
	app.Stage = workflow.StageApproved
	app.Status = entity.StatusApproved
	app.FinancialStatus = entity.FinancialApproved
	app.FinancialReviewedBy = &reviewer
	app.FinalReviewedBy = &approver
	require.NoError(t, f.entities.UpdateWorkflow(ctx, app))
	return app
}

func TestCreateMember_LinksApplication(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	app := approvedApplication(t, f)

	memberID, err := f.svc.CreateMember(ctx, app)
	require.NoError(t, err)
	require.NotZero(t, memberID)

	m, err := f.members.GetByID(ctx, memberID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, app.ID, m.ApplicationID)
	assert.Equal(t, "Lerato Nkosi", m.FullName())
	assert.True(t, m.MembershipExpiry.Equal(fixedNow.AddDate(1, 0, 0)), "expiry %v", m.MembershipExpiry)

	stored, err := f.entities.GetByID(ctx, entity.EntityApplication, app.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.MemberID)
	assert.Equal(t, memberID, *stored.MemberID)
}

func TestCreateMember_IsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	app := approvedApplication(t, f)

	first, err := f.svc.CreateMember(ctx, app)
	require.NoError(t, err)
	second, err := f.svc.CreateMember(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	pending, err := f.entities.ListApprovedWithoutMember(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateMember_ConcurrentCallsShareOneMember(t *testing.T) {
	f := setup(t)
	app := approvedApplication(t, f)

	const callers = 5
	ids := make([]int64, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = f.svc.CreateMember(context.Background(), app.Clone())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestCreateMember_RejectsUnapproved(t *testing.T) {
	f := setup(t)
	app := approvedApplication(t, f)

	app.Stage = workflow.StageFinalReview
	_, err := f.svc.CreateMember(context.Background(), app)
	assert.Error(t, err)

	renewal := entity.NewSubmitted(entity.EntityRenewal, entity.Applicant{})
	renewal.Stage = workflow.StageApproved
	_, err = f.svc.CreateMember(context.Background(), renewal)
	assert.Error(t, err)
}

// racingMembers reports a duplicate on the first insert, as if another caller
// committed between the lookup and the insert
type racingMembers struct {
	port.MemberRepository
	mu      sync.Mutex
	winner  *entity.Member
	inserts int
}

func (r *racingMembers) GetByApplicationID(ctx context.Context, applicationID int64) (*entity.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inserts == 0 {
		return nil, nil
	}
	return r.winner, nil
}

func (r *racingMembers) Create(ctx context.Context, m *entity.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	return fmt.Errorf("member for application %d: %w", m.ApplicationID, port.ErrDuplicate)
}

type linkRecorder struct {
	port.EntityRepository
	linked map[int64]int64
}

func (l *linkRecorder) SetMemberID(ctx context.Context, applicationID, memberID int64) error {
	l.linked[applicationID] = memberID
	return nil
}

type inlineTx struct{}

func (inlineTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestCreateMember_RereadsAfterDuplicate(t *testing.T) {
	members := &racingMembers{winner: &entity.Member{ID: 77, ApplicationID: 5}}
	links := &linkRecorder{linked: map[int64]int64{}}
	svc := NewService(members, links, inlineTx{}, zap.NewNop())

	app := &entity.WorkflowEntity{ID: 5, Type: entity.EntityApplication, Stage: workflow.StageApproved}
	id, err := svc.CreateMember(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
	assert.Equal(t, int64(77), links.linked[5])
	assert.Equal(t, 1, members.inserts)
}

type failingMembers struct {
	port.MemberRepository
}

func (failingMembers) GetByApplicationID(ctx context.Context, applicationID int64) (*entity.Member, error) {
	return nil, errors.New("database is locked")
}

func TestCreateMember_PropagatesStoreErrors(t *testing.T) {
	svc := NewService(failingMembers{}, &linkRecorder{linked: map[int64]int64{}}, inlineTx{}, zap.NewNop())

	app := &entity.WorkflowEntity{ID: 5, Type: entity.EntityApplication, Stage: workflow.StageApproved}
	_, err := svc.CreateMember(context.Background(), app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application 5")
}
