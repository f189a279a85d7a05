package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberhub/approval-workflow/internal/application/dispatcher"
	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/application/workflow"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
	"github.com/memberhub/approval-workflow/pkg/utils"
)

// PaymentInput describes a payment attempt reported by a gateway or a cashier
type PaymentInput struct {
	Amount           decimal.Decimal
	Currency         string
	Method           entity.PaymentMethod
	Status           entity.PaymentStatus
	GatewayReference string
}

// PaymentService records payments and lets financial reviewers verify cash
type PaymentService interface {
	RecordPayment(ctx context.Context, t entity.EntityType, id int64, in PaymentInput) (*entity.PaymentTransaction, error)
	VerifyCashPayment(ctx context.Context, paymentID int64, actor workflow.Actor, notes string) (*entity.PaymentTransaction, error)
	ListPayments(ctx context.Context, t entity.EntityType, id int64) ([]*entity.PaymentTransaction, error)
}

type paymentServiceImpl struct {
	entities   port.EntityRepository
	payments   port.PaymentRepository
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// NewPaymentService creates a new PaymentService. The dispatcher may be nil.
func NewPaymentService(
	entities port.EntityRepository,
	payments port.PaymentRepository,
	d dispatcher.Dispatcher,
	logger Logger,
) PaymentService {
	return &paymentServiceImpl{
		entities:   entities,
		payments:   payments,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *paymentServiceImpl) RecordPayment(ctx context.Context, t entity.EntityType, id int64, in PaymentInput) (*entity.PaymentTransaction, error) {
	if err := s.requireEntity(ctx, t, id); err != nil {
		return nil, err
	}
	if err := utils.ValidateAmount(in.Amount); err != nil {
		return nil, domainwf.Validation("%s", err.Error())
	}
	if !in.Method.IsValid() {
		return nil, domainwf.Validation("unknown payment method %q", in.Method)
	}
	if in.Status == "" {
		in.Status = entity.PaymentPending
	}
	if !in.Status.IsValid() {
		return nil, domainwf.Validation("unknown payment status %q", in.Status)
	}
	// cash only counts once a financial reviewer has seen it
	if in.Method == entity.MethodCash && in.Status == entity.PaymentCompleted {
		return nil, domainwf.Validation("cash payments must be verified by a financial reviewer")
	}

	p := &entity.PaymentTransaction{
		Amount:           in.Amount,
		Currency:         strings.ToUpper(strings.TrimSpace(in.Currency)),
		Method:           in.Method,
		Status:           in.Status,
		GatewayReference: utils.SanitizeString(in.GatewayReference),
	}
	p.SetEntity(t, id)

	if err := s.payments.Create(ctx, p); err != nil {
		s.logger.Error("Failed to record payment", "entity_type", t, "id", id, "error", err)
		return nil, workflow.ClassifyError(err)
	}

	s.logger.Info("Payment recorded",
		"payment_id", p.ID, "entity_type", t, "id", id,
		"method", p.Method, "status", p.Status, "amount", p.Amount.StringFixed(2))
	return p, nil
}

// VerifyCashPayment marks a pending cash payment as completed by the acting reviewer
func (s *paymentServiceImpl) VerifyCashPayment(ctx context.Context, paymentID int64, actor workflow.Actor, notes string) (*entity.PaymentTransaction, error) {
	if actor.Role != domainwf.RoleFinancialReviewer {
		s.logger.Warn("Payment verification refused",
			"security_event", true, "payment_id", paymentID, "user_id", actor.UserID, "role", actor.Role)
		return nil, domainwf.Forbidden("role %q may not verify payments", actor.Role)
	}

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		s.logger.Error("Failed to load payment", "payment_id", paymentID, "error", err)
		return nil, workflow.ClassifyError(err)
	}
	if p == nil {
		return nil, domainwf.NotFound("payment %d not found", paymentID)
	}
	if p.Method != entity.MethodCash {
		return nil, domainwf.Validation("payment %d is not a cash payment", paymentID)
	}

	at := s.now().UTC()
	notes = utils.SanitizeString(notes)
	ok, err := s.payments.MarkVerified(ctx, paymentID, actor.UserID, notes, at)
	if err != nil {
		s.logger.Error("Failed to verify payment", "payment_id", paymentID, "error", err)
		return nil, workflow.ClassifyError(err)
	}
	if !ok {
		return nil, domainwf.Validation("payment %d is %s and cannot be verified", paymentID, p.Status)
	}

	verifier := actor.UserID
	p.Status = entity.PaymentCompleted
	p.VerifiedBy = &verifier
	p.VerifiedAt = &at
	p.VerificationNotes = notes

	entityType, entityID := paymentOwner(p)
	s.logger.Info("Cash payment verified", "payment_id", paymentID, "user_id", actor.UserID)
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.Correlate(ctx, event.NewEvent(event.TypePaymentVerified, string(entityType), entityID, map[string]interface{}{
			"payment_id":  paymentID,
			"verified_by": actor.UserID,
		})))
	}
	return p, nil
}

func (s *paymentServiceImpl) ListPayments(ctx context.Context, t entity.EntityType, id int64) ([]*entity.PaymentTransaction, error) {
	if err := s.requireEntity(ctx, t, id); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByEntity(ctx, t, id)
	if err != nil {
		s.logger.Error("Failed to list payments", "entity_type", t, "id", id, "error", err)
		return nil, workflow.ClassifyError(err)
	}
	if payments == nil {
		payments = []*entity.PaymentTransaction{}
	}
	return payments, nil
}

func (s *paymentServiceImpl) requireEntity(ctx context.Context, t entity.EntityType, id int64) error {
	if !t.IsValid() {
		return domainwf.Validation("unknown entity type %q", t)
	}
	e, err := s.entities.GetByID(ctx, t, id)
	if err != nil {
		s.logger.Error("Failed to load entity", "entity_type", t, "id", id, "error", err)
		return workflow.ClassifyError(err)
	}
	if e == nil {
		return domainwf.NotFound("%s %d not found", t, id)
	}
	return nil
}

func paymentOwner(p *entity.PaymentTransaction) (entity.EntityType, int64) {
	if p.RenewalID != nil {
		return entity.EntityRenewal, *p.RenewalID
	}
	if p.ApplicationID != nil {
		return entity.EntityApplication, *p.ApplicationID
	}
	return entity.EntityApplication, 0
}
