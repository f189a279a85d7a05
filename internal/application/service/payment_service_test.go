package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

func TestPaymentService_RecordPayment(t *testing.T) {
	tests := []struct {
		name       string
		entityType entity.EntityType
		input      PaymentInput
		wantKind   domainwf.Kind
		wantStatus entity.PaymentStatus
	}{
		{
			name:       "online completed",
			entityType: entity.EntityApplication,
			input:      PaymentInput{Amount: decimal.RequireFromString("150.00"), Currency: "zar", Method: entity.MethodOnline, Status: entity.PaymentCompleted},
			wantStatus: entity.PaymentCompleted,
		},
		{
			name:       "cash defaults to pending",
			entityType: entity.EntityRenewal,
			input:      PaymentInput{Amount: decimal.NewFromInt(100), Method: entity.MethodCash},
			wantStatus: entity.PaymentPending,
		},
		{
			name:       "cash cannot arrive completed",
			entityType: entity.EntityApplication,
			input:      PaymentInput{Amount: decimal.NewFromInt(100), Method: entity.MethodCash, Status: entity.PaymentCompleted},
			wantKind:   domainwf.KindValidation,
		},
		{
			name:       "zero amount",
			entityType: entity.EntityApplication,
			input:      PaymentInput{Amount: decimal.Zero, Method: entity.MethodCard},
			wantKind:   domainwf.KindValidation,
		},
		{
			name:       "unknown method",
			entityType: entity.EntityApplication,
			input:      PaymentInput{Amount: decimal.NewFromInt(10), Method: "cheque"},
			wantKind:   domainwf.KindValidation,
		},
		{
			name:       "unknown entity type",
			entityType: "donation",
			input:      PaymentInput{Amount: decimal.NewFromInt(10), Method: entity.MethodCard},
			wantKind:   domainwf.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &mockPaymentRepo{}
			service := NewPaymentService(&mockEntityRepo{}, payments, nil, &mockLogger{})

			p, err := service.RecordPayment(context.Background(), tt.entityType, 8, tt.input)
			if tt.wantKind != "" {
				if !wantKind(err, tt.wantKind) {
					t.Errorf("error = %v, want %s", err, tt.wantKind)
				}
				if len(payments.created) != 0 {
					t.Error("rejected payment was stored")
				}
				return
			}
			if err != nil {
				t.Fatalf("RecordPayment() error = %v", err)
			}
			if p.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", p.Status, tt.wantStatus)
			}
			owner, id := paymentOwner(p)
			if owner != tt.entityType || id != 8 {
				t.Errorf("owner = %s %d, want %s 8", owner, id, tt.entityType)
			}
		})
	}
}

func TestPaymentService_RecordPaymentUnknownEntity(t *testing.T) {
	entities := &mockEntityRepo{
		getByIDFunc: func(ctx context.Context, et entity.EntityType, id int64) (*entity.WorkflowEntity, error) {
			return nil, nil
		},
	}
	service := NewPaymentService(entities, &mockPaymentRepo{}, nil, &mockLogger{})

	_, err := service.RecordPayment(context.Background(), entity.EntityApplication, 77,
		PaymentInput{Amount: decimal.NewFromInt(10), Method: entity.MethodCard})
	if !wantKind(err, domainwf.KindNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestPaymentService_VerifyCashPayment(t *testing.T) {
	appID := int64(12)
	cash := func(status entity.PaymentStatus) func(ctx context.Context, id int64) (*entity.PaymentTransaction, error) {
		return func(ctx context.Context, id int64) (*entity.PaymentTransaction, error) {
			return &entity.PaymentTransaction{ID: id, ApplicationID: &appID, Method: entity.MethodCash, Status: status}, nil
		}
	}

	t.Run("financial reviewer verifies pending cash", func(t *testing.T) {
		var gotVerifier int64
		payments := &mockPaymentRepo{
			getByIDFunc: cash(entity.PaymentPending),
			markVerifiedFunc: func(ctx context.Context, id, verifierID int64, notes string, at time.Time) (bool, error) {
				gotVerifier = verifierID
				return true, nil
			},
		}
		d, rec := newRecordingDispatcher(event.TypePaymentVerified)
		service := NewPaymentService(&mockEntityRepo{}, payments, d, &mockLogger{})

		p, err := service.VerifyCashPayment(context.Background(), 5, actor(21, domainwf.RoleFinancialReviewer), "receipt 0042")
		if err != nil {
			t.Fatalf("VerifyCashPayment() error = %v", err)
		}
		d.Close()

		if p.Status != entity.PaymentCompleted || p.VerifiedBy == nil || *p.VerifiedBy != 21 {
			t.Errorf("payment = %+v", p)
		}
		if gotVerifier != 21 {
			t.Errorf("verifier = %d, want 21", gotVerifier)
		}
		events := rec.snapshot()
		if len(events) != 1 || events[0].EntityID != appID || events[0].EntityType != string(entity.EntityApplication) {
			t.Errorf("events = %v", events)
		}
	})

	t.Run("approver is forbidden", func(t *testing.T) {
		service := NewPaymentService(&mockEntityRepo{}, &mockPaymentRepo{getByIDFunc: cash(entity.PaymentPending)}, nil, &mockLogger{})
		_, err := service.VerifyCashPayment(context.Background(), 5, actor(22, domainwf.RoleMembershipApprover), "")
		if !wantKind(err, domainwf.KindForbidden) {
			t.Errorf("error = %v, want forbidden", err)
		}
	})

	t.Run("missing payment", func(t *testing.T) {
		service := NewPaymentService(&mockEntityRepo{}, &mockPaymentRepo{}, nil, &mockLogger{})
		_, err := service.VerifyCashPayment(context.Background(), 5, actor(21, domainwf.RoleFinancialReviewer), "")
		if !wantKind(err, domainwf.KindNotFound) {
			t.Errorf("error = %v, want not found", err)
		}
	})

	t.Run("card payment", func(t *testing.T) {
		payments := &mockPaymentRepo{
			getByIDFunc: func(ctx context.Context, id int64) (*entity.PaymentTransaction, error) {
				return &entity.PaymentTransaction{ID: id, ApplicationID: &appID, Method: entity.MethodCard, Status: entity.PaymentPending}, nil
			},
		}
		service := NewPaymentService(&mockEntityRepo{}, payments, nil, &mockLogger{})
		_, err := service.VerifyCashPayment(context.Background(), 5, actor(21, domainwf.RoleFinancialReviewer), "")
		if !wantKind(err, domainwf.KindValidation) {
			t.Errorf("error = %v, want validation", err)
		}
	})

	t.Run("already verified", func(t *testing.T) {
		payments := &mockPaymentRepo{
			getByIDFunc: cash(entity.PaymentCompleted),
			markVerifiedFunc: func(ctx context.Context, id, verifierID int64, notes string, at time.Time) (bool, error) {
				return false, nil
			},
		}
		service := NewPaymentService(&mockEntityRepo{}, payments, nil, &mockLogger{})
		_, err := service.VerifyCashPayment(context.Background(), 5, actor(21, domainwf.RoleFinancialReviewer), "")
		if !wantKind(err, domainwf.KindValidation) {
			t.Errorf("error = %v, want validation", err)
		}
	})
}

func TestPaymentService_ListPayments(t *testing.T) {
	service := NewPaymentService(&mockEntityRepo{}, &mockPaymentRepo{}, nil, &mockLogger{})

	payments, err := service.ListPayments(context.Background(), entity.EntityApplication, 1)
	if err != nil {
		t.Fatalf("ListPayments() error = %v", err)
	}
	if payments == nil || len(payments) != 0 {
		t.Errorf("payments = %v, want empty slice", payments)
	}
}
