package workflow

import (
	"context"
	"strings"
)

// RequireRole rejects actors that do not carry the given role
func RequireRole(role Role) GuardFunc {
	return func(ctx context.Context, req *Request) error {
		if req.ActorRole != role {
			return Forbidden("role %q may not perform this action, requires %q", req.ActorRole, role)
		}
		return nil
	}
}

// SeparateFromFinancialReviewer enforces separation of duties against the persisted
// financial reviewer, not against the actor's role.
func SeparateFromFinancialReviewer() GuardFunc {
	return func(ctx context.Context, req *Request) error {
		if req.FinancialReviewedBy != nil && *req.FinancialReviewedBy == req.ActorID {
			return Forbidden("user %d performed the financial review and may not perform the final review", req.ActorID)
		}
		return nil
	}
}

// NoFinancialReviewerAssigned fails when a financial reviewer already owns the entity
func NoFinancialReviewerAssigned() GuardFunc {
	return func(ctx context.Context, req *Request) error {
		if req.FinancialReviewedBy != nil {
			return InvalidTransition(StageSubmitted, "financial reviewer %d is already assigned", *req.FinancialReviewedBy)
		}
		return nil
	}
}

// RequireRejectionReason fails on an empty or whitespace-only rejection reason
func RequireRejectionReason() GuardFunc {
	return func(ctx context.Context, req *Request) error {
		if strings.TrimSpace(req.RejectionReason) == "" {
			return Validation("rejection_reason is required")
		}
		return nil
	}
}

// RequireCompletedPayment fails unless at least one payment has completed
func RequireCompletedPayment() GuardFunc {
	return func(ctx context.Context, req *Request) error {
		if req.CompletedPayments < 1 {
			return Validation("at least one completed payment transaction is required")
		}
		return nil
	}
}
