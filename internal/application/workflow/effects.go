package workflow

import (
	"time"

	"github.com/memberhub/approval-workflow/internal/domain/entity"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

// applyEffects mutates e for an action that the state machine already accepted.
// The stage itself is set by the caller from the machine.
func applyEffects(e *entity.WorkflowEntity, action domainwf.Action, actor Actor, payload Payload, now time.Time) {
	actorID := actor.UserID
	at := now.UTC()

	switch action {
	case domainwf.ActionStartFinancialReview:
		e.FinancialReviewedBy = &actorID
		e.FinancialStatus = entity.FinancialUnderReview
		e.Status = entity.StatusUnderReview

	case domainwf.ActionApprovePayment:
		e.FinancialStatus = entity.FinancialApproved
		e.FinancialReviewedBy = &actorID
		e.FinancialReviewedAt = &at
		e.FinancialAdminNotes = payload.Notes

	case domainwf.ActionRejectPayment:
		e.FinancialStatus = entity.FinancialRejected
		e.Status = entity.StatusRejected
		e.FinancialReviewedBy = &actorID
		e.FinancialReviewedAt = &at
		e.FinancialRejectionReason = payload.RejectionReason
		e.FinancialAdminNotes = payload.Notes

	case domainwf.ActionStartFinalReview:
		e.FinalReviewedBy = &actorID

	case domainwf.ActionApproveMembership:
		e.Status = entity.StatusApproved
		e.FinalReviewedBy = &actorID
		e.FinalReviewedAt = &at
		e.AdminNotes = payload.Notes

	case domainwf.ActionRejectMembership:
		e.Status = entity.StatusRejected
		e.FinalReviewedBy = &actorID
		e.FinalReviewedAt = &at
		e.RejectionReason = payload.RejectionReason
		e.AdminNotes = payload.Notes

	case domainwf.ActionCompleteRenewal:
		e.Status = entity.StatusCompleted
		e.FinalReviewedBy = &actorID
		e.FinalReviewedAt = &at
		e.AdminNotes = payload.Notes
	}
}

// statusOf summarises the status columns recorded in the audit trail
func statusOf(e *entity.WorkflowEntity, action domainwf.Action) string {
	switch action {
	case domainwf.ActionStartFinancialReview, domainwf.ActionApprovePayment, domainwf.ActionRejectPayment:
		return string(e.FinancialStatus)
	}
	return string(e.Status)
}
