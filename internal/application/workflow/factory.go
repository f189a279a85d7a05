package workflow

import (
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

var (
	applicationDefinition = newApplicationDefinition()
	renewalDefinition     = newRenewalDefinition()
)

// configureFinancialTier adds the transitions shared by both tracks
func configureFinancialTier(builder domainwf.StateMachineBuilder) {
	builder.Configure(domainwf.StageSubmitted).
		PermitIf(domainwf.ActionStartFinancialReview, domainwf.StageFinancialReview,
			domainwf.RequireRole(domainwf.RoleFinancialReviewer),
			domainwf.NoFinancialReviewerAssigned())

	builder.Configure(domainwf.StageFinancialReview).
		PermitIf(domainwf.ActionApprovePayment, domainwf.StagePaymentApproved,
			domainwf.RequireRole(domainwf.RoleFinancialReviewer),
			domainwf.RequireCompletedPayment()).
		PermitIf(domainwf.ActionRejectPayment, domainwf.StageRejected,
			domainwf.RequireRole(domainwf.RoleFinancialReviewer),
			domainwf.RequireRejectionReason())
}

func newApplicationDefinition() domainwf.StateMachineBuilder {
	builder := domainwf.NewBuilder()
	configureFinancialTier(builder)

	builder.Configure(domainwf.StagePaymentApproved).
		PermitIf(domainwf.ActionStartFinalReview, domainwf.StageFinalReview,
			domainwf.RequireRole(domainwf.RoleMembershipApprover),
			domainwf.SeparateFromFinancialReviewer())

	builder.Configure(domainwf.StageFinalReview).
		PermitIf(domainwf.ActionApproveMembership, domainwf.StageApproved,
			domainwf.RequireRole(domainwf.RoleMembershipApprover),
			domainwf.SeparateFromFinancialReviewer()).
		PermitIf(domainwf.ActionRejectMembership, domainwf.StageRejected,
			domainwf.RequireRole(domainwf.RoleMembershipApprover),
			domainwf.SeparateFromFinancialReviewer(),
			domainwf.RequireRejectionReason())

	// Approved and Rejected are terminal

	return builder
}

func newRenewalDefinition() domainwf.StateMachineBuilder {
	builder := domainwf.NewBuilder()
	configureFinancialTier(builder)

	builder.Configure(domainwf.StagePaymentApproved).
		PermitIf(domainwf.ActionCompleteRenewal, domainwf.StageCompleted,
			domainwf.RequireRole(domainwf.RoleMembershipApprover),
			domainwf.SeparateFromFinancialReviewer())

	// Completed and Rejected are terminal

	return builder
}

// BuildStateMachine returns a machine for the entity's track positioned at stage
func BuildStateMachine(t entity.EntityType, stage domainwf.Stage) (domainwf.StateMachine, error) {
	if !stage.IsValid() {
		return nil, domainwf.Internal(domainwf.ErrInvalidStage, "persisted stage %q is not a known stage", stage)
	}
	switch t {
	case entity.EntityApplication:
		return applicationDefinition.Build(stage), nil
	case entity.EntityRenewal:
		return renewalDefinition.Build(stage), nil
	}
	return nil, domainwf.Validation("unknown entity type %q", t)
}
