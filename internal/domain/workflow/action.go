package workflow

// Action is a reviewer command that can move an entity between stages
type Action string

const (
	ActionStartFinancialReview Action = "start_financial_review"
	ActionApprovePayment       Action = "approve_payment"
	ActionRejectPayment        Action = "reject_payment"
	ActionStartFinalReview     Action = "start_final_review"
	ActionApproveMembership    Action = "approve_membership"
	ActionRejectMembership     Action = "reject_membership"
	ActionCompleteRenewal      Action = "complete_renewal"
)

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// IsValid reports whether the action is one of the defined constants
func (a Action) IsValid() bool {
	switch a {
	case ActionStartFinancialReview,
		ActionApprovePayment,
		ActionRejectPayment,
		ActionStartFinalReview,
		ActionApproveMembership,
		ActionRejectMembership,
		ActionCompleteRenewal:
		return true
	default:
		return false
	}
}

// Role is the reviewer role carried by the acting user
type Role string

const (
	RoleFinancialReviewer  Role = "financial_reviewer"
	RoleMembershipApprover Role = "membership_approver"
)

// IsValid reports whether the role is recognised by the workflow
func (r Role) IsValid() bool {
	return r == RoleFinancialReviewer || r == RoleMembershipApprover
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}
