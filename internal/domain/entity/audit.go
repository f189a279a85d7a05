package entity

import (
	"time"

	"github.com/memberhub/approval-workflow/internal/domain/workflow"
)

// AuditActionType is the closed set of audit trail action types
type AuditActionType string

const (
	AuditFinancialReviewStart AuditActionType = "financial_review_start"
	AuditFinancialApprove     AuditActionType = "financial_approve"
	AuditFinancialReject      AuditActionType = "financial_reject"
	AuditFinalReviewStart     AuditActionType = "final_review_start"
	AuditFinalApprove         AuditActionType = "final_approve"
	AuditFinalReject          AuditActionType = "final_reject"
	AuditRenewalComplete      AuditActionType = "renewal_complete"
	AuditStatusChange         AuditActionType = "status_change"
)

var auditActionForWorkflowAction = map[workflow.Action]AuditActionType{
	workflow.ActionStartFinancialReview: AuditFinancialReviewStart,
	workflow.ActionApprovePayment:       AuditFinancialApprove,
	workflow.ActionRejectPayment:        AuditFinancialReject,
	workflow.ActionStartFinalReview:     AuditFinalReviewStart,
	workflow.ActionApproveMembership:    AuditFinalApprove,
	workflow.ActionRejectMembership:     AuditFinalReject,
	workflow.ActionCompleteRenewal:      AuditRenewalComplete,
}

// AuditActionFor maps a workflow action to the audit action type it records
func AuditActionFor(a workflow.Action) AuditActionType {
	if t, ok := auditActionForWorkflowAction[a]; ok {
		return t
	}
	return AuditStatusChange
}

// AuditEntry is an immutable record of one workflow transition
type AuditEntry struct {
	ID            int64  `json:"id"`
	ApplicationID *int64 `json:"application_id,omitempty"`
	RenewalID     *int64 `json:"renewal_id,omitempty"`
	TransactionID *int64 `json:"transaction_id,omitempty"`

	ActionType            AuditActionType `json:"action_type"`
	PreviousStatus        string          `json:"previous_status"`
	NewStatus             string          `json:"new_status"`
	PreviousWorkflowStage workflow.Stage  `json:"previous_workflow_stage"`
	NewWorkflowStage      workflow.Stage  `json:"new_workflow_stage"`

	UserID   int64         `json:"user_id"`
	UserRole workflow.Role `json:"user_role"`

	Notes     string                 `json:"notes,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// EntityRef returns which entity the entry belongs to
func (a *AuditEntry) EntityRef() (EntityType, int64) {
	if a.RenewalID != nil {
		return EntityRenewal, *a.RenewalID
	}
	if a.ApplicationID != nil {
		return EntityApplication, *a.ApplicationID
	}
	return "", 0
}

// SetEntity points the entry at exactly one of application or renewal
func (a *AuditEntry) SetEntity(t EntityType, id int64) {
	a.ApplicationID, a.RenewalID = nil, nil
	v := id
	if t == EntityRenewal {
		a.RenewalID = &v
		return
	}
	a.ApplicationID = &v
}

// AuditPage is one page of an entity's audit trail, oldest first
type AuditPage struct {
	Entries     []*AuditEntry `json:"entries"`
	NextAfterID int64         `json:"next_after_id"`
	HasMore     bool          `json:"has_more"`
}
