package entity

import (
	"fmt"
	"time"

	"github.com/memberhub/approval-workflow/internal/domain/workflow"
)

// EntityType discriminates the two kinds of record that move through the workflow
type EntityType string

const (
	EntityApplication EntityType = "application"
	EntityRenewal     EntityType = "renewal"
)

// IsValid reports whether the type is application or renewal
func (t EntityType) IsValid() bool {
	return t == EntityApplication || t == EntityRenewal
}

// FinancialStatus is the payment review outcome of an entity
type FinancialStatus string

const (
	FinancialPending     FinancialStatus = "Pending"
	FinancialUnderReview FinancialStatus = "Under Review"
	FinancialApproved    FinancialStatus = "Approved"
	FinancialRejected    FinancialStatus = "Rejected"
)

// IsValid reports whether the value is a known financial status
func (s FinancialStatus) IsValid() bool {
	switch s {
	case FinancialPending, FinancialUnderReview, FinancialApproved, FinancialRejected:
		return true
	}
	return false
}

// Status is the overall membership decision of an entity
type Status string

const (
	StatusPending     Status = "Pending"
	StatusUnderReview Status = "Under Review"
	StatusApproved    Status = "Approved"
	StatusRejected    Status = "Rejected"
	StatusCompleted   Status = "Completed"
)

// IsValid reports whether the value is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// WorkflowEntity is a membership application or renewal moving through the two-tier review
type WorkflowEntity struct {
	ID       int64      `json:"id"`
	Type     EntityType `json:"entity_type"`
	MemberID *int64     `json:"member_id,omitempty"`

	FinancialStatus FinancialStatus `json:"financial_status"`
	Status          Status          `json:"status"`
	Stage           workflow.Stage  `json:"workflow_stage"`

	FinancialReviewedBy *int64     `json:"financial_reviewed_by,omitempty"`
	FinancialReviewedAt *time.Time `json:"financial_reviewed_at,omitempty"`
	FinalReviewedBy     *int64     `json:"final_reviewed_by,omitempty"`
	FinalReviewedAt     *time.Time `json:"final_reviewed_at,omitempty"`

	FinancialRejectionReason string `json:"financial_rejection_reason,omitempty"`
	FinancialAdminNotes      string `json:"financial_admin_notes,omitempty"`
	AdminNotes               string `json:"admin_notes,omitempty"`
	RejectionReason          string `json:"rejection_reason,omitempty"`

	Applicant           Applicant `json:"applicant"`
	RenewalPeriodMonths int       `json:"renewal_period_months,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Applicant holds the personal details captured at submission
type Applicant struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	IDNumber    string     `json:"id_number"`
	Email       string     `json:"email,omitempty"`
	CellNumber  string     `json:"cell_number,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	WardCode    string     `json:"ward_code,omitempty"`
}

// NewSubmitted returns an entity in its initial state
func NewSubmitted(t EntityType, applicant Applicant) *WorkflowEntity {
	return &WorkflowEntity{
		Type:            t,
		FinancialStatus: FinancialPending,
		Status:          StatusPending,
		Stage:           workflow.StageSubmitted,
		Applicant:       applicant,
	}
}

// Clone returns a deep copy so post-commit collaborators never share pointers with the caller
func (e *WorkflowEntity) Clone() *WorkflowEntity {
	if e == nil {
		return nil
	}
	c := *e
	c.MemberID = cloneInt64(e.MemberID)
	c.FinancialReviewedBy = cloneInt64(e.FinancialReviewedBy)
	c.FinalReviewedBy = cloneInt64(e.FinalReviewedBy)
	c.FinancialReviewedAt = cloneTime(e.FinancialReviewedAt)
	c.FinalReviewedAt = cloneTime(e.FinalReviewedAt)
	c.Applicant.DateOfBirth = cloneTime(e.Applicant.DateOfBirth)
	return &c
}

type stageStatus struct {
	financial FinancialStatus
	status    Status
}

var consistentStatuses = map[workflow.Stage][]stageStatus{
	workflow.StageSubmitted:       {{FinancialPending, StatusPending}},
	workflow.StageFinancialReview: {{FinancialUnderReview, StatusUnderReview}},
	workflow.StagePaymentApproved: {{FinancialApproved, StatusUnderReview}},
	workflow.StageFinalReview:     {{FinancialApproved, StatusUnderReview}},
	workflow.StageApproved:        {{FinancialApproved, StatusApproved}},
	workflow.StageRejected:        {{FinancialRejected, StatusRejected}, {FinancialApproved, StatusRejected}},
	workflow.StageCompleted:       {{FinancialApproved, StatusCompleted}},
}

// CheckConsistency verifies that the stage agrees with financial_status and status,
// that the stage belongs to the entity's track and that the two review tiers were
// performed by different users.
func (e *WorkflowEntity) CheckConsistency() error {
	if !e.Stage.IsValid() {
		return fmt.Errorf("unknown workflow stage %q", e.Stage)
	}
	switch e.Type {
	case EntityApplication:
		if e.Stage == workflow.StageCompleted {
			return fmt.Errorf("applications never reach stage %q", e.Stage)
		}
	case EntityRenewal:
		if e.Stage == workflow.StageFinalReview || e.Stage == workflow.StageApproved {
			return fmt.Errorf("renewals never reach stage %q", e.Stage)
		}
	default:
		return fmt.Errorf("unknown entity type %q", e.Type)
	}

	allowed := consistentStatuses[e.Stage]
	ok := false
	for _, a := range allowed {
		if a.financial == e.FinancialStatus && a.status == e.Status {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("stage %q is inconsistent with financial_status %q and status %q",
			e.Stage, e.FinancialStatus, e.Status)
	}

	if e.FinancialReviewedBy != nil && e.FinalReviewedBy != nil && *e.FinancialReviewedBy == *e.FinalReviewedBy {
		return fmt.Errorf("user %d recorded as both financial and final reviewer", *e.FinancialReviewedBy)
	}
	return nil
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
