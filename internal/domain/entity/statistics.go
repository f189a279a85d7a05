package entity

import (
	"encoding/json"
	"time"

	"github.com/memberhub/approval-workflow/internal/domain/workflow"
)

// StatisticsFilter is the enumerable set of dashboard filters
type StatisticsFilter struct {
	EntityType EntityType      `json:"entity_type"`
	Stage      *workflow.Stage `json:"stage,omitempty"`
	DateFrom   *time.Time      `json:"date_from,omitempty"`
	DateTo     *time.Time      `json:"date_to,omitempty"`
	ReviewerID *int64          `json:"reviewer_id,omitempty"`
}

// Signature returns a stable key for caching results of this filter
func (f StatisticsFilter) Signature() string {
	norm := f
	if norm.DateFrom != nil {
		t := norm.DateFrom.UTC()
		norm.DateFrom = &t
	}
	if norm.DateTo != nil {
		t := norm.DateTo.UTC()
		norm.DateTo = &t
	}
	b, _ := json.Marshal(norm)
	return "workflow_stats:" + string(b)
}

// ReviewerThroughput counts actions taken by one reviewer
type ReviewerThroughput struct {
	UserID    int64         `json:"user_id"`
	Role      workflow.Role `json:"user_role"`
	Actions   int64         `json:"actions"`
	Approvals int64         `json:"approvals"`
	Rejects   int64         `json:"rejections"`
}

// WorkflowStatistics is the aggregate served to dashboards
type WorkflowStatistics struct {
	EntityType             EntityType                `json:"entity_type"`
	Total                  int64                     `json:"total"`
	ByStage                map[workflow.Stage]int64  `json:"by_stage"`
	ByFinancialStatus      map[FinancialStatus]int64 `json:"by_financial_status"`
	PendingFinancialReview int64                     `json:"pending_financial_review"`
	PendingFinalReview     int64                     `json:"pending_final_review"`
	ApprovalRate           float64                   `json:"approval_rate"`
	RejectionRate          float64                   `json:"rejection_rate"`
	Reviewers              []ReviewerThroughput      `json:"reviewers"`
	GeneratedAt            time.Time                 `json:"generated_at"`
}

// ComputeRates fills the approval and rejection rates from the stage counts.
// Rates are relative to entities that reached a decision.
func (s *WorkflowStatistics) ComputeRates() {
	approved := s.ByStage[workflow.StageApproved] + s.ByStage[workflow.StageCompleted]
	rejected := s.ByStage[workflow.StageRejected]
	decided := approved + rejected
	if decided == 0 {
		s.ApprovalRate, s.RejectionRate = 0, 0
		return
	}
	s.ApprovalRate = float64(approved) / float64(decided)
	s.RejectionRate = float64(rejected) / float64(decided)
}
