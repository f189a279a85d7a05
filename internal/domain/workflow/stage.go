package workflow

// Stage is the coarse position of an application or renewal in the approval pipeline
type Stage string

const (
	StageSubmitted       Stage = "Submitted"
	StageFinancialReview Stage = "Financial Review"
	StagePaymentApproved Stage = "Payment Approved"
	StageFinalReview     Stage = "Final Review"
	StageApproved        Stage = "Approved"
	StageRejected        Stage = "Rejected"
	StageCompleted       Stage = "Completed"
)

var validStages = map[Stage]bool{
	StageSubmitted:       true,
	StageFinancialReview: true,
	StagePaymentApproved: true,
	StageFinalReview:     true,
	StageApproved:        true,
	StageRejected:        true,
	StageCompleted:       true,
}

var terminalStages = map[Stage]bool{
	StageApproved:  true,
	StageRejected:  true,
	StageCompleted: true,
}

// IsTerminal returns true if no further action can be taken from the stage
func (s Stage) IsTerminal() bool {
	return terminalStages[s]
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// IsValid returns true if the stage is a known workflow stage
func (s Stage) IsValid() bool {
	return validStages[s]
}

// ParseStage converts a persisted or user supplied value to a Stage
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.IsValid() {
		return "", ErrInvalidStage
	}
	return s, nil
}
