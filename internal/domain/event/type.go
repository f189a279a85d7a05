package event

// Type identifies the type of domain event
type Type string

const (
	TypeStageChanged         Type = "workflow.stage_changed"
	TypeMembershipApproved   Type = "membership.approved"
	TypeMemberCreated        Type = "member.created"
	TypeMemberCreationFailed Type = "member.creation_failed"
	TypeMemberBirthday       Type = "member.birthday"
	TypeEntitySubmitted      Type = "workflow.entity_submitted"
	TypePaymentVerified      Type = "payment.verified"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeStageChanged,
		TypeMembershipApproved,
		TypeMemberCreated,
		TypeMemberCreationFailed,
		TypeMemberBirthday,
		TypeEntitySubmitted,
		TypePaymentVerified:
		return true
	default:
		return false
	}
}

// AllTypes lists every event type in a stable order
func AllTypes() []Type {
	return []Type{
		TypeEntitySubmitted,
		TypeStageChanged,
		TypeMembershipApproved,
		TypeMemberCreated,
		TypeMemberCreationFailed,
		TypePaymentVerified,
		TypeMemberBirthday,
	}
}
