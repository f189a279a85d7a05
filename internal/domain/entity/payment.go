package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks a single payment attempt
type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentProcessing           PaymentStatus = "processing"
	PaymentCompleted            PaymentStatus = "completed"
	PaymentFailed               PaymentStatus = "failed"
	PaymentCancelled            PaymentStatus = "cancelled"
	PaymentVerificationRequired PaymentStatus = "verification_required"
)

// IsValid reports whether the value is a known payment status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentCancelled, PaymentVerificationRequired:
		return true
	}
	return false
}

// PaymentMethod is how the applicant paid
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCard   PaymentMethod = "card"
	MethodEFT    PaymentMethod = "eft"
	MethodOnline PaymentMethod = "online"
)

// IsValid reports whether the value is a known payment method
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodCard, MethodEFT, MethodOnline:
		return true
	}
	return false
}

// PaymentTransaction is one payment attempt tied to an application or a renewal
type PaymentTransaction struct {
	ID            int64  `json:"id"`
	ApplicationID *int64 `json:"application_id,omitempty"`
	RenewalID     *int64 `json:"renewal_id,omitempty"`

	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Method           PaymentMethod   `json:"method"`
	Status           PaymentStatus   `json:"status"`
	GatewayReference string          `json:"gateway_reference,omitempty"`

	VerifiedBy        *int64     `json:"verified_by,omitempty"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	VerificationNotes string     `json:"verification_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetEntity attaches the payment to exactly one of application or renewal
func (p *PaymentTransaction) SetEntity(t EntityType, id int64) {
	p.ApplicationID, p.RenewalID = nil, nil
	v := id
	if t == EntityRenewal {
		p.RenewalID = &v
		return
	}
	p.ApplicationID = &v
}

// NeedsVerification reports whether a reviewer may still verify this payment
func (p *PaymentTransaction) NeedsVerification() bool {
	return p.Status == PaymentPending || p.Status == PaymentVerificationRequired
}
