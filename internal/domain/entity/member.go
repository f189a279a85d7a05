package entity

import "time"

// Member is the record materialised from an approved application
type Member struct {
	ID               int64      `json:"id"`
	ApplicationID    int64      `json:"application_id"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	IDNumber         string     `json:"id_number"`
	Email            string     `json:"email,omitempty"`
	CellNumber       string     `json:"cell_number,omitempty"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty"`
	WardCode         string     `json:"ward_code,omitempty"`
	MembershipExpiry time.Time  `json:"membership_expiry"`
	CreatedAt        time.Time  `json:"created_at"`
}

// FullName returns first and last name joined by a space
func (m *Member) FullName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}
