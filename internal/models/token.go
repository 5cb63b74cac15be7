package models

import "time"

// TokenCategory identifies which attendee category a QR token admits.
type TokenCategory string

const (
	TokenCategoryStudent TokenCategory = "STUDENT"
	TokenCategoryTeacher TokenCategory = "TEACHER"
)

// Valid returns true when the category is a supported value.
func (c TokenCategory) Valid() bool {
	return c == TokenCategoryStudent || c == TokenCategoryTeacher
}

// TokenStatus tracks the QR token lifecycle. Tokens are never deleted.
type TokenStatus string

const (
	TokenStatusAvailable TokenStatus = "AVAILABLE"
	TokenStatusActive    TokenStatus = "ACTIVE"
	TokenStatusExpired   TokenStatus = "EXPIRED"
	TokenStatusRevoked   TokenStatus = "REVOKED"
)

// QRToken represents one issuance. At most one ACTIVE token exists per
// (schedule_session_id, category) at any instant.
type QRToken struct {
	ID                string      `db:"id" json:"id"`
	Token             string      `db:"token" json:"token"`
	Category          TokenCategory `db:"category" json:"category"`
	ScheduleSessionID string      `db:"schedule_session_id" json:"schedule_session_id"`
	IssuedBy          string      `db:"issued_by" json:"issued_by"`
	Status            TokenStatus `db:"status" json:"status"`
	ExpiresAt         time.Time   `db:"expires_at" json:"expires_at"`
	RevokedAt         *time.Time  `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}
