package models

import "time"

// LeaveType enumerates the supported excused-absence categories.
type LeaveType string

const (
	LeaveSickFullDay   LeaveType = "SICK_FULL_DAY"
	LeavePermitFullDay LeaveType = "PERMIT_FULL_DAY"
	LeaveEarly         LeaveType = "LEAVE_EARLY"
	LeaveDispensation  LeaveType = "DISPENSATION"
)

// Valid returns true when the type is a supported value.
func (t LeaveType) Valid() bool {
	switch t {
	case LeaveSickFullDay, LeavePermitFullDay, LeaveEarly, LeaveDispensation:
		return true
	default:
		return false
	}
}

// FullDay reports whether the type suspends attendance for the whole date.
func (t LeaveType) FullDay() bool {
	return t == LeaveSickFullDay || t == LeavePermitFullDay
}

// AttendanceStatus is the canonical leave-type to attendance-status mapping
// used by the cascade handler and the session closer.
func (t LeaveType) AttendanceStatus() AttendanceStatus {
	if t == LeaveSickFullDay {
		return AttendanceStatusSick
	}
	return AttendanceStatusIzin
}

// LeaveStatus tracks the permission lifecycle. RETURNED and EXPIRED are
// terminal; a new permission must be created instead of reactivating.
type LeaveStatus string

const (
	LeaveStatusActive   LeaveStatus = "ACTIVE"
	LeaveStatusReturned LeaveStatus = "RETURNED"
	LeaveStatusExpired  LeaveStatus = "EXPIRED"
)

// LeavePermission is one approved exemption window. At most one ACTIVE row
// exists per (student_id, date).
type LeavePermission struct {
	ID        string      `db:"id" json:"id"`
	StudentID string      `db:"student_id" json:"student_id"`
	Date      time.Time   `db:"date" json:"date"`
	Type      LeaveType   `db:"type" json:"type"`
	Status    LeaveStatus `db:"status" json:"status"`
	IsFullDay bool        `db:"is_full_day" json:"is_full_day"`
	// StartTime/EndTime bound partial-day leaves ("HH:MM"); a nil EndTime
	// means "until end of day".
	StartTime  *string    `db:"start_time" json:"start_time,omitempty"`
	EndTime    *string    `db:"end_time" json:"end_time,omitempty"`
	GrantedBy  string     `db:"granted_by" json:"granted_by"`
	Reason     string     `db:"reason" json:"reason"`
	ReturnedAt *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	ReturnedBy *string    `db:"returned_by" json:"returned_by,omitempty"`
	ExpiredAt  *time.Time `db:"expired_at" json:"expired_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// LeaveFilter scopes listing queries.
type LeaveFilter struct {
	StudentID string
	Date      *time.Time
	Status    *LeaveStatus
	Page      int
	PageSize  int
}
