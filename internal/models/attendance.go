package models

import "time"

// AttendanceStatus is the single closed enumeration shared by the classifier,
// the recorder and the session closer.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusIzin    AttendanceStatus = "IZIN"
	AttendanceStatusSick    AttendanceStatus = "SICK"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusReturn  AttendanceStatus = "RETURN"
	AttendanceStatusDinas   AttendanceStatus = "DINAS"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusIzin,
		AttendanceStatusSick, AttendanceStatusAbsent, AttendanceStatusReturn,
		AttendanceStatusDinas:
		return true
	default:
		return false
	}
}

// Excused reports whether the status represents a sanctioned absence.
func (s AttendanceStatus) Excused() bool {
	switch s {
	case AttendanceStatusIzin, AttendanceStatusSick, AttendanceStatusDinas:
		return true
	default:
		return false
	}
}

// AttendanceSource identifies how a record came to exist.
type AttendanceSource string

const (
	SourceQRCode       AttendanceSource = "QRCODE"
	SourceTeacherScan  AttendanceSource = "TEACHER_SCAN"
	SourceManual       AttendanceSource = "MANUAL"
	SourceSystemClose  AttendanceSource = "SYSTEM_CLOSE"
	SourceLeaveCascade AttendanceSource = "LEAVE_CASCADE"
)

// Valid returns true when the source is a supported value.
func (s AttendanceSource) Valid() bool {
	switch s {
	case SourceQRCode, SourceTeacherScan, SourceManual, SourceSystemClose, SourceLeaveCascade:
		return true
	default:
		return false
	}
}

// AttendeeType discriminates student and teacher records.
type AttendeeType string

const (
	AttendeeStudent AttendeeType = "STUDENT"
	AttendeeTeacher AttendeeType = "TEACHER"
)

// AttendanceRecord is one attendance row. Exactly one exists per
// (attendee_id, schedule_session_id, date).
type AttendanceRecord struct {
	ID                string           `db:"id" json:"id"`
	AttendeeID        string           `db:"attendee_id" json:"attendee_id"`
	AttendeeType      AttendeeType     `db:"attendee_type" json:"attendee_type"`
	ScheduleSessionID string           `db:"schedule_session_id" json:"schedule_session_id"`
	Date              time.Time        `db:"date" json:"date"`
	Status            AttendanceStatus `db:"status" json:"status"`
	Source            AttendanceSource `db:"source" json:"source"`
	CheckedInAt       *time.Time       `db:"checked_in_at" json:"checked_in_at,omitempty"`
	Reason            *string          `db:"reason" json:"reason,omitempty"`
	AttachmentID      *string          `db:"attachment_id" json:"attachment_id,omitempty"`
	LeavePermissionID *string          `db:"leave_permission_id" json:"leave_permission_id,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter scopes listing queries.
type AttendanceFilter struct {
	ScheduleSessionID string
	AttendeeID        string
	AttendeeType      *AttendeeType
	Status            *AttendanceStatus
	DateFrom          *time.Time
	DateTo            *time.Time
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}

// AttendanceRecordDetail extends a record with roster metadata.
type AttendanceRecordDetail struct {
	AttendanceRecord
	AttendeeName *string `db:"attendee_name" json:"attendee_name,omitempty"`
	ClassID      *string `db:"class_id" json:"class_id,omitempty"`
	SubjectName  *string `db:"subject_name" json:"subject_name,omitempty"`
}

// SessionCloseout marks a session as finalized for a date. Its existence
// rejects further scans and token generation.
type SessionCloseout struct {
	ID                string    `db:"id" json:"id"`
	ScheduleSessionID string    `db:"schedule_session_id" json:"schedule_session_id"`
	Date              time.Time `db:"date" json:"date"`
	ClosedBy          string    `db:"closed_by" json:"closed_by"`
	ClosedAt          time.Time `db:"closed_at" json:"closed_at"`
	AbsentCount       int       `db:"absent_count" json:"absent_count"`
	ExcusedCount      int       `db:"excused_count" json:"excused_count"`
}

// RecapRow aggregates per-status counts for one student on a class/date.
type RecapRow struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	Present     int    `db:"present" json:"present"`
	Late        int    `db:"late" json:"late"`
	Izin        int    `db:"izin" json:"izin"`
	Sick        int    `db:"sick" json:"sick"`
	Dinas       int    `db:"dinas" json:"dinas"`
	Absent      int    `db:"absent" json:"absent"`
}
