package models

import "time"

// ScheduleSession is one scheduled class period. It is owned by the
// scheduling subsystem and read-only to this service.
type ScheduleSession struct {
	ID                string       `db:"id" json:"id"`
	ClassID           string       `db:"class_id" json:"class_id"`
	ClassName         *string      `db:"class_name" json:"class_name,omitempty"`
	TeacherID         string       `db:"teacher_id" json:"teacher_id"`
	SubjectID         string       `db:"subject_id" json:"subject_id"`
	SubjectName       *string      `db:"subject_name" json:"subject_name,omitempty"`
	Weekday           time.Weekday `db:"weekday" json:"weekday"`
	StartTime         string       `db:"start_time" json:"start_time"`
	EndTime           string       `db:"end_time" json:"end_time"`
	Active            bool         `db:"active" json:"active"`
	HomeroomTeacherID *string      `db:"homeroom_teacher_id" json:"homeroom_teacher_id,omitempty"`
}

// ScheduledToday reports whether the session occurs on the given date's
// weekday.
func (s ScheduleSession) ScheduledToday(date time.Time) bool {
	return s.Weekday == date.Weekday()
}

// Student is the roster view of an enrolled student, read-only here.
type Student struct {
	ID       string `db:"id" json:"id"`
	NIS      string `db:"nis" json:"nis"`
	FullName string `db:"full_name" json:"full_name"`
	ClassID  string `db:"class_id" json:"class_id"`
	Active   bool   `db:"active" json:"active"`
}
