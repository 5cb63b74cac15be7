package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/clock"
)

type cascadeAttendanceWriter interface {
	GetOrCreate(ctx context.Context, candidate *models.AttendanceRecord) (*models.AttendanceRecord, bool, error)
	ExpireLeaveCascades(ctx context.Context, leaveID string, sessionIDs []string) (int64, error)
}

type scheduleLister interface {
	ListByClassAndWeekday(ctx context.Context, classID string, weekday time.Weekday) ([]models.ScheduleSession, error)
}

// CascadeService materializes the attendance side effects of leave grants:
// one excused record per affected session, written once at grant time so the
// attendance table stays the single source of truth.
type CascadeService struct {
	attendance cascadeAttendanceWriter
	schedules  scheduleLister
	students   studentReader
	clock      clock.Clock
	logger     *zap.Logger
}

// NewCascadeService constructs the cascade handler.
func NewCascadeService(attendance cascadeAttendanceWriter, schedules scheduleLister,
	students studentReader, clk clock.Clock, logger *zap.Logger) *CascadeService {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CascadeService{attendance: attendance, schedules: schedules, students: students, clock: clk, logger: logger}
}

// LeaveGranted writes excused records for the sessions the leave covers.
// Full-day leaves cover every session of the date still in progress or
// upcoming. Open-ended partial leaves cover sessions from the leave start on.
// Bounded partial leaves cascade nothing: the student is expected back, and
// ShouldHideFromAttendance guards the covered window per scan instead.
func (s *CascadeService) LeaveGranted(ctx context.Context, event LeaveGranted) error {
	permission := event.Permission
	if !permission.IsFullDay && permission.EndTime != nil {
		return nil
	}

	student, err := s.students.FindByID(ctx, permission.StudentID)
	if err != nil {
		return err
	}
	if student == nil {
		return nil
	}
	sessions, err := s.schedules.ListByClassAndWeekday(ctx, student.ClassID, permission.Date.Weekday())
	if err != nil {
		return err
	}

	threshold := s.clock.Now()
	if !permission.IsFullDay && permission.StartTime != nil {
		if t := clock.At(permission.Date, *permission.StartTime); !t.IsZero() && t.After(threshold) {
			threshold = t
		}
	}

	status := permission.Type.AttendanceStatus()
	written := 0
	for i := range sessions {
		session := sessions[i]
		if !session.Active {
			continue
		}
		end := clock.At(permission.Date, session.EndTime)
		if end.IsZero() || end.Before(threshold) {
			continue
		}
		reason := permission.Reason
		candidate := &models.AttendanceRecord{
			AttendeeID:        permission.StudentID,
			AttendeeType:      models.AttendeeStudent,
			ScheduleSessionID: session.ID,
			Date:              clock.DateOf(permission.Date),
			Status:            status,
			Source:            models.SourceLeaveCascade,
			Reason:            &reason,
			LeavePermissionID: &permission.ID,
		}
		_, created, err := s.attendance.GetOrCreate(ctx, candidate)
		if err != nil {
			return err
		}
		if created {
			written++
		}
	}
	s.logger.Info("leave cascade applied",
		zap.String("leave_id", permission.ID),
		zap.String("student_id", permission.StudentID),
		zap.Int("records", written))
	return nil
}

// LeaveExpired flips cascade records back to ABSENT for sessions that already
// started when the leave lapsed without a return.
func (s *CascadeService) LeaveExpired(ctx context.Context, permission models.LeavePermission) error {
	student, err := s.students.FindByID(ctx, permission.StudentID)
	if err != nil {
		return err
	}
	if student == nil {
		return nil
	}
	sessions, err := s.schedules.ListByClassAndWeekday(ctx, student.ClassID, permission.Date.Weekday())
	if err != nil {
		return err
	}

	now := s.clock.Now()
	started := make([]string, 0, len(sessions))
	for i := range sessions {
		start := clock.At(permission.Date, sessions[i].StartTime)
		if !start.IsZero() && !start.After(now) {
			started = append(started, sessions[i].ID)
		}
	}
	if len(started) == 0 {
		return nil
	}
	swept, err := s.attendance.ExpireLeaveCascades(ctx, permission.ID, started)
	if err != nil {
		return err
	}
	s.logger.Info("leave expiry sweep applied",
		zap.String("leave_id", permission.ID),
		zap.Int64("records", swept))
	return nil
}
