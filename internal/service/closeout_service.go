package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/clock"
	"github.com/noah-isme/sma-presensi-api/pkg/config"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/lock"
)

type closeoutAttendanceRepo interface {
	GetOrCreate(ctx context.Context, candidate *models.AttendanceRecord) (*models.AttendanceRecord, bool, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
	CreateCloseout(ctx context.Context, closeout *models.SessionCloseout) error
	FindCloseout(ctx context.Context, sessionID string, date time.Time) (*models.SessionCloseout, error)
}

type rosterReader interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error)
}

type closeoutMetrics interface {
	ObserveCloseoutDuration(d time.Duration)
}

// CloseoutService finalizes a session for a date: every roster student
// without a record is given one, then a closeout marker seals the session
// against further scans and token issuance.
type CloseoutService struct {
	records  closeoutAttendanceRepo
	sessions sessionReader
	roster   rosterReader
	leaves   leaveConsulter
	locker   lock.Locker
	clock    clock.Clock
	cfg      config.AttendanceConfig
	recaps   recapInvalidator
	metrics  closeoutMetrics
	logger   *zap.Logger
}

// NewCloseoutService constructs the session closer. The recap invalidator
// and metrics are optional.
func NewCloseoutService(records closeoutAttendanceRepo, sessions sessionReader, roster rosterReader,
	leaves leaveConsulter, locker lock.Locker, clk clock.Clock, cfg config.AttendanceConfig,
	recaps recapInvalidator, metrics closeoutMetrics, logger *zap.Logger) *CloseoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &CloseoutService{
		records: records, sessions: sessions, roster: roster, leaves: leaves,
		locker: locker, clock: clk, cfg: cfg, recaps: recaps, metrics: metrics, logger: logger,
	}
}

// Close finalizes the session for today. Re-running against an already closed
// session returns the existing marker unchanged, so counts are stable.
func (s *CloseoutService) Close(ctx context.Context, sessionID string, claims *models.JWTClaims) (*models.SessionCloseout, error) {
	session, err := s.sessions.FindSession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule session not found")
	}
	if err := s.authorizeCloser(session, claims); err != nil {
		return nil, err
	}

	started := s.clock.Now()
	date := clock.DateOf(started)

	lockKey := fmt.Sprintf("closeout:%s:%s", sessionID, date.Format("2006-01-02"))
	lease, err := s.locker.Acquire(ctx, lockKey, s.cfg.LockWait, s.cfg.LockTTL)
	if err != nil {
		if err == lock.ErrBusy {
			return nil, appErrors.Clone(appErrors.ErrBusy, "closeout already in progress")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	defer lease.Release(ctx) //nolint:errcheck

	if existing, err := s.records.FindCloseout(ctx, sessionID, date); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	} else if existing != nil {
		return existing, nil
	}

	roster, err := s.roster.ListActiveByClass(ctx, session.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}

	statuses, err := s.existingStatuses(ctx, sessionID, date, len(roster))
	if err != nil {
		return nil, err
	}

	for i := range roster {
		student := roster[i]
		if _, ok := statuses[student.ID]; ok {
			continue
		}
		status := models.AttendanceStatusAbsent
		var leaveID *string
		var reason *string
		if s.leaves != nil {
			permission, err := s.leaves.FindActiveForStudent(ctx, student.ID, date)
			if err != nil {
				return nil, err
			}
			if permission != nil && ShouldHideFromAttendance(permission, session) {
				status = permission.Type.AttendanceStatus()
				leaveID = &permission.ID
				reason = &permission.Reason
			}
		}
		candidate := &models.AttendanceRecord{
			AttendeeID:        student.ID,
			AttendeeType:      models.AttendeeStudent,
			ScheduleSessionID: sessionID,
			Date:              date,
			Status:            status,
			Source:            models.SourceSystemClose,
			Reason:            reason,
			LeavePermissionID: leaveID,
		}
		stored, _, err := s.records.GetOrCreate(ctx, candidate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
		}
		statuses[student.ID] = stored.Status
	}

	// Counts come from the final statuses among the roster, not from what
	// this pass happened to write.
	absent, excused := 0, 0
	for i := range roster {
		switch status := statuses[roster[i].ID]; {
		case status == models.AttendanceStatusAbsent:
			absent++
		case status.Excused():
			excused++
		}
	}

	closeout := &models.SessionCloseout{
		ScheduleSessionID: sessionID,
		Date:              date,
		ClosedBy:          claims.UserID,
		ClosedAt:          s.clock.Now(),
		AbsentCount:       absent,
		ExcusedCount:      excused,
	}
	if err := s.records.CreateCloseout(ctx, closeout); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}

	if s.recaps != nil {
		s.recaps.Invalidate(ctx, session.ClassID, date)
	}
	if s.metrics != nil {
		s.metrics.ObserveCloseoutDuration(s.clock.Now().Sub(started))
	}
	s.logger.Info("session closed",
		zap.String("session_id", sessionID),
		zap.Int("absent", absent),
		zap.Int("excused", excused))
	return closeout, nil
}

// Status returns the closeout marker for the session today, or nil when the
// session is still open.
func (s *CloseoutService) Status(ctx context.Context, sessionID string) (*models.SessionCloseout, error) {
	closeout, err := s.records.FindCloseout(ctx, sessionID, clock.DateOf(s.clock.Now()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	return closeout, nil
}

func (s *CloseoutService) existingStatuses(ctx context.Context, sessionID string, date time.Time, rosterSize int) (map[string]models.AttendanceStatus, error) {
	attendeeType := models.AttendeeStudent
	size := rosterSize + 1
	if size < 50 {
		size = 50
	}
	rows, _, err := s.records.List(ctx, models.AttendanceFilter{
		ScheduleSessionID: sessionID,
		AttendeeType:      &attendeeType,
		DateFrom:          &date,
		DateTo:            &date,
		Page:              1,
		PageSize:          size,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	statuses := make(map[string]models.AttendanceStatus, len(rows))
	for i := range rows {
		statuses[rows[i].AttendeeID] = rows[i].Status
	}
	return statuses, nil
}

func (s *CloseoutService) authorizeCloser(session *models.ScheduleSession, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	switch claims.Role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if claims.UserID == session.TeacherID {
			return nil
		}
		if session.HomeroomTeacherID != nil && claims.UserID == *session.HomeroomTeacherID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to close this session")
}
