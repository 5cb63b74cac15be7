package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/clock"
	"github.com/noah-isme/sma-presensi-api/pkg/config"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/lock"
)

type attendanceRepository interface {
	GetOrCreate(ctx context.Context, candidate *models.AttendanceRecord) (*models.AttendanceRecord, bool, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, reason *string) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
}

type tokenValidator interface {
	Validate(ctx context.Context, value string) (*models.QRToken, error)
}

type leaveConsulter interface {
	FindActiveForStudent(ctx context.Context, studentID string, date time.Time) (*models.LeavePermission, error)
}

type recapInvalidator interface {
	Invalidate(ctx context.Context, classID string, date time.Time)
}

type scanMetrics interface {
	ObserveScan(source models.AttendanceSource, status models.AttendanceStatus, duplicate bool)
	ObserveLockContention(scope string)
}

// AttendanceService is the recorder: the only write path for scan-originated
// attendance rows.
type AttendanceService struct {
	records   attendanceRepository
	tokens    tokenValidator
	sessions  sessionReader
	closeouts closeoutReader
	students  studentReader
	leaves    leaveConsulter
	gate      *ProximityGate
	locker    lock.Locker
	clock     clock.Clock
	cfg       config.AttendanceConfig
	sink      attendanceRecordedSink
	recaps    recapInvalidator
	metrics   scanMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the recorder. The sink, recap invalidator
// and metrics are optional.
func NewAttendanceService(records attendanceRepository, tokens tokenValidator, sessions sessionReader,
	closeouts closeoutReader, students studentReader, leaves leaveConsulter, gate *ProximityGate,
	locker lock.Locker, clk clock.Clock, cfg config.AttendanceConfig,
	sink attendanceRecordedSink, recaps recapInvalidator, metrics scanMetrics,
	validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &AttendanceService{
		records: records, tokens: tokens, sessions: sessions, closeouts: closeouts,
		students: students, leaves: leaves, gate: gate, locker: locker, clock: clk,
		cfg: cfg, sink: sink, recaps: recaps, metrics: metrics,
		validator: validate, logger: logger,
	}
}

// ScanRequest is a self-service QR scan.
type ScanRequest struct {
	Token     string   `json:"token" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"omitempty"`
	Longitude *float64 `json:"longitude" validate:"omitempty"`
}

// ScanByIdentifierRequest is a teacher-assisted scan for a student without a
// working device, keyed by the student's NIS.
type ScanByIdentifierRequest struct {
	ScheduleSessionID string `json:"schedule_session_id" validate:"required"`
	NIS               string `json:"nis" validate:"required"`
}

// RecordResult is the scan outcome. Duplicate marks an idempotent replay; the
// returned record is the surviving row either way.
type RecordResult struct {
	Record    *models.AttendanceRecord `json:"record"`
	Duplicate bool                     `json:"duplicate"`
	Message   string                   `json:"message,omitempty"`
}

// Scan records attendance from a QR token. The token decides the session and
// the attendee category; the caller's identity comes from the JWT claims.
func (s *AttendanceService) Scan(ctx context.Context, req ScanRequest, claims *models.JWTClaims) (*RecordResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	token, err := s.tokens.Validate(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	session, err := s.findSession(ctx, token.ScheduleSessionID)
	if err != nil {
		return nil, err
	}

	var attendeeID string
	var attendeeType models.AttendeeType
	switch token.Category {
	case models.TokenCategoryStudent:
		if claims.Role != models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student token requires a student identity")
		}
		student, err := s.findStudent(ctx, claims.UserID)
		if err != nil {
			return nil, err
		}
		if student.ClassID != session.ClassID {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrBlocked, "student is not enrolled in this session's class"), map[string]interface{}{
				"student_class_id": student.ClassID,
				"session_class_id": session.ClassID,
			})
		}
		attendeeID = student.ID
		attendeeType = models.AttendeeStudent
	case models.TokenCategoryTeacher:
		if claims.Role != models.RoleTeacher || claims.UserID != session.TeacherID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "teacher token is bound to the session's teacher")
		}
		attendeeID = claims.UserID
		attendeeType = models.AttendeeTeacher
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "unknown token category")
	}

	if s.gate != nil {
		if err := s.gate.Check(req.Latitude, req.Longitude); err != nil {
			return nil, err
		}
	}
	return s.record(ctx, session, attendeeID, attendeeType, models.SourceQRCode)
}

// ScanByIdentifier records attendance on behalf of a student. Only the
// session's teacher, the homeroom supervisor, or an admin may use it. The
// proximity gate is skipped: the operator is an authenticated staff member.
func (s *AttendanceService) ScanByIdentifier(ctx context.Context, req ScanByIdentifierRequest, claims *models.JWTClaims) (*RecordResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	session, err := s.findSession(ctx, req.ScheduleSessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOperator(session, claims); err != nil {
		return nil, err
	}

	student, err := s.students.FindByNIS(ctx, req.NIS)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if student.ClassID != session.ClassID {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrBlocked, "student is not enrolled in this session's class"), map[string]interface{}{
			"student_class_id": student.ClassID,
			"session_class_id": session.ClassID,
		})
	}
	return s.record(ctx, session, student.ID, models.AttendeeStudent, models.SourceTeacherScan)
}

// record is the single critical section shared by both scan paths: closeout
// check, leave veto, per-attendee lock, classify, then get-or-create.
func (s *AttendanceService) record(ctx context.Context, session *models.ScheduleSession,
	attendeeID string, attendeeType models.AttendeeType, source models.AttendanceSource) (*RecordResult, error) {
	now := s.clock.Now()
	date := clock.DateOf(now)

	closeout, err := s.closeouts.FindCloseout(ctx, session.ID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if closeout != nil {
		return nil, appErrors.WithDetails(appErrors.ErrAlreadyClosed, map[string]interface{}{
			"closeout_id": closeout.ID,
			"closed_at":   closeout.ClosedAt,
		})
	}

	if attendeeType == models.AttendeeStudent && s.leaves != nil {
		permission, err := s.leaves.FindActiveForStudent(ctx, attendeeID, date)
		if err != nil {
			return nil, err
		}
		if ShouldHideFromAttendance(permission, session) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrBlocked, "an active leave covers this session"), map[string]interface{}{
				"leave_id":   permission.ID,
				"leave_type": permission.Type,
				"reason":     permission.Reason,
			})
		}
	}

	lockKey := fmt.Sprintf("attendance:%s:%s:%s", attendeeID, session.ID, date.Format("2006-01-02"))
	lease, err := s.locker.Acquire(ctx, lockKey, s.cfg.LockWait, s.cfg.LockTTL)
	if err != nil {
		if err == lock.ErrBusy {
			if s.metrics != nil {
				s.metrics.ObserveLockContention("attendance")
			}
			return nil, appErrors.Clone(appErrors.ErrBusy, "another scan for this attendee is in progress")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	defer lease.Release(ctx) //nolint:errcheck

	status := Classify(clock.At(date, session.StartTime), s.cfg.GracePeriod, now)
	candidate := &models.AttendanceRecord{
		AttendeeID:        attendeeID,
		AttendeeType:      attendeeType,
		ScheduleSessionID: session.ID,
		Date:              date,
		Status:            status,
		Source:            source,
		CheckedInAt:       &now,
	}
	stored, created, err := s.records.GetOrCreate(ctx, candidate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}

	if s.metrics != nil {
		s.metrics.ObserveScan(source, stored.Status, !created)
	}
	if !created {
		return &RecordResult{
			Record:    stored,
			Duplicate: true,
			Message:   fmt.Sprintf("attendance already recorded as %s", stored.Status),
		}, nil
	}

	// Post-commit only: the row is durable before any observer hears of it.
	if s.sink != nil {
		s.sink.AttendanceRecorded(ctx, AttendanceRecorded{Record: *stored, ClassID: session.ClassID})
	}
	if s.recaps != nil {
		s.recaps.Invalidate(ctx, session.ClassID, date)
	}
	s.logger.Info("attendance recorded",
		zap.String("attendee_id", attendeeID),
		zap.String("session_id", session.ID),
		zap.String("status", string(stored.Status)),
		zap.String("source", string(source)))
	return &RecordResult{Record: stored}, nil
}

// CorrectRequest is a staff status correction.
type CorrectRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// Correct overrides a record's status. The correction is attributed to the
// MANUAL source and requires the session's teacher, the homeroom supervisor,
// or an admin.
func (s *AttendanceService) Correct(ctx context.Context, id string, req CorrectRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid correction payload")
	}
	status := models.AttendanceStatus(strings.ToUpper(req.Status))
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}

	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if record == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	session, err := s.findSession(ctx, record.ScheduleSessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOperator(session, claims); err != nil {
		return nil, err
	}

	reason := req.Reason
	updated, err := s.records.UpdateStatus(ctx, id, status, &reason)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if s.recaps != nil {
		s.recaps.Invalidate(ctx, session.ClassID, record.Date)
	}
	return updated, nil
}

// ListRequest scopes the attendance read side.
type ListRequest struct {
	ScheduleSessionID string
	AttendeeID        string
	AttendeeType      *string
	Status            *string
	DateFrom          *time.Time
	DateTo            *time.Time
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}

// List returns attendance records with roster metadata.
func (s *AttendanceService) List(ctx context.Context, req ListRequest) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	filter := models.AttendanceFilter{
		ScheduleSessionID: req.ScheduleSessionID,
		AttendeeID:        req.AttendeeID,
		DateFrom:          req.DateFrom,
		DateTo:            req.DateTo,
		Page:              req.Page,
		PageSize:          req.PageSize,
		SortBy:            req.SortBy,
		SortOrder:         req.SortOrder,
	}
	if req.AttendeeType != nil {
		t := models.AttendeeType(strings.ToUpper(*req.AttendeeType))
		filter.AttendeeType = &t
	}
	if req.Status != nil {
		st := models.AttendanceStatus(strings.ToUpper(*req.Status))
		if !st.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
		}
		filter.Status = &st
	}
	rows, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return rows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// authorizeOperator allows admins, the session teacher, and the homeroom
// supervisor.
func (s *AttendanceService) authorizeOperator(session *models.ScheduleSession, claims *models.JWTClaims) error {
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
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage attendance for this session")
}

func (s *AttendanceService) findSession(ctx context.Context, id string) (*models.ScheduleSession, error) {
	session, err := s.sessions.FindSession(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule session not found")
	}
	return session, nil
}

func (s *AttendanceService) findStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, nil
}
