package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/clock"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
)

type leaveRepository interface {
	Create(ctx context.Context, permission *models.LeavePermission) (*models.LeavePermission, bool, error)
	FindByID(ctx context.Context, id string) (*models.LeavePermission, error)
	FindActiveByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.LeavePermission, error)
	MarkReturned(ctx context.Context, id string, at time.Time, actorID string) (bool, error)
	MarkExpired(ctx context.Context, id string, at time.Time) (bool, error)
	List(ctx context.Context, filter models.LeaveFilter) ([]models.LeavePermission, int, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByNIS(ctx context.Context, nis string) (*models.Student, error)
}

// leaveEffects receives leave lifecycle events. The cascade handler
// materializes excused attendance rows on grant and sweeps lapsed cascades
// on expiry.
type leaveEffects interface {
	LeaveGranted(ctx context.Context, event LeaveGranted) error
	LeaveExpired(ctx context.Context, permission models.LeavePermission) error
}

// LeaveService owns the leave permission lifecycle.
type LeaveService struct {
	leaves    leaveRepository
	students  studentReader
	effects   leaveEffects
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLeaveService constructs the leave service.
func NewLeaveService(leaves leaveRepository, students studentReader, effects leaveEffects,
	clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &LeaveService{leaves: leaves, students: students, effects: effects, clock: clk, validator: validate, logger: logger}
}

// FullDayLeaveRequest grants a whole-day exemption.
type FullDayLeaveRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Type      string `json:"type" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

// EarlyLeaveRequest grants a partial-day exemption starting now (or at
// StartTime). A missing EndTime means the student is out until end of day.
type EarlyLeaveRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Type      string  `json:"type" validate:"required"`
	StartTime *string `json:"start_time" validate:"omitempty,len=5"`
	EndTime   *string `json:"end_time" validate:"omitempty,len=5"`
	Reason    string  `json:"reason" validate:"required"`
}

// CreateFullDay grants a full-day leave and cascades excused records to every
// remaining session of the student's class today.
func (s *LeaveService) CreateFullDay(ctx context.Context, req FullDayLeaveRequest, claims *models.JWTClaims) (*models.LeavePermission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	leaveType := models.LeaveType(strings.ToUpper(req.Type))
	if !leaveType.FullDay() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "type must be a full-day leave type")
	}
	permission := &models.LeavePermission{
		StudentID: req.StudentID,
		Type:      leaveType,
		IsFullDay: true,
		GrantedBy: claims.UserID,
		Reason:    req.Reason,
	}
	return s.create(ctx, permission)
}

// CreateEarly grants a partial-day leave. Without an end time the grant
// cascades excused records to every later session today; with one, session
// visibility is decided per-scan by ShouldHideFromAttendance instead.
func (s *LeaveService) CreateEarly(ctx context.Context, req EarlyLeaveRequest, claims *models.JWTClaims) (*models.LeavePermission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	leaveType := models.LeaveType(strings.ToUpper(req.Type))
	if !leaveType.Valid() || leaveType.FullDay() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "type must be a partial-day leave type")
	}
	startTime := req.StartTime
	if startTime == nil {
		hhmm := s.clock.Now().Format("15:04")
		startTime = &hhmm
	}
	permission := &models.LeavePermission{
		StudentID: req.StudentID,
		Type:      leaveType,
		IsFullDay: false,
		StartTime: startTime,
		EndTime:   req.EndTime,
		GrantedBy: claims.UserID,
		Reason:    req.Reason,
	}
	return s.create(ctx, permission)
}

func (s *LeaveService) create(ctx context.Context, permission *models.LeavePermission) (*models.LeavePermission, error) {
	student, err := s.students.FindByID(ctx, permission.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	permission.Date = clock.DateOf(s.clock.Now())
	stored, created, err := s.leaves.Create(ctx, permission)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if !created {
		return nil, appErrors.WithDetails(appErrors.ErrConflict, map[string]interface{}{
			"leave_id": stored.ID,
			"type":     stored.Type,
			"reason":   stored.Reason,
		})
	}

	// The cascade is a one-time write performed on grant, not re-derived
	// later. A failed cascade is surfaced: the caller must know records
	// were not materialized.
	if s.effects != nil {
		if err := s.effects.LeaveGranted(ctx, LeaveGranted{Permission: *stored}); err != nil {
			s.logger.Error("leave cascade failed", zap.String("leave_id", stored.ID), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "leave granted but cascade failed")
		}
	}
	return stored, nil
}

// ShouldHideFromAttendance is the single decision point for whether a leave
// suspends normal attendance for a session: full-day leaves always do,
// partial-day leaves do when the session's window falls inside the leave
// window (end of day when no end time is set).
func ShouldHideFromAttendance(permission *models.LeavePermission, session *models.ScheduleSession) bool {
	if permission == nil || permission.Status != models.LeaveStatusActive {
		return false
	}
	if permission.IsFullDay {
		return true
	}

	date := permission.Date
	sessionStart := clock.At(date, session.StartTime)
	sessionEnd := clock.At(date, session.EndTime)
	if sessionStart.IsZero() || sessionEnd.IsZero() {
		return false
	}

	leaveStart := clock.DateOf(date)
	if permission.StartTime != nil {
		if t := clock.At(date, *permission.StartTime); !t.IsZero() {
			leaveStart = t
		}
	}
	leaveEnd := clock.EndOfDay(date)
	if permission.EndTime != nil {
		if t := clock.At(date, *permission.EndTime); !t.IsZero() {
			leaveEnd = t
		}
	}
	return !sessionStart.Before(leaveStart) && !sessionEnd.After(leaveEnd)
}

// MarkReturned transitions an active leave to RETURNED.
func (s *LeaveService) MarkReturned(ctx context.Context, id string, claims *models.JWTClaims) (*models.LeavePermission, error) {
	permission, err := s.findActiveForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.leaves.MarkReturned(ctx, id, s.clock.Now(), claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if !ok {
		return nil, s.notActive(permission)
	}
	return s.reload(ctx, id)
}

// MarkExpired transitions an active leave to EXPIRED, then sweeps cascade
// records for sessions that already started so a student who never returned
// is finalized absent.
func (s *LeaveService) MarkExpired(ctx context.Context, id string) (*models.LeavePermission, error) {
	permission, err := s.findActiveForTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.leaves.MarkExpired(ctx, id, s.clock.Now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if !ok {
		return nil, s.notActive(permission)
	}
	if s.effects != nil {
		if err := s.effects.LeaveExpired(ctx, *permission); err != nil {
			s.logger.Error("leave expiry sweep failed", zap.String("leave_id", id), zap.Error(err))
		}
	}
	return s.reload(ctx, id)
}

// FindActiveForStudent returns the active leave covering the student on the
// date, or nil. The recorder and the closer consult this.
func (s *LeaveService) FindActiveForStudent(ctx context.Context, studentID string, date time.Time) (*models.LeavePermission, error) {
	permission, err := s.leaves.FindActiveByStudentAndDate(ctx, studentID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	return permission, nil
}

// Get returns a leave by id.
func (s *LeaveService) Get(ctx context.Context, id string) (*models.LeavePermission, error) {
	permission, err := s.leaves.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if permission == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "leave permission not found")
	}
	return permission, nil
}

// LeaveListRequest filters the leave read side.
type LeaveListRequest struct {
	StudentID string
	Date      *time.Time
	Status    *string
	Page      int
	PageSize  int
}

// List returns leaves for collaborators' read side.
func (s *LeaveService) List(ctx context.Context, req LeaveListRequest) ([]models.LeavePermission, *models.Pagination, error) {
	filter := models.LeaveFilter{
		StudentID: req.StudentID,
		Date:      req.Date,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if req.Status != nil {
		status := models.LeaveStatus(strings.ToUpper(*req.Status))
		filter.Status = &status
	}
	rows, total, err := s.leaves.List(ctx, filter)
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

func (s *LeaveService) findActiveForTransition(ctx context.Context, id string) (*models.LeavePermission, error) {
	permission, err := s.leaves.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if permission == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "leave permission not found")
	}
	if permission.Status != models.LeaveStatusActive {
		return nil, s.notActive(permission)
	}
	return permission, nil
}

func (s *LeaveService) notActive(permission *models.LeavePermission) error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidState, "leave permission is not active"), map[string]interface{}{
		"leave_id": permission.ID,
		"status":   permission.Status,
	})
}

func (s *LeaveService) reload(ctx context.Context, id string) (*models.LeavePermission, error) {
	permission, err := s.leaves.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	return permission, nil
}
