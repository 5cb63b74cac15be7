package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/clock"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
)

type fakeLeaveRepo struct {
	existing     *models.LeavePermission
	byID         map[string]*models.LeavePermission
	created      []*models.LeavePermission
	returned     []string
	expired      []string
	createErr    error
	transitionOK bool
}

func (f *fakeLeaveRepo) Create(_ context.Context, permission *models.LeavePermission) (*models.LeavePermission, bool, error) {
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	if f.existing != nil {
		return f.existing, false, nil
	}
	stored := *permission
	stored.ID = "leave-new"
	stored.Status = models.LeaveStatusActive
	f.created = append(f.created, &stored)
	return &stored, true, nil
}

func (f *fakeLeaveRepo) FindByID(_ context.Context, id string) (*models.LeavePermission, error) {
	if id == "leave-new" && len(f.created) > 0 {
		return f.created[len(f.created)-1], nil
	}
	return f.byID[id], nil
}

func (f *fakeLeaveRepo) FindActiveByStudentAndDate(_ context.Context, _ string, _ time.Time) (*models.LeavePermission, error) {
	return f.existing, nil
}

func (f *fakeLeaveRepo) MarkReturned(_ context.Context, id string, _ time.Time, _ string) (bool, error) {
	f.returned = append(f.returned, id)
	return f.transitionOK, nil
}

func (f *fakeLeaveRepo) MarkExpired(_ context.Context, id string, _ time.Time) (bool, error) {
	f.expired = append(f.expired, id)
	return f.transitionOK, nil
}

func (f *fakeLeaveRepo) List(_ context.Context, _ models.LeaveFilter) ([]models.LeavePermission, int, error) {
	return nil, 0, nil
}

type fakeStudentStore struct {
	students map[string]*models.Student
	byNIS    map[string]*models.Student
	err      error
}

func (f *fakeStudentStore) FindByID(_ context.Context, id string) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.students[id], nil
}

func (f *fakeStudentStore) FindByNIS(_ context.Context, nis string) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byNIS[nis], nil
}

type capturingEffects struct {
	granted  []LeaveGranted
	expired  []models.LeavePermission
	grantErr error
}

func (c *capturingEffects) LeaveGranted(_ context.Context, event LeaveGranted) error {
	if c.grantErr != nil {
		return c.grantErr
	}
	c.granted = append(c.granted, event)
	return nil
}

func (c *capturingEffects) LeaveExpired(_ context.Context, permission models.LeavePermission) error {
	c.expired = append(c.expired, permission)
	return nil
}

func leaveTestStudents() *fakeStudentStore {
	return &fakeStudentStore{students: map[string]*models.Student{
		"student-1": {ID: "student-1", NIS: "1001", FullName: "Student One", ClassID: "class-1", Active: true},
	}}
}

func TestLeaveServiceCreateFullDay(t *testing.T) {
	repo := &fakeLeaveRepo{}
	effects := &capturingEffects{}
	svc := NewLeaveService(repo, leaveTestStudents(), effects, clock.Fixed{Instant: scanInstant}, nil, zap.NewNop())

	claims := &models.JWTClaims{UserID: "teacher-homeroom", Role: models.RoleTeacher}
	permission, err := svc.CreateFullDay(context.Background(), FullDayLeaveRequest{
		StudentID: "student-1",
		Type:      "sick_full_day",
		Reason:    "flu",
	}, claims)
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusActive, permission.Status)
	assert.True(t, permission.IsFullDay)
	assert.Equal(t, clock.DateOf(scanInstant), permission.Date)
	require.Len(t, effects.granted, 1)
	assert.Equal(t, permission.ID, effects.granted[0].Permission.ID)
}

func TestLeaveServiceCreateRejectsWrongCategory(t *testing.T) {
	svc := NewLeaveService(&fakeLeaveRepo{}, leaveTestStudents(), &capturingEffects{}, clock.Fixed{Instant: scanInstant}, nil, zap.NewNop())
	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}

	_, err := svc.CreateFullDay(context.Background(), FullDayLeaveRequest{StudentID: "student-1", Type: "leave_early", Reason: "x"}, claims)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.CreateEarly(context.Background(), EarlyLeaveRequest{StudentID: "student-1", Type: "sick_full_day", Reason: "x"}, claims)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestLeaveServiceCreateConflict(t *testing.T) {
	existing := &models.LeavePermission{ID: "leave-1", Type: models.LeavePermitFullDay, Status: models.LeaveStatusActive, Reason: "ceremony"}
	repo := &fakeLeaveRepo{existing: existing}
	svc := NewLeaveService(repo, leaveTestStudents(), &capturingEffects{}, clock.Fixed{Instant: scanInstant}, nil, zap.NewNop())

	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	_, err := svc.CreateFullDay(context.Background(), FullDayLeaveRequest{StudentID: "student-1", Type: "sick_full_day", Reason: "flu"}, claims)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "leave-1", appErr.Details["leave_id"])
}

func TestLeaveServiceCreateEarlyDefaultsStartTime(t *testing.T) {
	repo := &fakeLeaveRepo{}
	svc := NewLeaveService(repo, leaveTestStudents(), &capturingEffects{}, clock.Fixed{Instant: scanInstant}, nil, zap.NewNop())

	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	permission, err := svc.CreateEarly(context.Background(), EarlyLeaveRequest{StudentID: "student-1", Type: "dispensation", Reason: "dentist"}, claims)
	require.NoError(t, err)
	require.NotNil(t, permission.StartTime)
	assert.Equal(t, "07:40", *permission.StartTime)
	assert.Nil(t, permission.EndTime)
	assert.False(t, permission.IsFullDay)
}

func TestLeaveServiceMarkReturned(t *testing.T) {
	active := &models.LeavePermission{ID: "leave-1", StudentID: "student-1", Status: models.LeaveStatusActive}
	repo := &fakeLeaveRepo{byID: map[string]*models.LeavePermission{"leave-1": active}, transitionOK: true}
	svc := NewLeaveService(repo, leaveTestStudents(), &capturingEffects{}, clock.Fixed{Instant: scanInstant}, nil, zap.NewNop())

	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	_, err := svc.MarkReturned(context.Background(), "leave-1", claims)
	require.NoError(t, err)
	assert.Equal(t, []string{"leave-1"}, repo.returned)
}

func TestLeaveServiceMarkReturnedRejectsTerminal(t *testing.T) {
	done := &models.LeavePermission{ID: "leave-1", Status: models.LeaveStatusReturned}
	repo := &fakeLeaveRepo{byID: map[string]*models.LeavePermission{"leave-1": done}}
	svc := NewLeaveService(repo, leaveTestStudents(), &capturingEffects{}, clock.Fixed{Instant: scanInstant}, nil, zap.NewNop())

	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	_, err := svc.MarkReturned(context.Background(), "leave-1", claims)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Empty(t, repo.returned)
}

func TestLeaveServiceMarkExpiredSweeps(t *testing.T) {
	active := &models.LeavePermission{ID: "leave-1", StudentID: "student-1", Status: models.LeaveStatusActive}
	repo := &fakeLeaveRepo{byID: map[string]*models.LeavePermission{"leave-1": active}, transitionOK: true}
	effects := &capturingEffects{}
	svc := NewLeaveService(repo, leaveTestStudents(), effects, clock.Fixed{Instant: scanInstant}, nil, zap.NewNop())

	_, err := svc.MarkExpired(context.Background(), "leave-1")
	require.NoError(t, err)
	require.Len(t, effects.expired, 1)
	assert.Equal(t, "leave-1", effects.expired[0].ID)
}

func TestShouldHideFromAttendance(t *testing.T) {
	session := testSession()
	date := clock.DateOf(scanInstant)
	at := func(hhmm string) *string { return &hhmm }

	cases := []struct {
		name       string
		permission *models.LeavePermission
		want       bool
	}{
		{"nil permission", nil, false},
		{"full day", &models.LeavePermission{Status: models.LeaveStatusActive, IsFullDay: true, Date: date}, true},
		{"terminal leave", &models.LeavePermission{Status: models.LeaveStatusReturned, IsFullDay: true, Date: date}, false},
		{"open ended covers later session", &models.LeavePermission{Status: models.LeaveStatusActive, Date: date, StartTime: at("07:00")}, true},
		{"open ended before session start", &models.LeavePermission{Status: models.LeaveStatusActive, Date: date, StartTime: at("08:00")}, false},
		{"bounded window covers session", &models.LeavePermission{Status: models.LeaveStatusActive, Date: date, StartTime: at("07:00"), EndTime: at("09:00")}, true},
		{"bounded window ends mid session", &models.LeavePermission{Status: models.LeaveStatusActive, Date: date, StartTime: at("07:00"), EndTime: at("08:00")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldHideFromAttendance(tc.permission, session))
		})
	}
}
