package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/clock"
	"github.com/noah-isme/sma-presensi-api/pkg/config"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/lock"
)

type fakeTokenRepo struct {
	active     *models.QRToken
	byValue    map[string]*models.QRToken
	issued     []*models.QRToken
	expired    []string
	revoked    []string
	issueErr   error
	findErr    error
	revokeErr  error
	expireErr  error
	issueCalls int
}

func (f *fakeTokenRepo) IssueExclusive(_ context.Context, candidate *models.QRToken, now time.Time) (*models.QRToken, bool, error) {
	f.issueCalls++
	if f.issueErr != nil {
		return nil, false, f.issueErr
	}
	if f.active != nil && f.active.ExpiresAt.After(now) {
		return f.active, true, nil
	}
	stored := *candidate
	stored.ID = "tok-new"
	stored.Status = models.TokenStatusActive
	f.issued = append(f.issued, &stored)
	return &stored, false, nil
}

func (f *fakeTokenRepo) FindByValue(_ context.Context, value string) (*models.QRToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.byValue[value], nil
}

func (f *fakeTokenRepo) MarkExpired(_ context.Context, id string, _ time.Time) error {
	if f.expireErr != nil {
		return f.expireErr
	}
	f.expired = append(f.expired, id)
	return nil
}

func (f *fakeTokenRepo) Revoke(_ context.Context, id string, _ time.Time) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, id)
	return nil
}

type fakeSessionStore struct {
	sessions map[string]*models.ScheduleSession
	err      error
}

func (f *fakeSessionStore) FindSession(_ context.Context, id string) (*models.ScheduleSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions[id], nil
}

type fakeCloseoutStore struct {
	closeouts map[string]*models.SessionCloseout
	err       error
}

func (f *fakeCloseoutStore) FindCloseout(_ context.Context, sessionID string, _ time.Time) (*models.SessionCloseout, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.closeouts[sessionID], nil
}

type fakeOfficerStore struct {
	officers map[string]bool
	err      error
}

func (f *fakeOfficerStore) IsClassOfficer(_ context.Context, studentID, _ string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.officers[studentID], nil
}

// scanInstant is a Monday 07:40 so sessions starting 07:30 are in window.
var scanInstant = time.Date(2026, time.March, 2, 7, 40, 0, 0, time.UTC)

func testSession() *models.ScheduleSession {
	homeroom := "teacher-homeroom"
	return &models.ScheduleSession{
		ID:                "sess-1",
		ClassID:           "class-1",
		TeacherID:         "teacher-1",
		SubjectID:         "subject-1",
		Weekday:           time.Monday,
		StartTime:         "07:30",
		EndTime:           "08:30",
		Active:            true,
		HomeroomTeacherID: &homeroom,
	}
}

func testAttendanceConfig() config.AttendanceConfig {
	return config.AttendanceConfig{
		GracePeriod:     10 * time.Minute,
		LockWait:        100 * time.Millisecond,
		LockTTL:         time.Second,
		TokenSecret:     "test-secret",
		TokenDefaultTTL: 15 * time.Minute,
		TokenMaxTTL:     30 * time.Minute,
		TokenWindowLead: 15 * time.Minute,
	}
}

func newTokenServiceForTest(tokens *fakeTokenRepo, sessions *fakeSessionStore, closeouts *fakeCloseoutStore, officers *fakeOfficerStore) *TokenService {
	return NewTokenService(tokens, sessions, closeouts, officers,
		lock.NewMemoryLocker(), clock.Fixed{Instant: scanInstant}, testAttendanceConfig(), nil, zap.NewNop())
}

func TestTokenServiceGenerate(t *testing.T) {
	tokens := &fakeTokenRepo{}
	sessions := &fakeSessionStore{sessions: map[string]*models.ScheduleSession{"sess-1": testSession()}}
	svc := newTokenServiceForTest(tokens, sessions, &fakeCloseoutStore{}, &fakeOfficerStore{})

	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	token, err := svc.Generate(context.Background(), GenerateTokenRequest{ScheduleSessionID: "sess-1", Category: "student"}, claims)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, models.TokenStatusActive, token.Status)
	assert.Equal(t, models.TokenCategoryStudent, token.Category)
	assert.True(t, verifyTokenValue("test-secret", token.Token))
	assert.Equal(t, scanInstant.Add(15*time.Minute), token.ExpiresAt)
}

func TestTokenServiceGenerateReusesActiveToken(t *testing.T) {
	existing := &models.QRToken{ID: "tok-1", Status: models.TokenStatusActive, ExpiresAt: scanInstant.Add(5 * time.Minute)}
	tokens := &fakeTokenRepo{active: existing}
	sessions := &fakeSessionStore{sessions: map[string]*models.ScheduleSession{"sess-1": testSession()}}
	svc := newTokenServiceForTest(tokens, sessions, &fakeCloseoutStore{}, &fakeOfficerStore{})

	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	token, err := svc.Generate(context.Background(), GenerateTokenRequest{ScheduleSessionID: "sess-1", Category: "student"}, claims)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.ID)
	assert.Empty(t, tokens.issued)
}

func TestTokenServiceGenerateTTLCapped(t *testing.T) {
	tokens := &fakeTokenRepo{}
	sessions := &fakeSessionStore{sessions: map[string]*models.ScheduleSession{"sess-1": testSession()}}
	svc := newTokenServiceForTest(tokens, sessions, &fakeCloseoutStore{}, &fakeOfficerStore{})

	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	token, err := svc.Generate(context.Background(), GenerateTokenRequest{ScheduleSessionID: "sess-1", Category: "student", TTLMinutes: 120}, claims)
	require.NoError(t, err)
	assert.Equal(t, scanInstant.Add(30*time.Minute), token.ExpiresAt)
}

func TestTokenServiceGenerateAuthorization(t *testing.T) {
	sessions := &fakeSessionStore{sessions: map[string]*models.ScheduleSession{"sess-1": testSession()}}
	officers := &fakeOfficerStore{officers: map[string]bool{"student-officer": true}}

	cases := []struct {
		name     string
		claims   *models.JWTClaims
		category string
		wantErr  *appErrors.Error
	}{
		{"admin allowed", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, "student", nil},
		{"session teacher allowed", &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}, "teacher", nil},
		{"homeroom allowed", &models.JWTClaims{UserID: "teacher-homeroom", Role: models.RoleTeacher}, "student", nil},
		{"other teacher forbidden", &models.JWTClaims{UserID: "teacher-2", Role: models.RoleTeacher}, "student", appErrors.ErrForbidden},
		{"class officer allowed", &models.JWTClaims{UserID: "student-officer", Role: models.RoleStudent}, "student", nil},
		{"officer cannot issue teacher token", &models.JWTClaims{UserID: "student-officer", Role: models.RoleStudent}, "teacher", appErrors.ErrForbidden},
		{"plain student forbidden", &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}, "student", appErrors.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTokenServiceForTest(&fakeTokenRepo{}, sessions, &fakeCloseoutStore{}, officers)
			_, err := svc.Generate(context.Background(), GenerateTokenRequest{ScheduleSessionID: "sess-1", Category: tc.category}, tc.claims)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, appErrors.Is(err, tc.wantErr))
			}
		})
	}
}

func TestTokenServiceGenerateClosedSession(t *testing.T) {
	sessions := &fakeSessionStore{sessions: map[string]*models.ScheduleSession{"sess-1": testSession()}}
	closeouts := &fakeCloseoutStore{closeouts: map[string]*models.SessionCloseout{
		"sess-1": {ID: "close-1", ScheduleSessionID: "sess-1", ClosedAt: scanInstant},
	}}
	svc := newTokenServiceForTest(&fakeTokenRepo{}, sessions, closeouts, &fakeOfficerStore{})

	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	_, err := svc.Generate(context.Background(), GenerateTokenRequest{ScheduleSessionID: "sess-1", Category: "student"}, claims)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyClosed))
}

func TestTokenServiceGenerateOutsideWindow(t *testing.T) {
	session := testSession()
	session.StartTime = "10:00"
	session.EndTime = "11:00"
	sessions := &fakeSessionStore{sessions: map[string]*models.ScheduleSession{"sess-1": session}}
	svc := newTokenServiceForTest(&fakeTokenRepo{}, sessions, &fakeCloseoutStore{}, &fakeOfficerStore{})

	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	_, err := svc.Generate(context.Background(), GenerateTokenRequest{ScheduleSessionID: "sess-1", Category: "student"}, claims)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
}

func TestTokenServiceValidate(t *testing.T) {
	value, err := newTokenValue("test-secret")
	require.NoError(t, err)

	tokens := &fakeTokenRepo{byValue: map[string]*models.QRToken{
		value: {ID: "tok-1", Token: value, Status: models.TokenStatusActive, ExpiresAt: scanInstant.Add(time.Minute)},
	}}
	svc := newTokenServiceForTest(tokens, &fakeSessionStore{}, &fakeCloseoutStore{}, &fakeOfficerStore{})

	token, err := svc.Validate(context.Background(), value)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.ID)
}

func TestTokenServiceValidateRejectsForgedValue(t *testing.T) {
	value, err := newTokenValue("test-secret")
	require.NoError(t, err)
	forged := strings.Split(value, ".")[0] + "." + strings.Repeat("0", 64)

	tokens := &fakeTokenRepo{byValue: map[string]*models.QRToken{}}
	svc := newTokenServiceForTest(tokens, &fakeSessionStore{}, &fakeCloseoutStore{}, &fakeOfficerStore{})

	_, err = svc.Validate(context.Background(), forged)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestTokenServiceValidateLazilyExpires(t *testing.T) {
	value, err := newTokenValue("test-secret")
	require.NoError(t, err)

	tokens := &fakeTokenRepo{byValue: map[string]*models.QRToken{
		value: {ID: "tok-1", Token: value, Status: models.TokenStatusActive, ExpiresAt: scanInstant.Add(-time.Minute)},
	}}
	svc := newTokenServiceForTest(tokens, &fakeSessionStore{}, &fakeCloseoutStore{}, &fakeOfficerStore{})

	_, err = svc.Validate(context.Background(), value)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenExpired))
	assert.Equal(t, []string{"tok-1"}, tokens.expired)
}

func TestTokenServiceValidateRevoked(t *testing.T) {
	value, err := newTokenValue("test-secret")
	require.NoError(t, err)

	tokens := &fakeTokenRepo{byValue: map[string]*models.QRToken{
		value: {ID: "tok-1", Token: value, Status: models.TokenStatusRevoked, ExpiresAt: scanInstant.Add(time.Minute)},
	}}
	svc := newTokenServiceForTest(tokens, &fakeSessionStore{}, &fakeCloseoutStore{}, &fakeOfficerStore{})

	_, err = svc.Validate(context.Background(), value)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenRevoked))
}

func TestTokenServiceRevoke(t *testing.T) {
	value, err := newTokenValue("test-secret")
	require.NoError(t, err)

	tokens := &fakeTokenRepo{byValue: map[string]*models.QRToken{
		value: {ID: "tok-1", Token: value, Category: models.TokenCategoryStudent, ScheduleSessionID: "sess-1", Status: models.TokenStatusActive, ExpiresAt: scanInstant.Add(time.Minute)},
	}}
	sessions := &fakeSessionStore{sessions: map[string]*models.ScheduleSession{"sess-1": testSession()}}
	svc := newTokenServiceForTest(tokens, sessions, &fakeCloseoutStore{}, &fakeOfficerStore{})

	claims := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	require.NoError(t, svc.Revoke(context.Background(), value, claims))
	assert.Equal(t, []string{"tok-1"}, tokens.revoked)

	other := &models.JWTClaims{UserID: "teacher-2", Role: models.RoleTeacher}
	err = svc.Revoke(context.Background(), value, other)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
