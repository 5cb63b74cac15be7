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
)

type fakeCascadeWriter struct {
	created []*models.AttendanceRecord
	swept   map[string][]string
}

func (f *fakeCascadeWriter) GetOrCreate(_ context.Context, candidate *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	stored := *candidate
	stored.ID = "rec-" + candidate.ScheduleSessionID
	f.created = append(f.created, &stored)
	return &stored, true, nil
}

func (f *fakeCascadeWriter) ExpireLeaveCascades(_ context.Context, leaveID string, sessionIDs []string) (int64, error) {
	if f.swept == nil {
		f.swept = make(map[string][]string)
	}
	f.swept[leaveID] = sessionIDs
	return int64(len(sessionIDs)), nil
}

type fakeScheduleStore struct {
	sessions []models.ScheduleSession
}

func (f *fakeScheduleStore) ListByClassAndWeekday(_ context.Context, _ string, _ time.Weekday) ([]models.ScheduleSession, error) {
	return f.sessions, nil
}

// mondaySchedule returns three Monday sessions: one already over, one in
// progress, one upcoming relative to scanInstant (07:40).
func mondaySchedule() *fakeScheduleStore {
	return &fakeScheduleStore{sessions: []models.ScheduleSession{
		{ID: "sess-early", ClassID: "class-1", Weekday: time.Monday, StartTime: "06:30", EndTime: "07:15", Active: true},
		{ID: "sess-now", ClassID: "class-1", Weekday: time.Monday, StartTime: "07:30", EndTime: "08:30", Active: true},
		{ID: "sess-later", ClassID: "class-1", Weekday: time.Monday, StartTime: "09:00", EndTime: "10:00", Active: true},
	}}
}

func newCascadeForTest(writer *fakeCascadeWriter, schedules *fakeScheduleStore) *CascadeService {
	return NewCascadeService(writer, schedules, leaveTestStudents(), clock.Fixed{Instant: scanInstant}, zap.NewNop())
}

func TestCascadeLeaveGrantedFullDay(t *testing.T) {
	writer := &fakeCascadeWriter{}
	svc := newCascadeForTest(writer, mondaySchedule())

	permission := models.LeavePermission{
		ID:        "leave-1",
		StudentID: "student-1",
		Date:      clock.DateOf(scanInstant),
		Type:      models.LeaveSickFullDay,
		Status:    models.LeaveStatusActive,
		IsFullDay: true,
		Reason:    "flu",
	}
	require.NoError(t, svc.LeaveGranted(context.Background(), LeaveGranted{Permission: permission}))

	// The 06:30 session already ended so only the remaining two get records.
	require.Len(t, writer.created, 2)
	assert.Equal(t, "sess-now", writer.created[0].ScheduleSessionID)
	assert.Equal(t, "sess-later", writer.created[1].ScheduleSessionID)
	for _, record := range writer.created {
		assert.Equal(t, models.AttendanceStatusSick, record.Status)
		assert.Equal(t, models.SourceLeaveCascade, record.Source)
		require.NotNil(t, record.LeavePermissionID)
		assert.Equal(t, "leave-1", *record.LeavePermissionID)
	}
}

func TestCascadeLeaveGrantedOpenEndedPartial(t *testing.T) {
	writer := &fakeCascadeWriter{}
	svc := newCascadeForTest(writer, mondaySchedule())

	start := "08:45"
	permission := models.LeavePermission{
		ID:        "leave-2",
		StudentID: "student-1",
		Date:      clock.DateOf(scanInstant),
		Type:      models.LeaveEarly,
		Status:    models.LeaveStatusActive,
		StartTime: &start,
		Reason:    "sick at school",
	}
	require.NoError(t, svc.LeaveGranted(context.Background(), LeaveGranted{Permission: permission}))

	require.Len(t, writer.created, 1)
	assert.Equal(t, "sess-later", writer.created[0].ScheduleSessionID)
	assert.Equal(t, models.AttendanceStatusIzin, writer.created[0].Status)
}

func TestCascadeLeaveGrantedBoundedPartialWritesNothing(t *testing.T) {
	writer := &fakeCascadeWriter{}
	svc := newCascadeForTest(writer, mondaySchedule())

	start, end := "08:45", "09:30"
	permission := models.LeavePermission{
		ID:        "leave-3",
		StudentID: "student-1",
		Date:      clock.DateOf(scanInstant),
		Type:      models.LeaveDispensation,
		Status:    models.LeaveStatusActive,
		StartTime: &start,
		EndTime:   &end,
	}
	require.NoError(t, svc.LeaveGranted(context.Background(), LeaveGranted{Permission: permission}))
	assert.Empty(t, writer.created)
}

func TestCascadeLeaveExpiredSweepsStartedSessions(t *testing.T) {
	writer := &fakeCascadeWriter{}
	svc := newCascadeForTest(writer, mondaySchedule())

	permission := models.LeavePermission{
		ID:        "leave-4",
		StudentID: "student-1",
		Date:      clock.DateOf(scanInstant),
		Type:      models.LeaveEarly,
		Status:    models.LeaveStatusExpired,
	}
	require.NoError(t, svc.LeaveExpired(context.Background(), permission))

	// Only sessions whose start has passed are swept back to absent.
	assert.Equal(t, []string{"sess-early", "sess-now"}, writer.swept["leave-4"])
}
