package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/config"
	"github.com/noah-isme/sma-presensi-api/pkg/jobs"
)

// AttendanceRecorded is emitted after an attendance row is durably committed,
// never before, so observers cannot see a record that might roll back.
type AttendanceRecorded struct {
	Record  models.AttendanceRecord `json:"record"`
	ClassID string                  `json:"class_id"`
}

// attendanceRecordedSink receives post-commit attendance events.
type attendanceRecordedSink interface {
	AttendanceRecorded(ctx context.Context, event AttendanceRecorded)
}

// LeaveGranted is raised when a leave permission is created. The cascade
// handler consumes it to materialize excused attendance rows.
type LeaveGranted struct {
	Permission models.LeavePermission
}

// NotificationDispatcher fans attendance events out to notification
// collaborators through a background worker queue.
type NotificationDispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationDispatcher builds the dispatcher and its queue. Call Start
// before use and Stop on shutdown.
func NewNotificationDispatcher(cfg config.NotificationsConfig, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &NotificationDispatcher{logger: logger}
	d.queue = jobs.NewQueue("attendance-notifications", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return d
}

// Start launches the queue workers.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the queue workers.
func (d *NotificationDispatcher) Stop() {
	d.queue.Stop()
}

// AttendanceRecorded implements attendanceRecordedSink. Enqueue failures are
// logged, not surfaced: the record is already committed and the scan must
// still succeed.
func (d *NotificationDispatcher) AttendanceRecorded(_ context.Context, event AttendanceRecorded) {
	err := d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "attendance_recorded",
		Payload: event,
	})
	if err != nil {
		d.logger.Warn("failed to enqueue attendance notification",
			zap.String("record_id", event.Record.ID), zap.Error(err))
	}
}

func (d *NotificationDispatcher) handle(_ context.Context, job jobs.Job) error {
	event, ok := job.Payload.(AttendanceRecorded)
	if !ok {
		d.logger.Warn("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	// Delivery to push/chat channels is owned by the notification
	// collaborator; the engine only publishes.
	d.logger.Info("attendance recorded",
		zap.String("record_id", event.Record.ID),
		zap.String("attendee_id", event.Record.AttendeeID),
		zap.String("session_id", event.Record.ScheduleSessionID),
		zap.String("status", string(event.Record.Status)),
		zap.String("source", string(event.Record.Source)),
	)
	return nil
}
