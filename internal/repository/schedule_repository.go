package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-presensi-api/internal/models"
)

// ScheduleRepository reads schedule sessions. The scheduling subsystem owns
// these tables; this service never writes them.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const sessionSelect = `SELECT ss.id, ss.class_id, c.name AS class_name, ss.teacher_id, ss.subject_id,
        sub.name AS subject_name, ss.weekday, ss.start_time, ss.end_time, ss.active,
        c.homeroom_teacher_id
FROM schedule_sessions ss
JOIN classes c ON c.id = ss.class_id
LEFT JOIN subjects sub ON sub.id = ss.subject_id`

// FindSession returns session detail by id, or nil when none exists.
func (r *ScheduleRepository) FindSession(ctx context.Context, id string) (*models.ScheduleSession, error) {
	var session models.ScheduleSession
	query := sessionSelect + ` WHERE ss.id = $1`
	err := r.db.GetContext(ctx, &session, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// ListByClassAndWeekday returns a class's active sessions on the weekday,
// ordered by start time. The leave cascade and the expiry sweep walk this.
func (r *ScheduleRepository) ListByClassAndWeekday(ctx context.Context, classID string, weekday time.Weekday) ([]models.ScheduleSession, error) {
	query := sessionSelect + ` WHERE ss.class_id = $1 AND ss.weekday = $2 AND ss.active ORDER BY ss.start_time`
	var sessions []models.ScheduleSession
	if err := r.db.SelectContext(ctx, &sessions, query, classID, int(weekday)); err != nil {
		return nil, fmt.Errorf("list sessions by class and weekday: %w", err)
	}
	return sessions, nil
}
