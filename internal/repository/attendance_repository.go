package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-presensi-api/internal/models"
)

// AttendanceRepository persists attendance records and closeout markers.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, attendee_id, attendee_type, schedule_session_id, date, status, source,
checked_in_at, reason, attachment_id, leave_permission_id, created_at, updated_at`

// GetOrCreate returns the existing record for the candidate's
// (attendee, session, date) key, or inserts the candidate when none exists.
// The lookup takes a row-level exclusive lock inside a transaction so two
// writers for the same key serialize even without the service-level lock.
// The boolean reports whether a new row was created.
func (r *AttendanceRepository) GetOrCreate(ctx context.Context, candidate *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin attendance tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing models.AttendanceRecord
	query := fmt.Sprintf(`SELECT %s FROM attendance_records
WHERE attendee_id = $1 AND schedule_session_id = $2 AND date = $3 FOR UPDATE`, attendanceColumns)
	err = tx.GetContext(ctx, &existing, query, candidate.AttendeeID, candidate.ScheduleSessionID, candidate.Date)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit attendance lookup: %w", err)
		}
		return &existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup attendance: %w", err)
	}

	now := time.Now().UTC()
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	insert := fmt.Sprintf(`INSERT INTO attendance_records (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING %s`, attendanceColumns, attendanceColumns)
	var stored models.AttendanceRecord
	if err := tx.GetContext(ctx, &stored, insert,
		candidate.ID, candidate.AttendeeID, candidate.AttendeeType, candidate.ScheduleSessionID,
		candidate.Date, candidate.Status, candidate.Source, candidate.CheckedInAt,
		candidate.Reason, candidate.AttachmentID, candidate.LeavePermissionID,
		candidate.CreatedAt, candidate.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("insert attendance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit attendance insert: %w", err)
	}
	return &stored, true, nil
}

// FindByID returns the record by primary key, or nil when none exists.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE id = $1`, attendanceColumns)
	err := r.db.GetContext(ctx, &rec, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find attendance by id: %w", err)
	}
	return &rec, nil
}

// UpdateStatus applies a manual correction to an existing record.
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, reason *string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`UPDATE attendance_records
SET status = $2, reason = $3, source = $4, updated_at = $5
WHERE id = $1
RETURNING %s`, attendanceColumns)
	var rec models.AttendanceRecord
	err := r.db.GetContext(ctx, &rec, query, id, status, reason, models.SourceManual, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update attendance status: %w", err)
	}
	return &rec, nil
}

// List returns attendance rows filtered by the provided criteria.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	base := `FROM attendance_records ar
LEFT JOIN students s ON s.id = ar.attendee_id AND ar.attendee_type = 'STUDENT'
LEFT JOIN schedule_sessions ss ON ss.id = ar.schedule_session_id
LEFT JOIN subjects sub ON sub.id = ss.subject_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ScheduleSessionID != "" {
		where = append(where, fmt.Sprintf("ar.schedule_session_id = $%d", len(args)+1))
		args = append(args, filter.ScheduleSessionID)
	}
	if filter.AttendeeID != "" {
		where = append(where, fmt.Sprintf("ar.attendee_id = $%d", len(args)+1))
		args = append(args, filter.AttendeeID)
	}
	if filter.AttendeeType != nil {
		where = append(where, fmt.Sprintf("ar.attendee_type = $%d", len(args)+1))
		args = append(args, *filter.AttendeeType)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("ar.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("ar.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":          "ar.date",
		"checked_in_at": "ar.checked_in_at",
		"created_at":    "ar.created_at",
	}
	column, ok := allowedSort[filter.SortBy]
	if !ok {
		column = "ar.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ar.id, ar.attendee_id, ar.attendee_type, ar.schedule_session_id, ar.date,
        ar.status, ar.source, ar.checked_in_at, ar.reason, ar.attachment_id, ar.leave_permission_id,
        ar.created_at, ar.updated_at, s.full_name AS attendee_name, ss.class_id, sub.name AS subject_name
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, column, order, size, offset)
	var rows []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// ExpireLeaveCascades converts still-excused cascade records for the given
// leave into ABSENT, limited to the provided (already started) sessions.
func (r *AttendanceRepository) ExpireLeaveCascades(ctx context.Context, leaveID string, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	query := `UPDATE attendance_records
SET status = $1, updated_at = $2
WHERE leave_permission_id = $3 AND status IN ($4, $5) AND schedule_session_id = ANY($6)`
	res, err := r.db.ExecContext(ctx, query,
		models.AttendanceStatusAbsent, time.Now().UTC(), leaveID,
		models.AttendanceStatusIzin, models.AttendanceStatusSick, pq.Array(sessionIDs))
	if err != nil {
		return 0, fmt.Errorf("expire leave cascades: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire leave cascades affected: %w", err)
	}
	return affected, nil
}

// CreateCloseout inserts the closeout marker for a session/date.
func (r *AttendanceRepository) CreateCloseout(ctx context.Context, closeout *models.SessionCloseout) error {
	if closeout.ID == "" {
		closeout.ID = uuid.NewString()
	}
	query := `INSERT INTO session_closeouts (id, schedule_session_id, date, closed_by, closed_at, absent_count, excused_count)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		closeout.ID, closeout.ScheduleSessionID, closeout.Date, closeout.ClosedBy,
		closeout.ClosedAt, closeout.AbsentCount, closeout.ExcusedCount); err != nil {
		return fmt.Errorf("insert closeout: %w", err)
	}
	return nil
}

// FindCloseout returns the closeout marker for a session/date, or nil.
func (r *AttendanceRepository) FindCloseout(ctx context.Context, sessionID string, date time.Time) (*models.SessionCloseout, error) {
	var closeout models.SessionCloseout
	query := `SELECT id, schedule_session_id, date, closed_by, closed_at, absent_count, excused_count
FROM session_closeouts WHERE schedule_session_id = $1 AND date = $2`
	err := r.db.GetContext(ctx, &closeout, query, sessionID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find closeout: %w", err)
	}
	return &closeout, nil
}

// Recap aggregates per-student status counts for a class on a date.
func (r *AttendanceRepository) Recap(ctx context.Context, classID string, date time.Time) ([]models.RecapRow, error) {
	query := `SELECT s.id AS student_id, s.full_name AS student_name,
        COUNT(*) FILTER (WHERE ar.status = 'PRESENT') AS present,
        COUNT(*) FILTER (WHERE ar.status = 'LATE') AS late,
        COUNT(*) FILTER (WHERE ar.status = 'IZIN') AS izin,
        COUNT(*) FILTER (WHERE ar.status = 'SICK') AS sick,
        COUNT(*) FILTER (WHERE ar.status = 'DINAS') AS dinas,
        COUNT(*) FILTER (WHERE ar.status = 'ABSENT') AS absent
FROM students s
LEFT JOIN attendance_records ar ON ar.attendee_id = s.id AND ar.attendee_type = 'STUDENT' AND ar.date = $2
WHERE s.class_id = $1 AND s.active
GROUP BY s.id, s.full_name
ORDER BY s.full_name`
	var rows []models.RecapRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, date); err != nil {
		return nil, fmt.Errorf("recap attendance: %w", err)
	}
	return rows, nil
}
