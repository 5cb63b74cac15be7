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

	"github.com/noah-isme/sma-presensi-api/internal/models"
)

// LeaveRepository persists leave permissions.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs the repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

const leaveColumns = `id, student_id, date, type, status, is_full_day, start_time, end_time,
granted_by, reason, returned_at, returned_by, expired_at, created_at, updated_at`

// Create inserts a new permission unless an ACTIVE one already exists for the
// (student, date) pair. The existing-check takes a row lock so two
// simultaneous grants for the same student serialize; when a conflict is
// found the conflicting permission is returned with created == false.
func (r *LeaveRepository) Create(ctx context.Context, permission *models.LeavePermission) (*models.LeavePermission, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin leave tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing models.LeavePermission
	query := fmt.Sprintf(`SELECT %s FROM leave_permissions
WHERE student_id = $1 AND date = $2 AND status = $3 FOR UPDATE`, leaveColumns)
	err = tx.GetContext(ctx, &existing, query, permission.StudentID, permission.Date, models.LeaveStatusActive)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit leave lookup: %w", err)
		}
		return &existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup active leave: %w", err)
	}

	now := time.Now().UTC()
	if permission.ID == "" {
		permission.ID = uuid.NewString()
	}
	permission.Status = models.LeaveStatusActive
	permission.CreatedAt = now
	permission.UpdatedAt = now

	insert := fmt.Sprintf(`INSERT INTO leave_permissions (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING %s`, leaveColumns, leaveColumns)
	var stored models.LeavePermission
	if err := tx.GetContext(ctx, &stored, insert,
		permission.ID, permission.StudentID, permission.Date, permission.Type, permission.Status,
		permission.IsFullDay, permission.StartTime, permission.EndTime, permission.GrantedBy,
		permission.Reason, permission.ReturnedAt, permission.ReturnedBy, permission.ExpiredAt,
		permission.CreatedAt, permission.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("insert leave: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit leave insert: %w", err)
	}
	return &stored, true, nil
}

// FindByID returns a permission by primary key, or nil when none exists.
func (r *LeaveRepository) FindByID(ctx context.Context, id string) (*models.LeavePermission, error) {
	var permission models.LeavePermission
	query := fmt.Sprintf(`SELECT %s FROM leave_permissions WHERE id = $1`, leaveColumns)
	err := r.db.GetContext(ctx, &permission, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find leave: %w", err)
	}
	return &permission, nil
}

// FindActiveByStudentAndDate returns the ACTIVE permission covering the
// student on the date, or nil.
func (r *LeaveRepository) FindActiveByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.LeavePermission, error) {
	var permission models.LeavePermission
	query := fmt.Sprintf(`SELECT %s FROM leave_permissions
WHERE student_id = $1 AND date = $2 AND status = $3`, leaveColumns)
	err := r.db.GetContext(ctx, &permission, query, studentID, date, models.LeaveStatusActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active leave: %w", err)
	}
	return &permission, nil
}

// MarkReturned transitions an ACTIVE permission to RETURNED. The returned
// boolean is false when the permission was not active.
func (r *LeaveRepository) MarkReturned(ctx context.Context, id string, at time.Time, actorID string) (bool, error) {
	query := `UPDATE leave_permissions
SET status = $2, returned_at = $3, returned_by = $4, updated_at = $3
WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.LeaveStatusReturned, at, actorID, models.LeaveStatusActive)
	if err != nil {
		return false, fmt.Errorf("mark leave returned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark leave returned affected: %w", err)
	}
	return affected > 0, nil
}

// MarkExpired transitions an ACTIVE permission to EXPIRED. The returned
// boolean is false when the permission was not active.
func (r *LeaveRepository) MarkExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE leave_permissions
SET status = $2, expired_at = $3, updated_at = $3
WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.LeaveStatusExpired, at, models.LeaveStatusActive)
	if err != nil {
		return false, fmt.Errorf("mark leave expired: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark leave expired affected: %w", err)
	}
	return affected > 0, nil
}

// List returns permissions filtered by the provided criteria.
func (r *LeaveRepository) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeavePermission, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Date != nil {
		where = append(where, fmt.Sprintf("date = $%d", len(args)+1))
		args = append(args, *filter.Date)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM leave_permissions WHERE %s ORDER BY date DESC, created_at DESC LIMIT %d OFFSET %d`,
		leaveColumns, whereClause, size, offset)
	var rows []models.LeavePermission
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list leaves: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM leave_permissions WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count leaves: %w", err)
	}
	return rows, total, nil
}
