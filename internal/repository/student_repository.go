package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-presensi-api/internal/models"
)

// StudentRepository reads the student roster. The account subsystem owns
// these tables; this service never writes them.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, nis, full_name, class_id, active`

// FindByID returns a student by id, or nil when none exists.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	err := r.db.GetContext(ctx, &student, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByNIS resolves a student from their registration number. The
// teacher-assisted scan path uses this.
func (r *StudentRepository) FindByNIS(ctx context.Context, nis string) (*models.Student, error) {
	var student models.Student
	query := fmt.Sprintf(`SELECT %s FROM students WHERE nis = $1`, studentColumns)
	err := r.db.GetContext(ctx, &student, query, nis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find student by nis: %w", err)
	}
	return &student, nil
}

// ListActiveByClass returns the active roster of a class.
func (r *StudentRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE class_id = $1 AND active ORDER BY full_name`, studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return students, nil
}

// IsClassOfficer reports whether the student holds an officer role for the
// class (officers may generate student-category tokens).
func (r *StudentRepository) IsClassOfficer(ctx context.Context, studentID, classID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM class_officers WHERE student_id = $1 AND class_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, studentID, classID); err != nil {
		return false, fmt.Errorf("check class officer: %w", err)
	}
	return exists, nil
}
