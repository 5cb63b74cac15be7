package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-presensi-api/internal/models"
)

// TokenRepository persists QR tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

const tokenColumns = `id, token, category, schedule_session_id, issued_by, status, expires_at,
revoked_at, created_at, updated_at`

// IssueExclusive installs the candidate as the single ACTIVE token for its
// (session, category) pair. An existing unexpired ACTIVE token is returned
// unchanged (reused == true); an expired one is flipped to EXPIRED and the
// candidate inserted, all inside one transaction under a row lock so two
// "no active token" observations cannot both insert.
func (r *TokenRepository) IssueExclusive(ctx context.Context, candidate *models.QRToken, now time.Time) (*models.QRToken, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin token tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var active models.QRToken
	query := fmt.Sprintf(`SELECT %s FROM qr_tokens
WHERE schedule_session_id = $1 AND category = $2 AND status = $3 FOR UPDATE`, tokenColumns)
	err = tx.GetContext(ctx, &active, query, candidate.ScheduleSessionID, candidate.Category, models.TokenStatusActive)
	switch {
	case err == nil:
		if active.ExpiresAt.After(now) {
			if err := tx.Commit(); err != nil {
				return nil, false, fmt.Errorf("commit token lookup: %w", err)
			}
			return &active, true, nil
		}
		expire := `UPDATE qr_tokens SET status = $2, updated_at = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, expire, active.ID, models.TokenStatusExpired, now.UTC()); err != nil {
			return nil, false, fmt.Errorf("expire stale token: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// No active token, fall through to insert.
	default:
		return nil, false, fmt.Errorf("lookup active token: %w", err)
	}

	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	candidate.Status = models.TokenStatusActive
	candidate.CreatedAt = now.UTC()
	candidate.UpdatedAt = now.UTC()

	insert := fmt.Sprintf(`INSERT INTO qr_tokens (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING %s`, tokenColumns, tokenColumns)
	var stored models.QRToken
	if err := tx.GetContext(ctx, &stored, insert,
		candidate.ID, candidate.Token, candidate.Category, candidate.ScheduleSessionID,
		candidate.IssuedBy, candidate.Status, candidate.ExpiresAt, candidate.RevokedAt,
		candidate.CreatedAt, candidate.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("insert token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit token insert: %w", err)
	}
	return &stored, false, nil
}

// FindByValue returns the token row by its opaque value, or nil.
func (r *TokenRepository) FindByValue(ctx context.Context, value string) (*models.QRToken, error) {
	var token models.QRToken
	query := fmt.Sprintf(`SELECT %s FROM qr_tokens WHERE token = $1`, tokenColumns)
	err := r.db.GetContext(ctx, &token, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	return &token, nil
}

// MarkExpired lazily transitions a token past its expiry to EXPIRED.
func (r *TokenRepository) MarkExpired(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE qr_tokens SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, id, models.TokenStatusExpired, now.UTC(), models.TokenStatusActive); err != nil {
		return fmt.Errorf("mark token expired: %w", err)
	}
	return nil
}

// Revoke sets the token status to REVOKED. Idempotent: revoking an already
// revoked token is a no-op.
func (r *TokenRepository) Revoke(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE qr_tokens SET status = $2, revoked_at = $3, updated_at = $3 WHERE id = $1 AND status <> $2`
	if _, err := r.db.ExecContext(ctx, query, id, models.TokenStatusRevoked, now.UTC()); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
