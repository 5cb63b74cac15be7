package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/clock"
	"github.com/noah-isme/sma-presensi-api/pkg/config"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/lock"
)

type tokenRepository interface {
	IssueExclusive(ctx context.Context, candidate *models.QRToken, now time.Time) (*models.QRToken, bool, error)
	FindByValue(ctx context.Context, value string) (*models.QRToken, error)
	MarkExpired(ctx context.Context, id string, now time.Time) error
	Revoke(ctx context.Context, id string, now time.Time) error
}

type sessionReader interface {
	FindSession(ctx context.Context, id string) (*models.ScheduleSession, error)
}

type closeoutReader interface {
	FindCloseout(ctx context.Context, sessionID string, date time.Time) (*models.SessionCloseout, error)
}

type officerChecker interface {
	IsClassOfficer(ctx context.Context, studentID, classID string) (bool, error)
}

// TokenService owns the QR token lifecycle.
type TokenService struct {
	tokens    tokenRepository
	sessions  sessionReader
	closeouts closeoutReader
	officers  officerChecker
	locker    lock.Locker
	clock     clock.Clock
	cfg       config.AttendanceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTokenService constructs the token service.
func NewTokenService(tokens tokenRepository, sessions sessionReader, closeouts closeoutReader, officers officerChecker,
	locker lock.Locker, clk clock.Clock, cfg config.AttendanceConfig, validate *validator.Validate, logger *zap.Logger) *TokenService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenService{
		tokens: tokens, sessions: sessions, closeouts: closeouts, officers: officers,
		locker: locker, clock: clk, cfg: cfg, validator: validate, logger: logger,
	}
}

// GenerateTokenRequest describes a token issuance request.
type GenerateTokenRequest struct {
	ScheduleSessionID string `json:"schedule_session_id" validate:"required"`
	Category          string `json:"category" validate:"required"`
	TTLMinutes        int    `json:"ttl_minutes" validate:"omitempty,min=1"`
}

// Generate issues (or returns the still-active) QR token for a session and
// category. Idempotent while an issued token remains unexpired.
func (s *TokenService) Generate(ctx context.Context, req GenerateTokenRequest, claims *models.JWTClaims) (*models.QRToken, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid token request")
	}
	category := models.TokenCategory(strings.ToUpper(req.Category))
	if !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown token category")
	}

	session, err := s.sessions.FindSession(ctx, req.ScheduleSessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule session not found")
	}

	if err := s.authorizeIssuer(ctx, session, category, claims); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.checkSessionWindow(ctx, session, now); err != nil {
		return nil, err
	}

	ttl := s.cfg.TokenDefaultTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}
	if s.cfg.TokenMaxTTL > 0 && ttl > s.cfg.TokenMaxTTL {
		ttl = s.cfg.TokenMaxTTL
	}

	lockKey := fmt.Sprintf("qrtoken:%s:%s", session.ID, category)
	lease, err := s.locker.Acquire(ctx, lockKey, s.cfg.LockWait, s.cfg.LockTTL)
	if err != nil {
		if err == lock.ErrBusy {
			return nil, appErrors.Clone(appErrors.ErrBusy, "token generation in progress, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	defer lease.Release(ctx) //nolint:errcheck

	value, err := newTokenValue(s.cfg.TokenSecret)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mint token")
	}
	candidate := &models.QRToken{
		Token:             value,
		Category:          category,
		ScheduleSessionID: session.ID,
		IssuedBy:          claims.UserID,
		ExpiresAt:         now.Add(ttl),
	}
	stored, reused, err := s.tokens.IssueExclusive(ctx, candidate, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if reused {
		s.logger.Debug("reusing active qr token", zap.String("session_id", session.ID), zap.String("category", string(category)))
	}
	return stored, nil
}

// Validate resolves a scanned token value. It verifies the keyed signature
// before any lookup, then defers to the stored status and expiry as the
// authoritative source, lazily expiring a stale row.
func (s *TokenService) Validate(ctx context.Context, value string) (*models.QRToken, error) {
	if !verifyTokenValue(s.cfg.TokenSecret, value) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid token")
	}
	token, err := s.tokens.FindByValue(ctx, value)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if token == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "token not found")
	}

	switch token.Status {
	case models.TokenStatusRevoked:
		return nil, appErrors.WithDetails(appErrors.ErrTokenRevoked, map[string]interface{}{"token_id": token.ID})
	case models.TokenStatusExpired:
		return nil, appErrors.WithDetails(appErrors.ErrTokenExpired, map[string]interface{}{"token_id": token.ID})
	case models.TokenStatusActive:
		now := s.clock.Now()
		if !token.ExpiresAt.After(now) {
			if err := s.tokens.MarkExpired(ctx, token.ID, now); err != nil {
				s.logger.Warn("failed to lazily expire token", zap.String("token_id", token.ID), zap.Error(err))
			}
			return nil, appErrors.WithDetails(appErrors.ErrTokenExpired, map[string]interface{}{"token_id": token.ID})
		}
		return token, nil
	default:
		return nil, appErrors.WithDetails(appErrors.ErrInvalidState, map[string]interface{}{
			"token_id": token.ID,
			"status":   token.Status,
		})
	}
}

// Revoke marks a token revoked. Authorization mirrors Generate.
func (s *TokenService) Revoke(ctx context.Context, value string, claims *models.JWTClaims) error {
	token, err := s.tokens.FindByValue(ctx, value)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if token == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "token not found")
	}
	session, err := s.sessions.FindSession(ctx, token.ScheduleSessionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if session == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "schedule session not found")
	}
	if err := s.authorizeIssuer(ctx, session, token.Category, claims); err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, token.ID, s.clock.Now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	return nil
}

// authorizeIssuer enforces who may generate or revoke a token: admins, the
// session's teacher, the class's homeroom supervisor, or (student-category
// only) an officer of the owning class.
func (s *TokenService) authorizeIssuer(ctx context.Context, session *models.ScheduleSession, category models.TokenCategory, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	switch claims.Role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if claims.UserID == session.TeacherID {
			return nil
		}
		if session.HomeroomTeacherID != nil && claims.UserID == *session.HomeroomTeacherID {
			return nil
		}
	case models.RoleStudent:
		if category != models.TokenCategoryStudent {
			break
		}
		officer, err := s.officers.IsClassOfficer(ctx, claims.UserID, session.ClassID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
		}
		if officer {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage tokens for this session")
}

// checkSessionWindow rejects issuance for inactive sessions, sessions not
// scheduled today, sessions outside their allowed time window, and sessions
// already closed for the day.
func (s *TokenService) checkSessionWindow(ctx context.Context, session *models.ScheduleSession, now time.Time) error {
	if !session.Active {
		return appErrors.Clone(appErrors.ErrInvalidState, "session is inactive")
	}
	if !session.ScheduledToday(now) {
		return appErrors.Clone(appErrors.ErrInvalidState, "session is not scheduled for today")
	}
	date := clock.DateOf(now)
	start := clock.At(date, session.StartTime)
	end := clock.At(date, session.EndTime)
	if !start.IsZero() && now.Before(start.Add(-s.cfg.TokenWindowLead)) {
		return appErrors.Clone(appErrors.ErrInvalidState, "too early to issue a token for this session")
	}
	if !end.IsZero() && now.After(end) {
		return appErrors.Clone(appErrors.ErrInvalidState, "session time window has passed")
	}
	closeout, err := s.closeouts.FindCloseout(ctx, session.ID, date)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if closeout != nil {
		return appErrors.WithDetails(appErrors.ErrAlreadyClosed, map[string]interface{}{
			"closeout_id": closeout.ID,
			"closed_at":   closeout.ClosedAt,
		})
	}
	return nil
}

// newTokenValue mints an unguessable token: a random component plus a keyed
// HMAC signature so validity can be checked without a lookup.
func newTokenValue(secret string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	random := hex.EncodeToString(buf)
	return random + "." + signTokenComponent(secret, random), nil
}

// verifyTokenValue checks the token's keyed signature so a forged value is
// rejected without a lookup. The stored row remains the authoritative status
// source.
func verifyTokenValue(secret, value string) bool {
	parts := strings.Split(value, ".")
	if len(parts) != 2 {
		return false
	}
	expected := signTokenComponent(secret, parts[0])
	return hmac.Equal([]byte(expected), []byte(parts[1]))
}

func signTokenComponent(secret, random string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(random))
	return hex.EncodeToString(mac.Sum(nil))
}
