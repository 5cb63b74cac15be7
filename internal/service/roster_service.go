package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
)

type rosterSource interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error)
}

// RosterService serves the active roster of a class with a short-TTL Redis
// cache in front of the student table. Enrollment changes rarely, so a stale
// entry is at most TTL old and no event invalidation is needed.
type RosterService struct {
	students rosterSource
	cache    recapCache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewRosterService constructs the roster reader. The cache may be nil.
func NewRosterService(students rosterSource, cache recapCache, ttl time.Duration, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{students: students, cache: cache, ttl: ttl, logger: logger}
}

func rosterCacheKey(classID string) string {
	return fmt.Sprintf("roster:%s", classID)
}

// ListActiveByClass returns the active students of a class, cache first.
func (s *RosterService) ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error) {
	key := rosterCacheKey(classID)
	if s.cache != nil {
		var cached []models.Student
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("roster cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	students, err := s.students.ListActiveByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, students, s.ttl); err != nil {
			s.logger.Warn("roster cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return students, nil
}
