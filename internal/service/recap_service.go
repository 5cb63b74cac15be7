package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/config"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/export"
)

type recapRepository interface {
	Recap(ctx context.Context, classID string, date time.Time) ([]models.RecapRow, error)
}

type recapCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// RecapService serves per-class daily attendance summaries with a Redis
// read-through cache, invalidated whenever a record for the class changes.
type RecapService struct {
	records recapRepository
	cache   recapCache
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	cfg     config.RecapConfig
	logger  *zap.Logger
}

// NewRecapService constructs the recap service. The cache may be nil.
func NewRecapService(records recapRepository, cache recapCache, cfg config.RecapConfig, logger *zap.Logger) *RecapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecapService{
		records: records,
		cache:   cache,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		cfg:     cfg,
		logger:  logger,
	}
}

// Recap returns the per-student status counts for a class on a date.
func (s *RecapService) Recap(ctx context.Context, classID string, date time.Time) ([]models.RecapRow, error) {
	key := recapCacheKey(classID, date)
	if s.cache != nil {
		var cached []models.RecapRow
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("recap cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	rows, err := s.records.Recap(ctx, classID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, rows, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("recap cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rows, nil
}

// Invalidate drops every cached recap for the class and date. Failures are
// logged only: a stale cache entry expires on its own TTL.
func (s *RecapService) Invalidate(ctx context.Context, classID string, date time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, recapCacheKey(classID, date)); err != nil {
		s.logger.Warn("recap cache invalidation failed",
			zap.String("class_id", classID), zap.Error(err))
	}
}

// ExportCSV renders the recap as CSV bytes.
func (s *RecapService) ExportCSV(ctx context.Context, classID string, date time.Time) ([]byte, error) {
	rows, err := s.Recap(ctx, classID, date)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(recapDataset(rows))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render recap csv")
	}
	return data, nil
}

// ExportPDF renders the recap as a PDF document.
func (s *RecapService) ExportPDF(ctx context.Context, classID string, date time.Time) ([]byte, error) {
	rows, err := s.Recap(ctx, classID, date)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("Attendance Recap %s", date.Format("2006-01-02"))
	data, err := s.pdf.Render(recapDataset(rows), title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render recap pdf")
	}
	return data, nil
}

func recapCacheKey(classID string, date time.Time) string {
	return fmt.Sprintf("recap:%s:%s", classID, date.Format("2006-01-02"))
}

func recapDataset(rows []models.RecapRow) export.Dataset {
	headers := []string{"Student ID", "Name", "Present", "Late", "Izin", "Sick", "Dinas", "Absent"}
	out := make([]map[string]string, 0, len(rows))
	for i := range rows {
		row := rows[i]
		out = append(out, map[string]string{
			"Student ID": row.StudentID,
			"Name":       row.StudentName,
			"Present":    strconv.Itoa(row.Present),
			"Late":       strconv.Itoa(row.Late),
			"Izin":       strconv.Itoa(row.Izin),
			"Sick":       strconv.Itoa(row.Sick),
			"Dinas":      strconv.Itoa(row.Dinas),
			"Absent":     strconv.Itoa(row.Absent),
		})
	}
	return export.Dataset{Headers: headers, Rows: out}
}
