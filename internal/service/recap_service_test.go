package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
	"github.com/noah-isme/sma-presensi-api/pkg/clock"
	"github.com/noah-isme/sma-presensi-api/pkg/config"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
)

type fakeRecapRepo struct {
	rows  []models.RecapRow
	calls int
}

func (f *fakeRecapRepo) Recap(_ context.Context, _ string, _ time.Time) ([]models.RecapRow, error) {
	f.calls++
	return f.rows, nil
}

type memCache struct {
	store   map[string][]byte
	deleted []string
}

func (m *memCache) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = payload
	return nil
}

func (m *memCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	for key := range m.store {
		if key == pattern {
			delete(m.store, key)
		}
	}
	return nil
}

func recapTestRows() []models.RecapRow {
	return []models.RecapRow{
		{StudentID: "student-1", StudentName: "Student One", Present: 4, Late: 1},
		{StudentID: "student-2", StudentName: "Student Two", Sick: 2, Absent: 3},
	}
}

func TestRecapServiceCaches(t *testing.T) {
	repo := &fakeRecapRepo{rows: recapTestRows()}
	cache := &memCache{}
	svc := NewRecapService(repo, cache, config.RecapConfig{CacheTTL: time.Minute}, zap.NewNop())
	date := clock.DateOf(scanInstant)

	first, err := svc.Recap(context.Background(), "class-1", date)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, repo.calls)

	second, err := svc.Recap(context.Background(), "class-1", date)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls)

	svc.Invalidate(context.Background(), "class-1", date)
	_, err = svc.Recap(context.Background(), "class-1", date)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestRecapServiceExportCSV(t *testing.T) {
	repo := &fakeRecapRepo{rows: recapTestRows()}
	svc := NewRecapService(repo, nil, config.RecapConfig{}, zap.NewNop())

	data, err := svc.ExportCSV(context.Background(), "class-1", clock.DateOf(scanInstant))
	require.NoError(t, err)

	content := string(data)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Student ID")
	assert.Contains(t, content, "Student One")
	assert.Contains(t, lines[2], "3")
}

func TestRecapServiceExportPDF(t *testing.T) {
	repo := &fakeRecapRepo{rows: recapTestRows()}
	svc := NewRecapService(repo, nil, config.RecapConfig{}, zap.NewNop())

	data, err := svc.ExportPDF(context.Background(), "class-1", clock.DateOf(scanInstant))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}
