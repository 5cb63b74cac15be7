package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presensi-api/internal/models"
)

type countingRosterSource struct {
	students []models.Student
	calls    int
}

func (f *countingRosterSource) ListActiveByClass(_ context.Context, _ string) ([]models.Student, error) {
	f.calls++
	return f.students, nil
}

func rosterTestStudents() []models.Student {
	return []models.Student{
		{ID: "student-1", NIS: "1001", FullName: "Student One", ClassID: "class-1", Active: true},
		{ID: "student-2", NIS: "1002", FullName: "Student Two", ClassID: "class-1", Active: true},
	}
}

func TestRosterServiceCachesReads(t *testing.T) {
	source := &countingRosterSource{students: rosterTestStudents()}
	cache := &memCache{}
	svc := NewRosterService(source, cache, 10*time.Minute, zap.NewNop())

	first, err := svc.ListActiveByClass(context.Background(), "class-1")
	require.NoError(t, err)
	second, err := svc.ListActiveByClass(context.Background(), "class-1")
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Len(t, first, len(source.students))
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestRosterServiceWorksWithoutCache(t *testing.T) {
	source := &countingRosterSource{students: rosterTestStudents()}
	svc := NewRosterService(source, nil, 10*time.Minute, zap.NewNop())

	_, err := svc.ListActiveByClass(context.Background(), "class-1")
	require.NoError(t, err)
	_, err = svc.ListActiveByClass(context.Background(), "class-1")
	require.NoError(t, err)

	assert.Equal(t, 2, source.calls)
}
