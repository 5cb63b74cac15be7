package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-presensi-api/internal/models"
)

func TestClassifyBoundary(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.Local)
	grace := 15 * time.Minute

	tests := []struct {
		name    string
		checkIn time.Time
		want    models.AttendanceStatus
	}{
		{"well before start", start.Add(-30 * time.Minute), models.AttendanceStatusPresent},
		{"at start", start, models.AttendanceStatusPresent},
		{"one second before threshold", start.Add(grace - time.Second), models.AttendanceStatusPresent},
		{"exactly at threshold", start.Add(grace), models.AttendanceStatusPresent},
		{"one second after threshold", start.Add(grace + time.Second), models.AttendanceStatusLate},
		{"long after threshold", start.Add(2 * time.Hour), models.AttendanceStatusLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(start, grace, tt.checkIn))
		})
	}
}

func TestClassifyZeroGrace(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.Local)
	assert.Equal(t, models.AttendanceStatusPresent, Classify(start, 0, start))
	assert.Equal(t, models.AttendanceStatusLate, Classify(start, 0, start.Add(time.Second)))
}

func TestClassifyUnknownStart(t *testing.T) {
	checkIn := time.Date(2024, 5, 1, 23, 59, 0, 0, time.Local)
	assert.Equal(t, models.AttendanceStatusPresent, Classify(time.Time{}, 15*time.Minute, checkIn))
}
