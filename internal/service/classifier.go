package service

import (
	"time"

	"github.com/noah-isme/sma-presensi-api/internal/models"
)

// Classify maps a check-in instant to PRESENT or LATE given the session's
// scheduled start and the configured grace period. Strictly after
// start+grace is LATE; at or before the threshold is PRESENT. A zero
// scheduledStart means the start time is unknown and defaults to PRESENT.
func Classify(scheduledStart time.Time, grace time.Duration, checkIn time.Time) models.AttendanceStatus {
	if scheduledStart.IsZero() {
		return models.AttendanceStatusPresent
	}
	threshold := scheduledStart.Add(grace)
	if checkIn.After(threshold) {
		return models.AttendanceStatusLate
	}
	return models.AttendanceStatusPresent
}
