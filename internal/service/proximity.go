package service

import (
	"math"

	"github.com/noah-isme/sma-presensi-api/pkg/config"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/geo"
)

// ProximityGate rejects scans originating outside the configured geofence.
// It is a stateless precondition checked before any lock is acquired, and a
// no-op when the geofence is not configured.
type ProximityGate struct {
	cfg config.GeofenceConfig
}

// NewProximityGate constructs the gate.
func NewProximityGate(cfg config.GeofenceConfig) *ProximityGate {
	return &ProximityGate{cfg: cfg}
}

// Check validates the scan coordinates against the geofence. Coordinates are
// required once the gate is enabled.
func (g *ProximityGate) Check(lat, lon *float64) error {
	if !g.cfg.Enabled() {
		return nil
	}
	if lat == nil || lon == nil {
		return appErrors.Clone(appErrors.ErrValidation, "scan location required")
	}
	distance := geo.Distance(g.cfg.Latitude, g.cfg.Longitude, *lat, *lon)
	if distance > g.cfg.RadiusMeters {
		return appErrors.WithDetails(appErrors.ErrOutOfRange, map[string]interface{}{
			"distance_meters": math.Round(distance),
			"radius_meters":   g.cfg.RadiusMeters,
		})
	}
	return nil
}
