package distance

import (
	"context"

	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

// Estimate is a travel estimate between two locations.
type Estimate struct {
	Meters  float64 `json:"meters"`
	Seconds float64 `json:"seconds"`
}

// Provider resolves a travel estimate between two locations. Implementations
// may call external road-distance services; failures are handled by the
// Builder, which degrades to the geodesic fallback.
type Provider interface {
	Distance(ctx context.Context, a, b model.Location) (Estimate, error)
}

// DefaultSpeedKmh is the average-speed assumption used to derive durations
// from geodesic distances when no road-aware provider is configured.
const DefaultSpeedKmh = 50.0

// HaversineProvider estimates travel using the great-circle distance and a
// fixed average speed. It never fails and serves as the fallback for
// road-aware providers.
type HaversineProvider struct {
	SpeedKmh float64
}

// Distance implements Provider.
func (p HaversineProvider) Distance(_ context.Context, a, b model.Location) (Estimate, error) {
	speed := p.SpeedKmh
	if speed <= 0 {
		speed = DefaultSpeedKmh
	}
	meters := a.HaversineDistance(b)
	return Estimate{
		Meters:  meters,
		Seconds: meters / (speed * 1000 / 3600),
	}, nil
}

// EstimateTravelTime returns the expected travel duration in seconds for a
// distance at the given average speed.
func EstimateTravelTime(meters, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	return meters / (speedKmh * 1000 / 3600)
}
