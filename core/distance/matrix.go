package distance

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

// Matrix holds pairwise travel estimates between a set of locations.
// Index 0 is conventionally the depot. Approximate is set when at least one
// pair fell back to the geodesic estimate after a provider failure.
type Matrix struct {
	locations   []model.Location
	meters      *mat.Dense
	seconds     *mat.Dense
	Approximate bool
}

// Len returns the number of locations covered by the matrix.
func (m *Matrix) Len() int { return len(m.locations) }

// Location returns the location at index i.
func (m *Matrix) Location(i int) model.Location { return m.locations[i] }

// Meters returns the travel distance between indices i and j.
func (m *Matrix) Meters(i, j int) float64 { return m.meters.At(i, j) }

// Seconds returns the travel duration between indices i and j.
func (m *Matrix) Seconds(i, j int) float64 { return m.seconds.At(i, j) }

// Builder computes distance matrices with per-run caching. A configured
// road-aware provider takes precedence; its failures degrade per pair to the
// haversine fallback without failing the build.
type Builder struct {
	provider Provider
	fallback HaversineProvider
	log      logger.Logger

	mu    sync.Mutex
	cache map[uint64]*Matrix
}

// NewBuilder creates a Builder. provider may be nil, in which case the
// geodesic fallback serves all pairs.
func NewBuilder(provider Provider, speedKmh float64, log logger.Logger) *Builder {
	return &Builder{
		provider: provider,
		fallback: HaversineProvider{SpeedKmh: speedKmh},
		log:      log,
		cache:    make(map[uint64]*Matrix),
	}
}

// Build computes the pairwise matrix for the location set, reusing a cached
// result when the same set was built before.
func (b *Builder) Build(ctx context.Context, locations []model.Location) (*Matrix, error) {
	key := hashLocations(locations)
	b.mu.Lock()
	if m, ok := b.cache[key]; ok {
		b.mu.Unlock()
		return m, nil
	}
	b.mu.Unlock()

	n := len(locations)
	m := &Matrix{
		locations: append([]model.Location(nil), locations...),
		meters:    mat.NewDense(maxInt(n, 1), maxInt(n, 1), nil),
		seconds:   mat.NewDense(maxInt(n, 1), maxInt(n, 1), nil),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			est, approx, err := b.estimate(ctx, locations[i], locations[j])
			if err != nil {
				return nil, err
			}
			if approx {
				m.Approximate = true
			}
			m.meters.Set(i, j, est.Meters)
			m.seconds.Set(i, j, est.Seconds)
		}
	}

	b.mu.Lock()
	b.cache[key] = m
	b.mu.Unlock()
	return m, nil
}

func (b *Builder) estimate(ctx context.Context, a, c model.Location) (Estimate, bool, error) {
	if err := ctx.Err(); err != nil {
		return Estimate{}, false, err
	}
	if b.provider == nil {
		est, _ := b.fallback.Distance(ctx, a, c)
		return est, false, nil
	}
	est, err := b.provider.Distance(ctx, a, c)
	if err != nil {
		if b.log != nil {
			b.log.Warnf("distance provider failed for (%f,%f)->(%f,%f), using geodesic fallback: %v",
				a.Latitude, a.Longitude, c.Latitude, c.Longitude, err)
		}
		// The fallback never fails; the matrix is flagged approximate so the
		// caller knows duration fidelity degraded.
		est, _ = b.fallback.Distance(ctx, a, c)
		return est, true, nil
	}
	return est, false, nil
}

func hashLocations(locations []model.Location) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, l := range locations {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(l.Latitude))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(l.Longitude))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
