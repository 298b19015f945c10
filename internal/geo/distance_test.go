package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm_Symmetric(t *testing.T) {
	points := [][2]float64{
		{12.9716, 77.5946},
		{13.0, 77.55},
		{-33.8688, 151.2093},
		{51.5074, -0.1278},
		{0, 0},
	}

	for _, a := range points {
		for _, b := range points {
			ab := DistanceKm(a[0], a[1], b[0], b[1])
			ba := DistanceKm(b[0], b[1], a[0], a[1])
			assert.InDelta(t, ab, ba, 1e-9, "distance %v -> %v", a, b)
		}
		assert.Equal(t, 0.0, DistanceKm(a[0], a[1], a[0], a[1]))
	}
}

func TestDistanceKm_KnownValues(t *testing.T) {
	// One degree of latitude along a meridian.
	assert.InDelta(t, KmPerDegreeLat, DistanceKm(0, 0, 1, 0), 1e-9)

	// Bangalore city centre to the default danger zone, roughly 6 km.
	d := DistanceKm(12.9716, 77.5946, 13.0, 77.55)
	assert.InDelta(t, 5.8, d, 0.3)
}

func TestDistanceKm_NaN(t *testing.T) {
	assert.True(t, math.IsNaN(DistanceKm(math.NaN(), 0, 0, 0)))
}

func TestDistanceMeters(t *testing.T) {
	assert.InDelta(t, DistanceKm(0, 0, 0.01, 0)*1000, DistanceMeters(0, 0, 0.01, 0), 1e-9)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 150.12, Round(150.1234, 2))
	assert.Equal(t, 31.0, Round(30.6, 0))
}
