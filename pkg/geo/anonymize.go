// Package geo converts exact coordinates into bounded location ranges so
// that no precise point is ever persisted. The range width is fixed per
// privacy level and the range midpoint carries a bounded random jitter,
// which keeps repeated anonymizations of the same point from revealing it.
package geo

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// PrivacyLevel selects the anonymization radius.
type PrivacyLevel string

const (
	LevelPublic    PrivacyLevel = "public"    // 0.1 km
	LevelAnonymous PrivacyLevel = "anonymous" // 1.0 km
	LevelPrivate   PrivacyLevel = "private"   // 10.0 km
)

// kmPerDegree approximates the length of one degree of latitude.
const kmPerDegree = 111.0

// maxAbsLat is the latitude clamp applied before the longitude cosine.
// Above this the cos(lat) denominator degenerates and the longitude range
// would blow up toward infinity at the poles.
const maxAbsLat = 89.9

// jitterScale bounds the center offset to 25% of the accuracy radius.
const jitterScale = 0.5

// ErrInvalidCoordinate is returned for non-finite or out-of-range input.
var ErrInvalidCoordinate = errors.New("geo: invalid coordinate")

// ErrUnknownLevel is returned for an unrecognized privacy level.
var ErrUnknownLevel = errors.New("geo: unknown privacy level")

// LocationRange is the anonymized form of a coordinate. It is created once
// per submission and never mutated.
type LocationRange struct {
	LatMin     float64 `json:"lat_min"`
	LatMax     float64 `json:"lat_max"`
	LngMin     float64 `json:"lng_min"`
	LngMax     float64 `json:"lng_max"`
	CenterLat  float64 `json:"center_lat"`
	CenterLng  float64 `json:"center_lng"`
	AccuracyKm float64 `json:"accuracy_km"`
}

// Contains reports whether the range covers the given point.
func (r LocationRange) Contains(lat, lng float64) bool {
	return lat >= r.LatMin && lat <= r.LatMax && lng >= r.LngMin && lng <= r.LngMax
}

// AccuracyKm returns the fixed radius for a privacy level.
func AccuracyKm(level PrivacyLevel) (float64, error) {
	switch level {
	case LevelPublic:
		return 0.1, nil
	case LevelAnonymous:
		return 1.0, nil
	case LevelPrivate:
		return 10.0, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
}

// ParseLevel validates a privacy level string. An empty string maps to
// the anonymous default.
func ParseLevel(s string) (PrivacyLevel, error) {
	switch PrivacyLevel(s) {
	case LevelPublic, LevelAnonymous, LevelPrivate:
		return PrivacyLevel(s), nil
	case "":
		return LevelAnonymous, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// ValidateCoordinates checks that a coordinate pair is finite and inside
// the WGS84 domain. Callers that hash or classify before anonymizing use
// it to reject bad input up front.
func ValidateCoordinates(lat, lng float64) error {
	if !isFinite(lat) || !isFinite(lng) {
		return fmt.Errorf("%w: non-finite input", ErrInvalidCoordinate)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, lat, lng)
	}
	return nil
}

// Anonymizer produces location ranges. The random source is injectable so
// tests can pin the jitter.
type Anonymizer struct {
	// Rand returns a uniform draw on [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// NewAnonymizer returns an Anonymizer backed by the default random source.
func NewAnonymizer() *Anonymizer {
	return &Anonymizer{Rand: rand.Float64}
}

// Anonymize converts an exact coordinate into a LocationRange at the given
// privacy level.
//
// The latitude half-width is accuracyKm/111 degrees; the longitude
// half-width divides by cos(lat). Latitude is clamped to ±89.9 before the
// cosine so the longitude range stays finite near the poles.
//
// The range midpoint is offset from the true point by a uniform jitter on
// [-0.5, 0.5] * accuracyKm/111 per axis, which never exceeds 25% of the
// accuracy radius, so the returned range always contains the true point.
func (a *Anonymizer) Anonymize(lat, lng float64, level PrivacyLevel) (LocationRange, error) {
	if err := ValidateCoordinates(lat, lng); err != nil {
		return LocationRange{}, err
	}

	accuracyKm, err := AccuracyKm(level)
	if err != nil {
		return LocationRange{}, err
	}

	clampedLat := math.Max(-maxAbsLat, math.Min(maxAbsLat, lat))

	latHalf := accuracyKm / kmPerDegree
	lngHalf := accuracyKm / (kmPerDegree * math.Cos(clampedLat*math.Pi/180))

	centerLat := lat + a.jitter()*latHalf
	centerLng := lng + a.jitter()*lngHalf

	return LocationRange{
		LatMin:     centerLat - latHalf,
		LatMax:     centerLat + latHalf,
		LngMin:     centerLng - lngHalf,
		LngMax:     centerLng + lngHalf,
		CenterLat:  centerLat,
		CenterLng:  centerLng,
		AccuracyKm: accuracyKm,
	}, nil
}

// jitter draws a uniform offset on [-0.25, 0.25] of the half-width.
func (a *Anonymizer) jitter() float64 {
	src := a.Rand
	if src == nil {
		src = rand.Float64
	}
	return (src() - 0.5) * jitterScale
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
