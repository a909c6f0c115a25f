// Package geo provides coordinates, great-circle distance and the tolerant
// distance comparison used to rank venues by proximity.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// EarthRadiusKm is the mean Earth radius used by the spherical approximation.
const EarthRadiusKm = 6371.0

// Field names reported by InvalidCoordinateError.
const (
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
)

// Coordinate is an immutable (latitude, longitude) pair in degrees tagged with
// an opaque identifier (usually a venue id).
type Coordinate struct {
	ID  string
	Lat float64
	Lon float64
}

// NewCoordinate builds a Coordinate from already parsed values.
func NewCoordinate(id string, lat, lon float64) (Coordinate, error) {
	if !finite(lat) {
		return Coordinate{}, &InvalidCoordinateError{Field: FieldLatitude, Value: strconv.FormatFloat(lat, 'g', -1, 64)}
	}
	if !finite(lon) {
		return Coordinate{}, &InvalidCoordinateError{Field: FieldLongitude, Value: strconv.FormatFloat(lon, 'g', -1, 64)}
	}
	return Coordinate{ID: id, Lat: lat, Lon: lon}, nil
}

// ParseCoordinate parses latitude and longitude literals. The returned error is
// an *InvalidCoordinateError naming the offending field and literal.
func ParseCoordinate(id, lat, lon string) (Coordinate, error) {
	la, ok := parseFinite(lat)
	if !ok {
		return Coordinate{}, &InvalidCoordinateError{Field: FieldLatitude, Value: lat}
	}
	lo, ok := parseFinite(lon)
	if !ok {
		return Coordinate{}, &InvalidCoordinateError{Field: FieldLongitude, Value: lon}
	}
	return Coordinate{ID: id, Lat: la, Lon: lo}, nil
}

func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// DistanceKm returns the haversine great-circle distance between a and b.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}
