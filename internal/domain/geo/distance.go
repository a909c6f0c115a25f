package geo

import "math"

// DistanceTolerance is the width of the equivalence band in kilometers (10 m).
const DistanceTolerance = 0.01

// RelativeDistance is the distance of a target from an anchor, computed once at
// construction.
//
// Comparisons treat distances within DistanceTolerance of each other as equal.
// The relation is reflexive and symmetric but not transitive: a≈b and b≈c do
// not imply a≈c.
type RelativeDistance struct {
	Anchor   Coordinate
	Target   Coordinate
	Distance float64
}

// NewRelativeDistance measures target against anchor.
func NewRelativeDistance(anchor, target Coordinate) RelativeDistance {
	return RelativeDistance{
		Anchor:   anchor,
		Target:   target,
		Distance: DistanceKm(anchor, target),
	}
}

// Equal reports whether x and y are within the tolerance band.
func (x RelativeDistance) Equal(y RelativeDistance) bool {
	return math.Abs(x.Distance-y.Distance) <= DistanceTolerance
}

// Less reports whether x is closer than y by more than the tolerance band.
func (x RelativeDistance) Less(y RelativeDistance) bool {
	return x.Distance-y.Distance < -DistanceTolerance
}

// LessOrEqual is Equal or Less.
func (x RelativeDistance) LessOrEqual(y RelativeDistance) bool {
	return x.Equal(y) || x.Less(y)
}

// Greater reports whether x is farther than y by more than the tolerance band.
func (x RelativeDistance) Greater(y RelativeDistance) bool {
	return y.Less(x)
}

// GreaterOrEqual is Equal or Greater.
func (x RelativeDistance) GreaterOrEqual(y RelativeDistance) bool {
	return x.Equal(y) || x.Greater(y)
}

// Compare returns -1, 0 or +1 following Less/Equal/Greater.
func (x RelativeDistance) Compare(y RelativeDistance) int {
	switch {
	case x.Less(y):
		return -1
	case x.Greater(y):
		return 1
	default:
		return 0
	}
}
