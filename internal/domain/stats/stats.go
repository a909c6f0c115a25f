// Package stats holds the running reservation-outcome aggregates kept per user
// and per venue.
//
// Aggregates store ratios rather than counts. Every increment converts the
// current ratios back to counts with the total before the increment, bumps the
// relevant count and the total, and divides again.
package stats

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ratioPlaces is the precision venue ratios are reported with.
const ratioPlaces = 2

// count converts a ratio to an absolute count against total.
func count(ratio float64, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(ratio * float64(total))
}

// bump adds one reservation to an aggregate, dc/de of which were canceled or
// expired, and returns the new total and ratios.
func bump(total int, canceled, expired float64, dc, de int) (int, float64, float64) {
	cc := count(canceled, total)
	ec := count(expired, total)
	total++
	n := float64(total)
	return total, (cc + float64(dc)) / n, (ec + float64(de)) / n
}

// ratio reports r, or 0 when the aggregate is empty.
func ratio(r float64, total int) float64 {
	if total == 0 {
		return 0
	}
	return r
}

// round2 rounds half away from zero to two decimals.
func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(ratioPlaces).InexactFloat64()
}

// Weekday maps t to 0=Monday .. 6=Sunday.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// TimeSlot returns the "HH:MM" slot key of t.
func TimeSlot(t time.Time) string {
	return t.Format("15:04")
}
