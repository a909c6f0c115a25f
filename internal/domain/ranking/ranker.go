// Package ranking orders venues by proximity to an anchor from batches that
// arrive one page at a time.
package ranking

import (
	"slices"

	"github.com/okian/venuestats/internal/domain/geo"
)

// run is one batch sorted ascending by distance from the anchor.
type run []geo.RelativeDistance

// Ranker accumulates sorted runs and merges them on Drain.
//
// AddBatch is not safe for concurrent use; a single paginating caller feeds it.
type Ranker struct {
	anchor geo.Coordinate
	runs   []run
	size   int
}

// New returns an empty ranker measuring distances from anchor.
func New(anchor geo.Coordinate) *Ranker {
	return &Ranker{anchor: anchor}
}

// Anchor returns the reference coordinate.
func (r *Ranker) Anchor() geo.Coordinate { return r.anchor }

// Runs returns the number of runs waiting to be merged.
func (r *Ranker) Runs() int { return len(r.runs) }

// Len returns the number of coordinates ingested since the last drain.
func (r *Ranker) Len() int { return r.size }

// AddBatch measures every coordinate against the anchor, sorts the batch and
// pushes it as a new run. Empty batches push an empty run.
func (r *Ranker) AddBatch(coords []geo.Coordinate) {
	b := make(run, len(coords))
	for i, c := range coords {
		b[i] = geo.NewRelativeDistance(r.anchor, c)
	}
	slices.SortStableFunc(b, func(x, y geo.RelativeDistance) int { return x.Compare(y) })
	r.runs = append(r.runs, b)
	r.size += len(b)
}

// Drain merges every pending run and returns the targets in ascending distance.
// The ranker is left empty and can be refilled.
//
// The two most recently pushed runs are always merged first. On a tie between
// run fronts the later run wins, so equal distances keep the order established
// by each batch's own sort with later batches first.
func (r *Ranker) Drain() []geo.Coordinate {
	merged := r.drainRuns()
	out := make([]geo.Coordinate, len(merged))
	for i, d := range merged {
		out[i] = d.Target
	}
	return out
}

// DrainDistances is Drain keeping the measured distances.
func (r *Ranker) DrainDistances() []geo.RelativeDistance {
	return r.drainRuns()
}

func (r *Ranker) drainRuns() []geo.RelativeDistance {
	defer func() {
		r.runs = nil
		r.size = 0
	}()
	if len(r.runs) == 0 {
		return nil
	}
	for len(r.runs) > 1 {
		n := len(r.runs)
		older, newer := r.runs[n-2], r.runs[n-1]
		r.runs = append(r.runs[:n-2], merge(older, newer))
	}
	return r.runs[0]
}

// merge combines two sorted runs. The front of newer is emitted unless the
// front of older is strictly closer.
func merge(older, newer run) run {
	out := make(run, 0, len(older)+len(newer))
	i, j := 0, 0
	for i < len(older) && j < len(newer) {
		if older[i].Less(newer[j]) {
			out = append(out, older[i])
			i++
			continue
		}
		out = append(out, newer[j])
		j++
	}
	out = append(out, older[i:]...)
	return append(out, newer[j:]...)
}
