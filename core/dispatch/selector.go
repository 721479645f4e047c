package dispatch

import (
	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/taxidispatch/core/model"
)

// ManhattanDistance returns |ax-bx| + |ay-by|.
func ManhattanDistance(a, b model.Position) float64 {
	return floats.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y}, 1)
}

// SelectNearest returns the available candidate closest to pos. Ties go to the
// lowest id, so the result does not depend on the order of candidates.
func SelectNearest(candidates []model.AgentRecord, pos model.Position) (model.AgentRecord, bool) {
	var (
		best  model.AgentRecord
		bestD float64
		found bool
	)
	for _, c := range candidates {
		if !c.Available() {
			continue
		}
		d := ManhattanDistance(c.Position(), pos)
		if !found || d < bestD || (d == bestD && c.ID < best.ID) {
			best, bestD, found = c, d, true
		}
	}
	return best, found
}
