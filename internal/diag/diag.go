// Package diag implements C7, the diagnostics reducer: accumulate per-node
// (numerical, analytical, volume) triples, merge them across PEs, and
// report L2/L-infinity error norms weighted by nodal volume. It
// generalizes tk::Solver::charediag/adddiag/updateDiag (LinSys/Solver.h)
// to a standalone reducer that does not also merge BCs, per spec.md S4.7.
package diag

import (
	"math"

	"github.com/notargets/tetrapart/internal/pe"
)

// Sample is one node's contribution: its numerical and analytical solution
// values (length ncomp) and its nodal volume weight.
type Sample struct {
	Numerical  []float64
	Analytical []float64
	Volume     float64
}

// Reducer accumulates samples keyed by node, following the merge rule of
// spec.md S4.7: overwrite for solutions (exactly one contributor per node
// after renumbering), sum for volumes.
type Reducer struct {
	samples map[uint64]*Sample
}

func NewReducer() *Reducer {
	return &Reducer{samples: map[uint64]*Sample{}}
}

// Add merges one contribution into the reducer's running totals.
func (r *Reducer) Add(node uint64, numerical, analytical []float64, volume float64) {
	s, ok := r.samples[node]
	if !ok {
		s = &Sample{
			Numerical:  append([]float64(nil), numerical...),
			Analytical: append([]float64(nil), analytical...),
		}
		r.samples[node] = s
	} else {
		copy(s.Numerical, numerical)
		copy(s.Analytical, analytical)
	}
	s.Volume += volume
}

// Norms is the error report spec.md S4.7 computes: L2 of the numerical
// solution, L2 of the error, and L-infinity of the error, all weighted by
// nodal volume.
type Norms struct {
	L2Numerical float64
	L2Error     float64
	LInfError   float64
}

// Local computes this reducer's norms over its own accumulated samples.
func (r *Reducer) Local() Norms {
	var sumNumSq, sumErrSq, linf float64
	for _, s := range r.samples {
		for i := range s.Numerical {
			e := s.Numerical[i] - s.Analytical[i]
			sumNumSq += s.Volume * s.Numerical[i] * s.Numerical[i]
			sumErrSq += s.Volume * e * e
			if ae := math.Abs(e); ae > linf {
				linf = ae
			}
		}
	}
	return Norms{
		L2Numerical: math.Sqrt(sumNumSq),
		L2Error:     math.Sqrt(sumErrSq),
		LInfError:   linf,
	}
}

type reduceMsg struct {
	pe.Envelope
	SumNumSq, SumErrSq, LInf float64
}

// AllReduce implements spec.md S4.7's "cross-PE all-reduce reports the
// final norms to a designated root": every PE sends its local partial sums
// to PE 0, which combines them (sum for the L2 accumulators, max for
// L-infinity). The returned Norms is the root's combined result.
func AllReduce(rt *pe.Runtime, npes int, reducers []*Reducer) Norms {
	var result Norms
	partials := make([]struct{ sumNumSq, sumErrSq, linf float64 }, npes)
	for p, r := range reducers {
		n := r.Local()
		partials[p].sumNumSq = n.L2Numerical * n.L2Numerical
		partials[p].sumErrSq = n.L2Error * n.L2Error
		partials[p].linf = n.LInfError
	}

	rt.RunPhase(func(mype int, inbox <-chan any, done func()) {
		if mype != 0 {
			rt.Send(0, reduceMsg{
				Envelope: pe.Envelope{FromPE: mype},
				SumNumSq: partials[mype].sumNumSq,
				SumErrSq: partials[mype].sumErrSq,
				LInf:     partials[mype].linf,
			})
			done()
			for msg := range inbox {
				if pe.IsPhaseDone(msg) {
					return
				}
			}
			return
		}

		sumNumSq, sumErrSq, linf := partials[0].sumNumSq, partials[0].sumErrSq, partials[0].linf
		received := 0
		if npes == 1 {
			result = Norms{L2Numerical: math.Sqrt(sumNumSq), L2Error: math.Sqrt(sumErrSq), LInfError: linf}
			done()
		}
		for msg := range inbox {
			if pe.IsPhaseDone(msg) {
				return
			}
			m, ok := msg.(reduceMsg)
			if !ok {
				continue
			}
			sumNumSq += m.SumNumSq
			sumErrSq += m.SumErrSq
			if m.LInf > linf {
				linf = m.LInf
			}
			received++
			if received == npes-1 {
				result = Norms{L2Numerical: math.Sqrt(sumNumSq), L2Error: math.Sqrt(sumErrSq), LInfError: linf}
				done()
			}
		}
	})

	return result
}
