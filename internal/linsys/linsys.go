// Package linsys implements C6, the row-range solver: each PE owns a
// contiguous row range of the global linear system, accumulates per-chare
// contributions to sol/lhs/rhs/lowlhs/lowrhs (exporting rows it doesn't
// own), applies Dirichlet BCs, and drives an external sparse-solver
// collaborator. It is a direct generalization of
// tk::Solver::charerow/charesol/charelhs/charerhs/charelowlhs/charelowrhs
// /lhsbc/rhsbc/solve/lowsolve (LinSys/Solver.h) to Go's row-keyed-map
// representation.
package linsys

import (
	"sort"

	"github.com/notargets/tetrapart/internal/config"
	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/notargets/tetrapart/internal/pe"
)

// Row is a sparse row: column -> per-component values. lhs/lowlhs rows
// carry one entry per nonzero column; sol/rhs/lowrhs rows carry exactly one
// entry, keyed by the row's own index, since every row has a single
// contributing value once it has been accumulated.
type Row map[uint64][]float64

// BCEntry records, per component, whether a Dirichlet condition is active
// on a row and, if so, its prescribed value.
type BCEntry struct {
	Active bool
	Value  float64
}

// BCTable maps a row to its per-component BC entries (length Ncomp).
type BCTable map[uint64][]BCEntry

// System holds the five row-keyed quantities C6 assembles, plus the
// boundary-condition table applied to lhs/rhs/lowlhs/lowrhs before solve.
type System struct {
	Ncomp int

	Sol    map[uint64]Row
	Lhs    map[uint64]Row
	Rhs    map[uint64]Row
	LowLhs map[uint64]Row
	LowRhs map[uint64]Row

	BC BCTable
}

// NewSystem allocates an empty System for ncomp scalar components per row.
func NewSystem(ncomp int) *System {
	return &System{
		Ncomp:  ncomp,
		Sol:    map[uint64]Row{},
		Lhs:    map[uint64]Row{},
		Rhs:    map[uint64]Row{},
		LowLhs: map[uint64]Row{},
		LowRhs: map[uint64]Row{},
		BC:     BCTable{},
	}
}

func mergeSum(m map[uint64]Row, row, col uint64, vals []float64) {
	r, ok := m[row]
	if !ok {
		r = Row{}
		m[row] = r
	}
	existing, ok := r[col]
	if !ok {
		cp := make([]float64, len(vals))
		copy(cp, vals)
		r[col] = cp
		return
	}
	for i, v := range vals {
		existing[i] += v
	}
}

func mergeOverwrite(m map[uint64]Row, row, col uint64, vals []float64) {
	cp := make([]float64, len(vals))
	copy(cp, vals)
	m[row] = Row{col: cp}
}

// ContributeLhs sum-merges one chare's contribution to lhs[row,col].
func (s *System) ContributeLhs(row, col uint64, vals []float64) { mergeSum(s.Lhs, row, col, vals) }

// ContributeRhs sum-merges one chare's contribution to rhs[row].
func (s *System) ContributeRhs(row uint64, vals []float64) { mergeSum(s.Rhs, row, row, vals) }

// ContributeLowLhs sum-merges one chare's contribution to lowlhs[row,col].
func (s *System) ContributeLowLhs(row, col uint64, vals []float64) {
	mergeSum(s.LowLhs, row, col, vals)
}

// ContributeLowRhs sum-merges one chare's contribution to lowrhs[row].
func (s *System) ContributeLowRhs(row uint64, vals []float64) { mergeSum(s.LowRhs, row, row, vals) }

// ContributeSol overwrites sol[row]: exactly one chare contributes a row
// after renumbering, so last-write is correct and idempotent.
func (s *System) ContributeSol(row uint64, vals []float64) { mergeOverwrite(s.Sol, row, row, vals) }

// rhsAt returns rhs[row]'s values (length Ncomp), allocating a zero row if
// none has been contributed yet (a row with no source term is legal).
func (s *System) rhsAt(row uint64) []float64 {
	r, ok := s.Rhs[row]
	if !ok {
		r = Row{row: make([]float64, s.Ncomp)}
		s.Rhs[row] = r
	}
	v, ok := r[row]
	if !ok {
		v = make([]float64, s.Ncomp)
		r[row] = v
	}
	return v
}

func (s *System) lowRhsAt(row uint64) []float64 {
	r, ok := s.LowRhs[row]
	if !ok {
		r = Row{row: make([]float64, s.Ncomp)}
		s.LowRhs[row] = r
	}
	v, ok := r[row]
	if !ok {
		v = make([]float64, s.Ncomp)
		r[row] = v
	}
	return v
}

// ApplyBCs applies every active Dirichlet entry in bc to rows that fall
// inside local, per spec.md S4.6: for each active component, zero the lhs
// row, set its diagonal to 1, and set rhs to the prescribed value (or zero,
// if incrementForm solves for an increment rather than the field itself).
// The low-order system gets lowlhs[r][i]=1, lowrhs[r][i]=0. Applying this
// twice is a no-op (P5): the second pass zeroes an already-zero row and
// rewrites the same diagonal/rhs values.
func (s *System) ApplyBCs(local meshmodel.RowRange, incrementForm bool) {
	for row, entries := range s.BC {
		if !local.Contains(row) {
			continue
		}
		lhsRow, ok := s.Lhs[row]
		if !ok {
			lhsRow = Row{}
			s.Lhs[row] = lhsRow
		}
		lowRow, ok := s.LowLhs[row]
		if !ok {
			lowRow = Row{}
			s.LowLhs[row] = lowRow
		}
		rhs := s.rhsAt(row)
		lowRhs := s.lowRhsAt(row)

		for i, e := range entries {
			if !e.Active {
				continue
			}
			for col, vals := range lhsRow {
				if col == row {
					continue
				}
				vals[i] = 0
			}
			diag, ok := lhsRow[row]
			if !ok {
				diag = make([]float64, s.Ncomp)
				lhsRow[row] = diag
			}
			diag[i] = 1

			lowDiag, ok := lowRow[row]
			if !ok {
				lowDiag = make([]float64, s.Ncomp)
				lowRow[row] = lowDiag
			}
			lowDiag[i] = 1
			lowRhs[i] = 0

			if incrementForm {
				rhs[i] = 0
			} else {
				rhs[i] = e.Value
			}
		}
	}
}

// LowOrderSolve implements P7: x_low[r] = (rhs[r] + lowrhs[r]) / lowlhs[r]
// componentwise, over every row in local that has a lowlhs diagonal entry.
func (s *System) LowOrderSolve(local meshmodel.RowRange) (map[uint64][]float64, error) {
	out := map[uint64][]float64{}
	for row := local.Lower; row < local.Upper; row++ {
		lowRow, ok := s.LowLhs[row]
		if !ok {
			continue
		}
		diag, ok := lowRow[row]
		if !ok {
			return nil, &config.InvariantViolation{Datum: "row " + uintStr(row), Reason: "lowlhs missing its diagonal entry"}
		}
		rhs := s.rhsAt(row)
		lowRhs := s.lowRhsAt(row)
		x := make([]float64, s.Ncomp)
		for i := range x {
			if diag[i] == 0 {
				return nil, &config.SolverError{Reason: "zero lowlhs diagonal at row " + uintStr(row)}
			}
			x[i] = (rhs[i] + lowRhs[i]) / diag[i]
		}
		out[row] = x
	}
	return out, nil
}

func uintStr(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// --- C3-style row contribution exchange -----------------------------------

// Quantity names the five row-keyed system components a contribution
// message may target.
type Quantity int

const (
	QSol Quantity = iota
	QLhs
	QRhs
	QLowLhs
	QLowRhs
)

// Contribution is one chare's input to one (row[,col]) entry of one
// quantity of the system.
type Contribution struct {
	Chare int
	Qty   Quantity
	Row   uint64
	Col   uint64 // unused (0) for vector quantities
	Vals  []float64
}

type contribMsg struct {
	pe.Envelope
	Items []Contribution
}

type ackMsg struct {
	pe.Envelope
}

// Assemble runs C6's row-exchange: every PE's local contributions are
// routed to the owning PE (per ranges) and merged into sys, using
// sum-merge for lhs/rhs/lowlhs/lowrhs and overwrite for sol. It blocks
// until every PE's export batch is acknowledged, mirroring C3's
// Distribute barrier.
func Assemble(rt *pe.Runtime, npes int, ranges []meshmodel.RowRange, localContributions [][]Contribution) []*System {
	systems := make([]*System, npes)
	ncomp := 0
	for _, batch := range localContributions {
		for _, c := range batch {
			if len(c.Vals) > ncomp {
				ncomp = len(c.Vals)
			}
		}
	}
	if ncomp == 0 {
		ncomp = 1
	}
	for p := range systems {
		systems[p] = NewSystem(ncomp)
	}

	owner := func(row uint64) int {
		for p, r := range ranges {
			if r.Contains(row) {
				return p
			}
		}
		return -1
	}

	rt.RunPhase(func(mype int, inbox <-chan any, done func()) {
		sys := systems[mype]
		export := map[int][]Contribution{}
		local := 0
		for _, c := range localContributions[mype] {
			dst := owner(c.Row)
			if dst == mype {
				applyOne(sys, c)
				local++
				continue
			}
			export[dst] = append(export[dst], c)
		}

		pending := len(export)
		for dst, items := range export {
			rt.Send(dst, contribMsg{Envelope: pe.Envelope{FromPE: mype}, Items: items})
		}
		if pending == 0 {
			done()
		}

		for msg := range inbox {
			if pe.IsPhaseDone(msg) {
				return
			}
			switch m := msg.(type) {
			case contribMsg:
				for _, c := range m.Items {
					applyOne(sys, c)
				}
				rt.Send(m.From(), ackMsg{pe.Envelope{FromPE: mype}})
			case ackMsg:
				pending--
				if pending == 0 {
					done()
				}
			}
		}
	})

	return systems
}

func applyOne(sys *System, c Contribution) {
	switch c.Qty {
	case QSol:
		sys.ContributeSol(c.Row, c.Vals)
	case QLhs:
		sys.ContributeLhs(c.Row, c.Col, c.Vals)
	case QRhs:
		sys.ContributeRhs(c.Row, c.Vals)
	case QLowLhs:
		sys.ContributeLowLhs(c.Row, c.Col, c.Vals)
	case QLowRhs:
		sys.ContributeLowRhs(c.Row, c.Vals)
	}
}

// SortedRows returns m's keys in ascending order, for deterministic
// iteration (logging, tests, scatter-back ordering).
func SortedRows(m map[uint64]Row) []uint64 {
	out := make([]uint64, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
