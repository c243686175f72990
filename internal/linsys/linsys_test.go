package linsys

import (
	"testing"

	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/stretchr/testify/require"
)

func TestApplyBCsIsIdempotent(t *testing.T) {
	s := NewSystem(1)
	s.ContributeLhs(0, 0, []float64{4})
	s.ContributeLhs(0, 1, []float64{2})
	s.ContributeRhs(0, []float64{9})
	s.ContributeLowLhs(0, 0, []float64{4})
	s.ContributeLowRhs(0, []float64{9})
	s.BC[0] = []BCEntry{{Active: true, Value: 3}}

	local := meshmodel.RowRange{Lower: 0, Upper: 10}
	s.ApplyBCs(local, false)
	first := snapshot(s, 0)
	s.ApplyBCs(local, false)
	second := snapshot(s, 0)
	require.Equal(t, first, second)
	require.Equal(t, 1.0, s.Lhs[0][0][0])
	require.Equal(t, 0.0, s.Lhs[0][1][0])
	require.Equal(t, 3.0, s.Rhs[0][0][0])
}

func snapshot(s *System, row uint64) map[uint64]float64 {
	out := map[uint64]float64{}
	for col, vals := range s.Lhs[row] {
		out[col] = vals[0]
	}
	out[1000] = s.Rhs[row][row][0]
	return out
}

func TestApplyBCsPreservesSymmetricPatternOffBC(t *testing.T) {
	s := NewSystem(1)
	s.ContributeLhs(5, 5, []float64{2})
	s.ContributeLhs(5, 6, []float64{1})
	s.ContributeLhs(6, 5, []float64{1})
	s.ContributeLhs(6, 6, []float64{2})
	s.ContributeLhs(7, 7, []float64{3})
	s.BC[7] = []BCEntry{{Active: true, Value: 0}}

	s.ApplyBCs(meshmodel.RowRange{Lower: 0, Upper: 10}, false)

	_, ok56 := s.Lhs[5][6]
	_, ok65 := s.Lhs[6][5]
	require.True(t, ok56)
	require.True(t, ok65)
}

func TestLowOrderSolveMatchesBCValueAtBoundaryRow(t *testing.T) {
	s := NewSystem(1)
	s.ContributeLowLhs(0, 0, []float64{4})
	s.ContributeRhs(0, []float64{9})
	s.ContributeLowRhs(0, []float64{3})
	s.BC[0] = []BCEntry{{Active: true, Value: 7}}

	local := meshmodel.RowRange{Lower: 0, Upper: 1}
	s.ApplyBCs(local, false)
	x, err := s.LowOrderSolve(local)
	require.NoError(t, err)
	require.Equal(t, 7.0, x[0][0])
}

func TestLowOrderSolveMatchesDirectFormulaAwayFromBC(t *testing.T) {
	s := NewSystem(1)
	s.ContributeLowLhs(3, 3, []float64{4})
	s.ContributeRhs(3, []float64{8})
	s.ContributeLowRhs(3, []float64{4})

	local := meshmodel.RowRange{Lower: 0, Upper: 10}
	x, err := s.LowOrderSolve(local)
	require.NoError(t, err)
	require.Equal(t, 3.0, x[3][0])
}
