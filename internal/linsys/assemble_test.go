package linsys

import (
	"testing"

	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/notargets/tetrapart/internal/pe"
	"github.com/stretchr/testify/require"
)

func TestAssembleSumsLhsContributionsFromBothPEs(t *testing.T) {
	ranges := []meshmodel.RowRange{{Lower: 0, Upper: 2}, {Lower: 2, Upper: 4}}
	// row 2 is owned by PE1 but PE0 has a chare contributing to it too.
	contributions := [][]Contribution{
		{
			{Chare: 0, Qty: QLhs, Row: 0, Col: 0, Vals: []float64{1}},
			{Chare: 0, Qty: QLhs, Row: 2, Col: 2, Vals: []float64{5}},
			{Chare: 0, Qty: QRhs, Row: 0, Vals: []float64{10}},
		},
		{
			{Chare: 1, Qty: QLhs, Row: 2, Col: 2, Vals: []float64{3}},
			{Chare: 1, Qty: QRhs, Row: 2, Vals: []float64{7}},
		},
	}

	rt := pe.NewRuntime(2)
	systems := Assemble(rt, 2, ranges, contributions)

	require.Equal(t, 8.0, systems[1].Lhs[2][2][0])
	require.Equal(t, 7.0, systems[1].Rhs[2][2][0])
	require.Equal(t, 1.0, systems[0].Lhs[0][0][0])
	require.Equal(t, 10.0, systems[0].Rhs[0][0][0])
}

func TestAssembleOverwritesSolFromSingleContributor(t *testing.T) {
	ranges := []meshmodel.RowRange{{Lower: 0, Upper: 5}}
	contributions := [][]Contribution{
		{{Chare: 0, Qty: QSol, Row: 3, Vals: []float64{1, 2}}},
	}
	rt := pe.NewRuntime(1)
	systems := Assemble(rt, 1, ranges, contributions)
	require.Equal(t, []float64{1, 2}, systems[0].Sol[3][3])
}
