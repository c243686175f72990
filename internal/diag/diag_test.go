package diag

import (
	"math"
	"testing"

	"github.com/notargets/tetrapart/internal/pe"
	"github.com/stretchr/testify/require"
)

func TestLocalNormsMatchHandComputation(t *testing.T) {
	r := NewReducer()
	r.Add(0, []float64{3}, []float64{1}, 2)
	r.Add(1, []float64{4}, []float64{4}, 1)

	n := r.Local()
	require.InDelta(t, math.Sqrt(2*9+1*16), n.L2Numerical, 1e-9)
	require.InDelta(t, math.Sqrt(2*4+1*0), n.L2Error, 1e-9)
	require.InDelta(t, 2.0, n.LInfError, 1e-9)
}

func TestAllReduceCombinesAcrossPEs(t *testing.T) {
	r0 := NewReducer()
	r0.Add(0, []float64{3}, []float64{1}, 1) // err 2, volume 1

	r1 := NewReducer()
	r1.Add(1, []float64{5}, []float64{5}, 1) // err 0

	rt := pe.NewRuntime(2)
	norms := AllReduce(rt, 2, []*Reducer{r0, r1})

	require.InDelta(t, 2.0, norms.LInfError, 1e-9)
	require.InDelta(t, math.Sqrt(1*4), norms.L2Error, 1e-9)
}

func TestAllReduceSinglePE(t *testing.T) {
	r := NewReducer()
	r.Add(0, []float64{2}, []float64{2}, 1)
	rt := pe.NewRuntime(1)
	norms := AllReduce(rt, 1, []*Reducer{r})
	require.InDelta(t, 0.0, norms.L2Error, 1e-9)
}
