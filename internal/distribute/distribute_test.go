package distribute

import (
	"sort"
	"testing"

	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/notargets/tetrapart/internal/pe"
	"github.com/stretchr/testify/require"
)

func TestDistributeGathersEveryChareOnItsOwner(t *testing.T) {
	const npes, nchare = 3, 6
	// chare pe(c) = c/2: chares {0,1}->pe0, {2,3}->pe1, {4,5}->pe2.
	local := []map[meshmodel.ChareID][]meshmodel.NodeID{
		{0: {100, 101}, 4: {400}},
		{1: {110}, 2: {200, 201}},
		{5: {500}, 3: {300}},
	}
	rt := pe.NewRuntime(npes)
	results := Distribute(rt, npes, nchare, local)

	require.ElementsMatch(t, []meshmodel.NodeID{100, 101}, results[0].Nodes[0])
	require.ElementsMatch(t, []meshmodel.NodeID{110}, results[0].Nodes[1])
	require.ElementsMatch(t, []meshmodel.NodeID{200, 201}, results[1].Nodes[2])
	require.ElementsMatch(t, []meshmodel.NodeID{300}, results[1].Nodes[3])
	require.ElementsMatch(t, []meshmodel.NodeID{400}, results[2].Nodes[4])
	require.ElementsMatch(t, []meshmodel.NodeID{500}, results[2].Nodes[5])

	var allChares []int
	for p := 0; p < npes; p++ {
		for c := range results[p].Nodes {
			allChares = append(allChares, int(c))
		}
	}
	sort.Ints(allChares)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, allChares)
}

func TestDistributeWithNoExportsCompletesImmediately(t *testing.T) {
	local := []map[meshmodel.ChareID][]meshmodel.NodeID{
		{0: {1, 2}},
	}
	rt := pe.NewRuntime(1)
	results := Distribute(rt, 1, 1, local)
	require.ElementsMatch(t, []meshmodel.NodeID{1, 2}, results[0].Nodes[0])
}
