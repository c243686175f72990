package refine

import (
	"testing"

	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/stretchr/testify/require"
)

func TestRefineSingleTetProducesEightChildrenAndSixMidpoints(t *testing.T) {
	mesh := meshmodel.NewChareMesh(0)
	mesh.Tets = []meshmodel.NodeID{0, 1, 2, 3}
	coords := map[meshmodel.NodeID]meshmodel.Coord{
		0: {0, 0, 0},
		1: {1, 0, 0},
		2: {0, 1, 0},
		3: {0, 0, 1},
	}

	r := NewRefiner(4)
	edgeNodes := r.Refine(map[meshmodel.ChareID]*meshmodel.ChareMesh{0: mesh}, coords)

	require.Len(t, edgeNodes, 6)
	require.Len(t, mesh.Tets, 8*4)
	require.Len(t, coords, 4+6)

	for edge, id := range edgeNodes {
		want := meshmodel.Midpoint(coords[edge.A], coords[edge.B])
		require.Equal(t, want, coords[id])
	}

	seen := map[meshmodel.NodeID]struct{}{}
	for _, n := range mesh.Tets {
		seen[n] = struct{}{}
	}
	require.Len(t, seen, 10)
}

func TestRefineSharedFaceAcrossTwoCharesGetsIdenticalEdgeNode(t *testing.T) {
	a := meshmodel.NewChareMesh(0)
	a.Tets = []meshmodel.NodeID{0, 1, 2, 3}
	b := meshmodel.NewChareMesh(1)
	b.Tets = []meshmodel.NodeID{1, 2, 3, 4}
	coords := map[meshmodel.NodeID]meshmodel.Coord{
		0: {0, 0, 0}, 1: {1, 0, 0}, 2: {0, 1, 0}, 3: {0, 0, 1}, 4: {1, 1, 1},
	}

	r := NewRefiner(5)
	edgeNodes := r.Refine(map[meshmodel.ChareID]*meshmodel.ChareMesh{0: a, 1: b}, coords)

	shared := meshmodel.NewEdge(1, 2)
	idA := a.EdgeToNew[shared]
	idB := b.EdgeToNew[shared]
	require.Equal(t, idA, idB)
	require.Equal(t, edgeNodes[shared], idA)
}
