package reorder

import (
	"testing"

	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/notargets/tetrapart/internal/pe"
	"github.com/stretchr/testify/require"
)

func set(ids ...meshmodel.NodeID) map[meshmodel.NodeID]struct{} {
	s := map[meshmodel.NodeID]struct{}{}
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func edgeSet(es ...meshmodel.Edge) map[meshmodel.Edge]struct{} {
	s := map[meshmodel.Edge]struct{}{}
	for _, e := range es {
		s[e] = struct{}{}
	}
	return s
}

// TestRenumberAssignsDisjointContiguousRanges covers P1-P3: three PEs share
// boundary nodes, and every node/edge must get exactly one final id, with
// per-PE ranges that tile [0, nnode*ncomp) without gaps or overlap.
func TestRenumberAssignsDisjointContiguousRanges(t *testing.T) {
	const npes = 3
	// PE0: {0,1,2,10} PE1: {10,11,2,12} PE2: {12,13,1,14} — 10,2,12,1 shared.
	localIDs := []map[meshmodel.NodeID]struct{}{
		set(0, 1, 2, 10),
		set(10, 11, 2, 12),
		set(12, 13, 1, 14),
	}
	localEdges := []map[meshmodel.Edge]struct{}{
		{}, {}, {},
	}

	rn := &Renumberer{Ncomp: 2}
	rt := pe.NewRuntime(npes)
	results, err := rn.Run(rt, npes, localIDs, localEdges)
	require.NoError(t, err)

	// The owner (assigner) of a file-id is the lowest PE holding it.
	ownerOf := func(old meshmodel.NodeID) int {
		for p, ids := range localIDs {
			if _, ok := ids[old]; ok {
				return p
			}
		}
		return -1
	}

	total := map[meshmodel.NodeID]meshmodel.NodeID{}
	for _, r := range results {
		for old, id := range r.NewIDs {
			if existing, ok := total[old]; ok {
				require.Equal(t, existing, id, "node %d got different ids across PEs", old)
			} else {
				total[old] = id
			}
			owner := ownerOf(old)
			require.True(t, results[owner].Range.Contains(uint64(id)*2), "owner PE %d range %v does not contain node %d -> %d", owner, results[owner].Range, old, id)
		}
	}

	allFinal := map[meshmodel.NodeID]struct{}{}
	for _, id := range total {
		allFinal[id] = struct{}{}
	}
	require.Len(t, allFinal, len(total))

	var lowers, uppers []uint64
	for _, r := range results {
		lowers = append(lowers, r.Range.Lower)
		uppers = append(uppers, r.Range.Upper)
	}
	require.Equal(t, uint64(0), lowers[0])
	for p := 1; p < npes; p++ {
		require.Equal(t, uppers[p-1], lowers[p], "ranges must tile contiguously")
	}

	uniqueNodes := set(0, 1, 2, 10, 11, 12, 13, 14)
	require.Equal(t, uint64(len(uniqueNodes))*2, uppers[npes-1])
}

// TestRenumberResolvesSharedEdgeToOneOwner covers P4: an edge touched by two
// PEs gets exactly one final id, assigned by the lower-indexed PE.
func TestRenumberResolvesSharedEdgeToOneOwner(t *testing.T) {
	const npes = 2
	shared := meshmodel.NewEdge(5, 6)
	localIDs := []map[meshmodel.NodeID]struct{}{
		set(1, 2, 5, 6),
		set(6, 5, 7, 8),
	}
	localEdges := []map[meshmodel.Edge]struct{}{
		edgeSet(shared, meshmodel.NewEdge(1, 2)),
		edgeSet(shared, meshmodel.NewEdge(7, 8)),
	}

	rn := &Renumberer{Ncomp: 1}
	rt := pe.NewRuntime(npes)
	results, err := rn.Run(rt, npes, localIDs, localEdges)
	require.NoError(t, err)

	id0, ok0 := results[0].NewEdgeIDs[shared]
	id1, ok1 := results[1].NewEdgeIDs[shared]
	require.True(t, ok0)
	require.True(t, ok1)
	require.Equal(t, id0, id1)
	require.True(t, results[0].Range.Contains(uint64(id0)))
}

func TestRenumberSinglePEAssignsEverythingLocally(t *testing.T) {
	localIDs := []map[meshmodel.NodeID]struct{}{set(0, 1, 2, 3)}
	localEdges := []map[meshmodel.Edge]struct{}{{}}
	rn := &Renumberer{Ncomp: 1}
	rt := pe.NewRuntime(1)
	results, err := rn.Run(rt, 1, localIDs, localEdges)
	require.NoError(t, err)
	require.Len(t, results[0].NewIDs, 4)
	require.Equal(t, meshmodel.RowRange{Lower: 0, Upper: 4}, results[0].Range)
}
