// Package refine implements C4, the one-shot uniform 1->8 tetrahedral
// refiner: for every owned tetrahedron, insert six edge-nodes and replace
// it with eight children using the fixed template of spec.md S4.4. It is
// a direct generalization of Partitioner::refine (Inciter/Partitioner.h)
// from "one PE's flattened m_tetinpoel" to an explicit set of owned
// per-chare meshes plus a shared coordinate table.
//
// Cross-PE edge-node identity is *not* resolved here — per spec.md S4.4,
// "the renumberer treats each edge ... as a first-class entity with its
// own ownership rule." Refine only assigns a provisional id (unique
// within this PE) to every edge it creates; internal/reorder reconciles
// provisional ids across PEs via the same request/reply protocol used for
// nodes.
package refine

import (
	"sort"

	"github.com/notargets/tetrapart/internal/meshmodel"
)

// childTemplate lists, for a tet (A,B,C,D) with edge-nodes AB,AC,AD,BC,BD,
// CD, the 8 children produced by 1->8 refinement, copied verbatim from
// spec.md S4.4. Each entry indexes into the 10-node array
// [A,B,C,D,AB,AC,AD,BC,BD,CD].
var childTemplate = [8][4]int{
	{0, 4, 5, 6},  // A, AB, AC, AD
	{1, 7, 4, 8},  // B, BC, AB, BD
	{2, 5, 7, 9},  // C, AC, BC, CD
	{3, 6, 9, 8},  // D, AD, CD, BD
	{7, 9, 5, 8},  // BC, CD, AC, BD
	{4, 8, 5, 6},  // AB, BD, AC, AD
	{4, 7, 5, 8},  // AB, BC, AC, BD
	{5, 8, 9, 6},  // AC, BD, CD, AD
}

// Refiner performs uniform refinement over a set of chares co-located on
// one PE, sharing a single provisional edge-node id counter so within-PE
// ids never collide. Only the edge's canonical node-id pair crosses PEs
// (spec.md S4.4), but Refine writes every provisional id's midpoint into
// coords, so Refiners sharing one coords table overwrite each other's
// entries wherever their id ranges overlap.
type Refiner struct {
	nextID meshmodel.NodeID
}

// NewRefiner starts the provisional id counter at firstProvisionalID
// (spec.md S4.4: "drawn from a locally-advancing counter starting at the
// total original node count").
func NewRefiner(firstProvisionalID meshmodel.NodeID) *Refiner {
	return &Refiner{nextID: firstProvisionalID}
}

// Refine replaces every tet in every chare of chares with its eight
// children, inserting an edge-node (with midpoint coordinate, recorded
// into coords) for every unique edge appearing in the owned connectivity.
// It returns the map from canonical edge to the provisional node-id
// assigned to it, which the caller threads into the renumberer (C5) as
// the chare's per-edge boundary bookkeeping and as the set of edges whose
// identity must be resolved against other PEs.
func (r *Refiner) Refine(chares map[meshmodel.ChareID]*meshmodel.ChareMesh, coords map[meshmodel.NodeID]meshmodel.Coord) map[meshmodel.Edge]meshmodel.NodeID {
	star := map[meshmodel.NodeID]map[meshmodel.NodeID]struct{}{}
	for _, ch := range chares {
		for e := 0; e < len(ch.Tets)/4; e++ {
			t := meshmodel.Tet{ch.Tets[e*4], ch.Tets[e*4+1], ch.Tets[e*4+2], ch.Tets[e*4+3]}
			for _, edge := range t.Edges() {
				if star[edge.A] == nil {
					star[edge.A] = map[meshmodel.NodeID]struct{}{}
				}
				star[edge.A][edge.B] = struct{}{}
			}
		}
	}

	edgeNodes := map[meshmodel.Edge]meshmodel.NodeID{}
	// Deterministic iteration so the provisional ids assigned here (and
	// thus any debug output) don't depend on Go's randomized map order.
	var lowNodes []meshmodel.NodeID
	for p := range star {
		lowNodes = append(lowNodes, p)
	}
	sort.Slice(lowNodes, func(i, j int) bool { return lowNodes[i] < lowNodes[j] })
	for _, p := range lowNodes {
		var highs []meshmodel.NodeID
		for q := range star[p] {
			highs = append(highs, q)
		}
		sort.Slice(highs, func(i, j int) bool { return highs[i] < highs[j] })
		for _, q := range highs {
			edge := meshmodel.NewEdge(p, q)
			id := r.nextID
			r.nextID++
			edgeNodes[edge] = id
			coords[id] = meshmodel.Midpoint(coords[edge.A], coords[edge.B])
		}
	}

	for _, ch := range chares {
		refineChare(ch, edgeNodes)
	}
	return edgeNodes
}

// refineChare rewrites one chare's connectivity and boundary maps in
// place using the already-assigned edgeNodes.
func refineChare(ch *meshmodel.ChareMesh, edgeNodes map[meshmodel.Edge]meshmodel.NodeID) {
	oldTets := ch.Tets
	newTets := make([]meshmodel.NodeID, 0, len(oldTets)*8)

	for e := 0; e < len(oldTets)/4; e++ {
		A, B, C, D := oldTets[e*4], oldTets[e*4+1], oldTets[e*4+2], oldTets[e*4+3]
		AB := edgeNodes[meshmodel.NewEdge(A, B)]
		AC := edgeNodes[meshmodel.NewEdge(A, C)]
		AD := edgeNodes[meshmodel.NewEdge(A, D)]
		BC := edgeNodes[meshmodel.NewEdge(B, C)]
		BD := edgeNodes[meshmodel.NewEdge(B, D)]
		CD := edgeNodes[meshmodel.NewEdge(C, D)]
		nodes := [10]meshmodel.NodeID{A, B, C, D, AB, AC, AD, BC, BD, CD}

		for _, child := range childTemplate {
			for _, idx := range child {
				newTets = append(newTets, nodes[idx])
			}
		}

		ch.EdgeToNew[meshmodel.NewEdge(A, B)] = AB
		ch.EdgeToNew[meshmodel.NewEdge(A, C)] = AC
		ch.EdgeToNew[meshmodel.NewEdge(A, D)] = AD
		ch.EdgeToNew[meshmodel.NewEdge(B, C)] = BC
		ch.EdgeToNew[meshmodel.NewEdge(B, D)] = BD
		ch.EdgeToNew[meshmodel.NewEdge(C, D)] = CD

		// An edge's new node joins a neighbor chare's boundary set exactly
		// when both of its endpoints are already shared with that
		// neighbor (spec.md S4.4 step 4).
		for _, nbr := range ch.Surrounding {
			_, a := nbr[A]
			_, b := nbr[B]
			_, c := nbr[C]
			_, d := nbr[D]
			addIfBoth(nbr, a, b, AB)
			addIfBoth(nbr, a, c, AC)
			addIfBoth(nbr, a, d, AD)
			addIfBoth(nbr, b, c, BC)
			addIfBoth(nbr, b, d, BD)
			addIfBoth(nbr, c, d, CD)
		}
	}

	ch.Tets = newTets
}

func addIfBoth(set map[meshmodel.NodeID]struct{}, a, b bool, n meshmodel.NodeID) {
	if a && b {
		set[n] = struct{}{}
	}
}
