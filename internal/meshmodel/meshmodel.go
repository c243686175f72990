// Package meshmodel defines the entity types shared by every component of
// the partitioner/solver core: mesh nodes, edges, tetrahedra, chares, and
// the bookkeeping structures (RowRange, CommMap) that the distributor,
// refiner, and renumberer pass between processing elements.
package meshmodel

import "sort"

// NodeID is a file-id (as stored in the mesh file) or, after C5 runs, a
// linear-id (globally unique, contiguous per PE). Which space a NodeID
// lives in is tracked by the caller, never by the type itself.
type NodeID uint64

// Coord is a node's position in R^3.
type Coord [3]float64

func Midpoint(a, b Coord) Coord {
	return Coord{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2, (a[2] + b[2]) / 2}
}

// Edge is an unordered pair of node IDs, canonicalized so edge(a,b) ==
// edge(b,a). Construct only through NewEdge.
type Edge struct {
	A, B NodeID
}

// NewEdge canonicalizes (a,b) so A < B.
func NewEdge(a, b NodeID) Edge {
	if a <= b {
		return Edge{a, b}
	}
	return Edge{b, a}
}

// Tet is a tetrahedron's four node IDs in a fixed order (A,B,C,D).
type Tet [4]NodeID

// Edges returns the tet's six canonical edges in the order used by the
// refinement template in refine's childTemplate: AB, AC, AD, BC, BD, CD.
func (t Tet) Edges() [6]Edge {
	return [6]Edge{
		NewEdge(t[0], t[1]), NewEdge(t[0], t[2]), NewEdge(t[0], t[3]),
		NewEdge(t[1], t[2]), NewEdge(t[1], t[3]), NewEdge(t[2], t[3]),
	}
}

// ChareID is a work-unit's dense integer id in [0, nchare).
type ChareID int

// PEOf computes the blockwise chare->PE distribution pe(c) = min(c/chunk,
// npes-1), chunk = nchare/npes, described in spec.md S3.
func PEOf(c ChareID, nchare, npes int) int {
	chunk := nchare / npes
	if chunk == 0 {
		chunk = 1
	}
	p := int(c) / chunk
	if p >= npes {
		p = npes - 1
	}
	return p
}

// ChareDistribution returns (chunk, myCount): the number of chares per PE
// except the last, and how many the given PE owns (the last PE absorbs the
// remainder), mirroring Partitioner::chareDistribution.
func ChareDistribution(nchare, npes, myPE int) (chunk, myCount int) {
	chunk = nchare / npes
	myCount = chunk
	if myPE == npes-1 {
		myCount += nchare % npes
	}
	return
}

// ChareMesh is everything a single chare owns: its connectivity (in
// file-id space until C5 runs, linear-id space after), its old->new node
// map, its edge->new-node map for refined edges, and its surrounding-chare
// boundary sets.
type ChareMesh struct {
	ID ChareID
	// Tets is the chare's connectivity, four NodeIDs per tet, flattened.
	Tets []NodeID
	// OldToNew maps a node's pre-renumbering id to its linear-id. Populated
	// by C5 once reordering completes.
	OldToNew map[NodeID]NodeID
	// EdgeToNew maps a refined edge to the linear-id of the node C4
	// inserted on it. Populated by C4 (provisional) then overwritten by C5
	// (final).
	EdgeToNew map[Edge]NodeID
	// Surrounding maps neighbor chare id -> boundary node ids (file-id
	// space) shared with that neighbor.
	Surrounding map[ChareID]map[NodeID]struct{}
}

func NewChareMesh(id ChareID) *ChareMesh {
	return &ChareMesh{
		ID:          id,
		OldToNew:    map[NodeID]NodeID{},
		EdgeToNew:   map[Edge]NodeID{},
		Surrounding: map[ChareID]map[NodeID]struct{}{},
	}
}

// NodeSet returns the unique file-ids appearing in the chare's connectivity.
func (c *ChareMesh) NodeSet() map[NodeID]struct{} {
	s := make(map[NodeID]struct{}, len(c.Tets))
	for _, n := range c.Tets {
		s[n] = struct{}{}
	}
	return s
}

// RowRange is a PE's half-open [Lower,Upper) slice of linear-id*ncomp row
// space (spec.md S3). Ranges are disjoint and cover [0, nnode*ncomp).
type RowRange struct {
	Lower, Upper uint64
}

func (r RowRange) Contains(row uint64) bool { return row >= r.Lower && row < r.Upper }
func (r RowRange) Len() uint64               { return r.Upper - r.Lower }

// CommMap is, per PE, a mapping from a foreign PE to the file-ids the local
// PE will receive new linear-ids for during C5's request/reply protocol.
type CommMap map[int]map[NodeID]struct{}

// EdgeCommMap is CommMap's edge-space counterpart.
type EdgeCommMap map[int]map[Edge]struct{}

// SortedNodeIDs returns ids sorted ascending, used wherever deterministic
// iteration order matters (logging, tests).
func SortedNodeIDs(s map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
