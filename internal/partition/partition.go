// Package partition implements C2, the geometric/graph partitioner
// adapter: given each local element's centroid (or connectivity) plus a
// chare count, assign each element to a chare in [0, nchare). The
// partitioner is consulted exactly once per PE; its result feeds directly
// into the distributor (C3) and is then released (spec.md S5, "the
// Partitioner releases centroids after C2").
package partition

import (
	"math"
	"sort"

	metis "github.com/notargets/go-metis"
	"github.com/notargets/tetrapart/internal/config"
	"github.com/notargets/tetrapart/internal/meshmodel"
	"gonum.org/v1/gonum/mat"
)

// Centroid is an element's centroid coordinate plus its global element id
// (gelemid in spec.md S4.1 terms), used by the geometric adapters.
type Centroid struct {
	GElemID int
	Coord   meshmodel.Coord
}

// Adapter assigns each local element to a chare id. |Assign(...)| must
// equal the number of input elements; the union of every PE's assignment
// covers all elements exactly once (spec.md S4.2).
type Adapter interface {
	Assign(centroids []Centroid, tetinpoel []meshmodel.NodeID, nchare int) ([]meshmodel.ChareID, error)
}

// New constructs the Adapter selected by alg.
func New(alg config.Algorithm) Adapter {
	switch alg {
	case config.RCB:
		return RCB{}
	case config.RIB:
		return RIB{}
	case config.HSFC:
		return HSFC{}
	case config.Graph:
		return Graph{}
	default:
		return RCB{}
	}
}

// Nchare derives the virtualized chare count from the desired
// virtualization factor u in [0,1] and the total element count, enforcing
// at least one chare per PE (spec.md S6): nchare = max(npes,
// round((1+u)*nel)).
func Nchare(u float64, nel, npes int) int {
	n := int(math.Round((1 + u) * float64(nel)))
	if n < npes {
		n = npes
	}
	if n < 1 {
		n = 1
	}
	return n
}

// checkOverDecomposition fails fast if any would-be chare receives zero
// elements, the OverDecomposition edge case of spec.md S4.2/S7.
func checkOverDecomposition(che []meshmodel.ChareID, nchare int, u float64) error {
	seen := make([]bool, nchare)
	for _, c := range che {
		seen[int(c)] = true
	}
	empty := 0
	for _, ok := range seen {
		if !ok {
			empty++
		}
	}
	if empty > 0 {
		return &config.OverDecomposition{Virtualization: u, NChare: nchare, NElements: len(che)}
	}
	return nil
}

// splitEven assigns ranked[i] (a permutation of element indices in
// traversal order) to nchare contiguous buckets and writes the chare id of
// each original element index into che.
func splitEven(ranked []int, nchare int, che []meshmodel.ChareID) {
	nel := len(ranked)
	chunk := nel / nchare
	if chunk == 0 {
		chunk = 1
	}
	for rank, elem := range ranked {
		c := rank / chunk
		if c >= nchare {
			c = nchare - 1
		}
		che[elem] = meshmodel.ChareID(c)
	}
}

// RCB is recursive coordinate bisection: at each level, split the current
// bucket of elements in half along the coordinate axis of greatest extent.
// Implemented here as its order-producing equivalent: sort candidates by
// (axis-of-greatest-extent, coordinate) once per recursion level is
// algebraically the same partition RCB's recursive halving produces for a
// roughly uniform point cloud, and is what the examples' go-metis-free
// geometric adapters approximate (no RCB/RIB implementation ships in the
// example corpus's Go code; this follows the coordinate-bisection
// definition in spec.md S4.2 directly).
type RCB struct{}

func (RCB) Assign(centroids []Centroid, _ []meshmodel.NodeID, nchare int) ([]meshmodel.ChareID, error) {
	che := make([]meshmodel.ChareID, len(centroids))
	order := make([]int, len(centroids))
	for i := range order {
		order[i] = i
	}
	rcbRecurse(centroids, order, 0, nchare, che)
	if err := checkOverDecomposition(che, nchare, 0); err != nil {
		return nil, err
	}
	return che, nil
}

// rcbRecurse splits idx (indices into centroids) into nparts groups by
// repeated median bisection along the axis of greatest extent, assigning
// a chare id in [base, base+nparts) to each element in che.
func rcbRecurse(centroids []Centroid, idx []int, base, nparts int, che []meshmodel.ChareID) {
	if nparts <= 1 || len(idx) <= 1 {
		for _, i := range idx {
			che[i] = meshmodel.ChareID(base)
		}
		return
	}
	axis := widestAxis(centroids, idx)
	sort.Slice(idx, func(a, b int) bool {
		return centroids[idx[a]].Coord[axis] < centroids[idx[b]].Coord[axis]
	})
	leftParts := nparts / 2
	rightParts := nparts - leftParts
	split := len(idx) * leftParts / nparts
	if split == 0 {
		split = 1
	}
	if split == len(idx) {
		split = len(idx) - 1
	}
	rcbRecurse(centroids, idx[:split], base, leftParts, che)
	rcbRecurse(centroids, idx[split:], base+leftParts, rightParts, che)
}

func widestAxis(centroids []Centroid, idx []int) int {
	var lo, hi [3]float64
	for d := 0; d < 3; d++ {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}
	for _, i := range idx {
		c := centroids[i].Coord
		for d := 0; d < 3; d++ {
			if c[d] < lo[d] {
				lo[d] = c[d]
			}
			if c[d] > hi[d] {
				hi[d] = c[d]
			}
		}
	}
	axis, best := 0, -1.0
	for d := 0; d < 3; d++ {
		if ext := hi[d] - lo[d]; ext > best {
			best, axis = ext, d
		}
	}
	return axis
}

// RIB is recursive inertial bisection: at each level, compute the
// principal axis of the current bucket's inertia tensor (via
// gonum.org/v1/gonum/mat's symmetric eigendecomposition) and bisect along
// it, generalizing RCB's axis-aligned cut to an arbitrary direction.
type RIB struct{}

func (RIB) Assign(centroids []Centroid, _ []meshmodel.NodeID, nchare int) ([]meshmodel.ChareID, error) {
	che := make([]meshmodel.ChareID, len(centroids))
	idx := make([]int, len(centroids))
	for i := range idx {
		idx[i] = i
	}
	ribRecurse(centroids, idx, 0, nchare, che)
	if err := checkOverDecomposition(che, nchare, 0); err != nil {
		return nil, err
	}
	return che, nil
}

func ribRecurse(centroids []Centroid, idx []int, base, nparts int, che []meshmodel.ChareID) {
	if nparts <= 1 || len(idx) <= 1 {
		for _, i := range idx {
			che[i] = meshmodel.ChareID(base)
		}
		return
	}
	axis := principalAxis(centroids, idx)
	proj := make(map[int]float64, len(idx))
	for _, i := range idx {
		c := centroids[i].Coord
		proj[i] = c[0]*axis[0] + c[1]*axis[1] + c[2]*axis[2]
	}
	sort.Slice(idx, func(a, b int) bool { return proj[idx[a]] < proj[idx[b]] })
	leftParts := nparts / 2
	rightParts := nparts - leftParts
	split := len(idx) * leftParts / nparts
	if split == 0 {
		split = 1
	}
	if split == len(idx) {
		split = len(idx) - 1
	}
	ribRecurse(centroids, idx[:split], base, leftParts, che)
	ribRecurse(centroids, idx[split:], base+leftParts, rightParts, che)
}

// principalAxis returns the eigenvector of the covariance matrix of the
// selected centroids with the largest eigenvalue, via gonum's symmetric
// eigendecomposition.
func principalAxis(centroids []Centroid, idx []int) [3]float64 {
	var mean [3]float64
	for _, i := range idx {
		c := centroids[i].Coord
		for d := 0; d < 3; d++ {
			mean[d] += c[d]
		}
	}
	n := float64(len(idx))
	for d := 0; d < 3; d++ {
		mean[d] /= n
	}
	cov := mat.NewSymDense(3, nil)
	for _, i := range idx {
		c := centroids[i].Coord
		d := [3]float64{c[0] - mean[0], c[1] - mean[1], c[2] - mean[2]}
		for a := 0; a < 3; a++ {
			for b := a; b < 3; b++ {
				cov.SetSym(a, b, cov.At(a, b)+d[a]*d[b])
			}
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return [3]float64{1, 0, 0}
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	best, bestVal := 0, math.Inf(-1)
	for i, v := range values {
		if v > bestVal {
			bestVal, best = v, i
		}
	}
	return [3]float64{vectors.At(0, best), vectors.At(1, best), vectors.At(2, best)}
}

// HSFC sorts element centroids by a Hilbert space-filling-curve key and
// distributes the sorted order evenly across nchare buckets, the one-pass
// analogue of RCB/RIB's recursive halving.
type HSFC struct{}

func (HSFC) Assign(centroids []Centroid, _ []meshmodel.NodeID, nchare int) ([]meshmodel.ChareID, error) {
	lo, hi := boundingBox(centroids)
	bounds := [2][3]float64{lo, hi}
	order := make([]int, len(centroids))
	keys := make([]uint64, len(centroids))
	for i, c := range centroids {
		keys[i] = hilbertKey(c.Coord, bounds, 16)
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
	che := make([]meshmodel.ChareID, len(centroids))
	splitEven(order, nchare, che)
	if err := checkOverDecomposition(che, nchare, 0); err != nil {
		return nil, err
	}
	return che, nil
}

func boundingBox(centroids []Centroid) (lo, hi [3]float64) {
	for d := 0; d < 3; d++ {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}
	for _, c := range centroids {
		for d := 0; d < 3; d++ {
			if c.Coord[d] < lo[d] {
				lo[d] = c.Coord[d]
			}
			if c.Coord[d] > hi[d] {
				hi[d] = c.Coord[d]
			}
		}
	}
	return
}

// hilbertKey quantizes coord into a bits-per-axis grid within [lo,hi] and
// interleaves a 3D Hilbert curve index (via Morton-then-Hilbert-rotation,
// the standard bit-interleaving construction) as the sort key.
func hilbertKey(c meshmodel.Coord, bb [2][3]float64, bitsPerAxis uint) uint64 {
	var x, y, z uint32
	quantize := func(v, lo, hi float64) uint32 {
		if hi <= lo {
			return 0
		}
		f := (v - lo) / (hi - lo)
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		return uint32(f * float64((uint64(1)<<bitsPerAxis)-1))
	}
	x = quantize(c[0], bb[0][0], bb[1][0])
	y = quantize(c[1], bb[0][1], bb[1][1])
	z = quantize(c[2], bb[0][2], bb[1][2])
	return hilbertD2XYZ(bitsPerAxis, x, y, z)
}

// hilbertD2XYZ computes the Hilbert-curve distance for a 3D point on a
// 2^order grid per axis, using the standard axis-rotation transform.
func hilbertD2XYZ(order uint, x, y, z uint32) uint64 {
	var rx, ry, rz uint32
	var d uint64
	for s := uint32(1) << (order - 1); s > 0; s >>= 1 {
		if x&s > 0 {
			rx = 1
		} else {
			rx = 0
		}
		if y&s > 0 {
			ry = 1
		} else {
			ry = 0
		}
		if z&s > 0 {
			rz = 1
		} else {
			rz = 0
		}
		d += uint64(s) * uint64(s) * uint64(s) * uint64((3*rx)^ry^(rz&1))
		x, y, z = rotate3(s, x, y, z, rx, ry, rz)
	}
	return d
}

// rotate3 performs the per-level axis rotation/reflection the Hilbert
// index recursion needs, generalizing the classic 2D xy2d rotation to 3
// axes via a Gray-code style reflect-and-swap.
func rotate3(s uint32, x, y, z, rx, ry, rz uint32) (uint32, uint32, uint32) {
	if rz == 1 {
		x = s - 1 - x
		y = s - 1 - y
	}
	if rx == 1 {
		x, z = z, x
	}
	if ry == 1 {
		y, z = z, y
	}
	return x, y, z
}

// Graph delegates to github.com/notargets/go-metis, exactly as
// DG3D/mesh/mesh_partitioner.go does: build a CSR face-adjacency graph
// over the local chunk's tets and call metis.PartGraphKwayWeighted.
type Graph struct{}

func (Graph) Assign(_ []Centroid, tetinpoel []meshmodel.NodeID, nchare int) ([]meshmodel.ChareID, error) {
	nel := len(tetinpoel) / 4
	if nel == 0 {
		return nil, nil
	}
	xadj, adjncy := faceAdjacencyCSR(tetinpoel, nel)

	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, &config.ConfigError{Reason: "metis.SetDefaultOptions: " + err.Error()}
	}
	opts[metis.OptionObjType] = metis.ObjTypeVol

	if nel == 1 || nchare == 1 {
		che := make([]meshmodel.ChareID, nel)
		if err := checkOverDecomposition(che, nchare, 0); err != nil {
			return nil, err
		}
		return che, nil
	}

	part, _, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, nil, nil, int32(nchare), nil, []float32{1.05}, opts)
	if err != nil {
		return nil, &config.ConfigError{Reason: "metis partitioning failed: " + err.Error()}
	}
	che := make([]meshmodel.ChareID, nel)
	for i, p := range part {
		che[i] = meshmodel.ChareID(p)
	}
	if err := checkOverDecomposition(che, nchare, 0); err != nil {
		return nil, err
	}
	return che, nil
}

// faceAdjacencyCSR builds the xadj/adjncy METIS graph for the tet mesh's
// element-to-element face adjacency: two tets sharing 3 of their 4 nodes
// are face neighbors.
func faceAdjacencyCSR(tetinpoel []meshmodel.NodeID, nel int) (xadj, adjncy []int32) {
	faceOf := func(e, skip int) [3]meshmodel.NodeID {
		var f [3]meshmodel.NodeID
		k := 0
		for n := 0; n < 4; n++ {
			if n == skip {
				continue
			}
			f[k] = tetinpoel[e*4+n]
			k++
		}
		sort.Slice(f[:], func(a, b int) bool { return f[a] < f[b] })
		return f
	}
	type faceKey [3]meshmodel.NodeID
	shared := make(map[faceKey][]int)
	for e := 0; e < nel; e++ {
		for n := 0; n < 4; n++ {
			f := faceOf(e, n)
			shared[f] = append(shared[f], e)
		}
	}
	neighbors := make([][]int32, nel)
	for _, elems := range shared {
		if len(elems) == 2 {
			a, b := elems[0], elems[1]
			neighbors[a] = append(neighbors[a], int32(b))
			neighbors[b] = append(neighbors[b], int32(a))
		}
	}
	xadj = make([]int32, nel+1)
	for e := 0; e < nel; e++ {
		xadj[e+1] = xadj[e] + int32(len(neighbors[e]))
		adjncy = append(adjncy, neighbors[e]...)
	}
	return
}
