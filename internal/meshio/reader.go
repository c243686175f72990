// Package meshio implements C1, the mesh slab reader: random access by
// element block and by node index range into a binary tetrahedral-mesh
// file. None of gocfd's text-scanning gambit/gmsh/SU2 readers (see
// DG3D/mesh/readers) support that access pattern, so this package defines
// its own fixed-layout binary wire format instead of reusing them, per
// spec.md S6.
//
// Layout:
//
//	header:  NumNodes      uint64 LE
//	         NumElemBlocks uint32 LE
//	         per block:    ElemCount uint64 LE
//	blocks:  4*ElemCount tet-node file-ids, uint64 LE, row-major
//	coords:  NumNodes * 3 float64 LE (x,y,z per node, in file-id order)
package meshio

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/notargets/tetrapart/internal/config"
	"github.com/notargets/tetrapart/internal/meshmodel"
)

const (
	nodeCountSize  = 8
	blockCountSize = 4
	elemCountSize  = 8
	coordSize      = 24 // 3 float64
)

// Header describes the file's node and per-block element counts.
type Header struct {
	NumNodes      uint64
	ElemCounts    []uint64 // per element block
	elementsStart int64    // byte offset of the first block's connectivity
	coordsStart   int64    // byte offset of the coordinate table
}

// TotalElements sums the per-block element counts.
func (h Header) TotalElements() uint64 {
	var n uint64
	for _, c := range h.ElemCounts {
		n += c
	}
	return n
}

// Reader wraps a random-access file handle and exposes the slab-read
// contract C1 needs: ReadElementBlock for a PE's contiguous chunk of
// connectivity, ReadNodeCoords for an explicit index set of nodes.
type Reader struct {
	f      *os.File
	path   string
	Header Header
}

// Open parses the header and returns a Reader ready for ReadElementBlock
// and ReadNodeCoords calls. It does not read connectivity or coordinates
// eagerly.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &config.InputError{Path: path, Reason: err.Error()}
	}
	r := &Reader{f: f, path: path}
	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) Close() error { return r.f.Close() }

func (r *Reader) readHeader() error {
	buf := make([]byte, nodeCountSize+blockCountSize)
	if _, err := io.ReadFull(r.f, buf); err != nil {
		return &config.InputError{Path: r.path, Reason: "truncated header: " + err.Error()}
	}
	numNodes := binary.LittleEndian.Uint64(buf[0:8])
	numBlocks := binary.LittleEndian.Uint32(buf[8:12])
	if numBlocks == 0 {
		return &config.InputError{Path: r.path, Reason: "header declares zero element blocks"}
	}
	blockBuf := make([]byte, elemCountSize*int(numBlocks))
	if _, err := io.ReadFull(r.f, blockBuf); err != nil {
		return &config.InputError{Path: r.path, Reason: "truncated block-count table: " + err.Error()}
	}
	counts := make([]uint64, numBlocks)
	for i := range counts {
		counts[i] = binary.LittleEndian.Uint64(blockBuf[i*8 : i*8+8])
	}
	elementsStart := int64(nodeCountSize + blockCountSize + int(numBlocks)*elemCountSize)
	var totalElems uint64
	for _, c := range counts {
		totalElems += c
	}
	coordsStart := elementsStart + int64(totalElems)*4*8
	r.Header = Header{
		NumNodes:      numNodes,
		ElemCounts:    counts,
		elementsStart: elementsStart,
		coordsStart:   coordsStart,
	}
	return nil
}

// ReadElementBlock reads the [elemFrom,elemTill) contiguous slab of
// element connectivity, numbering elements consecutively across the
// blocks in file order (for a single-block mesh, the elements of block 0).
// It returns
// tetinpoel, a 4*nel flattened array of file-ids, matching
// Partitioner::readGraph's m_tetinpoel.
func (r *Reader) ReadElementBlock(elemFrom, elemTill uint64) ([]meshmodel.NodeID, error) {
	if elemTill < elemFrom {
		return nil, &config.InputError{Path: r.path, Reason: "invalid element range"}
	}
	nel := elemTill - elemFrom
	if nel == 0 {
		return nil, nil
	}
	off := r.Header.elementsStart + int64(elemFrom)*4*8
	buf := make([]byte, nel*4*8)
	if _, err := r.f.ReadAt(buf, off); err != nil {
		return nil, &config.InputError{Path: r.path, Reason: "short read of element block: " + err.Error()}
	}
	out := make([]meshmodel.NodeID, nel*4)
	for i := range out {
		out[i] = meshmodel.NodeID(binary.LittleEndian.Uint64(buf[i*8 : i*8+8]))
	}
	return out, nil
}

// Slab computes the contiguous per-PE chunk [from,till) of total elements
// nel across npes PEs: chunk = nel/npes per PE, last PE absorbs the
// remainder, per spec.md S4.1.
func Slab(nel uint64, npes, mype int) (from, till uint64) {
	chunk := nel / uint64(npes)
	from = uint64(mype) * chunk
	till = from + chunk
	if mype == npes-1 {
		till = nel
	}
	return
}

// ReadNodeCoords reads coordinates for an explicit set of file-ids,
// satisfying "coordinates for a node subset are read with an explicit
// index set" (spec.md S6) without scanning the whole coordinate table.
func (r *Reader) ReadNodeCoords(ids []meshmodel.NodeID) (map[meshmodel.NodeID]meshmodel.Coord, error) {
	out := make(map[meshmodel.NodeID]meshmodel.Coord, len(ids))
	buf := make([]byte, coordSize)
	for _, id := range ids {
		if uint64(id) >= r.Header.NumNodes {
			return nil, &config.InputError{Path: r.path, Reason: "node id out of range"}
		}
		off := r.Header.coordsStart + int64(id)*coordSize
		if _, err := r.f.ReadAt(buf, off); err != nil {
			return nil, &config.InputError{Path: r.path, Reason: "short read of node coordinate: " + err.Error()}
		}
		out[id] = meshmodel.Coord{
			math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8])),
			math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16])),
			math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24])),
		}
	}
	return out, nil
}
