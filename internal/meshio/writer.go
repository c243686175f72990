package meshio

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/notargets/tetrapart/internal/meshmodel"
)

// WriteMesh serializes a single-block tetrahedral mesh in the format Open
// reads. It exists for test fixtures and small synthetic meshes; the core
// itself never writes mesh files (spec.md S6: "persisted state: none by
// the core").
func WriteMesh(path string, tetinpoel []meshmodel.NodeID, coords []meshmodel.Coord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := make([]byte, nodeCountSize+blockCountSize+elemCountSize)
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(len(coords)))
	binary.LittleEndian.PutUint32(hdr[8:12], 1)
	binary.LittleEndian.PutUint64(hdr[12:20], uint64(len(tetinpoel))/4)
	if _, err := f.Write(hdr); err != nil {
		return err
	}

	elBuf := make([]byte, len(tetinpoel)*8)
	for i, id := range tetinpoel {
		binary.LittleEndian.PutUint64(elBuf[i*8:i*8+8], uint64(id))
	}
	if _, err := f.Write(elBuf); err != nil {
		return err
	}

	coordBuf := make([]byte, len(coords)*coordSize)
	for i, c := range coords {
		o := i * coordSize
		binary.LittleEndian.PutUint64(coordBuf[o:o+8], math.Float64bits(c[0]))
		binary.LittleEndian.PutUint64(coordBuf[o+8:o+16], math.Float64bits(c[1]))
		binary.LittleEndian.PutUint64(coordBuf[o+16:o+24], math.Float64bits(c[2]))
	}
	_, err = f.Write(coordBuf)
	return err
}
