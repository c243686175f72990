package meshio

import (
	"path/filepath"
	"testing"

	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/stretchr/testify/require"
)

func TestReadWriteRoundTrip(t *testing.T) {
	tetinpoel := []meshmodel.NodeID{0, 1, 2, 3, 1, 2, 3, 4}
	coords := []meshmodel.Coord{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 1},
	}
	path := filepath.Join(t.TempDir(), "mesh.bin")
	require.NoError(t, WriteMesh(path, tetinpoel, coords))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.EqualValues(t, 5, r.Header.NumNodes)
	require.Equal(t, []uint64{2}, r.Header.ElemCounts)

	from, till := Slab(2, 2, 0)
	require.EqualValues(t, 0, from)
	require.EqualValues(t, 1, till)
	from, till = Slab(2, 2, 1)
	require.EqualValues(t, 1, from)
	require.EqualValues(t, 2, till)

	block, err := r.ReadElementBlock(0, 2)
	require.NoError(t, err)
	require.Equal(t, tetinpoel, block)

	got, err := r.ReadNodeCoords([]meshmodel.NodeID{4, 0})
	require.NoError(t, err)
	require.Equal(t, coords[4], got[4])
	require.Equal(t, coords[0], got[0])
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}
