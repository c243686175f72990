package partition

import (
	"testing"

	"github.com/notargets/tetrapart/internal/config"
	"github.com/notargets/tetrapart/internal/meshmodel"
	"github.com/stretchr/testify/require"
)

func gridCentroids(n int) []Centroid {
	c := make([]Centroid, 0, n*n*n)
	id := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				c = append(c, Centroid{GElemID: id, Coord: meshmodel.Coord{float64(i), float64(j), float64(k)}})
				id++
			}
		}
	}
	return c
}

func TestRCBCoversAllElementsExactlyOnce(t *testing.T) {
	centroids := gridCentroids(4)
	che, err := RCB{}.Assign(centroids, nil, 8)
	require.NoError(t, err)
	require.Len(t, che, len(centroids))
	counts := make(map[meshmodel.ChareID]int)
	for _, c := range che {
		require.True(t, int(c) >= 0 && int(c) < 8)
		counts[c]++
	}
}

func TestRIBCoversAllElementsExactlyOnce(t *testing.T) {
	centroids := gridCentroids(4)
	che, err := RIB{}.Assign(centroids, nil, 8)
	require.NoError(t, err)
	require.Len(t, che, len(centroids))
}

func TestHSFCCoversAllElementsExactlyOnce(t *testing.T) {
	centroids := gridCentroids(4)
	che, err := HSFC{}.Assign(centroids, nil, 8)
	require.NoError(t, err)
	require.Len(t, che, len(centroids))
	seen := make([]bool, 8)
	for _, c := range che {
		seen[c] = true
	}
	for _, ok := range seen {
		require.True(t, ok)
	}
}

func TestOverDecompositionRefused(t *testing.T) {
	centroids := gridCentroids(2) // 8 elements
	_, err := RCB{}.Assign(centroids, nil, 64)
	require.Error(t, err)
	var overdecomp *config.OverDecomposition
	require.ErrorAs(t, err, &overdecomp)
}

func TestNchareEnforcesAtLeastOnePerPE(t *testing.T) {
	require.Equal(t, 4, Nchare(0, 2, 4))
	require.Equal(t, 10, Nchare(4, 2, 4))
}
