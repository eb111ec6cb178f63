package content

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// flatIndex mirrors deltas.FlatIndex's definition locally so this test
// doesn't need to import internal/deltas (which imports content).
func flatIndex(share, shape []uint32) uint64 {
	step := uint64(1)
	for _, d := range shape {
		step *= uint64(d)
	}
	idx := uint64(0)
	for i, s := range share {
		step /= uint64(shape[i])
		idx += uint64(s) * step
	}
	return idx
}

func TestCoordinatesBijection(t *testing.T) {
	shape := []uint32{2, 3, 4}
	size := uint64(1)
	for _, d := range shape {
		size *= uint64(d)
	}

	seen := make(map[uint64]bool)
	var count uint64
	for coord := range Coordinates(shape) {
		require.Len(t, coord, len(shape))
		idx := flatIndex(coord, shape)
		require.Less(t, idx, size)
		require.False(t, seen[idx], "flat index %d produced twice", idx)
		seen[idx] = true
		count++
	}
	require.Equal(t, size, count)
	require.Len(t, seen, int(size))
}

func TestCoordinatesRowMajorOrder(t *testing.T) {
	var got [][]uint32
	for coord := range Coordinates([]uint32{2, 2}) {
		got = append(got, append([]uint32(nil), coord...))
	}
	require.Equal(t, [][]uint32{{0, 0}, {0, 1}, {1, 0}, {1, 1}}, got)
}

func TestCoordinatesEmptyDimension(t *testing.T) {
	var count int
	for range Coordinates([]uint32{2, 0, 3}) {
		count++
	}
	require.Equal(t, 0, count)
}
