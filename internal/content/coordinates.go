package content

import "iter"

// Coordinates enumerates every share coordinate of a market shape in
// flat-index order: for shape [2,3] it yields [0,0],[0,1],[0,2],[1,0],
// [1,1],[1,2]. A shape that is empty or has a zero dimension yields
// nothing. No other package calls it; its own tests check it against
// the row-major flat index.
func Coordinates(shape []uint32) iter.Seq[[]uint32] {
	return func(yield func([]uint32) bool) {
		if len(shape) == 0 {
			return
		}
		for _, dim := range shape {
			if dim == 0 {
				return
			}
		}
		coord := make([]uint32, len(shape))
		for {
			out := make([]uint32, len(coord))
			copy(out, coord)
			if !yield(out) {
				return
			}
			i := len(coord) - 1
			for i >= 0 {
				coord[i]++
				if coord[i] < shape[i] {
					break
				}
				coord[i] = 0
				i--
			}
			if i < 0 {
				return
			}
		}
	}
}
