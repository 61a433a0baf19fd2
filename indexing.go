package zarr

import (
	"strconv"
	"strings"
)

// GridShape calculates the number of chunks in each dimension:
// ceil(shape[i] / chunks[i])
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey is the store key suffix for a chunk at the given grid coordinates.
// 0-d arrays have a single chunk keyed "0"
func ChunkKey(coords []int, separator string) string {
	if len(coords) == 0 {
		return "0"
	}

	var sb strings.Builder
	for i, c := range coords {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}

// numElements is the product of a shape. The empty (0-d) shape holds a
// single element
func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// eachChunk calls fn with the coordinates of every chunk in a grid, in C
// order. fn must not retain coords
func eachChunk(grid []int, fn func(coords []int) error) error {
	if numElements(grid) == 0 {
		return nil
	}
	coords := make([]int, len(grid))
	for {
		if err := fn(coords); err != nil {
			return err
		}
		d := len(grid) - 1
		for ; d >= 0; d-- {
			coords[d]++
			if coords[d] < grid[d] {
				break
			}
			coords[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}

// run is a contiguous stretch of elements shared by a chunk and the array,
// measured in elements
type run struct {
	ChunkOffset int
	ArrayOffset int
	Len         int
}

// A mapping of items from chunk to output array. Can be used to extract items
// from the chunk array for loading into an output array. Can also be used to
// extract items from a value array for setting/updating in a chunk array.
// Both sides are flat C-order buffers.
type chunkProjection struct {
	ChunkCoords []int
	Runs        []run
}

func projectChunk(shape, chunks, coords []int) chunkProjection {
	p := chunkProjection{ChunkCoords: append([]int(nil), coords...)}
	rank := len(shape)
	if rank == 0 {
		p.Runs = []run{{Len: 1}}
		return p
	}

	start := make([]int, rank)
	extent := make([]int, rank)
	for i := range shape {
		start[i] = coords[i] * chunks[i]
		extent[i] = min(chunks[i], shape[i]-start[i])
		if extent[i] <= 0 {
			return p
		}
	}

	last := rank - 1
	idx := make([]int, rank)
	for {
		chunkOff, arrayOff := 0, 0
		for i := 0; i < rank; i++ {
			chunkOff = chunkOff*chunks[i] + idx[i]
			arrayOff = arrayOff*shape[i] + start[i] + idx[i]
		}
		p.Runs = append(p.Runs, run{ChunkOffset: chunkOff, ArrayOffset: arrayOff, Len: extent[last]})

		d := last - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < extent[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return p
		}
	}
}
