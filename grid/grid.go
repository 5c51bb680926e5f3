// Package grid handles rectangular sampling grids. A grid over D input
// dimensions is described by a D×3 matrix whose row d holds
// (start, step, end); the induced axis has ⌊(end−start)/step⌋+1 points.
package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errShape = errors.New("grid: specification must be a D×3 matrix with D ≥ 1")

// Validate checks that the matrix describes a usable grid: at least one
// row, exactly three columns, positive steps, and non-inverted ranges.
func Validate(g mat.Matrix) error {
	if g == nil {
		return errShape
	}
	rows, cols := g.Dims()
	if rows < 1 || cols != 3 {
		return errShape
	}
	for d := 0; d < rows; d++ {
		start, step, end := g.At(d, 0), g.At(d, 1), g.At(d, 2)
		if step <= 0 {
			return fmt.Errorf("grid: dimension %d has non-positive step %g", d, step)
		}
		if end < start {
			return fmt.Errorf("grid: dimension %d has inverted range [%g, %g]", d, start, end)
		}
	}
	return nil
}

// Dims returns the number of grid dimensions.
func Dims(g mat.Matrix) int {
	rows, _ := g.Dims()
	return rows
}

// axisSize returns the number of points along dimension d.
func axisSize(g mat.Matrix, d int) int {
	start, step, end := g.At(d, 0), g.At(d, 1), g.At(d, 2)
	return int(math.Floor((end-start)/step)) + 1
}

// Elements returns the total number of points in the grid.
func Elements(g mat.Matrix) int {
	n := 1
	for d := 0; d < Dims(g); d++ {
		n *= axisSize(g, d)
	}
	return n
}

// Iterator walks a grid in lexicographic order, first dimension fastest.
type Iterator struct {
	g   mat.Matrix
	idx []int
	sz  []int
	x   *mat.VecDense
}

// NewIterator allocates an iterator positioned at the grid origin.
// The grid must already be validated.
func NewIterator(g mat.Matrix) *Iterator {
	d := Dims(g)
	it := &Iterator{
		g:   g,
		idx: make([]int, d),
		sz:  make([]int, d),
		x:   mat.NewVecDense(d, nil),
	}
	for i := 0; i < d; i++ {
		it.sz[i] = axisSize(g, i)
		it.x.SetVec(i, g.At(i, 0))
	}
	return it
}

// X returns the current grid point. The vector is reused between calls;
// callers that retain it must copy.
func (it *Iterator) X() *mat.VecDense { return it.x }

// Next advances to the following grid point. It returns false once the
// iterator has rolled over past the final point, at which time the
// current point is back at the origin.
func (it *Iterator) Next() bool {
	d := len(it.idx)
	for i := 0; i < d; i++ {
		start, step := it.g.At(i, 0), it.g.At(i, 1)
		it.idx[i]++
		it.x.SetVec(i, start+float64(it.idx[i])*step)
		if it.idx[i] < it.sz[i] {
			return true
		}
		it.x.SetVec(i, start)
		it.idx[i] = 0
		if i == d-1 {
			return false
		}
	}
	return false
}
