// Package data holds observation records and datasets. A dataset keeps
// its records sorted by (output index, location) so that membership
// queries reduce to binary search.
package data

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/grid"
)

// Datum is a single observation: an output index p, an input location x,
// and the observed value y.
type Datum struct {
	P int
	X *mat.VecDense
	Y float64
}

// Clone returns a deep copy of the datum.
func (d Datum) Clone() Datum {
	return Datum{P: d.P, X: mat.VecDenseCopyOf(d.X), Y: d.Y}
}

// Compare orders two datums by output index first, then by their input
// locations in lexicographic order. It returns -1, 0 or +1.
func Compare(a, b *Datum) int {
	if a.P < b.P {
		return -1
	}
	if a.P > b.P {
		return 1
	}
	n := a.X.Len()
	for d := 0; d < n; d++ {
		x1, x2 := a.X.AtVec(d), b.X.AtVec(d)
		if x1 < x2 {
			return -1
		}
		if x1 > x2 {
			return 1
		}
	}
	return 0
}

// Dataset is an ordered collection of observations sharing a common
// input dimensionality.
type Dataset struct {
	dims    int
	records []Datum
}

// New returns an empty dataset.
func New() *Dataset { return &Dataset{} }

// Len returns the number of observations.
func (s *Dataset) Len() int { return len(s.records) }

// Dims returns the shared input dimensionality, or 0 while empty.
func (s *Dataset) Dims() int { return s.dims }

// Get returns a pointer to the i-th observation in sorted order.
// Callers must not change X in place; mutations go through Set.
func (s *Dataset) Get(i int) *Datum {
	if i < 0 || i >= len(s.records) {
		return nil
	}
	return &s.records[i]
}

// Set replaces the i-th observation and restores the sort order.
func (s *Dataset) Set(i int, d Datum) error {
	if i < 0 || i >= len(s.records) {
		return fmt.Errorf("data: index %d out of range", i)
	}
	if d.X == nil || d.X.Len() != s.dims {
		return errors.New("data: dimensionality mismatch")
	}
	if d.P < 0 {
		return errors.New("data: negative output index")
	}
	s.records[i] = d.Clone()
	s.sortSingle(i)
	return nil
}

// SetY overwrites the observed value of the i-th record. The sort order
// does not depend on y, so no re-sorting is needed.
func (s *Dataset) SetY(i int, y float64) error {
	if i < 0 || i >= len(s.records) {
		return fmt.Errorf("data: index %d out of range", i)
	}
	s.records[i].Y = y
	return nil
}

// Append adds a single observation and restores the sort order.
func (s *Dataset) Append(d Datum) error {
	if d.X == nil {
		return errors.New("data: nil location")
	}
	if d.P < 0 {
		return errors.New("data: negative output index")
	}
	if len(s.records) > 0 && d.X.Len() != s.dims {
		return errors.New("data: dimensionality mismatch")
	}
	if len(s.records) == 0 {
		s.dims = d.X.Len()
	}
	s.records = append(s.records, d.Clone())
	s.sortSingle(len(s.records) - 1)
	return nil
}

// AppendData merges every observation of another dataset.
func (s *Dataset) AppendData(other *Dataset) error {
	if other == nil {
		return errors.New("data: nil dataset")
	}
	if len(s.records) > 0 && other.Len() > 0 && other.Dims() != s.dims {
		return errors.New("data: dimensionality mismatch")
	}
	if len(s.records) == 0 && other.Len() > 0 {
		s.dims = other.Dims()
	}
	for i := range other.records {
		s.records = append(s.records, other.records[i].Clone())
	}
	s.sort()
	return nil
}

// AppendGrid adds one zero-valued observation per grid point, all with
// output index p.
func (s *Dataset) AppendGrid(p int, g mat.Matrix) error {
	if err := grid.Validate(g); err != nil {
		return err
	}
	if p < 0 {
		return errors.New("data: negative output index")
	}
	d := grid.Dims(g)
	if len(s.records) > 0 && d != s.dims {
		return errors.New("data: dimensionality mismatch")
	}
	if len(s.records) == 0 {
		s.dims = d
	}
	it := grid.NewIterator(g)
	for {
		s.records = append(s.records, Datum{P: p, X: mat.VecDenseCopyOf(it.X())})
		if !it.Next() {
			break
		}
	}
	s.sort()
	return nil
}

// Find locates an observation equal in (p, x) to the query and returns
// its 1-based position, or 0 when no equal record exists. The dataset's
// sorted invariant must hold on entry.
func (s *Dataset) Find(d *Datum) int {
	if d == nil || d.X == nil || len(s.records) == 0 || d.X.Len() != s.dims {
		return 0
	}
	i := sort.Search(len(s.records), func(i int) bool {
		return Compare(&s.records[i], d) >= 0
	})
	if i < len(s.records) && Compare(&s.records[i], d) == 0 {
		return i + 1
	}
	return 0
}

// Inner returns the squared two-norm of the observed values.
func (s *Dataset) Inner() float64 {
	yy := 0.0
	for i := range s.records {
		yy += s.records[i].Y * s.records[i].Y
	}
	return yy
}

// sort re-establishes the (p, x) ordering over all records.
func (s *Dataset) sort() {
	sort.SliceStable(s.records, func(i, j int) bool {
		return Compare(&s.records[i], &s.records[j]) < 0
	})
}

// sortSingle moves the record at index i into sorted position, assuming
// every other record is already in order.
func (s *Dataset) sortSingle(i int) {
	for i > 0 && Compare(&s.records[i], &s.records[i-1]) < 0 {
		s.records[i], s.records[i-1] = s.records[i-1], s.records[i]
		i--
	}
	for i < len(s.records)-1 && Compare(&s.records[i], &s.records[i+1]) > 0 {
		s.records[i], s.records[i+1] = s.records[i+1], s.records[i]
		i++
	}
}
