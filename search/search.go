// Package search proposes the next measurement location for a trained
// model. The model is read as a Gaussian process through its kernel,
// and the candidate with the largest posterior predictive variance over
// a rectangular grid wins, excluding locations already observed.
package search

import (
	"errors"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
	"github.com/varfeat/vfl/grid"
	"github.com/varfeat/vfl/model"
	"github.com/varfeat/vfl/num"
)

// MaxChunk bounds the number of grid points scored per pass, which in
// turn bounds the variance scratch.
const MaxChunk = 512

var (
	errIncomplete = errors.New("search: model, dataset and grid must all be set")
	errExhausted  = errors.New("search: every candidate is already observed")
)

// Search scores candidate locations against a model and dataset.
type Search struct {
	mdl *model.Model
	dat *data.Dataset
	grd *mat.Dense

	outputs int

	// cached data covariance, its Cholesky factor, and per-chunk
	// kernel and variance scratch
	cov, lch *mat.Dense
	cs       *mat.VecDense
	xg       *mat.Dense
	vs       []float64
	n        int

	vmax float64

	log *zap.Logger
}

// Option configures a search at construction time.
type Option func(*Search) error

// WithOutputs sets the number of function outputs scored per candidate.
func WithOutputs(k int) Option {
	return func(s *Search) error { return s.SetOutputs(k) }
}

// WithLogger routes search diagnostics to the given logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Search) error {
		if log == nil {
			return errors.New("search: nil logger")
		}
		s.log = log
		return nil
	}
}

// New returns a search over the given model, dataset and grid. The
// search holds references only; the caller keeps all three alive.
func New(mdl *model.Model, dat *data.Dataset, grd *mat.Dense, opts ...Option) (*Search, error) {
	s := &Search{
		outputs: 1,
		log:     zap.NewNop(),
	}
	if err := s.SetModel(mdl); err != nil {
		return nil, err
	}
	if err := s.SetData(dat); err != nil {
		return nil, err
	}
	if err := s.SetGrid(grd); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Model returns the scored model.
func (s *Search) Model() *model.Model { return s.mdl }

// Data returns the observation dataset.
func (s *Search) Data() *data.Dataset { return s.dat }

// Grid returns the candidate grid specification.
func (s *Search) Grid() *mat.Dense { return s.grd }

// Outputs returns the number of function outputs scored per candidate.
func (s *Search) Outputs() int { return s.outputs }

// Vmax returns the variance of the winning candidate from the most
// recent execution.
func (s *Search) Vmax() float64 { return s.vmax }

// SetModel replaces the scored model.
func (s *Search) SetModel(mdl *model.Model) error {
	if mdl == nil {
		return errors.New("search: nil model")
	}
	s.mdl = mdl
	return nil
}

// SetData replaces the observation dataset.
func (s *Search) SetData(dat *data.Dataset) error {
	if dat == nil {
		return errors.New("search: nil dataset")
	}
	s.dat = dat
	return nil
}

// SetGrid replaces the candidate grid after validating it.
func (s *Search) SetGrid(grd *mat.Dense) error {
	if grd == nil {
		return errors.New("search: nil grid")
	}
	if err := grid.Validate(grd); err != nil {
		return err
	}
	s.grd = grd
	return nil
}

// SetOutputs sets the number of function outputs scored per candidate.
func (s *Search) SetOutputs(k int) error {
	if k < 1 {
		return errors.New("search: output count must be positive")
	}
	s.outputs = k
	return nil
}

// refresh resizes the covariance cache and scratch to the current
// dataset and grid.
func (s *Search) refresh() {
	d := grid.Dims(s.grd)
	if s.xg == nil {
		s.xg = mat.NewDense(MaxChunk, d, nil)
		s.vs = make([]float64, MaxChunk)
	} else if _, dc := s.xg.Dims(); dc != d {
		s.xg = mat.NewDense(MaxChunk, d, nil)
	}

	n := s.dat.Len()
	if s.n != n {
		s.cov = mat.NewDense(n, n, nil)
		s.lch = mat.NewDense(n, n, nil)
		s.cs = mat.NewVecDense(n, nil)
		s.n = n
	}
}

// fill rebuilds the cached inverse covariance of the observed data
// under the model's kernel, with the model's residual noise estimate as
// diagonal jitter.
func (s *Search) fill() error {
	n := s.dat.Len()
	for i := 0; i < n; i++ {
		di := s.dat.Get(i)
		for j := 0; j <= i; j++ {
			dj := s.dat.Get(j)
			cij := s.mdl.Cov(di.X, dj.X, di.P, dj.P)
			s.cov.Set(i, j, cij)
			if i != j {
				s.cov.Set(j, i, cij)
			}
		}
	}

	tauinv := s.mdl.ResidualVariance()
	for i := 0; i < n; i++ {
		s.cov.Set(i, i, s.cov.At(i, i)+tauinv)
	}

	if err := num.Cholesky(s.cov, s.lch); err != nil {
		s.log.Warn("data covariance is singular",
			zap.Int("n", n), zap.Error(err))
		return err
	}
	num.Invert(s.lch, s.cov)
	return nil
}

// variance scores one candidate location, summing the posterior
// predictive variance over the scored outputs.
func (s *Search) variance(x *mat.VecDense) float64 {
	n := s.dat.Len()
	sum := 0.0
	for ps := 0; ps < s.outputs; ps++ {
		sum += s.mdl.Cov(x, x, ps, ps)

		for j := 0; j < n; j++ {
			dj := s.dat.Get(j)
			s.cs.SetVec(j, s.mdl.Cov(dj.X, x, dj.P, ps))
		}
		for j := 0; j < n; j++ {
			cj := s.cs.AtVec(j)
			for k := 0; k < n; k++ {
				sum -= cj * s.cs.AtVec(k) * s.cov.At(j, k)
			}
		}
	}
	return sum
}

// observed reports whether any scored output index already has an
// observation at the probe location.
func (s *Search) observed(probe *data.Datum) bool {
	for probe.P = 0; probe.P < s.outputs; probe.P++ {
		if s.dat.Find(probe) != 0 {
			return true
		}
	}
	probe.P = 0
	return false
}

// Execute scores every grid point and returns the location with the
// largest posterior predictive variance that does not coincide with an
// existing observation.
func (s *Search) Execute() (*mat.VecDense, error) {
	if s.mdl == nil || s.dat == nil || s.grd == nil {
		return nil, errIncomplete
	}
	s.refresh()
	if err := s.fill(); err != nil {
		return nil, err
	}

	d := grid.Dims(s.grd)
	it := grid.NewIterator(s.grd)

	best := mat.NewVecDense(d, nil)
	probe := data.Datum{X: mat.NewVecDense(d, nil)}
	s.vmax = 0
	found := false

	more := true
	for rem := grid.Elements(s.grd); rem > 0 && more; {
		nc := rem
		if nc > MaxChunk {
			nc = MaxChunk
		}

		for i := 0; i < nc; i++ {
			x := it.X()
			for k := 0; k < d; k++ {
				s.xg.Set(i, k, x.AtVec(k))
			}
			s.vs[i] = s.variance(x)
			more = it.Next()
		}

		for i := 0; i < nc; i++ {
			if s.vs[i] <= s.vmax {
				continue
			}
			probe.X.CopyVec(s.xg.RowView(i))
			if s.observed(&probe) {
				continue
			}
			best.CopyVec(probe.X)
			s.vmax = s.vs[i]
			found = true
		}

		rem -= nc
	}

	if !found {
		return nil, errExhausted
	}
	return best, nil
}
