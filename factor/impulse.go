package factor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Parameter indices of the impulse factor.
const (
	impulseMu = iota
	impulseTau
)

// Impulse is a single Gaussian bump with a Gaussian posterior over its
// location.
type Impulse struct {
	base
}

// NewImpulse returns an impulse factor with location mean mu and
// location precision tau > 0.
func NewImpulse(mu, tau float64) (*Impulse, error) {
	f := &Impulse{base: newBase("impulse", 1, 2, 1)}
	if err := f.Set(impulseMu, mu); err != nil {
		return nil, err
	}
	if err := f.Set(impulseTau, tau); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Impulse) Set(i int, value float64) error {
	switch i {
	case impulseMu:
		f.par.SetVec(impulseMu, value)
		return nil

	case impulseTau:
		if value <= 0 {
			return errParameter(f.name, i, value)
		}
		f.par.SetVec(impulseTau, value)
		f.inf.Set(impulseMu, impulseMu, value)
		f.inf.Set(impulseTau, impulseTau, 0.75/(value*value))
		return nil
	}
	return errParameter(f.name, i, value)
}

func (f *Impulse) Mean(x *mat.VecDense, p, i int) float64 {
	u := x.AtVec(f.d) - f.par.AtVec(impulseMu)
	return math.Exp(-0.5 * f.par.AtVec(impulseTau) * u * u)
}

func (f *Impulse) Var(x *mat.VecDense, p, i, j int) float64 {
	m := f.Mean(x, p, i)
	return m * m
}

func (f *Impulse) Cov(x1, x2 *mat.VecDense, p1, p2 int) float64 {
	return f.Mean(x1, p1, 0) * f.Mean(x2, p2, 0)
}

func (f *Impulse) Eval(x *mat.VecDense, p, i int) float64 {
	return f.Mean(x, p, i)
}

func (f *Impulse) DiffMean(x *mat.VecDense, p, i int, df *mat.VecDense) {
	xd := x.AtVec(f.d)
	mu := f.par.AtVec(impulseMu)
	tau := f.par.AtVec(impulseTau)
	gx := f.Mean(x, p, i)
	u := xd - mu
	df.SetVec(impulseMu, gx*tau*u)
	df.SetVec(impulseTau, -0.5*u*u*gx)
}

func (f *Impulse) DiffVar(x *mat.VecDense, p, i, j int, df *mat.VecDense) {
	f.DiffMean(x, p, i, df)
	df.ScaleVec(2*f.Mean(x, p, i), df)
}

func (f *Impulse) Div(other Factor) float64 {
	if other == nil || other.Parms() != f.Parms() {
		return 0
	}
	return gaussDiv(
		f.par.AtVec(impulseMu), f.par.AtVec(impulseTau),
		other.Get(impulseMu), other.Get(impulseTau),
	)
}

func (f *Impulse) Copy() Factor {
	return &Impulse{base: f.cloneBase()}
}
