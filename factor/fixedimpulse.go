package factor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Parameter index of the fixed impulse factor.
const fixedImpulseTau = 0

// FixedImpulse is an impulse whose location is a construction-time
// constant; only the location precision is variational.
type FixedImpulse struct {
	base
	mu float64
}

// NewFixedImpulse returns a fixed impulse at location mu with location
// precision tau > 0.
func NewFixedImpulse(mu, tau float64) (*FixedImpulse, error) {
	f := &FixedImpulse{base: newBase("fixedImpulse", 1, 1, 1), mu: mu}
	if err := f.Set(fixedImpulseTau, tau); err != nil {
		return nil, err
	}
	return f, nil
}

// Location returns the fixed impulse location.
func (f *FixedImpulse) Location() float64 { return f.mu }

// SetLocation moves the fixed impulse location.
func (f *FixedImpulse) SetLocation(mu float64) { f.mu = mu }

func (f *FixedImpulse) Set(i int, value float64) error {
	if i != fixedImpulseTau || value <= 0 {
		return errParameter(f.name, i, value)
	}
	f.par.SetVec(fixedImpulseTau, value)
	f.inf.Set(fixedImpulseTau, fixedImpulseTau, 0.75/(value*value))
	return nil
}

func (f *FixedImpulse) Mean(x *mat.VecDense, p, i int) float64 {
	u := x.AtVec(f.d) - f.mu
	return math.Exp(-0.5 * f.par.AtVec(fixedImpulseTau) * u * u)
}

func (f *FixedImpulse) Var(x *mat.VecDense, p, i, j int) float64 {
	m := f.Mean(x, p, i)
	return m * m
}

func (f *FixedImpulse) Cov(x1, x2 *mat.VecDense, p1, p2 int) float64 {
	return f.Mean(x1, p1, 0) * f.Mean(x2, p2, 0)
}

func (f *FixedImpulse) Eval(x *mat.VecDense, p, i int) float64 {
	return f.Mean(x, p, i)
}

func (f *FixedImpulse) DiffMean(x *mat.VecDense, p, i int, df *mat.VecDense) {
	u := x.AtVec(f.d) - f.mu
	df.SetVec(fixedImpulseTau, -0.5*u*u*f.Mean(x, p, i))
}

func (f *FixedImpulse) DiffVar(x *mat.VecDense, p, i, j int, df *mat.VecDense) {
	f.DiffMean(x, p, i, df)
	df.ScaleVec(2*f.Mean(x, p, i), df)
}

func (f *FixedImpulse) Div(other Factor) float64 {
	o, ok := other.(*FixedImpulse)
	if !ok {
		return 0
	}
	return gaussDiv(
		f.mu, f.par.AtVec(fixedImpulseTau),
		o.mu, o.par.AtVec(fixedImpulseTau),
	)
}

func (f *FixedImpulse) Copy() Factor {
	return &FixedImpulse{base: f.cloneBase(), mu: f.mu}
}
