package factor

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Polynomial expands an input coordinate into its integer powers. It
// carries no variational parameters, so optimizers always skip it.
type Polynomial struct {
	base
}

// NewPolynomial returns a polynomial factor of the given order; the
// factor contributes order+1 weights.
func NewPolynomial(order int) (*Polynomial, error) {
	if order < 0 {
		return nil, errors.New("factor: negative polynomial order")
	}
	f := &Polynomial{base: newBase("polynomial", 1, 0, order+1)}
	f.fixed = true
	return f, nil
}

// Order returns the polynomial order, K−1.
func (f *Polynomial) Order() int { return f.weights - 1 }

// SetOrder resizes the factor to contribute order+1 weights.
func (f *Polynomial) SetOrder(order int) error {
	if order < 0 {
		return errors.New("factor: negative polynomial order")
	}
	return f.Resize(f.dims, 0, order+1)
}

// Set always fails: the factor has no parameters.
func (f *Polynomial) Set(i int, value float64) error {
	return errParameter(f.name, i, value)
}

func (f *Polynomial) Mean(x *mat.VecDense, p, i int) float64 {
	return math.Pow(x.AtVec(f.d), float64(i))
}

func (f *Polynomial) Var(x *mat.VecDense, p, i, j int) float64 {
	xd := x.AtVec(f.d)
	return math.Pow(xd, float64(i)) * math.Pow(xd, float64(j))
}

func (f *Polynomial) Cov(x1, x2 *mat.VecDense, p1, p2 int) float64 {
	xd1 := x1.AtVec(f.d)
	xd2 := x2.AtVec(f.d)
	cov := 0.0
	xi := 1.0
	for i := 0; i < f.weights; i++ {
		xj := 1.0
		for j := 0; j < f.weights; j++ {
			cov += xi * xj
			xj *= xd2
		}
		xi *= xd1
	}
	return cov
}

func (f *Polynomial) Eval(x *mat.VecDense, p, i int) float64 {
	return f.Mean(x, p, i)
}

func (f *Polynomial) DiffMean(x *mat.VecDense, p, i int, df *mat.VecDense) {}

func (f *Polynomial) DiffVar(x *mat.VecDense, p, i, j int, df *mat.VecDense) {}

// Div is zero: the factor carries no distribution over parameters.
func (f *Polynomial) Div(other Factor) float64 { return 0 }

func (f *Polynomial) Copy() Factor {
	return &Polynomial{base: f.cloneBase()}
}
