package factor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Parameter indices of the cosine factor.
const (
	cosineMu = iota
	cosineTau
)

// Cosine is a quadrature pair of cosine basis elements with a Gaussian
// posterior over the frequency. Basis element i is phase-shifted by
// iπ/2, so K=2 spans both quadratures.
type Cosine struct {
	base
}

// NewCosine returns a cosine factor with frequency mean mu and
// frequency precision tau > 0.
func NewCosine(mu, tau float64) (*Cosine, error) {
	f := &Cosine{base: newBase("cosine", 1, 2, 2)}
	if err := f.Set(cosineMu, mu); err != nil {
		return nil, err
	}
	if err := f.Set(cosineTau, tau); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Cosine) Set(i int, value float64) error {
	switch i {
	case cosineMu:
		f.par.SetVec(cosineMu, value)
		return nil

	case cosineTau:
		if value <= 0 {
			return errParameter(f.name, i, value)
		}
		f.par.SetVec(cosineTau, value)
		f.inf.Set(cosineMu, cosineMu, value)
		f.inf.Set(cosineTau, cosineTau, 0.75/(value*value))
		return nil
	}
	return errParameter(f.name, i, value)
}

func (f *Cosine) Eval(x *mat.VecDense, p, i int) float64 {
	xd := x.AtVec(f.d)
	mu := f.par.AtVec(cosineMu)
	return math.Cos(mu*xd + math.Pi/2*float64(i))
}

func (f *Cosine) Mean(x *mat.VecDense, p, i int) float64 {
	xd := x.AtVec(f.d)
	mu := f.par.AtVec(cosineMu)
	tau := f.par.AtVec(cosineTau)
	return math.Exp(-0.5*xd*xd/tau) * math.Cos(mu*xd+math.Pi/2*float64(i))
}

func (f *Cosine) Var(x *mat.VecDense, p, i, j int) float64 {
	xd := x.AtVec(f.d)
	zp := math.Pi / 2 * float64(i+j)
	zm := math.Pi / 2 * float64(i-j)
	mu := f.par.AtVec(cosineMu)
	tau := f.par.AtVec(cosineTau)
	ep := math.Exp(-2*xd*xd/tau) * math.Cos(2*mu*xd+zp)
	em := math.Cos(zm)
	return 0.5 * (ep + em)
}

func (f *Cosine) Cov(x1, x2 *mat.VecDense, p1, p2 int) float64 {
	mu := f.par.AtVec(cosineMu)
	tau := f.par.AtVec(cosineTau)
	xm := x1.AtVec(f.d) - x2.AtVec(f.d)
	// Differing output indices shift the kernel phase by one radian.
	zm := 0.0
	if p1 != p2 {
		if p1 != 0 {
			zm = -1
		} else {
			zm = 1
		}
	}
	return math.Exp(-0.5*xm*xm/tau) * math.Cos(mu*xm+zm)
}

func (f *Cosine) DiffMean(x *mat.VecDense, p, i int, df *mat.VecDense) {
	xd := x.AtVec(f.d)
	mu := f.par.AtVec(cosineMu)
	tau := f.par.AtVec(cosineTau)
	theta := mu*xd + math.Pi/2*float64(i)
	e := math.Exp(-0.5 * xd * xd / tau)
	df.SetVec(cosineMu, -xd*e*math.Sin(theta))
	df.SetVec(cosineTau, 0.5*(xd*xd/(tau*tau))*e*math.Cos(theta))
}

func (f *Cosine) DiffVar(x *mat.VecDense, p, i, j int, df *mat.VecDense) {
	xp := 2 * x.AtVec(f.d)
	mu := f.par.AtVec(cosineMu)
	tau := f.par.AtVec(cosineTau)
	theta := mu*xp + math.Pi/2*float64(i+j)
	e := math.Exp(-0.5 * xp * xp / tau)
	df.SetVec(cosineMu, -0.5*xp*e*math.Sin(theta))
	df.SetVec(cosineTau, 0.25*(xp*xp/(tau*tau))*e*math.Cos(theta))
}

func (f *Cosine) Div(other Factor) float64 {
	if other == nil || other.Parms() != f.Parms() {
		return 0
	}
	return gaussDiv(
		f.par.AtVec(cosineMu), f.par.AtVec(cosineTau),
		other.Get(cosineMu), other.Get(cosineTau),
	)
}

func (f *Cosine) Copy() Factor {
	return &Cosine{base: f.cloneBase()}
}

// gaussDiv is the KL divergence between two univariate Gaussians
// N(mu, 1/tau) and N(mu2, 1/tau2), shared by the cosine and impulse
// families.
func gaussDiv(mu, tau, mu2, tau2 float64) float64 {
	return 0.5*tau2*(mu*mu+1/tau-2*mu*mu2+mu2*mu2) -
		0.5*math.Log(tau2/tau) - 0.5
}
