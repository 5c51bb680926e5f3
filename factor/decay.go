package factor

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

// Parameter indices of the decay factor.
const (
	decayAlpha = iota
	decayBeta
)

// Decay is an exponential decay with a Gamma posterior over the decay
// rate.
type Decay struct {
	base
}

// NewDecay returns a decay factor with shape alpha > 0 and rate
// beta > 0.
func NewDecay(alpha, beta float64) (*Decay, error) {
	f := &Decay{base: newBase("decay", 1, 2, 1)}
	// Rate first so that the shape assignment sees a valid beta when
	// refreshing the information matrix.
	if err := f.Set(decayBeta, beta); err != nil {
		return nil, err
	}
	if err := f.Set(decayAlpha, alpha); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Decay) Set(i int, value float64) error {
	if value <= 0 {
		return errParameter(f.name, i, value)
	}
	switch i {
	case decayAlpha:
		alpha, beta := value, f.par.AtVec(decayBeta)
		f.par.SetVec(decayAlpha, alpha)
		f.inf.Set(decayAlpha, decayAlpha, trigamma(alpha))
		if beta > 0 {
			f.inf.Set(decayBeta, decayBeta, alpha/(beta*beta))
		}
		return nil

	case decayBeta:
		alpha, beta := f.par.AtVec(decayAlpha), value
		f.par.SetVec(decayBeta, beta)
		f.inf.Set(decayAlpha, decayBeta, -1/beta)
		f.inf.Set(decayBeta, decayAlpha, -1/beta)
		f.inf.Set(decayBeta, decayBeta, alpha/(beta*beta))
		return nil
	}
	return errParameter(f.name, i, value)
}

func (f *Decay) Eval(x *mat.VecDense, p, i int) float64 {
	alpha := f.par.AtVec(decayAlpha)
	beta := f.par.AtVec(decayBeta)
	rho := (alpha - 1) / beta
	return math.Exp(-rho * x.AtVec(f.d))
}

func (f *Decay) Mean(x *mat.VecDense, p, i int) float64 {
	return f.moment(x.AtVec(f.d))
}

func (f *Decay) Var(x *mat.VecDense, p, i, j int) float64 {
	return f.moment(2 * x.AtVec(f.d))
}

func (f *Decay) Cov(x1, x2 *mat.VecDense, p1, p2 int) float64 {
	return f.moment(x1.AtVec(f.d) + x2.AtVec(f.d))
}

// moment is the Gamma moment generating function evaluated at -t.
func (f *Decay) moment(t float64) float64 {
	alpha := f.par.AtVec(decayAlpha)
	beta := f.par.AtVec(decayBeta)
	return math.Pow(beta/(beta+t), alpha)
}

func (f *Decay) DiffMean(x *mat.VecDense, p, i int, df *mat.VecDense) {
	f.diff(x.AtVec(f.d), df)
}

func (f *Decay) DiffVar(x *mat.VecDense, p, i, j int, df *mat.VecDense) {
	f.diff(2*x.AtVec(f.d), df)
}

func (f *Decay) diff(t float64, df *mat.VecDense) {
	alpha := f.par.AtVec(decayAlpha)
	beta := f.par.AtVec(decayBeta)
	xr := beta / (beta + t)
	yr := alpha * t / (beta * beta)
	df.SetVec(decayAlpha, math.Pow(xr, alpha)*math.Log(xr))
	df.SetVec(decayBeta, yr*math.Pow(xr, alpha-1))
}

func (f *Decay) Div(other Factor) float64 {
	if other == nil || other.Parms() != f.Parms() {
		return 0
	}
	alpha := f.par.AtVec(decayAlpha)
	beta := f.par.AtVec(decayBeta)
	alpha2 := other.Get(decayAlpha)
	beta2 := other.Get(decayBeta)
	lg1, _ := math.Lgamma(alpha)
	lg2, _ := math.Lgamma(alpha2)
	return alpha*math.Log(beta) - lg1 -
		alpha2*math.Log(beta2) + lg2 +
		(alpha-alpha2)*(mathext.Digamma(alpha)-math.Log(beta)) +
		(beta-beta2)*(alpha/beta)
}

func (f *Decay) Copy() Factor {
	return &Decay{base: f.cloneBase()}
}

// trigamma is the second derivative of log Gamma, computed through the
// Hurwitz zeta function.
func trigamma(x float64) float64 {
	return mathext.Zeta(2, x)
}
