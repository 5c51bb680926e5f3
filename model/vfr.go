package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
	"github.com/varfeat/vfl/num"
)

// NewVFR returns a variational feature regression model with a learned
// noise precision under a Gamma(alpha0, beta0) hyperprior.
func NewVFR(opts ...Option) (*Model, error) {
	return newModel(vfrForm{}, opts)
}

type vfrForm struct{}

func (vfrForm) name() string { return "vfr" }

func (vfrForm) bound(m *Model) float64 {
	return -m.logDetL() - m.alpha*math.Log(m.beta)
}

func (vfrForm) predict(m *Model, x *mat.VecDense, p int) (float64, float64) {
	return predictGaussian(m, x, p, m.beta/(m.alpha-1))
}

func (vfrForm) infer(m *Model) error {
	m.assemble(func(d *data.Datum) float64 { return d.Y }, unitCoef)
	if err := m.factorize(); err != nil {
		return err
	}
	m.refreshNoise()
	return nil
}

func (vfrForm) update(m *Model, j int) error {
	m.refreshRows(j, func(d *data.Datum) float64 { return d.Y }, unitCoef)
	if err := m.weightAdjust(j); err != nil {
		return err
	}
	m.solveWeights()
	m.refreshNoise()
	if !isFinite(m.beta) {
		return fmt.Errorf("model: non-finite noise rate %g", m.beta)
	}
	return nil
}

func (vfrForm) gradient(m *Model, i, j int, grad *mat.VecDense) error {
	return gaussGradient(m, i, j, grad, m.tau)
}

func (vfrForm) meanfield(m *Model, i, j int, b *mat.VecDense, B *mat.Dense) bool {
	return gaussMeanfield(m, i, j, b, B, m.tau)
}

// unitCoef weighs every datum's second-moment contribution equally.
func unitCoef(int) float64 { return 1 }

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// solveWeights recomputes w̄ from the current Cholesky factor and
// projection.
func (m *Model) solveWeights() {
	num.SolveVec(m.lchol, m.h, m.wbar)
}

// refreshNoise updates the noise posterior from the current weight
// solution and the data inner product.
func (m *Model) refreshNoise() {
	n := float64(m.dat.Len())
	m.alpha = m.alpha0 + 0.5*n
	m.beta = m.beta0 + 0.5*(m.dat.Inner()-m.wSw())
	m.tau = m.alpha / m.beta
}
