package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
)

// NewVFC returns a variational feature classification model for binary
// observations, built on the Jaakkola-Jordan logistic bound. The noise
// posterior stays inert; the logistic parameters ξ take its place.
func NewVFC(opts ...Option) (*Model, error) {
	return newModel(vfcForm{}, opts)
}

// Xi returns the logistic variational parameter of datum i, or 0 when
// the model holds no such parameter.
func (m *Model) Xi(i int) float64 {
	if m.xi == nil || i < 0 || i >= m.xi.Len() {
		return 0
	}
	return m.xi.AtVec(i)
}

// sigfn is the standard logistic function.
func sigfn(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// ellfn is the coefficient of the Jaakkola-Jordan quadratic bound,
// tanh(ξ/2)/(4ξ).
func ellfn(xi float64) float64 {
	return math.Tanh(0.5*xi) / (4 * xi)
}

type vfcForm struct{}

func (vfcForm) name() string { return "vfc" }

func (vfcForm) bound(m *Model) float64 {
	bound := -m.logDetL() + 0.5*m.wSw()
	if m.xi == nil {
		return bound
	}
	for i := 0; i < m.xi.Len(); i++ {
		xi := m.xi.AtVec(i)
		bound += sigfn(xi) - 0.5*xi + ellfn(xi)*xi*xi
	}
	return bound
}

func (vfcForm) predict(m *Model, x *mat.VecDense, p int) (float64, float64) {
	z := 0.0
	for j, f := range m.factors {
		for k := 0; k < f.Weights(); k++ {
			z += m.wbar.AtVec(m.offsets[j]+k) * m.Mean(x, p, j, k)
		}
	}
	pr := sigfn(z)
	return pr, pr * (1 - pr)
}

func (f vfcForm) infer(m *Model) error {
	m.assemble(
		func(d *data.Datum) float64 { return 2*d.Y - 1 },
		func(i int) float64 { return 2 * ellfn(m.xi.AtVec(i)) },
	)
	if err := m.factorize(); err != nil {
		return err
	}
	m.wbar.ScaleVec(0.5, m.wbar)
	f.refreshXi(m)
	return nil
}

func (f vfcForm) update(m *Model, j int) error {
	m.refreshRows(j,
		func(d *data.Datum) float64 { return 2*d.Y - 1 },
		func(i int) float64 { return 2 * ellfn(m.xi.AtVec(i)) },
	)
	if err := m.weightAdjust(j); err != nil {
		return err
	}
	m.solveWeights()
	m.wbar.ScaleVec(0.5, m.wbar)
	f.refreshXi(m)
	return nil
}

func (vfcForm) gradient(m *Model, i, j int, grad *mat.VecDense) error {
	return gaussGradient(m, i, j, grad, 1)
}

// meanfield is unsupported under the logistic bound.
func (vfcForm) meanfield(m *Model, i, j int, b *mat.VecDense, B *mat.Dense) bool {
	return false
}

// refreshXi recomputes every logistic parameter as the root second
// moment of the latent function at its datum.
func (vfcForm) refreshXi(m *Model) {
	for i := 0; i < m.dat.Len(); i++ {
		d := m.dat.Get(i)
		xi := 0.0
		for j1, f1 := range m.factors {
			for k1 := 0; k1 < f1.Weights(); k1++ {
				i1 := m.offsets[j1] + k1
				for j2, f2 := range m.factors {
					for k2 := 0; k2 < f2.Weights(); k2++ {
						i2 := m.offsets[j2] + k2
						xi += (m.sigma.At(i1, i2) +
							m.wbar.AtVec(i1)*m.wbar.AtVec(i2)) *
							m.Var(d.X, d.P, j1, j2, k1, k2)
					}
				}
			}
		}
		m.xi.SetVec(i, math.Sqrt(xi))
	}
}
