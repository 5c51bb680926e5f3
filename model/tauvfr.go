package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
)

// NewTauVFR returns a variational feature regression model with the
// noise precision fixed at tau > 0 instead of learned from the data.
func NewTauVFR(tau float64, opts ...Option) (*Model, error) {
	m, err := newModel(tauvfrForm{}, opts)
	if err != nil {
		return nil, err
	}
	if err := m.SetTau(tau); err != nil {
		return nil, err
	}
	return m, nil
}

// SetTau fixes the noise precision of a τ-VFR model. Other variants
// derive tau from the noise posterior and reject the assignment.
func (m *Model) SetTau(tau float64) error {
	if _, ok := m.form.(tauvfrForm); !ok {
		return errors.New("model: tau is only assignable on tau-vfr models")
	}
	if tau <= 0 {
		return fmt.Errorf("model: tau must be positive, got %g", tau)
	}
	m.tau = tau
	return nil
}

type tauvfrForm struct{}

func (tauvfrForm) name() string { return "tauvfr" }

func (tauvfrForm) bound(m *Model) float64 {
	return -m.logDetL() + 0.5*m.tau*m.wSw()
}

func (tauvfrForm) predict(m *Model, x *mat.VecDense, p int) (float64, float64) {
	return predictGaussian(m, x, p, 1/m.tau)
}

func (tauvfrForm) infer(m *Model) error {
	m.assemble(func(d *data.Datum) float64 { return d.Y }, unitCoef)
	return m.factorize()
}

func (tauvfrForm) update(m *Model, j int) error {
	m.refreshRows(j, func(d *data.Datum) float64 { return d.Y }, unitCoef)
	if err := m.weightAdjust(j); err != nil {
		return err
	}
	m.solveWeights()
	return nil
}

func (tauvfrForm) gradient(m *Model, i, j int, grad *mat.VecDense) error {
	return gaussGradient(m, i, j, grad, m.tau)
}

func (tauvfrForm) meanfield(m *Model, i, j int, b *mat.VecDense, B *mat.Dense) bool {
	return gaussMeanfield(m, i, j, b, B, m.tau)
}
