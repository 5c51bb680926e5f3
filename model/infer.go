package model

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
	"github.com/varfeat/vfl/num"
)

// assemble builds the projection vector h and the weight precision from
// the dataset. hcoef scales each datum's contribution to h; gcoef
// scales datum i's contribution to the precision. The weight prior nu
// lands on the diagonal.
func (m *Model) assemble(hcoef func(d *data.Datum) float64, gcoef func(i int) float64) {
	n := m.dat.Len()
	for j1, f1 := range m.factors {
		for k1 := 0; k1 < f1.Weights(); k1++ {
			i1 := m.offsets[j1] + k1

			hk := 0.0
			for i := 0; i < n; i++ {
				d := m.dat.Get(i)
				hk += hcoef(d) * m.Mean(d.X, d.P, j1, k1)
			}
			m.h.SetVec(i1, hk)

			for j2, f2 := range m.factors {
				for k2 := 0; k2 < f2.Weights(); k2++ {
					i2 := m.offsets[j2] + k2
					gkk := 0.0
					for i := 0; i < n; i++ {
						d := m.dat.Get(i)
						gkk += gcoef(i) * m.Var(d.X, d.P, j1, j2, k1, k2)
					}
					m.sinv.Set(i1, i2, gkk)
				}
			}
		}
	}
	for i := 0; i < m.weights; i++ {
		m.sinv.Set(i, i, m.sinv.At(i, i)+m.nu)
	}
}

// factorize refreshes L, w̄ and Σ from the assembled precision.
func (m *Model) factorize() error {
	if err := num.Cholesky(m.sinv, m.lchol); err != nil {
		return err
	}
	num.SolveVec(m.lchol, m.h, m.wbar)
	num.Invert(m.lchol, m.sigma)
	return nil
}

// refreshRows recomputes the precision rows and projection entries of
// factor j in place, caching the previous rows first so that the
// difference can drive a low-rank adjustment.
func (m *Model) refreshRows(j int, hcoef func(d *data.Datum) float64, gcoef func(i int) float64) {
	k0 := m.offsets[j]
	kj := m.factors[j].Weights()
	n := m.dat.Len()

	// Cache the current rows of the precision in the j-block.
	for k := 0; k < kj; k++ {
		for i := 0; i < m.weights; i++ {
			m.up.Set(k, i, m.sinv.At(k0+k, i))
		}
	}

	for k := 0; k < kj; k++ {
		hk := 0.0
		for i := 0; i < n; i++ {
			d := m.dat.Get(i)
			hk += hcoef(d) * m.Mean(d.X, d.P, j, k)
		}
		m.h.SetVec(k0+k, hk)

		for j2, f2 := range m.factors {
			for k2 := 0; k2 < f2.Weights(); k2++ {
				i2 := m.offsets[j2] + k2
				gkk := 0.0
				for i := 0; i < n; i++ {
					d := m.dat.Get(i)
					gkk += gcoef(i) * m.Var(d.X, d.P, j, j2, k, k2)
				}
				m.sinv.Set(k0+k, i2, gkk)
				m.sinv.Set(i2, k0+k, gkk)
			}
		}
	}
	for k := 0; k < kj; k++ {
		m.sinv.Set(k0+k, k0+k, m.sinv.At(k0+k, k0+k)+m.nu)
	}
}

// weightAdjust folds the difference between the cached and recomputed
// precision rows of factor j into the Cholesky factor and covariance as
// a sequence of symmetric rank-1 updates and downdates. The covariance
// follows through Sherman-Morrison. Failure leaves the caller to re-run
// full inference.
func (m *Model) weightAdjust(j int) error {
	k0 := m.offsets[j]
	kj := m.factors[j].Weights()
	kt := m.weights

	// Row differences between the new and cached precision rows.
	vss := 0.0
	for k := 0; k < kj; k++ {
		for i := 0; i < kt; i++ {
			d := m.sinv.At(k0+k, i) - m.up.At(k, i)
			m.dn.Set(k, i, d)
			vss += d * d
		}
	}
	if vss == 0 {
		return errors.New("model: precision rows unchanged")
	}

	// Halve each row's diagonal entry and zero the overlap with rows
	// already handled, so each difference is applied exactly once.
	for k := 0; k < kj; k++ {
		m.dn.Set(k, k0+k, 0.5*m.dn.At(k, k0+k))
		for kk := 0; kk < k; kk++ {
			m.dn.Set(k, k0+kk, 0)
		}
	}

	// Split each asymmetric row difference e·vᵀ + v·eᵀ into a symmetric
	// rank-1 update x·xᵀ and downdate y·yᵀ.
	for k := 0; k < kj; k++ {
		vnrm := 0.0
		for i := 0; i < kt; i++ {
			vi := m.dn.At(k, i)
			vnrm += vi * vi
		}
		vnrm = math.Sqrt(vnrm)
		a := math.Sqrt(vnrm / 2)
		binv := 1 / vnrm
		for i := 0; i < kt; i++ {
			ui := 0.0
			if i == k0+k {
				ui = 1
			}
			vi := m.dn.At(k, i)
			m.up.Set(k, i, a*(ui+binv*vi))
			m.dn.Set(k, i, a*(ui-binv*vi))
		}
	}

	// Apply the rank-1 updates to L and Σ.
	for k := 0; k < kj; k++ {
		u := m.up.RowView(k).(*mat.VecDense)
		m.lr.CopyVec(u)
		num.Update(m.lchol, m.lr)

		m.z.MulVec(m.sigma, u)
		zu := 1 / (1 + mat.Dot(m.z, u))
		rankOneSub(m.sigma, zu, m.z)
	}

	// Apply the rank-1 downdates.
	for k := 0; k < kj; k++ {
		v := m.dn.RowView(k).(*mat.VecDense)
		m.lr.CopyVec(v)
		if err := num.Downdate(m.lchol, m.lr); err != nil {
			return err
		}

		m.z.MulVec(m.sigma, v)
		zv := 1 / (1 - mat.Dot(m.z, v))
		rankOneSub(m.sigma, -zv, m.z)
	}
	return nil
}

// rankOneSub subtracts s·z·zᵀ from a in place.
func rankOneSub(a *mat.Dense, s float64, z *mat.VecDense) {
	n := z.Len()
	for i := 0; i < n; i++ {
		zi := s * z.AtVec(i)
		for j := 0; j < n; j++ {
			a.Set(i, j, a.At(i, j)-zi*z.AtVec(j))
		}
	}
}

// predictGaussian computes the Gaussian predictive moments shared by
// the regression variants, seeded with the expected noise variance.
func predictGaussian(m *Model, x *mat.VecDense, p int, tauinv float64) (float64, float64) {
	mu := 0.0
	for j, f := range m.factors {
		for k := 0; k < f.Weights(); k++ {
			mu += m.wbar.AtVec(m.offsets[j]+k) * m.Mean(x, p, j, k)
		}
	}

	eta := tauinv - mu*mu
	for j1, f1 := range m.factors {
		for k1 := 0; k1 < f1.Weights(); k1++ {
			i1 := m.offsets[j1] + k1
			for j2, f2 := range m.factors {
				for k2 := 0; k2 < f2.Weights(); k2++ {
					i2 := m.offsets[j2] + k2
					eta += (m.sigma.At(i1, i2) +
						m.wbar.AtVec(i1)*m.wbar.AtVec(i2)) *
						m.Var(x, p, j1, j2, k1, k2)
				}
			}
		}
	}
	return mu, eta
}

// gaussGradient accumulates the bound gradient of datum i with respect
// to factor j's parameters. tau weighs the data-fit terms; the
// classification variant passes one.
func gaussGradient(m *Model, i, j int, grad *mat.VecDense, tau float64) error {
	k0 := m.offsets[j]
	fj := m.factors[j]
	kj := fj.Weights()

	d := m.dat.Get(i)
	g := m.g.SliceVec(0, grad.Len()).(*mat.VecDense)

	for k := 0; k < kj; k++ {
		wk := m.wbar.AtVec(k0 + k)

		// Diagonal-block second-order terms.
		for kk := 0; kk < kj; kk++ {
			wwT := m.sigma.At(k0+k, k0+kk) +
				tau*wk*m.wbar.AtVec(k0+kk)
			fj.DiffVar(d.X, d.P, k, kk, g)
			grad.AddScaledVec(grad, -0.5*wwT, g)
		}

		// First-order term; g then holds the mean gradient for the
		// off-block contributions below.
		fj.DiffMean(d.X, d.P, k, g)
		grad.AddScaledVec(grad, tau*wk*d.Y, g)

		for j2, f2 := range m.factors {
			if j2 == j {
				continue
			}
			i2 := m.offsets[j2]
			for k2 := 0; k2 < f2.Weights(); k2++ {
				wwT := m.sigma.At(k0+k, i2+k2) +
					tau*wk*m.wbar.AtVec(i2+k2)
				e2 := f2.Mean(d.X, d.P, k2)
				grad.AddScaledVec(grad, -wwT*e2, g)
			}
		}
	}
	return nil
}

// gaussMeanfield emits the linear and quadratic coefficients of the
// mean-field update for factor j at datum i in a Gaussian-likelihood
// model.
func gaussMeanfield(m *Model, i, j int, b *mat.VecDense, B *mat.Dense, tau float64) bool {
	k0 := m.offsets[j]
	kj := m.factors[j].Weights()
	d := m.dat.Get(i)

	for k := 0; k < kj; k++ {
		b.SetVec(k, tau*d.Y*m.wbar.AtVec(k0+k))
	}

	for j2, f2 := range m.factors {
		if j2 == j {
			continue
		}
		i2 := m.offsets[j2]
		for k2 := 0; k2 < f2.Weights(); k2++ {
			phi2 := m.Mean(d.X, d.P, j2, k2)
			for k := 0; k < kj; k++ {
				w2 := m.sigma.At(k0+k, i2+k2) +
					m.wbar.AtVec(k0+k)*m.wbar.AtVec(i2+k2)
				b.SetVec(k, b.AtVec(k)-tau*w2*phi2)
			}
		}
	}

	for k := 0; k < kj; k++ {
		for k2 := 0; k2 < kj; k2++ {
			B.Set(k, k2, -0.5*tau*(m.sigma.At(k0+k, k0+k2)+
				m.wbar.AtVec(k0+k)*m.wbar.AtVec(k0+k2)))
		}
	}
	return true
}
