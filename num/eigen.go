package num

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EigenUpper returns a Gershgorin upper bound on the spectrum of the
// symmetric matrix A: the largest absolute row sum, with the diagonal
// element taken at its signed value.
func EigenUpper(a *mat.Dense) float64 {
	n, _ := a.Dims()
	ub := math.Inf(-1)
	for i := 0; i < n; i++ {
		ri := 0.0
		for j := 0; j < n; j++ {
			ri += math.Abs(a.At(i, j))
		}
		aii := a.At(i, i)
		ri += aii - math.Abs(aii)
		if ri > ub {
			ub = ri
		}
	}
	return ub
}

// EigenMin estimates the smallest eigenvalue of the symmetric
// positive-definite matrix A by power iteration on the spectrally
// shifted matrix A − U·I, where U is the Gershgorin bound. The shifted
// matrix is written into work, and b, z hold the eigenvector iterate;
// all three are caller-allocated scratch of matching size.
func EigenMin(a, work *mat.Dense, b, z *mat.VecDense) float64 {
	n, _ := a.Dims()
	if n == 1 {
		return a.At(0, 0)
	}

	work.Copy(a)
	for i := 0; i < n; i++ {
		b.SetVec(i, 1)
	}

	evub := EigenUpper(work)
	for i := 0; i < n; i++ {
		work.Set(i, i, work.At(i, i)-evub)
	}

	mu := 0.0
	for steps := 0; steps < 5; steps++ {
		muPrev := mu

		z.MulVec(work, b)
		znrm := mat.Norm(z, 2)
		if znrm == 0 {
			return evub
		}
		z.ScaleVec(1/znrm, z)
		b.CopyVec(z)

		z.MulVec(work, b)
		mu = mat.Dot(b, z)

		if math.Abs(muPrev-mu) <= 1e-6 {
			break
		}
	}
	return mu + evub
}
