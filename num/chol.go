// Package num supplies the dense numeric kernels shared by the model,
// optimizer, and search packages: Cholesky factorization with an
// adaptive-jitter fallback, triangular solves, inversion through the
// factor, rank-1 updates and downdates, and eigenvalue estimates used to
// size proximal steps.
package num

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNotPositiveDefinite reports a factorization or downdate that would
// leave the matrix outside the positive-definite cone.
var ErrNotPositiveDefinite = errors.New("num: matrix is not positive definite")

func denseToSym(a *mat.Dense) *mat.SymDense {
	n, _ := a.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sym.SetSym(i, j, a.At(i, j))
		}
	}
	return sym
}

func factorTo(sym *mat.SymDense, dst *mat.Dense) bool {
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return false
	}
	n := sym.SymmetricDim()
	tri := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(tri)
	dst.Copy(tri)
	return true
}

// Cholesky factors the symmetric positive-definite matrix A into a lower
// triangular L with A = L·Lᵀ, writing L into dst (allocated by the
// caller, same shape as A). When plain factorization fails, a small
// trace-proportional jitter is added to the diagonal and the
// factorization is retried once.
func Cholesky(a, dst *mat.Dense) error {
	if factorTo(denseToSym(a), dst) {
		return nil
	}

	n, _ := a.Dims()
	jittered := mat.DenseCopyOf(a)
	trace := 0.0
	for i := 0; i < n; i++ {
		trace += jittered.At(i, i)
	}
	eps := 1e-8 * trace / float64(n)
	for i := 0; i < n; i++ {
		jittered.Set(i, i, jittered.At(i, i)+eps)
	}
	if factorTo(denseToSym(jittered), dst) {
		return nil
	}
	return ErrNotPositiveDefinite
}

// SolveVec solves L·Lᵀ x = b by forward and backward substitution, where
// l is lower triangular. x and b may alias.
func SolveVec(l *mat.Dense, b, x *mat.VecDense) {
	n := b.Len()
	if x != b {
		x.CopyVec(b)
	}
	raw := l.RawMatrix()
	xd := x.RawVector().Data
	// Forward: L z = b.
	for i := 0; i < n; i++ {
		s := xd[i]
		row := raw.Data[i*raw.Stride:]
		for j := 0; j < i; j++ {
			s -= row[j] * xd[j]
		}
		xd[i] = s / row[i]
	}
	// Backward: Lᵀ x = z.
	for i := n - 1; i >= 0; i-- {
		s := xd[i]
		for j := i + 1; j < n; j++ {
			s -= raw.Data[j*raw.Stride+i] * xd[j]
		}
		xd[i] = s / raw.Data[i*raw.Stride+i]
	}
}

// Invert computes (L·Lᵀ)⁻¹ into dst by solving against each column of
// the identity. dst must not alias l.
func Invert(l *mat.Dense, dst *mat.Dense) {
	n, _ := l.Dims()
	col := mat.NewVecDense(n, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if i == j {
				col.SetVec(i, 1)
			} else {
				col.SetVec(i, 0)
			}
		}
		SolveVec(l, col, col)
		for i := 0; i < n; i++ {
			dst.Set(i, j, col.AtVec(i))
		}
	}
}

// LogDet returns Σ log L_kk, half the log-determinant of L·Lᵀ.
func LogDet(l *mat.Dense) float64 {
	n, _ := l.Dims()
	s := 0.0
	for k := 0; k < n; k++ {
		s += math.Log(l.At(k, k))
	}
	return s
}

// Update applies the rank-1 update L·Lᵀ + x·xᵀ to the Cholesky factor in
// place using Givens-style column recurrences. x is destroyed.
func Update(l *mat.Dense, x *mat.VecDense) {
	n := x.Len()
	for k := 0; k < n; k++ {
		lkk := l.At(k, k)
		xk := x.AtVec(k)
		r := math.Hypot(lkk, xk)
		c := r / lkk
		s := xk / lkk
		l.Set(k, k, r)
		for i := k + 1; i < n; i++ {
			lik := (l.At(i, k) + s*x.AtVec(i)) / c
			l.Set(i, k, lik)
			x.SetVec(i, c*x.AtVec(i)-s*lik)
		}
	}
}

// Downdate applies the rank-1 downdate L·Lᵀ − y·yᵀ to the Cholesky
// factor in place. It fails without touching the remaining columns when
// the downdate would destroy positive-definiteness. y is destroyed.
func Downdate(l *mat.Dense, y *mat.VecDense) error {
	n := y.Len()
	for k := 0; k < n; k++ {
		lkk := l.At(k, k)
		yk := y.AtVec(k)
		r2 := lkk*lkk - yk*yk
		if r2 <= 0 || math.IsNaN(r2) {
			return ErrNotPositiveDefinite
		}
		r := math.Sqrt(r2)
		c := r / lkk
		s := yk / lkk
		l.Set(k, k, r)
		for i := k + 1; i < n; i++ {
			lik := (l.At(i, k) - s*y.AtVec(i)) / c
			l.Set(i, k, lik)
			y.SetVec(i, c*y.AtVec(i)-s*lik)
		}
	}
	return nil
}
