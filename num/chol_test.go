package num

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// spd returns a fixed symmetric positive-definite 3x3 test matrix.
func spd() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		4, 2, 1,
		2, 5, 3,
		1, 3, 6,
	})
}

func TestCholeskyFactor(t *testing.T) {
	const tol = 1e-12

	a := spd()
	l := mat.NewDense(3, 3, nil)
	if err := Cholesky(a, l); err != nil {
		t.Fatalf("Cholesky failed: %v", err)
	}

	// L must be lower triangular with positive diagonal.
	for i := 0; i < 3; i++ {
		if l.At(i, i) <= 0 {
			t.Errorf("non-positive diagonal at %d: %g", i, l.At(i, i))
		}
		for j := i + 1; j < 3; j++ {
			if l.At(i, j) != 0 {
				t.Errorf("upper entry (%d,%d) not zero: %g", i, j, l.At(i, j))
			}
		}
	}

	// L Lt must reproduce A.
	var llt mat.Dense
	llt.Mul(l, l.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(llt.At(i, j)-a.At(i, j)) > tol {
				t.Errorf("L Lt mismatch at (%d,%d): got %g, want %g",
					i, j, llt.At(i, j), a.At(i, j))
			}
		}
	}
}

func TestCholeskyNotPositiveDefinite(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 2, 1})
	l := mat.NewDense(2, 2, nil)
	if err := Cholesky(a, l); err == nil {
		t.Fatal("expected failure on indefinite matrix")
	}
}

func TestSolveVec(t *testing.T) {
	const tol = 1e-10

	a := spd()
	l := mat.NewDense(3, 3, nil)
	if err := Cholesky(a, l); err != nil {
		t.Fatalf("Cholesky failed: %v", err)
	}

	b := mat.NewVecDense(3, []float64{1, -2, 0.5})
	x := mat.NewVecDense(3, nil)
	SolveVec(l, b, x)

	var ax mat.VecDense
	ax.MulVec(a, x)
	for i := 0; i < 3; i++ {
		if math.Abs(ax.AtVec(i)-b.AtVec(i)) > tol {
			t.Errorf("A x mismatch at %d: got %g, want %g",
				i, ax.AtVec(i), b.AtVec(i))
		}
	}

	// Aliased solve must give the same answer.
	y := mat.NewVecDense(3, []float64{1, -2, 0.5})
	SolveVec(l, y, y)
	for i := 0; i < 3; i++ {
		if math.Abs(y.AtVec(i)-x.AtVec(i)) > tol {
			t.Errorf("aliased solve mismatch at %d: got %g, want %g",
				i, y.AtVec(i), x.AtVec(i))
		}
	}
}

func TestInvert(t *testing.T) {
	const tol = 1e-8

	a := spd()
	l := mat.NewDense(3, 3, nil)
	if err := Cholesky(a, l); err != nil {
		t.Fatalf("Cholesky failed: %v", err)
	}
	inv := mat.NewDense(3, 3, nil)
	Invert(l, inv)

	var id mat.Dense
	id.Mul(a, inv)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(id.At(i, j)-want) > tol {
				t.Errorf("A inv(A) mismatch at (%d,%d): got %g, want %g",
					i, j, id.At(i, j), want)
			}
		}
	}
}

func TestLogDet(t *testing.T) {
	const tol = 1e-10

	a := spd()
	l := mat.NewDense(3, 3, nil)
	if err := Cholesky(a, l); err != nil {
		t.Fatalf("Cholesky failed: %v", err)
	}

	// det(spd()) = 67 by cofactor expansion.
	want := 0.5 * math.Log(67)
	if got := LogDet(l); math.Abs(got-want) > tol {
		t.Errorf("LogDet: got %g, want %g", got, want)
	}
}

func TestUpdateDowndateRoundTrip(t *testing.T) {
	const tol = 1e-8

	a := spd()
	l := mat.NewDense(3, 3, nil)
	if err := Cholesky(a, l); err != nil {
		t.Fatalf("Cholesky failed: %v", err)
	}
	l0 := mat.DenseCopyOf(l)

	xdata := []float64{0.5, -0.2, 0.3}

	// Update against a from-scratch factorization of A + x xt.
	x := mat.NewVecDense(3, append([]float64(nil), xdata...))
	Update(l, x)

	ax := mat.DenseCopyOf(a)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ax.Set(i, j, ax.At(i, j)+xdata[i]*xdata[j])
		}
	}
	lref := mat.NewDense(3, 3, nil)
	if err := Cholesky(ax, lref); err != nil {
		t.Fatalf("reference Cholesky failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j <= i; j++ {
			if math.Abs(l.At(i, j)-lref.At(i, j)) > tol {
				t.Errorf("update mismatch at (%d,%d): got %g, want %g",
					i, j, l.At(i, j), lref.At(i, j))
			}
		}
	}

	// Downdating with the same vector must restore the original factor.
	y := mat.NewVecDense(3, append([]float64(nil), xdata...))
	if err := Downdate(l, y); err != nil {
		t.Fatalf("Downdate failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j <= i; j++ {
			if math.Abs(l.At(i, j)-l0.At(i, j)) > tol {
				t.Errorf("round trip mismatch at (%d,%d): got %g, want %g",
					i, j, l.At(i, j), l0.At(i, j))
			}
		}
	}
}

func TestDowndateFailure(t *testing.T) {
	l := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	y := mat.NewVecDense(2, []float64{2, 0})
	if err := Downdate(l, y); err != ErrNotPositiveDefinite {
		t.Fatalf("expected ErrNotPositiveDefinite, got %v", err)
	}
}

func TestEigenUpper(t *testing.T) {
	a := spd()
	ub := EigenUpper(a)

	// Gershgorin row sums of spd() peak at 1+3+6.
	if ub != 10 {
		t.Errorf("EigenUpper: got %g, want 10", ub)
	}
}

func TestEigenMin(t *testing.T) {
	// Scalar shortcut.
	one := mat.NewDense(1, 1, []float64{7})
	if got := EigenMin(one, mat.NewDense(1, 1, nil),
		mat.NewVecDense(1, nil), mat.NewVecDense(1, nil)); got != 7 {
		t.Errorf("1x1 EigenMin: got %g, want 7", got)
	}

	// Diagonal case with known spectrum {1, 2, 3}.
	a := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 2, 0,
		0, 0, 3,
	})
	work := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	z := mat.NewVecDense(3, nil)
	got := EigenMin(a, work, b, z)
	if math.Abs(got-1) > 0.05 {
		t.Errorf("EigenMin: got %g, want about 1", got)
	}
}

func BenchmarkCholesky(b *testing.B) {
	const n = 64
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				a.Set(i, j, float64(n))
			} else {
				a.Set(i, j, 1/float64(1+i+j))
			}
		}
	}
	l := mat.NewDense(n, n, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := Cholesky(a, l); err != nil {
			b.Fatalf("Cholesky failed: %v", err)
		}
	}
}
