package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
	"github.com/varfeat/vfl/factor"
)

func vec(vals ...float64) *mat.VecDense {
	return mat.NewVecDense(len(vals), vals)
}

// lineData returns three points on the identity line.
func lineData(t *testing.T) *data.Dataset {
	t.Helper()
	s := data.New()
	for _, x := range []float64{0, 1, 2} {
		if err := s.Append(data.Datum{X: vec(x), Y: x}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	return s
}

func TestVFRPolynomialLine(t *testing.T) {
	const tol = 1e-6

	m, err := NewVFR(WithNu(1e-8))
	if err != nil {
		t.Fatalf("NewVFR failed: %v", err)
	}
	poly, err := factor.NewPolynomial(1)
	if err != nil {
		t.Fatalf("NewPolynomial failed: %v", err)
	}
	if err := m.AddFactor(poly); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if err := m.SetData(lineData(t)); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if err := m.Infer(); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	// An order-1 polynomial recovers the line exactly, so the residual
	// leaves the noise rate at its prior.
	if got, want := m.Alpha(), m.Alpha0()+1.5; math.Abs(got-want) > tol {
		t.Errorf("Alpha: got %g, want %g", got, want)
	}
	if got := m.Beta(); math.Abs(got-m.Beta0()) > tol {
		t.Errorf("Beta: got %g, want %g", got, m.Beta0())
	}
	if got := m.Wmean(0); math.Abs(got) > tol {
		t.Errorf("intercept weight: got %g, want 0", got)
	}
	if got := m.Wmean(1); math.Abs(got-1) > tol {
		t.Errorf("slope weight: got %g, want 1", got)
	}

	for _, x := range []float64{0.25, 1.5, 3} {
		mu, eta, err := m.Predict(vec(x), 0)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if math.Abs(mu-x) > tol {
			t.Errorf("Predict mean at %g: got %g, want %g", x, mu, x)
		}
		if eta <= 0 {
			t.Errorf("Predict variance at %g not positive: %g", x, eta)
		}
	}
}

func TestInferIdempotent(t *testing.T) {
	const tol = 1e-10

	m, _ := NewVFR(WithNu(1e-3))
	f, _ := factor.NewCosine(1, 10)
	if err := m.AddFactor(f); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if err := m.SetData(lineData(t)); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if err := m.Infer(); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	w0 := make([]float64, m.Weights())
	c0 := make([]float64, m.Weights()*m.Weights())
	for i := 0; i < m.Weights(); i++ {
		w0[i] = m.Wmean(i)
		for j := 0; j < m.Weights(); j++ {
			c0[i*m.Weights()+j] = m.Wcov(i, j)
		}
	}
	b0 := m.Bound()

	if err := m.Infer(); err != nil {
		t.Fatalf("second Infer failed: %v", err)
	}
	for i := 0; i < m.Weights(); i++ {
		if math.Abs(m.Wmean(i)-w0[i]) > tol {
			t.Errorf("Wmean %d drifted: got %g, want %g", i, m.Wmean(i), w0[i])
		}
		for j := 0; j < m.Weights(); j++ {
			if math.Abs(m.Wcov(i, j)-c0[i*m.Weights()+j]) > tol {
				t.Errorf("Wcov (%d,%d) drifted", i, j)
			}
		}
	}
	if math.Abs(m.Bound()-b0) > tol {
		t.Errorf("Bound drifted: got %g, want %g", m.Bound(), b0)
	}
}

func TestUpdateMatchesInfer(t *testing.T) {
	const tol = 1e-6

	dat := lineData(t)

	m1, _ := NewVFR(WithNu(1e-3))
	f1, _ := factor.NewCosine(1, 10)
	if err := m1.AddFactor(f1); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if err := m1.SetData(dat); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if err := m1.Infer(); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	// Move the factor and refresh through the low-rank path.
	if err := m1.SetParms(0, vec(1.3, 10)); err != nil {
		t.Fatalf("SetParms failed: %v", err)
	}
	if err := m1.Update(0); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// A fresh model at the same parameters must agree.
	m2, _ := NewVFR(WithNu(1e-3))
	f2, _ := factor.NewCosine(1.3, 10)
	if err := m2.AddFactor(f2); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if err := m2.SetData(dat); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if err := m2.Infer(); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	for i := 0; i < m1.Weights(); i++ {
		if math.Abs(m1.Wmean(i)-m2.Wmean(i)) > tol {
			t.Errorf("Wmean %d: got %g, want %g", i, m1.Wmean(i), m2.Wmean(i))
		}
		for j := 0; j < m1.Weights(); j++ {
			if math.Abs(m1.Wcov(i, j)-m2.Wcov(i, j)) > tol {
				t.Errorf("Wcov (%d,%d): got %g, want %g",
					i, j, m1.Wcov(i, j), m2.Wcov(i, j))
			}
		}
	}
	if math.Abs(m1.Beta()-m2.Beta()) > tol {
		t.Errorf("Beta: got %g, want %g", m1.Beta(), m2.Beta())
	}
	if math.Abs(m1.Bound()-m2.Bound()) > tol {
		t.Errorf("Bound: got %g, want %g", m1.Bound(), m2.Bound())
	}
}

func TestSetTau(t *testing.T) {
	m, _ := NewVFR()
	if err := m.SetTau(5); err == nil {
		t.Error("expected rejection of tau on a learned-noise model")
	}

	mt, err := NewTauVFR(5)
	if err != nil {
		t.Fatalf("NewTauVFR failed: %v", err)
	}
	if mt.Tau() != 5 {
		t.Errorf("Tau: got %g, want 5", mt.Tau())
	}
	if err := mt.SetTau(-1); err == nil {
		t.Error("expected rejection of negative tau")
	}
	if _, err := NewTauVFR(0); err == nil {
		t.Error("expected rejection of zero tau")
	}
}

func TestVFCPredict(t *testing.T) {
	m, err := NewVFC(WithNu(1e-2))
	if err != nil {
		t.Fatalf("NewVFC failed: %v", err)
	}
	poly, _ := factor.NewPolynomial(1)
	if err := m.AddFactor(poly); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}

	s := data.New()
	for _, c := range []struct{ x, y float64 }{
		{-2, 0}, {-1, 0}, {-0.5, 0}, {0.5, 1}, {1, 1}, {2, 1},
	} {
		if err := s.Append(data.Datum{X: vec(c.x), Y: c.y}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := m.SetData(s); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if err := m.Infer(); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	for i := 0; i < s.Len(); i++ {
		if m.Xi(i) <= 0 {
			t.Errorf("Xi %d not positive: %g", i, m.Xi(i))
		}
	}

	pl, _, err := m.Predict(vec(-2.0), 0)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	ph, _, err := m.Predict(vec(2.0), 0)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if pl <= 0 || pl >= 1 || ph <= 0 || ph >= 1 {
		t.Fatalf("predictions outside (0,1): %g, %g", pl, ph)
	}
	if pl >= ph {
		t.Errorf("class probability not increasing: p(-2)=%g, p(2)=%g", pl, ph)
	}

	mu, eta, err := m.Predict(vec(0.0), 0)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if want := mu * (1 - mu); math.Abs(eta-want) > 1e-12 {
		t.Errorf("Bernoulli variance: got %g, want %g", eta, want)
	}
}

func TestReset(t *testing.T) {
	const tol = 1e-12

	m, _ := NewVFR(WithNu(1e-3))
	f, _ := factor.NewCosine(1, 10)
	if err := m.AddFactor(f); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if err := m.SetData(lineData(t)); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if err := m.Infer(); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if err := m.SetParms(0, vec(2.5, 40)); err != nil {
		t.Fatalf("SetParms failed: %v", err)
	}
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if got := m.Factor(0).Get(0); math.Abs(got-1) > tol {
		t.Errorf("mu after reset: got %g, want 1", got)
	}
	if got := m.Factor(0).Get(1); math.Abs(got-10) > tol {
		t.Errorf("tau after reset: got %g, want 10", got)
	}
	if d := m.Factor(0).Div(m.Prior(0)); math.Abs(d) > tol {
		t.Errorf("divergence after reset: got %g, want 0", d)
	}
}

func TestMeanFieldDispatch(t *testing.T) {
	m, _ := NewVFR(WithNu(1e-3))
	poly, _ := factor.NewPolynomial(1)
	imp, _ := factor.NewImpulse(0, 1)
	if err := m.AddFactor(poly); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if err := m.AddFactor(imp); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if err := m.SetData(lineData(t)); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if err := m.Infer(); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	// A parameter-free factor trivially succeeds; a factor without
	// mean-field support declines.
	if !m.MeanField(0) {
		t.Error("parameter-free factor should accept a mean-field pass")
	}
	if m.MeanField(1) {
		t.Error("impulse factor should decline a mean-field pass")
	}
	if m.MeanField(-1) || m.MeanField(2) {
		t.Error("out-of-range factor index should decline")
	}
}

func TestModelCov(t *testing.T) {
	const tol = 1e-12

	m, _ := NewTauVFR(4, WithNu(0.5))
	f, _ := factor.NewCosine(1, 10)
	if err := m.AddFactor(f); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}

	x1, x2 := vec(0.3), vec(1.1)
	want := f.Cov(x1, x2, 0, 0) / 0.5 / 4
	if got := m.Cov(x1, x2, 0, 0); math.Abs(got-want) > tol {
		t.Errorf("Cov: got %g, want %g", got, want)
	}

	// Coincident inputs pick up the noise term.
	want = (f.Cov(x1, x1, 0, 0)/0.5 + 1) / 4
	if got := m.Cov(x1, x1, 0, 0); math.Abs(got-want) > tol {
		t.Errorf("Cov at coincident inputs: got %g, want %g", got, want)
	}
}

func BenchmarkInfer(b *testing.B) {
	const nData = 64

	dat := data.New()
	for i := 0; i < nData; i++ {
		x := 8 * float64(i) / float64(nData-1)
		if err := dat.Append(data.Datum{
			X: vec(x), Y: math.Cos(1.5 * x),
		}); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
	m, _ := NewVFR(WithNu(1e-3))
	f, _ := factor.NewCosine(1.5, 10)
	if err := m.AddFactor(f); err != nil {
		b.Fatalf("AddFactor failed: %v", err)
	}
	if err := m.SetData(dat); err != nil {
		b.Fatalf("SetData failed: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := m.Infer(); err != nil {
			b.Fatalf("Infer failed: %v", err)
		}
	}
}

func TestInferValidation(t *testing.T) {
	m, _ := NewVFR()
	if err := m.Infer(); err == nil {
		t.Error("expected failure without data")
	}
	if err := m.SetData(lineData(t)); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if err := m.Infer(); err == nil {
		t.Error("expected failure without factors")
	}

	if _, _, err := m.Predict(vec(0), 0); err == nil {
		t.Error("expected Predict failure without factors")
	}

	f, _ := factor.NewCosine(1, 10)
	if err := m.AddFactor(f); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if _, _, err := m.Predict(nil, 0); err == nil {
		t.Error("expected Predict failure on nil input")
	}
}
