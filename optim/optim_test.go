package optim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
	"github.com/varfeat/vfl/factor"
	"github.com/varfeat/vfl/model"
	"github.com/varfeat/vfl/rng"
)

// cosineModel builds a regression model over noisy samples of
// cos(1.5 x) with a deliberately detuned cosine factor.
func cosineModel(t *testing.T) *model.Model {
	t.Helper()

	const (
		nData = 40
		freq  = 1.5
		noise = 0.1
	)

	gen := rng.NewWithSeed(12357)
	dat := data.New()
	for i := 0; i < nData; i++ {
		x := 8 * (gen.Uniform() - 0.5)
		y := math.Cos(freq*x) + noise*gen.Normal()
		if err := dat.Append(data.Datum{
			X: mat.NewVecDense(1, []float64{x}),
			Y: y,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	mdl, err := model.NewVFR(model.WithNu(1e-3))
	if err != nil {
		t.Fatalf("NewVFR failed: %v", err)
	}
	f, err := factor.NewCosine(1.2, 20)
	if err != nil {
		t.Fatalf("NewCosine failed: %v", err)
	}
	if err := mdl.AddFactor(f); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if err := mdl.SetData(dat); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	return mdl
}

func TestFGImprovesBound(t *testing.T) {
	const slack = 1e-9

	mdl := cosineModel(t)
	o, err := NewFG(mdl, WithMaxIters(50))
	if err != nil {
		t.Fatalf("NewFG failed: %v", err)
	}

	b0 := o.Bound()
	bound := b0
	for i := 0; i < 50; i++ {
		if !o.Iterate() {
			break
		}
		if o.Bound() < bound-slack {
			t.Fatalf("bound decreased at iteration %d: %g -> %g",
				i, bound, o.Bound())
		}
		bound = o.Bound()
	}

	if bound <= b0 {
		t.Errorf("bound did not improve: start %g, end %g", b0, bound)
	}
	// The factor should have moved toward the generating frequency.
	mu := mdl.Factor(0).Get(0)
	if math.Abs(mu-1.5) >= math.Abs(1.2-1.5) {
		t.Errorf("frequency did not approach 1.5: got %g", mu)
	}
}

func TestFGExecuteTerminates(t *testing.T) {
	mdl := cosineModel(t)
	o, err := NewFG(mdl, WithMaxIters(200))
	if err != nil {
		t.Fatalf("NewFG failed: %v", err)
	}

	b0 := o.Bound()
	o.Execute()
	if o.Bound() < b0 {
		t.Errorf("Execute lowered the bound: start %g, end %g", b0, o.Bound())
	}
	// Converged: one more pass leaves the bound unchanged.
	if o.Iterate() {
		t.Error("Iterate still changes the bound after Execute")
	}
}

func TestFGSkipsFixedFactor(t *testing.T) {
	mdl := cosineModel(t)
	mdl.Factor(0).SetFixed(true)

	o, err := NewFG(mdl)
	if err != nil {
		t.Fatalf("NewFG failed: %v", err)
	}
	if o.Iterate() {
		t.Error("Iterate changed the bound with every factor fixed")
	}
	if got := mdl.Factor(0).Get(0); got != 1.2 {
		t.Errorf("fixed factor moved: mu = %g", got)
	}
}

func TestFGClassificationProducts(t *testing.T) {
	const slack = 1e-9

	// Two-input classification with a small bank of impulse products,
	// class 1 inside the unit disc.
	gen := rng.NewWithSeed(99)
	dat := data.New()
	for i := 0; i < 60; i++ {
		x1 := 4 * (gen.Uniform() - 0.5)
		x2 := 4 * (gen.Uniform() - 0.5)
		y := 0.0
		if x1*x1+x2*x2 < 1 {
			y = 1
		}
		if err := dat.Append(data.Datum{
			X: mat.NewVecDense(2, []float64{x1, x2}),
			Y: y,
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	mdl, err := model.NewVFC(model.WithNu(1e-2))
	if err != nil {
		t.Fatalf("NewVFC failed: %v", err)
	}
	for _, c := range [][2]float64{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}, {0, 0}} {
		a, _ := factor.NewImpulse(c[0], 1)
		b, _ := factor.NewImpulse(c[1], 1)
		f, err := factor.NewProduct(
			factor.Child{Dim: 0, Factor: a},
			factor.Child{Dim: 1, Factor: b},
		)
		if err != nil {
			t.Fatalf("NewProduct failed: %v", err)
		}
		if err := mdl.AddFactor(f); err != nil {
			t.Fatalf("AddFactor failed: %v", err)
		}
	}
	if err := mdl.SetData(dat); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}

	o, err := NewFG(mdl, WithMaxIters(20))
	if err != nil {
		t.Fatalf("NewFG failed: %v", err)
	}
	bound := o.Bound()
	for i := 0; i < 20; i++ {
		if !o.Iterate() {
			break
		}
		if o.Bound() < bound-slack {
			t.Fatalf("bound decreased at iteration %d: %g -> %g",
				i, bound, o.Bound())
		}
		bound = o.Bound()
	}

	for _, x := range [][2]float64{{0, 0}, {1.5, 1.5}, {-2, 0.5}} {
		pr, _, err := mdl.Predict(mat.NewVecDense(2, []float64{x[0], x[1]}), 0)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if pr < 0 || pr > 1 {
			t.Errorf("class probability outside [0,1] at (%g,%g): %g",
				x[0], x[1], pr)
		}
	}
}

func TestMFTerminates(t *testing.T) {
	// None of the leaf factors supports mean-field refinement, so a
	// pass changes nothing and Execute stops immediately.
	mdl := cosineModel(t)
	o, err := NewMF(mdl, WithMaxIters(10))
	if err != nil {
		t.Fatalf("NewMF failed: %v", err)
	}

	b0 := o.Bound()
	if o.Execute() {
		t.Error("Execute reported further progress")
	}
	if o.Bound() != b0 {
		t.Errorf("bound changed without an update: %g -> %g", b0, o.Bound())
	}
}

func TestOptimizerControls(t *testing.T) {
	mdl := cosineModel(t)
	o, err := NewFG(mdl)
	if err != nil {
		t.Fatalf("NewFG failed: %v", err)
	}

	if o.Name() != "fg" {
		t.Errorf("Name: got %q, want fg", o.Name())
	}
	if o.MaxIters() != DefaultMaxIters || o.MaxSteps() != DefaultMaxSteps {
		t.Errorf("defaults: iters %d, steps %d", o.MaxIters(), o.MaxSteps())
	}
	if o.LipschitzInit() != DefaultL0 || o.LipschitzStep() != DefaultDL {
		t.Errorf("defaults: l0 %g, dl %g", o.LipschitzInit(), o.LipschitzStep())
	}

	if err := o.SetMaxIters(0); err == nil {
		t.Error("expected rejection of zero iteration limit")
	}
	if err := o.SetMaxSteps(-1); err == nil {
		t.Error("expected rejection of negative step limit")
	}
	if err := o.SetLipschitzInit(0); err == nil {
		t.Error("expected rejection of zero Lipschitz constant")
	}
	if err := o.SetLipschitzStep(-0.5); err == nil {
		t.Error("expected rejection of negative Lipschitz step")
	}
	if err := o.SetModel(nil); err == nil {
		t.Error("expected rejection of nil model")
	}

	if err := o.SetMaxIters(7); err != nil {
		t.Fatalf("SetMaxIters failed: %v", err)
	}
	if o.MaxIters() != 7 {
		t.Errorf("MaxIters: got %d, want 7", o.MaxIters())
	}

	mf, err := NewMF(mdl)
	if err != nil {
		t.Fatalf("NewMF failed: %v", err)
	}
	if mf.Name() != "mf" {
		t.Errorf("Name: got %q, want mf", mf.Name())
	}
}

func TestNewRequiresInferableModel(t *testing.T) {
	if _, err := NewFG(nil); err == nil {
		t.Error("expected rejection of nil model")
	}

	// A model without data cannot establish a posterior baseline.
	mdl, _ := model.NewVFR()
	f, _ := factor.NewCosine(1, 10)
	if err := mdl.AddFactor(f); err != nil {
		t.Fatalf("AddFactor failed: %v", err)
	}
	if _, err := NewFG(mdl); err == nil {
		t.Error("expected failure without data")
	}
}
