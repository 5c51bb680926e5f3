// Package factor implements parameterized basis functions with
// analytically tractable first and second moments under their parameter
// posteriors. Each factor carries a parameter vector, a Fisher
// information matrix used as the metric for natural-gradient steps, and
// closed-form moment gradients and KL divergences.
package factor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
)

// Factor is a basis-function building block. A factor spans D input
// dimensions starting at offset Dim, carries P variational parameters,
// and contributes K weights (basis elements) to a model.
type Factor interface {
	// Name returns the registered type name of the factor.
	Name() string

	// Dims, Parms and Weights return the factor sizes D, P and K.
	Dims() int
	Parms() int
	Weights() int

	// Dim returns the input coordinate the factor reads.
	Dim() int
	SetDim(d int)

	// Fixed reports whether optimizers must skip the factor.
	Fixed() bool
	SetFixed(fixed bool)

	// Get returns parameter i, or 0 when i is out of range.
	Get(i int) float64

	// Set assigns parameter i, refreshing the affected Fisher
	// information entries. Values outside the parameter's admissible
	// interval are rejected and leave the factor unchanged.
	Set(i int, value float64) error

	// Info returns the P×P Fisher information matrix. Callers must
	// treat it as read-only.
	Info() *mat.Dense

	// Mean returns E[φ_i(x)] under the parameter posterior.
	Mean(x *mat.VecDense, p, i int) float64

	// Var returns E[φ_i(x) φ_j(x)] under the parameter posterior.
	Var(x *mat.VecDense, p, i, j int) float64

	// Cov returns the induced kernel between two inputs.
	Cov(x1, x2 *mat.VecDense, p1, p2 int) float64

	// Eval returns φ_i(x) at the posterior mode.
	Eval(x *mat.VecDense, p, i int) float64

	// DiffMean writes ∂E[φ_i]/∂θ into df, which must have length P.
	DiffMean(x *mat.VecDense, p, i int, df *mat.VecDense)

	// DiffVar writes ∂E[φ_i φ_j]/∂θ into df, which must have length P.
	DiffVar(x *mat.VecDense, p, i, j int, df *mat.VecDense)

	// Div returns KL[q(θ) ‖ q'(θ')] against a factor of identical
	// type and size, or 0 when the factors are incompatible.
	Div(other Factor) float64

	// Resize reallocates the parameter vector and Fisher information
	// for new sizes D, P and K, preserving existing entries and
	// zero-filling the rest.
	Resize(dims, parms, weights int) error

	// Copy returns a deep copy sharing no storage with the receiver.
	Copy() Factor
}

// MeanField is implemented by factors that support assumed-density
// mean-field coordinate updates. The update runs in three phases: Init
// zeroes the accumulators, Accum streams one datum together with its
// model coefficients, and Finish solves for the new parameters and
// commits them if admissible.
type MeanField interface {
	MeanFieldInit() bool
	MeanFieldAccum(prior Factor, d *data.Datum, b *mat.VecDense, B *mat.Dense) bool
	MeanFieldFinish(prior Factor) bool
}

// base carries the storage common to all factor types.
type base struct {
	name    string
	dims    int
	weights int
	d       int
	fixed   bool
	par     *mat.VecDense
	inf     *mat.Dense
}

func newBase(name string, dims, parms, weights int) base {
	b := base{name: name, dims: dims, weights: weights}
	if parms > 0 {
		b.par = mat.NewVecDense(parms, nil)
		b.inf = mat.NewDense(parms, parms, nil)
	} else {
		b.par = &mat.VecDense{}
		b.inf = &mat.Dense{}
	}
	return b
}

func (b *base) Name() string     { return b.name }
func (b *base) Dims() int        { return b.dims }
func (b *base) Weights() int     { return b.weights }
func (b *base) Dim() int         { return b.d }
func (b *base) SetDim(d int)     { b.d = d }
func (b *base) Fixed() bool      { return b.fixed }
func (b *base) SetFixed(fx bool) { b.fixed = fx }
func (b *base) Info() *mat.Dense { return b.inf }

func (b *base) Parms() int {
	if b.par.IsEmpty() {
		return 0
	}
	return b.par.Len()
}

func (b *base) Get(i int) float64 {
	if i < 0 || i >= b.Parms() {
		return 0
	}
	return b.par.AtVec(i)
}

// Resize reallocates the parameter vector and information matrix to the
// new sizes. Entries within the old bounds carry over; the rest are
// zero, including the Fisher information of any surviving parameters'
// new rows and columns.
func (b *base) Resize(dims, parms, weights int) error {
	if dims < 1 || weights < 1 || parms < 0 {
		return fmt.Errorf("factor: %s rejects sizes D=%d, P=%d, K=%d",
			b.name, dims, parms, weights)
	}
	par := &mat.VecDense{}
	inf := &mat.Dense{}
	if parms > 0 {
		par = mat.NewVecDense(parms, nil)
		inf = mat.NewDense(parms, parms, nil)
		keep := b.Parms()
		if parms < keep {
			keep = parms
		}
		for i := 0; i < keep; i++ {
			par.SetVec(i, b.par.AtVec(i))
			for j := 0; j < keep; j++ {
				inf.Set(i, j, b.inf.At(i, j))
			}
		}
	}
	b.par = par
	b.inf = inf
	b.dims = dims
	b.weights = weights
	return nil
}

// cloneBase deep-copies the shared storage.
func (b *base) cloneBase() base {
	dup := newBase(b.name, b.dims, b.Parms(), b.weights)
	dup.d = b.d
	dup.fixed = b.fixed
	if b.Parms() > 0 {
		dup.par.CopyVec(b.par)
		dup.inf.Copy(b.inf)
	}
	return dup
}

// errParameter builds the rejection error shared by every Set method.
func errParameter(name string, i int, value float64) error {
	return fmt.Errorf("factor: %s parameter %d rejects value %g", name, i, value)
}

// Builder constructs a factor of a registered type with its default
// parameters.
type Builder func() (Factor, error)

var builders = map[string]Builder{}

// Register binds a named factor constructor. The registry is write-once:
// registering a name twice fails. Registration is intended to happen
// during program initialization, before any concurrent use.
func Register(name string, fn Builder) error {
	if fn == nil {
		return fmt.Errorf("factor: nil builder for %q", name)
	}
	if _, ok := builders[name]; ok {
		return fmt.Errorf("factor: type %q already registered", name)
	}
	builders[name] = fn
	return nil
}

// New constructs a factor by registered type name.
func New(name string) (Factor, error) {
	fn, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("factor: unknown type %q", name)
	}
	return fn()
}

func init() {
	builders["cosine"] = func() (Factor, error) { return NewCosine(0, 1) }
	builders["impulse"] = func() (Factor, error) { return NewImpulse(0, 1) }
	builders["fixedImpulse"] = func() (Factor, error) { return NewFixedImpulse(0, 1) }
	builders["decay"] = func() (Factor, error) { return NewDecay(1, 1) }
	builders["polynomial"] = func() (Factor, error) { return NewPolynomial(0) }
	builders["product"] = func() (Factor, error) {
		c, err := NewImpulse(0, 1)
		if err != nil {
			return nil, err
		}
		return NewProduct(Child{Dim: 0, Factor: c})
	}
}
