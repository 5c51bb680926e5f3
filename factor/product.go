package factor

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
)

// Child binds a factor to the input dimension it reads inside a
// product.
type Child struct {
	Dim    int
	Factor Factor
}

// Product composes univariate factors over distinct input dimensions
// into a multivariate factor. Moments multiply componentwise, gradients
// follow the product rule, and divergences sum over children. The
// product owns its children exclusively.
type Product struct {
	base
	children []Factor

	// mean-field scratch, sized K and K×K
	bn *mat.VecDense
	qn *mat.Dense
}

// NewProduct returns a product over the given children. The product's
// D covers the largest child dimension requirement, K is the largest
// child weight count, and P is the sum of child parameter counts.
func NewProduct(children ...Child) (*Product, error) {
	if len(children) == 0 {
		return nil, errors.New("factor: product requires at least one child")
	}
	dims, parms, weights := 0, 0, 0
	owned := make([]Factor, len(children))
	for n, c := range children {
		if c.Factor == nil {
			return nil, errors.New("factor: nil product child")
		}
		if c.Dim < 0 {
			return nil, errors.New("factor: negative product child dimension")
		}
		c.Factor.SetDim(c.Dim)
		owned[n] = c.Factor
		if d := c.Dim + c.Factor.Dims(); d > dims {
			dims = d
		}
		if k := c.Factor.Weights(); k > weights {
			weights = k
		}
		parms += c.Factor.Parms()
	}

	f := &Product{
		base:     newBase("product", dims, parms, weights),
		children: owned,
		bn:       mat.NewVecDense(weights, nil),
		qn:       mat.NewDense(weights, weights, nil),
	}
	f.syncAll()
	return f, nil
}

// Children returns the number of child factors.
func (f *Product) Children() int { return len(f.children) }

// Child returns the n-th child factor.
func (f *Product) Child(n int) Factor {
	if n < 0 || n >= len(f.children) {
		return nil
	}
	return f.children[n]
}

// syncAll refreshes the combined parameter vector and information
// matrix from every child block.
func (f *Product) syncAll() {
	for n, p0 := 0, 0; n < len(f.children); n++ {
		f.syncChild(n, p0)
		p0 += f.children[n].Parms()
	}
}

// syncChild copies child n's parameters and information into the
// combined storage at parameter offset p0.
func (f *Product) syncChild(n, p0 int) {
	fn := f.children[n]
	pf := fn.Parms()
	for i := 0; i < pf; i++ {
		f.par.SetVec(p0+i, fn.Get(i))
		for j := 0; j < pf; j++ {
			f.inf.Set(p0+i, p0+j, fn.Info().At(i, j))
		}
	}
}

// Resize fails: the product's sizes are derived from its children at
// construction time.
func (f *Product) Resize(dims, parms, weights int) error {
	return errors.New("factor: product sizes follow its children")
}

// Set dispatches the assignment to the child owning parameter index i.
// A child rejection leaves the product unchanged.
func (f *Product) Set(i int, value float64) error {
	for n, p0 := 0, 0; n < len(f.children); n++ {
		fn := f.children[n]
		pf := fn.Parms()
		if i < p0+pf {
			if err := fn.Set(i-p0, value); err != nil {
				return err
			}
			f.syncChild(n, p0)
			return nil
		}
		p0 += pf
	}
	return errParameter(f.name, i, value)
}

func (f *Product) Mean(x *mat.VecDense, p, i int) float64 {
	mean := 1.0
	for _, fn := range f.children {
		mean *= fn.Mean(x, p, i%fn.Weights())
	}
	return mean
}

func (f *Product) Var(x *mat.VecDense, p, i, j int) float64 {
	v := 1.0
	for _, fn := range f.children {
		v *= fn.Var(x, p, i%fn.Weights(), j%fn.Weights())
	}
	return v
}

func (f *Product) Cov(x1, x2 *mat.VecDense, p1, p2 int) float64 {
	cov := 1.0
	for _, fn := range f.children {
		cov *= fn.Cov(x1, x2, p1, p2)
	}
	return cov
}

func (f *Product) Eval(x *mat.VecDense, p, i int) float64 {
	v := 1.0
	for _, fn := range f.children {
		v *= fn.Eval(x, p, i%fn.Weights())
	}
	return v
}

func (f *Product) DiffMean(x *mat.VecDense, p, i int, df *mat.VecDense) {
	// Each child writes its own gradient block.
	for n2, p0 := 0, 0; n2 < len(f.children); n2++ {
		f2 := f.children[n2]
		pf := f2.Parms()
		if pf > 0 {
			block := df.SliceVec(p0, p0+pf).(*mat.VecDense)
			f2.DiffMean(x, p, i%f2.Weights(), block)
		}
		p0 += pf
	}
	// Product rule: scale every other block by this child's mean.
	for _, f1 := range f.children {
		mean1 := f1.Mean(x, p, i%f1.Weights())
		f.scaleOthers(df, f1, mean1)
	}
}

func (f *Product) DiffVar(x *mat.VecDense, p, i, j int, df *mat.VecDense) {
	for n2, p0 := 0, 0; n2 < len(f.children); n2++ {
		f2 := f.children[n2]
		pf := f2.Parms()
		if pf > 0 {
			block := df.SliceVec(p0, p0+pf).(*mat.VecDense)
			f2.DiffVar(x, p, i%f2.Weights(), j%f2.Weights(), block)
		}
		p0 += pf
	}
	for _, f1 := range f.children {
		var1 := f1.Var(x, p, i%f1.Weights(), j%f1.Weights())
		f.scaleOthers(df, f1, var1)
	}
}

// scaleOthers multiplies every gradient block except f1's own by s.
func (f *Product) scaleOthers(df *mat.VecDense, f1 Factor, s float64) {
	for n2, p0 := 0, 0; n2 < len(f.children); n2++ {
		f2 := f.children[n2]
		pf := f2.Parms()
		if f2 != f1 && pf > 0 {
			block := df.SliceVec(p0, p0+pf).(*mat.VecDense)
			block.ScaleVec(s, block)
		}
		p0 += pf
	}
}

func (f *Product) Div(other Factor) float64 {
	o, ok := other.(*Product)
	if !ok || len(o.children) != len(f.children) {
		return 0
	}
	div := 0.0
	for n, fn := range f.children {
		div += fn.Div(o.children[n])
	}
	return div
}

func (f *Product) Copy() Factor {
	dup := &Product{
		base: f.cloneBase(),
		bn:   mat.NewVecDense(f.weights, nil),
		qn:   mat.NewDense(f.weights, f.weights, nil),
	}
	dup.children = make([]Factor, len(f.children))
	for n, fn := range f.children {
		dup.children[n] = fn.Copy()
	}
	return dup
}

// MeanFieldInit starts a mean-field update by initializing every child.
// The update requires every child to support mean-field refinement.
func (f *Product) MeanFieldInit() bool {
	ok := true
	for _, fn := range f.children {
		mf, is := fn.(MeanField)
		if !is {
			return false
		}
		ok = ok && mf.MeanFieldInit()
	}
	return ok
}

// MeanFieldAccum streams one datum to every child, folding the other
// children's moments into the model coefficients first.
func (f *Product) MeanFieldAccum(prior Factor, d *data.Datum, b *mat.VecDense, B *mat.Dense) bool {
	fp, is := prior.(*Product)
	if !is || len(fp.children) != len(f.children) {
		return false
	}
	ok := true
	for n, fn := range f.children {
		mf, is := fn.(MeanField)
		if !is {
			return false
		}

		f.bn.CopyVec(b)
		f.qn.Copy(B)
		for n2, f2 := range f.children {
			if n2 == n {
				continue
			}
			for k := 0; k < f.weights; k++ {
				phi1 := f2.Mean(d.X, d.P, k%f2.Weights())
				f.bn.SetVec(k, f.bn.AtVec(k)*phi1)
				for k2 := 0; k2 < f.weights; k2++ {
					phi2 := f2.Var(d.X, d.P, k%f2.Weights(), k2%f2.Weights())
					f.qn.Set(k, k2, f.qn.At(k, k2)*phi2)
				}
			}
		}
		ok = ok && mf.MeanFieldAccum(fp.children[n], d, f.bn, f.qn)
	}
	return ok
}

// MeanFieldFinish commits every child's update and refreshes the
// combined parameter storage.
func (f *Product) MeanFieldFinish(prior Factor) bool {
	fp, is := prior.(*Product)
	if !is || len(fp.children) != len(f.children) {
		return false
	}
	ok := true
	for n, fn := range f.children {
		mf, is := fn.(MeanField)
		if !is {
			return false
		}
		ok = ok && mf.MeanFieldFinish(fp.children[n])
	}
	if ok {
		f.syncAll()
	}
	return ok
}
