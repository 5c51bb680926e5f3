package optim

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/model"
	"github.com/varfeat/vfl/num"
)

// NewFG returns a full-gradient optimizer. Each iteration takes a
// natural-gradient proximal step on every learnable factor, with a
// backtracking line search toward the current parameters when a step
// fails to improve the bound.
func NewFG(mdl *model.Model, opts ...Option) (*Optimizer, error) {
	return newOptimizer(mdl, fgMethod{}, opts)
}

type fgMethod struct{}

func (fgMethod) name() string { return "fg" }

func (fgMethod) iterate(o *Optimizer) bool {
	if err := o.mdl.Infer(); err != nil {
		o.log.Warn("inference failed", zap.Error(err))
		return false
	}
	bound := o.mdl.Bound()
	boundInit := bound

	for j := 0; j < o.mdl.Factors(); j++ {
		f := o.mdl.Factor(j)
		np := f.Parms()
		if np == 0 || f.Fixed() {
			continue
		}
		boundPrev := bound

		xa := o.xa.SliceVec(0, np).(*mat.VecDense)
		xb := o.xb.SliceVec(0, np).(*mat.VecDense)
		x := o.x.SliceVec(0, np).(*mat.VecDense)
		g := o.g.SliceVec(0, np).(*mat.VecDense)

		// Step endpoints: the current parameters and the prior shifted
		// along the natural gradient.
		prior := o.mdl.Prior(j)
		for p := 0; p < np; p++ {
			xa.SetVec(p, f.Get(p))
			xb.SetVec(p, prior.Get(p))
		}

		x.Zero()
		for i := 0; i < o.mdl.Data().Len(); i++ {
			if err := o.mdl.Gradient(i, j, x); err != nil {
				o.log.Warn("gradient failed",
					zap.Int("factor", j), zap.Error(err))
				o.bound = bound
				return bound != boundInit
			}
		}

		fs := o.fs.Slice(0, np, 0, np).(*mat.Dense)
		fl := o.fl.Slice(0, np, 0, np).(*mat.Dense)
		fs.Copy(f.Info())
		if err := num.Cholesky(fs, fl); err != nil {
			o.log.Warn("Fisher information is singular, skipping factor",
				zap.Int("factor", j), zap.String("name", f.Name()))
			continue
		}
		num.SolveVec(fl, x, g)
		xb.AddVec(xb, g)

		// The step length starts at the curvature floor of the Fisher
		// information over the Lipschitz estimate, and contracts toward
		// the current parameters on each rejection.
		gamma := num.EigenMin(f.Info(), fs, g, x) / o.l0

		valid := false
		for step := 0; step < o.maxSteps; step++ {
			fa := 1 / (gamma + 1)
			fb := gamma / (gamma + 1)
			x.ScaleVec(fa, xa)
			x.AddScaledVec(x, fb, xb)

			if err := o.mdl.SetParms(j, x); err == nil {
				if err := o.mdl.Update(j); err == nil {
					bound = o.mdl.Bound()
					if bound > boundPrev {
						valid = true
						break
					}
				}
			}
			gamma *= o.dl
		}
		if !valid {
			if err := o.mdl.SetParms(j, xa); err == nil {
				o.mdl.Update(j)
			}
			bound = boundPrev
			o.log.Debug("no admissible step, parameters restored",
				zap.Int("factor", j), zap.String("name", f.Name()))
		}
	}
	o.bound = bound
	return bound != boundInit
}
