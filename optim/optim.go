// Package optim fits the factor parameters of a variational feature
// model by maximizing its lower bound. Two strategies share one
// optimizer shell: full-gradient proximal steps with backtracking (FG)
// and mean-field coordinate ascent (MF). Both iterate until the bound
// stops improving.
package optim

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/model"
)

// Defaults for the optimizer controls.
const (
	DefaultMaxIters = 1000
	DefaultMaxSteps = 10
	DefaultL0       = 1.0
	DefaultDL       = 0.1
)

// method is the per-iteration strategy behind an optimizer.
type method interface {
	name() string
	iterate(o *Optimizer) bool
}

// Optimizer drives bound maximization over a model's factors.
type Optimizer struct {
	mdl    *model.Model
	method method

	maxIters int
	maxSteps int
	l0, dl   float64

	bound float64

	// proximal-step scratch, sized to the largest factor P
	xa, xb, x, g *mat.VecDense
	fs, fl       *mat.Dense

	log *zap.Logger
}

// Option configures an optimizer at construction time.
type Option func(*Optimizer) error

// WithMaxIters bounds the number of outer iterations.
func WithMaxIters(n int) Option {
	return func(o *Optimizer) error { return o.SetMaxIters(n) }
}

// WithMaxSteps bounds the backtracking line search per factor.
func WithMaxSteps(n int) Option {
	return func(o *Optimizer) error { return o.SetMaxSteps(n) }
}

// WithLipschitzInit sets the initial Lipschitz constant of the proximal
// step.
func WithLipschitzInit(l0 float64) Option {
	return func(o *Optimizer) error { return o.SetLipschitzInit(l0) }
}

// WithLipschitzStep sets the step-length multiplier applied on each
// rejected proposal.
func WithLipschitzStep(dl float64) Option {
	return func(o *Optimizer) error { return o.SetLipschitzStep(dl) }
}

// WithLogger routes optimization diagnostics to the given logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Optimizer) error {
		if log == nil {
			return errors.New("optim: nil logger")
		}
		o.log = log
		return nil
	}
}

func newOptimizer(mdl *model.Model, m method, opts []Option) (*Optimizer, error) {
	if mdl == nil {
		return nil, errors.New("optim: nil model")
	}
	// The model must hold a valid posterior before optimization.
	if err := mdl.Infer(); err != nil {
		return nil, fmt.Errorf("optim: initial inference: %w", err)
	}
	o := &Optimizer{
		method:   m,
		maxIters: DefaultMaxIters,
		maxSteps: DefaultMaxSteps,
		l0:       DefaultL0,
		dl:       DefaultDL,
		log:      zap.NewNop(),
	}
	o.bindModel(mdl)
	o.bound = mdl.Bound()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// bindModel stores the model and resizes the proximal scratch to its
// largest per-factor parameter count.
func (o *Optimizer) bindModel(mdl *model.Model) {
	o.mdl = mdl
	pmax := 0
	for j := 0; j < mdl.Factors(); j++ {
		if p := mdl.Factor(j).Parms(); p > pmax {
			pmax = p
		}
	}
	if pmax == 0 {
		pmax = 1
	}
	o.xa = mat.NewVecDense(pmax, nil)
	o.xb = mat.NewVecDense(pmax, nil)
	o.x = mat.NewVecDense(pmax, nil)
	o.g = mat.NewVecDense(pmax, nil)
	o.fs = mat.NewDense(pmax, pmax, nil)
	o.fl = mat.NewDense(pmax, pmax, nil)
}

// Name returns the strategy name.
func (o *Optimizer) Name() string { return o.method.name() }

// Model returns the optimized model.
func (o *Optimizer) Model() *model.Model { return o.mdl }

// SetModel replaces the optimized model, re-establishing a posterior
// baseline and refreshing the scratch area.
func (o *Optimizer) SetModel(mdl *model.Model) error {
	if mdl == nil {
		return errors.New("optim: nil model")
	}
	if err := mdl.Infer(); err != nil {
		return fmt.Errorf("optim: initial inference: %w", err)
	}
	o.bindModel(mdl)
	o.bound = mdl.Bound()
	return nil
}

// Bound returns the bound reached by the most recent iteration.
func (o *Optimizer) Bound() float64 { return o.bound }

// MaxIters returns the outer iteration limit.
func (o *Optimizer) MaxIters() int { return o.maxIters }

// MaxSteps returns the line search limit.
func (o *Optimizer) MaxSteps() int { return o.maxSteps }

// LipschitzInit returns the initial Lipschitz constant.
func (o *Optimizer) LipschitzInit() float64 { return o.l0 }

// LipschitzStep returns the step-length multiplier.
func (o *Optimizer) LipschitzStep() float64 { return o.dl }

// SetMaxIters sets the outer iteration limit.
func (o *Optimizer) SetMaxIters(n int) error {
	if n < 1 {
		return fmt.Errorf("optim: max iterations must be positive, got %d", n)
	}
	o.maxIters = n
	return nil
}

// SetMaxSteps sets the line search limit.
func (o *Optimizer) SetMaxSteps(n int) error {
	if n < 1 {
		return fmt.Errorf("optim: max steps must be positive, got %d", n)
	}
	o.maxSteps = n
	return nil
}

// SetLipschitzInit sets the initial Lipschitz constant.
func (o *Optimizer) SetLipschitzInit(l0 float64) error {
	if l0 <= 0 {
		return fmt.Errorf("optim: initial Lipschitz constant must be positive, got %g", l0)
	}
	o.l0 = l0
	return nil
}

// SetLipschitzStep sets the step-length multiplier applied on rejected
// proposals.
func (o *Optimizer) SetLipschitzStep(dl float64) error {
	if dl <= 0 {
		return fmt.Errorf("optim: Lipschitz step must be positive, got %g", dl)
	}
	o.dl = dl
	return nil
}

// Iterate performs one optimization pass over the factors and reports
// whether it changed the bound.
func (o *Optimizer) Iterate() bool {
	return o.method.iterate(o)
}

// Execute iterates until the bound stops improving or the iteration
// limit is reached. It reports whether the final iteration still
// improved the bound, a sign that optimization may be incomplete.
func (o *Optimizer) Execute() bool {
	boundPrev := o.bound
	for iter := 0; iter < o.maxIters; iter++ {
		boundPrev = o.bound
		if !o.Iterate() {
			break
		}
		o.log.Debug("iteration",
			zap.Int("iteration", iter),
			zap.Float64("bound", o.bound))
		if o.bound < boundPrev {
			o.log.Warn("bound decreased, stopping",
				zap.Int("iteration", iter),
				zap.Float64("bound", o.bound),
				zap.Float64("previous", boundPrev))
			break
		}
	}
	return o.bound > boundPrev
}
