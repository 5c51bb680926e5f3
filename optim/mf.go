package optim

import (
	"go.uber.org/zap"

	"github.com/varfeat/vfl/model"
)

// NewMF returns a mean-field optimizer. Each iteration runs an
// assumed-density coordinate update on every factor the data can
// identify, committing each update through a posterior refresh.
func NewMF(mdl *model.Model, opts ...Option) (*Optimizer, error) {
	return newOptimizer(mdl, mfMethod{}, opts)
}

type mfMethod struct{}

func (mfMethod) name() string { return "mf" }

func (mfMethod) iterate(o *Optimizer) bool {
	if err := o.mdl.Infer(); err != nil {
		o.log.Warn("inference failed", zap.Error(err))
		return false
	}
	boundInit := o.mdl.Bound()

	// Budget the update to the leading factors whose combined basis
	// size stays below the number of observations. Factors past the
	// budget keep their parameters.
	kmax := o.mdl.Data().Len()
	nj := 0
	for k := 0; nj < o.mdl.Factors(); nj++ {
		kj := o.mdl.Factor(nj).Weights()
		if k+kj >= kmax {
			break
		}
		k += kj
	}

	for j := 0; j < nj; j++ {
		if !o.mdl.MeanField(j) {
			continue
		}
		if err := o.mdl.Update(j); err != nil {
			o.log.Warn("posterior refresh failed",
				zap.Int("factor", j), zap.Error(err))
		}
	}

	o.bound = o.mdl.Bound()
	return o.bound != boundInit
}
