// Package model implements variational feature models: additive
// expansions f(x) = Σⱼ wⱼ φⱼ(x; θⱼ) fitted by mean-field variational
// Bayes. A model owns an ordered list of posterior factors, a parallel
// list of frozen priors, and the shared weight/noise posterior. Three
// variants share the machinery: VFR (Gaussian likelihood with learned
// noise precision), τ-VFR (Gaussian with fixed noise precision), and
// VFC (Bernoulli likelihood under the Jaakkola-Jordan logistic bound).
package model

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
	"github.com/varfeat/vfl/factor"
	"github.com/varfeat/vfl/num"
)

var (
	errNoData   = errors.New("model: no dataset assigned")
	errNoFactor = errors.New("model: factor index out of range")
)

// form supplies the variant-specific inference routines. The embedding
// Model carries all shared state; forms only differ in how they weight
// the data and maintain the noise posterior.
type form interface {
	name() string
	bound(m *Model) float64
	predict(m *Model, x *mat.VecDense, p int) (mean, variance float64)
	infer(m *Model) error
	update(m *Model, j int) error
	gradient(m *Model, i, j int, grad *mat.VecDense) error
	meanfield(m *Model, i, j int, b *mat.VecDense, B *mat.Dense) bool
}

// Model is a variational feature model. Its posterior state covers the
// weight mean and covariance, the weight precision with its Cholesky
// factor, the projection vector, and (for classification) the logistic
// variational parameters.
type Model struct {
	form form

	dims    int // D
	parms   int // P, total over factors
	weights int // K, total over factors

	// noise hyperprior and weight/noise precision ratio
	alpha0, beta0, nu float64

	// noise posterior; tau caches alpha/beta
	alpha, beta, tau float64

	wbar  *mat.VecDense // posterior weight means, length K
	sigma *mat.Dense    // posterior weight covariance, K×K
	sinv  *mat.Dense    // weight precision, K×K
	lchol *mat.Dense    // lower Cholesky factor of sinv
	h     *mat.VecDense // projection vector, length K
	xi    *mat.VecDense // logistic parameters, length N

	factors []factor.Factor
	priors  []factor.Factor
	offsets []int // weight offset k0(j) per factor

	dat *data.Dataset

	// scratch reused across inference calls
	z  *mat.VecDense // length K
	g  *mat.VecDense // length max Pj
	lr *mat.VecDense // rank-1 work vector, length K
	up *mat.Dense    // cached precision rows, Kmax×K
	dn *mat.Dense    // recomputed precision rows, Kmax×K
	mb *mat.VecDense // mean-field coefficient vector, length Kmax
	mq *mat.Dense    // mean-field coefficient matrix, Kmax×Kmax

	log *zap.Logger
}

// Option configures a model at construction time.
type Option func(*Model) error

// WithAlpha0 sets the noise precision shape prior.
func WithAlpha0(alpha0 float64) Option {
	return func(m *Model) error { return m.SetAlpha0(alpha0) }
}

// WithBeta0 sets the noise precision rate prior.
func WithBeta0(beta0 float64) Option {
	return func(m *Model) error { return m.SetBeta0(beta0) }
}

// WithNu sets the relative weight precision.
func WithNu(nu float64) Option {
	return func(m *Model) error { return m.SetNu(nu) }
}

// WithLogger routes diagnostics to the given logger instead of
// discarding them.
func WithLogger(log *zap.Logger) Option {
	return func(m *Model) error {
		if log == nil {
			return errors.New("model: nil logger")
		}
		m.log = log
		return nil
	}
}

func newModel(f form, opts []Option) (*Model, error) {
	m := &Model{
		form:   f,
		alpha0: 1, beta0: 1, nu: 1,
		alpha: 1, beta: 1, tau: 1,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Name returns the model variant name.
func (m *Model) Name() string { return m.form.name() }

// Dims returns the model input dimensionality D.
func (m *Model) Dims() int { return m.dims }

// Parms returns the total parameter count P over all factors.
func (m *Model) Parms() int { return m.parms }

// Weights returns the total weight count K over all factors.
func (m *Model) Weights() int { return m.weights }

// Factors returns the number of factors M.
func (m *Model) Factors() int { return len(m.factors) }

// Factor returns the j-th posterior factor.
func (m *Model) Factor(j int) factor.Factor {
	if j < 0 || j >= len(m.factors) {
		return nil
	}
	return m.factors[j]
}

// Prior returns the frozen prior captured when factor j was added.
func (m *Model) Prior(j int) factor.Factor {
	if j < 0 || j >= len(m.priors) {
		return nil
	}
	return m.priors[j]
}

// Alpha0 returns the noise shape prior.
func (m *Model) Alpha0() float64 { return m.alpha0 }

// Beta0 returns the noise rate prior.
func (m *Model) Beta0() float64 { return m.beta0 }

// Alpha returns the posterior noise shape.
func (m *Model) Alpha() float64 { return m.alpha }

// Beta returns the posterior noise rate.
func (m *Model) Beta() float64 { return m.beta }

// Tau returns the expected noise precision.
func (m *Model) Tau() float64 { return m.tau }

// Nu returns the weight/noise precision ratio.
func (m *Model) Nu() float64 { return m.nu }

// Data returns the dataset bound to the model, or nil.
func (m *Model) Data() *data.Dataset { return m.dat }

// Wmean returns the posterior weight mean for basis element i.
func (m *Model) Wmean(i int) float64 {
	if m.wbar == nil || i < 0 || i >= m.weights {
		return 0
	}
	return m.wbar.AtVec(i)
}

// Wcov returns the posterior weight covariance between basis elements.
func (m *Model) Wcov(i, j int) float64 {
	if m.sigma == nil || i < 0 || j < 0 || i >= m.weights || j >= m.weights {
		return 0
	}
	return m.sigma.At(i, j)
}

// SetAlpha0 sets the noise shape prior, resetting the posterior shape.
func (m *Model) SetAlpha0(alpha0 float64) error {
	if alpha0 <= 0 {
		return fmt.Errorf("model: alpha0 must be positive, got %g", alpha0)
	}
	m.alpha0 = alpha0
	m.alpha = alpha0
	m.tau = m.alpha / m.beta
	return nil
}

// SetBeta0 sets the noise rate prior, resetting the posterior rate.
func (m *Model) SetBeta0(beta0 float64) error {
	if beta0 <= 0 {
		return fmt.Errorf("model: beta0 must be positive, got %g", beta0)
	}
	m.beta0 = beta0
	m.beta = beta0
	m.tau = m.alpha / m.beta
	return nil
}

// SetNu sets the weight/noise precision ratio.
func (m *Model) SetNu(nu float64) error {
	if nu <= 0 {
		return fmt.Errorf("model: nu must be positive, got %g", nu)
	}
	m.nu = nu
	return nil
}

// SetData binds a dataset to the model. The dataset must carry at least
// as many input dimensions as the model requires. Logistic parameters
// are resized to the dataset and reset to one.
func (m *Model) SetData(dat *data.Dataset) error {
	if dat == nil {
		return errors.New("model: nil dataset")
	}
	if m.dims > 0 && dat.Len() > 0 && dat.Dims() < m.dims {
		return fmt.Errorf("model: dataset dimensionality %d below model %d",
			dat.Dims(), m.dims)
	}
	m.dat = dat
	if dat.Len() > 0 {
		m.xi = mat.NewVecDense(dat.Len(), nil)
		for i := 0; i < dat.Len(); i++ {
			m.xi.SetVec(i, 1)
		}
	} else {
		m.xi = nil
	}
	return nil
}

// AddFactor incorporates a factor into the model, capturing a deep copy
// as its prior and reallocating the weight posterior storage.
func (m *Model) AddFactor(f factor.Factor) error {
	if f == nil {
		return errors.New("model: nil factor")
	}
	m.factors = append(m.factors, f)
	m.priors = append(m.priors, f.Copy())
	m.resize()
	return nil
}

// SetFactor replaces factor j together with its prior snapshot.
func (m *Model) SetFactor(j int, f factor.Factor) error {
	if j < 0 || j >= len(m.factors) {
		return errNoFactor
	}
	if f == nil {
		return errors.New("model: nil factor")
	}
	m.factors[j] = f
	m.priors[j] = f.Copy()
	m.resize()
	return nil
}

// SetParms assigns a full parameter vector to factor j. The assignment
// stops at the first rejected parameter.
func (m *Model) SetParms(j int, par *mat.VecDense) error {
	if j < 0 || j >= len(m.factors) {
		return errNoFactor
	}
	fj := m.factors[j]
	if par == nil || par.Len() != fj.Parms() {
		return errors.New("model: parameter vector size mismatch")
	}
	for p := 0; p < par.Len(); p++ {
		if err := fj.Set(p, par.AtVec(p)); err != nil {
			return err
		}
	}
	return nil
}

// resize recomputes the model sizes and reallocates posterior and
// scratch storage after a factor list change.
func (m *Model) resize() {
	dims, parms, weights, kmax, pmax := 0, 0, 0, 0, 0
	m.offsets = m.offsets[:0]
	for _, f := range m.factors {
		m.offsets = append(m.offsets, weights)
		if d := f.Dim() + f.Dims(); d > dims {
			dims = d
		}
		if f.Weights() > kmax {
			kmax = f.Weights()
		}
		if f.Parms() > pmax {
			pmax = f.Parms()
		}
		parms += f.Parms()
		weights += f.Weights()
	}
	m.dims, m.parms, m.weights = dims, parms, weights

	k := weights
	m.wbar = mat.NewVecDense(k, nil)
	m.sigma = mat.NewDense(k, k, nil)
	m.sinv = mat.NewDense(k, k, nil)
	m.lchol = mat.NewDense(k, k, nil)
	m.h = mat.NewVecDense(k, nil)
	m.z = mat.NewVecDense(k, nil)
	m.lr = mat.NewVecDense(k, nil)
	if pmax > 0 {
		m.g = mat.NewVecDense(pmax, nil)
	} else {
		m.g = nil
	}
	m.up = mat.NewDense(kmax, k, nil)
	m.dn = mat.NewDense(kmax, k, nil)
	m.mb = mat.NewVecDense(kmax, nil)
	m.mq = mat.NewDense(kmax, kmax, nil)
}

// WeightIndex returns the model weight index of basis element k of
// factor j.
func (m *Model) WeightIndex(j, k int) int {
	if j < 0 || j >= len(m.factors) || k < 0 || k >= m.factors[j].Weights() {
		return 0
	}
	return m.offsets[j] + k
}

// Mean returns the first moment of basis element k of factor j.
func (m *Model) Mean(x *mat.VecDense, p, j, k int) float64 {
	return m.factors[j].Mean(x, p, k)
}

// Var returns the second moment of a pair of basis elements. Across
// different factors the expectation factorizes into a product of means.
func (m *Model) Var(x *mat.VecDense, p, j1, j2, k1, k2 int) float64 {
	if j1 != j2 {
		return m.factors[j1].Mean(x, p, k1) * m.factors[j2].Mean(x, p, k2)
	}
	return m.factors[j1].Var(x, p, k1, k2)
}

// Cov returns the induced GP kernel between two inputs: the summed
// factor kernels scaled by the weight prior, plus a noise term on
// coincident inputs, all divided by the expected noise precision.
func (m *Model) Cov(x1, x2 *mat.VecDense, p1, p2 int) float64 {
	cov := 0.0
	for _, f := range m.factors {
		cov += f.Cov(x1, x2, p1, p2)
	}
	if vecEqual(x1, x2) {
		return (cov/m.nu + 1) / m.tau
	}
	return cov / m.nu / m.tau
}

func vecEqual(a, b *mat.VecDense) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if a.AtVec(i) != b.AtVec(i) {
			return false
		}
	}
	return true
}

// Eval evaluates the model function at the posterior mode.
func (m *Model) Eval(x *mat.VecDense, p int) float64 {
	if x == nil || m.wbar == nil {
		return 0
	}
	mode := 0.0
	for j, f := range m.factors {
		for k := 0; k < f.Weights(); k++ {
			mode += m.wbar.AtVec(m.offsets[j]+k) * f.Eval(x, p, k)
		}
	}
	return mode
}

// EvalAll overwrites the observations of a dataset with the model mode
// at each record's location.
func (m *Model) EvalAll(dat *data.Dataset) error {
	if dat == nil {
		return errors.New("model: nil dataset")
	}
	if dat.Len() > 0 && dat.Dims() < m.dims {
		return errors.New("model: dataset dimensionality too small")
	}
	for i := 0; i < dat.Len(); i++ {
		di := dat.Get(i)
		if err := dat.SetY(i, m.Eval(di.X, di.P)); err != nil {
			return err
		}
	}
	return nil
}

// Predict returns the posterior predictive mean and variance at x.
func (m *Model) Predict(x *mat.VecDense, p int) (mean, variance float64, err error) {
	if x == nil || x.Len() < m.dims {
		return 0, 0, errors.New("model: input dimensionality too small")
	}
	if m.wbar == nil {
		return 0, 0, errors.New("model: no factors added")
	}
	mean, variance = m.form.predict(m, x, p)
	return mean, variance, nil
}

// PredictAll fills two parallel datasets with the predictive means and
// variances at their record locations. The datasets must have equal
// sizes and model-compatible dimensionality.
func (m *Model) PredictAll(mean, variance *data.Dataset) error {
	if mean == nil || variance == nil {
		return errors.New("model: nil dataset")
	}
	if mean.Len() != variance.Len() {
		return errors.New("model: dataset size mismatch")
	}
	for i := 0; i < mean.Len(); i++ {
		di := mean.Get(i)
		mu, eta, err := m.Predict(di.X, di.P)
		if err != nil {
			return err
		}
		if err := mean.SetY(i, mu); err != nil {
			return err
		}
		if err := variance.SetY(i, eta); err != nil {
			return err
		}
	}
	return nil
}

// Bound returns the variational lower bound: the variant data-fit and
// complexity terms minus the KL penalty of every factor against its
// prior.
func (m *Model) Bound() float64 {
	div := 0.0
	for j, f := range m.factors {
		div += f.Div(m.priors[j])
	}
	return m.form.bound(m) - div
}

// Reset restores every factor's parameters from its prior and re-runs
// full inference.
func (m *Model) Reset() error {
	for j := range m.factors {
		prior := m.priors[j]
		for p := 0; p < prior.Parms(); p++ {
			if err := m.factors[j].Set(p, prior.Get(p)); err != nil {
				return err
			}
		}
	}
	return m.Infer()
}

// Infer fully recomputes the weight and noise posterior from the data.
func (m *Model) Infer() error {
	if m.dat == nil {
		return errNoData
	}
	if m.weights == 0 {
		return errors.New("model: no factors added")
	}
	return m.form.infer(m)
}

// Update refreshes the posterior after a change to factor j, using the
// low-rank adjustment when possible and falling back to full inference
// when the adjustment fails.
func (m *Model) Update(j int) error {
	if j < 0 || j >= len(m.factors) {
		return errNoFactor
	}
	if m.dat == nil {
		return errNoData
	}
	if err := m.form.update(m, j); err != nil {
		m.log.Warn("low-rank update failed, re-running full inference",
			zap.Int("factor", j), zap.Error(err))
		return m.form.infer(m)
	}
	return nil
}

// Gradient accumulates the bound gradient of datum i with respect to
// factor j's parameters into grad, which must have length Pj.
func (m *Model) Gradient(i, j int, grad *mat.VecDense) error {
	if m.dat == nil {
		return errNoData
	}
	if j < 0 || j >= len(m.factors) || i < 0 || i >= m.dat.Len() {
		return errors.New("model: gradient index out of range")
	}
	if m.factors[j].Parms() == 0 {
		return nil
	}
	if grad == nil || grad.Len() != m.factors[j].Parms() {
		return errors.New("model: gradient size mismatch")
	}
	return m.form.gradient(m, i, j, grad)
}

// MeanField performs an assumed-density mean-field update of factor j,
// streaming per-datum coefficients from the model variant into the
// factor. It reports whether the factor committed an update.
func (m *Model) MeanField(j int) bool {
	if m.dat == nil || j < 0 || j >= len(m.factors) {
		return false
	}
	f := m.factors[j]
	if f.Parms() == 0 {
		return true
	}
	mf, ok := f.(factor.MeanField)
	if !ok {
		return false
	}

	k := f.Weights()
	b := m.mb.SliceVec(0, k).(*mat.VecDense)
	B := m.mq.Slice(0, k, 0, k).(*mat.Dense)

	if !mf.MeanFieldInit() {
		return false
	}
	prior := m.priors[j]
	for i := 0; i < m.dat.Len(); i++ {
		if !m.form.meanfield(m, i, j, b, B) {
			return false
		}
		if !mf.MeanFieldAccum(prior, m.dat.Get(i), b, B) {
			return false
		}
	}
	return mf.MeanFieldFinish(prior)
}

// logDetL returns Σ log L_kk over the precision Cholesky factor.
func (m *Model) logDetL() float64 {
	return num.LogDet(m.lchol)
}

// ResidualVariance returns a moment-matched estimate of the expected
// noise variance of the current fit. It serves as diagonal jitter when
// the model is read as a Gaussian process over its kernel.
func (m *Model) ResidualVariance() float64 {
	if m.dat == nil {
		return m.beta0 / m.alpha0
	}
	alpha := m.alpha0 + float64(m.dat.Len())
	beta := m.beta0 + m.dat.Inner() - m.wSw()
	return beta / alpha
}

// wSw returns ‖Lᵀ w̄‖², the weight-precision inner product.
func (m *Model) wSw() float64 {
	k := m.weights
	for i := 0; i < k; i++ {
		s := 0.0
		for r := i; r < k; r++ {
			s += m.lchol.At(r, i) * m.wbar.AtVec(r)
		}
		m.z.SetVec(i, s)
	}
	return mat.Dot(m.z, m.z)
}
