package obj

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/varfeat/vfl/data"
	"github.com/varfeat/vfl/factor"
	"github.com/varfeat/vfl/model"
	"github.com/varfeat/vfl/optim"
	"github.com/varfeat/vfl/search"
)

func mustRegister(t *Type) {
	if err := Register(t); err != nil {
		panic(err)
	}
}

func init() {
	registerDatum()
	registerData()
	registerFactor()
	registerModel()
	registerOptim()
	registerSearch()
}

// asGrid coerces an argument to a D×3 grid matrix.
func asGrid(v any) (*mat.Dense, error) {
	switch g := v.(type) {
	case *mat.Dense:
		return g, nil
	case [][]float64:
		if len(g) == 0 {
			return nil, errors.New("obj: empty grid")
		}
		out := mat.NewDense(len(g), 3, nil)
		for d, row := range g {
			if len(row) != 3 {
				return nil, fmt.Errorf("obj: grid row %d must have 3 entries", d)
			}
			out.SetRow(d, row)
		}
		return out, nil
	case []float64:
		if len(g) != 3 {
			return nil, errors.New("obj: grid row must have 3 entries")
		}
		return mat.NewDense(1, 3, g), nil
	}
	return nil, fmt.Errorf("obj: expected grid, got %T", v)
}

func registerDatum() {
	mustRegister(NewType("datum",
		func(v any) bool { _, ok := v.(*data.Datum); return ok },
		func(args []any) (any, error) {
			x, err := argVec(args, 0)
			if err != nil {
				return nil, err
			}
			d := &data.Datum{X: mat.VecDenseCopyOf(x)}
			if len(args) > 1 {
				if d.Y, err = asFloat(args[1]); err != nil {
					return nil, err
				}
			}
			if len(args) > 2 {
				if d.P, err = asInt(args[2]); err != nil {
					return nil, err
				}
				if d.P < 0 {
					return nil, errors.New("obj: negative output index")
				}
			}
			return d, nil
		}).
		Prop("D", func(v any) (any, error) {
			return v.(*data.Datum).X.Len(), nil
		}, nil).
		Prop("output", func(v any) (any, error) {
			return v.(*data.Datum).P, nil
		}, func(v any, val any) error {
			p, err := asInt(val)
			if err != nil {
				return err
			}
			if p < 0 {
				return errors.New("obj: negative output index")
			}
			v.(*data.Datum).P = p
			return nil
		}).
		Prop("input", func(v any) (any, error) {
			return v.(*data.Datum).X, nil
		}, func(v any, val any) error {
			x, err := asVec(val)
			if err != nil {
				return err
			}
			v.(*data.Datum).X = mat.VecDenseCopyOf(x)
			return nil
		}).
		Prop("value", func(v any) (any, error) {
			return v.(*data.Datum).Y, nil
		}, func(v any, val any) error {
			y, err := asFloat(val)
			if err != nil {
				return err
			}
			v.(*data.Datum).Y = y
			return nil
		}))
}

func registerData() {
	mustRegister(NewType("data",
		func(v any) bool { _, ok := v.(*data.Dataset); return ok },
		func(args []any) (any, error) { return data.New(), nil }).
		Prop("N", func(v any) (any, error) {
			return v.(*data.Dataset).Len(), nil
		}, nil).
		Prop("D", func(v any) (any, error) {
			return v.(*data.Dataset).Dims(), nil
		}, nil).
		Method("augment", func(v any, args []any) (any, error) {
			s := v.(*data.Dataset)
			if len(args) == 0 {
				return nil, errors.New("obj: augment requires an argument")
			}
			switch a := args[0].(type) {
			case data.Datum:
				return nil, s.Append(a)
			case *data.Datum:
				return nil, s.Append(*a)
			case *data.Dataset:
				return nil, s.AppendData(a)
			case string:
				return nil, s.ReadFile(a)
			default:
				// A grid augments one row per grid point; the output
				// index defaults to zero unless a second argument says
				// otherwise.
				g, err := asGrid(args[0])
				if err != nil {
					return nil, fmt.Errorf("obj: cannot augment from %T", args[0])
				}
				p := 0
				if len(args) > 1 {
					if p, err = asInt(args[1]); err != nil {
						return nil, err
					}
				}
				return nil, s.AppendGrid(p, g)
			}
		}).
		Method("write", func(v any, args []any) (any, error) {
			if len(args) == 0 {
				return nil, errors.New("obj: write requires a path")
			}
			path, ok := args[0].(string)
			if !ok {
				return nil, errors.New("obj: write requires a path")
			}
			return nil, v.(*data.Dataset).WriteFile(path)
		}))
}

// parameter reads a factor parameter addressed by name, or an error
// when the factor type has no parameter of that name.
func parameter(f factor.Factor, name string) (float64, error) {
	switch f := f.(type) {
	case *factor.Cosine, *factor.Impulse:
		switch name {
		case "mu":
			return f.Get(0), nil
		case "tau":
			return f.Get(1), nil
		}
	case *factor.FixedImpulse:
		switch name {
		case "mu":
			return f.Location(), nil
		case "tau":
			return f.Get(0), nil
		}
	case *factor.Decay:
		switch name {
		case "alpha":
			return f.Get(0), nil
		case "beta":
			return f.Get(1), nil
		}
	case *factor.Polynomial:
		if name == "order" {
			return float64(f.Order()), nil
		}
	}
	return 0, fmt.Errorf("obj: factor %q has no parameter %q", f.Name(), name)
}

// setParameter writes a factor parameter addressed by name.
func setParameter(f factor.Factor, name string, value float64) error {
	switch f := f.(type) {
	case *factor.Cosine, *factor.Impulse:
		switch name {
		case "mu":
			return f.Set(0, value)
		case "tau":
			return f.Set(1, value)
		}
	case *factor.FixedImpulse:
		switch name {
		case "mu":
			f.SetLocation(value)
			return nil
		case "tau":
			return f.Set(0, value)
		}
	case *factor.Decay:
		switch name {
		case "alpha":
			return f.Set(0, value)
		case "beta":
			return f.Set(1, value)
		}
	case *factor.Polynomial:
		if name == "order" {
			return f.SetOrder(int(value))
		}
	}
	return fmt.Errorf("obj: factor %q has no parameter %q", f.Name(), name)
}

// parameterProp exposes a named factor parameter as a property.
func parameterProp(t *Type, name string) {
	t.Prop(name,
		func(v any) (any, error) {
			return parameter(v.(factor.Factor), name)
		},
		func(v any, val any) error {
			x, err := asFloat(val)
			if err != nil {
				return err
			}
			return setParameter(v.(factor.Factor), name, x)
		})
}

func factorCtor(name string) Ctor {
	switch name {
	case "cosine":
		return func(args []any) (any, error) {
			mu, err := argFloat(args, 0)
			if err != nil {
				return nil, err
			}
			tau, err := argFloat(args, 1)
			if err != nil {
				return nil, err
			}
			return factor.NewCosine(mu, tau)
		}
	case "impulse":
		return func(args []any) (any, error) {
			mu, err := argFloat(args, 0)
			if err != nil {
				return nil, err
			}
			tau, err := argFloat(args, 1)
			if err != nil {
				return nil, err
			}
			return factor.NewImpulse(mu, tau)
		}
	case "fixedImpulse":
		return func(args []any) (any, error) {
			mu, err := argFloat(args, 0)
			if err != nil {
				return nil, err
			}
			tau, err := argFloat(args, 1)
			if err != nil {
				return nil, err
			}
			return factor.NewFixedImpulse(mu, tau)
		}
	case "decay":
		return func(args []any) (any, error) {
			alpha, err := argFloat(args, 0)
			if err != nil {
				return nil, err
			}
			beta, err := argFloat(args, 1)
			if err != nil {
				return nil, err
			}
			return factor.NewDecay(alpha, beta)
		}
	case "polynomial":
		return func(args []any) (any, error) {
			order, err := argInt(args, 0)
			if err != nil {
				return nil, err
			}
			return factor.NewPolynomial(order)
		}
	case "product":
		return func(args []any) (any, error) {
			// Alternating (dimension index, factor) pairs.
			if len(args) == 0 || len(args)%2 != 0 {
				return nil, errors.New("obj: product requires (dim, factor) pairs")
			}
			children := make([]factor.Child, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				d, err := asInt(args[i])
				if err != nil {
					return nil, err
				}
				f, ok := args[i+1].(factor.Factor)
				if !ok {
					return nil, fmt.Errorf("obj: expected factor, got %T", args[i+1])
				}
				children = append(children, factor.Child{Dim: d, Factor: f})
			}
			return factor.NewProduct(children...)
		}
	}
	return nil
}

func registerFactor() {
	isFactor := func(name string) func(any) bool {
		return func(v any) bool {
			f, ok := v.(factor.Factor)
			return ok && f.Name() == name
		}
	}

	for _, name := range []string{
		"cosine", "impulse", "fixedImpulse", "decay", "polynomial", "product",
	} {
		t := NewType(name, isFactor(name), factorCtor(name)).
			Prop("dims", func(v any) (any, error) {
				return v.(factor.Factor).Dims(), nil
			}, nil).
			Prop("parms", func(v any) (any, error) {
				return v.(factor.Factor).Parms(), nil
			}, nil).
			Prop("weights", func(v any) (any, error) {
				return v.(factor.Factor).Weights(), nil
			}, nil).
			Prop("dim", func(v any) (any, error) {
				return v.(factor.Factor).Dim(), nil
			}, func(v any, val any) error {
				d, err := asInt(val)
				if err != nil {
					return err
				}
				v.(factor.Factor).SetDim(d)
				return nil
			}).
			Prop("fixed", func(v any) (any, error) {
				return v.(factor.Factor).Fixed(), nil
			}, func(v any, val any) error {
				fx, ok := val.(bool)
				if !ok {
					return fmt.Errorf("obj: expected bool, got %T", val)
				}
				v.(factor.Factor).SetFixed(fx)
				return nil
			}).
			Method("mean", func(v any, args []any) (any, error) {
				x, err := argVec(args, 0)
				if err != nil {
					return nil, err
				}
				p, err := argInt(args, 1)
				if err != nil {
					return nil, err
				}
				i, err := argInt(args, 2)
				if err != nil {
					return nil, err
				}
				return v.(factor.Factor).Mean(x, p, i), nil
			}).
			Method("var", func(v any, args []any) (any, error) {
				x, err := argVec(args, 0)
				if err != nil {
					return nil, err
				}
				p, err := argInt(args, 1)
				if err != nil {
					return nil, err
				}
				i, err := argInt(args, 2)
				if err != nil {
					return nil, err
				}
				j, err := argInt(args, 3)
				if err != nil {
					return nil, err
				}
				return v.(factor.Factor).Var(x, p, i, j), nil
			}).
			Method("cov", func(v any, args []any) (any, error) {
				x1, err := argVec(args, 0)
				if err != nil {
					return nil, err
				}
				x2, err := argVec(args, 1)
				if err != nil {
					return nil, err
				}
				p1, err := argInt(args, 2)
				if err != nil {
					return nil, err
				}
				p2, err := argInt(args, 3)
				if err != nil {
					return nil, err
				}
				return v.(factor.Factor).Cov(x1, x2, p1, p2), nil
			}).
			Method("div", func(v any, args []any) (any, error) {
				if len(args) == 0 {
					return nil, errors.New("obj: div requires a factor")
				}
				other, ok := args[0].(factor.Factor)
				if !ok {
					return nil, errors.New("obj: div requires a factor")
				}
				return v.(factor.Factor).Div(other), nil
			}).
			Method("eval", func(v any, args []any) (any, error) {
				x, err := argVec(args, 0)
				if err != nil {
					return nil, err
				}
				p, err := argInt(args, 1)
				if err != nil {
					return nil, err
				}
				i, err := argInt(args, 2)
				if err != nil {
					return nil, err
				}
				return v.(factor.Factor).Eval(x, p, i), nil
			}).
			Method("set", func(v any, args []any) (any, error) {
				i, err := argInt(args, 0)
				if err != nil {
					return nil, err
				}
				val, err := argFloat(args, 1)
				if err != nil {
					return nil, err
				}
				return nil, v.(factor.Factor).Set(i, val)
			})

		switch name {
		case "cosine", "impulse", "fixedImpulse":
			parameterProp(t, "mu")
			parameterProp(t, "tau")
		case "decay":
			parameterProp(t, "alpha")
			parameterProp(t, "beta")
		case "polynomial":
			parameterProp(t, "order")
		}
		mustRegister(t)
	}
}

func modelCtor(name string) Ctor {
	switch name {
	case "vfr":
		return func(args []any) (any, error) { return model.NewVFR() }
	case "tauvfr":
		return func(args []any) (any, error) {
			tau, err := argFloat(args, 0)
			if err != nil {
				return nil, err
			}
			return model.NewTauVFR(tau)
		}
	case "vfc":
		return func(args []any) (any, error) { return model.NewVFC() }
	}
	return nil
}

func registerModel() {
	isModel := func(name string) func(any) bool {
		return func(v any) bool {
			m, ok := v.(*model.Model)
			return ok && m.Name() == name
		}
	}

	for _, name := range []string{"vfr", "tauvfr", "vfc"} {
		mustRegister(NewType(name, isModel(name), modelCtor(name)).
			Prop("D", func(v any) (any, error) {
				return v.(*model.Model).Dims(), nil
			}, nil).
			Prop("P", func(v any) (any, error) {
				return v.(*model.Model).Parms(), nil
			}, nil).
			Prop("M", func(v any) (any, error) {
				return v.(*model.Model).Factors(), nil
			}, nil).
			Prop("K", func(v any) (any, error) {
				return v.(*model.Model).Weights(), nil
			}, nil).
			Prop("bound", func(v any) (any, error) {
				return v.(*model.Model).Bound(), nil
			}, nil).
			Prop("wmean", func(v any) (any, error) {
				m := v.(*model.Model)
				w := make([]float64, m.Weights())
				for i := range w {
					w[i] = m.Wmean(i)
				}
				return w, nil
			}, nil).
			Prop("wcov", func(v any) (any, error) {
				m := v.(*model.Model)
				k := m.Weights()
				c := make([][]float64, k)
				for i := range c {
					c[i] = make([]float64, k)
					for j := range c[i] {
						c[i][j] = m.Wcov(i, j)
					}
				}
				return c, nil
			}, nil).
			Prop("data", func(v any) (any, error) {
				return v.(*model.Model).Data(), nil
			}, func(v any, val any) error {
				dat, ok := val.(*data.Dataset)
				if !ok {
					return fmt.Errorf("obj: expected dataset, got %T", val)
				}
				return v.(*model.Model).SetData(dat)
			}).
			Prop("factors", func(v any) (any, error) {
				m := v.(*model.Model)
				fs := make([]factor.Factor, m.Factors())
				for j := range fs {
					fs[j] = m.Factor(j)
				}
				return fs, nil
			}, nil).
			Prop("alpha0", func(v any) (any, error) {
				return v.(*model.Model).Alpha0(), nil
			}, func(v any, val any) error {
				x, err := asFloat(val)
				if err != nil {
					return err
				}
				return v.(*model.Model).SetAlpha0(x)
			}).
			Prop("beta0", func(v any) (any, error) {
				return v.(*model.Model).Beta0(), nil
			}, func(v any, val any) error {
				x, err := asFloat(val)
				if err != nil {
					return err
				}
				return v.(*model.Model).SetBeta0(x)
			}).
			Prop("alpha", func(v any) (any, error) {
				return v.(*model.Model).Alpha(), nil
			}, nil).
			Prop("beta", func(v any) (any, error) {
				return v.(*model.Model).Beta(), nil
			}, nil).
			Prop("tau", func(v any) (any, error) {
				return v.(*model.Model).Tau(), nil
			}, func(v any, val any) error {
				x, err := asFloat(val)
				if err != nil {
					return err
				}
				return v.(*model.Model).SetTau(x)
			}).
			Prop("nu", func(v any) (any, error) {
				return v.(*model.Model).Nu(), nil
			}, func(v any, val any) error {
				x, err := asFloat(val)
				if err != nil {
					return err
				}
				return v.(*model.Model).SetNu(x)
			}).
			Method("add", func(v any, args []any) (any, error) {
				if len(args) == 0 {
					return nil, errors.New("obj: add requires a factor")
				}
				f, ok := args[0].(factor.Factor)
				if !ok {
					return nil, errors.New("obj: add requires a factor")
				}
				return nil, v.(*model.Model).AddFactor(f)
			}).
			Method("reset", func(v any, args []any) (any, error) {
				return nil, v.(*model.Model).Reset()
			}).
			Method("infer", func(v any, args []any) (any, error) {
				return nil, v.(*model.Model).Infer()
			}).
			Method("eval", func(v any, args []any) (any, error) {
				x, err := argVec(args, 0)
				if err != nil {
					return nil, err
				}
				p := 0
				if len(args) > 1 {
					if p, err = asInt(args[1]); err != nil {
						return nil, err
					}
				}
				return v.(*model.Model).Eval(x, p), nil
			}).
			Method("predict", func(v any, args []any) (any, error) {
				x, err := argVec(args, 0)
				if err != nil {
					return nil, err
				}
				p := 0
				if len(args) > 1 {
					if p, err = asInt(args[1]); err != nil {
						return nil, err
					}
				}
				mean, variance, err := v.(*model.Model).Predict(x, p)
				if err != nil {
					return nil, err
				}
				return []float64{mean, variance}, nil
			}))
	}
}

func optimCtor(name string) Ctor {
	build := func(args []any, mk func(*model.Model, ...optim.Option) (*optim.Optimizer, error)) (any, error) {
		if len(args) == 0 {
			return nil, errors.New("obj: optimizer requires a model")
		}
		m, ok := args[0].(*model.Model)
		if !ok {
			return nil, errors.New("obj: optimizer requires a model")
		}
		return mk(m)
	}
	switch name {
	case "fg":
		return func(args []any) (any, error) { return build(args, optim.NewFG) }
	case "mf":
		return func(args []any) (any, error) { return build(args, optim.NewMF) }
	}
	return nil
}

func registerOptim() {
	isOptim := func(name string) func(any) bool {
		return func(v any) bool {
			o, ok := v.(*optim.Optimizer)
			return ok && o.Name() == name
		}
	}

	for _, name := range []string{"fg", "mf"} {
		mustRegister(NewType(name, isOptim(name), optimCtor(name)).
			Prop("bound", func(v any) (any, error) {
				return v.(*optim.Optimizer).Bound(), nil
			}, nil).
			Prop("model", func(v any) (any, error) {
				return v.(*optim.Optimizer).Model(), nil
			}, func(v any, val any) error {
				m, ok := val.(*model.Model)
				if !ok {
					return fmt.Errorf("obj: expected model, got %T", val)
				}
				return v.(*optim.Optimizer).SetModel(m)
			}).
			Prop("max_iters", func(v any) (any, error) {
				return v.(*optim.Optimizer).MaxIters(), nil
			}, func(v any, val any) error {
				n, err := asInt(val)
				if err != nil {
					return err
				}
				return v.(*optim.Optimizer).SetMaxIters(n)
			}).
			Prop("max_steps", func(v any) (any, error) {
				return v.(*optim.Optimizer).MaxSteps(), nil
			}, func(v any, val any) error {
				n, err := asInt(val)
				if err != nil {
					return err
				}
				return v.(*optim.Optimizer).SetMaxSteps(n)
			}).
			Prop("lipschitz_init", func(v any) (any, error) {
				return v.(*optim.Optimizer).LipschitzInit(), nil
			}, func(v any, val any) error {
				x, err := asFloat(val)
				if err != nil {
					return err
				}
				return v.(*optim.Optimizer).SetLipschitzInit(x)
			}).
			Prop("lipschitz_step", func(v any) (any, error) {
				return v.(*optim.Optimizer).LipschitzStep(), nil
			}, func(v any, val any) error {
				x, err := asFloat(val)
				if err != nil {
					return err
				}
				return v.(*optim.Optimizer).SetLipschitzStep(x)
			}).
			Method("execute", func(v any, args []any) (any, error) {
				return v.(*optim.Optimizer).Execute(), nil
			}).
			Method("iterate", func(v any, args []any) (any, error) {
				return v.(*optim.Optimizer).Iterate(), nil
			}))
	}
}

func registerSearch() {
	mustRegister(NewType("search",
		func(v any) bool { _, ok := v.(*search.Search); return ok },
		func(args []any) (any, error) {
			if len(args) < 3 {
				return nil, errors.New("obj: search requires a model, dataset and grid")
			}
			m, ok := args[0].(*model.Model)
			if !ok {
				return nil, fmt.Errorf("obj: expected model, got %T", args[0])
			}
			dat, ok := args[1].(*data.Dataset)
			if !ok {
				return nil, fmt.Errorf("obj: expected dataset, got %T", args[1])
			}
			g, err := asGrid(args[2])
			if err != nil {
				return nil, err
			}
			return search.New(m, dat, g)
		}).
		Prop("model", func(v any) (any, error) {
			return v.(*search.Search).Model(), nil
		}, func(v any, val any) error {
			m, ok := val.(*model.Model)
			if !ok {
				return fmt.Errorf("obj: expected model, got %T", val)
			}
			return v.(*search.Search).SetModel(m)
		}).
		Prop("data", func(v any) (any, error) {
			return v.(*search.Search).Data(), nil
		}, func(v any, val any) error {
			dat, ok := val.(*data.Dataset)
			if !ok {
				return fmt.Errorf("obj: expected dataset, got %T", val)
			}
			return v.(*search.Search).SetData(dat)
		}).
		Prop("grid", func(v any) (any, error) {
			return v.(*search.Search).Grid(), nil
		}, func(v any, val any) error {
			g, err := asGrid(val)
			if err != nil {
				return err
			}
			return v.(*search.Search).SetGrid(g)
		}).
		Prop("outputs", func(v any) (any, error) {
			return v.(*search.Search).Outputs(), nil
		}, func(v any, val any) error {
			k, err := asInt(val)
			if err != nil {
				return err
			}
			return v.(*search.Search).SetOutputs(k)
		}).
		Method("execute", func(v any, args []any) (any, error) {
			return v.(*search.Search).Execute()
		}))
}
