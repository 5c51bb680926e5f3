// Package obj exposes the library's domain types behind a uniform
// named surface: constructors, properties and methods addressed by
// string, as consumed by an embedding or scripting layer. The registry
// is populated during initialization and read-only afterwards.
package obj

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Getter reads a named property from an instance.
type Getter func(v any) (any, error)

// Setter writes a named property on an instance.
type Setter func(v any, val any) error

// Method invokes a named operation on an instance.
type Method func(v any, args []any) (any, error)

// Ctor builds a new instance from positional arguments.
type Ctor func(args []any) (any, error)

// Type is the registered runtime surface of one domain type.
type Type struct {
	name    string
	is      func(any) bool
	ctor    Ctor
	getters map[string]Getter
	setters map[string]Setter
	methods map[string]Method
}

// NewType starts a type surface. is reports whether an instance belongs
// to the type; ctor may be nil for types without a named constructor.
func NewType(name string, is func(any) bool, ctor Ctor) *Type {
	return &Type{
		name:    name,
		is:      is,
		ctor:    ctor,
		getters: map[string]Getter{},
		setters: map[string]Setter{},
		methods: map[string]Method{},
	}
}

// Prop adds a property. set may be nil for read-only properties.
func (t *Type) Prop(name string, get Getter, set Setter) *Type {
	if get != nil {
		t.getters[name] = get
	}
	if set != nil {
		t.setters[name] = set
	}
	return t
}

// Method adds a named operation.
func (t *Type) Method(name string, m Method) *Type {
	t.methods[name] = m
	return t
}

var types = map[string]*Type{}

// Register binds a type surface by name. The registry is write-once:
// registering a name twice fails. Registration is intended to happen
// during program initialization, before any concurrent use.
func Register(t *Type) error {
	if t == nil || t.name == "" || t.is == nil {
		return fmt.Errorf("obj: incomplete type registration")
	}
	if _, ok := types[t.name]; ok {
		return fmt.Errorf("obj: type %q already registered", t.name)
	}
	types[t.name] = t
	return nil
}

// Types returns the registered type names in sorted order.
func Types() []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeName returns the registered name of an instance's type, or the
// empty string when the instance matches no registered type.
func TypeName(v any) string {
	for name, t := range types {
		if t.is(v) {
			return name
		}
	}
	return ""
}

func typeOf(v any) (*Type, error) {
	for _, t := range types {
		if t.is(v) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("obj: unregistered type %T", v)
}

// New constructs an instance of the named type.
func New(name string, args ...any) (any, error) {
	t, ok := types[name]
	if !ok {
		return nil, fmt.Errorf("obj: unknown type %q", name)
	}
	if t.ctor == nil {
		return nil, fmt.Errorf("obj: type %q has no constructor", name)
	}
	return t.ctor(args)
}

// Get reads a property from an instance.
func Get(v any, prop string) (any, error) {
	t, err := typeOf(v)
	if err != nil {
		return nil, err
	}
	get, ok := t.getters[prop]
	if !ok {
		return nil, fmt.Errorf("obj: type %q has no property %q", t.name, prop)
	}
	return get(v)
}

// Set writes a property on an instance.
func Set(v any, prop string, val any) error {
	t, err := typeOf(v)
	if err != nil {
		return err
	}
	set, ok := t.setters[prop]
	if !ok {
		return fmt.Errorf("obj: type %q has no writable property %q", t.name, prop)
	}
	return set(v, val)
}

// Call invokes a named operation on an instance.
func Call(v any, method string, args ...any) (any, error) {
	t, err := typeOf(v)
	if err != nil {
		return nil, err
	}
	m, ok := t.methods[method]
	if !ok {
		return nil, fmt.Errorf("obj: type %q has no method %q", t.name, method)
	}
	return m(v, args)
}

// asFloat coerces a numeric argument to float64.
func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	}
	return 0, fmt.Errorf("obj: expected number, got %T", v)
}

// asInt coerces a numeric argument to int.
func asInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case float64:
		if x == float64(int(x)) {
			return int(x), nil
		}
	}
	return 0, fmt.Errorf("obj: expected integer, got %v", v)
}

// asVec coerces an argument to a vector.
func asVec(v any) (*mat.VecDense, error) {
	switch x := v.(type) {
	case *mat.VecDense:
		return x, nil
	case []float64:
		return mat.NewVecDense(len(x), x), nil
	case float64:
		return mat.NewVecDense(1, []float64{x}), nil
	}
	return nil, fmt.Errorf("obj: expected vector, got %T", v)
}

// argFloat fetches positional argument i as a float64.
func argFloat(args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("obj: missing argument %d", i)
	}
	return asFloat(args[i])
}

// argInt fetches positional argument i as an int.
func argInt(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("obj: missing argument %d", i)
	}
	return asInt(args[i])
}

// argVec fetches positional argument i as a vector.
func argVec(args []any, i int) (*mat.VecDense, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("obj: missing argument %d", i)
	}
	return asVec(args[i])
}
