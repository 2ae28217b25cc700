// Package resolver provides the name-keyed registries of custom field and
// endpoint resolvers and of input validators.
//
// Registration happens once, while an engine is assembled. The engine freezes
// the registry when it is built; from then on the registry is read-only and
// safe for concurrent lookups. A name referenced by the schema but missing
// from the registry fails the build, never a request.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

// ErrFrozen is returned when registering into a frozen registry.
var ErrFrozen = errors.New("velograph: registry is frozen")

// Facade is handed to a resolver. It exposes the field being resolved, its
// arguments, the transaction of the enclosing operation and the request and
// global contexts.
type Facade struct {
	// TypeName is the type owning the field, or the endpoint name for
	// custom endpoints.
	TypeName  string
	FieldName string
	// Args holds the field or endpoint input, Null when absent.
	Args value.Value

	// Parent is the node whose field is resolved. ParentRel is set instead
	// for relationship properties.
	Parent    *database.Node
	ParentRel *database.Rel

	// Tx is the transaction of the enclosing operation.
	Tx database.Transaction

	RequestContext any
	GlobalContext  any
}

// Resolver computes the value of a resolver-backed property, relationship or
// custom endpoint. It returns one of:
//
//   - value.Value for scalars, lists of scalars and custom types
//   - *database.Node or []*database.Node
//   - *database.Rel or []*database.Rel
//
// A resolver may block; it runs in the goroutine of the request and must
// honour ctx.
type Resolver interface {
	Resolve(ctx context.Context, f *Facade) (any, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, f *Facade) (any, error)

// Resolve calls f(ctx, fc).
func (f ResolverFunc) Resolve(ctx context.Context, fc *Facade) (any, error) {
	return f(ctx, fc)
}

// Static returns a resolver that always yields v.
func Static(v value.Value) Resolver {
	return ResolverFunc(func(context.Context, *Facade) (any, error) { return v, nil })
}

// Validator checks the whole input object of an operation. Validators see
// every field so that they may depend on siblings.
type Validator interface {
	Validate(input value.Value) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(input value.Value) error

// Validate calls f(input).
func (f ValidatorFunc) Validate(input value.Value) error {
	return f(input)
}

// Check runs v on input. Failures that are not a velograph.ValidationError
// are wrapped into one named name.
func Check(name string, v Validator, input value.Value) error {
	err := v.Validate(input)
	if err == nil || velograph.IsValidationError(err) {
		return err
	}
	return velograph.NewValidationError(name, err)
}

var tags = validator.New()

// Tag returns a validator applying a go-playground/validator tag, such as
// "email" or "min=3,max=64", to one field of the input. A missing or Null
// field is passed as its zero value, so "required" rejects it.
func Tag(field, tag string) Validator {
	return ValidatorFunc(func(input value.Value) error {
		f, _ := input.Get(field)
		var x any = ""
		if !f.IsNull() {
			x = f.Any()
		}
		if err := tags.Var(x, tag); err != nil {
			var ves validator.ValidationErrors
			if errors.As(err, &ves) && len(ves) > 0 {
				return velograph.ValidationFailed(field, fmt.Sprintf("failed %q rule", ves[0].Tag()))
			}
			return velograph.NewValidationError(field, err)
		}
		return nil
	})
}

// Registry maps names to resolvers and validators.
type Registry struct {
	mu         sync.RWMutex
	resolvers  map[string]Resolver
	validators map[string]Validator
	frozen     bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		resolvers:  make(map[string]Resolver),
		validators: make(map[string]Validator),
	}
}

// RegisterResolver adds a resolver under name. Names are unique.
func (r *Registry) RegisterResolver(name string, res Resolver) error {
	if res == nil {
		return fmt.Errorf("velograph: resolver %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	if _, ok := r.resolvers[name]; ok {
		return velograph.NewConfigError("resolver "+name, velograph.ErrConfigItemDuplicated)
	}
	r.resolvers[name] = res
	return nil
}

// RegisterValidator adds a validator under name. Names are unique.
func (r *Registry) RegisterValidator(name string, v Validator) error {
	if v == nil {
		return fmt.Errorf("velograph: validator %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	if _, ok := r.validators[name]; ok {
		return velograph.NewConfigError("validator "+name, velograph.ErrConfigItemDuplicated)
	}
	r.validators[name] = v
	return nil
}

// MustRegisterResolver is like RegisterResolver but panics on error.
func (r *Registry) MustRegisterResolver(name string, res Resolver) *Registry {
	if err := r.RegisterResolver(name, res); err != nil {
		panic(err)
	}
	return r
}

// MustRegisterValidator is like RegisterValidator but panics on error.
func (r *Registry) MustRegisterValidator(name string, v Validator) *Registry {
	if err := r.RegisterValidator(name, v); err != nil {
		panic(err)
	}
	return r
}

// Resolver returns the resolver registered under name.
func (r *Registry) Resolver(name string) (Resolver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if res, ok := r.resolvers[name]; ok {
		return res, nil
	}
	return nil, &velograph.ResolverNotFoundError{Name: name}
}

// Validator returns the validator registered under name.
func (r *Registry) Validator(name string) (Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.validators[name]; ok {
		return v, nil
	}
	return nil, &velograph.ValidatorNotFoundError{Name: name}
}

// HasResolver reports whether a resolver is registered under name.
func (r *Registry) HasResolver(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resolvers[name]
	return ok
}

// HasValidator reports whether a validator is registered under name.
func (r *Registry) HasValidator(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.validators[name]
	return ok
}

// ResolverNames returns the registered resolver names, sorted.
func (r *Registry) ResolverNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.resolvers))
	for n := range r.resolvers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidatorNames returns the registered validator names, sorted.
func (r *Registry) ValidatorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.validators))
	for n := range r.validators {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
