// Package privacy provides sets of types and helpers for writing privacy
// rules, and installs them as before hooks of the event pipeline.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/engine"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/value"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from policy rules to indicate
// how the policy evaluation should proceed. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("velograph/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("velograph/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("velograph/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Request is the intercepted operation a rule decides on.
type Request struct {
	// Op is the CRUD primitive, such as UpdateNode(Project).
	Op event.CrudOperation

	// Input is the operation input as the before hooks see it: the node
	// filter of a read, the node input of a create, and the MATCH/SET or
	// MATCH/DELETE object of an update or delete.
	Input value.Value

	// Facade reads inside the transaction of the operation. It is nil when
	// a rule is evaluated outside of the pipeline.
	Facade event.Facade
}

// Viewer returns the viewer of ctx, or the request context when it
// implements Viewer.
func (r *Request) Viewer(ctx context.Context) Viewer {
	if v := ViewerFromContext(ctx); v != nil {
		return v
	}
	if r.Facade == nil {
		return nil
	}
	v, _ := r.Facade.RequestContext().(Viewer)
	return v
}

// Field returns the value the operation writes to prop: a field of the
// create input, or of the SET object of an update.
func (r *Request) Field(prop string) (value.Value, bool) {
	in := r.Input
	switch r.Op.Kind {
	case event.CreateNode:
	case event.UpdateNode, event.UpdateRel:
		in, _ = in.Get(engine.KeywordSet)
	default:
		return value.Null(), false
	}
	return in.Get(prop)
}

// Matched reads the nodes an update or delete of a node type applies to.
func (r *Request) Matched(ctx context.Context) ([]*database.Node, error) {
	if r.Facade == nil || r.Op.Kind.IsRel() {
		return nil, nil
	}
	switch r.Op.Kind {
	case event.UpdateNode, event.DeleteNode:
		match, _ := r.Input.Get(engine.KeywordMatch)
		return r.Facade.ReadNodes(ctx, r.Op.Name, match)
	}
	return nil, nil
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context evaluation function.
// Returning nil is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return RuleFunc(func(ctx context.Context, _ *Request) error {
		return eval(ctx)
	})
}

type (
	// QueryRule decides whether a read is allowed.
	QueryRule interface {
		EvalQuery(context.Context, *Request) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule decides whether a create, update or delete is allowed.
	MutationRule interface {
		EvalMutation(context.Context, *Request) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// RuleFunc is an adapter which allows the use of ordinary functions as
// query and mutation rules.
type RuleFunc func(context.Context, *Request) error

// EvalQuery returns f(ctx, r).
func (f RuleFunc) EvalQuery(ctx context.Context, r *Request) error { return f(ctx, r) }

// EvalMutation returns f(ctx, r).
func (f RuleFunc) EvalMutation(ctx context.Context, r *Request) error { return f(ctx, r) }

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, *Request) error

// EvalMutation returns f(ctx, r).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, r *Request) error {
	return f(ctx, r)
}

// OnOperation evaluates rule only on the given kinds of operation.
func OnOperation(rule MutationRule, kinds ...event.OpKind) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, r *Request) error {
		if slices.Contains(kinds, r.Op.Kind) {
			return rule.EvalMutation(ctx, r)
		}
		return Skip
	})
}

// DenyOperationRule returns a rule denying the given kinds of operation.
func DenyOperationRule(kinds ...event.OpKind) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, r *Request) error {
		return Denyf("velograph/privacy: operation %s is not allowed", r.Op)
	})
	return OnOperation(rule, kinds...)
}

// AllowOperationRule returns a rule allowing the given kinds of operation.
func AllowOperationRule(kinds ...event.OpKind) MutationRule {
	return OnOperation(MutationRuleFunc(func(context.Context, *Request) error {
		return Allow
	}), kinds...)
}

// Policy groups query and mutation policies.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery forwards evaluation to the query policy.
func (p Policy) EvalQuery(ctx context.Context, r *Request) error {
	return p.Query.EvalQuery(ctx, r)
}

// EvalMutation forwards evaluation to the mutation policy.
func (p Policy) EvalMutation(ctx context.Context, r *Request) error {
	return p.Mutation.EvalMutation(ctx, r)
}

// Register installs p as before hooks on the node types and relationship
// full names listed, or on every one when names is empty. Reads evaluate
// the query policy and the other operations the mutation policy. A denied
// operation fails with a velograph.PrivacyError and its transaction is
// rolled back.
func (p Policy) Register(h *event.Handlers, names ...string) *event.Handlers {
	if len(p.Query) > 0 {
		q := p.hook(p.Query.EvalQuery)
		h.OnBeforeNodeRead(names, q).OnBeforeRelRead(names, q)
	}
	if len(p.Mutation) > 0 {
		m := p.hook(p.Mutation.EvalMutation)
		h.OnBeforeNodeCreate(names, m).
			OnBeforeNodeUpdate(names, m).
			OnBeforeNodeDelete(names, m).
			OnBeforeRelCreate(names, m).
			OnBeforeRelUpdate(names, m).
			OnBeforeRelDelete(names, m)
	}
	return h
}

func (Policy) hook(eval func(context.Context, *Request) error) event.BeforeFunc {
	return func(ctx context.Context, in value.Value, f event.Facade) (value.Value, error) {
		r := &Request{Op: f.Op(), Input: in, Facade: f}
		if err := Decide(ctx, r, eval); err != nil {
			return value.Null(), velograph.NewPrivacyError(r.Op.Name, r.Op.Kind.String(), err)
		}
		return in, nil
	}
}

// Decide evaluates a policy on r and returns nil when the operation may
// proceed. A decision attached to ctx with DecisionContext takes
// precedence. A policy whose rules all skip allows the operation.
func Decide(ctx context.Context, r *Request, eval func(context.Context, *Request) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	switch decision := eval(ctx, r); {
	case decision == nil || errors.Is(decision, Skip) || errors.Is(decision, Allow):
		return nil
	default:
		return decision
	}
}

// EvalQuery evaluates r against a query policy. It returns the first
// decision that is not a Skip.
func (policies QueryPolicy) EvalQuery(ctx context.Context, r *Request) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, r); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates r against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, r *Request) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, r); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, *Request) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, *Request) error {
	return f.decision
}
