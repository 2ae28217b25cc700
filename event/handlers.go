package event

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

type (
	// BeforeEngineBuildFunc may mutate the config before it is compiled.
	BeforeEngineBuildFunc func(cfg *config.Config) error

	// BeforeRequestFunc may replace the request context.
	BeforeRequestFunc func(ctx context.Context, rctx any, md Metadata) (any, error)

	// AfterRequestFunc may rewrite the output of a request.
	AfterRequestFunc func(ctx context.Context, rctx any, output value.Value) (value.Value, error)

	// BeforeFunc may rewrite the input of an operation.
	BeforeFunc func(ctx context.Context, input value.Value, f Facade) (value.Value, error)

	// AfterNodeFunc may filter or rewrite the nodes produced by an operation.
	AfterNodeFunc func(ctx context.Context, nodes []*database.Node, f Facade) ([]*database.Node, error)

	// AfterRelFunc may filter or rewrite the relationships produced by an
	// operation.
	AfterRelFunc func(ctx context.Context, rels []*database.Rel, f Facade) ([]*database.Rel, error)
)

// entry is one registered hook. An empty names list applies to every type.
type entry[F any] struct {
	names []string
	fn    F
}

func (e entry[F]) applies(name string) bool {
	return len(e.names) == 0 || slices.Contains(e.names, name)
}

// Handlers holds the registered hooks. Registration is not allowed once
// the engine has frozen the handlers.
type Handlers struct {
	mu     sync.RWMutex
	frozen bool

	build     []BeforeEngineBuildFunc
	beforeReq []BeforeRequestFunc
	afterReq  []AfterRequestFunc
	before    map[OpKind][]entry[BeforeFunc]
	afterNode map[OpKind][]entry[AfterNodeFunc]
	afterRel  map[OpKind][]entry[AfterRelFunc]
	subNode   map[OpKind][]entry[AfterNodeFunc]
	subRel    map[OpKind][]entry[AfterRelFunc]
}

// NewHandlers returns an empty set of handlers.
func NewHandlers() *Handlers {
	return &Handlers{
		before:    make(map[OpKind][]entry[BeforeFunc]),
		afterNode: make(map[OpKind][]entry[AfterNodeFunc]),
		afterRel:  make(map[OpKind][]entry[AfterRelFunc]),
		subNode:   make(map[OpKind][]entry[AfterNodeFunc]),
		subRel:    make(map[OpKind][]entry[AfterRelFunc]),
	}
}

// Freeze makes h read-only. Later registrations panic.
func (h *Handlers) Freeze() {
	h.mu.Lock()
	h.frozen = true
	h.mu.Unlock()
}

// Frozen reports whether h is read-only.
func (h *Handlers) Frozen() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frozen
}

func (h *Handlers) register(point Point, add func()) *Handlers {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.frozen {
		panic(fmt.Sprintf("event: %s hook registered after engine build", point))
	}
	add()
	return h
}

// OnBeforeEngineBuild registers a hook run once on a copy of the config
// before the engine compiles it.
func (h *Handlers) OnBeforeEngineBuild(f BeforeEngineBuildFunc) *Handlers {
	return h.register(BeforeEngineBuild, func() { h.build = append(h.build, f) })
}

// OnBeforeRequest registers a hook run once at the start of each request.
func (h *Handlers) OnBeforeRequest(f BeforeRequestFunc) *Handlers {
	return h.register(BeforeRequest, func() { h.beforeReq = append(h.beforeReq, f) })
}

// OnAfterRequest registers a hook run once at the end of each request.
func (h *Handlers) OnAfterRequest(f AfterRequestFunc) *Handlers {
	return h.register(AfterRequest, func() { h.afterReq = append(h.afterReq, f) })
}

func (h *Handlers) onBefore(kind OpKind, names []string, f BeforeFunc) *Handlers {
	return h.register(Op(kind, "").Before(), func() {
		h.before[kind] = append(h.before[kind], entry[BeforeFunc]{slices.Clone(names), f})
	})
}

func (h *Handlers) onAfterNode(kind OpKind, names []string, f AfterNodeFunc) *Handlers {
	return h.register(Op(kind, "").After(), func() {
		h.afterNode[kind] = append(h.afterNode[kind], entry[AfterNodeFunc]{slices.Clone(names), f})
	})
}

func (h *Handlers) onAfterRel(kind OpKind, names []string, f AfterRelFunc) *Handlers {
	return h.register(Op(kind, "").After(), func() {
		h.afterRel[kind] = append(h.afterRel[kind], entry[AfterRelFunc]{slices.Clone(names), f})
	})
}

func (h *Handlers) onAfterNodeSubgraph(kind OpKind, names []string, f AfterNodeFunc) *Handlers {
	return h.register(Op(kind, "").AfterSubgraph(), func() {
		h.subNode[kind] = append(h.subNode[kind], entry[AfterNodeFunc]{slices.Clone(names), f})
	})
}

func (h *Handlers) onAfterRelSubgraph(kind OpKind, names []string, f AfterRelFunc) *Handlers {
	return h.register(Op(kind, "").AfterSubgraph(), func() {
		h.subRel[kind] = append(h.subRel[kind], entry[AfterRelFunc]{slices.Clone(names), f})
	})
}

// OnBeforeNodeCreate registers f for the creation of nodes of the named
// types, or of every type when names is empty.
func (h *Handlers) OnBeforeNodeCreate(names []string, f BeforeFunc) *Handlers {
	return h.onBefore(CreateNode, names, f)
}

// OnBeforeNodeRead registers f for reads of nodes of the named types. The
// input is the node filter.
func (h *Handlers) OnBeforeNodeRead(names []string, f BeforeFunc) *Handlers {
	return h.onBefore(ReadNode, names, f)
}

// OnBeforeNodeUpdate registers f for updates of nodes of the named types.
func (h *Handlers) OnBeforeNodeUpdate(names []string, f BeforeFunc) *Handlers {
	return h.onBefore(UpdateNode, names, f)
}

// OnBeforeNodeDelete registers f for deletes of nodes of the named types.
func (h *Handlers) OnBeforeNodeDelete(names []string, f BeforeFunc) *Handlers {
	return h.onBefore(DeleteNode, names, f)
}

// OnBeforeRelCreate registers f for the creation of the relationships with
// the given full names.
func (h *Handlers) OnBeforeRelCreate(names []string, f BeforeFunc) *Handlers {
	return h.onBefore(CreateRel, names, f)
}

// OnBeforeRelRead registers f for relationship reads.
func (h *Handlers) OnBeforeRelRead(names []string, f BeforeFunc) *Handlers {
	return h.onBefore(ReadRel, names, f)
}

// OnBeforeRelUpdate registers f for relationship updates.
func (h *Handlers) OnBeforeRelUpdate(names []string, f BeforeFunc) *Handlers {
	return h.onBefore(UpdateRel, names, f)
}

// OnBeforeRelDelete registers f for relationship deletes.
func (h *Handlers) OnBeforeRelDelete(names []string, f BeforeFunc) *Handlers {
	return h.onBefore(DeleteRel, names, f)
}

// OnAfterNodeCreate registers f to see each created node once its
// properties are stored, before the relationships declared in its input are
// created. It also runs for NEW destination nodes.
func (h *Handlers) OnAfterNodeCreate(names []string, f AfterNodeFunc) *Handlers {
	return h.onAfterNode(CreateNode, names, f)
}

// OnAfterNodeRead registers f to see, and possibly filter, the nodes read.
// It also runs for destination nodes loaded through relationship fields.
func (h *Handlers) OnAfterNodeRead(names []string, f AfterNodeFunc) *Handlers {
	return h.onAfterNode(ReadNode, names, f)
}

// OnAfterNodeUpdate registers f to see the updated nodes once their
// properties are stored, before the relationship changes of the SET clause.
func (h *Handlers) OnAfterNodeUpdate(names []string, f AfterNodeFunc) *Handlers {
	return h.onAfterNode(UpdateNode, names, f)
}

// OnAfterNodeDelete registers f to see the nodes about to be reported as
// deleted. The nodes were read before the delete ran.
func (h *Handlers) OnAfterNodeDelete(names []string, f AfterNodeFunc) *Handlers {
	return h.onAfterNode(DeleteNode, names, f)
}

// OnAfterRelCreate registers f to see the created relationships.
func (h *Handlers) OnAfterRelCreate(names []string, f AfterRelFunc) *Handlers {
	return h.onAfterRel(CreateRel, names, f)
}

// OnAfterRelRead registers f to see the relationships read.
func (h *Handlers) OnAfterRelRead(names []string, f AfterRelFunc) *Handlers {
	return h.onAfterRel(ReadRel, names, f)
}

// OnAfterRelUpdate registers f to see the updated relationships.
func (h *Handlers) OnAfterRelUpdate(names []string, f AfterRelFunc) *Handlers {
	return h.onAfterRel(UpdateRel, names, f)
}

// OnAfterRelDelete registers f to see the deleted relationships.
func (h *Handlers) OnAfterRelDelete(names []string, f AfterRelFunc) *Handlers {
	return h.onAfterRel(DeleteRel, names, f)
}

// OnAfterNodeSubgraphCreate registers f to see the node returned by a
// create operation, once every node and relationship nested in its input has
// been created. It runs once per operation and never for NEW destinations.
func (h *Handlers) OnAfterNodeSubgraphCreate(names []string, f AfterNodeFunc) *Handlers {
	return h.onAfterNodeSubgraph(CreateNode, names, f)
}

// OnAfterNodeSubgraphUpdate registers f to see the nodes returned by an
// update operation, once the relationship changes of its SET clause are done.
func (h *Handlers) OnAfterNodeSubgraphUpdate(names []string, f AfterNodeFunc) *Handlers {
	return h.onAfterNodeSubgraph(UpdateNode, names, f)
}

// OnAfterRelSubgraphUpdate registers f to see the relationships returned by
// a relationship update operation. It runs once per operation, after the
// after_rel_update hooks.
func (h *Handlers) OnAfterRelSubgraphUpdate(names []string, f AfterRelFunc) *Handlers {
	return h.onAfterRelSubgraph(UpdateRel, names, f)
}

// HookError is returned by the runners when a hook fails.
type HookError struct {
	Point Point
	Name  string
	Err   error
}

func (e *HookError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("velograph: %s hook: %v", e.Point, e.Err)
	}
	return fmt.Sprintf("velograph: %s hook on %s: %v", e.Point, e.Name, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// IsHookError reports whether err was returned by a failing hook.
func IsHookError(err error) bool {
	var e *HookError
	return errors.As(err, &e)
}

func applicable[F any](es []entry[F], name string) []F {
	var out []F
	for _, e := range es {
		if e.applies(name) {
			out = append(out, e.fn)
		}
	}
	return out
}

// RunBeforeEngineBuild runs the before_engine_build hooks on cfg.
func (h *Handlers) RunBeforeEngineBuild(cfg *config.Config) error {
	h.mu.RLock()
	fs := slices.Clone(h.build)
	h.mu.RUnlock()
	for _, f := range fs {
		if err := f(cfg); err != nil {
			return &HookError{Point: BeforeEngineBuild, Err: err}
		}
	}
	return nil
}

// RunBeforeRequest runs the before_request hooks, threading the request
// context through them.
func (h *Handlers) RunBeforeRequest(ctx context.Context, rctx any, md Metadata) (any, error) {
	h.mu.RLock()
	fs := slices.Clone(h.beforeReq)
	h.mu.RUnlock()
	for _, f := range fs {
		var err error
		if rctx, err = f(ctx, rctx, md); err != nil {
			return nil, &HookError{Point: BeforeRequest, Err: err}
		}
	}
	return rctx, nil
}

// RunAfterRequest runs the after_request hooks on the request output.
func (h *Handlers) RunAfterRequest(ctx context.Context, rctx any, output value.Value) (value.Value, error) {
	h.mu.RLock()
	fs := slices.Clone(h.afterReq)
	h.mu.RUnlock()
	for _, f := range fs {
		var err error
		if output, err = f(ctx, rctx, output); err != nil {
			return value.Null(), &HookError{Point: AfterRequest, Err: err}
		}
	}
	return output, nil
}

// RunBefore runs the before hooks of f.Op() on input.
func (h *Handlers) RunBefore(ctx context.Context, input value.Value, f Facade) (value.Value, error) {
	op := f.Op()
	h.mu.RLock()
	fs := applicable(h.before[op.Kind], op.Name)
	h.mu.RUnlock()
	for _, fn := range fs {
		var err error
		if input, err = fn(ctx, input, f); err != nil {
			return value.Null(), &HookError{Point: op.Before(), Name: op.Name, Err: err}
		}
	}
	return input, nil
}

// RunAfterNodes runs the node after hooks of f.Op().
func (h *Handlers) RunAfterNodes(ctx context.Context, nodes []*database.Node, f Facade) ([]*database.Node, error) {
	return runAfter(ctx, h, h.afterNode, f.Op().After(), nodes, f)
}

// RunAfterRels runs the relationship after hooks of f.Op().
func (h *Handlers) RunAfterRels(ctx context.Context, rels []*database.Rel, f Facade) ([]*database.Rel, error) {
	return runAfter(ctx, h, h.afterRel, f.Op().After(), rels, f)
}

// RunAfterNodeSubgraph runs the node subgraph hooks of f.Op().
func (h *Handlers) RunAfterNodeSubgraph(ctx context.Context, nodes []*database.Node, f Facade) ([]*database.Node, error) {
	return runAfter(ctx, h, h.subNode, f.Op().AfterSubgraph(), nodes, f)
}

// RunAfterRelSubgraph runs the relationship subgraph hooks of f.Op().
func (h *Handlers) RunAfterRelSubgraph(ctx context.Context, rels []*database.Rel, f Facade) ([]*database.Rel, error) {
	return runAfter(ctx, h, h.subRel, f.Op().AfterSubgraph(), rels, f)
}

// runAfter threads items through the hooks in m applying to f.Op().
func runAfter[T any, F ~func(context.Context, []T, Facade) ([]T, error)](ctx context.Context, h *Handlers, m map[OpKind][]entry[F], point Point, items []T, f Facade) ([]T, error) {
	op := f.Op()
	h.mu.RLock()
	fs := applicable(m[op.Kind], op.Name)
	h.mu.RUnlock()
	for _, fn := range fs {
		var err error
		if items, err = fn(ctx, items, f); err != nil {
			return nil, &HookError{Point: point, Name: op.Name, Err: err}
		}
	}
	return items, nil
}

// HasBefore reports whether any before hook applies to op.
func (h *Handlers) HasBefore(op CrudOperation) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(applicable(h.before[op.Kind], op.Name)) > 0
}

// HasAfter reports whether any after hook applies to op.
func (h *Handlers) HasAfter(op CrudOperation) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if op.Kind.IsRel() {
		return len(applicable(h.afterRel[op.Kind], op.Name)) > 0
	}
	return len(applicable(h.afterNode[op.Kind], op.Name)) > 0
}
