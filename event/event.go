// Package event holds the hook pipeline run around every request and every
// CRUD primitive of the engine.
//
// Hooks are registered on a Handlers value before the engine is built, per
// type or relationship full name, or globally with an empty name list. At
// each hook point the applicable hooks run sequentially in registration
// order; the first error aborts the run and the enclosing transaction.
package event

import (
	"context"
	"fmt"

	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

// OpKind is the kind of a CRUD primitive.
type OpKind int

// CRUD primitive kinds.
const (
	CreateNode OpKind = iota
	ReadNode
	UpdateNode
	DeleteNode
	CreateRel
	ReadRel
	UpdateRel
	DeleteRel
)

var kindNames = [...]string{
	CreateNode: "CreateNode",
	ReadNode:   "ReadNode",
	UpdateNode: "UpdateNode",
	DeleteNode: "DeleteNode",
	CreateRel:  "CreateRel",
	ReadRel:    "ReadRel",
	UpdateRel:  "UpdateRel",
	DeleteRel:  "DeleteRel",
}

func (k OpKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// IsRel reports whether k operates on relationships.
func (k OpKind) IsRel() bool { return k >= CreateRel && k <= DeleteRel }

// IsRead reports whether k is a read.
func (k OpKind) IsRead() bool { return k == ReadNode || k == ReadRel }

// IsMutation reports whether k changes data.
func (k OpKind) IsMutation() bool { return !k.IsRead() }

// verb returns create, read, update or delete.
func (k OpKind) verb() string {
	switch k {
	case CreateNode, CreateRel:
		return "create"
	case ReadNode, ReadRel:
		return "read"
	case UpdateNode, UpdateRel:
		return "update"
	default:
		return "delete"
	}
}

// CrudOperation identifies one CRUD primitive. Name is the node type name or
// the relationship full name, such as ProjectOwner.
type CrudOperation struct {
	Kind OpKind
	Name string
}

// Op returns a CrudOperation.
func Op(kind OpKind, name string) CrudOperation {
	return CrudOperation{Kind: kind, Name: name}
}

func (o CrudOperation) String() string {
	return o.Kind.String() + "(" + o.Name + ")"
}

// Point names a hook point, such as before_node_create.
type Point string

// Request and build hook points.
const (
	BeforeEngineBuild Point = "before_engine_build"
	BeforeRequest     Point = "before_request"
	AfterRequest      Point = "after_request"
)

// Before returns the hook point run before o.
func (o CrudOperation) Before() Point { return o.point("before", "") }

// After returns the hook point run after o.
func (o CrudOperation) After() Point { return o.point("after", "") }

// AfterSubgraph returns the hook point run once o and the nested
// operations of its input are done.
func (o CrudOperation) AfterSubgraph() Point { return o.point("after", "subgraph_") }

func (o CrudOperation) point(when, scope string) Point {
	what := "node"
	if o.Kind.IsRel() {
		what = "rel"
	}
	return Point(when + "_" + what + "_" + scope + o.Kind.verb())
}

// Metadata carries transport request metadata, such as HTTP headers, into
// before_request hooks.
type Metadata map[string]string

// Facade is handed to CRUD hooks. Reads and queries run inside the
// transaction of the operation being intercepted, and do not trigger hooks.
type Facade interface {
	// Op is the operation being intercepted.
	Op() CrudOperation

	// RequestContext returns the application value of the request.
	RequestContext() any

	// GlobalContext returns the application value shared by every request.
	GlobalContext() any

	// ReadNodes reads the nodes of typeName matching a node filter. A Null
	// filter matches every node.
	ReadNodes(ctx context.Context, typeName string, filter value.Value) ([]*database.Node, error)

	// ReadRels reads the relationships with the given full name matching a
	// relationship filter.
	ReadRels(ctx context.Context, relFullName string, filter value.Value) ([]*database.Rel, error)
}
