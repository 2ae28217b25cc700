package database

import (
	"maps"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/value"
)

// IDField is the property holding a node or relationship identifier.
const IDField = "id"

// Node is a materialized node of one type. It is owned by the operation that
// produced it and never shared across requests.
type Node struct {
	TypeName string
	Fields   map[string]value.Value
}

// NewNode returns a node of type typeName holding fields.
func NewNode(typeName string, fields map[string]value.Value) *Node {
	if fields == nil {
		fields = map[string]value.Value{}
	}
	return &Node{TypeName: typeName, Fields: fields}
}

// ID returns the node identifier, or a velograph.MissingIdentifierError when
// the node has none.
func (n *Node) ID() (value.Value, error) {
	id, ok := n.Fields[IDField]
	if !ok || id.IsNull() {
		return value.Null(), &velograph.MissingIdentifierError{Type: n.TypeName}
	}
	return id, nil
}

// Field returns the value of a field, or Null.
func (n *Node) Field(name string) value.Value {
	return n.Fields[name]
}

// Clone returns a shallow copy of n with its own field map.
func (n *Node) Clone() *Node {
	return &Node{TypeName: n.TypeName, Fields: maps.Clone(n.Fields)}
}

// NodeRef refers to the source or destination of a relationship. Node is set
// once the engine has loaded the node for a selection.
type NodeRef struct {
	ID    value.Value
	Label string
	Node  *Node
}

// Rel is a materialized relationship.
type Rel struct {
	ID    value.Value
	Name  string
	Props map[string]value.Value
	Src   NodeRef
	Dst   NodeRef
}

// Prop returns the value of a relationship property, or Null.
func (r *Rel) Prop(name string) value.Value {
	return r.Props[name]
}

// Clone returns a copy of r with its own property map.
func (r *Rel) Clone() *Rel {
	out := *r
	out.Props = maps.Clone(r.Props)
	return &out
}

// IDKey returns a comparable key for an identifier.
func IDKey(id value.Value) string {
	return id.String()
}

// NodeIDs returns the identifiers of nodes, failing on the first node without
// one.
func NodeIDs(nodes []*Node) ([]value.Value, error) {
	ids := make([]value.Value, 0, len(nodes))
	for _, n := range nodes {
		id, err := n.ID()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
