package gremlin

import (
	"fmt"
	"math"
	"strings"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

const (
	nodeProjection = ".project('nID','nLabel','nProps').by(id()).by(label()).by(valueMap())"
	relProjection  = ".project('rID','rProps','srcID','srcLabel','dstID','dstLabel')" +
		".by(id()).by(valueMap()).by(outV().id()).by(outV().label()).by(inV().id()).by(inV().label())"
)

// script assembles a Groovy traversal with bound values.
type script struct {
	sb       strings.Builder
	bindings map[string]any
	n        int
}

func newScript() *script {
	return &script{bindings: map[string]any{}}
}

// bind binds v under a fresh name and returns the name.
func (s *script) bind(v value.Value) (string, error) {
	x, err := toNative(v)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("b%d", s.n)
	s.n++
	s.bindings[name] = x
	return name, nil
}

func (s *script) write(parts ...string) {
	for _, p := range parts {
		s.sb.WriteString(p)
	}
}

func (s *script) String() string { return s.sb.String() }

// lit renders an identifier as a Groovy string literal. Identifiers are
// validated by the config package.
func lit(ident string) string {
	return "'" + strings.ReplaceAll(ident, "'", `\'`) + "'"
}

func lits(idents []string) string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = lit(id)
	}
	return strings.Join(out, ",")
}

func (s *script) ids(ids []value.Value) (string, error) {
	return s.bind(value.Array(ids...))
}

// predicate renders a has() step. The identifier is not a property on
// TinkerPop servers and is matched with hasId().
func (s *script) predicate(p database.Predicate) (string, error) {
	b, err := s.bind(p.Value)
	if err != nil {
		return "", err
	}
	var pred string
	switch p.Op {
	case config.EQ:
		pred = "eq(" + b + ")"
	case config.NOTEQ:
		pred = "neq(" + b + ")"
	case config.IN:
		pred = "within(" + b + ")"
	case config.NOTIN:
		pred = "without(" + b + ")"
	case config.CONTAINS:
		pred = "containing(" + b + ")"
	case config.NOTCONTAINS:
		pred = "notContaining(" + b + ")"
	case config.GT:
		pred = "gt(" + b + ")"
	case config.GTE:
		pred = "gte(" + b + ")"
	case config.LT:
		pred = "lt(" + b + ")"
	case config.LTE:
		pred = "lte(" + b + ")"
	default:
		return "", fmt.Errorf("gremlin: unknown operator %q", p.Op)
	}
	if p.Prop == database.IDField {
		return ".hasId(" + pred + ")", nil
	}
	return ".has(" + lit(p.Prop) + "," + pred + ")", nil
}

// nodeSteps renders the filter steps of q after its label step.
func (s *script) nodeSteps(q *database.NodeQuery) (string, error) {
	var sb strings.Builder
	if q.ByID {
		b, err := s.ids(q.IDs)
		if err != nil {
			return "", err
		}
		sb.WriteString(".hasId(within(" + b + "))")
	}
	for _, p := range q.Predicates {
		st, err := s.predicate(p)
		if err != nil {
			return "", err
		}
		sb.WriteString(st)
	}
	for _, rq := range q.Rels {
		st, err := s.relSteps(rq)
		if err != nil {
			return "", err
		}
		sb.WriteString(".where(__.outE(" + lit(rq.Name) + ")" + st + ")")
	}
	return sb.String(), nil
}

// relSteps renders the edge and destination filter steps of q, starting
// at an edge and ending at the destination vertex.
func (s *script) relSteps(q *database.RelQuery) (string, error) {
	var sb strings.Builder
	if q.ByID {
		b, err := s.ids(q.IDs)
		if err != nil {
			return "", err
		}
		sb.WriteString(".hasId(within(" + b + "))")
	}
	for _, p := range q.Predicates {
		st, err := s.predicate(p)
		if err != nil {
			return "", err
		}
		sb.WriteString(st)
	}
	sb.WriteString(".inV()")
	if len(q.DstLabels) > 0 {
		sb.WriteString(".hasLabel(" + lits(q.DstLabels) + ")")
	}
	if q.ByDst {
		b, err := s.ids(q.DstIDs)
		if err != nil {
			return "", err
		}
		sb.WriteString(".hasId(within(" + b + "))")
	}
	switch len(q.Dst) {
	case 0:
	case 1:
		st, err := s.nodeSteps(q.Dst[0])
		if err != nil {
			return "", err
		}
		sb.WriteString(".hasLabel(" + lit(q.Dst[0].Label) + ")" + st)
	default:
		alts := make([]string, len(q.Dst))
		for i, dq := range q.Dst {
			st, err := s.nodeSteps(dq)
			if err != nil {
				return "", err
			}
			alts[i] = "__.hasLabel(" + lit(dq.Label) + ")" + st
		}
		sb.WriteString(".or(" + strings.Join(alts, ",") + ")")
	}
	return sb.String(), nil
}

// vertices writes "g.V().hasLabel(L)..." for q.
func (s *script) vertices(q *database.NodeQuery) error {
	st, err := s.nodeSteps(q)
	if err != nil {
		return err
	}
	s.write("g.V().hasLabel(", lit(q.Label), ")", st)
	return nil
}

// edges writes a traversal ending at the edges matched by q.
func (s *script) edges(q *database.RelQuery) error {
	s.write("g.V().hasLabel(", lit(q.SrcLabel), ")")
	if q.BySrc {
		b, err := s.ids(q.SrcIDs)
		if err != nil {
			return err
		}
		s.write(".hasId(within(", b, "))")
	}
	if q.Src != nil {
		st, err := s.nodeSteps(q.Src)
		if err != nil {
			return err
		}
		s.write(st)
	}
	st, err := s.relSteps(q)
	if err != nil {
		return err
	}
	s.write(".outE(", lit(q.Name), ").as('r')", st, ".select('r')")
	return nil
}

// properties writes property steps. Lists become one list-cardinality
// property per element after dropping the old values; Null drops the
// property.
func (s *script) properties(props map[string]value.Value, vertex, replace bool) error {
	for _, k := range sortedKeys(props) {
		v := props[k]
		if k == database.IDField {
			continue
		}
		if v.IsNull() {
			if replace {
				s.write(".sideEffect(properties(", lit(k), ").drop())")
			}
			continue
		}
		if arr, err := v.AsArray(); err == nil && vertex {
			if replace {
				s.write(".sideEffect(properties(", lit(k), ").drop())")
			}
			for _, e := range arr {
				b, err := s.bind(e)
				if err != nil {
					return err
				}
				s.write(".property(list,", lit(k), ",", b, ")")
			}
			continue
		}
		b, err := s.bind(v)
		if err != nil {
			return err
		}
		if vertex && replace {
			s.write(".property(single,", lit(k), ",", b, ")")
		} else {
			s.write(".property(", lit(k), ",", b, ")")
		}
	}
	return nil
}

func intRange(u uint64) error {
	if u > math.MaxInt64 {
		return velograph.NewUnsupportedOperationError(Backend, fmt.Sprintf("integer %d out of range", u))
	}
	return nil
}
