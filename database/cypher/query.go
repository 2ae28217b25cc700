package cypher

import (
	"fmt"
	"strings"

	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

// builder assembles one Cypher statement. Identifiers (labels, relationship
// types, property names) are validated by the config package and quoted;
// values always travel as parameters.
type builder struct {
	sb     strings.Builder
	params map[string]any
	n      int
	vars   int
}

func newBuilder() *builder {
	return &builder{params: map[string]any{}}
}

// param binds v under a fresh name and returns its reference.
func (b *builder) param(v value.Value) (string, error) {
	x, err := toNative(v)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("p%d", b.n)
	b.n++
	b.params[name] = x
	return "$" + name, nil
}

// fresh returns a new variable name with prefix.
func (b *builder) fresh(prefix string) string {
	b.vars++
	return fmt.Sprintf("%s%d", prefix, b.vars)
}

func (b *builder) write(parts ...string) *builder {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
	return b
}

func (b *builder) String() string { return b.sb.String() }

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (b *builder) ids(ids []value.Value) (string, error) {
	arr := make([]value.Value, len(ids))
	copy(arr, ids)
	return b.param(value.Array(arr...))
}

// predicate renders one property comparison on variable v.
func (b *builder) predicate(v string, p database.Predicate) (string, error) {
	ref, err := b.param(p.Value)
	if err != nil {
		return "", err
	}
	prop := v + "." + quote(p.Prop)
	switch p.Op {
	case config.EQ:
		return prop + " = " + ref, nil
	case config.NOTEQ:
		return prop + " <> " + ref, nil
	case config.IN:
		return prop + " IN " + ref, nil
	case config.NOTIN:
		return "NOT " + prop + " IN " + ref, nil
	case config.CONTAINS:
		return contains(prop, ref), nil
	case config.NOTCONTAINS:
		return "NOT " + contains(prop, ref), nil
	case config.GT:
		return prop + " > " + ref, nil
	case config.GTE:
		return prop + " >= " + ref, nil
	case config.LT:
		return prop + " < " + ref, nil
	case config.LTE:
		return prop + " <= " + ref, nil
	}
	return "", fmt.Errorf("cypher: unknown operator %q", p.Op)
}

// contains is a substring test on strings and a membership test on lists.
func contains(prop, ref string) string {
	return "(CASE WHEN " + prop + " IS :: STRING THEN " + prop + " CONTAINS " + ref + " ELSE " + ref + " IN " + prop + " END)"
}

// nodeConds renders the conditions of q on variable v. The label itself is
// matched by the caller's pattern unless withLabel is set.
func (b *builder) nodeConds(v string, q *database.NodeQuery, withLabel bool) ([]string, error) {
	var conds []string
	if withLabel {
		conds = append(conds, v+":"+quote(q.Label))
	}
	if q.ByID {
		ref, err := b.ids(q.IDs)
		if err != nil {
			return nil, err
		}
		conds = append(conds, v+".id IN "+ref)
	}
	for _, p := range q.Predicates {
		c, err := b.predicate(v, p)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	for _, rq := range q.Rels {
		c, err := b.exists(v, rq)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// exists renders a nested relationship filter starting at src.
func (b *builder) exists(src string, q *database.RelQuery) (string, error) {
	r, d := b.fresh("r"), b.fresh("d")
	conds, err := b.relConds(r, d, q)
	if err != nil {
		return "", err
	}
	return "EXISTS { MATCH (" + src + ")-[" + r + ":" + quote(q.Name) + "]->(" + d + ")" + where(conds) + " }", nil
}

// relConds renders the relationship and destination conditions of q. Source
// conditions are added by matchRels.
func (b *builder) relConds(r, d string, q *database.RelQuery) ([]string, error) {
	var conds []string
	if q.ByID {
		ref, err := b.ids(q.IDs)
		if err != nil {
			return nil, err
		}
		conds = append(conds, r+".id IN "+ref)
	}
	for _, p := range q.Predicates {
		c, err := b.predicate(r, p)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	if q.ByDst {
		ref, err := b.ids(q.DstIDs)
		if err != nil {
			return nil, err
		}
		conds = append(conds, d+".id IN "+ref)
	}
	if len(q.DstLabels) > 0 {
		alts := make([]string, len(q.DstLabels))
		for i, l := range q.DstLabels {
			alts[i] = d + ":" + quote(l)
		}
		conds = append(conds, "("+strings.Join(alts, " OR ")+")")
	}
	if len(q.Dst) > 0 {
		alts := make([]string, 0, len(q.Dst))
		for _, dq := range q.Dst {
			dc, err := b.nodeConds(d, dq, true)
			if err != nil {
				return nil, err
			}
			alts = append(alts, "("+strings.Join(dc, " AND ")+")")
		}
		conds = append(conds, "("+strings.Join(alts, " OR ")+")")
	}
	return conds, nil
}

// matchNodes writes "MATCH (n:L) WHERE ...".
func (b *builder) matchNodes(q *database.NodeQuery) error {
	conds, err := b.nodeConds("n", q, false)
	if err != nil {
		return err
	}
	b.write("MATCH (n:", quote(q.Label), ")", where(conds))
	return nil
}

// matchRels writes "MATCH (src:S)-[r:R]->(dst) WHERE ...".
func (b *builder) matchRels(q *database.RelQuery) error {
	var conds []string
	if q.BySrc {
		ref, err := b.ids(q.SrcIDs)
		if err != nil {
			return err
		}
		conds = append(conds, "src.id IN "+ref)
	}
	if q.Src != nil {
		sc, err := b.nodeConds("src", q.Src, false)
		if err != nil {
			return err
		}
		conds = append(conds, sc...)
	}
	rc, err := b.relConds("r", "dst", q)
	if err != nil {
		return err
	}
	conds = append(conds, rc...)
	b.write("MATCH (src:", quote(q.SrcLabel), ")-[r:", quote(q.Name), "]->(dst)", where(conds))
	return nil
}

const (
	returnNode = " RETURN n"
	returnRel  = " RETURN r, src.id AS srcID, dst.id AS dstID, labels(dst)[0] AS dstLabel"
)

func createNode(label string, props map[string]value.Value) (*builder, error) {
	b := newBuilder()
	ref, err := b.param(value.Map(props))
	if err != nil {
		return nil, err
	}
	b.write("CREATE (n:", quote(label), ") SET n = ", ref, returnNode)
	return b, nil
}

func readNodes(q *database.NodeQuery) (*builder, error) {
	b := newBuilder()
	if err := b.matchNodes(q); err != nil {
		return nil, err
	}
	b.write(returnNode)
	return b, nil
}

func updateNodes(q *database.NodeQuery, props map[string]value.Value) (*builder, error) {
	b := newBuilder()
	if err := b.matchNodes(q); err != nil {
		return nil, err
	}
	ref, err := b.param(value.Map(props))
	if err != nil {
		return nil, err
	}
	b.write(" SET n += ", ref, returnNode)
	return b, nil
}

func deleteNodes(q *database.NodeQuery) (*builder, error) {
	b := newBuilder()
	if err := b.matchNodes(q); err != nil {
		return nil, err
	}
	b.write(" DETACH DELETE n RETURN count(n) AS count")
	return b, nil
}

func createRels(c *database.RelCreate) (*builder, error) {
	b := newBuilder()
	src, err := b.ids(c.SrcIDs)
	if err != nil {
		return nil, err
	}
	dst, err := b.ids(c.DstIDs)
	if err != nil {
		return nil, err
	}
	props, err := b.param(value.Map(c.Props))
	if err != nil {
		return nil, err
	}
	b.write(
		"MATCH (src:", quote(c.SrcLabel), ") WHERE src.id IN ", src,
		" MATCH (dst:", quote(c.DstLabel), ") WHERE dst.id IN ", dst,
		" CREATE (src)-[r:", quote(c.Name), "]->(dst) SET r = ", props, ", r.id = randomUUID()",
		returnRel,
	)
	return b, nil
}

func readRels(q *database.RelQuery) (*builder, error) {
	b := newBuilder()
	if err := b.matchRels(q); err != nil {
		return nil, err
	}
	b.write(returnRel)
	return b, nil
}

func updateRels(q *database.RelQuery, props map[string]value.Value) (*builder, error) {
	b := newBuilder()
	if err := b.matchRels(q); err != nil {
		return nil, err
	}
	ref, err := b.param(value.Map(props))
	if err != nil {
		return nil, err
	}
	b.write(" SET r += ", ref, returnRel)
	return b, nil
}

func deleteRels(q *database.RelQuery) (*builder, error) {
	b := newBuilder()
	if err := b.matchRels(q); err != nil {
		return nil, err
	}
	b.write(" DELETE r RETURN count(r) AS count")
	return b, nil
}
