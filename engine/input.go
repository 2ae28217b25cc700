package engine

import (
	"slices"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/schema"
	"github.com/syssam/velograph/value"
)

// Keywords of operation inputs and filters.
const (
	KeywordMatch    = "MATCH"
	KeywordSet      = "SET"
	KeywordCreate   = "CREATE"
	KeywordDelete   = "DELETE"
	KeywordAdd      = "ADD"
	KeywordUpdate   = "UPDATE"
	KeywordNew      = "NEW"
	KeywordExisting = "EXISTING"
	KeywordProps    = "props"
	KeywordDst      = "dst"
	KeywordSrc      = "src"
)

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// asMap returns the entries of an object input. Null is an empty object.
func asMap(v value.Value, path string) (map[string]value.Value, error) {
	if v.IsNull() {
		return map[string]value.Value{}, nil
	}
	m, err := v.AsMap()
	if err != nil {
		return nil, velograph.NewInputError(path, "expected an object, got %s", v.Kind())
	}
	return m, nil
}

// onlyKeys fails on the first key of m not in allowed.
func onlyKeys(m map[string]value.Value, path string, allowed ...string) error {
	for _, k := range value.Map(m).Keys() {
		if !slices.Contains(allowed, k) {
			return velograph.NewInputError(join(path, k), "unknown field")
		}
	}
	return nil
}

// elems returns the inputs of a relationship field, which holds one input or
// a list of them. A list is rejected when list is false.
func elems(v value.Value, list bool, path string) ([]value.Value, error) {
	if v.Kind() != value.KindArray {
		return []value.Value{v}, nil
	}
	if !list {
		return nil, velograph.NewInputError(path, "relationship holds a single node, got a list")
	}
	arr, _ := v.AsArray()
	return arr, nil
}

// choice returns the single key set in m among keys.
func choice(m map[string]value.Value, path string, keys ...string) (string, error) {
	if err := onlyKeys(m, path, keys...); err != nil {
		return "", err
	}
	if len(m) != 1 {
		return "", velograph.NewInputError(path, "expected exactly one of %v", keys)
	}
	for k := range m {
		return k, nil
	}
	return "", nil
}

// checkProp checks one property value of a create or update input.
func checkProp(p *schema.Prop, v value.Value, create bool, path string) error {
	switch {
	case p.Computed():
		return velograph.NewInputError(path, "%s is computed and cannot be set", p.Name)
	case create && !p.Uses.Create:
		return velograph.NewInputError(path, "%s cannot be set on create", p.Name)
	case !create && !p.Uses.Update:
		return velograph.NewInputError(path, "%s cannot be updated", p.Name)
	case !p.Accepts(v):
		if v.IsNull() {
			return velograph.NewInputError(path, "%s is required", p.Name)
		}
		return velograph.NewInputError(path, "expected %s, got %s", typeString(p), v.Kind())
	}
	return nil
}

func typeString(p *schema.Prop) string {
	if p.List {
		return "[" + p.Type + "]"
	}
	return p.Type
}

// checkRequired fails on the first required property missing from m.
func checkRequired(props []*schema.Prop, m map[string]value.Value, path string) error {
	for _, p := range props {
		if !p.Required || p.Computed() || !p.Uses.Create {
			continue
		}
		if v, ok := m[p.Name]; !ok || (v.IsNull() && !p.List) {
			return velograph.NewInputError(join(path, p.Name), "%s is required", p.Name)
		}
	}
	return nil
}

// runValidators runs the validator of every property present in m, in
// property declaration order, with the whole input object.
func (x *exec) runValidators(props []*schema.Prop, m map[string]value.Value) error {
	input := value.Map(m)
	for _, p := range props {
		if p.Validator == "" {
			continue
		}
		if _, ok := m[p.Name]; !ok {
			continue
		}
		if err := x.validate(p.Validator, input); err != nil {
			return err
		}
	}
	return nil
}

// checkCreate validates a node create input, including nested
// relationship inputs and the nodes they create.
func (x *exec) checkCreate(t *schema.Type, in value.Value, path string) error {
	m, err := asMap(in, path)
	if err != nil {
		return err
	}
	for _, k := range value.Map(m).Keys() {
		v, p := m[k], join(path, k)
		if k == database.IDField {
			return velograph.NewInputError(p, "identifiers are assigned by the backend")
		}
		if r, err := t.Rel(k); err == nil {
			es, err := elems(v, r.List, p)
			if err != nil {
				return err
			}
			for _, e := range es {
				if err := x.checkRelCreate(r, e, p); err != nil {
					return err
				}
			}
			continue
		}
		prop, err := t.Prop(k)
		if err != nil {
			return velograph.NewInputError(p, "unknown field")
		}
		if err := checkProp(prop, v, true, p); err != nil {
			return err
		}
	}
	if err := checkRequired(t.Props, m, path); err != nil {
		return err
	}
	return x.runValidators(t.Props, m)
}

// checkSet validates the SET clause of a node update.
func (x *exec) checkSet(t *schema.Type, set value.Value, path string) error {
	m, err := asMap(set, path)
	if err != nil {
		return err
	}
	for _, k := range value.Map(m).Keys() {
		v, p := m[k], join(path, k)
		if k == database.IDField {
			return velograph.NewInputError(p, "identifiers cannot be updated")
		}
		if r, err := t.Rel(k); err == nil {
			es, err := elems(v, true, p)
			if err != nil {
				return err
			}
			for _, e := range es {
				if err := x.checkRelChange(r, e, p); err != nil {
					return err
				}
			}
			continue
		}
		prop, err := t.Prop(k)
		if err != nil {
			return velograph.NewInputError(p, "unknown field")
		}
		if err := checkProp(prop, v, false, p); err != nil {
			return err
		}
	}
	return x.runValidators(t.Props, m)
}

// checkRelCreate validates {props, dst: {Type: {NEW | EXISTING}}}.
func (x *exec) checkRelCreate(r *schema.Rel, in value.Value, path string) error {
	m, err := asMap(in, path)
	if err != nil {
		return err
	}
	if err := onlyKeys(m, path, KeywordProps, KeywordDst); err != nil {
		return err
	}
	if err := x.checkRelProps(r, m[KeywordProps], true, join(path, KeywordProps)); err != nil {
		return err
	}
	dt, dst, err := x.dst(r, m[KeywordDst], join(path, KeywordDst))
	if err != nil {
		return err
	}
	p := join(join(path, KeywordDst), dt.Name)
	kw, err := choice(dst, p, KeywordNew, KeywordExisting)
	if err != nil {
		return err
	}
	if kw == KeywordNew {
		return x.checkCreate(dt, dst[KeywordNew], join(p, KeywordNew))
	}
	return nil
}

// dst returns the single destination type of a relationship create input
// and its {NEW | EXISTING} object.
func (x *exec) dst(r *schema.Rel, in value.Value, path string) (*schema.Type, map[string]value.Value, error) {
	if in.IsNull() {
		return nil, nil, velograph.NewInputError(path, "destination is required")
	}
	m, err := asMap(in, path)
	if err != nil {
		return nil, nil, err
	}
	if len(m) != 1 {
		return nil, nil, velograph.NewInputError(path, "expected exactly one destination type")
	}
	typ := value.Map(m).Keys()[0]
	if !r.AllowsDst(typ) {
		return nil, nil, velograph.NewInputError(join(path, typ), "%s is not a destination of %s", typ, r.FullName)
	}
	dt, err := x.e.schema.Type(typ)
	if err != nil {
		return nil, nil, err
	}
	dm, err := asMap(m[typ], join(path, typ))
	if err != nil {
		return nil, nil, err
	}
	return dt, dm, nil
}

// checkRelChange validates {ADD, UPDATE: {MATCH, SET}, DELETE: {MATCH}}.
func (x *exec) checkRelChange(r *schema.Rel, in value.Value, path string) error {
	m, err := asMap(in, path)
	if err != nil {
		return err
	}
	if err := onlyKeys(m, path, KeywordAdd, KeywordUpdate, KeywordDelete); err != nil {
		return err
	}
	if len(m) == 0 {
		return velograph.NewInputError(path, "expected one of ADD, UPDATE or DELETE")
	}
	if v, ok := m[KeywordAdd]; ok {
		if err := x.checkRelCreate(r, v, join(path, KeywordAdd)); err != nil {
			return err
		}
	}
	if v, ok := m[KeywordUpdate]; ok {
		if err := x.checkRelUpdate(r, v, join(path, KeywordUpdate)); err != nil {
			return err
		}
	}
	if v, ok := m[KeywordDelete]; ok {
		dm, err := asMap(v, join(path, KeywordDelete))
		if err != nil {
			return err
		}
		if err := onlyKeys(dm, join(path, KeywordDelete), KeywordMatch); err != nil {
			return err
		}
	}
	return nil
}

// checkRelUpdate validates {MATCH, SET: {props}}.
func (x *exec) checkRelUpdate(r *schema.Rel, in value.Value, path string) error {
	m, err := asMap(in, path)
	if err != nil {
		return err
	}
	if err := onlyKeys(m, path, KeywordMatch, KeywordSet); err != nil {
		return err
	}
	set, err := asMap(m[KeywordSet], join(path, KeywordSet))
	if err != nil {
		return err
	}
	if err := onlyKeys(set, join(path, KeywordSet), KeywordProps); err != nil {
		return err
	}
	return x.checkRelProps(r, set[KeywordProps], false, join(join(path, KeywordSet), KeywordProps))
}

func (x *exec) checkRelProps(r *schema.Rel, in value.Value, create bool, path string) error {
	m, err := asMap(in, path)
	if err != nil {
		return err
	}
	for _, k := range value.Map(m).Keys() {
		p := join(path, k)
		if k == database.IDField {
			return velograph.NewInputError(p, "identifiers are assigned by the backend")
		}
		prop, err := r.Prop(k)
		if err != nil {
			return velograph.NewInputError(p, "unknown field")
		}
		if err := checkProp(prop, m[k], create, p); err != nil {
			return err
		}
	}
	if create {
		if err := checkRequired(r.Props, m, path); err != nil {
			return err
		}
	}
	return x.runValidators(r.Props, m)
}

// stored returns the properties of m to store, without relationship fields.
func stored(m map[string]value.Value, isRel func(string) bool) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		if !isRel(k) {
			out[k] = v
		}
	}
	return out
}
