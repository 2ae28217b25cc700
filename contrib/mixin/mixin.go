// Package mixin provides common property mixins for model types.
//
// These mixins are OPTIONAL and provided as convenient starting points.
// Users are encouraged to create their own mixins tailored to their needs.
//
// Available mixins:
//   - CreateTime: adds created_at, stamped on create
//   - UpdateTime: adds updated_at, stamped on create and update
//   - Time: combines CreateTime and UpdateTime
//   - TenantID: adds tenant_id, stamped with the viewer's tenant
//   - Owner: adds owner_id, stamped with the viewer's ID
//
// A mixin adds its properties through a before_engine_build hook and stamps
// their values through before create and update hooks:
//
//	h := event.NewHandlers()
//	mixins := []mixin.Mixin{mixin.Time{}, mixin.Owner{}}
//	h.OnBeforeEngineBuild(mixin.Apply(mixins...))
//	mixin.Register(h, nil, mixins...)
//
// Stamped properties are not accepted from clients; they are marked
// read-only in create and update inputs. Hooks run on root operations only,
// so nodes created through a nested NEW are not stamped.
package mixin

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/engine"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/privacy"
	"github.com/syssam/velograph/value"
)

// Mixin supplies properties to model types and their values to writes.
type Mixin interface {
	// Props returns the properties the mixin adds.
	Props() []*config.Property

	// Stamp sets the values the mixin owns on a create or update.
	Stamp(ctx context.Context, s *Stamp) error
}

// Stamp is the input of a node create or update.
type Stamp struct {
	// Kind is event.CreateNode or event.UpdateNode.
	Kind event.OpKind
	// Fields are the properties written. Stamps add to them.
	Fields map[string]value.Value
	// Viewer is the viewer of the request, or nil.
	Viewer privacy.Viewer
}

// Apply returns a before_engine_build hook adding the properties of mixins
// to every model type that does not declare them.
func Apply(mixins ...Mixin) event.BeforeEngineBuildFunc {
	return ApplyTo(nil, mixins...)
}

// ApplyTo is like Apply for the named types only.
func ApplyTo(names []string, mixins ...Mixin) event.BeforeEngineBuildFunc {
	return func(cfg *config.Config) error {
		for _, t := range cfg.Model {
			if len(names) > 0 && !slices.Contains(names, t.Name) {
				continue
			}
			for _, m := range mixins {
				for _, p := range m.Props() {
					if t.Prop(p.Name) == nil {
						t.Props = append(t.Props, p)
					}
				}
			}
		}
		return nil
	}
}

// Register installs the stamps of mixins as before create and update hooks
// on the named types, or every type when names is empty.
func Register(h *event.Handlers, names []string, mixins ...Mixin) *event.Handlers {
	stamp := func(ctx context.Context, kind event.OpKind, in value.Value, f event.Facade) (value.Value, error) {
		fields, _ := in.AsMap()
		s := &Stamp{
			Kind:   kind,
			Fields: maps.Clone(fields),
			Viewer: (&privacy.Request{Op: f.Op(), Facade: f}).Viewer(ctx),
		}
		if s.Fields == nil {
			s.Fields = make(map[string]value.Value)
		}
		for _, m := range mixins {
			if err := m.Stamp(ctx, s); err != nil {
				return value.Null(), err
			}
		}
		return value.Map(s.Fields), nil
	}
	h.OnBeforeNodeCreate(names, func(ctx context.Context, in value.Value, f event.Facade) (value.Value, error) {
		return stamp(ctx, event.CreateNode, in, f)
	})
	h.OnBeforeNodeUpdate(names, func(ctx context.Context, in value.Value, f event.Facade) (value.Value, error) {
		set, _ := in.Get(engine.KeywordSet)
		set, err := stamp(ctx, event.UpdateNode, set, f)
		if err != nil {
			return value.Null(), err
		}
		return in.With(engine.KeywordSet, set), nil
	})
	return h
}

// stamped is a String property clients cannot write.
func stamped(name string) *config.Property {
	uses := config.AllUses()
	uses.Create, uses.Update = false, false
	return &config.Property{Name: name, Type: config.String, Uses: &uses}
}

func now(clock func() time.Time) value.Value {
	if clock == nil {
		clock = time.Now
	}
	return value.String(clock().UTC().Format(time.RFC3339Nano))
}

// CreateTime adds created_at, an RFC 3339 UTC timestamp set once on create.
type CreateTime struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (CreateTime) Props() []*config.Property {
	return []*config.Property{stamped("created_at")}
}

func (m CreateTime) Stamp(_ context.Context, s *Stamp) error {
	if s.Kind == event.CreateNode {
		s.Fields["created_at"] = now(m.Now)
	}
	return nil
}

// UpdateTime adds updated_at, refreshed on every create and update.
type UpdateTime struct {
	Now func() time.Time
}

func (UpdateTime) Props() []*config.Property {
	return []*config.Property{stamped("updated_at")}
}

func (m UpdateTime) Stamp(_ context.Context, s *Stamp) error {
	s.Fields["updated_at"] = now(m.Now)
	return nil
}

// Time composes CreateTime and UpdateTime. Both stamps of a create carry
// the same instant.
type Time struct {
	Now func() time.Time
}

func (Time) Props() []*config.Property {
	return append(CreateTime{}.Props(), UpdateTime{}.Props()...)
}

func (m Time) Stamp(_ context.Context, s *Stamp) error {
	t := now(m.Now)
	if s.Kind == event.CreateNode {
		s.Fields["created_at"] = t
	}
	s.Fields["updated_at"] = t
	return nil
}

// TenantID adds tenant_id for multi-tenancy support. A create without a
// tenant takes the viewer's. The property cannot be updated.
//
// Pair it with privacy.TenantRule("tenant_id") for row-level isolation.
type TenantID struct{}

func (TenantID) Props() []*config.Property {
	uses := config.AllUses()
	uses.Update = false
	return []*config.Property{{Name: "tenant_id", Type: config.String, Uses: &uses}}
}

func (TenantID) Stamp(_ context.Context, s *Stamp) error {
	if _, ok := s.Fields["tenant_id"]; ok || s.Kind != event.CreateNode || s.Viewer == nil {
		return nil
	}
	if tenant := s.Viewer.GetTenantID(); tenant != "" {
		s.Fields["tenant_id"] = value.String(tenant)
	}
	return nil
}

// Owner adds owner_id, set to the viewer's ID on create.
type Owner struct{}

func (Owner) Props() []*config.Property {
	return []*config.Property{stamped("owner_id")}
}

func (Owner) Stamp(_ context.Context, s *Stamp) error {
	if s.Kind == event.CreateNode && s.Viewer != nil {
		s.Fields["owner_id"] = value.String(s.Viewer.GetID())
	}
	return nil
}
