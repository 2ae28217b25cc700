package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/value"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
// A request context implementing Viewer is used when ctx carries none.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for multi-tenancy.
	// Returns empty string if not applicable.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

func (v *SimpleViewer) GetID() string       { return v.UserID }
func (v *SimpleViewer) GetRoles() []string  { return v.Roles }
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present.
// This is typically used as the first rule in a policy to require authentication.
//
//	privacy.Policy{Mutation: privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	}}
func DenyIfNoViewer() QueryMutationRule {
	return RuleFunc(func(ctx context.Context, r *Request) error {
		if r.Viewer(ctx) == nil {
			return Denyf("privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified role.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the
// specified roles, and skips otherwise.
func HasAnyRole(roles ...string) QueryMutationRule {
	return RuleFunc(func(ctx context.Context, r *Request) error {
		viewer := r.Viewer(ctx)
		if viewer == nil {
			return Skip
		}
		viewerRoles := viewer.GetRoles()
		for _, role := range roles {
			if slices.Contains(viewerRoles, role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a mutation rule that allows access if the viewer owns the
// node: the created node's field holds the viewer's ID, or every node an
// update or delete matches does and an update does not hand it over.
// Relationship operations are skipped.
func IsOwner(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, r *Request) error {
		viewer := r.Viewer(ctx)
		if viewer == nil || r.Op.Kind.IsRel() {
			return Skip
		}
		id := viewer.GetID()
		if v, ok := r.Field(field); ok && idString(v) != id {
			return Skip
		} else if ok && r.Op.Kind == event.CreateNode {
			return Allow
		}
		nodes, err := r.Matched(ctx)
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			return Skip
		}
		for _, n := range nodes {
			if idString(n.Field(field)) != id {
				return Skip
			}
		}
		return Allow
	})
}

// OwnerQueryRule returns a query rule denying reads without a viewer. Pair
// it with FilterOwned to return only the viewer's nodes.
func OwnerQueryRule() QueryRule {
	return RuleFunc(func(ctx context.Context, r *Request) error {
		if r.Viewer(ctx) == nil {
			return Denyf("privacy: viewer required for owner-filtered query")
		}
		return Skip
	})
}

// TenantRule returns a mutation rule that allows access if the viewer's
// tenant matches the node's tenant, and denies it otherwise. Used for
// multi-tenant isolation.
func TenantRule(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, r *Request) error {
		viewer := r.Viewer(ctx)
		if viewer == nil || r.Op.Kind.IsRel() {
			return Skip
		}
		tenant := viewer.GetTenantID()
		if tenant == "" {
			return Skip
		}
		v, ok := r.Field(field)
		if ok && idString(v) != tenant {
			return Denyf("privacy: tenant mismatch")
		}
		if r.Op.Kind == event.CreateNode {
			if !ok {
				return Skip
			}
			return Allow
		}
		nodes, err := r.Matched(ctx)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if idString(n.Field(field)) != tenant {
				return Denyf("privacy: tenant mismatch")
			}
		}
		return Allow
	})
}

// TenantQueryRule returns a query rule that denies reads if no viewer
// or tenant is present.
func TenantQueryRule() QueryRule {
	return RuleFunc(func(ctx context.Context, r *Request) error {
		viewer := r.Viewer(ctx)
		if viewer == nil {
			return Denyf("privacy: viewer required for tenant-filtered query")
		}
		if viewer.GetTenantID() == "" {
			return Denyf("privacy: tenant required")
		}
		return Skip
	})
}

// FilterOwned returns an after hook keeping the nodes whose field holds the
// viewer's ID. Without a viewer no node is kept.
//
//	h.OnAfterNodeRead([]string{"Project"}, privacy.FilterOwned("owner_id"))
func FilterOwned(field string) event.AfterNodeFunc {
	return filterNodes(field, Viewer.GetID)
}

// FilterTenant returns an after hook keeping the nodes of the viewer's
// tenant.
func FilterTenant(field string) event.AfterNodeFunc {
	return filterNodes(field, Viewer.GetTenantID)
}

func filterNodes(field string, want func(Viewer) string) event.AfterNodeFunc {
	return func(ctx context.Context, nodes []*database.Node, f event.Facade) ([]*database.Node, error) {
		r := &Request{Op: f.Op(), Facade: f}
		viewer := r.Viewer(ctx)
		if viewer == nil {
			return nil, nil
		}
		id := want(viewer)
		return slices.DeleteFunc(nodes, func(n *database.Node) bool {
			return idString(n.Field(field)) != id
		}), nil
	}
}

// idString renders an identifier or tenant value for comparison with the
// strings a Viewer returns.
func idString(v value.Value) string {
	if v.IsNull() {
		return ""
	}
	return fmt.Sprint(v.Any())
}
