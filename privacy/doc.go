// Rules are evaluated in order until one returns a final decision:
//
//   - Allow: grants access and stops evaluation
//   - Deny: denies access and stops evaluation
//   - Skip: continues to the next rule
//
// A policy whose rules all skip allows the operation, so policies usually
// end with AlwaysDenyRule.
//
// A Policy is installed on the event handlers of an engine:
//
//	h := event.NewHandlers()
//	privacy.Policy{
//	    Query: privacy.QueryPolicy{privacy.DenyIfNoViewer()},
//	    Mutation: privacy.MutationPolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.HasRole("admin"),
//	        privacy.IsOwner("owner_id"),
//	        privacy.AlwaysDenyRule(),
//	    },
//	}.Register(h, "Project")
//	h.OnAfterNodeRead([]string{"Project"}, privacy.FilterOwned("owner_id"))
//
// The viewer is read from the context, or from the request context when it
// implements Viewer:
//
//	ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "u1"})
//
// A denied operation fails with a *velograph.PrivacyError wrapping the
// decision, and its transaction is rolled back.
package privacy
