// Package campus implements the session and access layer of the
// Universidade Digital member portal.
//
// Session state:
//   - SessionStore is the single owner of a visitor's AuthState. It is
//     constructed explicitly with a Backend and a list of IdentityProviders;
//     demo fixtures are resolved by FixtureProvider before RemoteProvider is
//     ever consulted.
//   - Backend session-change events and user operations funnel through
//     ApplySession, which swaps Session and Profile together. Profile fetches
//     are tagged with the session they were issued for and dropped when a
//     newer apply has started.
//
// Access:
//   - RoutePolicy is a pure function from (AuthState, path) to a Decision.
//     PortalMiddleware evaluates it on every request, at the top level and
//     again at the admin area boundary.
//   - MemberShell and AdminShell build the role conditioned navigation used
//     by the page layouts. They mirror the policy but are not a boundary.
//
// Notifications and activity:
//   - Every state changing operation emits exactly one Notification through
//     the configured Notifier. ActivitySink receives audit events best-effort.
package campus
