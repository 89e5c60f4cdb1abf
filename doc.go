// Package session implements the client side of the portal's
// authentication flow: a single session state machine, persisted
// credentials, a role based authorization policy, and a route guard.
//
// Session lifecycle:
//   - Manager owns the only mutable session snapshot. Every mutation goes
//     through one of its transitions (Login, LoginWithGoogle, Register,
//     Logout, SetCredentials, ClearAuth, ResetError); there is no other
//     writer. At most one authentication request may be in flight, and a
//     request epoch guarantees a response that lands after logout cannot
//     resurrect a cleared session.
//   - Logout is fail-open for local state: the snapshot, the TokenStore,
//     and the gateway's default bearer header are always cleared, even
//     when the remote logout call fails.
//
// Authorization:
//   - UserRole is a closed set (admin, verifier, user). Admin subsumes
//     every role and permission check. HasRole, HasAnyRole, and
//     HasPermission are pure predicates over the session user.
//   - RouteGuard turns a Snapshot plus a Requirement into a navigation
//     decision: pending while a request is in flight, allow, or a
//     redirect with fixed precedence (unauthenticated, then role, then
//     email verification).
//
// Persistence:
//   - TokenStore is a small port (Load/Save/Clear) so the state machine
//     can be exercised without a real backend. BunTokenStore persists the
//     bearer token and user record in SQLite via Bun and survives
//     process restarts; MemoryTokenStore backs tests.
package session
