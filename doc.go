// Package clubauth owns the login state of a club-management client: the
// access/refresh token lifecycle, the multi-role identity of the signed-in
// user, and the retry contract every other screen of the app depends on.
//
// Session state:
//   - SessionState is the single writer for tokens, profile, roles, and the
//     active role. It starts in LoginStatusUnknown so consumers can tell
//     "still checking persisted storage" apart from "definitely logged out".
//     Mutations go through the named operations (Login, Logout, SetRoles,
//     ...) and are broadcast to subscribers after each change.
//   - A Store persists the two tokens (and a profile snapshot) across
//     restarts. Storage failures degrade to "absent" so the client always
//     boots into a usable logged-out state. BunStore keeps them in sqlite
//     via Bun; MemoryStore backs tests.
//
// Request path:
//   - Gateway wraps outbound requests with bearer injection, 401 detection,
//     and a single retry after a token refresh. When the refresh token itself
//     is rejected it forces a logout and surfaces ErrSessionExpired, never an
//     infinite retry loop.
//   - RefreshCoordinator coalesces concurrent refresh attempts into one
//     exchange; every waiter receives the same new access token. A refresh
//     resolving after a logout cannot resurrect the cleared session.
//
// Roles:
//   - ResolveRole picks the active role from the set the user holds, honoring
//     a preferred-role hint with a fixed player/coach/admin fallback, and maps
//     it to a landing destination. An empty role set is a first-class
//     pending-approval outcome (ErrNoRoleAssigned), not a fault.
//   - ApprovalPoller re-checks the profile in the background while the role
//     set is empty and tears its timer down once a role shows up, on Stop,
//     or on logout.
package clubauth
