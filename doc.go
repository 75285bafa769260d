// Package auth is the session and token core of the bakery distribution
// backend: credential checks, server side sessions, JWT issuance and the
// router gates protecting the rest of the API.
//
// Session lifecycle:
//   - Login opens a Session row and returns an access token plus a refresh
//     token, both carrying the session id (sid). The session expiry matches
//     the refresh token lifetime, "remember me" uses the extended lifetime.
//   - A session is ACTIVE until it is terminated, manually (logout), forced
//     (logout everywhere, revoke) or by timeout (sweep). Termination is
//     absorbing and the first reason wins. Sessions store transitions as
//     single conditional UPDATEs, so concurrent requests never need a lock.
//   - Refresh mints a new access token for a live session. The refresh token
//     is not rotated.
//   - Sweep and Purge are meant to run from a scheduler, see cmd/bakery-auth.
//
// Gates:
//   - Gate.SessionAware validates the token and then the session and user,
//     so a logout takes effect on the next request.
//   - Gate.Strict validates signature and expiry only. A terminated session
//     keeps working on strict routes until its access token expires. Use it
//     where a database round trip per request is not acceptable and the
//     access token lifetime is an acceptable revocation delay.
//
// Activity sinks:
//   - ActivitySink receives login, logout, refresh, extension, sweep and
//     purge events. Sinks run best-effort (errors are logged) so you can
//     forward to a database or queue without blocking authentication.
package auth
