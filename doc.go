// Package auth provides the token authentication core: bcrypt credential
// hashing, HS256 token issuance and decoding, an Authenticator for logins,
// a Resolver that turns bearer tokens back into identities, and a Gate that
// checks requirements against resolved identities.
//
// Identities are owned by the caller. The core reads them through
// IdentityLookup and asks a CredentialStore to persist new password hashes.
//
// Errors:
//   - Every failure is a *goerrors.Error carrying a Reason as its text code.
//     Use ReasonOf to branch on it. The Resolver reports all token problems as
//     ErrUnauthenticated, DecodeReason recovers the underlying cause.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the Authenticator,
//     Resolver, Gate and password handlers. Sinks run best-effort (errors are
//     logged) so you can forward to metrics or a queue without blocking
//     authentication.
//
// Claims decoration:
//   - ClaimsDecorator is invoked before tokens are signed. Decorators may add
//     Metadata while protected claims (sub, iss, aud, exp, scopes, purpose)
//     remain immutable.
package auth
