// Package auth provides optional operator authentication for the mavbridge API.
//
// Operators are declared in configuration with an Argon2id password hash and
// one of two roles:
//   - viewer: read status, settings, cached messages and the live feed
//   - operator: everything a viewer can do, plus control the listener, the
//     broker connection, message enablement and the local broker
//
// A successful login returns a short-lived HS256 JWT. Tokens are validated by
// signature and expiry only; there is no server-side session store, so a
// restart with a new secret invalidates every issued token.
package auth
