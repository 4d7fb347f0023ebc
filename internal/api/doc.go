// Package api implements the operator HTTP API and WebSocket feed.
//
// This package provides:
//   - REST endpoints for listener and broker control, publish settings,
//     per-type enablement and the activity log
//   - Local broker process control when one is managed
//   - WebSocket hub broadcasting bridge events and message snapshots
//   - Prometheus exposition on the metrics path
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Optional bearer-token auth with viewer and operator roles
//
// # Architecture
//
// The server holds no bridge state of its own. Every handler calls the
// Controller, which the mavlink Bridge implements, and the Hub is installed
// as the bridge's event sink so that publishes and listener transitions
// reach subscribed clients as they happen.
//
// # Authentication
//
// With an Authenticator in Deps, every route except health, login and the
// metrics path requires a token. Read routes need bridge:read and
// state-changing routes need bridge:control. The WebSocket upgrade accepts
// the token as ?token= since browsers cannot set headers on it.
//
// # WebSocket channels
//
//	activity.appended   one event per publish attempt
//	listener.state      listener transitions, including fail-stop errors
//	broker.state        broker session changes
//	messages.snapshot   the full entries feed, every feed_interval_ms
package api
