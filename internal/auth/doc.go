// Package auth authenticates the dashboard operator.
//
// SciReCount Core has one operator account, configured under
// security.dashboard. Its password is stored either in plain text (for
// development) or as an Argon2id PHC string. A successful login yields a
// short-lived HS256 access token that guards client management.
//
// Sensor ingestion and the live WebSocket feed are deliberately open and do
// not pass through this package.
package auth
