// Package api implements the HTTP REST API and WebSocket server for SciReCount Core.
//
// This package provides:
//   - Sensor ingestion endpoints feeding the reconciliation engine
//   - Device snapshot, history report and client endpoints
//   - WebSocket hub whose connections are broadcast observers
//   - JWT login against the configured dashboard account
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Sensors POST readings to /api/sensors/td2000 or /api/v1/readings. The
// handler passes the raw body to ingest.Engine, which normalizes it,
// persists the device and history rows and publishes a snapshot through
// broadcast.Broadcaster. Every WebSocket connection is subscribed to the
// broadcaster on connect, receives the current snapshot at once, and a
// new one after each stored reading.
//
// # Security
//
// Ingestion and the dashboard feed are unauthenticated. Creating clients
// requires a bearer token from POST /api/auth/login.
//
// # Graceful Degradation
//
// The server operates without MQTT or InfluxDB. Health reports a
// disconnected broker but stays "ok"; only a failing database degrades it.
package api
