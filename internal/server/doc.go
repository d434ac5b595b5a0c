// Package server exposes a statestore over HTTP.
//
// This package handles all HTTP concerns of the statestore CLI:
//
//   - REST API: JSON endpoints at "/api/state" and "/api/data"
//   - Server-Sent Events: Real-time change events at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics"
//
// Routing uses chi. The server subscribes to every update of its store and
// publishes a [feed.ChangeEvent] per update; each SSE client reads its own
// feed subscription.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
