// Package server provides the HTTP API over a polling coordinator.
//
// It handles three concerns:
//
//   - REST API: list, inspect, start and stop sessions under "/api/sessions"
//   - Server-Sent Events: record updates streamed at "/api/sse"
//   - Recording: [Recorder] mirrors coordinator events into a store
//
// All requests pass through [LoggingMiddleware], which logs each request and
// recovers handler panics. The server supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
package server
