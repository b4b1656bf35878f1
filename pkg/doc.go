// Package pkg contains the core components of the configuration stream
// client library.
//
// The sub-packages implement different layers of the client:
//
//   - client: the Listener that drives connect, decode, and dispatch
//   - transport: the HTTP connector for long-lived event stream requests
//   - sse: the incremental text/event-stream decoder
//   - config: the configuration payload model
//   - retry: backoff policy and attempt bookkeeping
//   - streamerrors: structured errors and failure classification
//   - logging: structured logging
//   - observability: Prometheus metrics and OpenTelemetry tracing
//
// Most applications import the root configstream package or pkg/client
// directly; the remaining packages are building blocks they compose.
package pkg
