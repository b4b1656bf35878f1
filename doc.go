// Package configstream is the root of the configuration stream client
// library, providing convenient exports of the core components from the
// sub-packages.
//
// # Overview
//
// The library consists of several sub-packages:
//
//   - pkg/client: the Listener orchestrating connect, decode, and dispatch
//   - pkg/transport: the HTTP connector that opens event streams
//   - pkg/sse: the incremental text/event-stream decoder
//   - pkg/config: the configuration payload model and its JSON decoding
//   - pkg/retry: backoff arithmetic and consecutive-failure bookkeeping
//   - pkg/streamerrors: structured errors with codes, categories, and
//     retryability classification
//   - pkg/logging: structured logging with text and JSON formatters
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//
// # Listening for updates
//
// The simplest entry point mirrors the one call most applications need:
//
//	err := configstream.StartListening(ctx, "https://config.example.com/stream",
//		func(ctx context.Context, p configstream.Payload) error {
//			fmt.Println("log level is now", p.String("log_level", "info"))
//			return nil
//		}, 5)
//
// Applications that need control over backoff, queue sizing, logging, or
// metrics construct a client.Listener directly with a ListenerConfig.
package configstream
