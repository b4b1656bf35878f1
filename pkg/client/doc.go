// Package client implements the configuration stream listener: the loop that
// connects to an event stream endpoint, decodes incoming events, and delivers
// configuration updates to a caller-supplied handler.
//
// A Listener runs one reader goroutine (connect, decode, parse) and one
// dispatcher goroutine (handler invocation), joined by a bounded queue that
// preserves arrival order and applies backpressure when the handler is slower
// than the stream. Transient connection failures trigger reconnects with
// exponential backoff; fatal server responses and an exhausted retry budget
// terminate the listener with a structured error.
//
// Basic usage:
//
//	cfg := client.DefaultListenerConfig()
//	cfg.Address = "https://config.example.com/stream"
//	cfg.Handler = func(ctx context.Context, p config.Payload) error {
//		fmt.Println("update:", p.String("log_level", "info"))
//		return nil
//	}
//
//	listener, err := client.NewListener(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := listener.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package client
