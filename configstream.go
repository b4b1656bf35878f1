// Package configstream provides a resilient client for server-pushed
// configuration streams.
package configstream

import (
	"context"

	"github.com/configstream/configstream-go/pkg/client"
	"github.com/configstream/configstream-go/pkg/config"
	"github.com/configstream/configstream-go/pkg/transport"
)

// Version represents the current version of the library
const Version = "1.0.0"

// Handler receives each decoded configuration update
type Handler = client.Handler

// Payload is one decoded configuration update
type Payload = config.Payload

// These exports provide direct access to the core components
var (
	// NewListener creates a configuration stream listener
	NewListener = client.NewListener

	// DefaultListenerConfig returns a listener config with production
	// defaults
	DefaultListenerConfig = client.DefaultListenerConfig

	// NewHTTPConnector creates the HTTP event stream connector
	NewHTTPConnector = transport.NewHTTPConnector
)

// StartListening connects to the configuration stream at address and invokes
// onUpdate once per successfully decoded configuration event. It blocks until
// ctx is cancelled (returning nil) or the listener terminates: maxRetries
// consecutive connection failures, or a fatal server response, surface as the
// returned error. Transient failures reconnect automatically with exponential
// backoff and are never returned.
func StartListening(ctx context.Context, address string, onUpdate Handler, maxRetries int) error {
	cfg := client.DefaultListenerConfig()
	cfg.Address = address
	cfg.Handler = onUpdate
	cfg.MaxRetries = maxRetries

	listener, err := client.NewListener(cfg)
	if err != nil {
		return err
	}
	return listener.Start(ctx)
}
