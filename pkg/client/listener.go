package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/configstream/configstream-go/pkg/config"
	"github.com/configstream/configstream-go/pkg/logging"
	"github.com/configstream/configstream-go/pkg/observability"
	"github.com/configstream/configstream-go/pkg/retry"
	"github.com/configstream/configstream-go/pkg/sse"
	"github.com/configstream/configstream-go/pkg/streamerrors"
	"github.com/configstream/configstream-go/pkg/transport"
)

const (
	// DefaultQueueSize bounds the updates buffered between the reader and
	// the dispatcher. A full queue pauses the reader.
	DefaultQueueSize = 16

	// DefaultMaxRetries is the consecutive-failure budget before the
	// listener terminates
	DefaultMaxRetries = 5
)

// BackoffConfig shapes the reconnect delay schedule
type BackoffConfig struct {
	// BaseDelay is the wait after the first consecutive failure
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth
	MaxDelay time.Duration

	// JitterFactor perturbs each delay by up to ±JitterFactor of its value
	JitterFactor float64
}

// ListenerConfig configures a Listener
type ListenerConfig struct {
	// Address is the event stream endpoint URL
	Address string

	// Handler receives each decoded configuration update
	Handler Handler

	// MaxRetries is how many consecutive connection failures are tolerated
	// before the listener terminates. Zero means fail on the first error.
	MaxRetries int

	// Backoff shapes the reconnect delay schedule
	Backoff BackoffConfig

	// QueueSize bounds the reader→dispatcher queue
	QueueSize int

	// MaxEventSize caps the bytes buffered for a single event frame
	MaxEventSize int

	// Connector opens streams. Defaults to an HTTP connector.
	Connector transport.Connector

	// Logger receives lifecycle and per-event logs. Defaults to no logging.
	Logger logging.Logger

	// Metrics receives counters and histograms. Defaults to no metrics.
	Metrics observability.MetricsProvider

	// Tracing, when set, records a span per connection attempt
	Tracing *observability.TracingProvider
}

// DefaultListenerConfig returns a config with production defaults. Address
// and Handler must still be set by the caller.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		MaxRetries: DefaultMaxRetries,
		Backoff: BackoffConfig{
			BaseDelay:    retry.DefaultBaseDelay,
			MaxDelay:     retry.DefaultMaxDelay,
			JitterFactor: retry.DefaultJitterFactor,
		},
		QueueSize:    DefaultQueueSize,
		MaxEventSize: sse.DefaultMaxEventSize,
	}
}

// Listener maintains a long-lived connection to a configuration stream,
// decodes its events, and delivers each update to the configured handler in
// arrival order. It reconnects with exponential backoff on transient
// failures and terminates on fatal responses or an exhausted retry budget.
type Listener struct {
	cfg       ListenerConfig
	id        string
	connector transport.Connector
	policy    retry.Policy
	retries   *retry.State
	logger    logging.Logger
	metrics   observability.MetricsProvider
	tracing   *observability.TracingProvider

	state   atomic.Int32
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener validates the config and creates a listener
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Address == "" {
		return nil, streamerrors.InvalidConfig("Address", "must not be empty")
	}
	if cfg.Handler == nil {
		return nil, streamerrors.InvalidConfig("Handler", "must not be nil")
	}
	if cfg.MaxRetries < 0 {
		return nil, streamerrors.InvalidConfig("MaxRetries", "must not be negative")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxEventSize <= 0 {
		cfg.MaxEventSize = sse.DefaultMaxEventSize
	}

	connector := cfg.Connector
	if connector == nil {
		connector = transport.NewHTTPConnector()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	var metrics observability.MetricsProvider = observability.NopMetrics{}
	if cfg.Metrics != nil {
		metrics = cfg.Metrics
	}

	id := uuid.New().String()
	return &Listener{
		cfg:       cfg,
		id:        id,
		connector: connector,
		policy: retry.NewPolicy(
			retry.WithBaseDelay(cfg.Backoff.BaseDelay),
			retry.WithMaxDelay(cfg.Backoff.MaxDelay),
			retry.WithJitterFactor(cfg.Backoff.JitterFactor),
		),
		retries: retry.NewState(cfg.MaxRetries),
		logger: logger.WithFields(
			logging.String("stream_id", id),
			logging.String("address", cfg.Address)),
		metrics: metrics,
		tracing: cfg.Tracing,
	}, nil
}

// ID returns the listener's stream identifier used in logs and traces
func (l *Listener) ID() string {
	return l.id
}

// State returns the listener's current connection state
func (l *Listener) State() State {
	return State(l.state.Load())
}

func (l *Listener) setState(ctx context.Context, s State) {
	l.state.Store(int32(s))
	l.metrics.RecordState(ctx, s.String())
	l.logger.Debug("Connection state changed", logging.String("state", s.String()))
}

// Start runs the listen loop until the context is cancelled, Stop is called,
// or the listener terminates. It returns nil on cooperative cancellation and
// a terminal error when the retry budget is exhausted or the server answered
// with a fatal status. Transient failures are logged, never returned.
func (l *Listener) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return streamerrors.AlreadyRunning()
	}
	defer l.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()
	defer cancel()
	defer close(done)

	l.logger.Info("Starting configuration stream listener",
		logging.Int("max_retries", l.cfg.MaxRetries))

	queue := make(chan update, l.cfg.QueueSize)
	d := &dispatcher{
		handler:     l.cfg.Handler,
		logger:      l.logger,
		metrics:     l.metrics,
		onDelivered: l.retries.Reset,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		return l.connectLoop(gctx, queue)
	})
	g.Go(func() error {
		return d.run(gctx, queue)
	})

	err := g.Wait()
	l.setState(ctx, StateTerminated)
	if err != nil {
		l.logger.WithError(err).Error("Listener terminated")
		return err
	}

	l.logger.Info("Listener stopped")
	return nil
}

// Stop cancels the running listener and waits for Start to return, at most
// until ctx expires. Stopping a listener that is not running is a no-op.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connectLoop drives connect → stream → backoff until cancellation or a
// terminal failure. It owns the retry state; only the dispatcher's delivery
// callback touches it concurrently.
func (l *Listener) connectLoop(ctx context.Context, queue chan<- update) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := l.runConnection(ctx, queue)
		if err == nil {
			// Stream closed because the context was cancelled.
			return nil
		}

		switch streamerrors.Classify(err) {
		case streamerrors.DispositionCancelled:
			return nil
		case streamerrors.DispositionFatal:
			l.logger.WithError(err).Error("Fatal connection failure, not retrying")
			return err
		default:
			if terminal := l.backoff(ctx, err); terminal != nil {
				return terminal
			}
		}
	}
}

// runConnection performs one connection attempt and, on success, consumes the
// stream until it breaks. A nil return means the context was cancelled.
func (l *Listener) runConnection(ctx context.Context, queue chan<- update) error {
	attempt := l.retries.Attempt() + 1
	l.setState(ctx, StateConnecting)
	l.logger.Info("Connecting to configuration stream",
		logging.Int("attempt", attempt))

	start := time.Now()
	var stream transport.Stream
	var err error
	if l.tracing != nil {
		octx, span := l.tracing.StartConnectSpan(ctx, l.cfg.Address, attempt)
		stream, err = l.connector.Open(octx, l.cfg.Address)
		if err != nil {
			l.tracing.RecordError(octx, err)
		}
		span.End()
	} else {
		stream, err = l.connector.Open(ctx, l.cfg.Address)
	}

	if err != nil {
		l.metrics.RecordConnectAttempt(ctx, "failure", time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	l.metrics.RecordConnectAttempt(ctx, "success", time.Since(start))

	l.setState(ctx, StateStreaming)
	l.logger.Info("Connected, streaming configuration updates")
	return l.consume(ctx, stream, queue)
}

// consume reads the stream, decodes events, parses payloads, and enqueues
// updates until the stream breaks or ctx is cancelled. The returned error is
// classified by the retry loop; cancellation surfaces as the context's error.
func (l *Listener) consume(ctx context.Context, stream transport.Stream, queue chan<- update) error {
	defer stream.Close()

	decoder := sse.NewDecoder(sse.WithMaxEventSize(l.cfg.MaxEventSize))
	buf := make([]byte, 32*1024)

	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			events, decErr := decoder.Feed(buf[:n])
			if hint := decoder.RetryHint(); hint > 0 {
				l.retries.SetHint(hint)
			}
			for _, ev := range events {
				if err := l.enqueue(ctx, ev, queue); err != nil {
					return err
				}
			}
			if decErr != nil {
				return decErr
			}
		}

		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if streamerrors.IsStreamError(readErr) {
				return readErr
			}
			if errors.Is(readErr, io.EOF) {
				l.logger.Warn("Server closed the stream")
			}
			return streamerrors.ConnectionLost(l.cfg.Address, readErr)
		}
	}
}

// enqueue parses one event's payload and hands it to the dispatcher.
// Malformed payloads are skipped: logged and counted, never fatal.
func (l *Listener) enqueue(ctx context.Context, ev sse.Event, queue chan<- update) error {
	payload, err := config.Decode(ev.Data)
	if err != nil {
		l.logger.WithError(err).Warn("Skipping malformed configuration payload",
			logging.String("event_type", ev.Type),
			logging.String("event_id", ev.ID))
		l.metrics.RecordParseError(ctx)
		return nil
	}

	select {
	case queue <- update{payload: payload, eventType: ev.Type, eventID: ev.ID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoff records one connection failure and waits out the computed delay.
// It returns the terminal RetryExhausted error once the budget is spent, and
// nil when the loop should attempt another connection. Cancellation during
// the wait also returns nil.
func (l *Listener) backoff(ctx context.Context, cause error) error {
	attempt, exhausted := l.retries.RecordFailure()
	if exhausted {
		return streamerrors.RetryExhausted(attempt, cause)
	}

	delay := l.policy.Delay(attempt)
	if hint, ok := l.retries.TakeHint(); ok {
		delay = hint
	}

	l.setState(ctx, StateBackoff)
	l.logger.WithError(cause).Warn("Connection failed, backing off",
		logging.Int("attempt", attempt),
		logging.Int("max_retries", l.cfg.MaxRetries),
		logging.Duration("delay", delay))
	l.metrics.RecordBackoff(ctx, attempt, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}
