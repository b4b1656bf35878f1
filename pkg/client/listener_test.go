package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/configstream/configstream-go/pkg/config"
	"github.com/configstream/configstream-go/pkg/observability"
	"github.com/configstream/configstream-go/pkg/streamerrors"
	"github.com/configstream/configstream-go/pkg/transport"
	"github.com/configstream/configstream-go/pkg/utils"
)

// fakeConnector plays back a scripted sequence of connection outcomes. The
// last step repeats once the script is exhausted. Returned streams are
// closed when ctx is cancelled, matching the HTTP connector's contract.
type fakeConnector struct {
	mu    sync.Mutex
	opens int
	steps []func() (transport.Stream, error)
}

func (c *fakeConnector) Open(ctx context.Context, address string) (transport.Stream, error) {
	c.mu.Lock()
	idx := c.opens
	c.opens++
	if idx >= len(c.steps) {
		idx = len(c.steps) - 1
	}
	step := c.steps[idx]
	c.mu.Unlock()

	stream, err := step()
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		stream.Close()
	}()
	return stream, nil
}

func (c *fakeConnector) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func failWith(err error) func() (transport.Stream, error) {
	return func() (transport.Stream, error) { return nil, err }
}

// streamOf serves the given bytes then ends the connection
func streamOf(data string) func() (transport.Stream, error) {
	return func() (transport.Stream, error) {
		return io.NopCloser(strings.NewReader(data)), nil
	}
}

// holdOpen serves the given bytes then keeps the connection open until the
// stream is closed.
func holdOpen(data string) func() (transport.Stream, error) {
	return func() (transport.Stream, error) {
		return &blockingStream{data: strings.NewReader(data), done: make(chan struct{})}, nil
	}
}

type blockingStream struct {
	data io.Reader
	done chan struct{}
	once sync.Once
}

func (s *blockingStream) Read(p []byte) (int, error) {
	n, _ := s.data.Read(p)
	if n > 0 {
		return n, nil
	}
	<-s.done
	return 0, io.EOF
}

func (s *blockingStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// recordingMetrics captures the counters the listener emits
type recordingMetrics struct {
	observability.NopMetrics
	mu              sync.Mutex
	connects        []string
	backoffs        []time.Duration
	events          int
	parseErrors     int
	handlerFailures int
}

func (m *recordingMetrics) RecordConnectAttempt(_ context.Context, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects = append(m.connects, result)
}

func (m *recordingMetrics) RecordEvent(_ context.Context, _ string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events++
}

func (m *recordingMetrics) RecordParseError(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseErrors++
}

func (m *recordingMetrics) RecordHandlerFailure(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlerFailures++
}

func (m *recordingMetrics) RecordBackoff(_ context.Context, _ int, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backoffs = append(m.backoffs, delay)
}

func (m *recordingMetrics) backoffDelays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.backoffs))
	copy(out, m.backoffs)
	return out
}

func (m *recordingMetrics) snapshot() (events, parseErrors, handlerFailures int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events, m.parseErrors, m.handlerFailures
}

func testConfig(conn transport.Connector, metrics observability.MetricsProvider, h Handler) ListenerConfig {
	cfg := DefaultListenerConfig()
	cfg.Address = "http://config.test/stream"
	cfg.Connector = conn
	cfg.Metrics = metrics
	cfg.Handler = h
	cfg.MaxRetries = 10
	cfg.Backoff = BackoffConfig{
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  time.Second,
	}
	return cfg
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestListenerRecoversFromConnectionFailures(t *testing.T) {
	refused := errors.New("connection refused")
	conn := &fakeConnector{steps: []func() (transport.Stream, error){
		failWith(refused),
		failWith(refused),
		failWith(refused),
		streamOf("data: {\"settings\":{\"a\":1}}\n\n"),
		failWith(streamerrors.HTTPStatus("http://config.test/stream", 404)),
	}}
	metrics := &recordingMetrics{}

	var mu sync.Mutex
	var delivered int
	cfg := testConfig(conn, metrics, func(ctx context.Context, p config.Payload) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	l, err := NewListener(cfg)
	require.NoError(t, err)

	// The 404 after the successful stream terminates the listener.
	err = l.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateTerminated, l.State())

	mu.Lock()
	assert.Equal(t, 1, delivered)
	mu.Unlock()

	delays := metrics.backoffDelays()
	require.GreaterOrEqual(t, len(delays), 3)
	assert.Equal(t, 10*time.Millisecond, delays[0])
	assert.Equal(t, 20*time.Millisecond, delays[1])
	assert.Equal(t, 40*time.Millisecond, delays[2])
}

func TestListenerSkipsMalformedPayloads(t *testing.T) {
	var frames strings.Builder
	for i := 0; i < 5; i++ {
		if i == 2 {
			frames.WriteString("data: definitely not json\n\n")
			continue
		}
		fmt.Fprintf(&frames, "data: {\"settings\":{\"n\":%d}}\n\n", i)
	}

	conn := &fakeConnector{steps: []func() (transport.Stream, error){
		holdOpen(frames.String()),
	}}
	metrics := &recordingMetrics{}

	var mu sync.Mutex
	var got []int64
	cfg := testConfig(conn, metrics, func(ctx context.Context, p config.Payload) error {
		mu.Lock()
		got = append(got, p.Int("n", -1))
		mu.Unlock()
		return nil
	})

	l, err := NewListener(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, "four deliveries")
	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	assert.Equal(t, []int64{0, 1, 3, 4}, got)
	mu.Unlock()

	_, parseErrors, _ := metrics.snapshot()
	assert.Equal(t, 1, parseErrors)

	// The malformed payload never broke the connection.
	assert.Equal(t, 1, conn.openCount())
	assert.Empty(t, metrics.backoffDelays())
}

func TestListenerRetriesAfterServiceUnavailable(t *testing.T) {
	conn := &fakeConnector{steps: []func() (transport.Stream, error){
		failWith(streamerrors.HTTPStatus("http://config.test/stream", 503)),
		holdOpen("data: {\"settings\":{\"ok\":true}}\n\n"),
	}}
	metrics := &recordingMetrics{}

	var delivered atomic.Int32
	cfg := testConfig(conn, metrics, func(ctx context.Context, p config.Payload) error {
		delivered.Add(1)
		return nil
	})

	l, err := NewListener(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()

	waitFor(t, func() bool { return delivered.Load() == 1 }, "one delivery")
	cancel()
	require.NoError(t, <-errCh)

	// One backoff cycle, then a clean second connection.
	assert.Equal(t, 2, conn.openCount())
	assert.Len(t, metrics.backoffDelays(), 1)
}

func TestListenerTerminatesAfterRetryBudget(t *testing.T) {
	conn := &fakeConnector{steps: []func() (transport.Stream, error){
		failWith(errors.New("connection refused")),
	}}
	metrics := &recordingMetrics{}

	cfg := testConfig(conn, metrics, func(ctx context.Context, p config.Payload) error {
		t.Error("handler must not be invoked")
		return nil
	})
	cfg.MaxRetries = 2

	l, err := NewListener(cfg)
	require.NoError(t, err)

	err = l.Start(context.Background())
	require.Error(t, err)
	assert.True(t, streamerrors.IsCode(err, streamerrors.CodeRetryExhausted))
	assert.Equal(t, StateTerminated, l.State())

	// Exactly two backoff waits before giving up: three attempts total.
	assert.Len(t, metrics.backoffDelays(), 2)
	assert.Equal(t, 3, conn.openCount())
}

func TestListenerPreservesDispatchOrder(t *testing.T) {
	const count = 40
	var frames strings.Builder
	for i := 0; i < count; i++ {
		fmt.Fprintf(&frames, "data: {\"settings\":{\"n\":%d}}\n\n", i)
	}

	conn := &fakeConnector{steps: []func() (transport.Stream, error){
		holdOpen(frames.String()),
	}}

	var mu sync.Mutex
	var got []int64
	cfg := testConfig(conn, observability.NopMetrics{}, func(ctx context.Context, p config.Payload) error {
		// A slow handler forces the queue to fill and backpressure the
		// reader.
		time.Sleep(time.Millisecond)
		mu.Lock()
		got = append(got, p.Int("n", -1))
		mu.Unlock()
		return nil
	})
	cfg.QueueSize = 4

	l, err := NewListener(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == count
	}, "all deliveries")
	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	for i, n := range got {
		require.Equal(t, int64(i), n, "event %d out of order", i)
	}
}

func TestListenerStopInterruptsBackoff(t *testing.T) {
	defer utils.LeakCheck(t)()

	conn := &fakeConnector{steps: []func() (transport.Stream, error){
		failWith(errors.New("connection refused")),
	}}

	cfg := testConfig(conn, observability.NopMetrics{}, func(ctx context.Context, p config.Payload) error {
		return nil
	})
	cfg.Backoff.BaseDelay = time.Minute

	l, err := NewListener(cfg)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(context.Background()) }()

	waitFor(t, func() bool { return l.State() == StateBackoff }, "backoff state")

	start := time.Now()
	require.NoError(t, l.Stop(context.Background()))
	require.NoError(t, <-errCh)

	// Stop did not sit out the minute-long backoff.
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateTerminated, l.State())
}

func TestListenerStopInterruptsStreaming(t *testing.T) {
	defer utils.LeakCheck(t)()

	conn := &fakeConnector{steps: []func() (transport.Stream, error){
		holdOpen(": keepalive\n"),
	}}

	cfg := testConfig(conn, observability.NopMetrics{}, func(ctx context.Context, p config.Payload) error {
		return nil
	})

	l, err := NewListener(cfg)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(context.Background()) }()

	waitFor(t, func() bool { return l.State() == StateStreaming }, "streaming state")

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Stop(stopCtx))
	require.NoError(t, <-errCh)
}

func TestListenerRejectsDoubleStart(t *testing.T) {
	conn := &fakeConnector{steps: []func() (transport.Stream, error){
		holdOpen(""),
	}}

	cfg := testConfig(conn, observability.NopMetrics{}, func(ctx context.Context, p config.Payload) error {
		return nil
	})

	l, err := NewListener(cfg)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(context.Background()) }()
	waitFor(t, func() bool { return l.State() == StateStreaming }, "streaming state")

	err = l.Start(context.Background())
	require.Error(t, err)
	assert.True(t, streamerrors.IsCode(err, streamerrors.CodeAlreadyRunning))

	require.NoError(t, l.Stop(context.Background()))
	require.NoError(t, <-errCh)
}

func TestListenerHonorsServerRetryHint(t *testing.T) {
	conn := &fakeConnector{steps: []func() (transport.Stream, error){
		streamOf("retry: 70\ndata: {\"settings\":{}}\n\n"),
		failWith(streamerrors.HTTPStatus("http://config.test/stream", 403)),
	}}
	metrics := &recordingMetrics{}

	var mu sync.Mutex
	var delivered int
	cfg := testConfig(conn, metrics, func(ctx context.Context, p config.Payload) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	l, err := NewListener(cfg)
	require.NoError(t, err)

	err = l.Start(context.Background())
	require.Error(t, err)

	// The backoff after the stream ended used the server's hint, not the
	// computed 10ms base delay.
	delays := metrics.backoffDelays()
	require.Len(t, delays, 1)
	assert.Equal(t, 70*time.Millisecond, delays[0])

	mu.Lock()
	assert.Equal(t, 1, delivered)
	mu.Unlock()
}

func TestNewListenerValidation(t *testing.T) {
	handler := func(ctx context.Context, p config.Payload) error { return nil }

	_, err := NewListener(ListenerConfig{Handler: handler})
	require.Error(t, err)
	assert.True(t, streamerrors.IsCode(err, streamerrors.CodeInvalidConfig))

	_, err = NewListener(ListenerConfig{Address: "http://x"})
	require.Error(t, err)
	assert.True(t, streamerrors.IsCode(err, streamerrors.CodeInvalidConfig))

	_, err = NewListener(ListenerConfig{Address: "http://x", Handler: handler, MaxRetries: -1})
	require.Error(t, err)
	assert.True(t, streamerrors.IsCode(err, streamerrors.CodeInvalidConfig))
}
