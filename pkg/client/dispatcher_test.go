package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/configstream/configstream-go/pkg/config"
	"github.com/configstream/configstream-go/pkg/logging"
)

func runDispatcher(t *testing.T, d *dispatcher, updates []update) {
	t.Helper()

	queue := make(chan update, len(updates))
	for _, u := range updates {
		queue <- u
	}
	close(queue)

	require.NoError(t, d.run(context.Background(), queue))
}

func testUpdate(n string) update {
	p, err := config.Decode(`{"settings":{"name":"` + n + `"}}`)
	if err != nil {
		panic(err)
	}
	return update{payload: p, eventType: "config-update"}
}

func TestDispatcherIsolatesPanics(t *testing.T) {
	metrics := &recordingMetrics{}

	var mu sync.Mutex
	var got []string
	d := &dispatcher{
		logger:  logging.Nop(),
		metrics: metrics,
		handler: func(ctx context.Context, p config.Payload) error {
			name := p.String("name", "")
			if name == "second" {
				panic("handler blew up")
			}
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
			return nil
		},
	}

	runDispatcher(t, d, []update{
		testUpdate("first"),
		testUpdate("second"),
		testUpdate("third"),
	})

	// The panic was contained; delivery continued in order.
	assert.Equal(t, []string{"first", "third"}, got)

	events, _, handlerFailures := metrics.snapshot()
	assert.Equal(t, 2, events)
	assert.Equal(t, 1, handlerFailures)
}

func TestDispatcherCountsHandlerErrors(t *testing.T) {
	metrics := &recordingMetrics{}

	d := &dispatcher{
		logger:  logging.Nop(),
		metrics: metrics,
		handler: func(ctx context.Context, p config.Payload) error {
			return errors.New("could not apply settings")
		},
	}

	runDispatcher(t, d, []update{testUpdate("only")})

	events, _, handlerFailures := metrics.snapshot()
	assert.Equal(t, 0, events)
	assert.Equal(t, 1, handlerFailures)
}

func TestDispatcherResetsRetryStateOnDelivery(t *testing.T) {
	var resets int
	d := &dispatcher{
		logger:      logging.Nop(),
		metrics:     &recordingMetrics{},
		onDelivered: func() { resets++ },
		handler: func(ctx context.Context, p config.Payload) error {
			return nil
		},
	}

	runDispatcher(t, d, []update{testUpdate("a"), testUpdate("b")})
	assert.Equal(t, 2, resets)
}
