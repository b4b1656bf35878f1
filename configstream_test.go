package configstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/configstream/configstream-go/pkg/streamerrors"
)

func TestStartListeningDeliversUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		fmt.Fprint(w, "event: config-update\ndata: {\"settings\":{\"log_level\":\"debug\"},\"version\":\"v1\"}\n\n")
		fmt.Fprint(w, "data: {\"settings\":{\"log_level\":\"warn\"},\"version\":\"v2\"}\n\n")
		flusher.Flush()

		// Keep the stream open until the client walks away.
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var delivered atomic.Int32
	var lastVersion atomic.Value
	err := StartListening(ctx, server.URL, func(ctx context.Context, p Payload) error {
		lastVersion.Store(p.Version)
		if delivered.Add(1) == 2 {
			cancel()
		}
		return nil
	}, 3)

	require.NoError(t, err)
	assert.Equal(t, int32(2), delivered.Load())
	assert.Equal(t, "v2", lastVersion.Load())
}

func TestStartListeningSurfacesFatalStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such stream", http.StatusNotFound)
	}))
	defer server.Close()

	err := StartListening(context.Background(), server.URL, func(ctx context.Context, p Payload) error {
		t.Error("handler must not run")
		return nil
	}, 3)

	require.Error(t, err)
	assert.True(t, streamerrors.IsCode(err, streamerrors.CodeHTTPStatus))
	assert.True(t, streamerrors.IsFatal(err))
}

func TestStartListeningValidatesInput(t *testing.T) {
	err := StartListening(context.Background(), "", func(ctx context.Context, p Payload) error {
		return nil
	}, 3)

	require.Error(t, err)
	assert.True(t, streamerrors.IsCode(err, streamerrors.CodeInvalidConfig))
}
