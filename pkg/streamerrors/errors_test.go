package streamerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	err := NewError(CodeUnreachable, "cannot reach server", CategoryTransport, SeverityError)

	assert.Equal(t, CodeUnreachable, err.Code())
	assert.Equal(t, "cannot reach server", err.Message())
	assert.Equal(t, CategoryTransport, err.Category())
	assert.Equal(t, SeverityError, err.Severity())
	assert.Contains(t, err.Error(), "cannot reach server")
}

func TestErrorBuilders(t *testing.T) {
	err := NewError(CodeProtocolError, "bad frame", CategoryProtocol, SeverityError).
		WithDetail("unterminated field").
		WithData(map[string]int{"line": 4}).
		WithContext(&Context{
			StreamID:  "s-1",
			Endpoint:  "https://config.example.com/stream",
			Component: "decoder",
		})

	assert.Equal(t, "unterminated field", err.Details())
	require.NotNil(t, err.Context())
	assert.Equal(t, "s-1", err.Context().StreamID)
	assert.False(t, err.Context().Timestamp.IsZero())

	m := err.ToJSON()
	assert.Equal(t, CodeProtocolError, m["code"])
}

func TestWrapErrorPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(cause, CodeUnreachable, "cannot connect", CategoryTransport, SeverityError)

	assert.True(t, errors.Is(err, cause))
}

func TestAsStreamErrorWalksChain(t *testing.T) {
	inner := Unreachable("http://x", errors.New("refused"))
	wrapped := fmt.Errorf("while starting: %w", inner)

	se, ok := AsStreamError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeUnreachable, se.Code())

	_, ok = AsStreamError(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorCodeRegistry(t *testing.T) {
	info, ok := GetErrorCodeInfo(CodeRetryExhausted)
	require.True(t, ok)
	assert.Equal(t, CodeRetryExhausted, info.Code)

	assert.NotEmpty(t, GetErrorCodeName(CodeParseError))
	assert.NotEmpty(t, ListErrorCodes())
}

func TestClassifyConnectivity(t *testing.T) {
	cases := []error{
		Unreachable("http://x", errors.New("refused")),
		ConnectionTimeout("http://x", 0, nil),
		TLSFailure("https://x", errors.New("bad cert")),
		ConnectionLost("http://x", nil),
		Protocol("garbage frame"),
		EventTooLarge(2048, 1024),
		BadContentType("http://x", "text/html"),
	}
	for _, err := range cases {
		assert.Equal(t, DispositionRetry, Classify(err), "%v", err)
		assert.True(t, IsRetryable(err))
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := map[int]Disposition{
		500: DispositionRetry,
		502: DispositionRetry,
		503: DispositionRetry,
		429: DispositionRetry,
		408: DispositionRetry,
		400: DispositionFatal,
		401: DispositionFatal,
		403: DispositionFatal,
		404: DispositionFatal,
		410: DispositionFatal,
	}
	for status, want := range cases {
		err := HTTPStatus("http://x", status)
		assert.Equal(t, want, Classify(err), "status %d", status)
	}
}

func TestClassifyRecoverable(t *testing.T) {
	assert.Equal(t, DispositionRecoverable, Classify(Parse("7", "update", errors.New("bad json"))))
	assert.Equal(t, DispositionRecoverable, Classify(HandlerFailure("boom")))
	assert.True(t, IsRecoverable(Parse("", "", nil)))
}

func TestClassifyFatal(t *testing.T) {
	assert.Equal(t, DispositionFatal, Classify(RetryExhausted(3, nil)))
	assert.Equal(t, DispositionFatal, Classify(InvalidConfig("Address", "empty")))
	assert.True(t, IsFatal(RetryExhausted(1, nil)))
}

func TestClassifyCancellation(t *testing.T) {
	assert.Equal(t, DispositionCancelled, Classify(context.Canceled))
	assert.Equal(t, DispositionCancelled, Classify(fmt.Errorf("read: %w", context.Canceled)))
	assert.Equal(t, DispositionCancelled, Classify(context.DeadlineExceeded))
}

func TestClassifyUnknownDefaultsToRetry(t *testing.T) {
	assert.Equal(t, DispositionRetry, Classify(errors.New("some socket thing")))
}
