package streamerrors

import (
	"fmt"
	"net/url"
	"time"
)

// TransportErrorData contains structured data for transport-related errors
type TransportErrorData struct {
	Endpoint   string        `json:"endpoint,omitempty"`
	Operation  string        `json:"operation,omitempty"`
	Retryable  bool          `json:"retryable"`
	StatusCode int           `json:"status_code,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// ProtocolErrorData contains structured data for protocol-level errors
type ProtocolErrorData struct {
	Endpoint  string `json:"endpoint,omitempty"`
	Retryable bool   `json:"retryable"`
	EventSize int    `json:"event_size,omitempty"`
	MaxSize   int    `json:"max_size,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// PayloadErrorData contains structured data for per-event payload errors
type PayloadErrorData struct {
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func hostOf(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}

// Unreachable creates an error for endpoints that cannot be reached at all:
// DNS failures, refused connections, resets before the response status line.
func Unreachable(endpoint string, cause error) StreamError {
	message := fmt.Sprintf("Endpoint %s unreachable", hostOf(endpoint))
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeUnreachable,
		message,
		CategoryTransport,
		SeverityError,
	).WithData(&TransportErrorData{
		Endpoint:  endpoint,
		Operation: "connect",
		Retryable: true,
		Reason:    causeReason(cause),
	})
}

// ConnectionTimeout creates an error for dial or read timeouts
func ConnectionTimeout(endpoint string, timeout time.Duration, cause error) StreamError {
	message := fmt.Sprintf("Connection to %s timed out", hostOf(endpoint))
	if timeout > 0 {
		message = fmt.Sprintf("%s after %v", message, timeout)
	}

	return WrapError(
		cause,
		CodeConnectionTimeout,
		message,
		CategoryTimeout,
		SeverityError,
	).WithData(&TransportErrorData{
		Endpoint:  endpoint,
		Operation: "read",
		Retryable: true,
		Timeout:   timeout,
		Reason:    "timeout",
	})
}

// TLSFailure creates an error for TLS handshake and certificate failures
func TLSFailure(endpoint string, cause error) StreamError {
	message := fmt.Sprintf("TLS failure connecting to %s", hostOf(endpoint))
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeTLSFailure,
		message,
		CategoryTransport,
		SeverityError,
	).WithData(&TransportErrorData{
		Endpoint:  endpoint,
		Operation: "handshake",
		Retryable: true,
		Reason:    causeReason(cause),
	})
}

// HTTPStatus creates an error for a non-2xx response status. Retryability
// follows the status taxonomy: 5xx and 429 retry, every other 4xx is fatal.
func HTTPStatus(endpoint string, statusCode int) StreamError {
	severity := SeverityError
	if !statusRetryable(statusCode) {
		severity = SeverityCritical
	}

	return NewError(
		CodeHTTPStatus,
		fmt.Sprintf("Unexpected HTTP status %d from %s", statusCode, hostOf(endpoint)),
		CategoryTransport,
		severity,
	).WithData(&TransportErrorData{
		Endpoint:   endpoint,
		Operation:  "connect",
		Retryable:  statusRetryable(statusCode),
		StatusCode: statusCode,
		Reason:     fmt.Sprintf("status %d", statusCode),
	})
}

// ConnectionLost creates an error for a stream that ended or broke mid-flight
func ConnectionLost(endpoint string, cause error) StreamError {
	message := fmt.Sprintf("Lost connection to %s", hostOf(endpoint))
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeConnectionLost,
		message,
		CategoryTransport,
		SeverityWarning,
	).WithData(&TransportErrorData{
		Endpoint:  endpoint,
		Operation: "read",
		Retryable: true,
		Reason:    causeReason(cause),
	})
}

// BadContentType creates an error for responses that are not event streams
func BadContentType(endpoint, contentType string) StreamError {
	return NewError(
		CodeBadContentType,
		fmt.Sprintf("Expected text/event-stream from %s, got %q", hostOf(endpoint), contentType),
		CategoryProtocol,
		SeverityError,
	).WithData(&ProtocolErrorData{
		Endpoint:  endpoint,
		Retryable: true,
		Reason:    "content type " + contentType,
	})
}

// Protocol creates an error for malformed event-stream framing
func Protocol(reason string) StreamError {
	return NewError(
		CodeProtocolError,
		fmt.Sprintf("Event stream protocol error: %s", reason),
		CategoryProtocol,
		SeverityError,
	).WithData(&ProtocolErrorData{
		Retryable: true,
		Reason:    reason,
	})
}

// EventTooLarge creates an error for events exceeding the configured size cap
func EventTooLarge(size, maxSize int) StreamError {
	return NewError(
		CodeEventTooLarge,
		fmt.Sprintf("Event size %d exceeds limit %d", size, maxSize),
		CategoryProtocol,
		SeverityError,
	).WithData(&ProtocolErrorData{
		Retryable: true,
		EventSize: size,
		MaxSize:   maxSize,
		Reason:    "event too large",
	})
}

// Parse creates a per-event, locally recoverable payload error
func Parse(eventID, eventType string, cause error) StreamError {
	message := "Malformed configuration payload"
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeParseError,
		message,
		CategoryPayload,
		SeverityWarning,
	).WithData(&PayloadErrorData{
		EventID:   eventID,
		EventType: eventType,
		Reason:    causeReason(cause),
	})
}

// HandlerFailure creates an error for a panic inside the caller's handler
func HandlerFailure(recovered interface{}) StreamError {
	return NewError(
		CodeHandlerFailure,
		fmt.Sprintf("Update handler panicked: %v", recovered),
		CategoryHandler,
		SeverityError,
	)
}

// RetryExhausted creates the terminal error returned once the retry budget is
// spent. The last connection error is kept as the cause.
func RetryExhausted(attempts int, cause error) StreamError {
	message := fmt.Sprintf("Giving up after %d failed connection attempts", attempts)
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeRetryExhausted,
		message,
		CategoryLifecycle,
		SeverityCritical,
	)
}

// InvalidConfig creates an error for rejected listener configuration
func InvalidConfig(parameter, reason string) StreamError {
	return NewError(
		CodeInvalidConfig,
		fmt.Sprintf("Invalid configuration for %q: %s", parameter, reason),
		CategoryLifecycle,
		SeverityError,
	)
}

// AlreadyRunning creates an error for a listener started twice
func AlreadyRunning() StreamError {
	return NewError(
		CodeAlreadyRunning,
		"Listener is already running",
		CategoryLifecycle,
		SeverityWarning,
	)
}

func causeReason(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

func statusRetryable(statusCode int) bool {
	return statusCode >= 500 || statusCode == 429 || statusCode == 408
}
