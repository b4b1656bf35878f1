package streamerrors

import (
	"context"
	"errors"
)

// Disposition describes what the retry loop should do with a failure.
type Disposition int

const (
	// DispositionRetry schedules a backoff and reconnect
	DispositionRetry Disposition = iota

	// DispositionFatal terminates the listener and surfaces the error
	DispositionFatal

	// DispositionRecoverable skips the offending event and keeps the
	// connection open
	DispositionRecoverable

	// DispositionCancelled means cooperative cancellation, not a failure
	DispositionCancelled
)

// String returns a human-readable name for the disposition
func (d Disposition) String() string {
	switch d {
	case DispositionRetry:
		return "retry"
	case DispositionFatal:
		return "fatal"
	case DispositionRecoverable:
		return "recoverable"
	case DispositionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify maps an error onto the failure taxonomy:
//
//	connectivity (unreachable/timeout/TLS/5xx/429)  -> retry
//	fatal status (4xx except 429)                   -> fatal
//	protocol (framing, size cap)                    -> retry
//	payload parse                                   -> recoverable
//	retry exhaustion                                -> fatal
//	handler failure                                 -> recoverable
//	context cancellation                            -> cancelled
//
// Unrecognized errors default to retry, matching the bias of the transport:
// an unclassified failure on a long-lived stream is almost always a broken
// connection.
func Classify(err error) Disposition {
	if err == nil {
		return DispositionRecoverable
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return DispositionCancelled
	}

	se, ok := AsStreamError(err)
	if !ok {
		return DispositionRetry
	}

	switch se.Code() {
	case CodeUnreachable, CodeConnectionTimeout, CodeTLSFailure, CodeConnectionLost,
		CodeProtocolError, CodeEventTooLarge, CodeBadContentType:
		return DispositionRetry

	case CodeHTTPStatus:
		if data, ok := se.Data().(*TransportErrorData); ok && !data.Retryable {
			return DispositionFatal
		}
		return DispositionRetry

	case CodeParseError, CodeHandlerFailure:
		return DispositionRecoverable

	case CodeRetryExhausted, CodeInvalidConfig:
		return DispositionFatal

	case CodeListenerStopped:
		return DispositionCancelled
	}

	return DispositionRetry
}

// IsRetryable reports whether the failure should trigger a reconnect
func IsRetryable(err error) bool {
	return Classify(err) == DispositionRetry
}

// IsFatal reports whether the failure terminates the listener
func IsFatal(err error) bool {
	return Classify(err) == DispositionFatal
}

// IsRecoverable reports whether the failure is skipped without reconnecting
func IsRecoverable(err error) bool {
	return Classify(err) == DispositionRecoverable
}
