package streamerrors

// Error codes grouped by concern. Transport codes cover everything up to and
// including the HTTP response status line; protocol codes cover the framing
// of the event stream itself; payload codes cover per-event content.
const (
	// Transport errors (1000-1099)
	CodeUnreachable       int = 1000 // DNS failure, refused connection, reset
	CodeConnectionTimeout int = 1001 // Dial or read deadline exceeded
	CodeTLSFailure        int = 1002 // TLS handshake or certificate failure
	CodeHTTPStatus        int = 1003 // Non-2xx HTTP response status
	CodeConnectionLost    int = 1004 // Stream ended or broke mid-flight

	// Protocol errors (1100-1199)
	CodeProtocolError   int = 1100 // Malformed event-stream framing
	CodeEventTooLarge   int = 1101 // Accumulated event exceeded the size cap
	CodeBadContentType  int = 1102 // Response was not an event stream
	CodeDecoderPoisoned int = 1103 // Decoder used after a protocol error

	// Payload errors (1200-1299)
	CodeParseError int = 1200 // Event data was not a valid configuration payload

	// Handler errors (1300-1399)
	CodeHandlerFailure int = 1300 // Caller-supplied handler panicked

	// Lifecycle errors (1400-1499)
	CodeRetryExhausted  int = 1400 // Consecutive failures exceeded MaxRetries
	CodeAlreadyRunning  int = 1401 // Listener started twice
	CodeNotRunning      int = 1402 // Stop on a listener that never started
	CodeInvalidConfig   int = 1403 // Listener configuration rejected
	CodeListenerStopped int = 1404 // Operation after cooperative cancellation
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

// errorCodeRegistry maps error codes to their information
var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeUnreachable:       {CodeUnreachable, "Unreachable", "Endpoint unreachable", CategoryTransport, SeverityError},
	CodeConnectionTimeout: {CodeConnectionTimeout, "ConnectionTimeout", "Connection or read timed out", CategoryTimeout, SeverityError},
	CodeTLSFailure:        {CodeTLSFailure, "TLSFailure", "TLS handshake failed", CategoryTransport, SeverityError},
	CodeHTTPStatus:        {CodeHTTPStatus, "HTTPStatus", "Unexpected HTTP status", CategoryTransport, SeverityError},
	CodeConnectionLost:    {CodeConnectionLost, "ConnectionLost", "Connection lost mid-stream", CategoryTransport, SeverityWarning},

	CodeProtocolError:   {CodeProtocolError, "ProtocolError", "Malformed event-stream framing", CategoryProtocol, SeverityError},
	CodeEventTooLarge:   {CodeEventTooLarge, "EventTooLarge", "Event exceeded size limit", CategoryProtocol, SeverityError},
	CodeBadContentType:  {CodeBadContentType, "BadContentType", "Response is not an event stream", CategoryProtocol, SeverityError},
	CodeDecoderPoisoned: {CodeDecoderPoisoned, "DecoderPoisoned", "Decoder reused after protocol error", CategoryProtocol, SeverityError},

	CodeParseError: {CodeParseError, "ParseError", "Malformed configuration payload", CategoryPayload, SeverityWarning},

	CodeHandlerFailure: {CodeHandlerFailure, "HandlerFailure", "Update handler panicked", CategoryHandler, SeverityError},

	CodeRetryExhausted:  {CodeRetryExhausted, "RetryExhausted", "Retry budget exhausted", CategoryLifecycle, SeverityCritical},
	CodeAlreadyRunning:  {CodeAlreadyRunning, "AlreadyRunning", "Listener already running", CategoryLifecycle, SeverityWarning},
	CodeNotRunning:      {CodeNotRunning, "NotRunning", "Listener not running", CategoryLifecycle, SeverityWarning},
	CodeInvalidConfig:   {CodeInvalidConfig, "InvalidConfig", "Invalid listener configuration", CategoryLifecycle, SeverityError},
	CodeListenerStopped: {CodeListenerStopped, "ListenerStopped", "Listener stopped", CategoryCancelled, SeverityInfo},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// ListErrorCodes returns all registered error codes
func ListErrorCodes() []ErrorCodeInfo {
	codes := make([]ErrorCodeInfo, 0, len(errorCodeRegistry))
	for _, info := range errorCodeRegistry {
		codes = append(codes, info)
	}
	return codes
}
