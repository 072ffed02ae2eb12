package http

import "errors"

// Kind classifies a protocol failure so the connection layer can map it
// onto a wire status and a close decision.
type Kind int

const (
	KindMalformed Kind = iota
	KindUnknownMethod
	KindUnsupportedVersion
	KindMissingHost
	KindHeadTooLarge
	KindBodyTooLarge
	KindTransferEncoding
	KindReadTimeout
	KindHandlerTimeout
	KindHandlerPanic
)

// String returns a short identifier used in log output.
func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindUnknownMethod:
		return "unknown-method"
	case KindUnsupportedVersion:
		return "unsupported-version"
	case KindMissingHost:
		return "missing-host"
	case KindHeadTooLarge:
		return "head-too-large"
	case KindBodyTooLarge:
		return "body-too-large"
	case KindTransferEncoding:
		return "transfer-encoding-unsupported"
	case KindReadTimeout:
		return "read-timeout"
	case KindHandlerTimeout:
		return "handler-timeout"
	case KindHandlerPanic:
		return "handler-panic"
	default:
		return "unknown"
	}
}

// ProtocolError is a request failure that still gets a response on the wire.
type ProtocolError struct {
	Kind   Kind
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

// Status returns the response status code for the failure.
func (e *ProtocolError) Status() int {
	switch e.Kind {
	case KindMalformed, KindMissingHost:
		return 400
	case KindUnknownMethod:
		return 501
	case KindUnsupportedVersion:
		return 505
	case KindHeadTooLarge:
		return 431
	case KindBodyTooLarge:
		return 413
	case KindTransferEncoding:
		return 411
	case KindReadTimeout:
		return 408
	case KindHandlerTimeout:
		return 504
	case KindHandlerPanic:
		return 500
	default:
		return 400
	}
}

// CloseAfter reports whether the connection must be closed after the
// error response is written. Only an unknown method may keep the
// connection open, and only when framing survived intact.
func (e *ProtocolError) CloseAfter() bool {
	return e.Kind != KindUnknownMethod
}

func malformed(reason string) *ProtocolError {
	return &ProtocolError{Kind: KindMalformed, Reason: reason}
}

// Read-side sentinels. None of these produce a response: the peer is
// either gone or never sent anything.
var (
	// ErrConnectionClosed means the peer closed before sending any
	// request byte. Closed silently, not an error condition.
	ErrConnectionClosed = errors.New("connection closed before any request byte")

	// ErrIncomplete means the peer closed mid-request. Logged, then dropped.
	ErrIncomplete = errors.New("connection closed mid-request")

	// ErrIdleTimeout means no request byte arrived within the idle window.
	// Closed silently, same as ErrConnectionClosed.
	ErrIdleTimeout = errors.New("idle timeout before first request byte")
)
