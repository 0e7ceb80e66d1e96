package contracts

import "errors"

// Sentinel errors for the taxonomy in spec.md §7, checked with errors.Is
// the way the teacher's internal/router and internal/workflow wrap and
// unwrap errors with fmt.Errorf("...: %w", err).
var (
	// ErrTransport covers connection refused, DNS failure, transient
	// 5xx, and 429 — recoverable at the item level after the adapter's
	// own retry budget is exhausted.
	ErrTransport = errors.New("transport error")

	// ErrTimeout covers a single request exceeding its budget.
	// Recoverable at the item level: record a failed response, continue.
	ErrTimeout = errors.New("timeout")

	// ErrProtocol covers malformed target output or a non-429 4xx.
	// Fatal at the item level, non-fatal at the run level.
	ErrProtocol = errors.New("protocol error")

	// ErrBackendUnavailable is run-fatal only when no alternative backend
	// exists for an item.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrConfiguration covers missing required executor inputs (empty
	// backend list, nil adapter). Always run-fatal, surfaced before any
	// work begins.
	ErrConfiguration = errors.New("configuration error")
)

// ConnectionError, TimeoutError, TransportError, ParseError, and
// AuthError are the Adapter-side failure categories named in spec.md
// §6(a). Each wraps one of the sentinels above so callers can use
// errors.Is against the taxonomy without caring which concrete type was
// returned.

type ConnectionError struct{ Err error }

func (e *ConnectionError) Error() string { return "connection error: " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return errors.Join(ErrTransport, e.Err) }

type TimeoutError struct{ Err error }

func (e *TimeoutError) Error() string { return "timeout: " + e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return errors.Join(ErrTimeout, e.Err) }

type TransportError struct{ Err error }

func (e *TransportError) Error() string { return "transport error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return errors.Join(ErrTransport, e.Err) }

type ParseError struct{ Err error }

func (e *ParseError) Error() string { return "parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return errors.Join(ErrProtocol, e.Err) }

type AuthError struct{ Err error }

func (e *AuthError) Error() string { return "auth error: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return errors.Join(ErrProtocol, e.Err) }
