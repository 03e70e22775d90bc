package registry

import (
	"context"
	"errors"
)

// Sentinel errors for consistent error handling. Returned errors wrap one of
// these and name the backend or tool involved.
var (
	ErrNotInitialized   = errors.New("broker not initialized")
	ErrNotConfigured    = errors.New("backend not configured")
	ErrAlreadyConnected = errors.New("backend already connected")
	ErrNotConnected     = errors.New("backend not connected")
	ErrHandshakeFailed  = errors.New("backend handshake failed")
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvocationFailed = errors.New("tool invocation failed")
	ErrTimeout          = errors.New("operation timed out")
	ErrShuttingDown     = errors.New("broker shut down during operation")
)

// Kind returns a short stable label for the sentinel err wraps, or
// "internal" when it wraps none of them. Labels are used in logs and the
// audit log.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrAlreadyConnected):
		return "already_connected"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrHandshakeFailed):
		return "handshake_failed"
	case errors.Is(err, ErrToolNotFound):
		return "tool_not_found"
	case errors.Is(err, ErrInvocationFailed):
		return "invocation_failed"
	case errors.Is(err, ErrShuttingDown):
		return "shutting_down"
	default:
		return "internal"
	}
}

// isDeadline reports whether err came from an expired deadline on ctx.
func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
