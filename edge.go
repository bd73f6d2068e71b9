package featurehub

import "strings"

// EdgeService is the contract both PollingEdge and StreamingEdge satisfy.
// Exactly one is active per Config at a time.
type EdgeService interface {
	// Poll starts (or, for polling transport, performs) the initial
	// request/connection. It may block on network I/O.
	Poll() error

	// Close is idempotent and unblocks any pending background loop.
	Close() error

	// ContextChange notifies the edge of a new server-eval context
	// header. PollingEdge stores it and polls at once if it changed; StreamingEdge
	// treats this as a no-op (server-side evaluation isn't supported over
	// SSE).
	ContextChange(header string) error

	// ClientEvaluated reports whether the first configured API key
	// requests client-side evaluation (keys containing "*").
	ClientEvaluated() bool
}

// clientEvaluated reports whether keys[0] requests client-side
// evaluation, the shared rule both edge services and Config use to
// decide which evaluation mode a context should use.
func clientEvaluated(keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	return strings.Contains(keys[0], "*")
}
