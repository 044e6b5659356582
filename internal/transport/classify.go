package transport

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/nftops/mintbatch/internal/model"
)

// Markers of an identity/authorization rejection in RPC error bodies.
// Checked before the transport-failure heuristics: an auth rejection is a
// response, but some stacks surface it wrapped in connection errors.
var authMarkers = []string{
	"signature verification failure",
	"invalid signature",
	"unauthorized",
	"missing required signature",
}

// classify maps a call error onto the closed outcome taxonomy.
//
// The rules, in order:
//  1. auth markers anywhere in the chain → auth_failure (batch abort)
//  2. no response obtained (timeout, cancellation, dial/reset/refused,
//     URL-level transport errors) → transport_failure (retryable)
//  3. anything else is an application-level response from the ledger →
//     remote_rejected (terminal for the entry)
func classify(err error) model.CallOutcome {
	msg := err.Error()
	lower := strings.ToLower(msg)

	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return model.AuthFailure(msg)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.TransportFailure(msg)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.TransportFailure(msg)
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) {
		return model.TransportFailure(msg)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return model.TransportFailure(msg)
	}

	return model.RemoteRejected(msg)
}
