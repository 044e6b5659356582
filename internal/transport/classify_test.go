package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/nftops/mintbatch/internal/model"
)

func TestClassifyAuthFailures(t *testing.T) {
	cases := []error{
		errors.New("Transaction signature verification failure"),
		errors.New("rpc: Invalid signature for message"),
		errors.New("401 Unauthorized"),
		fmt.Errorf("send transaction: %w", errors.New("missing required signature for instruction")),
	}
	for _, err := range cases {
		out := classify(err)
		if out.Kind != model.OutcomeAuthFailure {
			t.Errorf("classify(%v) = %s, want auth_failure", err, out.Kind)
		}
	}
}

func TestClassifyTransportFailures(t *testing.T) {
	cases := []error{
		context.DeadlineExceeded,
		fmt.Errorf("get blockhash: %w", context.Canceled),
		&net.OpError{Op: "dial", Err: errors.New("connection timed out")},
		fmt.Errorf("send: %w", syscall.ECONNRESET),
		fmt.Errorf("send: %w", syscall.ECONNREFUSED),
		fmt.Errorf("write: %w", syscall.EPIPE),
		net.ErrClosed,
		&url.Error{Op: "Post", URL: "https://api.devnet.solana.com", Err: errors.New("EOF")},
	}
	for _, err := range cases {
		out := classify(err)
		if out.Kind != model.OutcomeTransportFailure {
			t.Errorf("classify(%v) = %s, want transport_failure", err, out.Kind)
		}
	}
}

func TestClassifyDefaultsToRemoteRejected(t *testing.T) {
	cases := []error{
		errors.New("Attempt to debit an account but found no record of a prior credit"),
		errors.New("custom program error: 0x1"),
		errors.New("blockhash not found"),
	}
	for _, err := range cases {
		out := classify(err)
		if out.Kind != model.OutcomeRemoteRejected {
			t.Errorf("classify(%v) = %s, want remote_rejected", err, out.Kind)
		}
		if out.Reason == "" {
			t.Errorf("classify(%v) should carry the error text", err)
		}
	}
}

func TestClassifyAuthBeatsTransport(t *testing.T) {
	// An auth marker wrapped in a transport error still aborts the batch.
	err := &url.Error{Op: "Post", URL: "https://api.devnet.solana.com",
		Err: errors.New("signature verification failure")}
	out := classify(err)
	if out.Kind != model.OutcomeAuthFailure {
		t.Fatalf("classify(%v) = %s, want auth_failure", err, out.Kind)
	}
}

func TestResolveEndpoint(t *testing.T) {
	if got := ResolveEndpoint("devnet"); got == "devnet" {
		t.Fatal("devnet alias should resolve to an RPC URL")
	}
	custom := "http://localhost:8899"
	if got := ResolveEndpoint(custom); got != custom {
		t.Fatalf("custom endpoint should pass through, got %s", got)
	}
}
