package backoff

import (
	"strings"
	"testing"
	"time"

	"github.com/nftops/mintbatch/internal/model"
)

func fixedJitter(v float64) func() float64 {
	return func() float64 { return v }
}

func TestTransportFailureRetriesUntilCap(t *testing.T) {
	p := New(3, 100*time.Millisecond, time.Second)

	for attempts := 1; attempts < 3; attempts++ {
		d := p.Decide(attempts, model.TransportFailure("connection reset"))
		if !d.Retry {
			t.Fatalf("attempt %d should retry", attempts)
		}
		if d.AbortBatch {
			t.Fatalf("attempt %d should not abort the batch", attempts)
		}
	}

	d := p.Decide(3, model.TransportFailure("connection reset"))
	if d.Retry {
		t.Fatal("attempt at cap should be terminal")
	}
	if !strings.Contains(d.Reason, "max attempts exceeded") {
		t.Fatalf("unexpected reason: %q", d.Reason)
	}
}

func TestRemoteRejectedNeverRetries(t *testing.T) {
	p := New(5, 100*time.Millisecond, time.Second)
	d := p.Decide(1, model.RemoteRejected("duplicate token"))
	if d.Retry || d.AbortBatch {
		t.Fatalf("remote rejection should be terminal for the entry only: %+v", d)
	}
}

func TestAuthFailureAbortsBatch(t *testing.T) {
	p := New(5, 100*time.Millisecond, time.Second)
	d := p.Decide(1, model.AuthFailure("signature verification failure"))
	if !d.AbortBatch {
		t.Fatal("auth failure should abort the batch")
	}
	if d.Retry {
		t.Fatal("auth failure should not retry")
	}
}

func TestSuccessIsTerminal(t *testing.T) {
	p := New(5, 100*time.Millisecond, time.Second)
	d := p.Decide(1, model.Success("token", "sig"))
	if d.Retry || d.AbortBatch {
		t.Fatalf("success should be terminal: %+v", d)
	}
}

func TestDelayGrowsExponentiallyAndCaps(t *testing.T) {
	// Jitter pinned to zero so delay is exactly half the raw value.
	p := NewWithJitter(10, 100*time.Millisecond, 800*time.Millisecond, fixedJitter(0))

	want := []time.Duration{
		50 * time.Millisecond,  // attempt 1: base 100ms
		100 * time.Millisecond, // attempt 2: 200ms
		200 * time.Millisecond, // attempt 3: 400ms
		400 * time.Millisecond, // attempt 4: 800ms (cap)
		400 * time.Millisecond, // attempt 5: capped
	}
	for i, w := range want {
		d := p.Decide(i+1, model.TransportFailure("timeout"))
		if !d.Retry {
			t.Fatalf("attempt %d should retry", i+1)
		}
		if d.Delay != w {
			t.Errorf("attempt %d delay = %v, want %v", i+1, d.Delay, w)
		}
	}
}

func TestDelayJitterStaysInRange(t *testing.T) {
	p := New(10, 100*time.Millisecond, time.Second)
	for attempts := 1; attempts <= 5; attempts++ {
		for i := 0; i < 50; i++ {
			d := p.Decide(attempts, model.TransportFailure("timeout"))
			if d.Delay <= 0 {
				t.Fatalf("attempt %d produced non-positive delay %v", attempts, d.Delay)
			}
			if d.Delay > time.Second {
				t.Fatalf("attempt %d delay %v exceeds cap", attempts, d.Delay)
			}
		}
	}
}
