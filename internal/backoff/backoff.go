// Package backoff decides whether a failed mint attempt is retried and
// how long to wait first. Pure decision logic; the orchestrator owns the
// actual waiting.
package backoff

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/nftops/mintbatch/internal/model"
)

// Decision is the verdict for one attempt.
type Decision struct {
	Retry      bool
	Delay      time.Duration
	AbortBatch bool
	Reason     string // set when Retry is false
}

// Policy computes exponential backoff with jitter, capped in both delay
// and attempt count.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration

	// jitter returns a value in [0,1). Injectable so timing tests are
	// deterministic.
	jitter func() float64
}

func New(maxAttempts int, base, max time.Duration) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		Base:        base,
		Max:         max,
		jitter:      rand.Float64,
	}
}

// NewWithJitter overrides the jitter source. Tests pass a constant.
func NewWithJitter(maxAttempts int, base, max time.Duration, jitter func() float64) *Policy {
	p := New(maxAttempts, base, max)
	p.jitter = jitter
	return p
}

// Decide maps (attempts so far, last outcome) onto a verdict.
//
//   - transport_failure: retry with backoff until MaxAttempts is reached
//   - remote_rejected: never retry; an identical payload cannot succeed
//   - auth_failure: abort the whole batch, not just this entry
//   - success: terminal
func (p *Policy) Decide(attempts int, outcome model.CallOutcome) Decision {
	switch outcome.Kind {
	case model.OutcomeSuccess:
		return Decision{Reason: "succeeded"}

	case model.OutcomeTransportFailure:
		if attempts >= p.MaxAttempts {
			return Decision{Reason: fmt.Sprintf("max attempts exceeded (%d/%d)", attempts, p.MaxAttempts)}
		}
		return Decision{Retry: true, Delay: p.delay(attempts)}

	case model.OutcomeRemoteRejected:
		return Decision{Reason: "rejected by remote ledger"}

	case model.OutcomeAuthFailure:
		return Decision{AbortBatch: true, Reason: "authorization failure"}

	default:
		return Decision{Reason: fmt.Sprintf("unknown outcome kind %q", outcome.Kind)}
	}
}

// delay grows the base exponentially with the attempt count, caps at Max,
// and spreads the result over [delay/2, delay) so concurrently failing
// entries do not retry in lockstep.
func (p *Policy) delay(attempts int) time.Duration {
	d := p.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.Max {
			d = p.Max
			break
		}
	}
	if d > p.Max {
		d = p.Max
	}
	half := d / 2
	return half + time.Duration(p.jitter()*float64(half))
}
