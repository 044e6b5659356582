// Package orchestrator turns a manifest into a bounded-concurrency
// sequence of signed mint calls. It owns every entry's state machine,
// applies the retry policy, records terminal outcomes in the progress
// ledger, and aborts the whole batch on credential failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nftops/mintbatch/internal/audit"
	"github.com/nftops/mintbatch/internal/backoff"
	"github.com/nftops/mintbatch/internal/mint"
	"github.com/nftops/mintbatch/internal/model"
	"github.com/nftops/mintbatch/internal/transport"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// ProgressStore is the slice of the ledger the orchestrator needs.
type ProgressStore interface {
	Succeeded(entryID string) bool
	Upsert(rec model.ProgressRecord) error
}

// Options configures one run.
type Options struct {
	RunID        string
	ManifestPath string
	Config       model.MintConfig
}

// Orchestrator coordinates one batch run. Construct with New, call Run
// once.
type Orchestrator struct {
	opts     Options
	builder  *mint.Builder
	caller   transport.Transport
	policy   *backoff.Policy
	store    ProgressStore
	auditor  audit.Sink
	limiter  *rate.Limiter
	logger   *log.Logger
	logLevel LogLevel

	now   func() time.Time
	abort abortState

	counters model.MetricsCounters
}

func New(opts Options, builder *mint.Builder, caller transport.Transport, policy *backoff.Policy,
	store ProgressStore, auditor audit.Sink, logger *log.Logger, logLevel LogLevel) *Orchestrator {

	var limiter *rate.Limiter
	if opts.Config.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Config.RatePerSec), 1)
	}

	return &Orchestrator{
		opts:     opts,
		builder:  builder,
		caller:   caller,
		policy:   policy,
		store:    store,
		auditor:  auditor,
		limiter:  limiter,
		logger:   logger,
		logLevel: logLevel,
		now:      time.Now,
	}
}

// Metrics returns the counters snapshot for the finished run.
func (o *Orchestrator) Metrics() model.RunMetrics {
	return model.RunMetrics{
		SchemaVersion: 1,
		FileType:      "mint_metrics",
		RunID:         o.opts.RunID,
		Counters:      o.counters,
		UpdatedAt:     o.now().UTC().Format(time.RFC3339),
	}
}

// job is one dispatchable entry. The state pointer is owned by the
// scheduler goroutine; workers only read the immutable request.
type job struct {
	state *model.EntryState
	req   model.MintRequest
}

type jobResult struct {
	job     *job
	outcome model.CallOutcome
}

type retryWait struct {
	readyAt time.Time
	job     *job
}

// Run executes the batch. It returns an error only for run-level
// failures (preflight, ledger write, cancellation); per-entry failures
// are reported through the summary.
func (o *Orchestrator) Run(ctx context.Context, entries []model.ManifestEntry) (model.BatchSummary, error) {
	startedAt := o.now().UTC()
	summary := model.BatchSummary{
		RunID:        o.opts.RunID,
		ManifestPath: o.opts.ManifestPath,
		StartedAt:    startedAt.Format(time.RFC3339),
	}
	o.counters.EntriesTotal = len(entries)

	if pf, ok := o.caller.(transport.Preflighter); ok {
		if err := pf.Preflight(ctx); err != nil {
			return summary, fmt.Errorf("preflight: %w", err)
		}
	}

	o.audit(audit.Entry{EventType: "run_started"})
	o.log(LogLevelInfo, "run_started run=%s entries=%d concurrency=%d",
		o.opts.RunID, len(entries), o.opts.Config.Concurrency)

	states := make([]*model.EntryState, 0, len(entries))
	var pending []*job

	for _, e := range entries {
		st := &model.EntryState{
			EntryID:   e.ID,
			Recipient: e.Recipient,
			Status:    model.StatusPending,
			UpdatedAt: o.timestamp(),
		}
		states = append(states, st)

		if o.opts.Config.Resume && o.store.Succeeded(e.ID) {
			st.Status = model.StatusSucceeded
			summary.Skipped++
			o.counters.EntriesSkipped++
			o.audit(audit.Entry{EventType: "entry_skipped", EntryID: e.ID})
			o.log(LogLevelInfo, "entry_skipped entry=%s reason=already_succeeded", e.ID)
			continue
		}

		req, err := o.builder.Build(e)
		if err != nil {
			st.Attempts = 1
			st.LastError = err.Error()
			o.finalize(st, model.StatusFailed, nil, err.Error())
			o.audit(audit.Entry{EventType: "entry_validation_failed", EntryID: e.ID, Reason: err.Error()})
			o.log(LogLevelWarn, "entry_validation_failed entry=%s error=%v", e.ID, err)
			continue
		}

		pending = append(pending, &job{state: st, req: req})
	}

	err := o.dispatch(ctx, pending)

	for _, st := range states {
		switch st.Status {
		case model.StatusSucceeded:
			// Skipped entries count separately, not as fresh successes.
		case model.StatusFailed:
			summary.Failed++
		}
	}
	summary.Succeeded = o.counters.EntriesSucceeded
	summary.Aborted = o.abortReason() != "" || err != nil
	summary.AbortReason = o.abortReason()
	if err != nil && summary.AbortReason == "" {
		summary.AbortReason = err.Error()
	}
	summary.FinishedAt = o.now().UTC().Format(time.RFC3339)
	for _, st := range states {
		summary.Entries = append(summary.Entries, *st)
	}

	o.audit(audit.Entry{EventType: "run_finished", Reason: summary.AbortReason})
	o.log(LogLevelInfo, "run_finished run=%s succeeded=%d failed=%d skipped=%d aborted=%v",
		o.opts.RunID, summary.Succeeded, summary.Failed, summary.Skipped, summary.Aborted)

	return summary, err
}

// abort state is written only by the scheduler goroutine.
type abortState struct {
	reason string
}

var noAbort = abortState{}

func (o *Orchestrator) abortReason() string {
	return o.abort.reason
}

// dispatch runs the scheduler plus K workers until every queued entry is
// terminal, the batch aborts, or ctx is cancelled.
func (o *Orchestrator) dispatch(ctx context.Context, pending []*job) error {
	if len(pending) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	k := o.opts.Config.Concurrency
	ready := make(chan *job)
	results := make(chan jobResult)

	g, workerCtx := errgroup.WithContext(runCtx)
	for i := 0; i < k; i++ {
		g.Go(func() error {
			return o.worker(workerCtx, ready, results)
		})
	}

	var (
		waiting   []retryWait
		inFlight  int
		cancelled bool
	)
	doneCh := runCtx.Done()

	for inFlight > 0 || len(pending) > 0 || len(waiting) > 0 {
		// Enable the dispatch case only while a slot and a candidate
		// exist; this is what enforces the concurrency bound.
		var readyCh chan *job
		var next *job
		if !cancelled && o.abort == noAbort && inFlight < k && len(pending) > 0 {
			readyCh = ready
			next = pending[0]
		}

		var timerCh <-chan time.Time
		var timer *time.Timer
		if len(waiting) > 0 && !cancelled && o.abort == noAbort {
			earliest := waiting[0].readyAt
			for _, w := range waiting[1:] {
				if w.readyAt.Before(earliest) {
					earliest = w.readyAt
				}
			}
			timer = time.NewTimer(time.Until(earliest))
			timerCh = timer.C
		}

		select {
		case readyCh <- next:
			pending = pending[1:]
			o.transition(next.state, model.StatusInFlight)
			next.state.Attempts++
			inFlight++
			o.counters.CallsDispatched++
			o.log(LogLevelDebug, "entry_dispatched entry=%s attempt=%d", next.state.EntryID, next.state.Attempts)

		case res := <-results:
			inFlight--
			o.handleResult(res, &waiting, cancel)

		case <-timerCh:
			nowT := o.now()
			var due, still []retryWait
			for _, w := range waiting {
				if !w.readyAt.After(nowT) {
					due = append(due, w)
				} else {
					still = append(still, w)
				}
			}
			waiting = still
			for _, w := range due {
				o.transition(w.job.state, model.StatusPending)
				pending = append(pending, w.job)
			}

		case <-doneCh:
			// Fires once; nil afterwards so draining does not spin.
			doneCh = nil
			if ctx.Err() != nil {
				cancelled = true
			}
		}

		if timer != nil {
			timer.Stop()
		}

		// Operator interrupt: undispatched entries keep pending status
		// and no ledger record, so the next run picks them up again.
		if cancelled && (len(pending) > 0 || len(waiting) > 0) {
			pending = nil
			for _, w := range waiting {
				o.transition(w.job.state, model.StatusPending)
			}
			waiting = nil
		}

		// Batch abort: fail everything not yet terminal, then keep
		// looping only to drain in-flight calls.
		if !cancelled && o.abort != noAbort && (len(pending) > 0 || len(waiting) > 0) {
			reason := "aborted: " + o.abort.reason
			for _, j := range pending {
				o.finalize(j.state, model.StatusFailed, nil, reason)
			}
			for _, w := range waiting {
				o.finalize(w.job.state, model.StatusFailed, nil, reason)
			}
			pending = nil
			waiting = nil
		}
	}

	close(ready)
	if err := g.Wait(); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if cancelled {
		return ctx.Err()
	}
	return nil
}

func (o *Orchestrator) worker(ctx context.Context, ready <-chan *job, results chan<- jobResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-ready:
			if !ok {
				return nil
			}
			if o.limiter != nil {
				if err := o.limiter.Wait(ctx); err != nil {
					results <- jobResult{job: j, outcome: model.TransportFailure(err.Error())}
					continue
				}
			}
			outcome := o.caller.Call(ctx, j.req)
			// The scheduler drains results while any call is in flight,
			// so this send always completes.
			results <- jobResult{job: j, outcome: outcome}
		}
	}
}

func (o *Orchestrator) handleResult(res jobResult, waiting *[]retryWait, cancel context.CancelFunc) {
	st := res.job.state
	st.LastOutcome = &res.outcome
	st.UpdatedAt = o.timestamp()

	o.audit(audit.Entry{
		EventType: "attempt_completed",
		EntryID:   st.EntryID,
		Attempt:   st.Attempts,
		Outcome:   string(res.outcome.Kind),
		TokenID:   res.outcome.TokenID,
		Reason:    res.outcome.Reason,
	})

	if res.outcome.Kind == model.OutcomeSuccess {
		o.finalize(st, model.StatusSucceeded, &res.outcome, "")
		o.counters.EntriesSucceeded++
		o.log(LogLevelInfo, "entry_succeeded entry=%s token=%s attempts=%d",
			st.EntryID, res.outcome.TokenID, st.Attempts)
		return
	}

	st.LastError = res.outcome.Reason
	decision := o.policy.Decide(st.Attempts, res.outcome)

	switch {
	case decision.AbortBatch:
		o.abort = abortState{reason: decision.Reason}
		o.counters.AuthAborts++
		o.finalize(st, model.StatusFailed, &res.outcome, res.outcome.Reason)
		o.audit(audit.Entry{EventType: "batch_aborted", EntryID: st.EntryID, Reason: res.outcome.Reason})
		o.log(LogLevelError, "batch_aborted entry=%s reason=%s", st.EntryID, res.outcome.Reason)
		cancel()

	case decision.Retry:
		o.transition(st, model.StatusAwaitingRetry)
		*waiting = append(*waiting, retryWait{readyAt: o.now().Add(decision.Delay), job: res.job})
		o.counters.RetriesScheduled++
		o.log(LogLevelInfo, "entry_retry_scheduled entry=%s attempt=%d delay=%s reason=%s",
			st.EntryID, st.Attempts, decision.Delay, res.outcome.Reason)

	default:
		reason := decision.Reason
		if res.outcome.Reason != "" {
			reason = decision.Reason + ": " + res.outcome.Reason
		}
		o.finalize(st, model.StatusFailed, &res.outcome, reason)
		o.log(LogLevelWarn, "entry_failed entry=%s attempts=%d reason=%s", st.EntryID, st.Attempts, reason)
	}
}

// finalize moves an entry into a terminal state and writes its durable
// record. Ledger writes happen only here, from the scheduler goroutine,
// so records for one run are linearized by construction.
func (o *Orchestrator) finalize(st *model.EntryState, status model.Status, outcome *model.CallOutcome, failureReason string) {
	o.transition(st, status)
	if outcome != nil {
		st.LastOutcome = outcome
	}
	if failureReason != "" {
		st.LastError = failureReason
	}

	rec := model.ProgressRecord{
		EntryID:   st.EntryID,
		Status:    status,
		Attempts:  st.Attempts,
		UpdatedAt: o.timestamp(),
	}
	if outcome != nil {
		rec.TokenID = outcome.TokenID
		rec.TxSignature = outcome.TxSignature
	}
	if status == model.StatusFailed {
		rec.FailureReason = failureReason
		o.counters.EntriesFailed++
	}

	if err := o.store.Upsert(rec); err != nil {
		// The run result still reports the outcome; losing the durable
		// record only costs a redundant re-attempt on the next run.
		o.log(LogLevelError, "ledger_write_failed entry=%s error=%v", st.EntryID, err)
	}

	if status == model.StatusSucceeded {
		o.audit(audit.Entry{EventType: "entry_succeeded", EntryID: st.EntryID, Attempt: st.Attempts, TokenID: rec.TokenID})
	} else {
		o.audit(audit.Entry{EventType: "entry_failed", EntryID: st.EntryID, Attempt: st.Attempts, Reason: failureReason})
	}
}

func (o *Orchestrator) transition(st *model.EntryState, to model.Status) {
	if err := model.ValidateEntryTransition(st.Status, to); err != nil {
		o.log(LogLevelError, "invalid_transition entry=%s error=%v", st.EntryID, err)
	}
	st.Status = to
	st.UpdatedAt = o.timestamp()
}

func (o *Orchestrator) timestamp() string {
	return o.now().UTC().Format(time.RFC3339)
}

func (o *Orchestrator) audit(entry audit.Entry) {
	entry.RunID = o.opts.RunID
	if err := o.auditor.Write(entry); err != nil {
		o.log(LogLevelWarn, "audit_write_failed error=%v", err)
	}
}

func (o *Orchestrator) log(level LogLevel, format string, args ...any) {
	if level < o.logLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	o.logger.Printf("%s %s orchestrator: %s", o.timestamp(), levelStr, msg)
}
