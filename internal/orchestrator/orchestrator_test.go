package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftops/mintbatch/internal/audit"
	"github.com/nftops/mintbatch/internal/backoff"
	"github.com/nftops/mintbatch/internal/mint"
	"github.com/nftops/mintbatch/internal/model"
)

const (
	testRecipient = "11111111111111111111111111111111"
	testAuthority = "9sHYJSwqwcyrFmCSTFkCDbCKFCPGPBKDurwtVzvMWPbd"
)

// scriptedTransport returns pre-programmed outcomes per entry, in order,
// and tracks concurrency.
type scriptedTransport struct {
	mu       sync.Mutex
	script   map[string][]model.CallOutcome
	calls    map[string]int
	delay    time.Duration
	inAir    int32
	maxInAir int32
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		script: make(map[string][]model.CallOutcome),
		calls:  make(map[string]int),
	}
}

func (s *scriptedTransport) on(entryID string, outcomes ...model.CallOutcome) {
	s.script[entryID] = outcomes
}

func (s *scriptedTransport) callCount(entryID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[entryID]
}

func (s *scriptedTransport) Call(ctx context.Context, req model.MintRequest) model.CallOutcome {
	cur := atomic.AddInt32(&s.inAir, 1)
	for {
		max := atomic.LoadInt32(&s.maxInAir)
		if cur <= max || atomic.CompareAndSwapInt32(&s.maxInAir, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&s.inAir, -1)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return model.TransportFailure(ctx.Err().Error())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls[req.EntryID]
	s.calls[req.EntryID] = n + 1

	outcomes := s.script[req.EntryID]
	if n >= len(outcomes) {
		return model.Success("token-"+req.EntryID, "sig-"+req.EntryID)
	}
	return outcomes[n]
}

// memStore is an in-memory stand-in for the progress ledger.
type memStore struct {
	mu   sync.Mutex
	recs map[string]model.ProgressRecord
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]model.ProgressRecord)}
}

func (m *memStore) markSucceeded(entryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[entryID] = model.ProgressRecord{EntryID: entryID, Status: model.StatusSucceeded}
}

func (m *memStore) Succeeded(entryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recs[entryID].Status == model.StatusSucceeded
}

func (m *memStore) Upsert(rec model.ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.recs[rec.EntryID]; ok && prev.Status == model.StatusSucceeded {
		return fmt.Errorf("entry %s already succeeded", rec.EntryID)
	}
	m.recs[rec.EntryID] = rec
	return nil
}

func (m *memStore) get(entryID string) (model.ProgressRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[entryID]
	return rec, ok
}

func testEntries(n int) []model.ManifestEntry {
	entries := make([]model.ManifestEntry, n)
	for i := range entries {
		entries[i] = model.ManifestEntry{
			ID:        fmt.Sprintf("entry_%04d", i+1),
			Recipient: testRecipient,
			Metadata:  model.MetadataSpec{Name: fmt.Sprintf("Token %d", i+1)},
		}
	}
	return entries
}

func newTestOrchestrator(t *testing.T, cfg model.MintConfig, caller *scriptedTransport, store *memStore) *Orchestrator {
	t.Helper()
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	policy := backoff.NewWithJitter(cfg.MaxAttempts, time.Millisecond, 4*time.Millisecond,
		func() float64 { return 0 })
	return New(
		Options{RunID: "run_1700000000_a1b2c3d4", ManifestPath: "batch.yaml", Config: cfg},
		mint.NewBuilder(testAuthority),
		caller,
		policy,
		store,
		audit.Nop{},
		log.New(io.Discard, "", 0),
		LogLevelError,
	)
}

func TestRunAllSucceed(t *testing.T) {
	caller := newScriptedTransport()
	store := newMemStore()
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 2}, caller, store)

	summary, err := o.Run(context.Background(), testEntries(3))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.False(t, summary.Aborted)
	require.Len(t, summary.Entries, 3)

	for _, e := range summary.Entries {
		assert.Equal(t, model.StatusSucceeded, e.Status)
		assert.Equal(t, 1, e.Attempts)
		rec, ok := store.get(e.EntryID)
		require.True(t, ok, "entry %s should have a ledger record", e.EntryID)
		assert.Equal(t, model.StatusSucceeded, rec.Status)
		assert.Equal(t, "token-"+e.EntryID, rec.TokenID)
	}
}

func TestRunRetriesTransportFailuresThenSucceeds(t *testing.T) {
	caller := newScriptedTransport()
	caller.on("entry_0001",
		model.TransportFailure("timeout"),
		model.TransportFailure("timeout"),
		model.Success("token-late", "sig-late"))
	caller.on("entry_0002", model.RemoteRejected("duplicate token"))
	store := newMemStore()
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 2, MaxAttempts: 5}, caller, store)

	summary, err := o.Run(context.Background(), testEntries(2))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	a := summary.Entries[0]
	assert.Equal(t, model.StatusSucceeded, a.Status)
	assert.Equal(t, 3, a.Attempts)

	b := summary.Entries[1]
	assert.Equal(t, model.StatusFailed, b.Status)
	assert.Equal(t, 1, b.Attempts, "a rejected payload must not be retried")
	assert.Contains(t, b.LastError, "duplicate token")

	rec, _ := store.get("entry_0001")
	assert.Equal(t, "token-late", rec.TokenID)
	rec, _ = store.get("entry_0002")
	assert.Equal(t, model.StatusFailed, rec.Status)
}

func TestRunStopsRetryingAtMaxAttempts(t *testing.T) {
	caller := newScriptedTransport()
	caller.on("entry_0001",
		model.TransportFailure("reset"),
		model.TransportFailure("reset"),
		model.TransportFailure("reset"),
		model.TransportFailure("reset"))
	store := newMemStore()
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 1, MaxAttempts: 3}, caller, store)

	summary, err := o.Run(context.Background(), testEntries(1))
	require.NoError(t, err)

	assert.Equal(t, 3, caller.callCount("entry_0001"))
	e := summary.Entries[0]
	assert.Equal(t, model.StatusFailed, e.Status)
	assert.Equal(t, 3, e.Attempts)
	assert.Contains(t, e.LastError, "reset")

	m := o.Metrics()
	assert.Equal(t, 3, m.Counters.CallsDispatched)
	assert.Equal(t, 2, m.Counters.RetriesScheduled)
}

func TestRunSkipsAlreadySucceededOnResume(t *testing.T) {
	caller := newScriptedTransport()
	store := newMemStore()
	store.markSucceeded("entry_0001")
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 2, Resume: true}, caller, store)

	summary, err := o.Run(context.Background(), testEntries(3))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, caller.callCount("entry_0001"), "a succeeded entry must never be re-dispatched")
	assert.Equal(t, 1, caller.callCount("entry_0002"))
	assert.Equal(t, 1, caller.callCount("entry_0003"))
}

func TestRunWithoutResumeDoesNotSkip(t *testing.T) {
	caller := newScriptedTransport()
	store := newMemStore()
	store.markSucceeded("entry_0001")
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 1}, caller, store)

	summary, err := o.Run(context.Background(), testEntries(1))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, caller.callCount("entry_0001"))
}

func TestRunBoundsConcurrency(t *testing.T) {
	caller := newScriptedTransport()
	caller.delay = 20 * time.Millisecond
	store := newMemStore()
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 2}, caller, store)

	summary, err := o.Run(context.Background(), testEntries(8))
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Succeeded)
	assert.LessOrEqual(t, atomic.LoadInt32(&caller.maxInAir), int32(2),
		"more calls in flight than the concurrency bound")
}

func TestRunAbortsBatchOnAuthFailure(t *testing.T) {
	caller := newScriptedTransport()
	caller.on("entry_0001", model.AuthFailure("signature verification failure"))
	store := newMemStore()
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 1, MaxAttempts: 5}, caller, store)

	summary, err := o.Run(context.Background(), testEntries(3))
	require.NoError(t, err)

	assert.True(t, summary.Aborted)
	assert.Contains(t, summary.AbortReason, "authorization failure")
	assert.Equal(t, 3, summary.Failed)

	first := summary.Entries[0]
	assert.Equal(t, model.StatusFailed, first.Status)
	assert.Contains(t, first.LastError, "signature verification failure")

	for _, e := range summary.Entries[1:] {
		assert.Equal(t, model.StatusFailed, e.Status)
		assert.Contains(t, e.LastError, "authorization failure")
		assert.Equal(t, 0, caller.callCount(e.EntryID), "no dispatches after an auth abort")
		rec, ok := store.get(e.EntryID)
		require.True(t, ok)
		assert.Equal(t, model.StatusFailed, rec.Status)
	}

	assert.Equal(t, 1, o.Metrics().Counters.AuthAborts)
}

func TestRunMarksValidationFailuresTerminal(t *testing.T) {
	caller := newScriptedTransport()
	store := newMemStore()
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 2}, caller, store)

	entries := testEntries(2)
	entries[1].Recipient = "not base58!"

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	bad := summary.Entries[1]
	assert.Equal(t, model.StatusFailed, bad.Status)
	assert.Equal(t, 1, bad.Attempts)
	assert.Contains(t, bad.LastError, "validation")
	assert.Equal(t, 0, caller.callCount("entry_0002"), "invalid entries must not reach the network")
}

func TestRunCancellationPreservesPendingEntries(t *testing.T) {
	caller := newScriptedTransport()
	caller.delay = time.Hour
	store := newMemStore()
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 1}, caller, store)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	summary, err := o.Run(ctx, testEntries(3))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Aborted)

	var terminalRecords int
	for _, e := range summary.Entries {
		if _, ok := store.get(e.EntryID); ok {
			terminalRecords++
		}
	}
	assert.Zero(t, terminalRecords, "interrupted entries must not get ledger records")
	for _, e := range summary.Entries {
		assert.Equal(t, model.StatusPending, e.Status)
	}
}

func TestRunEmptyAfterSkips(t *testing.T) {
	caller := newScriptedTransport()
	store := newMemStore()
	store.markSucceeded("entry_0001")
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 2, Resume: true}, caller, store)

	summary, err := o.Run(context.Background(), testEntries(1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Succeeded)
	assert.False(t, summary.Aborted)
}

func TestMetricsCounters(t *testing.T) {
	caller := newScriptedTransport()
	caller.on("entry_0002", model.TransportFailure("timeout"), model.Success("tok", "sig"))
	store := newMemStore()
	store.markSucceeded("entry_0001")
	o := newTestOrchestrator(t, model.MintConfig{Concurrency: 2, Resume: true, MaxAttempts: 3}, caller, store)

	_, err := o.Run(context.Background(), testEntries(3))
	require.NoError(t, err)

	m := o.Metrics()
	assert.Equal(t, "mint_metrics", m.FileType)
	assert.Equal(t, 3, m.Counters.EntriesTotal)
	assert.Equal(t, 1, m.Counters.EntriesSkipped)
	assert.Equal(t, 3, m.Counters.CallsDispatched)
	assert.Equal(t, 2, m.Counters.EntriesSucceeded)
	assert.Equal(t, 1, m.Counters.RetriesScheduled)
}
