package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftops/mintbatch/internal/lock"
	"github.com/nftops/mintbatch/internal/model"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, lock.NewMutexMap())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func succeededRecord(id, token string) model.ProgressRecord {
	return model.ProgressRecord{
		EntryID:   id,
		Status:    model.StatusSucceeded,
		TokenID:   token,
		Attempts:  1,
		UpdatedAt: "2026-08-30T12:00:00Z",
	}
}

func failedRecord(id, reason string) model.ProgressRecord {
	return model.ProgressRecord{
		EntryID:       id,
		Status:        model.StatusFailed,
		FailureReason: reason,
		Attempts:      3,
		UpdatedAt:     "2026-08-30T12:00:00Z",
	}
}

func TestOpenFreshLedger(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "batch.ledger.yaml"))
	assert.Empty(t, s.Records())
	assert.False(t, s.Succeeded("entry_0001"))
}

func TestUpsertAndGet(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "batch.ledger.yaml"))

	require.NoError(t, s.Upsert(succeededRecord("entry_0001", "token-a")))

	rec, ok := s.Get("entry_0001")
	require.True(t, ok)
	assert.Equal(t, "token-a", rec.TokenID)
	assert.True(t, s.Succeeded("entry_0001"))
}

func TestUpsertRejectsNonTerminal(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "batch.ledger.yaml"))

	for _, st := range []model.Status{model.StatusPending, model.StatusInFlight, model.StatusAwaitingRetry} {
		err := s.Upsert(model.ProgressRecord{EntryID: "entry_0001", Status: st})
		require.Error(t, err, "status %s", st)
		assert.Contains(t, err.Error(), "terminal-only")
	}
}

func TestSucceededRecordIsNeverOverwritten(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "batch.ledger.yaml"))

	require.NoError(t, s.Upsert(succeededRecord("entry_0001", "token-a")))
	err := s.Upsert(failedRecord("entry_0001", "late failure"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already succeeded")

	rec, _ := s.Get("entry_0001")
	assert.Equal(t, model.StatusSucceeded, rec.Status)
	assert.Equal(t, "token-a", rec.TokenID)
}

func TestFailedRecordCanBeReplaced(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "batch.ledger.yaml"))

	require.NoError(t, s.Upsert(failedRecord("entry_0001", "timeout")))
	require.NoError(t, s.Upsert(succeededRecord("entry_0001", "token-b")))

	assert.True(t, s.Succeeded("entry_0001"))
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.ledger.yaml")

	s, err := Open(path, lock.NewMutexMap())
	require.NoError(t, err)
	require.NoError(t, s.Upsert(succeededRecord("entry_0001", "token-a")))
	require.NoError(t, s.Upsert(failedRecord("entry_0002", "rejected")))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	recs := reopened.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "entry_0001", recs[0].EntryID)
	assert.Equal(t, "entry_0002", recs[1].EntryID)
	assert.True(t, reopened.Succeeded("entry_0001"))
	assert.False(t, reopened.Succeeded("entry_0002"))
}

func TestSecondOpenIsLockedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.ledger.yaml")

	s, err := Open(path, lock.NewMutexMap())
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(path, lock.NewMutexMap())
	require.Error(t, err)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "drops/batch.ledger.yaml", DefaultPath("drops/batch.yaml"))
	assert.Equal(t, "batch.ledger.yaml", DefaultPath("batch.yml"))
}
