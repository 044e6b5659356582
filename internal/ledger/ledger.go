// Package ledger is the durable per-entry progress store. It is the only
// component whose state outlives a single run: a re-run reads it to skip
// entries that already minted.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nftops/mintbatch/internal/lock"
	"github.com/nftops/mintbatch/internal/model"
	"github.com/nftops/mintbatch/internal/yamlutil"
)

const (
	FileType      = "mint_ledger"
	SchemaVersion = 1
)

// DefaultPath places the ledger next to its manifest.
func DefaultPath(manifestPath string) string {
	base := strings.TrimSuffix(manifestPath, filepath.Ext(manifestPath))
	return base + ".ledger.yaml"
}

// Store is the single logical writer for one ledger file. In-process
// writers are linearized through the MutexMap; a flock keeps other
// processes out entirely.
type Store struct {
	path     string
	lockMap  *lock.MutexMap
	fileLock *lock.FileLock

	records map[string]model.ProgressRecord
	order   []string
}

// Open acquires the ledger and loads any existing records. The returned
// store must be Closed to release the file lock.
func Open(path string, lockMap *lock.MutexMap) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	fileLock := lock.NewFileLock(path + ".lock")
	if err := fileLock.TryLock(); err != nil {
		return nil, err
	}

	s := &Store{
		path:     path,
		lockMap:  lockMap,
		fileLock: fileLock,
		records:  make(map[string]model.ProgressRecord),
	}

	var file model.LedgerFile
	err := yamlutil.ReadInto(path, &file)
	switch {
	case os.IsNotExist(err):
		// Fresh ledger.
	case err != nil:
		fileLock.Unlock()
		return nil, fmt.Errorf("load ledger: %w", err)
	default:
		if file.FileType != "" && file.FileType != FileType {
			fileLock.Unlock()
			return nil, fmt.Errorf("unexpected file_type %q in %s", file.FileType, path)
		}
		for _, rec := range file.Records {
			if _, dup := s.records[rec.EntryID]; !dup {
				s.order = append(s.order, rec.EntryID)
			}
			s.records[rec.EntryID] = rec
		}
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.fileLock.Unlock()
}

func (s *Store) Path() string {
	return s.path
}

// Get returns the record for entryID, if any.
func (s *Store) Get(entryID string) (model.ProgressRecord, bool) {
	s.lockMap.Lock(s.lockKey())
	defer s.lockMap.Unlock(s.lockKey())
	rec, ok := s.records[entryID]
	return rec, ok
}

// Succeeded reports whether entryID already has a durable succeeded
// record. Such entries are never re-dispatched.
func (s *Store) Succeeded(entryID string) bool {
	rec, ok := s.Get(entryID)
	return ok && rec.Status == model.StatusSucceeded
}

// Records returns all records in first-seen order.
func (s *Store) Records() []model.ProgressRecord {
	s.lockMap.Lock(s.lockKey())
	defer s.lockMap.Unlock(s.lockKey())
	out := make([]model.ProgressRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Upsert writes one terminal record and persists the whole file
// atomically. A succeeded record is final: it is never overwritten, so a
// later failed run cannot mask a confirmed mint.
func (s *Store) Upsert(rec model.ProgressRecord) error {
	if !model.IsTerminal(rec.Status) {
		return fmt.Errorf("ledger records are terminal-only, got status %q for %s", rec.Status, rec.EntryID)
	}

	s.lockMap.Lock(s.lockKey())
	defer s.lockMap.Unlock(s.lockKey())

	if prev, ok := s.records[rec.EntryID]; ok {
		if prev.Status == model.StatusSucceeded {
			return fmt.Errorf("entry %s already succeeded; refusing to overwrite", rec.EntryID)
		}
	} else {
		s.order = append(s.order, rec.EntryID)
	}
	s.records[rec.EntryID] = rec

	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	file := model.LedgerFile{
		SchemaVersion: SchemaVersion,
		FileType:      FileType,
		Records:       make([]model.ProgressRecord, 0, len(s.order)),
	}
	for _, id := range s.order {
		file.Records = append(file.Records, s.records[id])
	}
	if err := yamlutil.AtomicWrite(s.path, file); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func (s *Store) lockKey() string {
	return "ledger:" + s.path
}
