package history

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/jamesainslie/hasher/pkg/hasher/logging"
)

var logger = logging.Get("history")

var (
	// ErrNotFound is returned when no run matches.
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguousID is returned when an ID prefix matches several runs.
	ErrAmbiguousID = errors.New("ambiguous run id")
)

// Key layout:
//
//	run/<inverted unix nanos, 8 bytes BE>/<id>  -> JSON Run (newest first)
//	id/<id>                                     -> run key
//	gen/<root>\x00<manifest>                    -> run key of the latest generation
var (
	runPrefix = []byte("run/")
	idPrefix  = []byte("id/")
	genPrefix = []byte("gen/")
)

// minIDPrefix is the shortest ID prefix accepted by Get.
const minIDPrefix = 4

// Store wraps Badger for run history.
type Store struct {
	db *badger.DB
}

// Open opens or creates a history store at the given directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return open(badger.DefaultOptions(path))
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func runKey(r *Run) []byte {
	key := make([]byte, 0, len(runPrefix)+8+1+len(r.ID))
	key = append(key, runPrefix...)
	key = binary.BigEndian.AppendUint64(key, math.MaxUint64-uint64(r.Time.UnixNano()))
	key = append(key, '/')
	return append(key, r.ID...)
}

func genKey(root, manifest string) []byte {
	return []byte(string(genPrefix) + root + "\x00" + manifest)
}

// Record stores a run. A missing ID or time is filled in.
func (s *Store) Record(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}

	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	key := runKey(r)

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		if err := txn.Set(append(bytes.Clone(idPrefix), r.ID...), key); err != nil {
			return err
		}
		if r.Operation == OpGenerate {
			return txn.Set(genKey(r.Root, r.Manifest), key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	logger.Debug("run recorded", "id", r.ID, "operation", r.Operation, "root", r.Root)
	return nil
}

// List returns runs newest first. If limit is 0 or negative, all runs are
// returned.
func (s *Store) List(limit int) ([]Run, error) {
	var runs []Run

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var r Run
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &r)
			}); err != nil {
				return err
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with the given ID or unique ID prefix of at least
// four characters.
func (s *Store) Get(id string) (*Run, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if len(id) < minIDPrefix {
		return nil, fmt.Errorf("%w: %q (need at least %d characters)", ErrNotFound, id, minIDPrefix)
	}

	var run Run
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := append(bytes.Clone(idPrefix), id...)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var key []byte
		for it.Rewind(); it.Valid(); it.Next() {
			if key != nil {
				return fmt.Errorf("%w: %q", ErrAmbiguousID, id)
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			key = v
		}
		if key == nil {
			return fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return loadRun(txn, key, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LastGenerate returns the most recent generation recorded for the
// manifest file name in root.
func (s *Store) LastGenerate(root, manifest string) (*Run, error) {
	var run Run
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(genKey(root, manifest))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return loadRun(txn, key, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func loadRun(txn *badger.Txn, key []byte, r *Run) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, r)
	})
}

// Cleanup removes runs older than retentionDays and returns how many were
// removed. A retention of zero or less keeps everything.
func (s *Store) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var expired []Run
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r Run
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &r)
			}); err != nil {
				return err
			}
			if r.Time.Before(cutoff) {
				expired = append(expired, r)
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan runs: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i, r := range expired {
		if err := wb.Delete(keys[i]); err != nil {
			return 0, err
		}
		if err := wb.Delete(append(bytes.Clone(idPrefix), r.ID...)); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}

	// Generation pointers to deleted runs are dropped with them.
	if err := s.pruneGenerations(); err != nil {
		return 0, err
	}

	if len(expired) > 0 {
		logger.Info("history cleaned", "removed", len(expired), "retention_days", retentionDays)
	}
	return len(expired), nil
}

func (s *Store) pruneGenerations() error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = genPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			target, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if _, err := txn.Get(target); errors.Is(err, badger.ErrKeyNotFound) {
				stale = append(stale, it.Item().KeyCopy(nil))
			} else if err != nil {
				return err
			}
		}
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
