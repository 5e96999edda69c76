// Package snapstore archives pre-submission state snapshots so a failed call
// can be replayed offline, after the chain has moved past the failing point.
package snapstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/fxamacker/cbor/v2"

	"github.com/tvmlabs/tonctl/internal/logz"
)

// ErrNotFound is returned when no snapshot exists for a message id.
var ErrNotFound = errors.New("snapshot not found")

const keyPrefix = "snap:"

// Record is one archived snapshot: everything a replay needs to reproduce
// the failing transaction.
type Record struct {
	MessageID  []byte    `cbor:"1,keyasint"`
	MessageBOC []byte    `cbor:"2,keyasint"`
	AccountBOC []byte    `cbor:"3,keyasint"`
	ConfigBOC  []byte    `cbor:"4,keyasint"`
	Addr       string    `cbor:"5,keyasint"`
	LT         uint64    `cbor:"6,keyasint"`
	Now        uint32    `cbor:"7,keyasint"`
	ExpireAt   uint32    `cbor:"8,keyasint"`
	CreatedAt  time.Time `cbor:"9,keyasint"`
}

// Store is a Badger-backed snapshot archive.
type Store struct {
	db     *badger.DB
	logger *logz.Logger
	done   chan struct{}
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts = opts.WithSyncWrites(false)
	opts = opts.WithCompression(options.None)
	opts = opts.WithValueLogFileSize(16 << 20)
	opts = opts.WithNumMemtables(2)
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot archive: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logz.New(logz.INFO, "snapstore"),
		done:   make(chan struct{}),
	}
	go s.runGC()
	return s, nil
}

// Put archives a snapshot keyed by its message id.
func (s *Store) Put(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("snapshot record cannot be nil")
	}
	if len(rec.MessageID) == 0 {
		return fmt.Errorf("snapshot record has no message id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec.MessageID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store snapshot %x: %w", rec.MessageID, err)
	}
	return nil
}

// Get loads the snapshot for a message id.
func (s *Store) Get(messageID []byte) (*Record, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(messageID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %x: %w", messageID, err)
	}

	var rec Record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %x: %w", messageID, err)
	}
	return &rec, nil
}

// Delete removes the snapshot for a message id. Deleting a missing snapshot
// is not an error.
func (s *Store) Delete(messageID []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(messageID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %x: %w", messageID, err)
	}
	return nil
}

// List returns up to limit archived snapshots, unordered. A zero limit
// returns all of them.
func (s *Store) List(limit int) ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec Record
			if err := cbor.Unmarshal(data, &rec); err != nil {
				s.logger.Warn("skipping undecodable snapshot %s: %v", it.Item().Key(), err)
				continue
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return records, nil
}

// Count returns the number of archived snapshots.
func (s *Store) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// Close stops background maintenance and closes the database.
func (s *Store) Close() error {
	close(s.done)
	return s.db.Close()
}

func (s *Store) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("value log GC: %v", err)
			}
		}
	}
}

func key(messageID []byte) []byte {
	return []byte(keyPrefix + hex.EncodeToString(messageID))
}
