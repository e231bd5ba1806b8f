// Copyright 2025 Certen Protocol
//
// Package kvdb adapts CometBFT's embedded ordered key-value store
// (github.com/cometbft/cometbft-db) to the narrow contract the ledger
// repository needs: point put/get, prefix range iteration in ascending
// byte order, and atomic multi-key writes. The teacher wrapped only Get
// and Set; this adds WriteBatch and ScanPrefix so the repository never
// touches dbm.DB directly (spec.md §4.4).
package kvdb

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// Backend selects the underlying embedded storage engine. GoLevelDB is the
// default: pure Go, no cgo, ordered by byte key.
type Backend string

const (
	BackendGoLevelDB Backend = "goleveldb"
	BackendMemDB     Backend = "memdb"
)

// Store is the KV contract the ledger repository depends on.
type Store struct {
	db dbm.DB
}

// Open creates or opens an embedded KV store of the given backend rooted
// at dataDir/name.
func Open(backend Backend, name, dataDir string) (*Store, error) {
	var (
		db  dbm.DB
		err error
	)
	switch backend {
	case BackendMemDB:
		db = dbm.NewMemDB()
	case BackendGoLevelDB, "":
		db, err = dbm.NewGoLevelDB(name, dataDir)
		if err != nil {
			return nil, fmt.Errorf("kvdb: open goleveldb: %w", err)
		}
	default:
		return nil, fmt.Errorf("kvdb: unknown backend %q", backend)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an already-open dbm.DB, for tests and for callers that
// manage the underlying engine's lifecycle themselves.
func NewFromDB(db dbm.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put durably upserts key -> value.
func (s *Store) Put(key, value []byte) error {
	if err := s.db.SetSync(key, value); err != nil {
		return fmt.Errorf("kvdb: put: %w", err)
	}
	return nil
}

// Get returns the value for key, or (nil, false, nil) if absent.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("kvdb: get: %w", err)
	}
	if v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

// Entry is one key/value pair to be written atomically via WriteBatch.
type Entry struct {
	Key   []byte
	Value []byte
}

// WriteBatch commits all entries atomically: all keys land or none do.
// This is the only way the repository is permitted to persist multi-key
// updates (spec.md §4.5's save_block: block + fingerprint index + head
// pointer in one batch).
func (s *Store) WriteBatch(entries []Entry) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		if err := batch.Set(e.Key, e.Value); err != nil {
			return fmt.Errorf("kvdb: batch set: %w", err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("kvdb: batch write: %w", err)
	}
	return nil
}

// KV is a single key/value pair returned from a scan.
type KV struct {
	Key   []byte
	Value []byte
}

// Iterator yields key/value pairs in ascending byte-key order.
type Iterator interface {
	Next() bool
	Item() KV
	Error() error
	Close()
}

type prefixIterator struct {
	it  dbm.Iterator
	cur KV
}

func (p *prefixIterator) Next() bool {
	if !p.it.Valid() {
		return false
	}
	key := append([]byte(nil), p.it.Key()...)
	val := append([]byte(nil), p.it.Value()...)
	p.cur = KV{Key: key, Value: val}
	p.it.Next()
	return true
}

func (p *prefixIterator) Item() KV { return p.cur }
func (p *prefixIterator) Error() error {
	return p.it.Error()
}
func (p *prefixIterator) Close() { p.it.Close() }

// ScanPrefix returns a lazy iterator over every key beginning with prefix,
// in ascending byte order. Callers must Close the iterator.
//
// The contract this upholds: ScanPrefix observes any WriteBatch that has
// already returned successfully to its caller (cometbft-db's dbm.DB gives
// read-your-writes consistency for a single process by construction).
func (s *Store) ScanPrefix(prefix []byte) (Iterator, error) {
	end := prefixUpperBound(prefix)
	it, err := s.db.Iterator(prefix, end)
	if err != nil {
		return nil, fmt.Errorf("kvdb: scan prefix: %w", err)
	}
	return &prefixIterator{it: it}, nil
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, i.e. prefix with its last byte incremented (carrying
// as needed). A nil result means "no upper bound" (prefix was all 0xff).
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] == 0xff {
			end = end[:i]
			continue
		}
		end[i]++
		return end
	}
	return nil
}
