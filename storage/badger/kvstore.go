package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recollect/storage"
)

// KeyValueStore implements storage.KeyValueStore with badger TTL entries.
// It is shared by every pipeline in one process; use the redis store when
// several hosts must see the same counters.
type KeyValueStore struct {
	backend *Backend
}

var _ storage.KeyValueStore = (*KeyValueStore)(nil)

// NewKeyValueStore creates a KeyValueStore over backend.
func NewKeyValueStore(backend *Backend) (*KeyValueStore, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &KeyValueStore{backend: backend}, nil
}

// Get returns the value stored under key. Expired keys are reported as missing.
func (s *KeyValueStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	found := false
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeKVKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		found = err == nil
		return err
	}, false)
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Put stores value under key, expiring after ttl when ttl > 0.
func (s *KeyValueStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		entry := badger.NewEntry(makeKVKey(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := tx.SetEntry(entry); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
