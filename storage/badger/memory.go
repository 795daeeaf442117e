// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/storage"
)

// MemoryRepository implements storage.MemoryRepository for BadgerDB.
type MemoryRepository struct {
	backend *Backend
}

var _ storage.MemoryRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new MemoryRepository.
func NewMemoryRepository(backend *Backend) (*MemoryRepository, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &MemoryRepository{backend: backend}, nil
}

// Close is a no-op; the backend owns the database handle.
func (r *MemoryRepository) Close() error {
	return nil
}

// StageMemories upserts memories and writes their pending markers atomically.
func (r *MemoryRepository) StageMemories(ctx context.Context, memories ...*core.Memory) ([]*core.Memory, error) {
	previous := make([]*core.Memory, len(memories))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for i, memory := range memories {
			old, err := readMemory(tx, makeMemoryKey(memory.Id))
			if err != nil {
				return err
			}
			previous[i] = old

			if old != nil {
				memory.CreatedAt = old.CreatedAt
				memory.Version = old.Version + 1
			} else {
				if memory.CreatedAt.IsZero() {
					memory.CreatedAt = now
				}
				memory.Version = 1
			}
			memory.UpdatedAt = now

			if err := writeMemory(tx, memory); err != nil {
				return err
			}
			if err := tx.Set(makePendingKey(memory.Id), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// MarkPending sets pending markers on existing memories.
func (r *MemoryRepository) MarkPending(ctx context.Context, ids ...core.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			if _, err := tx.Get(makeMemoryKey(id)); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			if err := tx.Set(makePendingKey(id), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ClearPending removes pending markers.
func (r *MemoryRepository) ClearPending(ctx context.Context, ids ...core.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makePendingKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// RollbackMemories restores previous versions or deletes new records.
func (r *MemoryRepository) RollbackMemories(ctx context.Context, staged, previous []*core.Memory) error {
	if len(staged) != len(previous) {
		return storage.ErrInvalidQuery
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for i, memory := range staged {
			if err := deleteMemory(tx, memory.Id); err != nil {
				return err
			}
			if previous[i] != nil {
				if err := writeMemory(tx, previous[i]); err != nil {
					return err
				}
			}
			if err := tx.Delete(makePendingKey(memory.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ListPending returns the IDs of memories with a pending marker.
func (r *MemoryRepository) ListPending(ctx context.Context) ([]core.ID, error) {
	var ids []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(memoryPendingPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			id, err := idFromKey(iter.Item().Key())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}, false)
	return ids, err
}

// GetMemory retrieves a single memory by ID.
func (r *MemoryRepository) GetMemory(ctx context.Context, id core.ID) (*core.Memory, error) {
	var result *core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readMemory(tx, makeMemoryKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetMemories retrieves multiple memories by their IDs.
func (r *MemoryRepository) GetMemories(ctx context.Context, ids ...core.ID) ([]*core.Memory, error) {
	var result []*core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			memory, err := readMemory(tx, makeMemoryKey(id))
			if err != nil {
				return err
			}
			if memory != nil {
				result = append(result, memory)
			}
		}
		return nil
	}, false)
	return result, err
}

// DeleteMemories removes memories, their date index entries and pending markers.
func (r *MemoryRepository) DeleteMemories(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := deleteMemory(tx, id); err != nil {
				return err
			}
			if err := tx.Delete(makePendingKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetRecentMemories retrieves the N most recently created memories.
func (r *MemoryRepository) GetRecentMemories(ctx context.Context, limit int) ([]*core.Memory, error) {
	var results []*core.Memory
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Reverse iteration over the date index yields newest first
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		prefix := []byte(memoryDatePrefix)
		seekKey := append(bytes.Clone(prefix), bytes.Repeat([]byte{0xff}, 16)...)

		for iter.Seek(seekKey); iter.ValidForPrefix(prefix) && len(results) < limit; iter.Next() {
			id, err := idFromKey(iter.Item().Key())
			if err != nil {
				return err
			}
			memory, err := readMemory(tx, makeMemoryKey(id))
			if err != nil {
				return err
			}
			if memory != nil {
				results = append(results, memory)
			}
		}
		return nil
	}, false)
	return results, err
}

// ScanMemories walks all memories in ID order, one read transaction per batch.
func (r *MemoryRepository) ScanMemories(ctx context.Context, batchSize int, fn func([]*core.Memory) error) error {
	if batchSize <= 0 {
		return storage.ErrInvalidQuery
	}

	prefix := []byte(memoryPrefix)
	seek := prefix
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch []*core.Memory
		var next []byte
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			iter := tx.NewIterator(badger.DefaultIteratorOptions)
			defer iter.Close()

			for iter.Seek(seek); iter.ValidForPrefix(prefix); iter.Next() {
				item := iter.Item()
				if len(batch) == batchSize {
					next = item.KeyCopy(nil)
					return nil
				}
				var memory *core.Memory
				if err := item.Value(func(val []byte) error {
					var err error
					memory, err = storage.UnmarshalMemory(val)
					return err
				}); err != nil {
					return err
				}
				batch = append(batch, memory)
			}
			return nil
		}, false)
		if err != nil {
			return err
		}

		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}
		if next == nil {
			return nil
		}
		seek = next
	}
}

// CountMemories returns the number of stored memories.
func (r *MemoryRepository) CountMemories(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(memoryPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// Helper functions

// readMemory reads a memory from the transaction. Returns nil, nil if missing.
func readMemory(tx *badger.Txn, key []byte) (*core.Memory, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var memory *core.Memory
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		memory, unmarshalErr = storage.UnmarshalMemory(val)
		return unmarshalErr
	})
	return memory, err
}

// writeMemory stores the primary record and its date index entry.
func writeMemory(tx *badger.Txn, memory *core.Memory) error {
	value, err := storage.MarshalMemory(memory)
	if err != nil {
		return err
	}
	if err := tx.Set(makeMemoryKey(memory.Id), value); err != nil {
		return err
	}
	return tx.Set(makeMemoryDateKey(memory), storage.MarshalID(memory.Id))
}

// deleteMemory removes the primary record and its date index entry.
func deleteMemory(tx *badger.Txn, id core.ID) error {
	key := makeMemoryKey(id)
	memory, err := readMemory(tx, key)
	if err != nil || memory == nil {
		return err
	}
	if err := tx.Delete(makeMemoryDateKey(memory)); err != nil {
		return err
	}
	return tx.Delete(key)
}
