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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/storage"
)

// DefaultRunRetention is how long run log entries are kept.
const DefaultRunRetention = 7 * 24 * time.Hour

// RunRepository implements storage.RunRepository for BadgerDB.
// Entries are keyed by a monotonically increasing sequence and expire
// after the retention period.
type RunRepository struct {
	backend   *Backend
	seq       *badger.Sequence
	retention time.Duration
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository. A retention of zero uses
// DefaultRunRetention.
func NewRunRepository(backend *Backend, retention time.Duration) (*RunRepository, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	seq, err := backend.GetSequence(runIDSeq)
	if err != nil {
		return nil, err
	}
	if retention <= 0 {
		retention = DefaultRunRetention
	}
	return &RunRepository{
		backend:   backend,
		seq:       seq,
		retention: retention,
	}, nil
}

// Close releases the sequence.
func (r *RunRepository) Close() error {
	return r.seq.Release()
}

// SaveRun appends a run record to the log.
func (r *RunRepository) SaveRun(ctx context.Context, run *core.RunRecord) error {
	next, err := r.seq.Next()
	if err != nil {
		return err
	}
	value, err := storage.MarshalRunRecord(run)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		entry := badger.NewEntry(makeRunKey(next), value).WithTTL(r.retention)
		if err := tx.SetEntry(entry); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListRuns returns up to limit runs, most recent first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*core.RunRecord, error) {
	var runs []*core.RunRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		prefix := []byte(runPrefix)
		seekKey := append(bytes.Clone(prefix), bytes.Repeat([]byte{0xff}, 8)...)

		for iter.Seek(seekKey); iter.ValidForPrefix(prefix) && len(runs) < limit; iter.Next() {
			var run *core.RunRecord
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				run, err = storage.UnmarshalRunRecord(val)
				return err
			}); err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return nil
	}, false)
	return runs, err
}
