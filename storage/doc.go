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


// Package storage provides the storage abstraction layer for recollect.
//
// Four stores sit behind interfaces so backends can be swapped:
//
//   - MemoryRepository: the durable store of enriched memories (storage/badger)
//   - VectorIndex: nearest-neighbour search over embeddings (storage/chromem)
//   - KeyValueStore: TTL keys shared between pipeline instances, used for
//     rate counters and cached stage outputs (storage/badger, storage/redis)
//   - RunRepository: the pipeline run log (storage/badger)
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return concrete types that satisfy
// these interfaces; consumers depend on the interfaces only:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	memories, err := badger.NewMemoryRepository(backend)
//
// # Pending markers
//
// The durable store and the vector index cannot share a transaction. A memory
// is written to the durable store together with a pending marker, then
// upserted into the vector index, then the marker is cleared. Markers that
// survive a crash are resolved by the indexer's reconciliation pass.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
