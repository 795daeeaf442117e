package badger

import (
	"github.com/poiesic/recollect/core"
	"github.com/poiesic/recollect/storage"
)

// Key prefixes for different data types
const (
	memoryPrefix        = "memrec:"
	memoryDatePrefix    = "memrecd:"
	memoryPendingPrefix = "mempend:"
	kvPrefix            = "kv:"
	runPrefix           = "runrec:"
	runIDSeq            = "runrecseq"
)

func prefixedID(prefix string, id uint64) []byte {
	buf := make([]byte, 0, len(prefix)+8)
	buf = append(buf, prefix...)
	// BigEndian keeps lexicographic order equal to numeric order
	return append(buf, storage.MarshalID(core.ID(id))...)
}

// makeMemoryKey generates a key for a memory by ID.
func makeMemoryKey(id core.ID) []byte {
	return prefixedID(memoryPrefix, uint64(id))
}

// makeMemoryDateKey generates a composite key for the creation date index.
// Format: prefix:timestamp:id
func makeMemoryDateKey(memory *core.Memory) []byte {
	key := prefixedID(memoryDatePrefix, uint64(memory.CreatedAt.UnixMicro()))
	return append(key, storage.MarshalID(memory.Id)...)
}

// makePendingKey generates the pending marker key for a memory.
func makePendingKey(id core.ID) []byte {
	return prefixedID(memoryPendingPrefix, uint64(id))
}

// makeKVKey namespaces a caller-supplied key.
func makeKVKey(key string) []byte {
	return []byte(kvPrefix + key)
}

// makeRunKey generates a key for a run log entry by sequence number.
func makeRunKey(seq uint64) []byte {
	return prefixedID(runPrefix, seq)
}

// idFromKey extracts the trailing 8-byte ID from a prefixed key.
func idFromKey(key []byte) (core.ID, error) {
	if len(key) < 8 {
		return 0, storage.ErrTruncatedData
	}
	return storage.UnmarshalID(key[len(key)-8:])
}
