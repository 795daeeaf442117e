// Package ingestion turns raw content units into indexed Memories.
//
// A Pipeline moves each ContentUnit through a fixed state machine:
//
//	PENDING -> PRE_FILTERED -> EXTRACTING -> EMBEDDING -> INDEXING -> COMPLETE
//
// with FAILED reachable from every non-terminal state. The PreFilter decides
// once per run which expensive extraction stages are worth running. The
// extraction stages (entity, commitment, importance, temporal) and the
// EmbeddingStage run concurrently; indexing waits for all of them. Every
// inference call is gated through a governor.Governor.
//
// The Indexer writes the durable record and the vector entry together and
// compensates when the second write fails. Pending markers left by a crash
// between the two writes are resolved by Indexer.Reconcile.
//
// Finished runs are handed to RunRecorders for observability.
package ingestion
