// Package reindex re-embeds every stored Memory and rewrites the vector
// index. It is the only supported way to change embedding models or vector
// dimensions: memories are streamed from the durable store in batches,
// embedded with retry and exponential backoff, and written back through the
// indexer so both sides stay consistent.
package reindex
