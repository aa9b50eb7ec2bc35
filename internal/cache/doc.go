// Package cache stores embedding vectors by content hash and provider tier.
//
// Entries live in BadgerDB, compressed with zstd behind a small header that
// records the creation time. Decoded vectors are also kept in an in-process
// LRU. Reads that fail to decode delete the entry and count as misses, so a
// damaged cache only costs a recomputation.
//
// Eviction runs on every Put: entries older than TTL go first, then the
// oldest entries until the compressed total fits MaxBytes.
package cache
