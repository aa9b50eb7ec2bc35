// Package connections owns the vector and graph store clients.
//
// A Manager is constructed once by the application and injected into the
// indexer. Each store is UP or DOWN independently. The health loop pings
// both stores on an interval and redials a failing store with bounded
// exponential backoff; a replaced client is closed. While a store is DOWN
// its accessor returns types.ErrStoreUnreachable so callers can degrade
// instead of blocking.
package connections
