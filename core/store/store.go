// Package store is the persistence boundary. Everything the sync engine
// keeps across calls crosses this boundary as bytes under a namespaced
// key; the envelope codec stamps a schema version on every payload so a
// format change fails loudly on read instead of migrating silently.
package store

import "context"

// KV is the byte-oriented surface the engine writes through. Get returns
// (nil, false, nil) for an absent key. Implementations must be atomic at
// per-key granularity; no cross-key transaction is required.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Entity kinds used in key construction.
const (
	KindCheckpoint = "checkpoint"
	KindPositions  = "positions"
	KindPending    = "pending"
	KindChunks     = "chunks"
)
