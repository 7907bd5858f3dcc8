package sync

import (
	"context"

	"github.com/strataoptions/sdk-go/core/store"
	"github.com/strataoptions/sdk-go/core/types"
)

// TrackedPosition is one identifier's lifecycle within a scope. The open
// set is derived: a position is open while RemovedBlock is zero.
type TrackedPosition struct {
	// ID is the decimal rendering of the position identifier.
	ID       string `json:"id"`
	Size     uint64 `json:"size"`
	MintTick int32  `json:"mint_tick"`
	// AddedBlock is the block of the mint log, or zero for an entry folded
	// in optimistically before its mint was scanned.
	AddedBlock uint64 `json:"added_block"`
	// RemovedBlock is the block of the burn or settle log; zero while open.
	RemovedBlock uint64 `json:"removed_block,omitempty"`
	// Settled marks removal via settlement rather than an explicit burn.
	Settled bool `json:"settled,omitempty"`
}

// positionSet is the persisted tracked-position state for one scope.
// Applied keys duplicate delivery protection: txHash:logIndex mapped to
// the block that carried the event, pruned on rollback so recovery can
// replay the same range idempotently.
type positionSet struct {
	Positions map[string]*TrackedPosition `json:"positions"`
	Applied   map[string]uint64           `json:"applied"`
}

func newPositionSet() *positionSet {
	return &positionSet{
		Positions: make(map[string]*TrackedPosition),
		Applied:   make(map[string]uint64),
	}
}

// pendingSet is the persisted optimistic layer, keyed by the submitting
// transaction's hash in hex.
type pendingSet struct {
	Records map[string]*types.PendingPosition `json:"records"`
}

func newPendingSet() *pendingSet {
	return &pendingSet{Records: make(map[string]*types.PendingPosition)}
}

// chunkSet is the persisted per-pool spread statistics, keyed by the
// chunk key's string form.
type chunkSet struct {
	Chunks map[string]*types.ChunkSpread `json:"chunks"`
}

func newChunkSet() *chunkSet {
	return &chunkSet{Chunks: make(map[string]*types.ChunkSpread)}
}

func loadInto[T any](ctx context.Context, kv store.KV, key string, fresh func() *T) (*T, error) {
	data, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return fresh(), nil
	}
	out := fresh()
	if err := store.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func save(ctx context.Context, kv store.KV, key string, v any) error {
	data, err := store.Marshal(v)
	if err != nil {
		return err
	}
	return kv.Set(ctx, key, data)
}

// scopeState is everything one scan mutates, loaded once per call and
// persisted per committed window (checkpoint last, making the window the
// durability unit).
type scopeState struct {
	scope      types.Scope
	checkpoint *types.Checkpoint // nil while uninitialized
	positions  *positionSet
	pending    *pendingSet
	chunks     *chunkSet
}

func loadScopeState(ctx context.Context, kv store.KV, scope types.Scope) (*scopeState, error) {
	st := &scopeState{scope: scope}

	data, ok, err := kv.Get(ctx, store.Key(scope, store.KindCheckpoint))
	if err != nil {
		return nil, err
	}
	if ok {
		var cp types.Checkpoint
		if err := store.Unmarshal(data, &cp); err != nil {
			return nil, err
		}
		st.checkpoint = &cp
	}

	if st.positions, err = loadInto(ctx, kv, store.Key(scope, store.KindPositions), newPositionSet); err != nil {
		return nil, err
	}
	if st.pending, err = loadInto(ctx, kv, store.Key(scope, store.KindPending), newPendingSet); err != nil {
		return nil, err
	}
	if st.chunks, err = loadInto(ctx, kv, store.Key(scope, store.KindChunks), newChunkSet); err != nil {
		return nil, err
	}
	return st, nil
}

// persist writes the mutable sets first and the checkpoint last; a crash
// between the two leaves a checkpoint that simply re-derives the same
// sets on replay.
func (st *scopeState) persist(ctx context.Context, kv store.KV) error {
	if err := save(ctx, kv, store.Key(st.scope, store.KindPositions), st.positions); err != nil {
		return err
	}
	if err := save(ctx, kv, store.Key(st.scope, store.KindPending), st.pending); err != nil {
		return err
	}
	if err := save(ctx, kv, store.Key(st.scope, store.KindChunks), st.chunks); err != nil {
		return err
	}
	if st.checkpoint != nil {
		if err := save(ctx, kv, store.Key(st.scope, store.KindCheckpoint), st.checkpoint); err != nil {
			return err
		}
	}
	return nil
}

// advanceCheckpoint appends the committed window end to the checkpoint
// ring, keeping at most depth entries.
func (st *scopeState) advanceCheckpoint(ref types.BlockRef, depth uint64) {
	if st.checkpoint == nil {
		st.checkpoint = &types.Checkpoint{}
	}
	st.checkpoint.Block = ref.Number
	st.checkpoint.Hash = ref.Hash
	st.checkpoint.Recent = append(st.checkpoint.Recent, ref)
	if n := int(depth); len(st.checkpoint.Recent) > n {
		st.checkpoint.Recent = st.checkpoint.Recent[len(st.checkpoint.Recent)-n:]
	}
}

// OpenPositions returns the currently open tracked positions.
func (st *scopeState) OpenPositions() []*TrackedPosition {
	out := make([]*TrackedPosition, 0, len(st.positions.Positions))
	for _, p := range st.positions.Positions {
		if p.RemovedBlock == 0 {
			out = append(out, p)
		}
	}
	return out
}
