package sync

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/strataoptions/sdk-go/core/logging"
	"github.com/strataoptions/sdk-go/core/store"
	"github.com/strataoptions/sdk-go/core/types"
)

// checkpointCanonical reports whether the stored checkpoint still names a
// canonical block.
func (e *Engine) checkpointCanonical(ctx context.Context, cp *types.Checkpoint) (bool, error) {
	blk, err := e.cfg.Ledger.GetBlock(ctx, cp.Block)
	if err != nil {
		return false, err
	}
	return blk.Hash == cp.Hash, nil
}

// recover rolls the scope back below the fork. The rollback target is the
// safety depth below the checkpoint; the newest ring entry at or below
// the target, re-verified against the canonical chain, becomes the new
// checkpoint. A target at or below the deploy floor degenerates to a full
// re-derivation from deployment, which is always recoverable. Returns the
// number of blocks rolled back.
func (e *Engine) recoverScope(ctx context.Context, st *scopeState) (uint64, error) {
	cp := st.checkpoint

	var target uint64
	if cp.Block > e.cfg.SafetyDepth {
		target = cp.Block - e.cfg.SafetyDepth
	}
	if target <= e.cfg.DeployBlock {
		depth := cp.Block
		logging.Logger.Warn("reorg within deploy horizon, re-deriving scope from deployment",
			zap.String("scope", st.scope.ID()), zap.Uint64("checkpoint", cp.Block))
		st.rollback(0)
		st.checkpoint = nil
		if err := e.cfg.Store.Delete(ctx, store.Key(st.scope, store.KindCheckpoint)); err != nil {
			return 0, err
		}
		return depth, st.persist(ctx, e.cfg.Store)
	}

	var ancestor *types.BlockRef
	for i := len(cp.Recent) - 1; i >= 0; i-- {
		if cp.Recent[i].Number <= target {
			ancestor = &cp.Recent[i]
			break
		}
	}
	if ancestor == nil {
		return 0, errors.Wrapf(types.ErrUnrecoverableReorg,
			"no checkpoint ring entry at or below block %d", target)
	}

	blk, err := e.cfg.Ledger.GetBlock(ctx, ancestor.Number)
	if err != nil {
		return 0, err
	}
	if blk.Hash != ancestor.Hash {
		return 0, errors.Wrapf(types.ErrUnrecoverableReorg,
			"ring entry %d no longer canonical", ancestor.Number)
	}

	depth := cp.Block - ancestor.Number
	logging.Logger.Warn("rolling back reorged scope",
		zap.String("scope", st.scope.ID()),
		zap.Uint64("from", cp.Block), zap.Uint64("to", ancestor.Number))

	st.rollback(ancestor.Number)
	cp.Block, cp.Hash = ancestor.Number, ancestor.Hash
	for i, ref := range cp.Recent {
		if ref.Number > ancestor.Number {
			cp.Recent = cp.Recent[:i]
			break
		}
	}
	return depth, st.persist(ctx, e.cfg.Store)
}
