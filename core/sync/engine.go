package sync

import (
	"context"
	stdsync "sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/strataoptions/sdk-go/core/ledger"
	"github.com/strataoptions/sdk-go/core/logging"
	"github.com/strataoptions/sdk-go/core/types"
)

// Engine drives per-scope scans. It is safe for concurrent use across
// scopes; two overlapping scans of one scope are rejected, not queued.
type Engine struct {
	cfg Config

	mu    stdsync.Mutex
	locks map[string]*stdsync.Mutex
}

func NewEngine(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:   cfg,
		locks: make(map[string]*stdsync.Mutex),
	}, nil
}

func (e *Engine) scopeLock(scope types.Scope) *stdsync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[scope.ID()]
	if !ok {
		lock = &stdsync.Mutex{}
		e.locks[scope.ID()] = lock
	}
	return lock
}

// SyncAccount scans the ledger from the scope's checkpoint (or the deploy
// block) to the current head, folding position lifecycle logs into the
// tracked set. progress may be nil. Cancellation is honored between
// windows only; a completed window's checkpoint stays valid.
func (e *Engine) SyncAccount(ctx context.Context, scope types.Scope, progress types.ProgressFunc) (*types.Summary, error) {
	lock := e.scopeLock(scope)
	if !lock.TryLock() {
		return nil, errors.Wrapf(types.ErrScanInProgress, "scope %s", scope.ID())
	}
	defer lock.Unlock()

	st, err := loadScopeState(ctx, e.cfg.Store, scope)
	if err != nil {
		return nil, err
	}

	summary := &types.Summary{State: types.StateUninitialized}
	if st.checkpoint != nil {
		summary.State = types.StateScanning
	}

	head, err := e.cfg.Ledger.GetBlockNumber(ctx)
	if err != nil {
		return summary, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		// Re-verify the stored cursor before applying anything on top of it.
		if st.checkpoint != nil {
			ok, err := e.checkpointCanonical(ctx, st.checkpoint)
			if err != nil {
				return summary, err
			}
			if !ok {
				summary.ReorgOccurred = true
				summary.State = types.StateRecovering
				depth, err := e.recoverScope(ctx, st)
				if err != nil {
					return summary, err
				}
				summary.ReorgDepth += depth
				if progress != nil {
					progress(types.WindowProgress{ReorgDepth: depth})
				}
				summary.State = types.StateScanning
				continue
			}
		}

		from := e.cfg.DeployBlock
		if st.checkpoint != nil {
			from = st.checkpoint.Block + 1
		}
		if from > head {
			break
		}
		to := from + e.cfg.MaxBlockRange - 1
		if to > head {
			to = head
		}

		reorged, prog, err := e.applyWindow(ctx, st, from, to, summary)
		if err != nil {
			return summary, err
		}
		if reorged {
			// The window end no longer chains onto our cursor; loop around
			// and let the canonical check route into recovery.
			continue
		}

		summary.BlocksScanned += to - from + 1
		summary.State = types.StateScanning
		if progress != nil {
			progress(prog)
		}
	}

	summary.State = types.StateSynced
	if st.checkpoint != nil {
		summary.CheckpointBlock = st.checkpoint.Block
	}
	logging.Logger.Info("scope synced",
		zap.String("scope", scope.ID()),
		zap.Uint64("checkpoint", summary.CheckpointBlock),
		zap.Int("added", summary.PositionsAdded),
		zap.Int("removed", summary.PositionsRemoved))
	return summary, nil
}

// applyWindow fetches, orders and folds one window's logs, then commits
// the checkpoint. The checkpoint write is the commit point: everything
// before it merely re-derives on replay. Returns reorged=true when the
// window-end block does not chain onto the current cursor.
func (e *Engine) applyWindow(ctx context.Context, st *scopeState, from, to uint64, summary *types.Summary) (bool, types.WindowProgress, error) {
	var prog types.WindowProgress
	prog.ScannedFromBlock, prog.ScannedToBlock = from, to

	logs, err := e.cfg.Ledger.GetLogs(ctx, ledger.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Address:   st.scope.Pool,
		Topics: [][]common.Hash{
			{ledger.MintTopic, ledger.BurnTopic, ledger.SettleTopic},
			{common.BytesToHash(st.scope.Account.Bytes())},
		},
	})
	if err != nil {
		return false, prog, err
	}
	ledger.SortLogs(logs)

	endBlock, err := e.cfg.Ledger.GetBlock(ctx, to)
	if err != nil {
		return false, prog, err
	}
	if st.checkpoint != nil && to == st.checkpoint.Block+1 && endBlock.ParentHash != st.checkpoint.Hash {
		return true, prog, nil
	}

	var stats applyStats
	for _, l := range logs {
		ev, err := ledger.DecodePositionLog(l)
		if err != nil {
			logging.Logger.Warn("skipping undecodable log",
				zap.Uint64("block", l.BlockNumber), zap.Uint("index", l.Index), zap.Error(err))
			continue
		}
		if ev == nil {
			continue
		}
		if err := st.applyEvent(ev, &stats); err != nil {
			return false, prog, err
		}
	}

	st.advanceCheckpoint(types.BlockRef{Number: endBlock.Number, Hash: endBlock.Hash}, e.cfg.SafetyDepth)
	if err := st.persist(ctx, e.cfg.Store); err != nil {
		return false, prog, err
	}

	prog.PositionsAdded = stats.added
	prog.PositionsRemoved = stats.removed + stats.settled
	summary.PositionsAdded += stats.added
	summary.PositionsRemoved += stats.removed
	summary.PositionsSettled += stats.settled
	summary.PendingConfirmed += stats.confirmed
	return false, prog, nil
}

// TrackedPositions returns the scope's currently open positions.
func (e *Engine) TrackedPositions(ctx context.Context, scope types.Scope) ([]*TrackedPosition, error) {
	st, err := loadScopeState(ctx, e.cfg.Store, scope)
	if err != nil {
		return nil, err
	}
	return st.OpenPositions(), nil
}

// ChunkSpreads returns the scope's tracked spread statistics.
func (e *Engine) ChunkSpreads(ctx context.Context, scope types.Scope) (map[types.ChunkKey]types.ChunkSpread, error) {
	st, err := loadScopeState(ctx, e.cfg.Store, scope)
	if err != nil {
		return nil, err
	}
	return st.ChunkSpreads()
}
