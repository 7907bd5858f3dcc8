package sync

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/strataoptions/sdk-go/core/logging"
	"github.com/strataoptions/sdk-go/core/tokenid"
	"github.com/strataoptions/sdk-go/core/types"
)

// RegisterPending records a submitted-but-unconfirmed open or close so
// callers can treat it as part of the tracked set before its log lands.
// A mint or burn scanned with the same transaction hash confirms and
// removes the record automatically.
func (e *Engine) RegisterPending(ctx context.Context, scope types.Scope, rec types.PendingPosition) error {
	if rec.TxRef == (common.Hash{}) {
		return errors.New("pending record needs a transaction reference")
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	rec.Status = types.PendingStatusPending

	return e.mutatePending(ctx, scope, func(st *scopeState) error {
		st.pending.Records[rec.TxRef.Hex()] = &rec
		return nil
	})
}

// ConfirmPending folds a pending record into the tracked set out of band,
// for callers that learn of inclusion before the next scan. The scanned
// log later dedupes against the folded entry.
func (e *Engine) ConfirmPending(ctx context.Context, scope types.Scope, txRef common.Hash) error {
	return e.mutatePending(ctx, scope, func(st *scopeState) error {
		rec, ok := st.pending.Records[txRef.Hex()]
		if !ok {
			return errors.Wrapf(types.ErrPendingNotFound, "tx %s", txRef.Hex())
		}
		delete(st.pending.Records, txRef.Hex())

		anchor := uint64(0)
		if st.checkpoint != nil {
			anchor = st.checkpoint.Block
		}
		if rec.IsClose {
			if p, tracked := st.positions.Positions[rec.ID]; tracked && p.RemovedBlock == 0 {
				id, err := tokenid.ParseID(p.ID)
				if err != nil {
					return errors.Wrap(err, "parsing tracked identifier")
				}
				if err := st.foldChunks(id, p.Size, true, anchor); err != nil {
					return err
				}
				if anchor == 0 {
					// RemovedBlock zero means open; an uncheckpointed scope
					// still needs a non-zero marker.
					anchor = 1
				}
				p.RemovedBlock = anchor
			}
			return nil
		}
		if p, tracked := st.positions.Positions[rec.ID]; tracked && p.RemovedBlock == 0 {
			// Its mint was already scanned; the tracked entry carries the
			// authoritative fields.
			return nil
		}
		id, err := tokenid.ParseID(rec.ID)
		if err != nil {
			return errors.Wrap(err, "parsing pending identifier")
		}
		if err := st.foldChunks(id, rec.Size, false, anchor); err != nil {
			return err
		}
		st.positions.Positions[rec.ID] = &TrackedPosition{
			ID:         rec.ID,
			Size:       rec.Size,
			MintTick:   rec.MintTick,
			AddedBlock: anchor,
		}
		return nil
	})
}

// FailPending discards a pending record whose transaction was dropped or
// reverted. Tracked entries from other records are untouched.
func (e *Engine) FailPending(ctx context.Context, scope types.Scope, txRef common.Hash) error {
	return e.mutatePending(ctx, scope, func(st *scopeState) error {
		if _, ok := st.pending.Records[txRef.Hex()]; !ok {
			return errors.Wrapf(types.ErrPendingNotFound, "tx %s", txRef.Hex())
		}
		delete(st.pending.Records, txRef.Hex())
		return nil
	})
}

// SweepStalePending removes pending records older than the configured
// timeout and returns how many were dropped.
func (e *Engine) SweepStalePending(ctx context.Context, scope types.Scope, now time.Time) (int, error) {
	cutoff := now.Add(-e.cfg.PendingTimeout).Unix()
	var swept int
	err := e.mutatePending(ctx, scope, func(st *scopeState) error {
		for key, rec := range st.pending.Records {
			if rec.CreatedAt < cutoff {
				delete(st.pending.Records, key)
				swept++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		logging.Logger.Info("swept stale pending records",
			zap.Int("count", swept), zap.String("scope", scope.ID()))
	}
	return swept, nil
}

// PendingPositions lists the scope's current pending records.
func (e *Engine) PendingPositions(ctx context.Context, scope types.Scope) ([]types.PendingPosition, error) {
	st, err := loadScopeState(ctx, e.cfg.Store, scope)
	if err != nil {
		return nil, err
	}
	out := make([]types.PendingPosition, 0, len(st.pending.Records))
	for _, rec := range st.pending.Records {
		out = append(out, *rec)
	}
	return out, nil
}

// mutatePending loads the scope state, applies fn and persists. It takes
// the scope lock so pending mutations cannot interleave with a scan.
func (e *Engine) mutatePending(ctx context.Context, scope types.Scope, fn func(*scopeState) error) error {
	lock := e.scopeLock(scope)
	if !lock.TryLock() {
		return errors.Wrapf(types.ErrScanInProgress, "scope %s", scope.ID())
	}
	defer lock.Unlock()

	st, err := loadScopeState(ctx, e.cfg.Store, scope)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return st.persist(ctx, e.cfg.Store)
}
