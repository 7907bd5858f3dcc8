package sync

import (
	"go.uber.org/zap"

	"github.com/strataoptions/sdk-go/core/ledger"
	"github.com/strataoptions/sdk-go/core/logging"
	"github.com/strataoptions/sdk-go/core/tokenid"
	"github.com/strataoptions/sdk-go/core/types"
)

// applyStats accumulates what one window's fold did.
type applyStats struct {
	added     int
	removed   int
	settled   int
	confirmed int
}

// applyEvent folds one decoded lifecycle event into the state. It is
// deterministic and synchronous; replaying an identical event is a no-op
// thanks to the applied-key index, which is what keeps recovery
// idempotent.
func (st *scopeState) applyEvent(ev *ledger.PositionEvent, stats *applyStats) error {
	key := ev.DedupeKey()
	if _, seen := st.positions.Applied[key]; seen {
		return nil
	}

	id := tokenid.FormatID(ev.TokenID)
	switch ev.Kind {
	case ledger.EventMint:
		if p, tracked := st.positions.Positions[id]; tracked && p.RemovedBlock == 0 {
			// Folded out of band via ConfirmPending before its log was
			// scanned. The log supplies the authoritative fields; the
			// position and its chunks were already counted.
			p.Size = ev.Size
			p.MintTick = ev.Tick
			p.AddedBlock = ev.BlockNumber
		} else {
			if err := st.trackChunks(ev, false); err != nil {
				return err
			}
			st.positions.Positions[id] = &TrackedPosition{
				ID:         id,
				Size:       ev.Size,
				MintTick:   ev.Tick,
				AddedBlock: ev.BlockNumber,
			}
			stats.added++
		}

	case ledger.EventBurn, ledger.EventSettle:
		p, ok := st.positions.Positions[id]
		if !ok || p.RemovedBlock != 0 {
			// A burn for a position minted before this scope's deploy floor,
			// or a duplicate removal. Nothing to fold.
			logging.Logger.Debug("removal for untracked position",
				zap.String("id", id), zap.Uint64("block", ev.BlockNumber))
		} else {
			if ev.Kind == ledger.EventBurn {
				if err := st.trackChunks(ev, true); err != nil {
					return err
				}
			}
			p.RemovedBlock = ev.BlockNumber
			p.Settled = ev.Kind == ledger.EventSettle
		}
		if ev.Kind == ledger.EventSettle {
			stats.settled++
		} else {
			stats.removed++
		}
	}

	// A scanned log whose transaction matches a pending record is that
	// record's confirmation.
	if rec, ok := st.pending.Records[ev.TxHash.Hex()]; ok && rec.Status != types.PendingStatusFailed {
		delete(st.pending.Records, ev.TxHash.Hex())
		stats.confirmed++
	}

	st.positions.Applied[key] = ev.BlockNumber
	return nil
}

// rollback discards every contribution derived from blocks above the
// ancestor: positions added there are dropped (their mint's chunk
// contribution reversed), removals there are reopened (their burn's
// contribution reversed), applied keys are pruned so the canonical
// branch replays cleanly.
func (st *scopeState) rollback(ancestor uint64) {
	for id, p := range st.positions.Positions {
		if p.AddedBlock > ancestor {
			// A removal above the ancestor folded its own chunk
			// contribution; reverse it before reversing the mint's.
			if p.RemovedBlock != 0 && !p.Settled {
				st.revertChunks(p, true, ancestor)
			}
			st.revertChunks(p, false, ancestor)
			delete(st.positions.Positions, id)
			continue
		}
		if p.RemovedBlock > ancestor {
			if !p.Settled {
				st.revertChunks(p, true, ancestor)
			}
			p.RemovedBlock = 0
			p.Settled = false
		}
	}
	for key, block := range st.positions.Applied {
		if block > ancestor {
			delete(st.positions.Applied, key)
		}
	}
}

func (st *scopeState) revertChunks(p *TrackedPosition, burn bool, ancestor uint64) {
	id, err := tokenid.ParseID(p.ID)
	if err != nil {
		logging.Logger.Warn("unparseable tracked identifier during rollback",
			zap.String("id", p.ID), zap.Error(err))
		return
	}
	if err := st.untrackChunks(id, p.Size, burn, ancestor); err != nil {
		logging.Logger.Warn("chunk reversal failed during rollback",
			zap.String("id", p.ID), zap.Error(err))
	}
}
