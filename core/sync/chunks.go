package sync

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/strataoptions/sdk-go/core/ledger"
	"github.com/strataoptions/sdk-go/core/tickmath"
	"github.com/strataoptions/sdk-go/core/tokenid"
	"github.com/strataoptions/sdk-go/core/types"
	"github.com/strataoptions/sdk-go/core/util"
)

// chunkTouch is one ranged leg's contribution to a price bucket.
type chunkTouch struct {
	key types.ChunkKey
	// liquidity is positive: the sign applied to NetLiquidity depends on
	// the leg direction and whether the event adds or removes it.
	liquidity uint64
	add       bool
}

func chunkKeyString(k types.ChunkKey) string {
	return fmt.Sprintf("%d:%d:%d", k.TickLower, k.TickUpper, k.TokenType)
}

// chunkTouches derives the bucket contributions of one position at one
// size. Point legs own no price range and touch no chunk.
func chunkTouches(id *uint256.Int, size uint64) ([]chunkTouch, error) {
	ctx, legs, err := tokenid.Decode(id)
	if err != nil {
		return nil, errors.Wrap(err, "decoding identifier for chunk tracking")
	}

	var out []chunkTouch
	for _, leg := range legs {
		if leg.Width == 0 {
			continue
		}
		half := int32(int64(leg.Width) * int64(ctx.TickSpacing) / 2)
		lower, upper := leg.Strike-half, leg.Strike+half

		sl, err := tickmath.SqrtRatioAtTick(lower)
		if err != nil {
			return nil, err
		}
		su, err := tickmath.SqrtRatioAtTick(upper)
		if err != nil {
			return nil, err
		}

		s := new(uint256.Int).Mul(uint256.NewInt(size), uint256.NewInt(uint64(leg.Ratio)))
		var liq *big.Int
		if leg.TokenType == types.TokenTypeCall {
			liq = tickmath.LiquidityForAmount0(s.ToBig(), sl, su)
		} else {
			liq = tickmath.LiquidityForAmount1(s.ToBig(), sl, su)
		}
		if !liq.IsInt64() {
			return nil, errors.Wrapf(types.ErrLiquidityOverflow,
				"chunk [%d, %d] liquidity %s", lower, upper, liq)
		}

		out = append(out, chunkTouch{
			key:       types.ChunkKey{TickLower: lower, TickUpper: upper, TokenType: leg.TokenType},
			liquidity: uint64(liq.Int64()),
			// Written legs deposit liquidity into the chunk; bought legs
			// draw it out.
			add: !leg.IsLong,
		})
	}
	return out, nil
}

// trackChunks folds one mint or burn into the spread statistics. Creating
// a bucket beyond the cap fails fatally; the tracker never evicts.
func (st *scopeState) trackChunks(ev *ledger.PositionEvent, burn bool) error {
	return st.foldChunks(ev.TokenID, ev.Size, burn, ev.BlockNumber)
}

func (st *scopeState) foldChunks(id *uint256.Int, size uint64, burn bool, block uint64) error {
	touches, err := chunkTouches(id, size)
	if err != nil {
		return err
	}
	for _, t := range touches {
		key := chunkKeyString(t.key)
		c, ok := st.chunks.Chunks[key]
		if !ok {
			if len(st.chunks.Chunks) >= types.MaxTrackedChunks {
				return errors.Wrapf(types.ErrChunkCapacity,
					"pool already tracks %d chunks", len(st.chunks.Chunks))
			}
			c = &types.ChunkSpread{}
			st.chunks.Chunks[key] = c
		}

		delta := int64(t.liquidity)
		if t.add == burn {
			delta = -delta
		}
		c.NetLiquidity += delta
		c.GrossLiquidity += t.liquidity
		c.Touches++
		c.LastBlock = block
	}
	return nil
}

// untrackChunks reverses a previously folded event during reorg rollback,
// so the canonical branch replays over clean statistics.
func (st *scopeState) untrackChunks(id *uint256.Int, size uint64, burn bool, ancestor uint64) error {
	touches, err := chunkTouches(id, size)
	if err != nil {
		return err
	}
	for _, t := range touches {
		key := chunkKeyString(t.key)
		c, ok := st.chunks.Chunks[key]
		if !ok {
			continue
		}

		delta := int64(t.liquidity)
		if t.add == burn {
			delta = -delta
		}
		c.NetLiquidity -= delta
		c.GrossLiquidity -= t.liquidity
		c.Touches--
		if c.LastBlock > ancestor {
			c.LastBlock = ancestor
		}
		if c.Touches == 0 {
			delete(st.chunks.Chunks, key)
		}
	}
	return nil
}

// ChunkMidPrice renders the decimal mid price of a chunk's tick range,
// for reporting alongside its spread statistics.
func ChunkMidPrice(key types.ChunkKey) (*apd.Decimal, error) {
	return util.MidPrice(key.TickLower, key.TickUpper)
}

func parseChunkKey(key string) (types.ChunkKey, error) {
	var k types.ChunkKey
	var tt uint8
	n, err := fmt.Sscanf(key, "%d:%d:%d", &k.TickLower, &k.TickUpper, &tt)
	if err != nil || n != 3 {
		return types.ChunkKey{}, errors.Errorf("malformed chunk key %q", key)
	}
	k.TokenType = types.TokenType(tt)
	return k, nil
}

// ChunkSpreads returns a copy of the tracked statistics keyed by chunk.
func (st *scopeState) ChunkSpreads() (map[types.ChunkKey]types.ChunkSpread, error) {
	out := make(map[types.ChunkKey]types.ChunkSpread, len(st.chunks.Chunks))
	for key, c := range st.chunks.Chunks {
		k, err := parseChunkKey(key)
		if err != nil {
			return nil, err
		}
		out[k] = *c
	}
	return out, nil
}
