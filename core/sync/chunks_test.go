package sync

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataoptions/sdk-go/core/ledger"
	"github.com/strataoptions/sdk-go/core/types"
)

func TestChunkSpreadsAggregate(t *testing.T) {
	chain := newFakeChain(10)
	id := shortCallID(t, 0)
	chain.addLog(lifecycleLog(ledger.MintTopic, id, 1_000_000, 0, 3, 0, nextTx()))

	e, _ := newTestEngine(t, chain, nil)
	ctx := context.Background()
	_, err := e.SyncAccount(ctx, testScope, nil)
	require.NoError(t, err)

	chunks, err := e.ChunkSpreads(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	key := types.ChunkKey{TickLower: -50, TickUpper: 50, TokenType: types.TokenTypeCall}
	spread, ok := chunks[key]
	require.True(t, ok)
	assert.Positive(t, spread.NetLiquidity, "a written call deposits liquidity")
	assert.Equal(t, uint64(spread.NetLiquidity), spread.GrossLiquidity)
	assert.Equal(t, uint64(1), spread.Touches)
	assert.Equal(t, uint64(3), spread.LastBlock)
}

func TestBurnReversesNetLiquidity(t *testing.T) {
	chain := newFakeChain(10)
	id := shortCallID(t, 0)
	chain.addLog(lifecycleLog(ledger.MintTopic, id, 1_000_000, 0, 3, 0, nextTx()))
	chain.addLog(lifecycleLog(ledger.BurnTopic, id, 1_000_000, 0, 7, 0, nextTx()))

	e, _ := newTestEngine(t, chain, nil)
	ctx := context.Background()
	_, err := e.SyncAccount(ctx, testScope, nil)
	require.NoError(t, err)

	chunks, err := e.ChunkSpreads(ctx, testScope)
	require.NoError(t, err)
	key := types.ChunkKey{TickLower: -50, TickUpper: 50, TokenType: types.TokenTypeCall}
	spread, ok := chunks[key]
	require.True(t, ok)
	assert.Equal(t, int64(0), spread.NetLiquidity)
	assert.Equal(t, uint64(2), spread.Touches)
	assert.Equal(t, uint64(7), spread.LastBlock)
}

func TestPointLegsTouchNoChunks(t *testing.T) {
	chain := newFakeChain(5)
	loan := mustEncode(t, types.Leg{Ratio: 1, IsLong: true, TokenType: types.TokenTypeCall, Strike: 0, Width: 0})
	chain.addLog(lifecycleLog(ledger.MintTopic, loan, 500, 0, 2, 0, nextTx()))

	e, _ := newTestEngine(t, chain, nil)
	ctx := context.Background()
	_, err := e.SyncAccount(ctx, testScope, nil)
	require.NoError(t, err)

	chunks, err := e.ChunkSpreads(ctx, testScope)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkCapacityIsFatal(t *testing.T) {
	chain := newFakeChain(3)
	for i := 0; i <= types.MaxTrackedChunks; i++ {
		strike := int32(i*20) - int32(types.MaxTrackedChunks)*10
		id := shortCallID(t, strike)
		tx := nextTx()
		chain.addLog(lifecycleLog(ledger.MintTopic, id, 100, 0, 2, uint(i), tx))
	}

	e, _ := newTestEngine(t, chain, nil)
	_, err := e.SyncAccount(context.Background(), testScope, nil)
	require.ErrorIs(t, err, types.ErrChunkCapacity)
}

func TestChunkMidPrice(t *testing.T) {
	mid, err := ChunkMidPrice(types.ChunkKey{TickLower: -50, TickUpper: 50, TokenType: types.TokenTypeCall})
	require.NoError(t, err)
	one, _, err := apd.NewFromString("1")
	require.NoError(t, err)
	assert.True(t, mid.Cmp(one) > 0, "midpoint of a symmetric range sits just above 1")

	_, err = ChunkMidPrice(types.ChunkKey{TickLower: -1 << 30, TickUpper: 0})
	require.Error(t, err)
}

func TestChunkKeyStringRoundTrip(t *testing.T) {
	key := types.ChunkKey{TickLower: -50, TickUpper: 50, TokenType: types.TokenTypePut}
	s := chunkKeyString(key)
	assert.Equal(t, fmt.Sprintf("%d:%d:%d", -50, 50, 1), s)

	back, err := parseChunkKey(s)
	require.NoError(t, err)
	assert.Equal(t, key, back)

	_, err = parseChunkKey("not-a-chunk-key")
	assert.Error(t, err)
}

func TestLiquidityOverflowRejected(t *testing.T) {
	// A narrow range concentrates liquidity: at width 2 the conversion
	// multiplies the amount by roughly a thousand, so a near-max size
	// overflows the tracker's signed range.
	id := mustEncode(t, types.Leg{Ratio: 1, TokenType: types.TokenTypePut, Strike: 0, Width: 2})
	_, err := chunkTouches(id, math.MaxUint64)
	require.ErrorIs(t, err, types.ErrLiquidityOverflow)

	// An ordinary size on the same range folds fine.
	touches, err := chunkTouches(id, 1_000_000)
	require.NoError(t, err)
	require.Len(t, touches, 1)
}
