package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataoptions/sdk-go/core/ledger"
	"github.com/strataoptions/sdk-go/core/tokenid"
	"github.com/strataoptions/sdk-go/core/types"
)

func TestReorgRecovery(t *testing.T) {
	chain := newFakeChain(20)
	idA := shortCallID(t, 0)
	idB := shortCallID(t, 200)
	chain.addLog(lifecycleLog(ledger.MintTopic, idA, 500, 0, 18, 0, nextTx()))

	e, _ := newTestEngine(t, chain, func(c *Config) {
		c.MaxBlockRange = 4
		c.SafetyDepth = 5
	})
	_, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{tokenid.FormatID(idA): true}, openIDs(t, e))

	// The chain forks at block 15: the branch that carried idA's mint is
	// orphaned; the canonical branch mints idB instead.
	chain.fork(15, 22, 1)
	chain.addLog(lifecycleLog(ledger.MintTopic, idB, 700, 0, 16, 0, nextTx()))

	summary, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.True(t, summary.ReorgOccurred)
	// Checkpoint 20, safety depth 5: rollback lands on the newest committed
	// window end at or below block 15, which is 12.
	assert.Equal(t, uint64(8), summary.ReorgDepth)
	assert.Equal(t, types.StateSynced, summary.State)
	assert.Equal(t, uint64(22), summary.CheckpointBlock)
	assert.Equal(t, map[string]bool{tokenid.FormatID(idB): true}, openIDs(t, e))

	// Reorg correctness: the recovered set equals a from-scratch derivation
	// of the canonical chain.
	fresh, _ := newTestEngine(t, chain, nil)
	_, err = fresh.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, openIDs(t, fresh), openIDs(t, e))
}

func TestReorgReopensRolledBackBurn(t *testing.T) {
	chain := newFakeChain(20)
	id := shortCallID(t, 0)
	mintTx := nextTx()
	chain.addLog(lifecycleLog(ledger.MintTopic, id, 500, 0, 5, 0, mintTx))
	chain.addLog(lifecycleLog(ledger.BurnTopic, id, 500, 0, 18, 0, nextTx()))

	e, _ := newTestEngine(t, chain, func(c *Config) {
		c.MaxBlockRange = 4
		c.SafetyDepth = 5
	})
	_, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Empty(t, openIDs(t, e))

	// The burn block is orphaned; the canonical branch never burns.
	chain.fork(15, 22, 1)
	summary, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.True(t, summary.ReorgOccurred)
	assert.Equal(t, map[string]bool{tokenid.FormatID(id): true}, openIDs(t, e))
}

func TestReorgReversesOrphanedLifecycleChunks(t *testing.T) {
	chain := newFakeChain(20)
	id := shortCallID(t, 0)
	chain.addLog(lifecycleLog(ledger.MintTopic, id, 1_000_000, 0, 16, 0, nextTx()))
	chain.addLog(lifecycleLog(ledger.BurnTopic, id, 1_000_000, 0, 18, 0, nextTx()))

	e, _ := newTestEngine(t, chain, func(c *Config) {
		c.MaxBlockRange = 4
		c.SafetyDepth = 5
	})
	ctx := context.Background()
	_, err := e.SyncAccount(ctx, testScope, nil)
	require.NoError(t, err)

	// Both the mint and the burn are orphaned; the canonical branch
	// carries no lifecycle at all.
	chain.fork(15, 22, 1)
	summary, err := e.SyncAccount(ctx, testScope, nil)
	require.NoError(t, err)
	assert.True(t, summary.ReorgOccurred)
	assert.Empty(t, openIDs(t, e))

	// Both folded chunk contributions are reversed: the statistics match
	// a from-scratch derivation of the canonical chain, which is empty.
	chunks, err := e.ChunkSpreads(ctx, testScope)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	fresh, _ := newTestEngine(t, chain, nil)
	_, err = fresh.SyncAccount(ctx, testScope, nil)
	require.NoError(t, err)
	freshChunks, err := fresh.ChunkSpreads(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, freshChunks, chunks)
}

func TestUnrecoverableReorg(t *testing.T) {
	chain := newFakeChain(100)
	e, _ := newTestEngine(t, chain, func(c *Config) {
		c.MaxBlockRange = 1
		c.SafetyDepth = 5
	})
	_, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)

	// With one-block windows the checkpoint ring holds ends 96..100 only.
	// A fork at 90 leaves no verifiable ancestor at or below 95.
	chain.fork(90, 105, 1)
	_, err = e.SyncAccount(context.Background(), testScope, nil)
	require.ErrorIs(t, err, types.ErrUnrecoverableReorg)
}

func TestReorgWithinDeployHorizonRederives(t *testing.T) {
	chain := newFakeChain(6)
	idA := shortCallID(t, 0)
	idB := shortCallID(t, 100)
	chain.addLog(lifecycleLog(ledger.MintTopic, idA, 500, 0, 3, 0, nextTx()))

	e, _ := newTestEngine(t, chain, func(c *Config) { c.SafetyDepth = 10 })
	_, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)

	// The whole history since deployment sits inside the safety depth, so
	// a fork below it degenerates to a full re-derivation.
	chain.fork(2, 8, 1)
	chain.addLog(lifecycleLog(ledger.MintTopic, idB, 700, 0, 4, 0, nextTx()))

	summary, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.True(t, summary.ReorgOccurred)
	assert.Equal(t, uint64(8), summary.CheckpointBlock)
	assert.Equal(t, map[string]bool{tokenid.FormatID(idB): true}, openIDs(t, e))
}
