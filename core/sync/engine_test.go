package sync

import (
	"context"
	"math/big"
	stdsync "sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataoptions/sdk-go/core/ledger"
	"github.com/strataoptions/sdk-go/core/store"
	"github.com/strataoptions/sdk-go/core/tokenid"
	"github.com/strataoptions/sdk-go/core/types"
)

var (
	testPool    = common.HexToAddress("0x00000000000000000000000000000000DeaDBeef")
	testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testScope   = types.Scope{ChainID: 137, Pool: testPool, Account: testAccount}
	testPoolCtx = types.PoolContext{PoolPattern: 0xBEEF, TickSpacing: 10}
)

// fakeChain is an in-memory canonical chain: per-block hashes and logs,
// mutable so tests can fork it mid-scan.
type fakeChain struct {
	mu     stdsync.Mutex
	hashes map[uint64]common.Hash
	logs   map[uint64][]ledger.Log
	head   uint64
}

func newFakeChain(head uint64) *fakeChain {
	c := &fakeChain{
		hashes: make(map[uint64]common.Hash),
		logs:   make(map[uint64][]ledger.Log),
		head:   head,
	}
	c.extend(0, head, 0)
	return c
}

func branchHash(branch byte, n uint64) common.Hash {
	var b [32]byte
	b[0] = branch
	big.NewInt(int64(n)).FillBytes(b[8:])
	return common.BytesToHash(b[:])
}

// extend (re)writes hashes for [from, to] on the given branch.
func (c *fakeChain) extend(from, to uint64, branch byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := from; n <= to; n++ {
		c.hashes[n] = branchHash(branch, n)
	}
	if to > c.head {
		c.head = to
	}
}

// fork replaces everything from block fork onward with a new branch and
// clears its logs.
func (c *fakeChain) fork(fork, newHead uint64, branch byte) {
	c.mu.Lock()
	for n := fork; n <= c.head; n++ {
		delete(c.logs, n)
	}
	c.mu.Unlock()
	c.extend(fork, newHead, branch)
	c.mu.Lock()
	c.head = newHead
	c.mu.Unlock()
}

func (c *fakeChain) addLog(l ledger.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.BlockHash = c.hashes[l.BlockNumber]
	c.logs[l.BlockNumber] = append(c.logs[l.BlockNumber], l)
}

func (c *fakeChain) GetLogs(_ context.Context, q ledger.FilterQuery) ([]ledger.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ledger.Log
	for n := q.FromBlock; n <= q.ToBlock; n++ {
		for _, l := range c.logs[n] {
			if matchTopics(l, q.Topics) {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func matchTopics(l ledger.Log, topics [][]common.Hash) bool {
	for i, want := range topics {
		if len(want) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, h := range want {
			if l.Topics[i] == h {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c *fakeChain) GetBlock(_ context.Context, number uint64) (*ledger.BlockInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &ledger.BlockInfo{
		Number:     number,
		Hash:       c.hashes[number],
		ParentHash: c.hashes[number-1],
		Timestamp:  1700000000 + number,
	}, nil
}

func (c *fakeChain) GetBlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

var txCounter uint64

func nextTx() common.Hash {
	txCounter++
	return branchHash(0x77, txCounter)
}

func lifecycleLog(topic0 common.Hash, id *uint256.Int, size uint64, tick int32, block uint64, index uint, tx common.Hash) ledger.Log {
	data := make([]byte, 64)
	big.NewInt(int64(size)).FillBytes(data[:32])
	t := big.NewInt(int64(tick))
	if tick < 0 {
		t.Add(t, big.NewInt(1<<24))
	}
	t.FillBytes(data[32:64])
	return ledger.Log{
		TxHash:      tx,
		BlockNumber: block,
		Index:       index,
		Topics: []common.Hash{
			topic0,
			common.BytesToHash(testAccount.Bytes()),
			common.Hash(id.Bytes32()),
		},
		Data: data,
	}
}

func mustEncode(t *testing.T, legs ...types.Leg) *uint256.Int {
	t.Helper()
	id, err := tokenid.Encode(testPoolCtx, legs)
	require.NoError(t, err)
	return id
}

func shortCallID(t *testing.T, strike int32) *uint256.Int {
	return mustEncode(t, types.Leg{Ratio: 1, TokenType: types.TokenTypeCall, Strike: strike, Width: 10})
}

func newTestEngine(t *testing.T, chain *fakeChain, mutate func(*Config)) (*Engine, *store.Memory) {
	t.Helper()
	kv := store.NewMemory()
	cfg := Config{
		Ledger:      chain,
		Store:       kv,
		DeployBlock: 1,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e, kv
}

func openIDs(t *testing.T, e *Engine) map[string]bool {
	t.Helper()
	open, err := e.TrackedPositions(context.Background(), testScope)
	require.NoError(t, err)
	out := make(map[string]bool, len(open))
	for _, p := range open {
		out[p.ID] = true
	}
	return out
}

func TestSyncFromScratch(t *testing.T) {
	chain := newFakeChain(10)
	idA := shortCallID(t, 0)
	idB := shortCallID(t, 100)
	chain.addLog(lifecycleLog(ledger.MintTopic, idA, 500, 5, 3, 0, nextTx()))
	chain.addLog(lifecycleLog(ledger.MintTopic, idB, 700, -5, 5, 0, nextTx()))
	chain.addLog(lifecycleLog(ledger.BurnTopic, idB, 700, 12, 7, 0, nextTx()))

	e, _ := newTestEngine(t, chain, func(c *Config) { c.MaxBlockRange = 4 })

	var windows []types.WindowProgress
	summary, err := e.SyncAccount(context.Background(), testScope, func(p types.WindowProgress) {
		windows = append(windows, p)
	})
	require.NoError(t, err)

	assert.Equal(t, types.StateSynced, summary.State)
	assert.Equal(t, 2, summary.PositionsAdded)
	assert.Equal(t, 1, summary.PositionsRemoved)
	assert.Equal(t, uint64(10), summary.BlocksScanned)
	assert.Equal(t, uint64(10), summary.CheckpointBlock)
	assert.False(t, summary.ReorgOccurred)

	// Windows: 1-4, 5-8, 9-10.
	require.Len(t, windows, 3)
	assert.Equal(t, uint64(1), windows[0].ScannedFromBlock)
	assert.Equal(t, uint64(4), windows[0].ScannedToBlock)
	assert.Equal(t, 1, windows[0].PositionsAdded)
	assert.Equal(t, uint64(10), windows[2].ScannedToBlock)

	open := openIDs(t, e)
	assert.Equal(t, map[string]bool{tokenid.FormatID(idA): true}, open)
}

func TestSyncResumeNeverRegresses(t *testing.T) {
	chain := newFakeChain(10)
	e, _ := newTestEngine(t, chain, nil)

	first, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), first.CheckpointBlock)

	// Nothing new mined: the cursor holds.
	again, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), again.CheckpointBlock)
	assert.Equal(t, uint64(0), again.BlocksScanned)

	chain.extend(11, 15, 0)
	third, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), third.CheckpointBlock)
	assert.Equal(t, uint64(5), third.BlocksScanned)
}

func TestReplayIsIdempotent(t *testing.T) {
	chain := newFakeChain(8)
	id := shortCallID(t, 0)
	chain.addLog(lifecycleLog(ledger.MintTopic, id, 500, 0, 4, 0, nextTx()))

	e, kv := newTestEngine(t, chain, nil)
	_, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	before := openIDs(t, e)

	// Simulate a crash after applying but before the engine observed its
	// own commit: regress the checkpoint and force blocks 3..8 to replay.
	ctx := context.Background()
	key := store.Key(testScope, store.KindCheckpoint)
	blk, err := chain.GetBlock(ctx, 2)
	require.NoError(t, err)
	data, err := store.Marshal(types.Checkpoint{
		Block:  2,
		Hash:   blk.Hash,
		Recent: []types.BlockRef{{Number: 2, Hash: blk.Hash}},
	})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, key, data))

	summary, err := e.SyncAccount(ctx, testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PositionsAdded, "replayed mint must dedupe")
	assert.Equal(t, before, openIDs(t, e))
}

func TestSettlementTaggedSeparately(t *testing.T) {
	chain := newFakeChain(6)
	id := shortCallID(t, 0)
	chain.addLog(lifecycleLog(ledger.MintTopic, id, 500, 0, 2, 0, nextTx()))
	chain.addLog(lifecycleLog(ledger.SettleTopic, id, 500, 0, 4, 0, nextTx()))

	e, _ := newTestEngine(t, chain, nil)
	summary, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PositionsAdded)
	assert.Equal(t, 0, summary.PositionsRemoved)
	assert.Equal(t, 1, summary.PositionsSettled)
	assert.Empty(t, openIDs(t, e))
}

func TestConcurrentScanRejected(t *testing.T) {
	chain := newFakeChain(5)
	e, _ := newTestEngine(t, chain, nil)

	lock := e.scopeLock(testScope)
	lock.Lock()
	defer lock.Unlock()

	_, err := e.SyncAccount(context.Background(), testScope, nil)
	require.ErrorIs(t, err, types.ErrScanInProgress)

	// A different scope is unaffected.
	other := testScope
	other.Account = common.HexToAddress("0x2222222222222222222222222222222222222222")
	_, err = e.SyncAccount(context.Background(), other, nil)
	require.NoError(t, err)
}

func TestCancellationBetweenWindows(t *testing.T) {
	chain := newFakeChain(20)
	id := shortCallID(t, 0)
	chain.addLog(lifecycleLog(ledger.MintTopic, id, 500, 0, 2, 0, nextTx()))

	ctx, cancel := context.WithCancel(context.Background())
	e, _ := newTestEngine(t, chain, func(c *Config) { c.MaxBlockRange = 5 })

	_, err := e.SyncAccount(ctx, testScope, func(types.WindowProgress) { cancel() })
	require.ErrorIs(t, err, context.Canceled)

	// The first window committed; resuming finishes the rest and the
	// position survives.
	summary, err := e.SyncAccount(context.Background(), testScope, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StateSynced, summary.State)
	assert.Equal(t, uint64(20), summary.CheckpointBlock)
	assert.Equal(t, map[string]bool{tokenid.FormatID(id): true}, openIDs(t, e))
}
