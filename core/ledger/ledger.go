// Package ledger defines the narrow read-only surface the sync engine
// needs from a chain: log fetch over a block range, block header lookup
// and the current head number. Transport details stay behind the Client
// interface; the go-ethereum adapter in this package is one
// implementation, tests supply their own.
package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Log is a single emitted event, already scoped to one contract address.
type Log struct {
	TxHash      common.Hash
	BlockHash   common.Hash
	BlockNumber uint64
	Index       uint
	Topics      []common.Hash
	Data        []byte
	Removed     bool
}

// BlockInfo carries the header fields the engine verifies against.
type BlockInfo struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  uint64
}

// FilterQuery selects logs by block range, emitting contract and topics.
// Topics follow the log-filter convention: position i constrains topic i,
// nil entries match anything.
type FilterQuery struct {
	FromBlock uint64
	ToBlock   uint64
	Address   common.Address
	Topics    [][]common.Hash
}

// Client is the only chain capability the engine depends on. Transient
// failures propagate to the caller; retry policy lives outside this
// module.
type Client interface {
	GetLogs(ctx context.Context, q FilterQuery) ([]Log, error)
	GetBlock(ctx context.Context, number uint64) (*BlockInfo, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}
