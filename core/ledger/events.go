package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// EventKind distinguishes the three position lifecycle logs the engine
// folds.
type EventKind uint8

const (
	EventMint EventKind = iota
	EventBurn
	EventSettle
)

func (k EventKind) String() string {
	switch k {
	case EventMint:
		return "mint"
	case EventBurn:
		return "burn"
	case EventSettle:
		return "settle"
	default:
		return fmt.Sprintf("eventkind(%d)", uint8(k))
	}
}

// Topic hashes for the position lifecycle events. The account and the
// position identifier are indexed; size and tick travel in the data
// words.
var (
	MintTopic   = crypto.Keccak256Hash([]byte("PositionMinted(address,uint256,uint128,int24)"))
	BurnTopic   = crypto.Keccak256Hash([]byte("PositionBurned(address,uint256,uint128,int24)"))
	SettleTopic = crypto.Keccak256Hash([]byte("PositionSettled(address,uint256,uint128)"))
)

// PositionEvent is a decoded lifecycle log in the order-preserving form
// the reducer consumes.
type PositionEvent struct {
	Kind        EventKind
	Account     common.Address
	TokenID     *uint256.Int
	Size        uint64
	Tick        int32
	TxHash      common.Hash
	BlockHash   common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// DedupeKey identifies one delivery of this event regardless of which
// block carried it.
func (e *PositionEvent) DedupeKey() string {
	return fmt.Sprintf("%s:%d", e.TxHash.Hex(), e.LogIndex)
}

// DecodePositionLog maps a raw log to a PositionEvent, or returns
// (nil, nil) for logs whose signature is not one of ours.
func DecodePositionLog(l Log) (*PositionEvent, error) {
	// topics:
	// 0: event sig
	// 1: account (address indexed)
	// 2: tokenId (uint256 indexed)
	if len(l.Topics) < 1 {
		return nil, fmt.Errorf("log without topics")
	}

	var kind EventKind
	switch l.Topics[0] {
	case MintTopic:
		kind = EventMint
	case BurnTopic:
		kind = EventBurn
	case SettleTopic:
		kind = EventSettle
	default:
		return nil, nil
	}
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("%s log: unexpected topics len=%d", kind, len(l.Topics))
	}
	if len(l.Data) < 32 {
		return nil, fmt.Errorf("%s log: unexpected data len=%d", kind, len(l.Data))
	}

	id := new(uint256.Int)
	id.SetBytes(l.Topics[2].Bytes())

	size := readU256(l.Data, 0)
	if !size.IsUint64() {
		return nil, fmt.Errorf("%s log: size %s overflows uint64", kind, size)
	}

	ev := &PositionEvent{
		Kind:        kind,
		Account:     common.BytesToAddress(l.Topics[1].Bytes()),
		TokenID:     id,
		Size:        size.Uint64(),
		TxHash:      l.TxHash,
		BlockHash:   l.BlockHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}
	if kind != EventSettle {
		if len(l.Data) < 64 {
			return nil, fmt.Errorf("%s log: unexpected data len=%d", kind, len(l.Data))
		}
		ev.Tick = readInt24(l.Data, 1)
	}
	return ev, nil
}

func readU256(data []byte, word int) *big.Int {
	start := word * 32
	return new(big.Int).SetBytes(data[start : start+32])
}

// readInt24 sign-extends an int24 stored right-aligned in a 32-byte word.
func readInt24(data []byte, word int) int32 {
	v := int32(readU256(data, word).Int64() & 0xFFFFFF)
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

// SortLogs orders logs the way the reducer applies them: ascending by
// (block number, log index).
func SortLogs(logs []Log) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}
