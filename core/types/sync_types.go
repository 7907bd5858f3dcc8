package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Scope identifies one synchronized account: a (chain, pool, account)
// triple. All persisted sync state is keyed under a scope.
type Scope struct {
	ChainID uint64         `validate:"required"`
	Pool    common.Address `validate:"required"`
	Account common.Address `validate:"required"`
}

// ID renders the scope's store key component.
func (s Scope) ID() string {
	return fmt.Sprintf("%d:%s:%s", s.ChainID, s.Pool.Hex(), s.Account.Hex())
}

// SyncState is the per-scope state machine position. A scan is a single
// call; Synced is terminal per call.
type SyncState uint8

const (
	StateUninitialized SyncState = iota
	StateScanning
	StateSynced
	StateReorgDetected
	StateRecovering
)

func (s SyncState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateScanning:
		return "scanning"
	case StateSynced:
		return "synced"
	case StateReorgDetected:
		return "reorg_detected"
	case StateRecovering:
		return "recovering"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// BlockRef is a (number, hash) pair recorded per committed window so reorg
// recovery can locate a common ancestor without a live state read.
type BlockRef struct {
	Number uint64      `json:"number"`
	Hash   common.Hash `json:"hash"`
}

// Checkpoint is the durable scan cursor: the last applied block plus a
// bounded ring of recent window-end blocks. It advances monotonically
// except during reorg rollback.
type Checkpoint struct {
	// Block and Hash identify the last block whose logs were fully applied.
	Block uint64      `json:"block"`
	Hash  common.Hash `json:"hash"`
	// Recent holds window-end references from oldest to newest, capped at
	// the reorg safety depth. The newest entry duplicates Block/Hash.
	Recent []BlockRef `json:"recent,omitempty"`
}

// WindowProgress is emitted once per applied window. Observational only;
// it carries no control semantics.
type WindowProgress struct {
	ScannedFromBlock uint64
	ScannedToBlock   uint64
	PositionsAdded   int
	PositionsRemoved int
	// ReorgDepth is non-zero only on the window that triggered recovery:
	// the number of blocks rolled back.
	ReorgDepth uint64
}

// ProgressFunc receives per-window progress. It is called synchronously
// between windows; a slow callback slows the scan.
type ProgressFunc func(WindowProgress)

// Summary is the final result of one sync call.
type Summary struct {
	State            SyncState
	BlocksScanned    uint64
	PositionsAdded   int
	PositionsRemoved int
	PositionsSettled int
	PendingConfirmed int
	ReorgOccurred    bool
	ReorgDepth       uint64
	CheckpointBlock  uint64
}

// PendingStatus is the lifecycle state of an optimistic position record.
type PendingStatus uint8

const (
	PendingStatusPending PendingStatus = iota
	PendingStatusConfirmed
	PendingStatusFailed
)

// PendingPosition is an optimistic record for a submitted-but-unconfirmed
// open or close, keyed by the submitting transaction's hash.
type PendingPosition struct {
	TxRef common.Hash `json:"tx_ref"`
	// ID is the decimal rendering of the position identifier.
	ID string `json:"id"`
	// IsClose is true when the pending action removes the position.
	IsClose bool          `json:"is_close"`
	Status  PendingStatus `json:"status"`
	// Size and MintTick seed the tracked entry when an open confirms
	// before its mint log has been scanned.
	Size     uint64 `json:"size,omitempty"`
	MintTick int32  `json:"mint_tick,omitempty"`
	// CreatedAt is a Unix timestamp used by the staleness sweep.
	CreatedAt int64 `json:"created_at"`
}
