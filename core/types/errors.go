package types

import "github.com/pkg/errors"

// Codec errors. These always surface to the caller; encoding never proceeds
// on invalid input and decoding never truncates silently.
var (
	// ErrInvalidLegCount is returned when encoding more than four legs, or
	// zero legs.
	ErrInvalidLegCount = errors.New("position must carry between one and four legs")

	// ErrInvalidStrike is returned when a strike tick is not aligned to the
	// pool's tick spacing or falls outside the encodable tick range.
	ErrInvalidStrike = errors.New("strike tick misaligned or out of range")

	// ErrInvalidWidth is returned when a ranged leg has no symmetric integer
	// half-range (width x spacing is odd) or the width overflows its field.
	ErrInvalidWidth = errors.New("leg width invalid for tick spacing")

	// ErrMalformedID is returned when a decoded identifier's populated slots
	// are internally inconsistent (a populated slot after a terminating one,
	// or a non-reciprocal risk-partner link).
	ErrMalformedID = errors.New("malformed position identifier")
)

// Sync engine errors.
var (
	// ErrScanInProgress is returned when a second scan of the same
	// (chain, pool, account) scope is attempted while one is running.
	// Callers serialize per-scope access.
	ErrScanInProgress = errors.New("a scan of this scope is already in progress")

	// ErrUnrecoverableReorg is returned when no common ancestor with the
	// canonical chain exists within the reorg safety depth. Fatal for the
	// scope; manual intervention (or a full resync from deployment) is
	// required.
	ErrUnrecoverableReorg = errors.New("no common ancestor within reorg safety depth")

	// ErrChunkCapacity is returned when tracking would exceed the per-pool
	// chunk cap. The tracker never evicts silently; the caller must prune.
	ErrChunkCapacity = errors.New("chunk capacity exceeded")

	// ErrLiquidityOverflow is returned when a leg's chunk liquidity exceeds
	// the tracker's signed 64-bit range. The tracker never truncates
	// silently; such a position cannot be folded.
	ErrLiquidityOverflow = errors.New("chunk liquidity exceeds tracker range")

	// ErrPendingNotFound is returned when confirming or failing a pending
	// position by an unknown transaction reference.
	ErrPendingNotFound = errors.New("no pending position for transaction reference")
)

// Store errors.
var (
	// ErrSchemaVersion is returned when a stored payload carries a schema
	// version other than the current one. The store never migrates silently.
	ErrSchemaVersion = errors.New("stored payload schema version mismatch")
)
