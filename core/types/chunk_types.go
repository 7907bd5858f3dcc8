package types

// MaxTrackedChunks is the hard cap on price-range buckets tracked per
// pool. Exceeding it is a fatal error, never a silent eviction: ambiguous
// eviction would corrupt the aggregated statistics without the caller
// noticing.
const MaxTrackedChunks = 1000

// ChunkKey identifies one price-range bucket of a pool.
type ChunkKey struct {
	TickLower int32     `json:"tick_lower"`
	TickUpper int32     `json:"tick_upper"`
	TokenType TokenType `json:"token_type"`
}

// ChunkSpread aggregates liquidity and spread touches for one chunk.
type ChunkSpread struct {
	// NetLiquidity is the signed sum of liquidity added (mints) and
	// removed (burns) in this chunk.
	NetLiquidity int64 `json:"net_liquidity"`
	// GrossLiquidity accumulates absolute liquidity touched.
	GrossLiquidity uint64 `json:"gross_liquidity"`
	// Touches counts events that referenced the chunk.
	Touches uint64 `json:"touches"`
	// LastBlock is the most recent block that touched the chunk.
	LastBlock uint64 `json:"last_block"`
}
