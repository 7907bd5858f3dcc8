package types

// TokenType selects which side of the pool a leg's exposure moves in.
type TokenType uint8

const (
	// TokenTypeCall legs are denominated in the pool's token0 side.
	TokenTypeCall TokenType = 0
	// TokenTypePut legs are denominated in the pool's token1 side.
	TokenTypePut TokenType = 1
)

func (t TokenType) String() string {
	if t == TokenTypePut {
		return "put"
	}
	return "call"
}

// Leg is one component of a multi-leg position as packed into the
// identifier's bit layout. Field widths are a protocol contract; see the
// tokenid package for the exact offsets.
type Leg struct {
	// Index is the slot (0..3) this leg occupies in the identifier.
	Index uint8
	// Asset is 0 when the leg's notional is quote-denominated and 1 when it
	// is denominated in the pool's base token. Ticks of base-denominated
	// legs are negated before any arithmetic.
	Asset uint8
	// Ratio is the option ratio (1..127). A zero ratio marks an empty slot;
	// it never appears on a decoded leg.
	Ratio uint8
	// IsLong is true for bought exposure, false for written exposure.
	IsLong bool
	// TokenType selects the call or put side formulas.
	TokenType TokenType
	// RiskPartner is the slot index of the leg this one is risk-paired
	// with. A standalone leg is its own partner.
	RiskPartner uint8
	// Strike is the strike tick, aligned to the pool's tick spacing.
	Strike int32
	// Width is the range width in tick-spacing units. Width 0 is a point
	// position (a loan or credit): a single-tick exposure with no price
	// range and no in-range regime.
	Width uint16
}

// PoolContext is the pool-scoped prefix of the identifier.
type PoolContext struct {
	// PoolPattern is the low 48 bits identifying the pool on the ledger.
	PoolPattern uint64
	// TickSpacing constrains valid strikes and scales leg widths.
	TickSpacing int32
}

// PositionSnapshot is the point-in-time context the greeks engine needs
// alongside the decoded legs. It owns no persistent state.
type PositionSnapshot struct {
	// Size is the position size; each leg's notional is Size x leg.Ratio.
	Size uint64 `validate:"required,gt=0"`
	// MintTick is the pool tick at mint time, used as the in-the-money
	// anchor for standalone legs.
	MintTick int32
	// MintTimestamp is the ledger timestamp of the mint block (Unix
	// seconds). Informational; not used by the arithmetic.
	MintTimestamp int64
}
