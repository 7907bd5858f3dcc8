// Package tokenid packs and unpacks the protocol's 256-bit position
// identifier. The bit layout is a protocol contract shared with the
// on-ledger contracts: any change must be versioned, never silently
// altered.
package tokenid

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/strataoptions/sdk-go/core/tickmath"
	"github.com/strataoptions/sdk-go/core/types"
)

// Bit layout constants. Pool context occupies the low 64 bits; each of the
// four leg slots occupies 48 bits above it.
const (
	poolPatternBits  = 48
	tickSpacingShift = 48
	tickSpacingBits  = 16

	legBaseShift = 64
	legBits      = 48

	// Offsets within a leg slot.
	assetShift     = 0
	ratioShift     = 1
	ratioBits      = 7
	longShift      = 8
	tokenTypeShift = 9
	partnerShift   = 10
	partnerBits    = 2
	strikeShift    = 12
	strikeBits     = 24
	widthShift     = 36
	widthBits      = 12

	// MaxLegs is the number of leg slots in the identifier.
	MaxLegs = 4
)

const (
	ratioMask   = (1 << ratioBits) - 1
	partnerMask = (1 << partnerBits) - 1
	strikeMask  = (1 << strikeBits) - 1
	widthMask   = (1 << widthBits) - 1
	strikeSign  = 1 << (strikeBits - 1)
	legMask     = (1 << legBits) - 1
)

// Encode packs a pool context and one to four legs into an identifier.
// Leg slot order follows slice order. Validation failures surface as
// ErrInvalidLegCount, ErrInvalidStrike, ErrInvalidWidth or ErrMalformedID;
// encoding never proceeds on invalid input.
func Encode(ctx types.PoolContext, legs []types.Leg) (*uint256.Int, error) {
	if len(legs) == 0 || len(legs) > MaxLegs {
		return nil, fmt.Errorf("%w: got %d", types.ErrInvalidLegCount, len(legs))
	}
	if ctx.TickSpacing <= 0 || ctx.TickSpacing > (1<<tickSpacingBits)-1 {
		return nil, fmt.Errorf("tick spacing %d out of range", ctx.TickSpacing)
	}
	if ctx.PoolPattern >= 1<<poolPatternBits {
		return nil, fmt.Errorf("pool pattern %#x exceeds %d bits", ctx.PoolPattern, poolPatternBits)
	}

	id := uint256.NewInt(ctx.PoolPattern)
	spacing := uint256.NewInt(uint64(ctx.TickSpacing))
	id.Or(id, spacing.Lsh(spacing, tickSpacingShift))

	for i, leg := range legs {
		if err := validateLeg(ctx, legs, i); err != nil {
			return nil, err
		}
		packed := packLeg(leg)
		word := uint256.NewInt(packed)
		id.Or(id, word.Lsh(word, uint(legBaseShift+i*legBits)))
	}
	return id, nil
}

// Decode unpacks an identifier into its pool context and ordered legs.
// A slot with zero ratio terminates leg enumeration; any populated slot
// after a terminating one makes the identifier malformed.
func Decode(id *uint256.Int) (types.PoolContext, []types.Leg, error) {
	ctx := types.PoolContext{}
	if id == nil || id.IsZero() {
		return ctx, nil, fmt.Errorf("%w: empty identifier", types.ErrMalformedID)
	}

	low := id.Uint64()
	ctx.PoolPattern = low & ((1 << poolPatternBits) - 1)
	ctx.TickSpacing = int32(low >> tickSpacingShift)
	if ctx.TickSpacing == 0 {
		return ctx, nil, fmt.Errorf("%w: zero tick spacing", types.ErrMalformedID)
	}

	legs := make([]types.Leg, 0, MaxLegs)
	terminated := false
	for i := 0; i < MaxLegs; i++ {
		slot := legSlot(id, i)
		if slot == 0 {
			terminated = true
			continue
		}
		ratio := uint8((slot >> ratioShift) & ratioMask)
		if ratio == 0 || terminated {
			// A ratioless slot with other bits set, or a populated slot
			// after the terminator: the populated-slot count is
			// internally inconsistent.
			return ctx, nil, fmt.Errorf("%w: inconsistent slot %d", types.ErrMalformedID, i)
		}
		legs = append(legs, unpackLeg(slot, uint8(i)))
	}
	if len(legs) == 0 {
		return ctx, nil, fmt.Errorf("%w: no populated legs", types.ErrMalformedID)
	}

	// Risk-partner links must be reciprocal.
	for _, leg := range legs {
		p := leg.RiskPartner
		if int(p) >= len(legs) {
			return ctx, nil, fmt.Errorf("%w: leg %d partners missing slot %d", types.ErrMalformedID, leg.Index, p)
		}
		if p != leg.Index && legs[p].RiskPartner != leg.Index {
			return ctx, nil, fmt.Errorf("%w: leg %d partner link not reciprocal", types.ErrMalformedID, leg.Index)
		}
	}
	return ctx, legs, nil
}

// FormatID renders an identifier in decimal, the canonical wire form.
func FormatID(id *uint256.Int) string {
	return id.Dec()
}

// ParseID accepts the decimal or 0x-prefixed hexadecimal wire forms.
func ParseID(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err := uint256.FromHex(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("parse identifier: %w", err)
		}
		return id, nil
	}
	id, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse identifier: %w", err)
	}
	return id, nil
}

func legSlot(id *uint256.Int, i int) uint64 {
	shifted := new(uint256.Int).Rsh(id, uint(legBaseShift+i*legBits))
	return shifted.Uint64() & legMask
}

func packLeg(leg types.Leg) uint64 {
	var v uint64
	v |= uint64(leg.Asset&1) << assetShift
	v |= uint64(leg.Ratio&ratioMask) << ratioShift
	if leg.IsLong {
		v |= 1 << longShift
	}
	v |= uint64(leg.TokenType&1) << tokenTypeShift
	v |= uint64(leg.RiskPartner&partnerMask) << partnerShift
	v |= (uint64(uint32(leg.Strike)) & strikeMask) << strikeShift
	v |= uint64(leg.Width&widthMask) << widthShift
	return v
}

func unpackLeg(slot uint64, index uint8) types.Leg {
	strikeRaw := uint32((slot >> strikeShift) & strikeMask)
	strike := int32(strikeRaw)
	if strikeRaw&strikeSign != 0 {
		strike = int32(strikeRaw) - (1 << strikeBits)
	}
	return types.Leg{
		Index:       index,
		Asset:       uint8(slot >> assetShift & 1),
		Ratio:       uint8((slot >> ratioShift) & ratioMask),
		IsLong:      slot>>longShift&1 == 1,
		TokenType:   types.TokenType(slot >> tokenTypeShift & 1),
		RiskPartner: uint8((slot >> partnerShift) & partnerMask),
		Strike:      strike,
		Width:       uint16((slot >> widthShift) & widthMask),
	}
}

func validateLeg(ctx types.PoolContext, legs []types.Leg, i int) error {
	leg := legs[i]
	if leg.Ratio == 0 || leg.Ratio > ratioMask {
		return fmt.Errorf("%w: leg %d ratio %d", types.ErrMalformedID, i, leg.Ratio)
	}
	if leg.Strike%ctx.TickSpacing != 0 {
		return fmt.Errorf("%w: leg %d strike %d not aligned to spacing %d",
			types.ErrInvalidStrike, i, leg.Strike, ctx.TickSpacing)
	}
	if leg.Strike < tickmath.MinTick || leg.Strike > tickmath.MaxTick {
		return fmt.Errorf("%w: leg %d strike %d outside tick domain", types.ErrInvalidStrike, i, leg.Strike)
	}
	if leg.Width > widthMask {
		return fmt.Errorf("%w: leg %d width %d exceeds field", types.ErrInvalidWidth, i, leg.Width)
	}
	if leg.Width > 0 {
		// Ranged legs need an integer half-range so the bounds sit
		// symmetrically around the strike.
		span := int64(leg.Width) * int64(ctx.TickSpacing)
		if span%2 != 0 {
			return fmt.Errorf("%w: leg %d width %d x spacing %d has no symmetric half-range",
				types.ErrInvalidWidth, i, leg.Width, ctx.TickSpacing)
		}
		half := int32(span / 2)
		if leg.Strike-half < tickmath.MinTick || leg.Strike+half > tickmath.MaxTick {
			return fmt.Errorf("%w: leg %d range [%d, %d] outside tick domain",
				types.ErrInvalidStrike, i, leg.Strike-half, leg.Strike+half)
		}
	}
	if int(leg.RiskPartner) >= len(legs) {
		return fmt.Errorf("%w: leg %d partner slot %d not populated", types.ErrMalformedID, i, leg.RiskPartner)
	}
	if leg.RiskPartner != uint8(i) {
		partner := legs[leg.RiskPartner]
		if partner.RiskPartner != uint8(i) {
			return fmt.Errorf("%w: leg %d partner link not reciprocal", types.ErrMalformedID, i)
		}
		if partner.Ratio != leg.Ratio {
			return fmt.Errorf("%w: leg %d and partner %d ratios differ", types.ErrMalformedID, i, leg.RiskPartner)
		}
	}
	return nil
}
