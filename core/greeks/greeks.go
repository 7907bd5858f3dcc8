// Package greeks computes per-leg and per-position mark value, delta and
// dollar-gamma from decoded legs and a point-in-time position snapshot.
// The arithmetic reproduces the ledger's fixed-point forms exactly: every
// division truncates toward zero, and liability terms round up against
// the holder, so results reconcile bit for bit with on-ledger accounting.
//
// Each ranged leg has three price regimes (below range, in range, above
// range), each a distinct closed-form expression of the Q64.96 sqrt
// price. Width-0 legs are point positions: they use below/above-only
// forms and never touch the in-range expression, whose denominator is
// structurally zero for a zero-width range.
package greeks

import (
	"fmt"
	"math/big"

	"github.com/strataoptions/sdk-go/core/tickmath"
	"github.com/strataoptions/sdk-go/core/types"
)

// LegGreeks carries one leg's results in fixed-point base units. Value
// and DollarGamma are quote-denominated; Delta is in base-token units.
type LegGreeks struct {
	Value       *big.Int
	Delta       *big.Int
	DollarGamma *big.Int
}

// PositionGreeks sums the legs.
type PositionGreeks struct {
	Value       *big.Int
	Delta       *big.Int
	DollarGamma *big.Int
	Legs        []LegGreeks
	// DefinedRisk is set when two or more legs share a token type with
	// both long and short exposure present. Defined-risk positions anchor
	// the in-the-money adjustment at the strike instead of the mint tick.
	DefinedRisk bool
}

// Compute evaluates a decoded position at the current tick. It is pure:
// no I/O, no retained state.
func Compute(ctx types.PoolContext, legs []types.Leg, snap types.PositionSnapshot, currentTick int32) (PositionGreeks, error) {
	if len(legs) == 0 {
		return PositionGreeks{}, fmt.Errorf("%w: no legs", types.ErrInvalidLegCount)
	}
	if snap.Size == 0 {
		return PositionGreeks{}, fmt.Errorf("position size must be positive")
	}

	out := PositionGreeks{
		Value:       new(big.Int),
		Delta:       new(big.Int),
		DollarGamma: new(big.Int),
		Legs:        make([]LegGreeks, 0, len(legs)),
		DefinedRisk: isDefinedRisk(legs),
	}

	for _, leg := range legs {
		lg, err := computeLeg(ctx, leg, snap, currentTick, out.DefinedRisk)
		if err != nil {
			return PositionGreeks{}, fmt.Errorf("leg %d: %w", leg.Index, err)
		}
		out.Value.Add(out.Value, lg.Value)
		out.Delta.Add(out.Delta, lg.Delta)
		out.DollarGamma.Add(out.DollarGamma, lg.DollarGamma)
		out.Legs = append(out.Legs, lg)
	}
	return out, nil
}

func isDefinedRisk(legs []types.Leg) bool {
	for _, tt := range []types.TokenType{types.TokenTypeCall, types.TokenTypePut} {
		var n int
		var long, short bool
		for _, leg := range legs {
			if leg.TokenType != tt {
				continue
			}
			n++
			if leg.IsLong {
				long = true
			} else {
				short = true
			}
		}
		if n >= 2 && long && short {
			return true
		}
	}
	return false
}

// legRange resolves a leg's normalized sqrt-price bounds. Base-denominated
// legs have their ticks negated so one formula set serves both token
// orderings; negating a tick interval swaps its bounds, which the
// strike-symmetric construction here absorbs.
type legRange struct {
	s         *big.Int // notional: size x ratio
	sqrtLower *big.Int
	sqrtUpper *big.Int
	point     bool // width == 0
}

func resolveRange(ctx types.PoolContext, leg types.Leg, size uint64) (legRange, error) {
	strike := normalizeTick(leg, leg.Strike)
	r := legRange{
		s: new(big.Int).Mul(new(big.Int).SetUint64(size), big.NewInt(int64(leg.Ratio))),
	}
	if leg.Width == 0 {
		sk, err := tickmath.SqrtRatioAtTick(strike)
		if err != nil {
			return legRange{}, err
		}
		r.sqrtLower, r.sqrtUpper, r.point = sk, sk, true
		return r, nil
	}

	half := int32(int64(leg.Width) * int64(ctx.TickSpacing) / 2)
	sl, err := tickmath.SqrtRatioAtTick(strike - half)
	if err != nil {
		return legRange{}, err
	}
	su, err := tickmath.SqrtRatioAtTick(strike + half)
	if err != nil {
		return legRange{}, err
	}
	r.sqrtLower, r.sqrtUpper = sl, su
	return r, nil
}

func normalizeTick(leg types.Leg, tick int32) int32 {
	if leg.Asset == 1 {
		return -tick
	}
	return tick
}

func computeLeg(ctx types.PoolContext, leg types.Leg, snap types.PositionSnapshot, currentTick int32, definedRisk bool) (LegGreeks, error) {
	r, err := resolveRange(ctx, leg, snap.Size)
	if err != nil {
		return LegGreeks{}, err
	}

	x, err := tickmath.SqrtRatioAtTick(normalizeTick(leg, currentTick))
	if err != nil {
		return LegGreeks{}, err
	}

	anchorTick := snap.MintTick
	if definedRisk {
		anchorTick = leg.Strike
	}
	anchor, err := tickmath.SqrtRatioAtTick(normalizeTick(leg, anchorTick))
	if err != nil {
		return LegGreeks{}, err
	}

	var value *big.Int
	if leg.IsLong {
		value = new(big.Int).Sub(itmAdjust(leg.TokenType, r, x, false), itmAdjust(leg.TokenType, r, anchor, true))
	} else {
		value = new(big.Int).Sub(itmAdjust(leg.TokenType, r, anchor, false), itmAdjust(leg.TokenType, r, x, true))
	}

	delta := deltaMagnitude(leg.TokenType, r, x)
	gamma := gammaMagnitude(r, x, leg.TokenType)
	// Short calls and long puts carry negative delta; short exposure
	// always carries negative gamma.
	if (leg.TokenType == types.TokenTypeCall) != leg.IsLong {
		delta.Neg(delta)
	}
	if !leg.IsLong {
		gamma.Neg(gamma)
	}

	return LegGreeks{Value: value, Delta: delta, DollarGamma: gamma}, nil
}

// itmAdjust is the in-the-money adjustment term D(x) in quote units: the
// loss the short side has accrued once price crosses into or through the
// leg's range, anchored at zero on the out-of-the-money side.
func itmAdjust(tt types.TokenType, r legRange, x *big.Int, roundUp bool) *big.Int {
	div := tickmath.DivTrunc
	if roundUp {
		div = tickmath.DivRoundingUp
	}
	s, sl, su := r.s, r.sqrtLower, r.sqrtUpper

	if tt == types.TokenTypeCall {
		if x.Cmp(sl) <= 0 {
			return new(big.Int)
		}
		if r.point || x.Cmp(su) >= 0 {
			// above range: s * (x^2 - sl*su) / Q192
			n := new(big.Int).Mul(x, x)
			n.Sub(n, new(big.Int).Mul(sl, su))
			n.Mul(n, s)
			return div(n, tickmath.Q192)
		}
		// in range: s * su * (x - sl)^2 / (Q192 * (su - sl))
		d := new(big.Int).Sub(x, sl)
		n := new(big.Int).Mul(d, d)
		n.Mul(n, su)
		n.Mul(n, s)
		return div(n, new(big.Int).Mul(tickmath.Q192, new(big.Int).Sub(su, sl)))
	}

	// Put side mirrors the call with the range reflected.
	if x.Cmp(su) >= 0 {
		return new(big.Int)
	}
	if r.point || x.Cmp(sl) <= 0 {
		// below range: s * (sl*su - x^2) / (sl*su)
		slsu := new(big.Int).Mul(sl, su)
		n := new(big.Int).Sub(slsu, new(big.Int).Mul(x, x))
		n.Mul(n, s)
		return div(n, slsu)
	}
	// in range: s * (su - x)^2 / (su * (su - sl))
	d := new(big.Int).Sub(su, x)
	n := new(big.Int).Mul(d, d)
	n.Mul(n, s)
	return div(n, new(big.Int).Mul(su, new(big.Int).Sub(su, sl)))
}

// deltaMagnitude is |dValue/dPrice| in base-token units.
func deltaMagnitude(tt types.TokenType, r legRange, x *big.Int) *big.Int {
	s, sl, su := r.s, r.sqrtLower, r.sqrtUpper

	if tt == types.TokenTypeCall {
		if x.Cmp(sl) <= 0 {
			return new(big.Int)
		}
		if r.point || x.Cmp(su) >= 0 {
			return new(big.Int).Set(s)
		}
		// s * su * (x - sl) / ((su - sl) * x)
		n := new(big.Int).Sub(x, sl)
		n.Mul(n, su)
		n.Mul(n, s)
		return tickmath.DivTrunc(n, new(big.Int).Mul(new(big.Int).Sub(su, sl), x))
	}

	if x.Cmp(su) >= 0 {
		return new(big.Int)
	}
	if r.point || x.Cmp(sl) <= 0 {
		// s * Q192 / (sl * su), the full token0 equivalent of the notional
		return tickmath.DivTrunc(new(big.Int).Mul(s, tickmath.Q192), new(big.Int).Mul(sl, su))
	}
	// s * Q192 * (su - x) / ((su - sl) * x * su)
	n := new(big.Int).Sub(su, x)
	n.Mul(n, tickmath.Q192)
	n.Mul(n, s)
	d := new(big.Int).Sub(su, sl)
	d.Mul(d, x)
	d.Mul(d, su)
	return tickmath.DivTrunc(n, d)
}

// gammaMagnitude is the dollar-gamma magnitude, exactly zero outside
// (lower, upper) and identically zero for point legs, which never have an
// in-range regime.
func gammaMagnitude(r legRange, x *big.Int, tt types.TokenType) *big.Int {
	if r.point {
		return new(big.Int)
	}
	s, sl, su := r.s, r.sqrtLower, r.sqrtUpper
	if x.Cmp(sl) <= 0 || x.Cmp(su) >= 0 {
		return new(big.Int)
	}
	d := new(big.Int).Sub(su, sl)
	d.Mul(d, x)
	d.Mul(d, big.NewInt(2))
	if tt == types.TokenTypeCall {
		n := new(big.Int).Mul(sl, su)
		n.Mul(n, s)
		return tickmath.DivTrunc(n, d)
	}
	return tickmath.DivTrunc(new(big.Int).Mul(s, tickmath.Q192), d)
}
