// Package tickmath provides the fixed-point square-root-price primitives
// the ledger's contracts use: tick to Q64.96 sqrt ratio conversion and
// truncating integer division. Results are bit-exact with the on-ledger
// arithmetic; any deviation here breaks value reconciliation, so the
// conversion is verified in tests against the reference extreme values.
package tickmath

import (
	"fmt"
	"math/big"
)

const (
	// MinTick and MaxTick bound the encodable tick domain.
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// Q96 is 2^96, the fixed-point one of the sqrt price representation.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Q192 is 2^192, the fixed-point one of the price representation.
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	one        = big.NewInt(1)

	// sqrtMagic[i] is sqrt(1.0001^-(2^i)) in Q128, the per-bit ladder the
	// ledger's tick math multiplies through. Protocol constants; never edit.
	sqrtMagic = [20]*big.Int{
		mustBig("0xfffcb933bd6fad37aa2d162d1a594001"),
		mustBig("0xfff97272373d413259a46990580e213a"),
		mustBig("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		mustBig("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		mustBig("0xffcb9843d60f6159c9db58835c926644"),
		mustBig("0xff973b41fa98c081472e6896dfb254c0"),
		mustBig("0xff2ea16466c96a3843ec78b326b52861"),
		mustBig("0xfe5dee046a99a2a811c461f1969c3053"),
		mustBig("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		mustBig("0xf987a7253ac413176f2b074cf7815e54"),
		mustBig("0xf3392b0822b70005940c7a398e4b70f3"),
		mustBig("0xe7159475a2c29b7443b29c7fa6e889d9"),
		mustBig("0xd097f3bdfd2022b8845ad8f792aa5825"),
		mustBig("0xa9f746462d870fdf8a65dc1f90e061e5"),
		mustBig("0x70d869a156d2a1b890bb3df62baf32f7"),
		mustBig("0x31be135f97d08fd981231505542fcfa6"),
		mustBig("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		mustBig("0x5d6af8dedb81196699c329225ee604"),
		mustBig("0x2216e584f5fa1ea926041bedfe98"),
		mustBig("0x48a170391f7dc42444e8fa2"),
	}
)

func mustBig(hex string) *big.Int {
	v, ok := new(big.Int).SetString(hex, 0)
	if !ok {
		panic("tickmath: bad constant " + hex)
	}
	return v
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96 for a tick in
// [MinTick, MaxTick], reproducing the ledger's ladder computation bit for
// bit, including its round-up on the final shift.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d outside [%d, %d]", tick, MinTick, MaxTick)
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-int64(tick))
	}

	ratio := new(big.Int).Lsh(one, 128)
	if absTick&1 != 0 {
		ratio.Set(sqrtMagic[0])
	}
	for i := 1; i < len(sqrtMagic); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, sqrtMagic[i])
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Quo(maxUint256, ratio)
	}

	// Q128 -> Q96, rounding up so the inverse relation with the ledger's
	// tick-from-ratio lookup is preserved.
	rem := new(big.Int).And(ratio, mustBig("0xffffffff"))
	ratio.Rsh(ratio, 32)
	if rem.Sign() != 0 {
		ratio.Add(ratio, one)
	}
	return ratio, nil
}

// DivTrunc divides a by b truncating toward zero. The ledger's arithmetic
// truncates; most languages' floor-style signed division does not, which
// is why every division in the value engine routes through here.
func DivTrunc(a, b *big.Int) *big.Int {
	return new(big.Int).Quo(a, b)
}

// DivRoundingUp divides a by b rounding away from zero for non-negative
// operands. Used for liability terms, which round against the holder.
func DivRoundingUp(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, one)
	}
	return q
}

// LiquidityForAmount0 converts a token0 amount over [sqrtLower, sqrtUpper]
// into chunk liquidity, truncating.
func LiquidityForAmount0(amount0, sqrtLower, sqrtUpper *big.Int) *big.Int {
	intermediate := DivTrunc(new(big.Int).Mul(sqrtLower, sqrtUpper), Q96)
	return DivTrunc(new(big.Int).Mul(amount0, intermediate), new(big.Int).Sub(sqrtUpper, sqrtLower))
}

// LiquidityForAmount1 converts a token1 amount over [sqrtLower, sqrtUpper]
// into chunk liquidity, truncating.
func LiquidityForAmount1(amount1, sqrtLower, sqrtUpper *big.Int) *big.Int {
	return DivTrunc(new(big.Int).Mul(amount1, Q96), new(big.Int).Sub(sqrtUpper, sqrtLower))
}

// Amount0ForLiquidity returns the token0 amount a liquidity chunk holds
// over [sqrtLower, sqrtUpper], truncating in the ledger's order.
func Amount0ForLiquidity(liquidity, sqrtLower, sqrtUpper *big.Int) *big.Int {
	n := new(big.Int).Lsh(liquidity, 96)
	n.Mul(n, new(big.Int).Sub(sqrtUpper, sqrtLower))
	return DivTrunc(DivTrunc(n, sqrtUpper), sqrtLower)
}

// Amount1ForLiquidity returns the token1 amount a liquidity chunk holds
// over [sqrtLower, sqrtUpper], truncating.
func Amount1ForLiquidity(liquidity, sqrtLower, sqrtUpper *big.Int) *big.Int {
	return DivTrunc(new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtUpper, sqrtLower)), Q96)
}
