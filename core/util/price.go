// Package util holds decimal price conversions shared by the chunk
// tracker and callers that want human-readable prices. The fixed-point
// engines never consume these values; they exist for reporting only.
package util

import (
	"math/big"

	"github.com/cockroachdb/apd/v3"
	"github.com/pkg/errors"

	"github.com/strataoptions/sdk-go/core/tickmath"
)

// decCtx has enough precision to render any Q64.96 sqrt price exactly
// enough for display purposes.
var decCtx = apd.BaseContext.WithPrecision(40)

// PriceFromSqrtRatio converts a Q64.96 sqrt price to a decimal price:
// (sqrt / 2^96)^2, i.e. sqrt^2 / 2^192.
func PriceFromSqrtRatio(sqrt *big.Int) (*apd.Decimal, error) {
	if sqrt == nil || sqrt.Sign() <= 0 {
		return nil, errors.New("sqrt ratio must be positive")
	}
	num := new(apd.Decimal)
	num.Coeff.SetMathBigInt(new(big.Int).Mul(sqrt, sqrt))

	den := new(apd.Decimal)
	den.Coeff.SetMathBigInt(tickmath.Q192)

	out := new(apd.Decimal)
	if _, err := decCtx.Quo(out, num, den); err != nil {
		return nil, errors.Wrap(err, "dividing by fixed-point scale")
	}
	return out, nil
}

// PriceAtTick is PriceFromSqrtRatio over the tick's sqrt ratio.
func PriceAtTick(tick int32) (*apd.Decimal, error) {
	sqrt, err := tickmath.SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	return PriceFromSqrtRatio(sqrt)
}

// MidPrice is the arithmetic midpoint of the prices at two ticks,
// typically a chunk's bounds.
func MidPrice(tickLower, tickUpper int32) (*apd.Decimal, error) {
	lower, err := PriceAtTick(tickLower)
	if err != nil {
		return nil, err
	}
	upper, err := PriceAtTick(tickUpper)
	if err != nil {
		return nil, err
	}

	out := new(apd.Decimal)
	if _, err := decCtx.Add(out, lower, upper); err != nil {
		return nil, errors.Wrap(err, "summing bound prices")
	}
	if _, err := decCtx.Quo(out, out, apd.New(2, 0)); err != nil {
		return nil, errors.Wrap(err, "halving")
	}
	return out, nil
}
