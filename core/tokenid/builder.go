package tokenid

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/strataoptions/sdk-go/core/types"
)

// Builder accumulates legs and finalizes them into one identifier. Legs
// take slots in addition order. The first error sticks; Build reports it.
type Builder struct {
	ctx  types.PoolContext
	legs []types.Leg
	err  error
}

// NewBuilder starts a builder for one pool context.
func NewBuilder(ctx types.PoolContext) *Builder {
	return &Builder{ctx: ctx}
}

// LegOption adjusts a leg before it is added.
type LegOption func(*types.Leg)

// AsBase denominates the leg in the pool's base token. Its ticks are
// negated before arithmetic so one formula set serves both orderings.
func AsBase() LegOption {
	return func(l *types.Leg) { l.Asset = 1 }
}

// AddCall appends a call-side leg with the given strike tick, width (in
// tick-spacing units) and option ratio.
func (b *Builder) AddCall(strike int32, width uint16, ratio uint8, isLong bool, opts ...LegOption) *Builder {
	return b.add(types.Leg{
		TokenType: types.TokenTypeCall,
		Strike:    strike,
		Width:     width,
		Ratio:     ratio,
		IsLong:    isLong,
	}, opts...)
}

// AddPut appends a put-side leg.
func (b *Builder) AddPut(strike int32, width uint16, ratio uint8, isLong bool, opts ...LegOption) *Builder {
	return b.add(types.Leg{
		TokenType: types.TokenTypePut,
		Strike:    strike,
		Width:     width,
		Ratio:     ratio,
		IsLong:    isLong,
	}, opts...)
}

// AddLoan appends a width-0 long point position at the strike: a lent
// notional with no price range. Point legs never use an in-range formula.
func (b *Builder) AddLoan(strike int32, ratio uint8, opts ...LegOption) *Builder {
	return b.add(types.Leg{
		TokenType: types.TokenTypeCall,
		Strike:    strike,
		Width:     0,
		Ratio:     ratio,
		IsLong:    true,
	}, opts...)
}

// AddCredit appends a width-0 short point position at the strike: a
// borrowed notional with no price range.
func (b *Builder) AddCredit(strike int32, ratio uint8, opts ...LegOption) *Builder {
	return b.add(types.Leg{
		TokenType: types.TokenTypePut,
		Strike:    strike,
		Width:     0,
		Ratio:     ratio,
		IsLong:    false,
	}, opts...)
}

// PairLast marks the two most recently added legs as risk partners. The
// pair must already hold opposite long/short exposure on the same ratio
// for the defined-risk accounting to net.
func (b *Builder) PairLast() *Builder {
	if b.err != nil {
		return b
	}
	n := len(b.legs)
	if n < 2 {
		b.err = fmt.Errorf("%w: PairLast needs two legs", types.ErrMalformedID)
		return b
	}
	b.legs[n-2].RiskPartner = uint8(n - 1)
	b.legs[n-1].RiskPartner = uint8(n - 2)
	return b
}

// Build finalizes the accumulated legs into one identifier.
func (b *Builder) Build() (*uint256.Int, error) {
	if b.err != nil {
		return nil, b.err
	}
	return Encode(b.ctx, b.legs)
}

func (b *Builder) add(leg types.Leg, opts ...LegOption) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.legs) >= MaxLegs {
		b.err = fmt.Errorf("%w: more than %d legs", types.ErrInvalidLegCount, MaxLegs)
		return b
	}
	for _, opt := range opts {
		opt(&leg)
	}
	leg.Index = uint8(len(b.legs))
	leg.RiskPartner = leg.Index
	b.legs = append(b.legs, leg)
	return b
}
