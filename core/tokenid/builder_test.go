package tokenid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataoptions/sdk-go/core/types"
)

func TestBuilderSlotOrder(t *testing.T) {
	id, err := NewBuilder(testCtx).
		AddCall(0, 10, 1, false).
		AddPut(-100, 4, 2, true).
		AddLoan(50, 1).
		AddCredit(200, 3).
		Build()
	require.NoError(t, err)

	_, legs, err := Decode(id)
	require.NoError(t, err)
	require.Len(t, legs, 4)

	assert.Equal(t, types.TokenTypeCall, legs[0].TokenType)
	assert.False(t, legs[0].IsLong)

	assert.Equal(t, types.TokenTypePut, legs[1].TokenType)
	assert.True(t, legs[1].IsLong)
	assert.Equal(t, int32(-100), legs[1].Strike)

	// Loans are long width-0 points, credits short width-0 points.
	assert.Equal(t, uint16(0), legs[2].Width)
	assert.True(t, legs[2].IsLong)
	assert.Equal(t, uint16(0), legs[3].Width)
	assert.False(t, legs[3].IsLong)

	// Every standalone leg partners itself.
	for i, leg := range legs {
		assert.Equal(t, uint8(i), leg.RiskPartner)
	}
}

func TestBuilderPairLast(t *testing.T) {
	id, err := NewBuilder(testCtx).
		AddCall(0, 10, 1, false).
		AddCall(100, 10, 1, true).
		PairLast().
		Build()
	require.NoError(t, err)

	_, legs, err := Decode(id)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, uint8(1), legs[0].RiskPartner)
	assert.Equal(t, uint8(0), legs[1].RiskPartner)
}

func TestBuilderPairLastNeedsTwoLegs(t *testing.T) {
	_, err := NewBuilder(testCtx).AddCall(0, 10, 1, false).PairLast().Build()
	assert.ErrorIs(t, err, types.ErrMalformedID)
}

func TestBuilderTooManyLegs(t *testing.T) {
	b := NewBuilder(testCtx)
	for i := 0; i < 5; i++ {
		b.AddCall(0, 10, 1, false)
	}
	_, err := b.Build()
	assert.ErrorIs(t, err, types.ErrInvalidLegCount)
}

func TestBuilderBaseDenominated(t *testing.T) {
	id, err := NewBuilder(testCtx).AddCall(0, 10, 1, false, AsBase()).Build()
	require.NoError(t, err)

	_, legs, err := Decode(id)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), legs[0].Asset)
}
