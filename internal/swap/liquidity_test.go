package swap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/swaptrade/internal/marketdata"
	"github.com/Aidin1998/swaptrade/testutil"
)

func TestCheckLiquidityCeiling(t *testing.T) {
	m := marketdata.NewMemoryProvider()
	m.SetReserve("BTC", "ETH", testutil.Dec("99"))
	g := NewLiquidityGuard(m, testConfig())
	ctx := context.Background()

	check, err := g.CheckLiquidity(ctx, "BTC", "ETH", testutil.Dec("11"))
	require.NoError(t, err)
	assert.True(t, check.Sufficient, check.Reason)
	testutil.AssertDecimalEqual(t, "0.1", check.PriceImpact)
	testutil.AssertDecimalEqual(t, "11", check.MaxFillable)
	testutil.AssertDecimalEqual(t, "99", check.Reserve)

	check, err = g.CheckLiquidity(ctx, "BTC", "ETH", testutil.Dec("12"))
	require.NoError(t, err)
	assert.False(t, check.Sufficient)
	assert.Contains(t, check.Reason, "price impact")
	testutil.AssertDecimalEqual(t, "11", check.MaxFillable)
}

func TestCheckLiquidityReserveBelowAmount(t *testing.T) {
	m := marketdata.NewMemoryProvider()
	m.SetReserve("BTC", "ETH", testutil.Dec("5"))
	cfg := testConfig()
	cfg.PriceImpactCeiling = testutil.Dec("0.9")
	g := NewLiquidityGuard(m, cfg)

	check, err := g.CheckLiquidity(context.Background(), "BTC", "ETH", testutil.Dec("6"))
	require.NoError(t, err)
	assert.False(t, check.Sufficient)
	assert.Contains(t, check.Reason, "reserve")
	testutil.AssertDecimalEqual(t, "5", check.MaxFillable)
}

func TestCheckLiquidityMissingPool(t *testing.T) {
	g := NewLiquidityGuard(marketdata.NewMemoryProvider(), testConfig())

	check, err := g.CheckLiquidity(context.Background(), "BTC", "ETH", testutil.Dec("1"))
	require.NoError(t, err)
	assert.False(t, check.Sufficient)
	assert.True(t, check.MaxFillable.IsZero())
	testutil.AssertDecimalEqual(t, "1", check.PriceImpact)
}

func TestCheckLiquidityTimeout(t *testing.T) {
	g := NewLiquidityGuard(slowProvider{}, testConfig())

	_, err := g.CheckLiquidity(context.Background(), "BTC", "ETH", testutil.Dec("1"))
	require.Error(t, err)
	assert.Equal(t, CodeLiquidityTimeout, CodeOf(err))
	assert.True(t, IsRetryable(err))
}

func TestImpactOf(t *testing.T) {
	tests := []struct {
		amount, reserve, want string
	}{
		{"1", "99", "0.01"},
		{"0.4", "39.6", "0.01"},
		{"11", "99", "0.1"},
		{"5", "0", "1"},
	}
	for _, tt := range tests {
		got := impactOf(testutil.Dec(tt.amount), testutil.Dec(tt.reserve))
		testutil.AssertDecimalEqual(t, tt.want, got, "amount=%s reserve=%s", tt.amount, tt.reserve)
	}
}
