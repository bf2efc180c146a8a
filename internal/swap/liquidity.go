package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/swaptrade/internal/marketdata"
)

// LiquidityCheck is the guard's verdict for one requested amount
type LiquidityCheck struct {
	Sufficient  bool            `json:"sufficient"`
	Reserve     decimal.Decimal `json:"reserve"`
	PriceImpact decimal.Decimal `json:"priceImpact"`
	MaxFillable decimal.Decimal `json:"maxFillable"`
	Reason      string          `json:"reason,omitempty"`
}

// LiquidityGuard decides whether a pool can absorb a swap without excessive
// price impact. Impact follows a constant-product pool:
//
//	impact = amount / (reserve + amount)
type LiquidityGuard struct {
	reserves marketdata.ReserveProvider
	ceiling  decimal.Decimal
	timeout  time.Duration
}

// NewLiquidityGuard creates a guard with the configured impact ceiling
func NewLiquidityGuard(reserves marketdata.ReserveProvider, cfg Config) *LiquidityGuard {
	return &LiquidityGuard{
		reserves: reserves,
		ceiling:  cfg.PriceImpactCeiling,
		timeout:  cfg.LiquidityTimeout,
	}
}

// Impact returns the projected price impact of swapping amount along from->to
// and the pool reserve it was computed from. A pair without a published
// reserve has zero depth and full impact.
func (g *LiquidityGuard) Impact(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	reserve, err := g.reserve(ctx, from, to)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return impactOf(amount, reserve), reserve, nil
}

// CheckLiquidity evaluates amount against the current reserve. An
// insufficient pool is reported in the result, not as an error.
func (g *LiquidityGuard) CheckLiquidity(ctx context.Context, from, to string, amount decimal.Decimal) (*LiquidityCheck, error) {
	impact, reserve, err := g.Impact(ctx, from, to, amount)
	if err != nil {
		return nil, err
	}

	check := &LiquidityCheck{
		Sufficient:  true,
		Reserve:     reserve,
		PriceImpact: impact,
		MaxFillable: g.maxFillable(reserve),
	}
	switch {
	case reserve.LessThan(amount):
		check.Sufficient = false
		check.Reason = fmt.Sprintf("pool reserve %s below requested %s", reserve, amount)
	case impact.GreaterThan(g.ceiling):
		check.Sufficient = false
		check.Reason = fmt.Sprintf("price impact %s exceeds ceiling %s", impact.StringFixed(4), g.ceiling)
	}
	return check, nil
}

// maxFillable is the largest amount whose impact stays within the ceiling
func (g *LiquidityGuard) maxFillable(reserve decimal.Decimal) decimal.Decimal {
	if !reserve.IsPositive() {
		return decimal.Zero
	}
	bound := g.ceiling.Mul(reserve).Div(one.Sub(g.ceiling))
	return decimal.Min(reserve, bound)
}

func (g *LiquidityGuard) reserve(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	reserve, err := g.reserves.Reserve(ctx, from, to)
	switch {
	case err == nil:
		if reserve.IsNegative() {
			return decimal.Zero, nil
		}
		return reserve, nil
	case errors.Is(err, marketdata.ErrNoReserve):
		return decimal.Zero, nil
	case errors.Is(err, context.DeadlineExceeded):
		return decimal.Zero, retryableError(CodeLiquidityTimeout,
			fmt.Sprintf("reserve lookup for %s/%s timed out", from, to), err)
	default:
		return decimal.Zero, retryableError(CodeTransient,
			fmt.Sprintf("reserve lookup for %s/%s failed", from, to), err)
	}
}

func impactOf(amount, reserve decimal.Decimal) decimal.Decimal {
	depth := reserve.Add(amount)
	if !depth.IsPositive() {
		return one
	}
	return amount.Div(depth)
}
