package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/swaptrade/internal/marketdata"
)

// QuoteEngine produces impact-adjusted executable rates from reference prices
type QuoteEngine struct {
	registry marketdata.AssetRegistry
	prices   marketdata.PriceProvider
	guard    *LiquidityGuard
	timeout  time.Duration
	scale    int32
	logger   *zap.Logger
}

// NewQuoteEngine creates a quote engine
func NewQuoteEngine(registry marketdata.AssetRegistry, prices marketdata.PriceProvider, guard *LiquidityGuard, cfg Config, logger *zap.Logger) *QuoteEngine {
	return &QuoteEngine{
		registry: registry,
		prices:   prices,
		guard:    guard,
		timeout:  cfg.QuoteTimeout,
		scale:    cfg.AmountScale,
		logger:   logger.Named("quote-engine"),
	}
}

// Quote prices amountIn of from in units of to at this instant
func (q *QuoteEngine) Quote(ctx context.Context, from, to string, amountIn decimal.Decimal) (*PriceQuote, error) {
	if !q.registry.IsKnownAsset(from) {
		return nil, unknownAsset(q.registry, from)
	}
	if !q.registry.IsKnownAsset(to) {
		return nil, unknownAsset(q.registry, to)
	}
	if !amountIn.IsPositive() {
		return nil, NewSwapError(CodeInvalidRequest, "amount must be positive")
	}

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	fromPrice, err := q.price(ctx, from)
	if err != nil {
		return nil, err
	}
	toPrice, err := q.price(ctx, to)
	if err != nil {
		return nil, err
	}

	impact, _, err := q.guard.Impact(ctx, from, to, amountIn)
	if err != nil {
		return nil, err
	}

	reference := fromPrice.Div(toPrice)
	rate := reference.Mul(one.Sub(impact))

	quote := &PriceQuote{
		FromAsset:     from,
		ToAsset:       to,
		AmountIn:      amountIn,
		ReferenceRate: reference,
		Rate:          rate,
		AmountOut:     amountIn.Mul(rate).Round(q.scale),
		PriceImpact:   impact,
		Route:         []string{from, to},
		GeneratedAt:   time.Now(),
	}

	q.logger.Debug("Quote generated",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("amount_in", amountIn.String()),
		zap.String("rate", rate.String()),
		zap.String("impact", impact.String()))

	return quote, nil
}

func (q *QuoteEngine) price(ctx context.Context, asset string) (decimal.Decimal, error) {
	p, err := q.prices.CurrentPrice(ctx, asset)
	switch {
	case err == nil:
		if !p.IsPositive() {
			return decimal.Zero, retryableError(CodeNoMarketData,
				fmt.Sprintf("non-positive price for %s", asset), nil)
		}
		return p, nil
	case errors.Is(err, marketdata.ErrNoPrice):
		return decimal.Zero, retryableError(CodeNoMarketData,
			fmt.Sprintf("no market data for %s", asset), err)
	case errors.Is(err, context.DeadlineExceeded):
		return decimal.Zero, retryableError(CodeQuoteTimeout,
			fmt.Sprintf("price lookup for %s timed out", asset), err)
	default:
		return decimal.Zero, retryableError(CodeTransient,
			fmt.Sprintf("price lookup for %s failed", asset), err)
	}
}
