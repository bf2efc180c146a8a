package swap

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/swaptrade/internal/config"
)

// Config holds the engine tunables
type Config struct {
	DefaultSlippageTolerance decimal.Decimal
	PriceImpactCeiling       decimal.Decimal
	QuoteTimeout             time.Duration
	LiquidityTimeout         time.Duration
	// AmountScale is the number of decimal places kept on settled amounts.
	AmountScale int32

	Workers     int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	HistoryDefaultLimit int
	HistoryMaxLimit     int
	MaxBatchSize        int
	// BatchSwapEstimate is the per-member processing estimate reported to callers.
	BatchSwapEstimate time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		DefaultSlippageTolerance: decimal.RequireFromString("0.005"),
		PriceImpactCeiling:       decimal.RequireFromString("0.10"),
		QuoteTimeout:             2 * time.Second,
		LiquidityTimeout:         2 * time.Second,
		AmountScale:              8,
		Workers:                  5,
		MaxAttempts:              5,
		BaseDelay:                time.Second,
		MaxDelay:                 time.Minute,
		HistoryDefaultLimit:      20,
		HistoryMaxLimit:          100,
		MaxBatchSize:             100,
		BatchSwapEstimate:        50 * time.Millisecond,
	}
}

// ConfigFromApp maps the process configuration onto engine tunables
func ConfigFromApp(c *config.Config) Config {
	cfg := DefaultConfig()
	cfg.DefaultSlippageTolerance = decimal.NewFromFloat(c.Swap.DefaultSlippageTolerance)
	cfg.PriceImpactCeiling = decimal.NewFromFloat(c.Swap.PriceImpactCeiling)
	if c.Swap.QuoteTimeout > 0 {
		cfg.QuoteTimeout = c.Swap.QuoteTimeout
	}
	if c.Swap.LiquidityTimeout > 0 {
		cfg.LiquidityTimeout = c.Swap.LiquidityTimeout
	}
	if c.Swap.AmountScale > 0 {
		cfg.AmountScale = c.Swap.AmountScale
	}
	cfg.Workers = c.Queue.Concurrency
	cfg.MaxAttempts = c.Queue.MaxAttempts
	if c.Queue.BaseDelay > 0 {
		cfg.BaseDelay = c.Queue.BaseDelay
	}
	if c.Queue.MaxDelay > 0 {
		cfg.MaxDelay = c.Queue.MaxDelay
	}
	return cfg
}
