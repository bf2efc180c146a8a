package swap

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/swaptrade/pkg/models"
)

// SwapRequest asks to convert AmountIn of FromAsset into ToAsset
type SwapRequest struct {
	UserID    string
	FromAsset string
	ToAsset   string
	AmountIn  decimal.Decimal
	// Route optionally lists every asset hop, FromAsset first and ToAsset last.
	Route []string
	// SlippageTolerance is a fraction; nil means the configured default.
	SlippageTolerance *decimal.Decimal
	Async             bool
}

// PriceQuote is an executable rate at the moment it was generated. Quotes
// are never reused across settlement attempts.
type PriceQuote struct {
	FromAsset     string          `json:"fromAsset"`
	ToAsset       string          `json:"toAsset"`
	AmountIn      decimal.Decimal `json:"amountIn"`
	ReferenceRate decimal.Decimal `json:"referenceRate"`
	Rate          decimal.Decimal `json:"rate"`
	AmountOut     decimal.Decimal `json:"amountOut"`
	PriceImpact   decimal.Decimal `json:"priceImpact"`
	Route         []string        `json:"route"`
	GeneratedAt   time.Time       `json:"generatedAt"`
}

// SwapResponse is one of *SwapResult, *AsyncSwapResult or *MultiLegResult
type SwapResponse interface {
	swapResponse()
}

// AssetBalance is a post-swap balance snapshot
type AssetBalance struct {
	Asset   string          `json:"asset"`
	Balance decimal.Decimal `json:"balance"`
}

// SwapResult is returned by a synchronous swap that settled inline
type SwapResult struct {
	SwapID         string            `json:"swapId"`
	UserID         string            `json:"userId"`
	Status         models.SwapStatus `json:"status"`
	From           AssetBalance      `json:"from"`
	To             AssetBalance      `json:"to"`
	AmountIn       decimal.Decimal   `json:"amountIn"`
	AmountOut      decimal.Decimal   `json:"amountOut"`
	QuotedRate     decimal.Decimal   `json:"quotedRate"`
	ExecutedRate   decimal.Decimal   `json:"executedRate"`
	ActualSlippage decimal.Decimal   `json:"actualSlippage"`
	PriceImpact    decimal.Decimal   `json:"priceImpact"`
	SettledAt      time.Time         `json:"settledAt"`
}

// AsyncSwapResult is the handle of a queued swap
type AsyncSwapResult struct {
	SwapID             string            `json:"swapId"`
	JobID              string            `json:"jobId"`
	Status             models.SwapStatus `json:"status"`
	QuotedRate         decimal.Decimal   `json:"quotedRate"`
	EstimatedAmountOut decimal.Decimal   `json:"estimatedAmountOut"`
	PriceImpact        decimal.Decimal   `json:"priceImpact"`
	SlippageTolerance  decimal.Decimal   `json:"slippageTolerance"`
}

// LegResult describes one settled leg of a multi-leg swap
type LegResult struct {
	Index           int             `json:"index"`
	SwapID          string          `json:"swapId"`
	FromAsset       string          `json:"fromAsset"`
	ToAsset         string          `json:"toAsset"`
	AmountIn        decimal.Decimal `json:"amountIn"`
	QuotedAmountOut decimal.Decimal `json:"quotedAmountOut"`
	AmountOut       decimal.Decimal `json:"amountOut"`
	ExecutedRate    decimal.Decimal `json:"executedRate"`
}

// Holding is what the user holds as a result of a (possibly partial) multi-leg swap
type Holding struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// Multi-leg outcome statuses
const (
	MultiLegSettled = "SETTLED"
	MultiLegPartial = "PARTIAL"
)

// MultiLegResult reports a route executed leg by leg. Settled legs are never
// unwound, so a failure part-way leaves the user holding an intermediate asset.
type MultiLegResult struct {
	SagaID    string      `json:"sagaId"`
	UserID    string      `json:"userId"`
	Route     []string    `json:"route"`
	Status    string      `json:"status"`
	Legs      []LegResult `json:"legs"`
	FailedLeg *int        `json:"failedLeg,omitempty"`
	ErrorCode string      `json:"errorCode,omitempty"`
	Error     string      `json:"error,omitempty"`
	Holding   Holding     `json:"holding"`
}

func (*SwapResult) swapResponse()      {}
func (*AsyncSwapResult) swapResponse() {}
func (*MultiLegResult) swapResponse()  {}

// BatchSwapItem is one member of a batch request
type BatchSwapItem struct {
	FromAsset         string
	ToAsset           string
	AmountIn          decimal.Decimal
	SlippageTolerance *decimal.Decimal
}

// BatchSwapRequest submits several swaps for deferred execution
type BatchSwapRequest struct {
	UserID string
	Swaps  []BatchSwapItem
	// Atomic batches settle every member or none.
	Atomic bool
}

// BatchSwapResult is the handle of a queued batch
type BatchSwapResult struct {
	BatchID               string   `json:"batchId"`
	SwapIDs               []string `json:"swapIds"`
	JobIDs                []string `json:"jobIds"`
	Queued                int      `json:"queued"`
	Rejected              int      `json:"rejected,omitempty"`
	Atomic                bool     `json:"atomic"`
	EstimatedProcessingMs int64    `json:"estimatedProcessingMs"`
}

// BatchView is the aggregate state of a batch with its members
type BatchView struct {
	Batch   models.BatchJob      `json:"batch"`
	Summary string               `json:"summary"`
	Swaps   []models.SwapHistory `json:"swaps"`
}

// HistoryFilter narrows a history query; empty fields match everything
type HistoryFilter struct {
	Status    models.SwapStatus
	FromAsset string
	ToAsset   string
	BatchID   string
}

// Page selects a window of results
type Page struct {
	Limit  int
	Offset int
}

// HistoryPage is one page of a user's swaps, newest first
type HistoryPage struct {
	Data    []models.SwapHistory `json:"data"`
	Total   int64                `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
	HasMore bool                 `json:"hasMore"`
}

// SettledResult is the outcome of a successful settlement attempt
type SettledResult struct {
	SwapID         string          `json:"swapId"`
	AmountIn       decimal.Decimal `json:"amountIn"`
	AmountOut      decimal.Decimal `json:"amountOut"`
	ExecutedRate   decimal.Decimal `json:"executedRate"`
	ActualSlippage decimal.Decimal `json:"actualSlippage"`
	ExecutedAt     time.Time       `json:"executedAt"`
	// Held is set when balances moved but the row awaits a batch barrier.
	Held bool `json:"held"`
}
