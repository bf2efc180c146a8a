package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aidin1998/swaptrade/internal/marketdata"
)

// Error codes
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeUnknownAsset          = "UNKNOWN_ASSET"
	CodeNoMarketData          = "NO_MARKET_DATA"
	CodeInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
	CodeSlippageExceeded      = "SLIPPAGE_EXCEEDED"
	CodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	CodeAlreadySettled        = "ALREADY_SETTLED"
	CodeNotFound              = "NOT_FOUND"
	CodeNotCancellable        = "NOT_CANCELLABLE"
	CodeQueueFull             = "QUEUE_FULL"
	CodeQuoteTimeout          = "QUOTE_TIMEOUT"
	CodeLiquidityTimeout      = "LIQUIDITY_TIMEOUT"
	CodeTransient             = "TRANSIENT"
)

// SwapError is a classified swap failure
type SwapError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

func (e *SwapError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SwapError) Unwrap() error { return e.Err }

// NewSwapError creates a non-retryable SwapError
func NewSwapError(code, message string) *SwapError {
	return &SwapError{Code: code, Message: message}
}

func retryableError(code, message string, err error) *SwapError {
	return &SwapError{Code: code, Message: message, Retryable: true, Err: err}
}

func wrapError(code, message string, err error) *SwapError {
	return &SwapError{Code: code, Message: message, Err: err}
}

func isErrorCode(s string) bool {
	switch s {
	case CodeInvalidRequest, CodeUnknownAsset, CodeNoMarketData, CodeInsufficientLiquidity,
		CodeSlippageExceeded, CodeInsufficientFunds, CodeAlreadySettled, CodeNotFound,
		CodeNotCancellable, CodeQueueFull, CodeQuoteTimeout, CodeLiquidityTimeout, CodeTransient:
		return true
	}
	return false
}

// CodeOf extracts the error code; unclassified errors are TRANSIENT
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var se *SwapError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeTransient
}

// IsRetryable reports whether a failed attempt may be tried again later.
// Unclassified errors are treated as transient I/O failures, except for
// caller cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *SwapError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return !errors.Is(err, context.Canceled)
}

// unknownAsset names the closest known symbol when the registry can suggest one
func unknownAsset(registry marketdata.AssetRegistry, asset string) *SwapError {
	msg := fmt.Sprintf("unknown asset %s", asset)
	if s, ok := registry.(interface{ Suggest(string) string }); ok {
		if hint := s.Suggest(asset); hint != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", hint)
		}
	}
	return NewSwapError(CodeUnknownAsset, msg)
}
