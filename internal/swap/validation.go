package swap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// ValidateSwapRequest checks the request shape and returns a normalized copy
// with upper-case symbols and the tolerance filled in.
func ValidateSwapRequest(req SwapRequest, defaultTolerance decimal.Decimal) (SwapRequest, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return req, NewSwapError(CodeInvalidRequest, "userId is required")
	}
	req.FromAsset = strings.ToUpper(strings.TrimSpace(req.FromAsset))
	req.ToAsset = strings.ToUpper(strings.TrimSpace(req.ToAsset))

	if len(req.Route) > 0 {
		route := make([]string, len(req.Route))
		for i, a := range req.Route {
			route[i] = strings.ToUpper(strings.TrimSpace(a))
		}
		if len(route) < 2 {
			return req, NewSwapError(CodeInvalidRequest, "route must contain at least two assets")
		}
		if req.FromAsset == "" {
			req.FromAsset = route[0]
		}
		if req.ToAsset == "" {
			req.ToAsset = route[len(route)-1]
		}
		if route[0] != req.FromAsset || route[len(route)-1] != req.ToAsset {
			return req, NewSwapError(CodeInvalidRequest, "route must start with fromAsset and end with toAsset")
		}
		for i := 1; i < len(route); i++ {
			if route[i] == route[i-1] {
				return req, NewSwapError(CodeInvalidRequest,
					fmt.Sprintf("route hop %d swaps %s into itself", i, route[i]))
			}
		}
		req.Route = route
	}

	if req.FromAsset == "" || req.ToAsset == "" {
		return req, NewSwapError(CodeInvalidRequest, "fromAsset and toAsset are required")
	}
	if req.FromAsset == req.ToAsset {
		return req, NewSwapError(CodeInvalidRequest, "fromAsset and toAsset must differ")
	}
	if !req.AmountIn.IsPositive() {
		return req, NewSwapError(CodeInvalidRequest, "amountIn must be positive")
	}

	tol, err := validateTolerance(req.SlippageTolerance, defaultTolerance)
	if err != nil {
		return req, err
	}
	req.SlippageTolerance = &tol
	return req, nil
}

// ValidateBatchRequest checks a batch request and returns a normalized copy
func ValidateBatchRequest(req BatchSwapRequest, defaultTolerance decimal.Decimal, maxSize int) (BatchSwapRequest, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return req, NewSwapError(CodeInvalidRequest, "userId is required")
	}
	if len(req.Swaps) == 0 {
		return req, NewSwapError(CodeInvalidRequest, "batch must contain at least one swap")
	}
	if maxSize > 0 && len(req.Swaps) > maxSize {
		return req, NewSwapError(CodeInvalidRequest, fmt.Sprintf("batch exceeds %d swaps", maxSize))
	}

	items := make([]BatchSwapItem, len(req.Swaps))
	for i, item := range req.Swaps {
		normalized, err := ValidateSwapRequest(SwapRequest{
			UserID:            req.UserID,
			FromAsset:         item.FromAsset,
			ToAsset:           item.ToAsset,
			AmountIn:          item.AmountIn,
			SlippageTolerance: item.SlippageTolerance,
		}, defaultTolerance)
		if err != nil {
			var se *SwapError
			if errors.As(err, &se) {
				return req, NewSwapError(se.Code, fmt.Sprintf("swaps[%d]: %s", i, se.Message))
			}
			return req, err
		}
		items[i] = BatchSwapItem{
			FromAsset:         normalized.FromAsset,
			ToAsset:           normalized.ToAsset,
			AmountIn:          normalized.AmountIn,
			SlippageTolerance: normalized.SlippageTolerance,
		}
	}
	req.Swaps = items
	return req, nil
}

func validateTolerance(tol *decimal.Decimal, def decimal.Decimal) (decimal.Decimal, error) {
	if tol == nil {
		return def, nil
	}
	if tol.IsNegative() || tol.GreaterThanOrEqual(one) {
		return decimal.Zero, NewSwapError(CodeInvalidRequest, "slippageTolerance must be in [0, 1)")
	}
	return *tol, nil
}

// clampPage applies the default and maximum history page size
func clampPage(p Page, def, maxLimit int) Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
