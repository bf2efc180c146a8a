package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Aidin1998/swaptrade/internal/swap"
)

const problemBaseURI = "https://swaptrade.io/problems/"

// ProblemDetails is an RFC 7807 error body
type ProblemDetails struct {
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	Status    int          `json:"status"`
	Detail    string       `json:"detail,omitempty"`
	Instance  string       `json:"instance,omitempty"`
	Code      string       `json:"code,omitempty"`
	Retryable bool         `json:"retryable,omitempty"`
	TraceID   string       `json:"traceId,omitempty"`
	Fields    []FieldError `json:"fields,omitempty"`
}

// FieldError is a single invalid request field
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

type problemKind struct {
	status int
	title  string
}

var problemKinds = map[string]problemKind{
	swap.CodeInvalidRequest:        {http.StatusBadRequest, "Invalid Request"},
	swap.CodeUnknownAsset:          {http.StatusBadRequest, "Unknown Asset"},
	swap.CodeNoMarketData:          {http.StatusServiceUnavailable, "No Market Data"},
	swap.CodeInsufficientLiquidity: {http.StatusUnprocessableEntity, "Insufficient Liquidity"},
	swap.CodeSlippageExceeded:      {http.StatusConflict, "Slippage Exceeded"},
	swap.CodeInsufficientFunds:     {http.StatusUnprocessableEntity, "Insufficient Funds"},
	swap.CodeAlreadySettled:        {http.StatusConflict, "Already Settled"},
	swap.CodeNotFound:              {http.StatusNotFound, "Not Found"},
	swap.CodeNotCancellable:        {http.StatusConflict, "Not Cancellable"},
	swap.CodeQueueFull:             {http.StatusServiceUnavailable, "Queue Full"},
	swap.CodeQuoteTimeout:          {http.StatusGatewayTimeout, "Quote Timeout"},
	swap.CodeLiquidityTimeout:      {http.StatusGatewayTimeout, "Liquidity Timeout"},
}

const (
	codeUnauthorized = "UNAUTHORIZED"
	codeRateLimited  = "RATE_LIMITED"
	codeInternal     = "INTERNAL_ERROR"
)

func problemType(code string) string {
	return problemBaseURI + code
}

// newProblem builds problem details for a known code
func newProblem(c *gin.Context, code, detail string) *ProblemDetails {
	kind, ok := problemKinds[code]
	switch {
	case ok:
	case code == codeUnauthorized:
		kind = problemKind{http.StatusUnauthorized, "Unauthorized"}
	case code == codeRateLimited:
		kind = problemKind{http.StatusTooManyRequests, "Rate Limit Exceeded"}
	default:
		code = codeInternal
		kind = problemKind{http.StatusInternalServerError, "Internal Server Error"}
	}
	return &ProblemDetails{
		Type:     problemType(code),
		Title:    kind.title,
		Status:   kind.status,
		Detail:   detail,
		Instance: c.Request.URL.Path,
		Code:     code,
		TraceID:  traceID(c),
	}
}

// problemFromError converts an engine error. Unclassified errors never leak
// their message to the caller.
func problemFromError(c *gin.Context, err error) *ProblemDetails {
	var se *swap.SwapError
	if errors.As(err, &se) {
		p := newProblem(c, se.Code, se.Message)
		p.Retryable = se.Retryable
		return p
	}
	if errors.Is(err, context.DeadlineExceeded) {
		p := newProblem(c, swap.CodeQuoteTimeout, "request timed out")
		p.Retryable = true
		return p
	}
	return newProblem(c, codeInternal, "An unexpected error occurred")
}

func writeProblem(c *gin.Context, p *ProblemDetails) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(p.Status, p)
}

// respondError logs server-side failures and writes the problem body
func (s *Server) respondError(c *gin.Context, err error) {
	p := problemFromError(c, err)
	if p.Status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("code", p.Code),
			zap.Error(err))
	}
	writeProblem(c, p)
}

func traceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return c.GetHeader("X-Trace-ID")
}
