package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/swaptrade/internal/swap"
	"github.com/Aidin1998/swaptrade/pkg/models"
)

const (
	userHeader = "X-User-ID"
	userKey    = "user_id"
)

// requireUser takes the caller identity from the X-User-ID header set by the gateway
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userHeader))
		if userID == "" {
			writeProblem(c, newProblem(c, codeUnauthorized, "missing "+userHeader+" header"))
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userKey)
}

type swapRequestDTO struct {
	FromAsset         string           `json:"fromAsset" validate:"required,alphanum,max=16"`
	ToAsset           string           `json:"toAsset" validate:"required,alphanum,max=16"`
	AmountIn          decimal.Decimal  `json:"amountIn"`
	Route             []string         `json:"route" validate:"omitempty,min=2,max=8,dive,required,alphanum,max=16"`
	SlippageTolerance *decimal.Decimal `json:"slippageTolerance"`
	Async             bool             `json:"async"`
}

type batchItemDTO struct {
	FromAsset         string           `json:"fromAsset" validate:"required,alphanum,max=16"`
	ToAsset           string           `json:"toAsset" validate:"required,alphanum,max=16"`
	AmountIn          decimal.Decimal  `json:"amountIn"`
	SlippageTolerance *decimal.Decimal `json:"slippageTolerance"`
}

type batchRequestDTO struct {
	Swaps  []batchItemDTO `json:"swaps" validate:"required,min=1,dive"`
	Atomic bool           `json:"atomic"`
}

type historyQueryDTO struct {
	Status    string `form:"status" validate:"omitempty,oneof=PENDING PROCESSING SCHEDULED SETTLED FAILED CANCELLED"`
	FromAsset string `form:"fromAsset" validate:"omitempty,alphanum,max=16"`
	ToAsset   string `form:"toAsset" validate:"omitempty,alphanum,max=16"`
	BatchID   string `form:"batchId" validate:"omitempty,max=64"`
	Limit     int    `form:"limit" validate:"gte=0"`
	Offset    int    `form:"offset" validate:"gte=0"`
}

type quoteQueryDTO struct {
	From   string `form:"from" validate:"required,alphanum,max=16"`
	To     string `form:"to" validate:"required,alphanum,max=16"`
	Amount string `form:"amount" validate:"required,numeric"`
}

type quoteResponse struct {
	Quote     *swap.PriceQuote     `json:"quote"`
	Liquidity *swap.LiquidityCheck `json:"liquidity"`
}

// bind decodes the body or query into dst and runs struct validation
func (s *Server) bind(c *gin.Context, dst interface{}, query bool) bool {
	var err error
	if query {
		err = c.ShouldBindQuery(dst)
	} else {
		err = c.ShouldBindJSON(dst)
	}
	if err != nil {
		writeProblem(c, newProblem(c, swap.CodeInvalidRequest, "malformed request: "+err.Error()))
		return false
	}
	if err := s.validator.Struct(dst); err != nil {
		p := newProblem(c, swap.CodeInvalidRequest, "request validation failed")
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				p.Fields = append(p.Fields, FieldError{Field: fe.Namespace(), Rule: fe.Tag()})
			}
		}
		writeProblem(c, p)
		return false
	}
	return true
}

func (s *Server) executeSwap(c *gin.Context) {
	var dto swapRequestDTO
	if !s.bind(c, &dto, false) {
		return
	}

	resp, err := s.swaps.ExecuteSwap(c.Request.Context(), swap.SwapRequest{
		UserID:            currentUser(c),
		FromAsset:         dto.FromAsset,
		ToAsset:           dto.ToAsset,
		AmountIn:          dto.AmountIn,
		Route:             dto.Route,
		SlippageTolerance: dto.SlippageTolerance,
		Async:             dto.Async,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	status := http.StatusOK
	if _, queued := resp.(*swap.AsyncSwapResult); queued {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

func (s *Server) executeBatchSwap(c *gin.Context) {
	var dto batchRequestDTO
	if !s.bind(c, &dto, false) {
		return
	}

	req := swap.BatchSwapRequest{UserID: currentUser(c), Atomic: dto.Atomic}
	for _, item := range dto.Swaps {
		req.Swaps = append(req.Swaps, swap.BatchSwapItem{
			FromAsset:         item.FromAsset,
			ToAsset:           item.ToAsset,
			AmountIn:          item.AmountIn,
			SlippageTolerance: item.SlippageTolerance,
		})
	}

	result, err := s.swaps.ExecuteBatchSwap(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (s *Server) getSwapHistory(c *gin.Context) {
	var q historyQueryDTO
	if !s.bind(c, &q, true) {
		return
	}

	page, err := s.swaps.GetSwapHistory(c.Request.Context(), currentUser(c), swap.HistoryFilter{
		Status:    models.SwapStatus(q.Status),
		FromAsset: strings.ToUpper(q.FromAsset),
		ToAsset:   strings.ToUpper(q.ToAsset),
		BatchID:   q.BatchID,
	}, swap.Page{Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getSwap(c *gin.Context) {
	row, err := s.swaps.GetSwapByID(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) cancelSwap(c *gin.Context) {
	row, err := s.swaps.CancelSwap(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) getBatch(c *gin.Context) {
	view, err := s.swaps.GetBatch(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) getBalances(c *gin.Context) {
	balances, err := s.swaps.Balances(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": currentUser(c), "balances": balances})
}

func (s *Server) getQuote(c *gin.Context) {
	var q quoteQueryDTO
	if !s.bind(c, &q, true) {
		return
	}
	amount, err := decimal.NewFromString(q.Amount)
	if err != nil {
		writeProblem(c, newProblem(c, swap.CodeInvalidRequest, "amount is not a decimal"))
		return
	}

	quote, check, err := s.swaps.Quote(c.Request.Context(), strings.ToUpper(q.From), strings.ToUpper(q.To), amount)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quoteResponse{Quote: quote, Liquidity: check})
}
