package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/swaptrade/api"
	"github.com/Aidin1998/swaptrade/internal/marketdata"
	"github.com/Aidin1998/swaptrade/internal/messaging"
	"github.com/Aidin1998/swaptrade/internal/swap"
	"github.com/Aidin1998/swaptrade/internal/swap/jobqueue"
	"github.com/Aidin1998/swaptrade/testutil"
)

type apiEnv struct {
	router *gin.Engine
	orch   *swap.Orchestrator
}

func setupRouter(t *testing.T, opts api.Options) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	market := marketdata.NewMemoryProvider()
	market.SetPrice("BTC", testutil.Dec("20000"))
	market.SetPrice("ETH", testutil.Dec("1000"))
	market.SetPrice("USDT", testutil.Dec("1"))
	market.SetReserve("BTC", "ETH", testutil.Dec("39.6"))

	orch, err := swap.NewOrchestrator(swap.DefaultConfig(), swap.Dependencies{
		DB:        testutil.NewTestDB(t),
		Registry:  marketdata.NewStaticRegistry("BTC", "ETH", "USDT"),
		Prices:    market,
		Reserves:  market,
		Queue:     jobqueue.NewMemoryQueue(100),
		Publisher: &messaging.MemoryPublisher{},
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	srv, err := api.NewServer(zap.NewNop(), orch, opts)
	require.NoError(t, err)
	return &apiEnv{router: srv.Router(), orch: orch}
}

func (e *apiEnv) fund(t *testing.T, user, asset, amount string) {
	t.Helper()
	require.NoError(t, e.orch.Ledger().Deposit(context.Background(), user, asset, testutil.Dec(amount), "deposit:"+uuid.NewString()))
}

func (e *apiEnv) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func assertProblem(t *testing.T, w *httptest.ResponseRecorder, status int, code string) map[string]interface{} {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
	resp := decode(t, w)
	assert.Equal(t, code, resp["code"])
	assert.Equal(t, float64(status), resp["status"])
	return resp
}

func TestHealthCheck(t *testing.T) {
	env := setupRouter(t, api.Options{})
	w := env.do(http.MethodGet, "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestMissingUserHeader(t *testing.T) {
	env := setupRouter(t, api.Options{})
	w := env.do(http.MethodGet, "/api/v1/swaps", "", nil)

	assertProblem(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestExecuteSyncSwap(t *testing.T) {
	env := setupRouter(t, api.Options{})
	env.fund(t, "alice", "BTC", "1")

	w := env.do(http.MethodPost, "/api/v1/swaps", "alice", map[string]interface{}{
		"fromAsset": "BTC",
		"toAsset":   "ETH",
		"amountIn":  "0.4",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, "SETTLED", resp["status"])
	testutil.AssertDecimalEqual(t, "7.92", testutil.Dec(resp["amountOut"].(string)))

	w = env.do(http.MethodGet, "/api/v1/balances", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["balances"], 2)
}

func TestExecuteAsyncSwapIsAccepted(t *testing.T) {
	env := setupRouter(t, api.Options{})
	env.fund(t, "alice", "BTC", "1")

	w := env.do(http.MethodPost, "/api/v1/swaps", "alice", map[string]interface{}{
		"fromAsset": "BTC",
		"toAsset":   "ETH",
		"amountIn":  "0.4",
		"async":     true,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, "PENDING", resp["status"])
	assert.NotEmpty(t, resp["jobId"])

	swapID := resp["swapId"].(string)
	w = env.do(http.MethodGet, "/api/v1/swaps/"+swapID, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// scoped to the owner
	w = env.do(http.MethodGet, "/api/v1/swaps/"+swapID, "bob", nil)
	assertProblem(t, w, http.StatusNotFound, swap.CodeNotFound)
}

func TestSwapErrorsAreProblems(t *testing.T) {
	env := setupRouter(t, api.Options{})
	env.fund(t, "alice", "BTC", "0.1")

	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
		code   string
	}{
		{"insufficient funds", map[string]interface{}{"fromAsset": "BTC", "toAsset": "ETH", "amountIn": "0.4"},
			http.StatusUnprocessableEntity, swap.CodeInsufficientFunds},
		{"unknown asset", map[string]interface{}{"fromAsset": "BTC", "toAsset": "DOGE", "amountIn": "0.1"},
			http.StatusBadRequest, swap.CodeUnknownAsset},
		{"zero amount", map[string]interface{}{"fromAsset": "BTC", "toAsset": "ETH", "amountIn": "0"},
			http.StatusBadRequest, swap.CodeInvalidRequest},
		{"insufficient liquidity", map[string]interface{}{"fromAsset": "BTC", "toAsset": "ETH", "amountIn": "100"},
			http.StatusUnprocessableEntity, swap.CodeInsufficientLiquidity},
		{"route fails on first leg", map[string]interface{}{"fromAsset": "BTC", "toAsset": "USDT", "amountIn": "0.4",
			"route": []string{"BTC", "ETH", "USDT"}},
			http.StatusUnprocessableEntity, swap.CodeInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/swaps", "alice", tt.body)
			assertProblem(t, w, tt.status, tt.code)
		})
	}
}

func TestRequestValidationListsFields(t *testing.T) {
	env := setupRouter(t, api.Options{})

	w := env.do(http.MethodPost, "/api/v1/swaps", "alice", map[string]interface{}{
		"toAsset":  "ETH",
		"amountIn": "1",
	})
	resp := assertProblem(t, w, http.StatusBadRequest, swap.CodeInvalidRequest)
	require.NotEmpty(t, resp["fields"])
	field := resp["fields"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "required", field["rule"])
}

func TestSwapHistoryAndCancel(t *testing.T) {
	env := setupRouter(t, api.Options{})
	env.fund(t, "alice", "BTC", "1")

	var ids []string
	for i := 0; i < 3; i++ {
		w := env.do(http.MethodPost, "/api/v1/swaps", "alice", map[string]interface{}{
			"fromAsset": "BTC", "toAsset": "ETH", "amountIn": "0.1", "async": true,
		})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		ids = append(ids, decode(t, w)["swapId"].(string))
	}

	w := env.do(http.MethodGet, "/api/v1/swaps?limit=2&status=PENDING", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode(t, w)
	assert.Len(t, page["data"], 2)
	assert.Equal(t, float64(3), page["total"])
	assert.Equal(t, true, page["hasMore"])

	w = env.do(http.MethodGet, "/api/v1/swaps?status=BOGUS", "alice", nil)
	assertProblem(t, w, http.StatusBadRequest, swap.CodeInvalidRequest)

	w = env.do(http.MethodDelete, "/api/v1/swaps/"+ids[0], "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", decode(t, w)["status"])

	w = env.do(http.MethodDelete, "/api/v1/swaps/"+ids[0], "alice", nil)
	assertProblem(t, w, http.StatusConflict, swap.CodeNotCancellable)
}

func TestBatchSwapEndpoints(t *testing.T) {
	env := setupRouter(t, api.Options{})
	env.fund(t, "alice", "BTC", "1")

	w := env.do(http.MethodPost, "/api/v1/swaps/batch", "alice", map[string]interface{}{
		"atomic": true,
		"swaps": []map[string]interface{}{
			{"fromAsset": "BTC", "toAsset": "ETH", "amountIn": "0.1"},
			{"fromAsset": "BTC", "toAsset": "ETH", "amountIn": "0.2"},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, float64(2), resp["queued"])
	assert.Equal(t, float64(100), resp["estimatedProcessingMs"])

	batchID := resp["batchId"].(string)
	w = env.do(http.MethodGet, "/api/v1/batches/"+batchID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "0/2 settled", decode(t, w)["summary"])

	w = env.do(http.MethodGet, "/api/v1/batches/"+batchID, "bob", nil)
	assertProblem(t, w, http.StatusNotFound, swap.CodeNotFound)

	w = env.do(http.MethodPost, "/api/v1/swaps/batch", "alice", map[string]interface{}{"swaps": []interface{}{}})
	assertProblem(t, w, http.StatusBadRequest, swap.CodeInvalidRequest)
}

func TestQuoteEndpoint(t *testing.T) {
	env := setupRouter(t, api.Options{})

	w := env.do(http.MethodGet, "/api/v1/quote?from=btc&to=eth&amount=0.4", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	quote := resp["quote"].(map[string]interface{})
	testutil.AssertDecimalEqual(t, "19.8", testutil.Dec(quote["rate"].(string)))
	liquidity := resp["liquidity"].(map[string]interface{})
	assert.Equal(t, true, liquidity["sufficient"])

	w = env.do(http.MethodGet, "/api/v1/quote?from=btc&to=eth&amount=abc", "", nil)
	assertProblem(t, w, http.StatusBadRequest, swap.CodeInvalidRequest)
}

func TestRateLimit(t *testing.T) {
	env := setupRouter(t, api.Options{RateLimit: "2-M"})

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodGet, "/api/v1/health", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := env.do(http.MethodGet, "/api/v1/health", "", nil)
	assertProblem(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupRouter(t, api.Options{})
	w := env.do(http.MethodGet, "/api/v1/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
