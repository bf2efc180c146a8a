// Package api exposes the swap engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Aidin1998/swaptrade/internal/swap"
	"github.com/Aidin1998/swaptrade/pkg/models"
)

// SwapService is the part of the swap engine served over HTTP
type SwapService interface {
	ExecuteSwap(ctx context.Context, req swap.SwapRequest) (swap.SwapResponse, error)
	ExecuteBatchSwap(ctx context.Context, req swap.BatchSwapRequest) (*swap.BatchSwapResult, error)
	GetSwapHistory(ctx context.Context, userID string, filter swap.HistoryFilter, page swap.Page) (*swap.HistoryPage, error)
	GetSwapByID(ctx context.Context, userID, swapID string) (*models.SwapHistory, error)
	CancelSwap(ctx context.Context, userID, swapID string) (*models.SwapHistory, error)
	GetBatch(ctx context.Context, userID, batchID string) (*swap.BatchView, error)
	Quote(ctx context.Context, from, to string, amount decimal.Decimal) (*swap.PriceQuote, *swap.LiquidityCheck, error)
	Balances(ctx context.Context, userID string) ([]models.Balance, error)
}

// Options tune the HTTP surface
type Options struct {
	ServiceName    string
	AllowedOrigins []string
	// RateLimit uses the "<limit>-<period>" format, e.g. "600-M"; empty disables limiting
	RateLimit      string
}

// Server is the HTTP front of the swap engine
type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	swaps     SwapService
	validator *validator.Validate
}

// NewServer creates the router with middleware and routes registered
func NewServer(logger *zap.Logger, swaps SwapService, opts Options) (*Server, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "swaptrade-api"
	}

	server := &Server{
		logger:    logger.Named("api"),
		swaps:     swaps,
		validator: validator.New(),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	if opts.RateLimit != "" {
		rate, err := limiter.NewRateFromFormatted(opts.RateLimit)
		if err != nil {
			return nil, err
		}
		router.Use(ginlimiter.NewMiddleware(
			limiter.New(memory.NewStore(), rate),
			ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
				writeProblem(c, newProblem(c, codeRateLimited, "too many requests"))
			}),
		))
	}

	server.router = router
	server.registerRoutes()
	return server, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", userHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// HTTPServer wraps the router in a server the caller can shut down
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

func (s *Server) registerRoutes() {
	public := s.router.Group("/api/v1")
	{
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
		public.GET("/health", s.healthCheck)
		public.GET("/quote", s.getQuote)
	}

	user := public.Group("")
	user.Use(requireUser())
	{
		swaps := user.Group("/swaps")
		{
			swaps.POST("", s.executeSwap)
			swaps.POST("/batch", s.executeBatchSwap)
			swaps.GET("", s.getSwapHistory)
			swaps.GET("/:id", s.getSwap)
			swaps.DELETE("/:id", s.cancelSwap)
		}
		user.GET("/batches/:id", s.getBatch)
		user.GET("/balances", s.getBalances)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
