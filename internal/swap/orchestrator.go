package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/swaptrade/internal/ledger"
	"github.com/Aidin1998/swaptrade/internal/marketdata"
	"github.com/Aidin1998/swaptrade/internal/messaging"
	"github.com/Aidin1998/swaptrade/internal/swap/jobqueue"
	"github.com/Aidin1998/swaptrade/pkg/metrics"
	"github.com/Aidin1998/swaptrade/pkg/models"
)

// Dependencies are the collaborators an Orchestrator is built from
type Dependencies struct {
	DB        *gorm.DB
	Registry  marketdata.AssetRegistry
	Prices    marketdata.PriceProvider
	Reserves  marketdata.ReserveProvider
	Queue     jobqueue.Queue
	Publisher messaging.Publisher
	Logger    *zap.Logger
}

// Orchestrator is the entry point of the swap engine
type Orchestrator struct {
	cfg        Config
	ledger     *ledger.Ledger
	quotes     *QuoteEngine
	guard      *LiquidityGuard
	planner    *RoutePlanner
	settlement *SettlementEngine
	history    HistoryStore
	queue      jobqueue.Queue
	workers    *WorkerPool
	events     eventSink
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewOrchestrator wires the engine components together
func NewOrchestrator(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.DB == nil || deps.Registry == nil || deps.Prices == nil || deps.Reserves == nil || deps.Queue == nil {
		return nil, fmt.Errorf("swap orchestrator: missing dependency")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}

	l := ledger.New(deps.DB, logger)
	history := NewGormHistoryStore(deps.DB)
	guard := NewLiquidityGuard(deps.Reserves, cfg)
	quotes := NewQuoteEngine(deps.Registry, deps.Prices, guard, cfg, logger)
	settlement := NewSettlementEngine(deps.DB, l, history, quotes, publisher, cfg, logger)

	named := logger.Named("swap-orchestrator")
	o := &Orchestrator{
		cfg:        cfg,
		ledger:     l,
		quotes:     quotes,
		guard:      guard,
		planner:    NewRoutePlanner(deps.Registry),
		settlement: settlement,
		history:    history,
		queue:      deps.Queue,
		events:     eventSink{publisher: publisher, logger: named},
		logger:     named,
		tracer:     otel.Tracer(tracerName),
	}
	o.workers = NewWorkerPool(deps.Queue, history, l, settlement, publisher, cfg, logger)
	return o, nil
}

// Start re-hydrates unfinished work and starts the worker pool
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.workers.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover pending swaps: %w", err)
	}
	o.workers.Start(ctx)
	o.logger.Info("Swap orchestrator started", zap.Int("workers", o.cfg.Workers))
	return nil
}

// Stop stops the workers and waits for in-flight jobs
func (o *Orchestrator) Stop() {
	o.workers.Stop()
	o.logger.Info("Swap orchestrator stopped")
}

// Ledger exposes the balance store
func (o *Orchestrator) Ledger() *ledger.Ledger { return o.ledger }

// Settlement exposes the settlement engine
func (o *Orchestrator) Settlement() *SettlementEngine { return o.settlement }

// Workers exposes the worker pool
func (o *Orchestrator) Workers() *WorkerPool { return o.workers }

// ExecuteSwap validates and runs a swap. Routes longer than one hop run as a
// leg-by-leg saga; async requests are queued; everything else settles inline.
func (o *Orchestrator) ExecuteSwap(ctx context.Context, req SwapRequest) (resp SwapResponse, err error) {
	ctx, span := o.tracer.Start(ctx, "swap.ExecuteSwap")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, CodeOf(err))
		}
		span.End()
	}()

	req, err = ValidateSwapRequest(req, o.cfg.DefaultSlippageTolerance)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("swap.from", req.FromAsset),
		attribute.String("swap.to", req.ToAsset),
		attribute.Bool("swap.async", req.Async),
		attribute.Int("swap.hops", max(len(req.Route)-1, 1)),
	)

	switch {
	case len(req.Route) > 2:
		result, err := o.executeMultiLeg(ctx, req)
		if err != nil {
			return nil, err
		}
		return result, nil
	case req.Async:
		handle, err := o.executeAsync(ctx, req)
		if err != nil {
			return nil, err
		}
		return handle, nil
	default:
		result, err := o.executeSync(ctx, req)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

// Swap is the legacy synchronous single-pair entry point
func (o *Orchestrator) Swap(ctx context.Context, userID, from, to string, amount decimal.Decimal) (*SwapResult, error) {
	resp, err := o.ExecuteSwap(ctx, SwapRequest{UserID: userID, FromAsset: from, ToAsset: to, AmountIn: amount})
	if err != nil {
		return nil, err
	}
	result, ok := resp.(*SwapResult)
	if !ok {
		return nil, fmt.Errorf("unexpected swap response %T", resp)
	}
	return result, nil
}

// prepare quotes amount and checks the pool can absorb it
func (o *Orchestrator) prepare(ctx context.Context, from, to string, amount decimal.Decimal) (*PriceQuote, error) {
	quote, err := o.quotes.Quote(ctx, from, to, amount)
	if err != nil {
		return nil, err
	}
	check, err := o.guard.CheckLiquidity(ctx, from, to, amount)
	if err != nil {
		return nil, err
	}
	if !check.Sufficient {
		return nil, liquidityError(check, from)
	}
	return quote, nil
}

func liquidityError(check *LiquidityCheck, from string) *SwapError {
	return NewSwapError(CodeInsufficientLiquidity,
		fmt.Sprintf("%s (max fillable %s %s)", check.Reason, check.MaxFillable.StringFixed(8), from))
}

func newHistoryRow(userID string, quote *PriceQuote, tolerance decimal.Decimal, swapType models.SwapType, route []string) *models.SwapHistory {
	if len(route) == 0 {
		route = quote.Route
	}
	return &models.SwapHistory{
		ID:                uuid.New().String(),
		UserID:            userID,
		FromAsset:         quote.FromAsset,
		ToAsset:           quote.ToAsset,
		AmountIn:          quote.AmountIn,
		QuotedRate:        quote.Rate,
		PriceImpact:       quote.PriceImpact,
		SlippageTolerance: tolerance,
		Status:            models.SwapStatusPending,
		SwapType:          swapType,
		Route:             route,
	}
}

// settleInline claims a freshly created row and settles it in the caller's
// request. Inline attempts are never retried: any error the caller sees,
// cancellation included, leaves the row FAILED so no later worker applies it.
func (o *Orchestrator) settleInline(ctx context.Context, row *models.SwapHistory) (*SettledResult, error) {
	if _, err := o.history.Transition(ctx, row.ID,
		[]models.SwapStatus{models.SwapStatusPending}, models.SwapStatusProcessing, "inline settlement", nil); err != nil {
		o.settlement.Fail(context.WithoutCancel(ctx), row.ID, CodeOf(err), err.Error(), nil)
		return nil, err
	}

	settled, err := o.settlement.Settle(ctx, row.ID)
	if err != nil {
		if CodeOf(err) != CodeAlreadySettled {
			o.settlement.Fail(context.WithoutCancel(ctx), row.ID, CodeOf(err), err.Error(), nil)
		}
		return nil, err
	}
	return settled, nil
}

func (o *Orchestrator) executeSync(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	quote, err := o.prepare(ctx, req.FromAsset, req.ToAsset, req.AmountIn)
	if err != nil {
		return nil, err
	}

	row := newHistoryRow(req.UserID, quote, *req.SlippageTolerance, models.SwapTypeSingle, nil)
	if err := o.history.Create(ctx, row); err != nil {
		return nil, err
	}

	settled, err := o.settleInline(ctx, row)
	if err != nil {
		return nil, err
	}

	// the swap is committed; report it even if the caller has gone away
	readCtx := context.WithoutCancel(ctx)
	fromBal, err := o.ledger.GetBalance(readCtx, req.UserID, req.FromAsset)
	if err != nil {
		return nil, err
	}
	toBal, err := o.ledger.GetBalance(readCtx, req.UserID, req.ToAsset)
	if err != nil {
		return nil, err
	}

	return &SwapResult{
		SwapID:         row.ID,
		UserID:         req.UserID,
		Status:         models.SwapStatusSettled,
		From:           AssetBalance{Asset: req.FromAsset, Balance: fromBal},
		To:             AssetBalance{Asset: req.ToAsset, Balance: toBal},
		AmountIn:       req.AmountIn,
		AmountOut:      settled.AmountOut,
		QuotedRate:     quote.Rate,
		ExecutedRate:   settled.ExecutedRate,
		ActualSlippage: settled.ActualSlippage,
		PriceImpact:    quote.PriceImpact,
		SettledAt:      settled.ExecutedAt,
	}, nil
}

func (o *Orchestrator) executeAsync(ctx context.Context, req SwapRequest) (*AsyncSwapResult, error) {
	quote, err := o.prepare(ctx, req.FromAsset, req.ToAsset, req.AmountIn)
	if err != nil {
		return nil, err
	}

	row := newHistoryRow(req.UserID, quote, *req.SlippageTolerance, models.SwapTypeSingle, nil)
	job := singleJob(row, 0, time.Now())
	row.JobID = job.ID
	if err := o.history.Create(ctx, row); err != nil {
		return nil, err
	}

	if err := o.queue.Enqueue(ctx, job); err != nil {
		code := CodeTransient
		if errors.Is(err, jobqueue.ErrQueueFull) {
			code = CodeQueueFull
		}
		o.settlement.Fail(context.WithoutCancel(ctx), row.ID, code, "enqueue failed: "+err.Error(), nil)
		return nil, retryableError(code, "swap could not be queued", err)
	}
	metrics.QueueDepth.Set(float64(o.queue.Len()))
	metrics.SwapsTotal.WithLabelValues(string(row.SwapType), string(models.SwapStatusPending)).Inc()
	o.events.swap(ctx, messaging.MsgSwapQueued, row, "", "")

	o.logger.Info("Swap queued",
		zap.String("swap_id", row.ID),
		zap.String("job_id", job.ID),
		zap.String("user_id", row.UserID))

	return &AsyncSwapResult{
		SwapID:             row.ID,
		JobID:              job.ID,
		Status:             models.SwapStatusPending,
		QuotedRate:         quote.Rate,
		EstimatedAmountOut: quote.AmountOut,
		PriceImpact:        quote.PriceImpact,
		SlippageTolerance:  row.SlippageTolerance,
	}, nil
}

// executeMultiLeg runs the route leg by leg. Each leg is re-quoted with the
// amount the previous leg actually produced. Settled legs are kept when a
// later leg fails and the result says what the user now holds.
func (o *Orchestrator) executeMultiLeg(ctx context.Context, req SwapRequest) (*MultiLegResult, error) {
	legs, err := o.planner.Plan(req.Route)
	if err != nil {
		return nil, err
	}

	sagaID := uuid.New().String()
	result := &MultiLegResult{
		SagaID:  sagaID,
		UserID:  req.UserID,
		Route:   req.Route,
		Legs:    make([]LegResult, 0, len(legs)),
		Holding: Holding{Asset: req.FromAsset, Amount: req.AmountIn},
	}

	amount := req.AmountIn
	for _, leg := range legs {
		lr, err := o.executeLeg(ctx, req, sagaID, leg, amount)
		if err != nil {
			idx := leg.Index
			result.FailedLeg = &idx
			result.ErrorCode = CodeOf(err)
			result.Error = err.Error()
			if len(result.Legs) == 0 {
				// nothing moved; a plain failure like any sync swap
				return nil, err
			}
			result.Status = MultiLegPartial
			o.logger.Warn("Multi-leg swap stopped",
				zap.String("saga_id", sagaID),
				zap.Int("failed_leg", idx),
				zap.Int("settled_legs", len(result.Legs)),
				zap.String("holding_asset", result.Holding.Asset),
				zap.String("holding_amount", result.Holding.Amount.String()),
				zap.Error(err))
			return result, nil
		}
		result.Legs = append(result.Legs, *lr)
		amount = lr.AmountOut
		result.Holding = Holding{Asset: leg.ToAsset, Amount: amount}
	}

	result.Status = MultiLegSettled
	o.logger.Info("Multi-leg swap settled",
		zap.String("saga_id", sagaID),
		zap.Strings("route", req.Route),
		zap.String("amount_out", amount.String()))
	return result, nil
}

func (o *Orchestrator) executeLeg(ctx context.Context, req SwapRequest, sagaID string, leg Leg, amount decimal.Decimal) (*LegResult, error) {
	quote, err := o.prepare(ctx, leg.FromAsset, leg.ToAsset, amount)
	if err != nil {
		return nil, err
	}

	row := newHistoryRow(req.UserID, quote, *req.SlippageTolerance, models.SwapTypeMultiLeg, req.Route)
	row.SagaID = &sagaID
	row.LegIndex = leg.Index
	if err := o.history.Create(ctx, row); err != nil {
		return nil, err
	}

	settled, err := o.settleInline(ctx, row)
	if err != nil {
		return nil, err
	}

	return &LegResult{
		Index:           leg.Index,
		SwapID:          row.ID,
		FromAsset:       leg.FromAsset,
		ToAsset:         leg.ToAsset,
		AmountIn:        amount,
		QuotedAmountOut: quote.AmountOut,
		AmountOut:       settled.AmountOut,
		ExecutedRate:    settled.ExecutedRate,
	}, nil
}

// ExecuteBatchSwap quotes every member up front and queues the batch as one
// job. A member that cannot be quoted rejects the whole batch before anything
// is persisted. A member the pool cannot absorb is persisted FAILED with the
// guard's verdict; its batch job then settles the rest (non-atomic) or rolls
// the batch back (atomic).
func (o *Orchestrator) ExecuteBatchSwap(ctx context.Context, req BatchSwapRequest) (result *BatchSwapResult, err error) {
	ctx, span := o.tracer.Start(ctx, "swap.ExecuteBatchSwap", trace.WithAttributes(
		attribute.Int("batch.size", len(req.Swaps)),
		attribute.Bool("batch.atomic", req.Atomic),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, CodeOf(err))
		}
		span.End()
	}()

	req, err = ValidateBatchRequest(req, o.cfg.DefaultSlippageTolerance, o.cfg.MaxBatchSize)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	rows := make([]*models.SwapHistory, 0, len(req.Swaps))
	rejected := make(map[string]*SwapError)
	for i, item := range req.Swaps {
		quote, err := o.quotes.Quote(ctx, item.FromAsset, item.ToAsset, item.AmountIn)
		if err != nil {
			return nil, memberError(i, err)
		}
		check, err := o.guard.CheckLiquidity(ctx, item.FromAsset, item.ToAsset, item.AmountIn)
		if err != nil {
			return nil, memberError(i, err)
		}
		row := newHistoryRow(req.UserID, quote, *item.SlippageTolerance, models.SwapTypeBatch, nil)
		row.BatchID = &batchID
		row.LegIndex = i
		rows = append(rows, row)
		if !check.Sufficient {
			rejected[row.ID] = liquidityError(check, item.FromAsset)
		}
	}

	swapIDs := make([]string, len(rows))
	for i, row := range rows {
		swapIDs[i] = row.ID
	}
	batch := &models.BatchJob{
		ID:      batchID,
		UserID:  req.UserID,
		Atomic:  req.Atomic,
		SwapIDs: swapIDs,
		Total:   len(rows),
		Status:  models.BatchStatusPending,
	}
	job := batchJob(batch, 0, time.Now())
	batch.JobID = job.ID
	for _, row := range rows {
		row.JobID = job.ID
	}

	err = o.ledger.Transact(ctx, func(tx *gorm.DB) error {
		store := o.history.WithTx(tx)
		if err := store.Create(ctx, rows...); err != nil {
			return err
		}
		return store.CreateBatch(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if se, ok := rejected[row.ID]; ok {
			o.settlement.Fail(context.WithoutCancel(ctx), row.ID, se.Code, se.Message, nil)
		}
	}

	if err := o.queue.Enqueue(ctx, job); err != nil {
		code := CodeTransient
		if errors.Is(err, jobqueue.ErrQueueFull) {
			code = CodeQueueFull
		}
		bg := context.WithoutCancel(ctx)
		for _, id := range swapIDs {
			o.settlement.Fail(bg, id, code, "enqueue failed: "+err.Error(), nil)
		}
		now := time.Now()
		_ = o.history.UpdateBatch(bg, batchID, map[string]interface{}{
			"status":        models.BatchStatusFailed,
			"failed_count":  len(swapIDs),
			"error_message": err.Error(),
			"finalized_at":  &now,
		})
		return nil, retryableError(code, "batch could not be queued", err)
	}
	queued := len(rows) - len(rejected)
	metrics.QueueDepth.Set(float64(o.queue.Len()))
	metrics.SwapsTotal.WithLabelValues(string(models.SwapTypeBatch), string(models.SwapStatusPending)).Add(float64(queued))

	o.logger.Info("Batch queued",
		zap.String("batch_id", batchID),
		zap.String("user_id", req.UserID),
		zap.Int("swaps", len(rows)),
		zap.Int("rejected", len(rejected)),
		zap.Bool("atomic", req.Atomic))

	return &BatchSwapResult{
		BatchID:               batchID,
		SwapIDs:               swapIDs,
		JobIDs:                []string{job.ID},
		Queued:                queued,
		Rejected:              len(rejected),
		Atomic:                req.Atomic,
		EstimatedProcessingMs: int64(queued) * o.cfg.BatchSwapEstimate.Milliseconds(),
	}, nil
}

// memberError prefixes a batch member's error with its index
func memberError(i int, err error) error {
	var se *SwapError
	if !errors.As(err, &se) {
		return err
	}
	return &SwapError{
		Code:      se.Code,
		Message:   fmt.Sprintf("swaps[%d]: %s", i, se.Message),
		Retryable: se.Retryable,
		Err:       se.Err,
	}
}

// GetSwapHistory pages through a user's swaps, newest first
func (o *Orchestrator) GetSwapHistory(ctx context.Context, userID string, filter HistoryFilter, page Page) (*HistoryPage, error) {
	if userID == "" {
		return nil, NewSwapError(CodeInvalidRequest, "userId is required")
	}
	page = clampPage(page, o.cfg.HistoryDefaultLimit, o.cfg.HistoryMaxLimit)

	rows, total, err := o.history.ListByUser(ctx, userID, filter, page)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.SwapHistory{}
	}
	return &HistoryPage{
		Data:    rows,
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: int64(page.Offset+page.Limit) < total,
	}, nil
}

// GetSwapByID returns one of the user's swaps
func (o *Orchestrator) GetSwapByID(ctx context.Context, userID, swapID string) (*models.SwapHistory, error) {
	row, err := o.history.GetByID(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, NewSwapError(CodeNotFound, fmt.Sprintf("swap %s not found", swapID))
	}
	return row, nil
}

// CancelSwap cancels a swap that no worker has picked up yet
func (o *Orchestrator) CancelSwap(ctx context.Context, userID, swapID string) (*models.SwapHistory, error) {
	row, err := o.GetSwapByID(ctx, userID, swapID)
	if err != nil {
		return nil, err
	}
	if row.Status != models.SwapStatusPending {
		return nil, NewSwapError(CodeNotCancellable,
			fmt.Sprintf("swap %s is %s and can no longer be cancelled", swapID, row.Status))
	}
	if row.BatchID != nil {
		batch, err := o.history.GetBatch(ctx, *row.BatchID)
		if err != nil {
			return nil, err
		}
		if batch.Atomic {
			return nil, NewSwapError(CodeNotCancellable,
				fmt.Sprintf("swap %s belongs to atomic batch %s", swapID, batch.ID))
		}
	}

	moved, err := o.history.Transition(ctx, swapID,
		[]models.SwapStatus{models.SwapStatusPending}, models.SwapStatusCancelled, "cancelled by user", nil)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, NewSwapError(CodeNotCancellable, fmt.Sprintf("swap %s was picked up before it could be cancelled", swapID))
	}

	row, err = o.history.GetByID(ctx, swapID)
	if err != nil {
		return nil, err
	}
	metrics.SwapsTotal.WithLabelValues(string(row.SwapType), string(models.SwapStatusCancelled)).Inc()
	o.events.swap(ctx, messaging.MsgSwapCancelled, row, "", "")
	if row.BatchID != nil {
		o.workers.refreshBatch(ctx, *row.BatchID)
	}
	o.logger.Info("Swap cancelled", zap.String("swap_id", swapID), zap.String("user_id", userID))
	return row, nil
}

// GetBatch returns a batch with its members
func (o *Orchestrator) GetBatch(ctx context.Context, userID, batchID string) (*BatchView, error) {
	batch, err := o.history.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.UserID != userID {
		return nil, NewSwapError(CodeNotFound, fmt.Sprintf("batch %s not found", batchID))
	}
	members, err := o.history.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &BatchView{
		Batch:   *batch,
		Summary: fmt.Sprintf("%d/%d settled", batch.SettledCount, batch.Total),
		Swaps:   members,
	}, nil
}

// EnqueueSingle queues a deferred settlement attempt for an existing swap
func (o *Orchestrator) EnqueueSingle(ctx context.Context, swapID string) (string, error) {
	row, err := o.history.GetByID(ctx, swapID)
	if err != nil {
		return "", err
	}
	if !row.Status.Settleable() {
		return "", alreadySettled(row)
	}
	job := singleJob(row, row.RetryCount, time.Now())
	if err := o.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, jobqueue.ErrDuplicateJob) {
		return "", err
	}
	if row.JobID != job.ID {
		if err := o.history.Update(ctx, swapID, map[string]interface{}{"job_id": job.ID}); err != nil {
			return "", err
		}
	}
	return job.ID, nil
}

// EnqueueBatch queues a job for a persisted batch. Membership and atomicity
// come from the stored batch.
func (o *Orchestrator) EnqueueBatch(ctx context.Context, batchID string) (string, error) {
	batch, err := o.history.GetBatch(ctx, batchID)
	if err != nil {
		return "", err
	}
	if batch.Status.IsFinal() {
		return "", NewSwapError(CodeAlreadySettled, fmt.Sprintf("batch %s is %s", batchID, batch.Status))
	}
	job := batchJob(batch, batch.RetryCount, time.Now())
	if err := o.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, jobqueue.ErrDuplicateJob) {
		return "", err
	}
	return job.ID, nil
}

// Quote prices a swap without executing it
func (o *Orchestrator) Quote(ctx context.Context, from, to string, amount decimal.Decimal) (*PriceQuote, *LiquidityCheck, error) {
	req, err := ValidateSwapRequest(SwapRequest{UserID: "quote", FromAsset: from, ToAsset: to, AmountIn: amount}, o.cfg.DefaultSlippageTolerance)
	if err != nil {
		return nil, nil, err
	}
	quote, err := o.quotes.Quote(ctx, req.FromAsset, req.ToAsset, req.AmountIn)
	if err != nil {
		return nil, nil, err
	}
	check, err := o.guard.CheckLiquidity(ctx, req.FromAsset, req.ToAsset, req.AmountIn)
	if err != nil {
		return nil, nil, err
	}
	return quote, check, nil
}

// Balances returns a user's balances
func (o *Orchestrator) Balances(ctx context.Context, userID string) ([]models.Balance, error) {
	return o.ledger.GetBalances(ctx, userID)
}
