package swap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/swaptrade/internal/ledger"
	"github.com/Aidin1998/swaptrade/internal/messaging"
	"github.com/Aidin1998/swaptrade/pkg/metrics"
	"github.com/Aidin1998/swaptrade/pkg/models"
)

const tracerName = "github.com/Aidin1998/swaptrade/internal/swap"

var settleableStatuses = []models.SwapStatus{
	models.SwapStatusPending,
	models.SwapStatusProcessing,
	models.SwapStatusScheduled,
}

// SettlementEngine turns a persisted swap into a committed ledger change
type SettlementEngine struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	history HistoryStore
	quotes  *QuoteEngine
	events  eventSink
	scale   int32
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewSettlementEngine creates a settlement engine
func NewSettlementEngine(db *gorm.DB, l *ledger.Ledger, history HistoryStore, quotes *QuoteEngine, publisher messaging.Publisher, cfg Config, logger *zap.Logger) *SettlementEngine {
	logger = logger.Named("settlement")
	return &SettlementEngine{
		db:      db,
		ledger:  l,
		history: history,
		quotes:  quotes,
		events:  eventSink{publisher: publisher, logger: logger},
		scale:   cfg.AmountScale,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// Settle re-quotes the swap, enforces its slippage bound and applies the
// balance change. A swap is applied at most once; later calls return
// ALREADY_SETTLED without touching balances.
func (e *SettlementEngine) Settle(ctx context.Context, swapID string) (*SettledResult, error) {
	return e.settle(ctx, swapID, true)
}

// SettleHeld applies the balance change but leaves the row PROCESSING until
// the owning atomic batch finalizes it.
func (e *SettlementEngine) SettleHeld(ctx context.Context, swapID string) (*SettledResult, error) {
	return e.settle(ctx, swapID, false)
}

func (e *SettlementEngine) settle(ctx context.Context, swapID string, finalize bool) (result *SettledResult, err error) {
	ctx, span := e.tracer.Start(ctx, "swap.Settle", trace.WithAttributes(
		attribute.String("swap.id", swapID),
		attribute.Bool("swap.finalize", finalize),
	))
	start := time.Now()
	defer func() {
		metrics.SettlementLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, CodeOf(err))
		}
		span.End()
	}()

	row, err := e.history.GetByID(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !row.Status.Settleable() || row.Applied() {
		return nil, alreadySettled(row)
	}

	fresh, err := e.quotes.Quote(ctx, row.FromAsset, row.ToAsset, row.AmountIn)
	if err != nil {
		if !IsRetryable(err) && ctx.Err() == nil {
			e.Fail(ctx, row.ID, CodeOf(err), err.Error(), nil)
		}
		return nil, err
	}

	slippage := decimal.Zero
	if row.QuotedRate.IsPositive() {
		slippage = row.QuotedRate.Sub(fresh.Rate).Div(row.QuotedRate)
	}
	if slippage.Abs().GreaterThan(row.SlippageTolerance) {
		msg := fmt.Sprintf("slippage %s exceeds tolerance %s (quoted %s, executable %s)",
			slippage.StringFixed(6), row.SlippageTolerance, row.QuotedRate, fresh.Rate)
		e.Fail(ctx, row.ID, CodeSlippageExceeded, msg, map[string]interface{}{
			"actual_slippage": decimal.NewNullDecimal(slippage),
		})
		return nil, NewSwapError(CodeSlippageExceeded, msg)
	}

	amountOut := row.AmountIn.Mul(fresh.Rate).Round(e.scale)
	executedAt := time.Now()

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := e.history.WithTx(tx)

		locked, err := store.GetForUpdate(ctx, swapID)
		if err != nil {
			return err
		}
		if !locked.Status.Settleable() || locked.Applied() {
			return alreadySettled(locked)
		}

		_, err = e.ledger.Apply(ctx, tx, swapID,
			ledger.Debit(locked.UserID, locked.FromAsset, locked.AmountIn, models.LedgerDebit),
			ledger.Credit(locked.UserID, locked.ToAsset, amountOut, models.LedgerCredit),
		)
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return wrapError(CodeInsufficientFunds,
				fmt.Sprintf("insufficient %s balance for swap %s", locked.FromAsset, swapID), err)
		}
		if err != nil {
			return err
		}

		if locked.Status != models.SwapStatusProcessing {
			moved, err := store.Transition(ctx, swapID,
				[]models.SwapStatus{locked.Status}, models.SwapStatusProcessing, "settlement started", nil)
			if err != nil {
				return err
			}
			if !moved {
				return fmt.Errorf("swap %s left %s during settlement", swapID, locked.Status)
			}
		}

		updates := map[string]interface{}{
			"executed_rate":   decimal.NewNullDecimal(fresh.Rate),
			"actual_slippage": decimal.NewNullDecimal(slippage),
			"amount_out":      decimal.NewNullDecimal(amountOut),
			"executed_at":     executedAt,
			"error_message":   "",
		}
		if !finalize {
			return store.Update(ctx, swapID, updates)
		}

		updates["settled_at"] = executedAt
		moved, err := store.Transition(ctx, swapID,
			[]models.SwapStatus{models.SwapStatusProcessing}, models.SwapStatusSettled, "settled", updates)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("swap %s could not be marked settled", swapID)
		}
		return nil
	})
	if err != nil {
		if CodeOf(err) == CodeInsufficientFunds {
			e.Fail(ctx, swapID, CodeInsufficientFunds, err.Error(), nil)
		}
		return nil, err
	}

	result = &SettledResult{
		SwapID:         swapID,
		AmountIn:       row.AmountIn,
		AmountOut:      amountOut,
		ExecutedRate:   fresh.Rate,
		ActualSlippage: slippage,
		ExecutedAt:     executedAt,
		Held:           !finalize,
	}

	metrics.RealizedSlippage.Observe(slippage.Abs().InexactFloat64())
	if finalize {
		metrics.SwapsTotal.WithLabelValues(string(row.SwapType), string(models.SwapStatusSettled)).Inc()
		row.Status = models.SwapStatusSettled
		row.AmountOut = decimal.NewNullDecimal(amountOut)
		row.ExecutedRate = decimal.NewNullDecimal(fresh.Rate)
		e.events.swap(ctx, messaging.MsgSwapSettled, row, "", "")
	}

	e.logger.Info("Swap settled",
		zap.String("swap_id", swapID),
		zap.String("user_id", row.UserID),
		zap.String("from", row.FromAsset),
		zap.String("to", row.ToAsset),
		zap.String("amount_in", row.AmountIn.String()),
		zap.String("amount_out", amountOut.String()),
		zap.String("slippage", slippage.String()),
		zap.Bool("held", !finalize),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

// Fail moves a non-terminal swap to FAILED, recording code and message. It is
// a no-op for rows that already reached a terminal state.
func (e *SettlementEngine) Fail(ctx context.Context, swapID, code, message string, extra map[string]interface{}) bool {
	updates := map[string]interface{}{"error_message": formatFailure(code, message)}
	for k, v := range extra {
		updates[k] = v
	}

	moved, err := e.history.Transition(ctx, swapID, settleableStatuses, models.SwapStatusFailed, code, updates)
	if err != nil {
		e.logger.Error("Failed to mark swap failed", zap.String("swap_id", swapID), zap.Error(err))
		return false
	}
	if !moved {
		return false
	}

	row, err := e.history.GetByID(ctx, swapID)
	if err == nil {
		metrics.SwapsTotal.WithLabelValues(string(row.SwapType), string(models.SwapStatusFailed)).Inc()
		e.events.swap(ctx, messaging.MsgSwapFailed, row, code, message)
	}
	e.logger.Warn("Swap failed",
		zap.String("swap_id", swapID),
		zap.String("code", code),
		zap.String("reason", message))
	return true
}

func formatFailure(code, message string) string {
	if code == "" {
		return message
	}
	return code + ": " + message
}

func alreadySettled(row *models.SwapHistory) *SwapError {
	return NewSwapError(CodeAlreadySettled,
		fmt.Sprintf("swap %s is %s (applied=%s)", row.ID, row.Status, strconv.FormatBool(row.Applied())))
}
