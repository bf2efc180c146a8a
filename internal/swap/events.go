package swap

import (
	"context"

	"go.uber.org/zap"

	"github.com/Aidin1998/swaptrade/internal/messaging"
	"github.com/Aidin1998/swaptrade/pkg/models"
)

// eventSink publishes swap lifecycle events. Failures are logged and
// swallowed; the history table remains authoritative.
type eventSink struct {
	publisher messaging.Publisher
	logger    *zap.Logger
}

func (s eventSink) swap(ctx context.Context, msgType messaging.MessageType, row *models.SwapHistory, code, message string) {
	if s.publisher == nil {
		return
	}
	ev := messaging.SwapEvent{
		BaseMessage:  messaging.NewBaseMessage(msgType),
		SwapID:       row.ID,
		UserID:       row.UserID,
		FromAsset:    row.FromAsset,
		ToAsset:      row.ToAsset,
		AmountIn:     row.AmountIn,
		Status:       string(row.Status),
		ErrorCode:    code,
		ErrorMessage: message,
	}
	if row.AmountOut.Valid {
		v := row.AmountOut.Decimal
		ev.AmountOut = &v
	}
	if row.ExecutedRate.Valid {
		v := row.ExecutedRate.Decimal
		ev.Rate = &v
	}
	if row.BatchID != nil {
		ev.BatchID = *row.BatchID
	}
	if err := s.publisher.Publish(ctx, row.ID, ev); err != nil {
		s.logger.Warn("Failed to publish swap event",
			zap.String("swap_id", row.ID),
			zap.String("type", string(msgType)),
			zap.Error(err))
	}
}

func (s eventSink) batch(ctx context.Context, batch *models.BatchJob) {
	if s.publisher == nil {
		return
	}
	ev := messaging.BatchEvent{
		BaseMessage:  messaging.NewBaseMessage(messaging.MsgBatchFinalized),
		BatchID:      batch.ID,
		UserID:       batch.UserID,
		Atomic:       batch.Atomic,
		Status:       string(batch.Status),
		Total:        batch.Total,
		SettledCount: batch.SettledCount,
		FailedCount:  batch.FailedCount,
	}
	if err := s.publisher.Publish(ctx, batch.ID, ev); err != nil {
		s.logger.Warn("Failed to publish batch event", zap.String("batch_id", batch.ID), zap.Error(err))
	}
}
