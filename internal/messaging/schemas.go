package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MessageType defines the type of swap lifecycle event
type MessageType string

const (
	MsgSwapQueued    MessageType = "swap.queued"
	MsgSwapSettled   MessageType = "swap.settled"
	MsgSwapFailed    MessageType = "swap.failed"
	MsgSwapCancelled MessageType = "swap.cancelled"
	MsgSwapRetrying  MessageType = "swap.retrying"

	MsgBatchFinalized MessageType = "batch.finalized"
)

// BaseMessage contains common fields for all messages
type BaseMessage struct {
	MessageID string      `json:"message_id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Version   string      `json:"version"`
	Source    string      `json:"source"`
}

// SwapEvent describes a status change of one swap
type SwapEvent struct {
	BaseMessage
	SwapID       string           `json:"swap_id"`
	UserID       string           `json:"user_id"`
	FromAsset    string           `json:"from_asset"`
	ToAsset      string           `json:"to_asset"`
	AmountIn     decimal.Decimal  `json:"amount_in"`
	AmountOut    *decimal.Decimal `json:"amount_out,omitempty"`
	Rate         *decimal.Decimal `json:"rate,omitempty"`
	Status       string           `json:"status"`
	BatchID      string           `json:"batch_id,omitempty"`
	ErrorCode    string           `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// BatchEvent describes the final outcome of a batch
type BatchEvent struct {
	BaseMessage
	BatchID      string `json:"batch_id"`
	UserID       string `json:"user_id"`
	Atomic       bool   `json:"atomic"`
	Status       string `json:"status"`
	Total        int    `json:"total"`
	SettledCount int    `json:"settled_count"`
	FailedCount  int    `json:"failed_count"`
}

// NewBaseMessage stamps a fresh message header
func NewBaseMessage(msgType MessageType) BaseMessage {
	return BaseMessage{
		MessageID: uuid.New().String(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Version:   "1",
		Source:    "swapd",
	}
}
