package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(&KafkaConfig{Topic: "swap-events"}, zap.NewNop())
	assert.Error(t, err)

	p, err := NewKafkaPublisher(nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "swap-events", p.writer.Topic)
	require.NoError(t, p.Close())
}

func TestMemoryPublisherFiltersByType(t *testing.T) {
	p := &MemoryPublisher{}
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "a", SwapEvent{BaseMessage: NewBaseMessage(MsgSwapSettled), SwapID: "a"}))
	require.NoError(t, p.Publish(ctx, "b", SwapEvent{BaseMessage: NewBaseMessage(MsgSwapFailed), SwapID: "b"}))
	require.NoError(t, p.Publish(ctx, "c", BatchEvent{BaseMessage: NewBaseMessage(MsgBatchFinalized)}))

	assert.Len(t, p.Events(), 3)
	settled := p.SwapEvents(MsgSwapSettled)
	require.Len(t, settled, 1)
	assert.Equal(t, "a", settled[0].SwapID)
}

func TestSwapEventJSON(t *testing.T) {
	out := decimal.RequireFromString("7.90416")
	ev := SwapEvent{
		BaseMessage: NewBaseMessage(MsgSwapSettled),
		SwapID:      "s1",
		AmountIn:    decimal.RequireFromString("0.4"),
		AmountOut:   &out,
		Status:      "SETTLED",
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "swap.settled", decoded["type"])
	assert.Equal(t, "7.90416", decoded["amount_out"])
	assert.NotContains(t, decoded, "error_code")
}
