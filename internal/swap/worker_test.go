package swap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/swaptrade/internal/messaging"
	"github.com/Aidin1998/swaptrade/pkg/models"
	"github.com/Aidin1998/swaptrade/testutil"
)

func TestBackoff(t *testing.T) {
	cfg := DefaultConfig()
	p := &WorkerPool{cfg: cfg}

	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, time.Minute, p.Backoff(6))
	assert.Equal(t, time.Minute, p.Backoff(40))
}

func TestWorkerRetriesTransientErrors(t *testing.T) {
	env := newTestEnv(t)
	user := newUser()
	env.deposit(t, user, "BTC", "1")

	handle := env.submitAsync(t, user, "BTC", "ETH", "0.4")
	env.prices.failNext(1)
	env.drain(t)

	row := env.swap(t, handle.SwapID)
	assert.Equal(t, models.SwapStatusSettled, row.Status)
	assert.Equal(t, 1, row.RetryCount)
	assert.Equal(t, handle.SwapID+":a1", row.JobID)
	testutil.AssertDecimalEqual(t, "0.6", env.balance(t, user, "BTC"))

	trail, err := env.history.AuditTrail(context.Background(), handle.SwapID)
	require.NoError(t, err)
	var path []models.SwapStatus
	for _, e := range trail {
		path = append(path, e.ToStatus)
	}
	assert.Equal(t, []models.SwapStatus{
		models.SwapStatusProcessing,
		models.SwapStatusScheduled,
		models.SwapStatusProcessing,
		models.SwapStatusSettled,
	}, path)

	retries := env.publisher.SwapEvents(messaging.MsgSwapRetrying)
	require.Len(t, retries, 1)
	assert.Equal(t, CodeTransient, retries[0].ErrorCode)
}

func TestWorkerFailsAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	user := newUser()
	env.deposit(t, user, "BTC", "1")

	handle := env.submitAsync(t, user, "BTC", "ETH", "0.4")
	env.prices.failNext(100)
	env.drain(t)

	row := env.swap(t, handle.SwapID)
	assert.Equal(t, models.SwapStatusFailed, row.Status)
	assert.Equal(t, env.cfg.MaxAttempts-1, row.RetryCount)
	assert.Contains(t, row.ErrorMessage, CodeTransient)
	testutil.AssertDecimalEqual(t, "1", env.balance(t, user, "BTC"))
}

func TestWorkerDoesNotRetrySlippage(t *testing.T) {
	env := newTestEnv(t)
	user := newUser()
	env.deposit(t, user, "BTC", "1")

	handle := env.submitAsync(t, user, "BTC", "ETH", "0.4")
	env.market.SetPrice("BTC", testutil.Dec("19000"))
	env.drain(t)

	row := env.swap(t, handle.SwapID)
	assert.Equal(t, models.SwapStatusFailed, row.Status)
	assert.Equal(t, 0, row.RetryCount)
	assert.Contains(t, row.ErrorMessage, CodeSlippageExceeded)
	assert.Empty(t, env.publisher.SwapEvents(messaging.MsgSwapRetrying))
}

func TestWorkerDropsSupersededJobs(t *testing.T) {
	env := newTestEnv(t)
	user := newUser()
	env.deposit(t, user, "BTC", "1")

	handle := env.submitAsync(t, user, "BTC", "ETH", "0.4")
	require.NoError(t, env.history.Update(context.Background(), handle.SwapID, map[string]interface{}{
		"job_id": handle.SwapID + ":a3",
	}))
	env.drain(t)

	assert.Equal(t, models.SwapStatusPending, env.swap(t, handle.SwapID).Status)
}

// batchEnv funds a user for a three-member batch whose second member
// (ETH -> BTC 50) cannot be covered.
func batchEnv(t *testing.T) (*testEnv, string) {
	env := newTestEnv(t)
	env.market.SetReserve("ETH", "BTC", testutil.Dec("1000"))
	user := newUser()
	env.deposit(t, user, "BTC", "1")
	env.deposit(t, user, "ETH", "10")
	return env, user
}

func failingBatch(user string, atomic bool) BatchSwapRequest {
	return BatchSwapRequest{
		UserID: user,
		Atomic: atomic,
		Swaps: []BatchSwapItem{
			{FromAsset: "BTC", ToAsset: "ETH", AmountIn: testutil.Dec("0.1")},
			{FromAsset: "ETH", ToAsset: "BTC", AmountIn: testutil.Dec("50")},
			{FromAsset: "BTC", ToAsset: "ETH", AmountIn: testutil.Dec("0.1")},
		},
	}
}

func TestAtomicBatchRollsBackOnMemberFailure(t *testing.T) {
	env, user := batchEnv(t)
	ctx := context.Background()

	res, err := env.orch.ExecuteBatchSwap(ctx, failingBatch(user, true))
	require.NoError(t, err)
	env.drain(t)

	for _, id := range res.SwapIDs {
		assert.Equal(t, models.SwapStatusFailed, env.swap(t, id).Status, "swap %s", id)
	}
	assert.Contains(t, env.swap(t, res.SwapIDs[1]).ErrorMessage, CodeInsufficientFunds)
	assert.Contains(t, env.swap(t, res.SwapIDs[0]).ErrorMessage, "rolled back")

	// zero net change
	testutil.AssertDecimalEqual(t, "1", env.balance(t, user, "BTC"))
	testutil.AssertDecimalEqual(t, "10", env.balance(t, user, "ETH"))

	compensation, err := env.ledger.Entries(ctx, "batch:"+res.BatchID+":compensation")
	require.NoError(t, err)
	require.Len(t, compensation, 2)
	kinds := []models.LedgerEntryKind{compensation[0].Kind, compensation[1].Kind}
	assert.ElementsMatch(t, []models.LedgerEntryKind{models.LedgerCompensationCredit, models.LedgerCompensationDebit}, kinds)

	view, err := env.orch.GetBatch(ctx, user, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, view.Batch.Status)
	assert.Equal(t, "0/3 settled", view.Summary)
	assert.NotNil(t, view.Batch.FinalizedAt)
}

func TestAtomicBatchSettlesAllMembers(t *testing.T) {
	env, user := batchEnv(t)
	ctx := context.Background()

	res, err := env.orch.ExecuteBatchSwap(ctx, BatchSwapRequest{
		UserID: user,
		Atomic: true,
		Swaps: []BatchSwapItem{
			{FromAsset: "BTC", ToAsset: "ETH", AmountIn: testutil.Dec("0.1")},
			{FromAsset: "ETH", ToAsset: "BTC", AmountIn: testutil.Dec("2")},
		},
	})
	require.NoError(t, err)
	env.drain(t)

	for _, id := range res.SwapIDs {
		row := env.swap(t, id)
		assert.Equal(t, models.SwapStatusSettled, row.Status)
		assert.NotNil(t, row.SettledAt)
	}

	view, err := env.orch.GetBatch(ctx, user, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusSettled, view.Batch.Status)
	assert.Equal(t, "2/2 settled", view.Summary)
	assert.Len(t, env.publisher.SwapEvents(messaging.MsgSwapSettled), 2)
}

func TestNonAtomicBatchSettlesIndependently(t *testing.T) {
	env, user := batchEnv(t)
	ctx := context.Background()

	res, err := env.orch.ExecuteBatchSwap(ctx, failingBatch(user, false))
	require.NoError(t, err)
	env.drain(t)

	assert.Equal(t, models.SwapStatusSettled, env.swap(t, res.SwapIDs[0]).Status)
	assert.Equal(t, models.SwapStatusFailed, env.swap(t, res.SwapIDs[1]).Status)
	assert.Equal(t, models.SwapStatusSettled, env.swap(t, res.SwapIDs[2]).Status)

	testutil.AssertDecimalEqual(t, "0.8", env.balance(t, user, "BTC"))

	view, err := env.orch.GetBatch(ctx, user, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPartial, view.Batch.Status)
	assert.Equal(t, 2, view.Batch.SettledCount)
	assert.Equal(t, 1, view.Batch.FailedCount)
	assert.Equal(t, "2/3 settled", view.Summary)
}

// driftingBatch has a BTC->USDT second member; its own pair is the only one
// moved between quote and settlement.
func driftingBatch(t *testing.T, env *testEnv, user string, atomic bool) *BatchSwapResult {
	t.Helper()
	env.market.SetReserve("BTC", "USDT", testutil.Dec("1000"))

	res, err := env.orch.ExecuteBatchSwap(context.Background(), BatchSwapRequest{
		UserID: user,
		Atomic: atomic,
		Swaps: []BatchSwapItem{
			{FromAsset: "BTC", ToAsset: "ETH", AmountIn: testutil.Dec("0.1")},
			{FromAsset: "BTC", ToAsset: "USDT", AmountIn: testutil.Dec("0.1")},
			{FromAsset: "BTC", ToAsset: "ETH", AmountIn: testutil.Dec("0.1")},
		},
	})
	require.NoError(t, err)

	// USDT strengthens 10%: BTC->USDT now pays ~9% less than quoted
	env.market.SetPrice("USDT", testutil.Dec("1.1"))
	env.drain(t)
	return res
}

func TestAtomicBatchRollsBackOnSlippage(t *testing.T) {
	env, user := batchEnv(t)
	ctx := context.Background()

	res := driftingBatch(t, env, user, true)

	for _, id := range res.SwapIDs {
		assert.Equal(t, models.SwapStatusFailed, env.swap(t, id).Status, "swap %s", id)
	}
	assert.Contains(t, env.swap(t, res.SwapIDs[1]).ErrorMessage, CodeSlippageExceeded)
	assert.Contains(t, env.swap(t, res.SwapIDs[0]).ErrorMessage, "rolled back")
	assert.Contains(t, env.swap(t, res.SwapIDs[2]).ErrorMessage, "rolled back")

	// the first member was applied and then compensated
	require.True(t, env.swap(t, res.SwapIDs[0]).Applied())
	compensation, err := env.ledger.Entries(ctx, "batch:"+res.BatchID+":compensation")
	require.NoError(t, err)
	assert.Len(t, compensation, 2)

	testutil.AssertDecimalEqual(t, "1", env.balance(t, user, "BTC"))
	testutil.AssertDecimalEqual(t, "10", env.balance(t, user, "ETH"))
	testutil.AssertDecimalEqual(t, "0", env.balance(t, user, "USDT"))

	view, err := env.orch.GetBatch(ctx, user, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, view.Batch.Status)
	assert.Contains(t, view.Batch.ErrorMessage, CodeSlippageExceeded)
	assert.Equal(t, "0/3 settled", view.Summary)
}

func TestNonAtomicBatchIsolatesSlippage(t *testing.T) {
	env, user := batchEnv(t)
	ctx := context.Background()

	res := driftingBatch(t, env, user, false)

	assert.Equal(t, models.SwapStatusSettled, env.swap(t, res.SwapIDs[0]).Status)
	failed := env.swap(t, res.SwapIDs[1])
	assert.Equal(t, models.SwapStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, CodeSlippageExceeded)
	assert.Zero(t, failed.RetryCount)
	assert.Equal(t, models.SwapStatusSettled, env.swap(t, res.SwapIDs[2]).Status)

	testutil.AssertDecimalEqual(t, "0.8", env.balance(t, user, "BTC"))
	testutil.AssertDecimalEqual(t, "0", env.balance(t, user, "USDT"))

	view, err := env.orch.GetBatch(ctx, user, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPartial, view.Batch.Status)
	assert.Equal(t, "2/3 settled", view.Summary)
}

// illiquidBatch asks for 30 BTC against a 39.6 BTC pool, far past the impact ceiling
func illiquidBatch(user string, atomic bool) BatchSwapRequest {
	return BatchSwapRequest{
		UserID: user,
		Atomic: atomic,
		Swaps: []BatchSwapItem{
			{FromAsset: "BTC", ToAsset: "ETH", AmountIn: testutil.Dec("0.1")},
			{FromAsset: "BTC", ToAsset: "ETH", AmountIn: testutil.Dec("30")},
		},
	}
}

func TestNonAtomicBatchRecordsIlliquidMember(t *testing.T) {
	env, user := batchEnv(t)
	ctx := context.Background()

	res, err := env.orch.ExecuteBatchSwap(ctx, illiquidBatch(user, false))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, 1, res.Rejected)
	assert.EqualValues(t, 50, res.EstimatedProcessingMs)

	rejected := env.swap(t, res.SwapIDs[1])
	assert.Equal(t, models.SwapStatusFailed, rejected.Status)
	assert.Contains(t, rejected.ErrorMessage, CodeInsufficientLiquidity)
	failures := env.publisher.SwapEvents(messaging.MsgSwapFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, CodeInsufficientLiquidity, failures[0].ErrorCode)

	env.drain(t)

	assert.Equal(t, models.SwapStatusSettled, env.swap(t, res.SwapIDs[0]).Status)
	testutil.AssertDecimalEqual(t, "0.9", env.balance(t, user, "BTC"))

	view, err := env.orch.GetBatch(ctx, user, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPartial, view.Batch.Status)
	assert.Equal(t, "1/2 settled", view.Summary)
}

func TestAtomicBatchWithIlliquidMemberFails(t *testing.T) {
	env, user := batchEnv(t)
	ctx := context.Background()

	res, err := env.orch.ExecuteBatchSwap(ctx, illiquidBatch(user, true))
	require.NoError(t, err)
	env.drain(t)

	for _, id := range res.SwapIDs {
		row := env.swap(t, id)
		assert.Equal(t, models.SwapStatusFailed, row.Status, "swap %s", id)
		assert.False(t, row.Applied())
	}
	assert.Contains(t, env.swap(t, res.SwapIDs[0]).ErrorMessage, "rolled back")
	testutil.AssertDecimalEqual(t, "1", env.balance(t, user, "BTC"))
	testutil.AssertDecimalEqual(t, "10", env.balance(t, user, "ETH"))

	view, err := env.orch.GetBatch(ctx, user, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, view.Batch.Status)
	assert.Contains(t, view.Batch.ErrorMessage, CodeInsufficientLiquidity)
}

func TestRecoverFailsInterruptedInlineSwaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := newUser()
	env.deposit(t, user, "BTC", "1")

	// a sync swap whose process died after the claim
	quote, err := env.orch.quotes.Quote(ctx, "BTC", "ETH", testutil.Dec("0.4"))
	require.NoError(t, err)
	row := newHistoryRow(user, quote, env.cfg.DefaultSlippageTolerance, models.SwapTypeSingle, nil)
	require.NoError(t, env.history.Create(ctx, row))
	moved, err := env.history.Transition(ctx, row.ID,
		[]models.SwapStatus{models.SwapStatusPending}, models.SwapStatusProcessing, "inline settlement", nil)
	require.NoError(t, err)
	require.True(t, moved)

	restarted := newTestEnv(t, withDB(env.db, env.market))
	require.NoError(t, restarted.orch.Workers().Recover(ctx))
	assert.Zero(t, restarted.queue.Len())

	got := restarted.swap(t, row.ID)
	assert.Equal(t, models.SwapStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, inlineAbortReason)
	testutil.AssertDecimalEqual(t, "1", restarted.balance(t, user, "BTC"))
}

func TestRecoverRequeuesInterruptedSwaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := newUser()
	env.deposit(t, user, "BTC", "1")

	handle := env.submitAsync(t, user, "BTC", "ETH", "0.4")
	moved, err := env.history.Transition(ctx, handle.SwapID,
		[]models.SwapStatus{models.SwapStatusPending}, models.SwapStatusProcessing, "claimed by worker", nil)
	require.NoError(t, err)
	require.True(t, moved)

	// a new process over the same database starts with an empty queue
	restarted := newTestEnv(t, withDB(env.db, env.market))
	require.Equal(t, 0, restarted.queue.Len())
	require.NoError(t, restarted.orch.Workers().Recover(ctx))

	row := restarted.swap(t, handle.SwapID)
	assert.Equal(t, models.SwapStatusPending, row.Status)
	trail, err := restarted.history.AuditTrail(ctx, handle.SwapID)
	require.NoError(t, err)
	assert.Equal(t, requeueReason, trail[len(trail)-1].Reason)

	pending, err := restarted.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, handle.JobID, pending[0].ID)

	// recovering twice does not duplicate work
	require.NoError(t, restarted.orch.Workers().Recover(ctx))
	assert.Equal(t, 1, restarted.queue.Len())

	restarted.drain(t)
	assert.Equal(t, models.SwapStatusSettled, restarted.swap(t, handle.SwapID).Status)
	testutil.AssertDecimalEqual(t, "0.6", restarted.balance(t, user, "BTC"))
}

func TestRecoverRequeuesOpenBatches(t *testing.T) {
	env, user := batchEnv(t)
	ctx := context.Background()

	res, err := env.orch.ExecuteBatchSwap(ctx, BatchSwapRequest{
		UserID: user,
		Atomic: true,
		Swaps: []BatchSwapItem{
			{FromAsset: "BTC", ToAsset: "ETH", AmountIn: testutil.Dec("0.1")},
		},
	})
	require.NoError(t, err)

	restarted := newTestEnv(t, withDB(env.db, env.market))
	require.NoError(t, restarted.orch.Workers().Recover(ctx))

	pending, err := restarted.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.JobIDs[0], pending[0].ID)

	restarted.drain(t)
	view, err := restarted.orch.GetBatch(ctx, user, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusSettled, view.Batch.Status)
}

func TestWorkerPoolProcessesQueuedSwaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := newUser()
	env.deposit(t, user, "BTC", "1")

	require.NoError(t, env.orch.Start(ctx))
	defer env.orch.Stop()

	handles := []*AsyncSwapResult{
		env.submitAsync(t, user, "BTC", "ETH", "0.1"),
		env.submitAsync(t, user, "BTC", "ETH", "0.2"),
	}

	require.Eventually(t, func() bool {
		for _, h := range handles {
			row, err := env.history.GetByID(ctx, h.SwapID)
			if err != nil || row.Status != models.SwapStatusSettled {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	testutil.AssertDecimalEqual(t, "0.7", env.balance(t, user, "BTC"))
}
