package swap

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/swaptrade/internal/ledger"
	"github.com/Aidin1998/swaptrade/internal/messaging"
	"github.com/Aidin1998/swaptrade/internal/swap/jobqueue"
	"github.com/Aidin1998/swaptrade/pkg/metrics"
	"github.com/Aidin1998/swaptrade/pkg/models"
)

const (
	requeueReason     = "requeued after worker restart"
	inlineAbortReason = "inline settlement interrupted"
)

// WorkerPool drains the job queue and drives queued swaps to a terminal state
type WorkerPool struct {
	queue      jobqueue.Queue
	history    HistoryStore
	ledger     *ledger.Ledger
	settlement *SettlementEngine
	events     eventSink
	cfg        Config
	logger     *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorkerPool creates a worker pool; call Start to launch the workers
func NewWorkerPool(queue jobqueue.Queue, history HistoryStore, l *ledger.Ledger, settlement *SettlementEngine, publisher messaging.Publisher, cfg Config, logger *zap.Logger) *WorkerPool {
	logger = logger.Named("swap-worker")
	return &WorkerPool{
		queue:      queue,
		history:    history,
		ledger:     l,
		settlement: settlement,
		events:     eventSink{publisher: publisher, logger: logger},
		cfg:        cfg,
		logger:     logger,
	}
}

func jobID(base string, attempt int) string {
	return base + ":a" + strconv.Itoa(attempt)
}

func singleJob(row *models.SwapHistory, attempt int, readyAt time.Time) jobqueue.Job {
	return jobqueue.Job{
		ID:      jobID(row.ID, attempt),
		Type:    jobqueue.JobSingle,
		UserID:  row.UserID,
		SwapID:  row.ID,
		Attempt: attempt,
		ReadyAt: readyAt,
	}
}

func batchJob(batch *models.BatchJob, attempt int, readyAt time.Time) jobqueue.Job {
	return jobqueue.Job{
		ID:      jobID(batch.ID, attempt),
		Type:    jobqueue.JobBatch,
		UserID:  batch.UserID,
		BatchID: batch.ID,
		SwapIDs: batch.SwapIDs,
		Atomic:  batch.Atomic,
		Attempt: attempt,
		ReadyAt: readyAt,
	}
}

// Backoff returns the delay before retry number retryCount+1:
// min(base * 2^retryCount, maxDelay).
func (p *WorkerPool) Backoff(retryCount int) time.Duration {
	delay := p.cfg.BaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if p.cfg.MaxDelay > 0 && delay >= p.cfg.MaxDelay {
			return p.cfg.MaxDelay
		}
	}
	if p.cfg.MaxDelay > 0 && delay > p.cfg.MaxDelay {
		return p.cfg.MaxDelay
	}
	return delay
}

// Start launches cfg.Workers goroutines. It is a no-op when already running.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("Worker pool started", zap.Int("workers", workers))
}

// Stop cancels the workers and waits for them. Jobs interrupted by shutdown
// are left unacknowledged and picked up again by Recover.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker_id", id))

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, jobqueue.ErrQueueClosed) {
				return
			}
			logger.Warn("Failed to dequeue job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		metrics.QueueDepth.Set(float64(p.queue.Len()))

		p.handle(ctx, job)

		if ctx.Err() != nil {
			return
		}
		if err := p.queue.Ack(ctx, job.ID); err != nil && !errors.Is(err, jobqueue.ErrJobNotFound) {
			logger.Warn("Failed to ack job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// handle processes one job; panics are contained to the job
func (p *WorkerPool) handle(ctx context.Context, job jobqueue.Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Swap job panic recovered",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	switch job.Type {
	case jobqueue.JobSingle:
		p.processSingle(ctx, job)
	case jobqueue.JobBatch:
		p.processBatch(ctx, job)
	default:
		p.logger.Error("Unknown job type", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	}
}

// ProcessJob runs one job synchronously without going through the queue
func (p *WorkerPool) ProcessJob(ctx context.Context, job jobqueue.Job) {
	p.handle(ctx, job)
}

func (p *WorkerPool) processSingle(ctx context.Context, job jobqueue.Job) {
	row, err := p.history.GetByID(ctx, job.SwapID)
	if err != nil {
		p.logger.Warn("Dropping job for unknown swap", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if row.Status.IsTerminal() || row.Applied() {
		return
	}
	if row.JobID != "" && row.JobID != job.ID {
		p.logger.Debug("Dropping superseded job",
			zap.String("job_id", job.ID),
			zap.String("current_job_id", row.JobID))
		return
	}

	moved, err := p.history.Transition(ctx, row.ID,
		[]models.SwapStatus{models.SwapStatusPending, models.SwapStatusScheduled}, models.SwapStatusProcessing,
		fmt.Sprintf("claimed by worker (attempt %d)", row.RetryCount+1), nil)
	if err != nil {
		p.logger.Error("Failed to claim swap", zap.String("swap_id", row.ID), zap.Error(err))
		return
	}
	if !moved {
		return
	}

	if _, err := p.settlement.Settle(ctx, row.ID); err != nil {
		p.handleFailure(ctx, row, err)
	}
	if row.BatchID != nil {
		p.refreshBatch(ctx, *row.BatchID)
	}
}

// handleFailure schedules a retry for retryable errors while attempts remain
// and fails the swap otherwise.
func (p *WorkerPool) handleFailure(ctx context.Context, row *models.SwapHistory, cause error) {
	code := CodeOf(cause)
	if code == CodeAlreadySettled || ctx.Err() != nil {
		return
	}

	if !IsRetryable(cause) || row.RetryCount+1 >= p.cfg.MaxAttempts {
		p.settlement.Fail(ctx, row.ID, code, cause.Error(), nil)
		return
	}

	next := row.RetryCount + 1
	delay := p.Backoff(row.RetryCount)
	job := singleJob(row, next, time.Now().Add(delay))

	moved, err := p.history.Transition(ctx, row.ID,
		[]models.SwapStatus{models.SwapStatusProcessing}, models.SwapStatusScheduled,
		fmt.Sprintf("retry %d scheduled after %s", next, code),
		map[string]interface{}{
			"retry_count":   next,
			"error_message": formatFailure(code, cause.Error()),
			"job_id":        job.ID,
		})
	if err != nil {
		p.logger.Error("Failed to schedule retry", zap.String("swap_id", row.ID), zap.Error(err))
		return
	}
	if !moved {
		return
	}

	if err := p.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, jobqueue.ErrDuplicateJob) {
		p.settlement.Fail(ctx, row.ID, code, "retry could not be queued: "+err.Error(), nil)
		return
	}
	metrics.SwapRetries.WithLabelValues(code).Inc()

	row.Status = models.SwapStatusScheduled
	row.RetryCount = next
	p.events.swap(ctx, messaging.MsgSwapRetrying, row, code, cause.Error())
	p.logger.Info("Swap retry scheduled",
		zap.String("swap_id", row.ID),
		zap.String("code", code),
		zap.Int("attempt", next+1),
		zap.Duration("delay", delay))
}

func (p *WorkerPool) processBatch(ctx context.Context, job jobqueue.Job) {
	batch, err := p.history.GetBatch(ctx, job.BatchID)
	if err != nil {
		p.logger.Warn("Dropping job for unknown batch", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if batch.Status.IsFinal() {
		return
	}
	if batch.JobID != "" && batch.JobID != job.ID {
		p.logger.Debug("Dropping superseded batch job",
			zap.String("job_id", job.ID),
			zap.String("current_job_id", batch.JobID))
		return
	}
	if batch.Status == models.BatchStatusPending {
		if err := p.history.UpdateBatch(ctx, batch.ID, map[string]interface{}{"status": models.BatchStatusProcessing}); err != nil {
			p.logger.Error("Failed to mark batch processing", zap.String("batch_id", batch.ID), zap.Error(err))
			return
		}
		batch.Status = models.BatchStatusProcessing
	}

	if batch.Atomic {
		p.processAtomicBatch(ctx, batch)
		return
	}
	p.processPartialBatch(ctx, batch)
}

// processPartialBatch settles each member on its own. Members that need a
// retry are handed off to their own single jobs.
func (p *WorkerPool) processPartialBatch(ctx context.Context, batch *models.BatchJob) {
	members, err := p.history.ListByBatch(ctx, batch.ID)
	if err != nil {
		p.logger.Error("Failed to load batch members", zap.String("batch_id", batch.ID), zap.Error(err))
		return
	}

	for i := range members {
		m := &members[i]
		if m.JobID != batch.JobID || m.Status.IsTerminal() || m.Applied() {
			continue
		}
		moved, err := p.history.Transition(ctx, m.ID,
			[]models.SwapStatus{models.SwapStatusPending, models.SwapStatusScheduled}, models.SwapStatusProcessing,
			"claimed for batch "+batch.ID, nil)
		if err != nil {
			p.logger.Error("Failed to claim batch member", zap.String("swap_id", m.ID), zap.Error(err))
			continue
		}
		if !moved {
			continue
		}

		if _, err := p.settlement.Settle(ctx, m.ID); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.handleFailure(ctx, m, err)
		}
		p.refreshBatch(ctx, batch.ID)
	}
	p.refreshBatch(ctx, batch.ID)
}

// refreshBatch recomputes a non-atomic batch's aggregate from its members
func (p *WorkerPool) refreshBatch(ctx context.Context, batchID string) {
	batch, err := p.history.GetBatch(ctx, batchID)
	if err != nil || batch.Status.IsFinal() || batch.Atomic {
		return
	}
	members, err := p.history.ListByBatch(ctx, batchID)
	if err != nil {
		p.logger.Error("Failed to load batch members", zap.String("batch_id", batchID), zap.Error(err))
		return
	}

	settled, failed, open := 0, 0, 0
	for _, m := range members {
		switch {
		case m.Status == models.SwapStatusSettled:
			settled++
		case m.Status.IsTerminal():
			failed++
		default:
			open++
		}
	}

	updates := map[string]interface{}{
		"settled_count": settled,
		"failed_count":  failed,
	}
	status := models.BatchStatusProcessing
	if open == 0 {
		switch {
		case failed == 0:
			status = models.BatchStatusSettled
		case settled == 0:
			status = models.BatchStatusFailed
		default:
			status = models.BatchStatusPartial
		}
		now := time.Now()
		updates["finalized_at"] = &now
	}
	updates["status"] = status

	if err := p.history.UpdateBatch(ctx, batchID, updates); err != nil {
		p.logger.Error("Failed to update batch", zap.String("batch_id", batchID), zap.Error(err))
		return
	}
	if !status.IsFinal() {
		return
	}

	batch.Status = status
	batch.SettledCount = settled
	batch.FailedCount = failed
	metrics.BatchOutcomes.WithLabelValues("false", string(status)).Inc()
	p.events.batch(ctx, batch)
	p.logger.Info("Batch finalized",
		zap.String("batch_id", batchID),
		zap.String("status", string(status)),
		zap.String("summary", fmt.Sprintf("%d/%d settled", settled, batch.Total)))
}

// processAtomicBatch applies every member with SettleHeld and only then marks
// them SETTLED together. Any terminal member failure compensates the members
// already applied and fails the whole batch.
func (p *WorkerPool) processAtomicBatch(ctx context.Context, batch *models.BatchJob) {
	members, err := p.history.ListByBatch(ctx, batch.ID)
	if err != nil {
		p.logger.Error("Failed to load batch members", zap.String("batch_id", batch.ID), zap.Error(err))
		return
	}

	// a member rejected at submission fails the batch before anything is applied
	for i := range members {
		if m := &members[i]; m.Status.IsTerminal() && !m.Applied() {
			p.rollbackBatch(ctx, batch, memberFailure(m))
			return
		}
	}

	var failure error
	for i := range members {
		m := &members[i]
		if m.Applied() {
			continue
		}
		if m.Status.IsTerminal() {
			failure = memberFailure(m)
			break
		}
		if m.Status != models.SwapStatusProcessing {
			moved, err := p.history.Transition(ctx, m.ID,
				[]models.SwapStatus{models.SwapStatusPending, models.SwapStatusScheduled}, models.SwapStatusProcessing,
				"claimed for atomic batch "+batch.ID, nil)
			if err != nil {
				failure = err
				break
			}
			if !moved {
				failure = NewSwapError(CodeInvalidRequest, fmt.Sprintf("batch member %s could not be claimed", m.ID))
				break
			}
		}

		_, err := p.settlement.SettleHeld(ctx, m.ID)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if IsRetryable(err) && batch.RetryCount+1 < p.cfg.MaxAttempts {
			if rerr := p.rescheduleBatch(ctx, batch, err); rerr == nil {
				return
			}
		}
		failure = err
		break
	}

	if failure != nil {
		p.rollbackBatch(ctx, batch, failure)
		return
	}
	p.finalizeAtomicBatch(ctx, batch)
}

// memberFailure keeps a failed member's own code as the batch's cause
func memberFailure(m *models.SwapHistory) *SwapError {
	code := CodeInvalidRequest
	if c, _, ok := strings.Cut(m.ErrorMessage, ": "); ok && isErrorCode(c) {
		code = c
	}
	msg := fmt.Sprintf("batch member %s is %s", m.ID, m.Status)
	if m.ErrorMessage != "" {
		msg += ": " + m.ErrorMessage
	}
	return NewSwapError(code, msg)
}

func (p *WorkerPool) rescheduleBatch(ctx context.Context, batch *models.BatchJob, cause error) error {
	code := CodeOf(cause)
	next := batch.RetryCount + 1
	delay := p.Backoff(batch.RetryCount)
	job := batchJob(batch, next, time.Now().Add(delay))

	err := p.history.UpdateBatch(ctx, batch.ID, map[string]interface{}{
		"retry_count":   next,
		"job_id":        job.ID,
		"error_message": formatFailure(code, cause.Error()),
	})
	if err != nil {
		return err
	}
	if err := p.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, jobqueue.ErrDuplicateJob) {
		return err
	}
	metrics.SwapRetries.WithLabelValues(code).Inc()
	p.logger.Info("Batch retry scheduled",
		zap.String("batch_id", batch.ID),
		zap.String("code", code),
		zap.Int("attempt", next+1),
		zap.Duration("delay", delay))
	return nil
}

// rollbackBatch reverses every applied member in one transaction and fails
// all members and the batch.
func (p *WorkerPool) rollbackBatch(ctx context.Context, batch *models.BatchJob, cause error) {
	reason := fmt.Sprintf("batch rolled back: %s", cause.Error())
	now := time.Now()
	var failedIDs []string

	err := p.ledger.Transact(ctx, func(tx *gorm.DB) error {
		store := p.history.WithTx(tx)
		members, err := store.ListByBatch(ctx, batch.ID)
		if err != nil {
			return err
		}

		var movements []ledger.Movement
		for _, m := range members {
			if !m.Applied() || m.Status.IsTerminal() {
				continue
			}
			movements = append(movements,
				ledger.Credit(m.UserID, m.FromAsset, m.AmountIn, models.LedgerCompensationCredit),
				ledger.Debit(m.UserID, m.ToAsset, m.AmountOut.Decimal, models.LedgerCompensationDebit),
			)
		}
		if _, err := p.ledger.Apply(ctx, tx, "batch:"+batch.ID+":compensation", movements...); err != nil {
			return err
		}

		for _, m := range members {
			if m.Status.IsTerminal() {
				continue
			}
			moved, err := store.Transition(ctx, m.ID, settleableStatuses, models.SwapStatusFailed, "batch rolled back",
				map[string]interface{}{"error_message": formatFailure(CodeOf(cause), reason)})
			if err != nil {
				return err
			}
			if moved {
				failedIDs = append(failedIDs, m.ID)
			}
		}

		return store.UpdateBatch(ctx, batch.ID, map[string]interface{}{
			"status":        models.BatchStatusFailed,
			"settled_count": 0,
			"failed_count":  len(members),
			"error_message": formatFailure(CodeOf(cause), cause.Error()),
			"finalized_at":  &now,
		})
	})

	status := models.BatchStatusFailed
	if err != nil {
		status = models.BatchStatusCompensationFailed
		failedIDs = nil
		p.logger.Error("Atomic batch compensation failed",
			zap.String("batch_id", batch.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		uerr := p.history.UpdateBatch(context.WithoutCancel(ctx), batch.ID, map[string]interface{}{
			"status":        status,
			"error_message": fmt.Sprintf("compensation failed: %v (cause: %v)", err, cause),
			"finalized_at":  &now,
		})
		if uerr != nil {
			p.logger.Error("Failed to mark batch compensation failure", zap.String("batch_id", batch.ID), zap.Error(uerr))
		}
	}

	for _, id := range failedIDs {
		if row, err := p.history.GetByID(ctx, id); err == nil {
			metrics.SwapsTotal.WithLabelValues(string(row.SwapType), string(models.SwapStatusFailed)).Inc()
			p.events.swap(ctx, messaging.MsgSwapFailed, row, CodeOf(cause), reason)
		}
	}

	batch.Status = status
	batch.SettledCount = 0
	batch.FailedCount = batch.Total
	metrics.BatchOutcomes.WithLabelValues("true", string(status)).Inc()
	p.events.batch(ctx, batch)
	p.logger.Warn("Atomic batch failed",
		zap.String("batch_id", batch.ID),
		zap.String("status", string(status)),
		zap.String("code", CodeOf(cause)),
		zap.Error(cause))
}

// finalizeAtomicBatch is the barrier: every held member becomes SETTLED in
// the same transaction as the batch.
func (p *WorkerPool) finalizeAtomicBatch(ctx context.Context, batch *models.BatchJob) {
	now := time.Now()
	var settledIDs []string

	err := p.ledger.Transact(ctx, func(tx *gorm.DB) error {
		store := p.history.WithTx(tx)
		members, err := store.ListByBatch(ctx, batch.ID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.Status == models.SwapStatusSettled {
				continue
			}
			if !m.Applied() {
				return fmt.Errorf("batch member %s was not applied", m.ID)
			}
			moved, err := store.Transition(ctx, m.ID,
				[]models.SwapStatus{models.SwapStatusProcessing}, models.SwapStatusSettled, "atomic batch settled",
				map[string]interface{}{"settled_at": now})
			if err != nil {
				return err
			}
			if !moved {
				return fmt.Errorf("batch member %s could not be settled", m.ID)
			}
			settledIDs = append(settledIDs, m.ID)
		}
		return store.UpdateBatch(ctx, batch.ID, map[string]interface{}{
			"status":        models.BatchStatusSettled,
			"settled_count": len(members),
			"failed_count":  0,
			"error_message": "",
			"finalized_at":  &now,
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("Failed to finalize atomic batch", zap.String("batch_id", batch.ID), zap.Error(err))
		if batch.RetryCount+1 < p.cfg.MaxAttempts {
			if rerr := p.rescheduleBatch(ctx, batch, err); rerr == nil {
				return
			}
		}
		p.rollbackBatch(ctx, batch, err)
		return
	}

	for _, id := range settledIDs {
		if row, err := p.history.GetByID(ctx, id); err == nil {
			metrics.SwapsTotal.WithLabelValues(string(row.SwapType), string(models.SwapStatusSettled)).Inc()
			p.events.swap(ctx, messaging.MsgSwapSettled, row, "", "")
		}
	}

	batch.Status = models.BatchStatusSettled
	batch.SettledCount = batch.Total
	batch.FailedCount = 0
	metrics.BatchOutcomes.WithLabelValues("true", string(models.BatchStatusSettled)).Inc()
	p.events.batch(ctx, batch)
	p.logger.Info("Atomic batch settled",
		zap.String("batch_id", batch.ID),
		zap.Int("swaps", batch.Total))
}

// Recover re-hydrates the queue from persisted state. Unapplied PROCESSING
// rows go back to PENDING, then every open swap and batch gets its job back.
// Held members of atomic batches are left to their batch job. Inline rows
// have no job; their caller already got an answer, so they are failed.
func (p *WorkerPool) Recover(ctx context.Context) error {
	if r, ok := p.queue.(jobqueue.Recoverer); ok {
		jobs, err := r.Recover(ctx)
		if err != nil {
			return fmt.Errorf("failed to recover in-flight jobs: %w", err)
		}
		if len(jobs) > 0 {
			p.logger.Info("Recovered in-flight jobs", zap.Int("jobs", len(jobs)))
		}
	}

	rows, err := p.history.ListByStatus(ctx,
		models.SwapStatusPending, models.SwapStatusProcessing, models.SwapStatusScheduled)
	if err != nil {
		return err
	}

	requeued, enqueued, aborted := 0, 0, 0
	for i := range rows {
		row := &rows[i]
		if inline(row) {
			if !row.Applied() && p.settlement.Fail(ctx, row.ID, CodeTransient, inlineAbortReason, nil) {
				aborted++
			}
			continue
		}
		if row.Status == models.SwapStatusProcessing {
			if row.Applied() {
				continue
			}
			moved, err := p.history.Transition(ctx, row.ID,
				[]models.SwapStatus{models.SwapStatusProcessing}, models.SwapStatusPending, requeueReason, nil)
			if err != nil {
				return err
			}
			if !moved {
				continue
			}
			row.Status = models.SwapStatusPending
			requeued++
		}
		if ownedByBatchJob(row) {
			continue
		}
		if err := p.enqueueRow(ctx, row); err != nil {
			return err
		}
		enqueued++
	}

	batches, err := p.history.ListOpenBatches(ctx)
	if err != nil {
		return err
	}
	for i := range batches {
		b := &batches[i]
		job := batchJob(b, b.RetryCount, time.Now())
		if b.JobID != "" {
			job.ID = b.JobID
		}
		if err := p.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, jobqueue.ErrDuplicateJob) {
			return fmt.Errorf("failed to re-enqueue batch %s: %w", b.ID, err)
		}
	}
	metrics.QueueDepth.Set(float64(p.queue.Len()))

	p.logger.Info("Swap recovery complete",
		zap.Int("requeued", requeued),
		zap.Int("inline_aborted", aborted),
		zap.Int("swap_jobs", enqueued),
		zap.Int("batch_jobs", len(batches)))
	return nil
}

// inline reports whether a row was settled in its caller's request (sync
// swaps and saga legs) rather than by a queued job
func inline(row *models.SwapHistory) bool {
	return row.JobID == "" && row.BatchID == nil
}

// ownedByBatchJob reports whether a member is still driven by its batch job
// rather than a retry job of its own.
func ownedByBatchJob(row *models.SwapHistory) bool {
	return row.BatchID != nil && strings.HasPrefix(row.JobID, *row.BatchID+":")
}

func (p *WorkerPool) enqueueRow(ctx context.Context, row *models.SwapHistory) error {
	job := singleJob(row, row.RetryCount, time.Now())
	if row.JobID != "" {
		job.ID = row.JobID
	} else if err := p.history.Update(ctx, row.ID, map[string]interface{}{"job_id": job.ID}); err != nil {
		return err
	}
	if err := p.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, jobqueue.ErrDuplicateJob) {
		return fmt.Errorf("failed to re-enqueue swap %s: %w", row.ID, err)
	}
	return nil
}
