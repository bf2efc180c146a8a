package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// idlePoll bounds how long a waiting consumer sleeps without a signal
const idlePoll = time.Second

// MemoryQueue is a bounded in-process queue ordered by ReadyAt
type MemoryQueue struct {
	mu       sync.Mutex
	ready    *btree.Map[string, Job]
	keys     map[string]string // job id -> ready key
	inflight map[string]Job
	capacity int
	seq      uint64
	notify   chan struct{}
	done     chan struct{}
	closed   bool
}

// NewMemoryQueue creates a queue holding at most capacity waiting jobs
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{
		ready:    btree.NewMap[string, Job](32),
		keys:     make(map[string]string),
		inflight: make(map[string]Job),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	job, err := normalize(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.keys[job.ID]; ok {
		return ErrDuplicateJob
	}
	if _, ok := q.inflight[job.ID]; ok {
		return ErrDuplicateJob
	}
	if q.capacity > 0 && q.ready.Len() >= q.capacity {
		return ErrQueueFull
	}

	q.seq++
	key := readyKey(job, q.seq)
	q.ready.Set(key, job)
	q.keys[job.ID] = key
	q.signal()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Job{}, ErrQueueClosed
		}

		wait := idlePoll
		key, job, ok := q.ready.Min()
		if ok {
			until := time.Until(job.ReadyAt)
			if until <= 0 {
				q.ready.Delete(key)
				delete(q.keys, job.ID)
				q.inflight[job.ID] = job
				if q.ready.Len() > 0 {
					q.signal()
				}
				q.mu.Unlock()
				return job, nil
			}
			if until < wait {
				wait = until
			}
		}
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Job{}, ctx.Err()
		case <-q.done:
			timer.Stop()
			return Job{}, ErrQueueClosed
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[id]; !ok {
		return ErrJobNotFound
	}
	delete(q.inflight, id)
	return nil
}

func (q *MemoryQueue) Pending(ctx context.Context) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]Job, 0, q.ready.Len()+len(q.inflight))
	q.ready.Scan(func(_ string, job Job) bool {
		jobs = append(jobs, job)
		return true
	})
	for _, job := range q.inflight {
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len()
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// signal wakes one waiting consumer; caller holds mu
func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
