package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
)

var (
	readyPrefix    = []byte("ready:")
	inflightPrefix = []byte("inflight:")
	indexPrefix    = []byte("idx:")
)

// pollInterval is how often an idle consumer re-scans the store
const pollInterval = 100 * time.Millisecond

// BadgerQueue is a disk-backed Queue using BadgerDB.
//
// key layout:
//
//	ready:<readyAt>:<seq>:<id>  -> job
//	idx:<id>                    -> ready key
//	inflight:<id>               -> job
type BadgerQueue struct {
	db       *badger.DB
	capacity int

	mu     sync.Mutex
	seq    uint64
	size   int
	notify chan struct{}
	done   chan struct{}
	closed bool
}

// NewBadgerQueue opens (or creates) a queue at path
func NewBadgerQueue(path string, capacity int) (*BadgerQueue, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // disable internal logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}

	q := &BadgerQueue{
		db:       db,
		capacity: capacity,
		seq:      uint64(time.Now().UnixNano()),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(prefixOptions(readyPrefix))
		defer it.Close()
		for it.Seek(readyPrefix); it.ValidForPrefix(readyPrefix); it.Next() {
			q.size++
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("counting queued jobs: %w", err)
	}
	return q, nil
}

func prefixOptions(prefix []byte) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	return opts
}

func (q *BadgerQueue) Enqueue(ctx context.Context, job Job) error {
	job, err := normalize(job)
	if err != nil {
		return err
	}
	val, err := json.Marshal(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.capacity > 0 && q.size >= q.capacity {
		return ErrQueueFull
	}

	q.seq++
	key := append(append([]byte{}, readyPrefix...), readyKey(job, q.seq)...)
	idx := append(append([]byte{}, indexPrefix...), job.ID...)
	inflight := append(append([]byte{}, inflightPrefix...), job.ID...)

	err = q.db.Update(func(txn *badger.Txn) error {
		for _, k := range [][]byte{idx, inflight} {
			_, err := txn.Get(k)
			if err == nil {
				return ErrDuplicateJob
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Set(idx, key); err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	if err != nil {
		return err
	}

	q.size++
	q.signal()
	return nil
}

func (q *BadgerQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		job, wait, err := q.claimNext()
		if err != nil {
			return Job{}, err
		}
		if job != nil {
			return *job, nil
		}

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

// claimNext moves the earliest ready job to the in-flight set. When nothing
// is ready it returns how long to wait before looking again.
func (q *BadgerQueue) claimNext() (*Job, time.Duration, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, 0, ErrQueueClosed
	}

	var (
		claimed *Job
		wait    = pollInterval
	)
	err := q.db.Update(func(txn *badger.Txn) error {
		var (
			key []byte
			job Job
		)
		it := txn.NewIterator(prefixOptions(readyPrefix))
		it.Seek(readyPrefix)
		if it.ValidForPrefix(readyPrefix) {
			item := it.Item()
			key = item.KeyCopy(nil)
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &job) }); err != nil {
				it.Close()
				return err
			}
		}
		it.Close()

		if key == nil {
			return nil
		}
		if until := time.Until(job.ReadyAt); until > 0 {
			if until < wait {
				wait = until
			}
			return nil
		}

		val, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		if err := txn.Delete(append(append([]byte{}, indexPrefix...), job.ID...)); err != nil {
			return err
		}
		if err := txn.Set(append(append([]byte{}, inflightPrefix...), job.ID...), val); err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if claimed != nil {
		q.size--
		if q.size > 0 {
			q.signal()
		}
	}
	return claimed, wait, nil
}

// Ack removes the processed job from storage
func (q *BadgerQueue) Ack(ctx context.Context, id string) error {
	key := append(append([]byte{}, inflightPrefix...), id...)
	return q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// Recover moves every unacknowledged in-flight job back to the ready set and returns them
func (q *BadgerQueue) Recover(ctx context.Context) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var jobs []Job
	err := q.db.Update(func(txn *badger.Txn) error {
		var keys [][]byte
		it := txn.NewIterator(prefixOptions(inflightPrefix))
		for it.Seek(inflightPrefix); it.ValidForPrefix(inflightPrefix); it.Next() {
			item := it.Item()
			var job Job
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &job) }); err != nil {
				it.Close()
				return err
			}
			keys = append(keys, item.KeyCopy(nil))
			jobs = append(jobs, job)
		}
		it.Close()

		now := time.Now()
		for i := range jobs {
			jobs[i].ReadyAt = now
			val, err := json.Marshal(jobs[i])
			if err != nil {
				return err
			}
			q.seq++
			key := append(append([]byte{}, readyPrefix...), readyKey(jobs[i], q.seq)...)
			if err := txn.Delete(keys[i]); err != nil {
				return err
			}
			if err := txn.Set(append(append([]byte{}, indexPrefix...), jobs[i].ID...), key); err != nil {
				return err
			}
			if err := txn.Set(key, val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recovering in-flight jobs: %w", err)
	}

	q.size += len(jobs)
	if len(jobs) > 0 {
		q.signal()
	}
	return jobs, nil
}

// Pending returns all unacknowledged jobs, waiting ones first in delivery order
func (q *BadgerQueue) Pending(ctx context.Context) ([]Job, error) {
	jobs := make([]Job, 0)
	err := q.db.View(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{readyPrefix, inflightPrefix} {
			it := txn.NewIterator(prefixOptions(prefix))
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var job Job
				if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &job) }); err != nil {
					it.Close()
					return err
				}
				jobs = append(jobs, job)
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (q *BadgerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close closes the underlying BadgerDB
func (q *BadgerQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()
	return q.db.Close()
}

func (q *BadgerQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
