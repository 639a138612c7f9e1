// Package runner implements the bounded worker pool that runs workflow
// stages. It owns the RunRecord set exclusively: every other component
// only learns about active runs by asking the pool.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/exampleorg/boardrunner/internal/label"
)

// RunKey identifies one item's run slot. An item can have at most one
// active run at a time regardless of stage (invariant: at most one
// running label per item).
type RunKey struct {
	Repo     string
	TicketID int
}

// Outcome is how a dispatched run terminated.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Cancelled
)

// RunRecord tracks one active run. The pool is its only writer.
type RunRecord struct {
	Key       RunKey
	Stage     label.Stage
	StartedAt time.Time
	Cancel    context.CancelFunc
}

// Pool is a bounded-concurrency worker pool keyed by RunKey. Not safe to
// copy; share by pointer.
type Pool struct {
	maxConcurrent int

	mu      sync.Mutex
	records map[RunKey]*RunRecord
	wg      sync.WaitGroup
}

// New returns a Pool that allows at most maxConcurrent simultaneous runs.
func New(maxConcurrent int) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Pool{maxConcurrent: maxConcurrent, records: make(map[RunKey]*RunRecord)}
}

// TryDispatch starts work for key/stage in its own goroutine if the item
// has no active run and the pool has spare capacity. It returns false
// without starting anything otherwise. work is given a context cancelled
// either by Cancel (stall sweep) or by parent's own cancellation; its
// return value is the outcome passed to onTerminate, which always runs
// exactly once. The record stays in the pool until onTerminate returns,
// so the item cannot be re-dispatched while its termination labels are
// still being applied.
func (p *Pool) TryDispatch(parent context.Context, key RunKey, stage label.Stage, work func(ctx context.Context) Outcome, onTerminate func(RunRecord, Outcome)) bool {
	p.mu.Lock()
	if _, exists := p.records[key]; exists {
		p.mu.Unlock()
		return false
	}
	if len(p.records) >= p.maxConcurrent {
		p.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	rec := &RunRecord{Key: key, Stage: stage, StartedAt: time.Now(), Cancel: cancel}
	p.records[key] = rec
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		outcome := work(ctx)
		cancel()

		if onTerminate != nil {
			onTerminate(*rec, outcome)
		}

		p.mu.Lock()
		delete(p.records, key)
		p.mu.Unlock()
	}()
	return true
}

// Wait blocks until every dispatched run has terminated and executed
// its callback. Called during shutdown, after the runs' contexts have
// been cancelled; how long this blocks is up to the workflows'
// cooperation with cancellation.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// HasActiveRun reports whether key currently has a run in flight, the
// input TriggerPolicy needs to tell a fresh claim from a stale one.
func (p *Pool) HasActiveRun(key RunKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.records[key]
	return ok
}

// Size reports the current number of active runs.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// SweepStale cancels every run older than threshold and returns their
// keys, so the caller can log what it stalled. It does not remove them
// from the pool directly — that happens naturally when work() observes
// ctx.Done() and returns, same as any other cancellation.
func (p *Pool) SweepStale(threshold time.Duration) []RunKey {
	now := time.Now()
	p.mu.Lock()
	var stale []*RunRecord
	for _, rec := range p.records {
		if now.Sub(rec.StartedAt) > threshold {
			stale = append(stale, rec)
		}
	}
	p.mu.Unlock()

	keys := make([]RunKey, 0, len(stale))
	for _, rec := range stale {
		rec.Cancel()
		keys = append(keys, rec.Key)
	}
	return keys
}
