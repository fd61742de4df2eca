package scoring

import (
	"context"
	"sync"

	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/telemetry"
)

// MatchContext owns one match's state. All mutations are serialized
// through an inbox channel drained by a single goroutine, so commands
// for the same match never race and no field needs a mutex.
//
// The inbox is never closed: other goroutines may hold this handle and
// be mid-send inside Do when shutdown starts. Close signals the loop
// through a separate channel instead, and a task that slips in after
// the drain is reported as Transient.
type MatchContext struct {
	MatchID string

	st      *State
	inbox   chan task
	closing chan struct{}
	stopped chan struct{}
	once    sync.Once
}

type task struct {
	fn   func(st *State) error
	done chan error
}

func newMatchContext(matchID string, st *State) *MatchContext {
	mc := &MatchContext{
		MatchID: matchID,
		st:      st,
		inbox:   make(chan task, 64),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go mc.run()
	return mc
}

// run is the match's event loop. Every closure sent via Do executes
// here, one at a time. On shutdown it drains whatever was already
// queued, then exits.
func (mc *MatchContext) run() {
	defer close(mc.stopped)
	for {
		select {
		case t := <-mc.inbox:
			t.done <- t.fn(mc.st)
		case <-mc.closing:
			for {
				select {
				case t := <-mc.inbox:
					t.done <- t.fn(mc.st)
				default:
					return
				}
			}
		}
	}
}

// Do runs fn on the match's goroutine and waits for its result. A full
// inbox or an expired context reads as Transient: the caller can retry
// without wondering whether the command half-ran, because fn only
// starts once it is dequeued.
func (mc *MatchContext) Do(ctx context.Context, fn func(st *State) error) error {
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case mc.inbox <- t:
	case <-ctx.Done():
		telemetry.Metrics.InboxOverflows.Inc()
		return domain.Wrap(domain.ErrTransient, ctx.Err(),
			"match %s command queue is saturated", mc.MatchID)
	case <-mc.stopped:
		return domain.E(domain.ErrTransient, "match %s context is shutting down", mc.MatchID)
	}
	select {
	case err := <-t.done:
		return err
	case <-mc.stopped:
		// The drain may have run fn just before the loop exited.
		select {
		case err := <-t.done:
			return err
		default:
		}
		return domain.E(domain.ErrTransient, "match %s context is shutting down", mc.MatchID)
	case <-ctx.Done():
		// The command may still complete; the caller must treat a
		// timeout as unknown-outcome and re-read.
		return domain.Wrap(domain.ErrTransient, ctx.Err(),
			"command timed out on match %s", mc.MatchID)
	}
}

// Close shuts down the match goroutine after draining queued commands.
// Safe to call more than once and concurrently with Do.
func (mc *MatchContext) Close() {
	mc.once.Do(func() { close(mc.closing) })
	<-mc.stopped
}
