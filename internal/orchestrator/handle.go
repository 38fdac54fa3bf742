package orchestrator

import (
	"context"
	"sync"
)

// handleState tracks a StreamHandle through its lifecycle.
type handleState int

const (
	// handlePending: created, no data received yet.
	handlePending handleState = iota

	// handleStreaming: at least one data event has been delivered.
	handleStreaming

	// handleSettled: terminal. Exactly one of result/err is meaningful and no
	// further data events are delivered.
	handleSettled
)

// StreamHandle is the event-based façade over one in-flight completion,
// returned by Execute when the caller supplied neither a progress callback
// nor a context. Callers attach listeners and may abort; the handle settles
// exactly once.
//
// The handle is a small explicit state machine (pending → streaming →
// settled). All events flow through one internal sink under the handle's
// lock, which makes the terminal invariant (no OnData delivery after
// settlement) structural rather than an accident of call order.
//
// A completion failure is observable only through OnError listeners; callers
// that never attach one silently miss the error. That asymmetry is the
// contract of this consumption style, preserved for callers written against
// it.
type StreamHandle struct {
	mu    sync.Mutex
	state handleState

	dataFns  []func(delta, accumulated string)
	endFns   []func(text string)
	errorFns []func(err error)

	result string
	err    error

	cancel context.CancelFunc
}

// newStreamHandle creates a pending handle whose Abort triggers cancel.
func newStreamHandle(cancel context.CancelFunc) *StreamHandle {
	return &StreamHandle{cancel: cancel}
}

// OnData registers a listener for incremental output. Returns the handle for
// chaining. Listeners registered after settlement never fire.
func (h *StreamHandle) OnData(fn func(delta, accumulated string)) *StreamHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != handleSettled {
		h.dataFns = append(h.dataFns, fn)
	}
	return h
}

// OnEnd registers a listener for successful settlement. If the handle has
// already settled successfully, fn fires synchronously with the final text.
func (h *StreamHandle) OnEnd(fn func(text string)) *StreamHandle {
	h.mu.Lock()
	if h.state == handleSettled {
		err, result := h.err, h.result
		h.mu.Unlock()
		if err == nil {
			fn(result)
		}
		return h
	}
	h.endFns = append(h.endFns, fn)
	h.mu.Unlock()
	return h
}

// OnError registers a listener for failed settlement. If the handle has
// already settled with an error, fn fires synchronously with it.
func (h *StreamHandle) OnError(fn func(err error)) *StreamHandle {
	h.mu.Lock()
	if h.state == handleSettled {
		err := h.err
		h.mu.Unlock()
		if err != nil {
			fn(err)
		}
		return h
	}
	h.errorFns = append(h.errorFns, fn)
	h.mu.Unlock()
	return h
}

// Abort requests cooperative cancellation of the underlying completion. The
// handle subsequently settles through OnError with the cancellation sentinel.
// Abort after settlement is a no-op.
func (h *StreamHandle) Abort() {
	h.mu.Lock()
	cancel := h.cancel
	settled := h.state == handleSettled
	h.mu.Unlock()
	if !settled && cancel != nil {
		cancel()
	}
}

// emitData fans one data event out to the registered listeners. Events
// arriving after settlement are dropped.
func (h *StreamHandle) emitData(delta, accumulated string) {
	h.mu.Lock()
	if h.state == handleSettled {
		h.mu.Unlock()
		return
	}
	h.state = handleStreaming
	fns := append(([]func(delta, accumulated string))(nil), h.dataFns...)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(delta, accumulated)
	}
}

// finish settles the handle successfully and fans out to OnEnd listeners.
// Only the first settlement wins.
func (h *StreamHandle) finish(text string) {
	h.mu.Lock()
	if h.state == handleSettled {
		h.mu.Unlock()
		return
	}
	h.state = handleSettled
	h.result = text
	fns := h.endFns
	h.dataFns, h.endFns, h.errorFns = nil, nil, nil
	h.mu.Unlock()

	for _, fn := range fns {
		fn(text)
	}
}

// fail settles the handle with err and fans out to OnError listeners. Only
// the first settlement wins.
func (h *StreamHandle) fail(err error) {
	h.mu.Lock()
	if h.state == handleSettled {
		h.mu.Unlock()
		return
	}
	h.state = handleSettled
	h.err = err
	fns := h.errorFns
	h.dataFns, h.endFns, h.errorFns = nil, nil, nil
	h.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}

// settled reports whether the handle has reached its terminal state, and the
// terminal error if any. Used by tests.
func (h *StreamHandle) settled() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == handleSettled, h.err
}
