package guda

import (
	"sync"
	"time"
)

// Event marks a point in a stream's execution, like cudaEvent_t. Recording
// an event captures the time at which all work queued before it on the
// stream has finished.
type Event struct {
	ctx *Context

	mu   sync.Mutex
	at   time.Time
	done chan struct{}
}

// CreateEvent creates an unrecorded event
func (ctx *Context) CreateEvent() *Event {
	return &Event{ctx: ctx}
}

// Record enqueues the event on the stream. A nil stream selects the
// context's default stream. Recording again replaces the previous mark.
func (e *Event) Record(stream *Stream) error {
	if e.ctx.destroyed.Load() {
		return ErrContextDestroyed
	}
	if stream == nil {
		stream = e.ctx.defaultStream
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.done = done
	e.mu.Unlock()

	stream.Submit(func() error {
		e.mu.Lock()
		e.at = time.Now()
		e.mu.Unlock()
		close(done)
		return nil
	})
	return nil
}

// Synchronize waits until the event has been reached by its stream
func (e *Event) Synchronize() error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return NewInvalidArgError("EventSynchronize", "event has not been recorded")
	}
	<-done
	return nil
}

// Time returns the moment the event was reached, waiting for it if needed
func (e *Event) Time() (time.Time, error) {
	if err := e.Synchronize(); err != nil {
		return time.Time{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.at, nil
}

// ElapsedTime returns the time between two recorded events, waiting for
// both to complete.
func ElapsedTime(start, stop *Event) (time.Duration, error) {
	t0, err := start.Time()
	if err != nil {
		return 0, err
	}
	t1, err := stop.Time()
	if err != nil {
		return 0, err
	}
	return t1.Sub(t0), nil
}
