package scanner

import (
	"context"
	"sync"
	"time"
)

// Driver is what a Loop feeds: something that classifies keys and owns the
// timers. Bind adapts a bare Classifier.
type Driver interface {
	HandleKey(ctx context.Context, ev KeyEvent)
	Tick(ctx context.Context, now time.Time)
	NextDeadline() (time.Time, bool)
}

// Loop serializes key events and timer expiries for one Driver on a single
// goroutine, so classification never runs concurrently.
type Loop struct {
	driver Driver
	keys   chan queued
	now    func() time.Time
}

// queued is a key, or a barrier when done is set.
type queued struct {
	ev   KeyEvent
	done chan struct{}
}

func NewLoop(driver Driver, queue int) *Loop {
	if queue < 1 {
		queue = 64
	}
	return &Loop{driver: driver, keys: make(chan queued, queue), now: time.Now}
}

// Send queues a key. Events keep their arrival order; a zero timestamp is
// stamped with the time Send was called.
func (l *Loop) Send(ctx context.Context, ev KeyEvent) error {
	if ev.At.IsZero() {
		ev.At = l.now()
	}
	select {
	case l.keys <- queued{ev: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until every key sent before it has been handled. It does not
// wait for timers that are still armed.
func (l *Loop) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case l.keys <- queued{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		l.arm(timer)
		select {
		case q := <-l.keys:
			if q.done != nil {
				close(q.done)
				continue
			}
			l.driver.HandleKey(ctx, q.ev)
		case <-timer.C:
			l.driver.Tick(ctx, l.now())
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) arm(timer *time.Timer) {
	deadline, ok := l.driver.NextDeadline()
	if !ok {
		timer.Stop()
		return
	}
	timer.Reset(max(deadline.Sub(l.now()), 0))
}

// Bind wraps a Classifier as a Driver that hands every event to handler.
// The classifier must not be used elsewhere while bound.
func Bind(c *Classifier, handler func(Event)) Driver {
	return &boundClassifier{classifier: c, handler: handler}
}

type boundClassifier struct {
	mu         sync.Mutex
	classifier *Classifier
	handler    func(Event)
}

func (b *boundClassifier) HandleKey(_ context.Context, ev KeyEvent) {
	b.mu.Lock()
	events := b.classifier.HandleKey(ev)
	b.mu.Unlock()
	b.dispatch(events)
}

func (b *boundClassifier) Tick(_ context.Context, now time.Time) {
	b.mu.Lock()
	events := b.classifier.Tick(now)
	b.mu.Unlock()
	b.dispatch(events)
}

func (b *boundClassifier) NextDeadline() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.classifier.NextDeadline()
}

func (b *boundClassifier) dispatch(events []Event) {
	if b.handler == nil {
		return
	}
	for _, ev := range events {
		b.handler(ev)
	}
}
