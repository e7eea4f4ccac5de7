package sink

import (
	"log/slog"
	"sync"
)

// delivery is either an event or an error.
type delivery struct {
	event Event
	err   error
}

// Queued decouples a Handler from the goroutine that produces events.
// OnEvent and OnError only enqueue; a single goroutine delivers in order.
type Queued struct {
	next   Handler
	buf    *Buffer[delivery]
	logger *slog.Logger

	once sync.Once
	done chan struct{}
}

// NewQueued wraps next and starts the delivery goroutine.
func NewQueued(next Handler, initialCapacity int, logger *slog.Logger) *Queued {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queued{
		next:   next,
		buf:    NewBuffer[delivery](initialCapacity),
		logger: logger,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queued) OnEvent(e Event) {
	if !q.buf.Send(delivery{event: e}) {
		q.logger.Debug("queued handler closed, dropping event", "sub_id", e.SubscriptionID)
	}
}

func (q *Queued) OnError(err error) {
	if !q.buf.Send(delivery{err: err}) {
		q.logger.Debug("queued handler closed, dropping error", "error", err)
	}
}

// Close stops accepting deliveries and waits until queued ones are handed
// to the wrapped handler.
func (q *Queued) Close() {
	q.once.Do(q.buf.Close)
	<-q.done
}

// Stats returns queue statistics.
func (q *Queued) Stats() BufferStats {
	return q.buf.Stats()
}

func (q *Queued) run() {
	defer close(q.done)

	for {
		d, ok := q.buf.Receive()
		if !ok {
			return
		}
		if d.err != nil {
			q.next.OnError(d.err)
			continue
		}
		q.next.OnEvent(d.event)
	}
}
