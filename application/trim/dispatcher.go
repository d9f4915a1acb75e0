package trim

import (
	"sync"

	"clipmux/domain/video"

	"github.com/rs/zerolog"
)

type delivery struct {
	reporter video.ProgressReporter
	event    video.ProgressEvent
	// fn runs in place of a report, after everything queued before it
	fn func()
}

// Dispatcher delivers progress events to reporters on a single goroutine,
// in the order they were posted. Posting never blocks the copy loop.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []delivery
	closed bool
	wake   chan struct{}
	done   chan struct{}
	logger zerolog.Logger
}

// NewDispatcher starts the delivery goroutine
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go d.loop()
	return d
}

// Post queues event for reporter. A nil reporter drops the event.
func (d *Dispatcher) Post(reporter video.ProgressReporter, event video.ProgressEvent) {
	if reporter == nil {
		return
	}
	d.enqueue(delivery{reporter: reporter, event: event})
}

// After runs fn on the delivery goroutine once everything posted so far has
// been delivered.
func (d *Dispatcher) After(fn func()) {
	d.enqueue(delivery{fn: fn})
}

func (d *Dispatcher) enqueue(item delivery) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		if item.fn != nil {
			item.fn()
		}
		return
	}
	d.queue = append(d.queue, item)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close delivers what is queued and stops the goroutine
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for range d.wake {
		for {
			d.mu.Lock()
			batch := d.queue
			d.queue = nil
			closed := d.closed
			d.mu.Unlock()

			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}

			for _, item := range batch {
				d.deliver(item)
			}
		}
	}
}

func (d *Dispatcher) deliver(item delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("progress reporter panicked")
		}
	}()

	if item.fn != nil {
		item.fn()
		return
	}
	item.reporter.Report(item.event)
}
