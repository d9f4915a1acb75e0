package trim

import (
	"sync"
	"testing"
	"time"

	"clipmux/domain/video"

	"github.com/rs/zerolog"
)

func TestDispatcher_DeliversInOrder(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	reporter := &collectingReporter{}

	for i := 0; i < 500; i++ {
		d.Post(reporter, video.ProgressEvent{Progress: float64(i) / 500})
	}
	d.Close()

	events := reporter.snapshot()
	if len(events) != 500 {
		t.Fatalf("delivered %d events, want 500", len(events))
	}
	for i, ev := range events {
		if want := float64(i) / 500; ev.Progress != want {
			t.Fatalf("event %d progress = %v, want %v", i, ev.Progress, want)
		}
	}
}

func TestDispatcher_AfterRunsOnceQueueIsDelivered(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	defer d.Close()

	reporter := &collectingReporter{}
	for i := 0; i < 10; i++ {
		d.Post(reporter, video.ProgressEvent{})
	}

	seen := make(chan int, 1)
	d.After(func() { seen <- len(reporter.snapshot()) })

	select {
	case n := <-seen:
		if n != 10 {
			t.Errorf("After ran with %d events delivered, want 10", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("After callback never ran")
	}
}

func TestDispatcher_NilReporterIsIgnored(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	d.Post(nil, video.ProgressEvent{Progress: 1})
	d.Close()
}

func TestDispatcher_ReporterPanicDoesNotStopDelivery(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())

	var once sync.Once
	panicking := video.ReporterFunc(func(video.ProgressEvent) {
		once.Do(func() { panic("reporter bug") })
	})
	reporter := &collectingReporter{}

	d.Post(panicking, video.ProgressEvent{})
	d.Post(reporter, video.ProgressEvent{Progress: 0.5})
	d.Close()

	if got := len(reporter.snapshot()); got != 1 {
		t.Errorf("delivered %d events after a panic, want 1", got)
	}
}

func TestDispatcher_AfterClose(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	d.Close()
	d.Close()

	ran := false
	d.After(func() { ran = true })
	if !ran {
		t.Error("After should run inline once the dispatcher is closed")
	}

	reporter := &collectingReporter{}
	d.Post(reporter, video.ProgressEvent{})
	if got := len(reporter.snapshot()); got != 0 {
		t.Errorf("closed dispatcher delivered %d events", got)
	}
}
