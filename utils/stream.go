package utils

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	goutils "go.viam.com/utils"
)

// StreamConfig describes a Stream.
type StreamConfig[T any] struct {
	Clock  clock.Clock
	Period time.Duration
	// QueueSize bounds the items waiting for a consumer. Values below one mean one.
	QueueSize int
	// Produce makes the item of a tick. elapsed is measured from the start of the stream.
	Produce func(tick uint64, elapsed time.Duration) T
	// Evicted, if set, sees every item pushed out of a full queue. It runs on the producer
	// goroutine, before Release.
	Evicted func(item T)
	// Release, if set, disposes of items no consumer will receive.
	Release func(item T)
}

// Stream produces one item per clock tick on its own goroutine and queues it for consumers.
// When they fall behind, the oldest queued items are dropped.
type Stream[T any] struct {
	cfg      StreamConfig[T]
	items    chan T
	stopped  chan struct{}
	cancel   context.CancelFunc
	producer sync.WaitGroup
	stopOnce sync.Once
}

// NewStream starts a stream. Its ticker exists when NewStream returns, so a mock clock can be
// advanced right away.
func NewStream[T any](cfg StreamConfig[T]) *Stream[T] {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream[T]{
		cfg:     cfg,
		items:   make(chan T, cfg.QueueSize),
		stopped: make(chan struct{}),
		cancel:  cancel,
	}
	ticker := cfg.Clock.Ticker(cfg.Period)
	start := cfg.Clock.Now()
	s.producer.Add(1)
	goutils.PanicCapturingGo(func() {
		defer s.producer.Done()
		defer ticker.Stop()
		for tick := uint64(0); ; tick++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			s.push(cfg.Produce(tick, cfg.Clock.Since(start)))
		}
	})
	return s
}

// push queues item, evicting the oldest one when the queue is full. Consumers only take items
// out, so one eviction makes room unless Stop is draining.
func (s *Stream[T]) push(item T) {
	select {
	case s.items <- item:
		return
	default:
	}
	select {
	case old := <-s.items:
		if s.cfg.Evicted != nil {
			s.cfg.Evicted(old)
		}
		s.release(old)
	default:
	}
	select {
	case s.items <- item:
	default:
		s.release(item)
	}
}

func (s *Stream[T]) release(item T) {
	if s.cfg.Release != nil {
		s.cfg.Release(item)
	}
}

// Items is the queue consumers receive from.
func (s *Stream[T]) Items() <-chan T {
	return s.items
}

// Stopped is closed by Stop.
func (s *Stream[T]) Stopped() <-chan struct{} {
	return s.stopped
}

// Stop wakes blocked consumers, waits for the producer to return and releases what is still
// queued. It is safe to call more than once.
func (s *Stream[T]) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.cancel()
		s.producer.Wait()
		for {
			select {
			case item := <-s.items:
				s.release(item)
			default:
				return
			}
		}
	})
}
