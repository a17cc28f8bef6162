package storage

import (
	"sync"

	"github.com/yourname/focustracker/internal"
)

// Subscription is a cancellable handle on a change feed. The producer side
// (a storage backend) publishes events into it; the consumer drains Events
// until it calls Close. Close releases the backend listener exactly once.
type Subscription struct {
	events  chan internal.AchievementProgressEvent
	errs    chan error
	done    chan struct{}
	once    sync.Once
	closeFn func()
}

func NewSubscription(buffer int, closeFn func()) *Subscription {
	return &Subscription{
		events:  make(chan internal.AchievementProgressEvent, buffer),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
}

func (s *Subscription) Events() <-chan internal.AchievementProgressEvent { return s.events }

// Errs delivers at most one feed failure; after that the subscription is
// dead and must be Closed and re-established by the consumer.
func (s *Subscription) Errs() <-chan error { return s.errs }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Publish delivers an event without blocking the producer: if the consumer
// is not keeping up the event is dropped. Delivery is best-effort.
func (s *Subscription) Publish(ev internal.AchievementProgressEvent) {
	select {
	case <-s.done:
	case s.events <- ev:
	default:
	}
}

func (s *Subscription) Fail(err error) {
	select {
	case <-s.done:
	case s.errs <- err:
	default:
	}
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
		close(s.done)
	})
}
