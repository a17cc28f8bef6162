package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/storage"
)

// ErrAlreadyAttached is returned when Attach is called for a different user
// while a subscription is live. The previous context must be detached first.
var ErrAlreadyAttached = errors.New("notifier already attached for another user")

// ToastSink receives one user-facing notification per qualifying event.
type ToastSink interface {
	Show(ev internal.AchievementProgressEvent)
}

// LogSink surfaces toasts through the logger. Used as the default sink and
// in tests.
type LogSink struct {
	Logger internal.Logger
}

func (s *LogSink) Show(ev internal.AchievementProgressEvent) {
	s.Logger.Infof("achievement %s: progress %d (unlocked=%v)", ev.AchievementKey, ev.Progress, ev.Unlocked)
}

const dedupLimit = 4096

// Notifier owns the long-lived achievement change-feed subscription for the
// current user context. Attach opens it, Detach releases it synchronously.
// A dropped feed is reattached with capped exponential backoff until Detach.
type Notifier struct {
	feed   storage.AchievementFeed
	sink   ToastSink
	logger internal.Logger

	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu     sync.Mutex
	userID string
	cancel context.CancelFunc
	done   chan struct{}

	// seen persists across detach/re-attach for the same user, so an event
	// redelivered from before a detach is not toasted twice. Only the
	// consumer goroutine touches it while a subscription is live.
	seen    map[string]struct{}
	seenFor string
}

func NewNotifier(feed storage.AchievementFeed, sink ToastSink, logger internal.Logger) *Notifier {
	return &Notifier{
		feed:        feed,
		sink:        sink,
		logger:      logger,
		baseBackoff: time.Second,
		maxBackoff:  30 * time.Second,
	}
}

// Attach transitions unsubscribed → subscribed for userID. Attaching again
// for the same user is a no-op; attaching for a different user without
// detaching first is an error, not an implicit switch.
func (n *Notifier) Attach(userID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel != nil {
		if n.userID == userID {
			return nil
		}
		return ErrAlreadyAttached
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	n.userID = userID
	n.cancel = cancel
	n.done = done
	if n.seenFor != userID {
		n.seenFor = userID
		n.seen = make(map[string]struct{})
	}

	go n.run(ctx, userID, done)
	return nil
}

// Detach releases the subscription and waits for the consumer loop to stop,
// so a following Attach for a different user cannot race the old listener.
// Detaching while unsubscribed is a no-op.
func (n *Notifier) Detach() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel = nil
	n.done = nil
	n.userID = ""
	n.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Attached reports whether a subscription is live, and for whom.
func (n *Notifier) Attached() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.userID, n.cancel != nil
}

func (n *Notifier) run(ctx context.Context, userID string, done chan struct{}) {
	defer close(done)

	backoff := n.baseBackoff
	seen := n.seen

	for {
		sub, err := n.feed.SubscribeAchievements(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.Warnf("achievement feed subscribe failed for %s: %v", userID, err)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, n.maxBackoff)
			continue
		}
		backoff = n.baseBackoff

		err = n.consume(ctx, sub, userID, seen)
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		n.logger.Warnf("achievement feed dropped for %s: %v", userID, err)
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, n.maxBackoff)
	}
}

func (n *Notifier) consume(ctx context.Context, sub *storage.Subscription, userID string, seen map[string]struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Errs():
			return err
		case ev := <-sub.Events():
			if ev.UserID != userID {
				continue
			}
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			if len(seen) >= dedupLimit {
				seen = resetSeen(seen)
			}
			seen[ev.ID] = struct{}{}
			n.sink.Show(ev)
		}
	}
}

// resetSeen bounds dedup memory. Redelivery of a very old event after a
// reset shows a duplicate toast, which is acceptable for this feed.
func resetSeen(seen map[string]struct{}) map[string]struct{} {
	for k := range seen {
		delete(seen, k)
	}
	return seen
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
