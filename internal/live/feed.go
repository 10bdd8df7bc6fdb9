package live

import (
	"context"
	"errors"
	"sync"

	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/store"

	"go.uber.org/zap"
)

var (
	ErrUnknownStatus  = errors.New("unknown visit status")
	ErrNotifierClosed = errors.New("change notifier closed")
)

// Feed delivers the full current record set for a status, once on
// subscription and again after every change. The returned cancel func ends
// the subscription and closes the channel.
type Feed interface {
	Subscribe(ctx context.Context, status string) (<-chan []models.Visit, func(), error)
}

type Snapshotter interface {
	ListVisits(ctx context.Context, filter store.VisitFilter) ([]models.Visit, error)
}

// Notifier reports which status had a visit written. An empty status means
// any status may have changed.
type Notifier interface {
	Watch(ctx context.Context) (<-chan string, error)
}

type subscription struct {
	status string
	signal chan struct{}
}

// SignalFeed re-reads a status from the store whenever the notifier says it
// changed. Bursts of signals collapse into one read.
type SignalFeed struct {
	snapshots Snapshotter
	notifier  Notifier
	logger    *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
}

func NewSignalFeed(snapshots Snapshotter, notifier Notifier, logger *zap.Logger) *SignalFeed {
	return &SignalFeed{
		snapshots: snapshots,
		notifier:  notifier,
		logger:    logger,
		subs:      make(map[int]*subscription),
	}
}

// Run forwards change signals to subscribers until ctx is done. A notifier
// that stops while ctx is still live gives ErrNotifierClosed.
func (f *SignalFeed) Run(ctx context.Context) error {
	changes, err := f.notifier.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case status, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrNotifierClosed
			}
			f.Signal(status)
		}
	}
}

// Signal marks a status as changed. An empty status marks every status.
func (f *SignalFeed) Signal(status string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if status != "" && sub.status != status {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

func (f *SignalFeed) Subscribe(ctx context.Context, status string) (<-chan []models.Visit, func(), error) {
	if !models.ValidStatus(status) {
		return nil, nil, ErrUnknownStatus
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{status: status, signal: make(chan struct{}, 1)}
	sub.signal <- struct{}{}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	out := make(chan []models.Visit, 1)
	go func() {
		defer close(out)
		defer f.unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.signal:
			}
			visits, err := f.snapshots.ListVisits(ctx, store.VisitFilter{Statuses: []string{status}})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				f.logger.Warn("live snapshot failed", zap.String("status", status), zap.Error(err))
				continue
			}
			select {
			case <-out:
			default:
			}
			select {
			case out <- visits:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

func (f *SignalFeed) unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

// Subscribers reports the number of open subscriptions.
func (f *SignalFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
