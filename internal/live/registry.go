// Package live fans remote event listeners out to subscribers. Each family
// has at most one remote listener, shared by all of its subscribers and
// stopped when the last one cancels.
package live

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"famsync/internal/models"
)

// ErrClosed ends subscriptions still open when the registry shuts down
var ErrClosed = errors.New("live registry closed")

// Source opens the remote listener for one family. Callbacks must not be
// invoked from inside Listen.
type Source interface {
	Listen(familyID string, onSnapshot func([]models.Event), onError func(error)) (stop func(), err error)
}

// Registry tracks one feed per followed family
type Registry struct {
	source Source
	log    *zap.Logger

	mu     sync.Mutex
	feeds  map[string]*feed
	nextID uint64
}

type feed struct {
	familyID string
	stop     func()
	subs     map[uint64]*Subscription
	latest   *Snapshot
}

// NewRegistry creates a registry reading from source
func NewRegistry(source Source, logger *zap.Logger) *Registry {
	return &Registry{
		source: source,
		log:    logger,
		feeds:  make(map[string]*feed),
	}
}

// Subscribe follows a family. The first subscriber opens the remote
// listener; later ones share it and immediately receive the latest snapshot
// when one exists. Cancelling ctx is equivalent to calling Cancel.
func (r *Registry) Subscribe(ctx context.Context, familyID string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	f, ok := r.feeds[familyID]
	if !ok {
		f = &feed{familyID: familyID, subs: make(map[uint64]*Subscription)}
		stop, err := r.source.Listen(familyID,
			func(events []models.Event) { r.publish(f, events) },
			func(err error) { r.fail(f, err) },
		)
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("failed to listen for family %s: %w", familyID, err)
		}
		f.stop = stop
		r.feeds[familyID] = f
		r.log.Debug("family listener opened", zap.String("family_id", familyID))
	}

	r.nextID++
	id := r.nextID
	sub := newSubscription(familyID)
	sub.detach = func() { r.detach(f, id) }
	f.subs[id] = sub
	if f.latest != nil {
		sub.push(cloneSnapshot(*f.latest))
	}
	r.mu.Unlock()

	sub.bindContext(context.AfterFunc(ctx, sub.Cancel))
	return sub, nil
}

func (r *Registry) publish(f *feed, events []models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.feeds[f.familyID] != f {
		return
	}
	snap := Snapshot{FamilyID: f.familyID, Events: events}
	f.latest = &snap
	for _, sub := range f.subs {
		sub.push(cloneSnapshot(snap))
	}
}

// fail terminates every subscriber of the feed. No retry is attempted; the
// next Subscribe opens a fresh listener.
func (r *Registry) fail(f *feed, err error) {
	r.mu.Lock()
	if r.feeds[f.familyID] == f {
		delete(r.feeds, f.familyID)
	}
	subs := f.subs
	f.subs = make(map[uint64]*Subscription)
	stop := f.stop
	r.mu.Unlock()

	r.log.Warn("family listener failed",
		zap.String("family_id", f.familyID),
		zap.Int("subscribers", len(subs)),
		zap.Error(err))

	for _, sub := range subs {
		sub.terminate(err)
	}
	if stop != nil {
		stop()
	}
}

func (r *Registry) detach(f *feed, id uint64) {
	r.mu.Lock()
	delete(f.subs, id)
	var stop func()
	if len(f.subs) == 0 && r.feeds[f.familyID] == f {
		delete(r.feeds, f.familyID)
		stop = f.stop
	}
	r.mu.Unlock()

	if stop != nil {
		stop()
		r.log.Debug("family listener closed", zap.String("family_id", f.familyID))
	}
}

// Close ends every subscription with ErrClosed and stops all listeners
func (r *Registry) Close() {
	r.mu.Lock()
	feeds := r.feeds
	r.feeds = make(map[string]*feed)
	r.mu.Unlock()

	for _, f := range feeds {
		r.mu.Lock()
		subs := f.subs
		f.subs = make(map[uint64]*Subscription)
		r.mu.Unlock()

		for _, sub := range subs {
			sub.terminate(ErrClosed)
		}
		if f.stop != nil {
			f.stop()
		}
	}
}

// Feeds returns the number of open remote listeners
func (r *Registry) Feeds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}

// Subscribers returns the number of subscribers following familyID
func (r *Registry) Subscribers(familyID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.feeds[familyID]; ok {
		return len(f.subs)
	}
	return 0
}

func cloneSnapshot(s Snapshot) Snapshot {
	events := make([]models.Event, len(s.Events))
	for i, e := range s.Events {
		e.Participants = slices.Clone(e.Participants)
		events[i] = e
	}
	return Snapshot{FamilyID: s.FamilyID, Events: events}
}
