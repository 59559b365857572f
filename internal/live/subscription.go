package live

import (
	"sync"

	"famsync/internal/models"
)

// Snapshot is the full event list of a family at one moment
type Snapshot struct {
	FamilyID string         `json:"familyId"`
	Events   []models.Event `json:"events"`
}

// Subscription receives the snapshots of one family.
//
// Delivery conflates: a subscriber that falls behind sees only the newest
// snapshot. C is closed when the subscription ends, either by Cancel or by a
// listener failure reported through Err.
type Subscription struct {
	familyID string

	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
	err    error

	detach     func()
	stopCtx    func() bool
	cancelOnce sync.Once
}

func newSubscription(familyID string) *Subscription {
	return &Subscription{
		familyID: familyID,
		ch:       make(chan Snapshot, 1),
	}
}

// FamilyID returns the family this subscription follows
func (s *Subscription) FamilyID() string {
	return s.familyID
}

// C returns the channel snapshots arrive on
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Err returns the listener error that ended the subscription, or nil
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel detaches the subscriber. Once it returns no further snapshot is
// delivered and C is closed. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.close(nil)
		s.releaseContext()
		if s.detach != nil {
			s.detach()
		}
	})
}

// bindContext arranges for Cancel to run when the context is done
func (s *Subscription) bindContext(stop func() bool) {
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.stopCtx = stop
	}
	s.mu.Unlock()

	if closed {
		stop()
	}
}

func (s *Subscription) releaseContext() {
	s.mu.Lock()
	stop := s.stopCtx
	s.stopCtx = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// terminate ends the subscription because its listener failed
func (s *Subscription) terminate(err error) {
	s.close(err)
	s.releaseContext()
}

// push replaces any undelivered snapshot with snap
func (s *Subscription) push(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

// close ends the subscription, dropping any undelivered snapshot
func (s *Subscription) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	select {
	case <-s.ch:
	default:
	}
	close(s.ch)
}
