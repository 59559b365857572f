// Package memory is an in-process remote.Store used for local development
// and tests. Documents are held as JSON and ids are ULIDs, so snapshots
// come back in creation order.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"famsync/internal/remote"
)

// Store is an in-memory document store with fault injection for tests
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string][]byte
	listeners   map[string]map[*listener]struct{}

	writeErr  error
	readErr   error
	listenErr error

	writes int
	reads  int
}

// New creates an empty store
func New() *Store {
	return &Store{
		collections: make(map[string]map[string][]byte),
		listeners:   make(map[string]map[*listener]struct{}),
	}
}

type document struct {
	id   string
	data []byte
}

func (d document) ID() string { return d.id }

func (d document) DataTo(dst any) error {
	return json.Unmarshal(d.data, dst)
}

// NewDocumentID allocates a fresh document id
func (s *Store) NewDocumentID(collection string) string {
	return ulid.Make().String()
}

// Get fetches one document
func (s *Store) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	data, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return document{id: id, data: data}, nil
}

// Set overwrites a document
func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string][]byte)
		s.collections[collection] = docs
	}
	docs[id] = encoded
	s.notifyLocked(collection)
	return nil
}

// Delete removes a document. Deleting a missing document succeeds.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	if _, ok := s.collections[collection][id]; ok {
		delete(s.collections[collection], id)
		s.notifyLocked(collection)
	}
	return nil
}

// Listen starts a listener delivering full snapshots of collection
func (s *Store) Listen(ctx context.Context, collection string, onSnapshot remote.SnapshotFunc, onError remote.ErrorFunc) (remote.Listener, error) {
	s.mu.Lock()
	if s.listenErr != nil {
		err := s.listenErr
		s.mu.Unlock()
		return nil, err
	}

	l := &listener{
		store:      s,
		collection: collection,
		notify:     make(chan struct{}, 1),
		failed:     make(chan error, 1),
		stop:       make(chan struct{}),
		onSnapshot: onSnapshot,
		onError:    onError,
	}
	if s.listeners[collection] == nil {
		s.listeners[collection] = make(map[*listener]struct{})
	}
	s.listeners[collection][l] = struct{}{}
	l.notify <- struct{}{}
	s.mu.Unlock()

	stopCtx := context.AfterFunc(ctx, l.Stop)
	go func() {
		l.run()
		stopCtx()
	}()
	return l, nil
}

// Close stops every listener
func (s *Store) Close() error {
	s.mu.Lock()
	var all []*listener
	for _, ls := range s.listeners {
		for l := range ls {
			all = append(all, l)
		}
	}
	s.mu.Unlock()

	for _, l := range all {
		l.Stop()
	}
	return nil
}

// Ping reports nil; the store is always reachable
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) notifyLocked(collection string) {
	for l := range s.listeners[collection] {
		select {
		case l.notify <- struct{}{}:
		default:
		}
	}
}

func (s *Store) snapshot(collection string) []remote.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]remote.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, document{id: id, data: s.collections[collection][id]})
	}
	return docs
}

func (s *Store) removeListener(l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners[l.collection], l)
	if len(s.listeners[l.collection]) == 0 {
		delete(s.listeners, l.collection)
	}
}

type listener struct {
	store      *Store
	collection string
	notify     chan struct{}
	failed     chan error
	stop       chan struct{}
	stopOnce   sync.Once
	onSnapshot remote.SnapshotFunc
	onError    remote.ErrorFunc
}

func (l *listener) run() {
	for {
		select {
		case <-l.stop:
			return
		case err := <-l.failed:
			l.Stop()
			l.onError(err)
			return
		case <-l.notify:
		}

		docs := l.store.snapshot(l.collection)

		select {
		case <-l.stop:
			return
		default:
		}
		l.onSnapshot(docs)
	}
}

// Stop ends the listener
func (l *listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
		l.store.removeListener(l)
	})
}
