// Package remote defines the document store that acts as the system of
// record. Collections are slash-separated paths: "users", "families" and
// the per-family subcollection "families/{id}/events".
package remote

import (
	"context"
	"errors"
	"strings"
)

// Collection names
const (
	UsersCollection    = "users"
	FamiliesCollection = "families"
	eventsSegment      = "events"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("remote store unavailable")
)

// EventsCollection returns the path of a family's event subcollection
func EventsCollection(familyID string) string {
	return FamiliesCollection + "/" + familyID + "/" + eventsSegment
}

// ParentFamily returns the family id of an events subcollection path, or ""
// when the path names a top-level collection.
func ParentFamily(collection string) string {
	parts := strings.Split(collection, "/")
	if len(parts) == 3 && parts[0] == FamiliesCollection && parts[2] == eventsSegment {
		return parts[1]
	}
	return ""
}

// Document is a fetched document
type Document interface {
	ID() string
	DataTo(dst any) error
}

// Listener is a running collection listener
type Listener interface {
	// Stop ends the listener. It is safe to call more than once.
	Stop()
}

// SnapshotFunc receives the full contents of a collection after every change
type SnapshotFunc func(docs []Document)

// ErrorFunc receives the error that terminated a listener. No further
// snapshots follow it.
type ErrorFunc func(err error)

// Store is a remote document store.
//
// Listen delivers an initial snapshot followed by one per change. Callbacks
// run on a goroutine owned by the store and are never invoked from inside
// Listen itself.
type Store interface {
	NewDocumentID(collection string) string
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, data any) error
	Delete(ctx context.Context, collection, id string) error
	Listen(ctx context.Context, collection string, onSnapshot SnapshotFunc, onError ErrorFunc) (Listener, error)
	Close() error
}

// Pinger is implemented by stores that can report their connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// ListenerFunc adapts a stop function to a Listener
type ListenerFunc func()

// Stop calls f
func (f ListenerFunc) Stop() { f() }
