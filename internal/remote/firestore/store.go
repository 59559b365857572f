// Package firestore implements remote.Store on Google Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"famsync/internal/remote"
)

const datastoreScope = "https://www.googleapis.com/auth/datastore"

// Store is a Firestore-backed remote.Store
type Store struct {
	client *firestore.Client
	log    *zap.Logger
}

// New connects to Firestore. With a blank credentialsFile the application
// default credentials (or FIRESTORE_EMULATOR_HOST) are used.
func New(ctx context.Context, projectID, credentialsFile string, logger *zap.Logger) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("firestore project id is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read firestore credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, datastoreScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse firestore credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &Store{client: client, log: logger}, nil
}

type document struct {
	snap *firestore.DocumentSnapshot
}

func (d document) ID() string { return d.snap.Ref.ID }

func (d document) DataTo(dst any) error {
	return d.snap.DataTo(dst)
}

// NewDocumentID allocates an auto-id without writing anything
func (s *Store) NewDocumentID(collection string) string {
	return s.client.Collection(collection).NewDoc().ID
}

// Get fetches one document
func (s *Store) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return document{snap: snap}, nil
}

// Set overwrites a document
func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return mapError(err)
	}
	return nil
}

// Delete removes a document. Firestore treats missing documents as deleted.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// Listen follows a collection with a query snapshot iterator
func (s *Store) Listen(ctx context.Context, collection string, onSnapshot remote.SnapshotFunc, onError remote.ErrorFunc) (remote.Listener, error) {
	lctx, cancel := context.WithCancel(ctx)
	it := s.client.Collection(collection).Snapshots(lctx)

	go func() {
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if lctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				s.log.Warn("firestore listener failed",
					zap.String("collection", collection), zap.Error(err))
				onError(mapError(err))
				return
			}

			snaps, err := qs.Documents.GetAll()
			if err != nil {
				if lctx.Err() != nil {
					return
				}
				onError(mapError(err))
				return
			}

			docs := make([]remote.Document, 0, len(snaps))
			for _, snap := range snaps {
				docs = append(docs, document{snap: snap})
			}
			if lctx.Err() != nil {
				return
			}
			onSnapshot(docs)
		}
	}()

	return remote.ListenerFunc(cancel), nil
}

// Close releases the client
func (s *Store) Close() error {
	return s.client.Close()
}

// mapError translates gRPC status codes onto the remote sentinels
func mapError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", remote.ErrNotFound, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", remote.ErrPermissionDenied, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	default:
		return err
	}
}
