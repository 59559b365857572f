// Package mongostore implements remote.Store on MongoDB.
//
// Top-level collections map one to one. Event subcollections
// families/{id}/events share a single "events" collection and carry the
// family id in a _parent field. Listeners use change streams, which need a
// replica set.
package mongostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"famsync/internal/remote"
)

const (
	eventsCollection = "events"
	parentField      = "_parent"
)

// Store is a MongoDB-backed remote.Store
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

// Connect dials MongoDB and verifies the connection
func Connect(ctx context.Context, uri, database string, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", mapError(err))
	}

	return &Store{client: client, db: client.Database(database), log: logger}, nil
}

type document struct {
	id  string
	raw bson.Raw
}

func (d document) ID() string { return d.id }

func (d document) DataTo(dst any) error {
	return bson.Unmarshal(d.raw, dst)
}

// resolve maps a collection path to a mongo collection and its base filter
func (s *Store) resolve(collection string) (*mongo.Collection, bson.D) {
	if parent := remote.ParentFamily(collection); parent != "" {
		return s.db.Collection(eventsCollection), bson.D{{Key: parentField, Value: parent}}
	}
	return s.db.Collection(collection), bson.D{}
}

func withID(base bson.D, id string) bson.D {
	filter := make(bson.D, 0, len(base)+1)
	filter = append(filter, base...)
	return append(filter, bson.E{Key: "_id", Value: id})
}

// NewDocumentID allocates an ObjectID-derived id
func (s *Store) NewDocumentID(collection string) string {
	return primitive.NewObjectID().Hex()
}

// Get fetches one document
func (s *Store) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	coll, base := s.resolve(collection)
	raw, err := coll.FindOne(ctx, withID(base, id)).Raw()
	if err != nil {
		return nil, mapError(err)
	}
	return document{id: id, raw: raw}, nil
}

// Set overwrites a document
func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	encoded, err := bson.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(encoded, &doc); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	doc["_id"] = id

	coll, base := s.resolve(collection)
	for _, e := range base {
		doc[e.Key] = e.Value
	}

	_, err = coll.ReplaceOne(ctx, withID(base, id), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return mapError(err)
	}
	return nil
}

// Delete removes a document. Deleting a missing document succeeds.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	coll, base := s.resolve(collection)
	if _, err := coll.DeleteOne(ctx, withID(base, id)); err != nil {
		return mapError(err)
	}
	return nil
}

// watchPipeline narrows a change stream to one family's events. Delete
// events only carry the document key, so every delete still passes and
// the snapshot digest drops the ones from other families.
func watchPipeline(base bson.D) mongo.Pipeline {
	if len(base) == 0 {
		return mongo.Pipeline{}
	}

	match := bson.D{}
	for _, e := range base {
		match = append(match, bson.E{Key: "fullDocument." + e.Key, Value: e.Value})
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			match,
			bson.D{{Key: "operationType", Value: "delete"}},
		}}}}},
	}
}

// Listen opens a change stream on the backing collection. Every change
// triggers a re-query; snapshots identical to the previous one are skipped.
func (s *Store) Listen(ctx context.Context, collection string, onSnapshot remote.SnapshotFunc, onError remote.ErrorFunc) (remote.Listener, error) {
	coll, base := s.resolve(collection)
	lctx, cancel := context.WithCancel(ctx)

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := coll.Watch(lctx, watchPipeline(base), opts)
	if err != nil {
		cancel()
		return nil, mapError(err)
	}

	go func() {
		defer stream.Close(context.Background())

		var last []byte
		first := true
		emit := func() bool {
			docs, digest, err := s.query(lctx, coll, base)
			if err != nil {
				if lctx.Err() == nil {
					onError(mapError(err))
				}
				return false
			}
			if !first && bytes.Equal(digest, last) {
				return true
			}
			first, last = false, digest
			if lctx.Err() != nil {
				return false
			}
			onSnapshot(docs)
			return true
		}

		if !emit() {
			return
		}
		for stream.Next(lctx) {
			if !emit() {
				return
			}
		}
		if lctx.Err() != nil {
			return
		}

		err := stream.Err()
		if err == nil {
			err = fmt.Errorf("%w: change stream closed", remote.ErrUnavailable)
		}
		s.log.Warn("mongo listener failed", zap.String("collection", collection), zap.Error(err))
		onError(mapError(err))
	}()

	return remote.ListenerFunc(cancel), nil
}

func (s *Store) query(ctx context.Context, coll *mongo.Collection, filter bson.D) ([]remote.Document, []byte, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, nil, err
	}
	defer cursor.Close(ctx)

	var (
		docs   []remote.Document
		digest []byte
	)
	for cursor.Next(ctx) {
		raw := make(bson.Raw, len(cursor.Current))
		copy(raw, cursor.Current)

		id, _ := raw.Lookup("_id").StringValueOK()
		docs = append(docs, document{id: id, raw: raw})
		digest = append(digest, raw...)
	}
	if err := cursor.Err(); err != nil {
		return nil, nil, err
	}
	if docs == nil {
		docs = []remote.Document{}
	}
	return docs, digest, nil
}

// Ping checks connectivity to the primary
func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		s.log.Error("mongo disconnect failed", zap.Error(err))
		return err
	}
	return nil
}

// Mongo server codes for Unauthorized and AuthenticationFailed
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %v", remote.ErrNotFound, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(codeUnauthorized) || se.HasErrorCode(codeAuthenticationFailed)) {
		return fmt.Errorf("%w: %v", remote.ErrPermissionDenied, err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	return err
}
