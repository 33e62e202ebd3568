// Package store persists mail records in MongoDB and absorbs store
// outages with an unbounded retry loop.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mailstash/mailstash/internal/message"
)

// dialTimeout bounds connection establishment, server selection and
// individual operations, so a down store fails fast and lands in the
// retry loop instead of hanging a pipeline unit.
const dialTimeout = 3 * time.Second

// Store wraps the MongoDB collection that holds one document per record.
// The underlying client is safe for concurrent use; all pipeline units
// share this one handle.
type Store struct {
	client *mongo.Client
	col    *mongo.Collection
}

// Open builds a client for uri and binds it to database/collection.
// The store is deliberately not pinged here: a store that is down at boot
// is a persistence-time problem for the retry loop, not a startup error.
func Open(ctx context.Context, uri, database, collection string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(dialTimeout).
		SetServerSelectionTimeout(dialTimeout).
		SetTimeout(dialTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	return &Store{
		client: client,
		col:    client.Database(database).Collection(collection),
	}, nil
}

// Insert writes one record as a single document.
func (s *Store) Insert(ctx context.Context, rec *message.Record) error {
	if _, err := s.col.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Close releases the client. Called exactly once, after all in-flight
// writes have drained.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
