// Package mongo implements the Store interface over MongoDB with the two
// collections the pipeline owns: readings and derivatives (plus a small
// locks collection for scheduler claims).
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/clearsky-systems/clearsky/internal/store"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*MongoStore)(nil)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// MongoStore implements the Store interface backed by MongoDB.
type MongoStore struct {
	client   *mongo.Client
	uri      string
	database string
	logger   *slog.Logger

	readings    *mongo.Collection
	derivatives *mongo.Collection
	locks       *mongo.Collection
}

// New creates a new MongoStore. Connection happens in Start.
func New(cfg *Config) *MongoStore {
	return &MongoStore{
		uri:      cfg.URI,
		database: cfg.Database,
		logger:   slog.Default(),
	}
}

// Start connects, pings, and ensures the scan indexes exist.
func (s *MongoStore) Start(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}

	s.client = client
	db := client.Database(s.database)
	s.readings = db.Collection("readings")
	s.derivatives = db.Collection("derivatives")
	s.locks = db.Collection("locks")

	return s.ensureIndexes(ctx)
}

// Stop disconnects from MongoDB.
func (s *MongoStore) Stop(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Ping checks connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("mongodb not connected")
	}
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.readings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// Stage scans: status partition ordered by window end.
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "batchWindow.end", Value: 1}}},
		// Monthly range scans.
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "batchWindow.start", Value: 1}}},
		// Device history.
		{Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "batchWindow.end", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating reading indexes: %w", err)
	}

	_, err = s.derivatives.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating derivative indexes: %w", err)
	}
	return nil
}

// AcquireLock claims a TTL lock: refresh an expired one in place, otherwise
// insert; a duplicate-key failure means another instance holds it.
func (s *MongoStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	res, err := s.locks.UpdateOne(ctx,
		bson.M{"_id": key, "expiresAt": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"expiresAt": now.Add(ttl)}},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	_, err = s.locks.InsertOne(ctx, bson.M{"_id": key, "expiresAt": now.Add(ttl)})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReleaseLock deletes a claim lock.
func (s *MongoStore) ReleaseLock(ctx context.Context, key string) error {
	_, err := s.locks.DeleteOne(ctx, bson.M{"_id": key})
	return err
}
