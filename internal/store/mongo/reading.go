package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// CreateReading inserts the reading document; the deterministic _id makes
// the duplicate-key error the race signal for ingestion.
func (s *MongoStore) CreateReading(ctx context.Context, reading types.Reading) error {
	_, err := s.readings.InsertOne(ctx, reading)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrReadingExists
		}
		return err
	}
	return nil
}

// GetReading retrieves a reading by ID.
func (s *MongoStore) GetReading(ctx context.Context, id string) (*types.Reading, error) {
	var reading types.Reading
	err := s.readings.FindOne(ctx, bson.M{"_id": id}).Decode(&reading)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &reading, nil
}

// AppendSensorData pushes values and bumps counters in one server-side
// update guarded by the PENDING status, so concurrent ingestions into the
// same open batch interleave without loss.
func (s *MongoStore) AppendSensorData(ctx context.Context, id string, values map[types.SensorType]float64, ts time.Time) (*types.Reading, error) {
	push := bson.M{}
	inc := bson.M{"meta.ingestionCount": 1, "version": 1}

	sensors := make([]types.SensorType, 0, len(values))
	for sensor := range values {
		sensors = append(sensors, sensor)
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i] < sensors[j] })
	for _, sensor := range sensors {
		push[fmt.Sprintf("sensorData.%s", sensor)] = values[sensor]
		inc[fmt.Sprintf("meta.dataPointsCount.%s", sensor)] = 1
	}

	var updated types.Reading
	err := s.readings.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": types.ReadingPending},
		bson.M{
			"$push": push,
			"$inc":  inc,
			"$set":  bson.M{"meta.lastIngestion": ts, "updatedAt": ts},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Distinguish a missing reading from a closed batch.
			if _, getErr := s.GetReading(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, store.ErrNotPending
		}
		return nil, err
	}
	return &updated, nil
}

// UpdateReading replaces the document only when the stored version matches.
func (s *MongoStore) UpdateReading(ctx context.Context, reading types.Reading, expectedVersion int) error {
	res, err := s.readings.ReplaceOne(ctx,
		bson.M{"_id": reading.ID, "version": expectedVersion},
		reading,
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, getErr := s.GetReading(ctx, reading.ID); getErr != nil {
			return getErr
		}
		return store.ErrVersionConflict
	}
	return nil
}

// ListReadingsByStatus returns a status partition ordered by window end.
func (s *MongoStore) ListReadingsByStatus(ctx context.Context, status types.ReadingStatus, before time.Time, limit int) ([]types.Reading, error) {
	filter := bson.M{"status": status}
	if !before.IsZero() {
		filter["batchWindow.end"] = bson.M{"$lt": before}
	}

	opts := options.Find().SetSort(bson.D{{Key: "batchWindow.end", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findReadings(ctx, filter, opts)
}

// ListReadingsInRange returns a status partition whose window start falls
// in [from, to).
func (s *MongoStore) ListReadingsInRange(ctx context.Context, status types.ReadingStatus, from, to time.Time) ([]types.Reading, error) {
	filter := bson.M{
		"status":            status,
		"batchWindow.start": bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "batchWindow.end", Value: 1}})
	return s.findReadings(ctx, filter, opts)
}

// ListReadingsByDevice returns a device's readings, newest window first.
func (s *MongoStore) ListReadingsByDevice(ctx context.Context, deviceID string, limit int) ([]types.Reading, error) {
	opts := options.Find().SetSort(bson.D{{Key: "batchWindow.end", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findReadings(ctx, bson.M{"deviceId": deviceID}, opts)
}

func (s *MongoStore) findReadings(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]types.Reading, error) {
	cur, err := s.readings.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var readings []types.Reading
	if err := cur.All(ctx, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}
