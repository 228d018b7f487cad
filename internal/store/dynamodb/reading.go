package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// CreateReading writes the truth item conditioned on non-existence, then a
// best-effort per-device list copy.
func (s *DynamoStore) CreateReading(ctx context.Context, reading types.Reading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                s.readingItem(reading, data),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return store.ErrReadingExists
		}
		return err
	}

	s.putDeviceCopy(ctx, reading, data)
	return nil
}

// GetReading retrieves a reading from the truth item (strongly consistent).
func (s *DynamoStore) GetReading(ctx context.Context, id string) (*types.Reading, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: readingPK(id)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skReading},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}
	return unmarshalReading(out.Item)
}

// AppendSensorData applies the append as an optimistic CAS loop: read the
// truth item, mutate, write back conditioned on the version. Concurrent
// ingestions into the same open batch retry until they interleave cleanly.
func (s *DynamoStore) AppendSensorData(ctx context.Context, id string, values map[types.SensorType]float64, ts time.Time) (*types.Reading, error) {
	for attempt := 0; attempt < appendCASAttempts; attempt++ {
		reading, err := s.GetReading(ctx, id)
		if err != nil {
			return nil, err
		}
		if reading.Status != types.ReadingPending {
			return nil, store.ErrNotPending
		}

		expected := reading.Version
		applyAppend(reading, values, ts)

		if err := s.UpdateReading(ctx, *reading, expected); err != nil {
			if err == store.ErrVersionConflict {
				continue
			}
			return nil, err
		}
		return reading, nil
	}
	return nil, fmt.Errorf("append to %q: %w", id, store.ErrVersionConflict)
}

// UpdateReading replaces the truth item conditioned on the stored version,
// then refreshes the per-device list copy best-effort.
func (s *DynamoStore) UpdateReading(ctx context.Context, reading types.Reading, expectedVersion int) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: readingPK(reading.ID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skReading},
		},
		UpdateExpression:    aws.String("SET #data = :data, #version = :newVersion, GSI1PK = :gsipk, GSI1SK = :gsisk"),
		ConditionExpression: aws.String("attribute_exists(PK) AND #version = :expectedVersion"),
		ExpressionAttributeNames: map[string]string{
			"#data":    "data",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":data":            &ddbtypes.AttributeValueMemberS{Value: string(data)},
			":newVersion":      &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", reading.Version)},
			":expectedVersion": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
			":gsipk":           &ddbtypes.AttributeValueMemberS{Value: statusGSIPK(string(reading.Status))},
			":gsisk":           &ddbtypes.AttributeValueMemberS{Value: windowSK(reading.Window.End, reading.ID)},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return store.ErrVersionConflict
		}
		return err
	}

	s.putDeviceCopy(ctx, reading, data)
	return nil
}

// ListReadingsByStatus queries the status GSI, window end ascending.
func (s *DynamoStore) ListReadingsByStatus(ctx context.Context, status types.ReadingStatus, before time.Time, limit int) ([]types.Reading, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: statusGSIPK(string(status))},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if !before.IsZero() {
		input.KeyConditionExpression = aws.String("GSI1PK = :pk AND GSI1SK < :before")
		input.ExpressionAttributeValues[":before"] = &ddbtypes.AttributeValueMemberS{Value: before.UTC().Format(time.RFC3339Nano)}
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}
	return unmarshalReadings(out.Items)
}

// ListReadingsInRange queries the status partition and filters on window
// start client-side; the GSI sort key orders by window end, which is one
// hour past the start for hourly batches.
func (s *DynamoStore) ListReadingsInRange(ctx context.Context, status types.ReadingStatus, from, to time.Time) ([]types.Reading, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":   &ddbtypes.AttributeValueMemberS{Value: statusGSIPK(string(status))},
			":from": &ddbtypes.AttributeValueMemberS{Value: from.UTC().Format(time.RFC3339Nano)},
			":to":   &ddbtypes.AttributeValueMemberS{Value: to.Add(2 * time.Hour).UTC().Format(time.RFC3339Nano)},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	readings, err := unmarshalReadings(out.Items)
	if err != nil {
		return nil, err
	}

	filtered := readings[:0]
	for _, r := range readings {
		if !r.Window.Start.Before(from) && r.Window.Start.Before(to) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ListReadingsByDevice queries the per-device list copies, newest first.
func (s *DynamoStore) ListReadingsByDevice(ctx context.Context, deviceID string, limit int) ([]types.Reading, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: devicePK(deviceID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixReading},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}
	return unmarshalReadings(out.Items)
}

func (s *DynamoStore) readingItem(reading types.Reading, data []byte) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"PK":      &ddbtypes.AttributeValueMemberS{Value: readingPK(reading.ID)},
		"SK":      &ddbtypes.AttributeValueMemberS{Value: skReading},
		"data":    &ddbtypes.AttributeValueMemberS{Value: string(data)},
		"version": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", reading.Version)},
		"GSI1PK":  &ddbtypes.AttributeValueMemberS{Value: statusGSIPK(string(reading.Status))},
		"GSI1SK":  &ddbtypes.AttributeValueMemberS{Value: windowSK(reading.Window.End, reading.ID)},
	}
}

// putDeviceCopy writes the per-device list item. Best-effort: the truth
// item is authoritative, a stale copy only affects history listings.
func (s *DynamoStore) putDeviceCopy(ctx context.Context, reading types.Reading, data []byte) {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: devicePK(reading.DeviceID)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: deviceListSK(reading.Window.End, reading.ID)},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
	})
	if err != nil {
		s.logger.Warn("device list copy write failed", "reading", reading.ID, "error", err)
	}
}

func applyAppend(reading *types.Reading, values map[types.SensorType]float64, ts time.Time) {
	sensors := make([]types.SensorType, 0, len(values))
	for sensor := range values {
		sensors = append(sensors, sensor)
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i] < sensors[j] })

	if reading.SensorData == nil {
		reading.SensorData = make(map[types.SensorType][]float64)
	}
	if reading.Meta.DataPointsCount == nil {
		reading.Meta.DataPointsCount = make(map[types.SensorType]int)
	}
	for _, sensor := range sensors {
		reading.SensorData[sensor] = append(reading.SensorData[sensor], values[sensor])
		reading.Meta.DataPointsCount[sensor]++
	}
	reading.Meta.IngestionCount++
	reading.Meta.LastIngestion = ts
	reading.Version++
	reading.UpdatedAt = ts
}

func unmarshalReading(item map[string]ddbtypes.AttributeValue) (*types.Reading, error) {
	data, err := attributeStr(item, "data")
	if err != nil {
		return nil, err
	}
	var reading types.Reading
	if err := json.Unmarshal([]byte(data), &reading); err != nil {
		return nil, err
	}
	return &reading, nil
}

func unmarshalReadings(items []map[string]ddbtypes.AttributeValue) ([]types.Reading, error) {
	readings := make([]types.Reading, 0, len(items))
	for _, item := range items {
		r, err := unmarshalReading(item)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *r)
	}
	return readings, nil
}
