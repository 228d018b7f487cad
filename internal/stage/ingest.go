package stage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/clearsky-systems/clearsky/internal/device"
	"github.com/clearsky-systems/clearsky/internal/metrics"
	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

// Ingestion timestamp tolerance. Readings older than the lookback or
// further ahead than the skew allowance are rejected.
const (
	maxIngestAge  = 24 * time.Hour
	maxClockSkew  = 15 * time.Minute
	createRetries = 2
)

// IngestRequest is one device submission: a set of simultaneous sensor
// observations at a single timestamp.
type IngestRequest struct {
	OwnerID   string                       `json:"ownerId"`
	DeviceID  string                       `json:"deviceId"`
	Readings  map[types.SensorType]float64 `json:"sensorReadings"`
	Timestamp time.Time                    `json:"timestamp"`
}

// Ingestor validates submissions and routes them into hourly reading
// batches. It is the only component allowed to create readings or mutate
// them while PENDING.
type Ingestor struct {
	deps *Deps
}

// NewIngestor creates the ingestion entry point.
func NewIngestor(deps *Deps) *Ingestor {
	return &Ingestor{deps: deps}
}

// Ingest validates the request and creates or appends to the deterministic
// hourly batch for (device, hour). Concurrent submissions to the same open
// batch are safe: creation races resolve by retrying as an append.
func (in *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*types.Reading, error) {
	dev, err := in.validate(ctx, req)
	if err != nil {
		metrics.IngestionsRejected.Add(1)
		return nil, err
	}

	window := types.WindowFor(req.Timestamp)
	id := types.ReadingIDFor(req.DeviceID, window)

	for attempt := 0; ; attempt++ {
		reading, err := in.deps.Store.AppendSensorData(ctx, id, req.Readings, req.Timestamp)
		if err == nil {
			metrics.IngestionsTotal.Add(1)
			return reading, nil
		}
		if errors.Is(err, store.ErrNotPending) {
			metrics.IngestionsRejected.Add(1)
			return nil, fmt.Errorf("%w: %s", ErrBatchClosed, id)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("appending to reading %s: %w", id, err)
		}

		created, err := in.create(ctx, req, dev, window, id)
		if err == nil {
			metrics.IngestionsTotal.Add(1)
			return created, nil
		}
		if errors.Is(err, store.ErrReadingExists) && attempt < createRetries {
			// Lost the creation race; the winner's document takes the append.
			continue
		}
		return nil, err
	}
}

func (in *Ingestor) create(ctx context.Context, req IngestRequest, dev *types.Device, window types.BatchWindow, id string) (*types.Reading, error) {
	now := in.deps.now()
	sensorData := make(map[types.SensorType][]float64, len(req.Readings))
	counts := make(map[types.SensorType]int, len(req.Readings))
	for sensor, value := range req.Readings {
		sensorData[sensor] = []float64{value}
		counts[sensor] = 1
	}

	reading := types.Reading{
		ID:         id,
		DeviceID:   req.DeviceID,
		OwnerID:    req.OwnerID,
		Window:     window,
		SensorData: sensorData,
		Meta: types.ReadingMeta{
			Location:        dev.Location,
			IngestionCount:  1,
			LastIngestion:   req.Timestamp.UTC(),
			DataPointsCount: counts,
		},
		Status:    types.ReadingPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := in.deps.Store.CreateReading(ctx, reading); err != nil {
		return nil, err
	}
	return &reading, nil
}

func (in *Ingestor) validate(ctx context.Context, req IngestRequest) (*types.Device, error) {
	if req.DeviceID == "" {
		return nil, invalid("deviceId", "required")
	}
	if req.OwnerID == "" {
		return nil, invalid("ownerId", "required")
	}
	if len(req.Readings) == 0 {
		return nil, invalid("sensorReadings", "at least one value required")
	}

	dev, err := in.deps.Registry.GetDevice(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, invalid("deviceId", "unknown device")
		}
		return nil, fmt.Errorf("device lookup: %w", err)
	}
	if dev.OwnerID != req.OwnerID {
		return nil, invalid("ownerId", "device not owned by caller")
	}
	if dev.Status != types.DeviceActive {
		return nil, invalid("deviceId", fmt.Sprintf("device is %s", dev.Status))
	}

	for sensor, value := range req.Readings {
		if !dev.HasSensor(sensor) {
			return nil, invalid("sensorReadings", fmt.Sprintf("sensor %s not configured for device", sensor))
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, invalid("sensorReadings", fmt.Sprintf("%s value is not finite", sensor))
		}
		if value < 0 {
			return nil, invalid("sensorReadings", fmt.Sprintf("%s value is negative", sensor))
		}
	}

	now := in.deps.now()
	ts := req.Timestamp.UTC()
	if ts.IsZero() {
		return nil, invalid("timestamp", "required")
	}
	if ts.Before(now.Add(-maxIngestAge)) {
		return nil, invalid("timestamp", "older than 24h lookback")
	}
	if ts.After(now.Add(maxClockSkew)) {
		return nil, invalid("timestamp", "too far in the future")
	}

	return dev, nil
}
