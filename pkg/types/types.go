package types

import "time"

// BatchWindow is the half-open UTC hour interval [Start, End) that one
// Reading covers. HourIndex is Start's hour of day, 0-23.
type BatchWindow struct {
	Start     time.Time `json:"start" bson:"start"`
	End       time.Time `json:"end" bson:"end"`
	HourIndex int       `json:"hourIndex" bson:"hourIndex"`
}

// Contains reports whether ts falls inside the window.
func (w BatchWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// WindowFor computes the batch window covering ts.
func WindowFor(ts time.Time) BatchWindow {
	start := ts.UTC().Truncate(time.Hour)
	return BatchWindow{
		Start:     start,
		End:       start.Add(time.Hour),
		HourIndex: start.Hour(),
	}
}

// ReadingMeta holds ingestion bookkeeping for a reading batch.
type ReadingMeta struct {
	Location        string             `json:"location,omitempty" bson:"location,omitempty"`
	IngestionCount  int                `json:"ingestionCount" bson:"ingestionCount"`
	LastIngestion   time.Time          `json:"lastIngestion" bson:"lastIngestion"`
	DataPointsCount map[SensorType]int `json:"dataPointsCount" bson:"dataPointsCount"`
}

// ProcessingInfo accumulates proof and failure state as a reading moves
// through the pipeline. Fields are written once by the stage that owns the
// corresponding transition.
type ProcessingInfo struct {
	PickedAt     *time.Time `json:"pickedAt,omitempty" bson:"pickedAt,omitempty"`
	MerkleRoot   string     `json:"merkleRoot,omitempty" bson:"merkleRoot,omitempty"`
	ContentHash  string     `json:"contentHash,omitempty" bson:"contentHash,omitempty"`
	StorageURI   string     `json:"storageUri,omitempty" bson:"storageUri,omitempty"`
	StorageID    string     `json:"storageId,omitempty" bson:"storageId,omitempty"`
	VerifiedAt   *time.Time `json:"verifiedAt,omitempty" bson:"verifiedAt,omitempty"`
	RetryCount   int        `json:"retryCount" bson:"retryCount"`
	Error        string     `json:"error,omitempty" bson:"error,omitempty"`
	FailedAt     *time.Time `json:"failedAt,omitempty" bson:"failedAt,omitempty"`
	DerivativeID string     `json:"derivativeId,omitempty" bson:"derivativeId,omitempty"`
}

// Reading is one device's hourly batch of sensor observations. The ID is
// deterministic (device + date + hour) and acts as the idempotency anchor
// for ingestion.
type Reading struct {
	ID         string                   `json:"readingId" bson:"_id"`
	DeviceID   string                   `json:"deviceId" bson:"deviceId"`
	OwnerID    string                   `json:"ownerId" bson:"ownerId"`
	Window     BatchWindow              `json:"batchWindow" bson:"batchWindow"`
	SensorData map[SensorType][]float64 `json:"sensorData" bson:"sensorData"`
	Meta       ReadingMeta              `json:"meta" bson:"meta"`
	Status     ReadingStatus            `json:"status" bson:"status"`
	Processing ProcessingInfo           `json:"processing" bson:"processing"`
	Version    int                      `json:"version" bson:"version"`
	CreatedAt  time.Time                `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time                `json:"updatedAt" bson:"updatedAt"`
}

// LLMMetadata records provenance of a generated narrative.
type LLMMetadata struct {
	Provider   string  `json:"provider,omitempty" bson:"provider,omitempty"`
	Model      string  `json:"model,omitempty" bson:"model,omitempty"`
	TokensUsed int     `json:"tokensUsed" bson:"tokensUsed"`
	CostUSD    float64 `json:"costUsd" bson:"costUsd"`
	LatencyMS  int64   `json:"latencyMs" bson:"latencyMs"`
}

// DerivativeProof anchors a derivative's generated content.
type DerivativeProof struct {
	ContentHash string    `json:"contentHash" bson:"contentHash"`
	MerkleRoot  string    `json:"merkleRoot" bson:"merkleRoot"`
	StorageURI  string    `json:"storageUri,omitempty" bson:"storageUri,omitempty"`
	StorageID   string    `json:"storageId,omitempty" bson:"storageId,omitempty"`
	ProcessedAt time.Time `json:"processedAt" bson:"processedAt"`
}

// Derivative is a generated narrative report over one aggregation unit:
// one calendar day of readings (DAILY) or one month of daily derivatives
// (MONTHLY). Content is immutable after creation; only lineage links are
// attached afterwards.
type Derivative struct {
	ID                 string          `json:"derivativeId" bson:"_id"`
	Type               DerivativeType  `json:"type" bson:"type"`
	DeviceID           string          `json:"deviceId" bson:"deviceId"`
	OwnerID            string          `json:"ownerId" bson:"ownerId"`
	PeriodStart        time.Time       `json:"periodStart" bson:"periodStart"`
	PeriodEnd          time.Time       `json:"periodEnd" bson:"periodEnd"`
	ParentDataIDs      []string        `json:"parentDataIds" bson:"parentDataIds"`
	ChildDerivativeIDs []string        `json:"childDerivativeIds,omitempty" bson:"childDerivativeIds,omitempty"`
	MetaParentID       string          `json:"metaParentId,omitempty" bson:"metaParentId,omitempty"`
	Content            string          `json:"content" bson:"content"`
	Proof              DerivativeProof `json:"processing" bson:"processing"`
	LLM                LLMMetadata     `json:"llmMetadata" bson:"llmMetadata"`
	CreatedAt          time.Time       `json:"createdAt" bson:"createdAt"`
}

// Device is the external registry's view of a sensor device.
type Device struct {
	ID          string       `json:"deviceId" yaml:"deviceId"`
	OwnerID     string       `json:"ownerId" yaml:"ownerId"`
	Status      DeviceStatus `json:"status" yaml:"status"`
	SensorTypes []SensorType `json:"sensorTypes" yaml:"sensorTypes"`
	Location    string       `json:"location,omitempty" yaml:"location,omitempty"`
}

// HasSensor reports whether the device is configured to report s.
func (d Device) HasSensor(s SensorType) bool {
	for _, t := range d.SensorTypes {
		if t == s {
			return true
		}
	}
	return false
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	Level     AlertLevel `json:"level"`
	ReadingID string     `json:"readingId,omitempty"`
	DeviceID  string     `json:"deviceId,omitempty"`
	Stage     string     `json:"stage,omitempty"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// AlertConfig configures one alert sink.
type AlertConfig struct {
	Type AlertType `yaml:"type" json:"type"`
	URL  string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path string    `yaml:"path,omitempty" json:"path,omitempty"`
}

// RetryPolicy bounds retries for a stage's external calls.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"maxAttempts" json:"maxAttempts"`
	BackoffSeconds    int     `yaml:"backoffSeconds" json:"backoffSeconds"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier" json:"backoffMultiplier"`
}
