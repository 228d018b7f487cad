// Package types defines the public domain types for the ClearSky batch
// lifecycle and verification engine.
package types

// ReadingStatus represents the lifecycle state of an hourly reading batch.
type ReadingStatus string

// ReadingStatus values represent the pipeline states of a reading batch.
// Stages are partitioned by status: each stage consumes exactly one status
// and writes exactly one (or FAILED).
const (
	ReadingPending           ReadingStatus = "PENDING"
	ReadingProcessing        ReadingStatus = "PROCESSING"
	ReadingVerified          ReadingStatus = "VERIFIED"
	ReadingProcessingAI      ReadingStatus = "PROCESSING_AI"
	ReadingDerivedIndividual ReadingStatus = "DERIVED_INDIVIDUAL"
	ReadingComplete          ReadingStatus = "COMPLETE"
	ReadingFailed            ReadingStatus = "FAILED"
)

// DerivativeType classifies a derivative report by aggregation level.
type DerivativeType string

// DerivativeType values enumerate the supported aggregation levels.
const (
	DerivativeDaily   DerivativeType = "DAILY"
	DerivativeMonthly DerivativeType = "MONTHLY"
)

// DeviceStatus represents the registration state of a sensor device.
type DeviceStatus string

const (
	DeviceActive   DeviceStatus = "ACTIVE"
	DeviceInactive DeviceStatus = "INACTIVE"
	DeviceRetired  DeviceStatus = "RETIRED"
)

// SensorType identifies one measured air-quality dimension.
type SensorType string

// SensorType values form the closed set of sensors a device may report.
const (
	SensorPM25        SensorType = "PM2_5"
	SensorPM10        SensorType = "PM10"
	SensorNO2         SensorType = "NO2"
	SensorSO2         SensorType = "SO2"
	SensorO3          SensorType = "O3"
	SensorCO          SensorType = "CO"
	SensorAQI         SensorType = "AQI"
	SensorTemperature SensorType = "TEMPERATURE"
	SensorHumidity    SensorType = "HUMIDITY"
)

// KnownSensorTypes lists every sensor type the pipeline accepts.
var KnownSensorTypes = []SensorType{
	SensorPM25, SensorPM10, SensorNO2, SensorSO2, SensorO3,
	SensorCO, SensorAQI, SensorTemperature, SensorHumidity,
}

// IsKnownSensorType reports whether s is a member of the closed sensor set.
func IsKnownSensorType(s SensorType) bool {
	for _, k := range KnownSensorTypes {
		if s == k {
			return true
		}
	}
	return false
}

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
)

// AlertLevel classifies alert severity.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// FailureCategory classifies why an external call failed.
type FailureCategory string

const (
	FailureTransient FailureCategory = "TRANSIENT"
	FailurePermanent FailureCategory = "PERMANENT"
	FailureTimeout   FailureCategory = "TIMEOUT"
)
