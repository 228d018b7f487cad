package dynamodb

import "time"

// PK/SK prefix constants. Readings are dual-written: a truth item keyed by
// reading ID plus a per-device list copy, so device history queries never
// touch the status index.
const (
	prefixReading    = "READING#"
	prefixDevice     = "DEVICE#"
	prefixDerivative = "DERIV#"
	prefixLock       = "LOCK#"
	prefixStatus     = "STATUS#"
	prefixDerivType  = "DTYPE#"

	skReading    = "READING"
	skDerivative = "DERIV"
	skLock       = "LOCK"
)

func readingPK(id string) string     { return prefixReading + id }
func devicePK(deviceID string) string { return prefixDevice + deviceID }
func derivativePK(id string) string  { return prefixDerivative + id }
func lockPK(key string) string       { return prefixLock + key }

func statusGSIPK(status string) string  { return prefixStatus + status }
func derivTypeGSIPK(t string) string    { return prefixDerivType + t }

// windowSK orders readings by window end within a status partition. RFC3339
// sorts lexicographically for UTC timestamps.
func windowSK(windowEnd time.Time, id string) string {
	return windowEnd.UTC().Format(time.RFC3339Nano) + "#" + id
}

func deviceListSK(windowEnd time.Time, id string) string {
	return prefixReading + windowSK(windowEnd, id)
}

func createdSK(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "#" + id
}

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}
