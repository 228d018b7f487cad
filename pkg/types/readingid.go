package types

import "fmt"

// ReadingIDFor returns the deterministic reading ID for a device and batch
// window: "<deviceID>_YYYYMMDD_Hhh". Two ingestions landing in the same
// hour always resolve to the same ID.
func ReadingIDFor(deviceID string, w BatchWindow) string {
	return fmt.Sprintf("%s_%s_H%02d", deviceID, w.Start.UTC().Format("20060102"), w.HourIndex)
}
