package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	doc := `deviceId: dev-42
ownerId: owner-1
status: ACTIVE
location: "Sector 7"
sensorTypes:
  - PM2_5
  - PM10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dev-42.yaml"), []byte(doc), 0o644))
	// Non-yaml files are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))

	r := NewFileRegistry()
	require.NoError(t, r.LoadDir(dir))

	dev, err := r.GetDevice(context.Background(), "dev-42")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", dev.OwnerID)
	assert.Equal(t, "Sector 7", dev.Location)
	assert.True(t, dev.HasSensor(types.SensorPM25))
}

func TestLoadFile_RejectsUnknownSensor(t *testing.T) {
	dir := t.TempDir()
	doc := `deviceId: dev-bad
ownerId: owner-1
sensorTypes: [RADON]
`
	path := filepath.Join(dir, "dev-bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r := NewFileRegistry()
	err := r.LoadFile(path)
	assert.ErrorContains(t, err, "unknown sensor type")
}

func TestRegister_DefaultsStatusToActive(t *testing.T) {
	r := NewFileRegistry()
	require.NoError(t, r.Register(types.Device{
		ID:          "dev-1",
		OwnerID:     "owner-1",
		SensorTypes: []types.SensorType{types.SensorAQI},
	}))

	dev, err := r.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, types.DeviceActive, dev.Status)
}

func TestGetDevice_NotFound(t *testing.T) {
	r := NewFileRegistry()
	_, err := r.GetDevice(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
