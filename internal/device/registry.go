// Package device resolves sensor devices for ingestion validation. The
// authoritative device/ownership service is an external collaborator; the
// pipeline only needs lookup.
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/clearsky-systems/clearsky/pkg/types"
)

// ErrDeviceNotFound is returned when a device ID is unknown to the registry.
var ErrDeviceNotFound = errors.New("device not found")

// Registry looks up device registration state.
type Registry interface {
	GetDevice(ctx context.Context, id string) (*types.Device, error)
}

// FileRegistry manages device records loaded from YAML files.
type FileRegistry struct {
	mu      sync.RWMutex
	devices map[string]*types.Device
}

// NewFileRegistry creates a new empty device registry.
func NewFileRegistry() *FileRegistry {
	return &FileRegistry{devices: make(map[string]*types.Device)}
}

// LoadDir loads all YAML device files from a directory.
func (r *FileRegistry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading device dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		if err := r.LoadFile(path); err != nil {
			return fmt.Errorf("loading device %s: %w", path, err)
		}
	}
	return nil
}

// LoadFile loads a single device YAML file.
func (r *FileRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	var dev types.Device
	if err := yaml.Unmarshal(data, &dev); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	if err := validate(&dev); err != nil {
		return fmt.Errorf("validating device %q: %w", dev.ID, err)
	}

	r.mu.Lock()
	r.devices[dev.ID] = &dev
	r.mu.Unlock()
	return nil
}

// GetDevice returns a device by ID.
func (r *FileRegistry) GetDevice(_ context.Context, id string) (*types.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	out := *dev
	return &out, nil
}

// Register adds a device directly (tests, static wiring).
func (r *FileRegistry) Register(dev types.Device) error {
	if err := validate(&dev); err != nil {
		return err
	}
	r.mu.Lock()
	r.devices[dev.ID] = &dev
	r.mu.Unlock()
	return nil
}

func validate(dev *types.Device) error {
	if dev.ID == "" {
		return fmt.Errorf("deviceId is required")
	}
	if dev.OwnerID == "" {
		return fmt.Errorf("ownerId is required")
	}
	if len(dev.SensorTypes) == 0 {
		return fmt.Errorf("at least one sensor type is required")
	}
	for _, s := range dev.SensorTypes {
		if !types.IsKnownSensorType(s) {
			return fmt.Errorf("unknown sensor type %q", s)
		}
	}
	if dev.Status == "" {
		dev.Status = types.DeviceActive
	}
	return nil
}
