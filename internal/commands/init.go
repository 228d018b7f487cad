package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new ClearSky project",
		Long:  "Creates project scaffolding: clearsky.yaml and a devices/ directory with an example device.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0])
		},
	}
}

const initConfig = `provider: memory
deviceDir: ./devices
server:
  addr: ":8080"
anchor:
  endpoint: http://localhost:9090
narrative:
  endpoint: https://api.openai.com
  model: gpt-4o-mini
stages:
  promote:
    schedule: "*/5 * * * *"
  verify:
    schedule: "*/10 * * * *"
    limit: 50
    maxRetries: 3
    pacingSeconds: 1
  deriveDaily:
    schedule: "30 2 * * *"
    limit: 500
    maxRetries: 3
    pacingSeconds: 2
  deriveMonthly:
    schedule: "0 4 1 * *"
    maxRetries: 3
alerts:
  - type: console
`

const initDevice = `deviceId: dev-001
ownerId: owner-001
status: ACTIVE
location: "Example Station"
sensorTypes:
  - PM2_5
  - PM10
  - NO2
`

func runInit(projectName string) error {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Initializing ClearSky project: %s\n", projectName)

	devDir := filepath.Join(projectName, "devices")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", devDir, err)
	}

	configPath := filepath.Join(projectName, "clearsky.yaml")
	if err := os.WriteFile(configPath, []byte(initConfig), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	devicePath := filepath.Join(devDir, "dev-001.yaml")
	if err := os.WriteFile(devicePath, []byte(initDevice), 0o644); err != nil {
		return fmt.Errorf("writing example device: %w", err)
	}

	color.Green("Created %s", configPath)
	color.Green("Created %s", devicePath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  export CLEARSKY_ANCHOR_API_KEY=... CLEARSKY_NARRATIVE_API_KEY=...")
	fmt.Println("  clearsky serve")
	return nil
}
