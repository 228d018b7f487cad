package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clearsky-systems/clearsky/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clearsky",
		Short: "Batch lifecycle and verification engine for air-quality readings",
		Long: `ClearSky ingests raw sensor readings into hourly batches and moves each
batch through a verification pipeline: Merkle-proof construction with
content-addressed anchoring, daily narrative derivatives, and monthly
rollups. Stages coordinate only through durable status fields, so any
number of instances can run the same pipeline safely.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewRunCmd(),
		commands.NewStatusCmd(),
		commands.NewServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
