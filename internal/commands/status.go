package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clearsky-systems/clearsky/internal/config"
	"github.com/clearsky-systems/clearsky/internal/store"
	"github.com/clearsky-systems/clearsky/pkg/types"
)

const statusScanLimit = 1000

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var readingID string

	cmd := &cobra.Command{
		Use:   "status [reading-id]",
		Short: "Show pipeline state counts or one reading's detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				readingID = args[0]
			}
			return runStatus(readingID)
		},
	}
	return cmd
}

func runStatus(readingID string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer func() { _ = st.Stop(ctx) }()

	slog.SetLogLoggerLevel(slog.LevelWarn)

	if readingID != "" {
		return showReading(ctx, st, readingID)
	}
	return showPipeline(ctx, st)
}

var statusOrder = []types.ReadingStatus{
	types.ReadingPending,
	types.ReadingProcessing,
	types.ReadingVerified,
	types.ReadingProcessingAI,
	types.ReadingDerivedIndividual,
	types.ReadingComplete,
	types.ReadingFailed,
}

func statusColor(s types.ReadingStatus) string {
	switch s {
	case types.ReadingFailed:
		return color.RedString(string(s))
	case types.ReadingComplete:
		return color.GreenString(string(s))
	case types.ReadingPending:
		return color.YellowString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func showPipeline(ctx context.Context, st store.Store) error {
	bold := color.New(color.Bold)
	_, _ = bold.Println("Pipeline status:")
	fmt.Println()

	// Far-future cutoff so open windows are counted too.
	horizon := time.Now().UTC().Add(48 * time.Hour)
	total := 0
	for _, status := range statusOrder {
		readings, err := st.ListReadingsByStatus(ctx, status, horizon, statusScanLimit)
		if err != nil {
			return fmt.Errorf("listing %s readings: %w", status, err)
		}
		count := fmt.Sprintf("%d", len(readings))
		if len(readings) == statusScanLimit {
			count += "+"
		}
		fmt.Printf("  %-22s %s\n", statusColor(status), count)
		total += len(readings)
	}
	fmt.Println()
	fmt.Printf("  %d reading(s) scanned\n", total)
	return nil
}

func showReading(ctx context.Context, st store.Store, id string) error {
	r, err := st.GetReading(ctx, id)
	if err != nil {
		return fmt.Errorf("loading reading %s: %w", id, err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Printf("Reading %s\n", r.ID)
	fmt.Printf("  status:     %s\n", statusColor(r.Status))
	fmt.Printf("  device:     %s (owner %s)\n", r.DeviceID, r.OwnerID)
	fmt.Printf("  window:     %s .. %s\n",
		r.Window.Start.Format(time.RFC3339), r.Window.End.Format(time.RFC3339))
	fmt.Printf("  ingestions: %d\n", r.Meta.IngestionCount)
	fmt.Printf("  version:    %d\n", r.Version)
	if r.Processing.MerkleRoot != "" {
		fmt.Printf("  merkleRoot: %s\n", r.Processing.MerkleRoot)
		fmt.Printf("  storageUri: %s\n", r.Processing.StorageURI)
	}
	if r.Processing.DerivativeID != "" {
		fmt.Printf("  derivative: %s\n", r.Processing.DerivativeID)
	}
	if r.Processing.RetryCount > 0 {
		fmt.Printf("  retries:    %d\n", r.Processing.RetryCount)
	}
	if r.Processing.Error != "" {
		fmt.Printf("  error:      %s\n", color.RedString(r.Processing.Error))
	}
	return nil
}
