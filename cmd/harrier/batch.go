package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/harrier/internal/batch"
)

var batchLive bool

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().BoolVar(&batchLive, "live", false, "Submit payouts for approved withdrawals (overrides batch.live)")
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate the vendor's pending withdrawals once",
	Long: `Fetch the pending withdrawals from the vendor backoffice, evaluate them
oldest first and print one JSON result per withdrawal. Withdrawals that
already have a snapshot are replayed, not re-evaluated.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("live") {
		cfg.Batch.Live = batchLive
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			slog.Error("failed to release resources", "error", err)
		}
	}()

	results, err := a.processor.RunOnce(ctx)
	if err := printResults(results); err != nil {
		return err
	}
	if err != nil {
		return fmt.Errorf("batch finished with errors: %w", err)
	}
	return nil
}

// printResults writes results as JSON lines ordered by withdrawal id.
func printResults(results map[string]batch.Result) error {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	enc := json.NewEncoder(os.Stdout)
	for _, id := range ids {
		if err := enc.Encode(results[id]); err != nil {
			return err
		}
	}
	return nil
}
