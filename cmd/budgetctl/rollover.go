package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budgetbuddy/internal/store"
	"budgetbuddy/internal/worker"
)

var rolloverCmd = &cobra.Command{
	Use:     "rollover",
	Aliases: []string{"sweep"},
	Short:   "Archive every expired period and repair half-finished archives once",
	RunE:    runSweep,
}

var sweepConcurrency int

func init() {
	rolloverCmd.Flags().IntVarP(&sweepConcurrency, "concurrency", "c", 0, "Users swept at once (default ROLLOVER_CONCURRENCY)")
	rootCmd.AddCommand(rolloverCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	res, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer res.Cleanup()

	concurrency := appConfig.RolloverConcurrency
	if sweepConcurrency > 0 {
		concurrency = sweepConcurrency
	}
	opts := []worker.Option{worker.WithLogger(logger)}
	if res.Events != nil {
		opts = append(opts, worker.WithPublisher(res.Events))
	}
	w := worker.NewRolloverWorker(store.NewUserStore(res.Store, store.WithLogger(logger)),
		worker.Config{Concurrency: concurrency}, opts...)

	result, err := w.Sweep(ctx)
	if err != nil {
		return err
	}
	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}
	fmt.Printf("Users: %d  Archived: %d  Repaired: %d  Failed: %d\n",
		result.Users, result.Archived, result.Repaired, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d users failed, see logs", result.Failed)
	}
	return nil
}
