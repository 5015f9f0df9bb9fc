package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgetbuddy/internal/store"
)

var repairCmd = &cobra.Command{
	Use:   "repair <user-id>",
	Short: "Delete active copies of periods that were already archived",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepair,
}

func init() {
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	res, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer res.Cleanup()

	ids, err := store.NewUserStore(res.Store, store.WithLogger(logger)).RepairArchived(ctx, args[0])
	for _, id := range ids {
		fmt.Printf("repaired %s\n", id)
	}
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("Nothing to repair.")
	}
	return nil
}
