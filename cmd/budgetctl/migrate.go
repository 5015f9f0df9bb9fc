package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgetbuddy/internal/remote/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQLite schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	path := appConfig.SQLiteDBPath
	if err := sqlite.RunMigrations(path); err != nil {
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	fmt.Printf("Migrations applied to %s\n", path)
	return nil
}
