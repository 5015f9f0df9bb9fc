package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budgetbuddy/internal/backend"
	"budgetbuddy/internal/cli"
	"budgetbuddy/internal/config"
	"budgetbuddy/internal/log"
)

var (
	flagDBPath  string
	flagVerbose bool
	flagJSON    bool
)

var (
	appConfig *config.Config
	logger    *log.Logger
)

var rootCmd = &cobra.Command{
	Use:           "budgetctl",
	Short:         "Administer budgetbuddy",
	Long:          "Run migrations, rollover sweeps and period inspection against a budgetbuddy store.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		cli.LoadEnvFile()
		if flagVerbose {
			os.Setenv("LOG_LEVEL", "debug")
		}
		logger = cli.SetupLogger(log.ComponentApp)
		appConfig = config.Load()
		if flagDBPath != "" {
			appConfig.DataBackend = config.BackendSQLite
			appConfig.SQLiteDBPath = flagDBPath
		}
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "SQLite database path (implies the sqlite backend)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print JSON instead of text")
}

// openBackend opens the configured store. The memory backend is rejected
// because nothing outside this process could see its data.
func openBackend(ctx context.Context) (*backend.BackendResult, error) {
	if appConfig.DataBackend == config.BackendMemory {
		return nil, fmt.Errorf("budgetctl needs a persistent backend: set DATA_BACKEND=sqlite or pass --db")
	}
	bcfg, err := backend.FromAppConfig(appConfig)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger).CreateBackend(ctx, bcfg)
}
