package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/store"
)

var periodsCmd = &cobra.Command{
	Use:   "periods <user-id>",
	Short: "Show a user's active and archived periods",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeriods,
}

func init() {
	rootCmd.AddCommand(periodsCmd)
}

type periodLine struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Income    string `json:"income"`
	Expenses  string `json:"expenses"`
	Remaining string `json:"remaining"`
}

func newPeriodLine(p core.BudgetPeriod, state string) periodLine {
	s := p.Summary()
	return periodLine{
		ID:        p.ID,
		State:     state,
		StartDate: p.StartDate.String(),
		EndDate:   p.EndDate.String(),
		Income:    s.TotalIncome.String(),
		Expenses:  core.Money{Cents: s.TotalFixed.Cents + s.TotalVariable.Cents}.String(),
		Remaining: s.Remaining.String(),
	}
}

func runPeriods(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	uid := args[0]
	res, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer res.Cleanup()

	us := store.NewUserStore(res.Store, store.WithLogger(logger))
	active, err := us.ActivePeriods(ctx, uid)
	if err != nil {
		return err
	}
	history, err := us.HistoricalPeriods(ctx, uid)
	if err != nil {
		return err
	}

	now := time.Now()
	lines := make([]periodLine, 0, len(active)+len(history))
	for _, p := range active {
		state := "active"
		if p.IsExpired(now) {
			state = "expired"
		}
		lines = append(lines, newPeriodLine(p, state))
	}
	for _, p := range history {
		lines = append(lines, newPeriodLine(p, "archived"))
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(lines)
	}
	if len(lines) == 0 {
		fmt.Println("No periods found.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tSTART\tEND\tINCOME\tEXPENSES\tREMAINING")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.State, l.StartDate, l.EndDate, l.Income, l.Expenses, l.Remaining)
	}
	return tw.Flush()
}
