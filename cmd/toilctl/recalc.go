package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var recalcDate string

var recalcCmd = &cobra.Command{
	Use:   "recalc <user>",
	Short: "Recalculate TOIL accrual for a user-day",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecalc,
}

func init() {
	recalcCmd.Flags().StringVar(&recalcDate, "date", "", "Date as YYYY-MM-DD (default: today)")
}

func runRecalc(cmd *cobra.Command, args []string) error {
	date := recalcDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	s, err := api().Recalculate(cmd.Context(), args[0], date)
	if err != nil {
		return err
	}

	fmt.Printf("Recalculated %s for %s.\n", date, s.UserID)
	fmt.Printf("Accrued: %.2f h  Used: %.2f h  Remaining: %.2f h\n", s.Accrued, s.Used, s.Remaining)
	return nil
}
