package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var summaryMonth string

var summaryCmd = &cobra.Command{
	Use:   "summary <user>",
	Short: "Show accrued/used/remaining TOIL for a user-month",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	summaryCmd.Flags().StringVar(&summaryMonth, "month", "", "Month as YYYY-MM (default: current month)")
}

func runSummary(cmd *cobra.Command, args []string) error {
	s, err := api().Summary(cmd.Context(), args[0], summaryMonth)
	if err != nil {
		return err
	}

	fmt.Printf("User:      %s\n", s.UserID)
	fmt.Printf("Month:     %s\n", s.MonthYear)
	fmt.Printf("Accrued:   %.2f h\n", s.Accrued)
	fmt.Printf("Used:      %.2f h\n", s.Used)
	fmt.Printf("Remaining: %.2f h\n", s.Remaining)
	return nil
}
