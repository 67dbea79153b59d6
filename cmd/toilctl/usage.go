package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	usageDate    string
	usageHours   float64
	usageEntryID string
)

var usageCmd = &cobra.Command{
	Use:   "use <user>",
	Short: "Record TOIL consumption for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&usageDate, "date", "", "Date as YYYY-MM-DD (default: today)")
	usageCmd.Flags().Float64Var(&usageHours, "hours", 0, "Hours of TOIL to consume (required)")
	usageCmd.Flags().StringVar(&usageEntryID, "entry", "", "Time entry ID the consumption is tied to")
	usageCmd.MarkFlagRequired("hours")
}

func runUsage(cmd *cobra.Command, args []string) error {
	date := usageDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	s, err := api().RecordUsage(cmd.Context(), args[0], date, usageHours, usageEntryID)
	if err != nil {
		return err
	}

	fmt.Printf("Recorded %.2f h TOIL used on %s.\n", usageHours, date)
	fmt.Printf("Remaining: %.2f h\n", s.Remaining)
	return nil
}
