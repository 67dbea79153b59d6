package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recordsMonth string

var recordsCmd = &cobra.Command{
	Use:   "records <user>",
	Short: "List accrual records for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecords,
}

func init() {
	recordsCmd.Flags().StringVar(&recordsMonth, "month", "", "Limit to one month as YYYY-MM")
}

func runRecords(cmd *cobra.Command, args []string) error {
	recs, err := api().Records(cmd.Context(), args[0], recordsMonth)
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Println("No records.")
		return nil
	}

	fmt.Printf("%-12s  %7s  %-8s  %s\n", "DATE", "HOURS", "STATUS", "ENTRY")
	for _, r := range recs {
		fmt.Printf("%-12s  %7.2f  %-8s  %s\n", r.Date, r.Hours, r.Status, r.EntryID)
	}
	return nil
}
