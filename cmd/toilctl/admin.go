package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Void duplicate accrual records across all users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		voided, err := api().Dedup(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Voided %d duplicate records.\n", voided)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "cache-clear",
	Short: "Drop all cached summaries on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api().ClearCache(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable all TOIL calculations (kill-switch)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api().DisableCalculations(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Calculations disabled.")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume TOIL calculations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api().ResumeCalculations(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Calculations resumed.")
		return nil
	},
}
