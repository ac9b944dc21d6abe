package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare the live graph with the last snapshot now and persist if it changed",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		res, err := newClient(cmd).Reconcile(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", res.Outcome)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
