package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that meshgraph-d is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		status, err := newClient(cmd).Ping(ctx)
		if err != nil {
			return fmt.Errorf("daemon unreachable: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "meshgraph-d: %s\n", status.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
