package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:       "report <edges|nodes>",
	Short:     "Export the graph as a CSV or JSON report",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"edges", "nodes"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := windowFlags(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		body, err := newClient(cmd).GetReport(ctx, args[0], format, w)
		if err != nil {
			return err
		}

		if output == "" || output == "-" {
			_, err = cmd.OutOrStdout().Write(body)
			return err
		}
		if err := os.WriteFile(output, body, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(body), output)
		return nil
	},
}

func init() {
	reportCmd.Flags().String("format", "csv", "report format: csv or json")
	reportCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	reportCmd.Flags().String("from", "", "window start: RFC3339, unix millis, or a duration ago (e.g. 2h)")
	reportCmd.Flags().String("to", "", "window end (default now)")
	rootCmd.AddCommand(reportCmd)
}
