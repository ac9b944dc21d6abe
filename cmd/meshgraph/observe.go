package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/meshgraph/pkg/client"
)

var observeCmd = &cobra.Command{
	Use:   "observe [<source-node> <source-service> <target-node> <target-service>]",
	Short: "Submit call observations",
	Long: `Submit one observation from arguments, or a batch with --file.
The file holds a JSON array of {"source_node","source_service","target_node","target_service"}
objects; "-" reads it from stdin.`,
	Args: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file != "" && len(args) > 0 {
			return fmt.Errorf("use either arguments or --file, not both")
		}
		if file == "" && len(args) != 4 {
			return fmt.Errorf("expected 4 arguments, got %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		obs, err := readObservations(cmd, args)
		if err != nil {
			return err
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		res, err := newClient(cmd).PostObservations(ctx, obs)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "accepted: %d\n", res.Accepted)
		for _, r := range res.Rejected {
			fmt.Fprintf(out, "rejected #%d: %s\n", r.Index, r.Reason)
		}
		return nil
	},
}

func init() {
	observeCmd.Flags().StringP("file", "f", "", "JSON file with observations (- for stdin)")
	rootCmd.AddCommand(observeCmd)
}

func readObservations(cmd *cobra.Command, args []string) ([]client.Observation, error) {
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		return []client.Observation{{
			SourceNode:    args[0],
			SourceService: args[1],
			TargetNode:    args[2],
			TargetService: args[3],
		}}, nil
	}

	var r io.Reader
	if file == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var obs []client.Observation
	if err := json.NewDecoder(r).Decode(&obs); err != nil {
		return nil, fmt.Errorf("failed to parse observations: %w", err)
	}
	return obs, nil
}
