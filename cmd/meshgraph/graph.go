package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/meshgraph/pkg/client"
	"github.com/rmax-ai/meshgraph/pkg/model"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the service graph",
	Long: `Show the whole service graph. Without --from the live graph is shown;
with --from (and optionally --to) the snapshots stored for that window are merged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := windowFlags(cmd)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		m, err := newClient(cmd).GetGraph(ctx, w)
		if err != nil {
			return err
		}
		return printModel(cmd, m)
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps <node> [service]",
	Short: "Show what a node or one of its services depends on",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := windowFlags(cmd)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		c := newClient(cmd)
		var m *model.Model
		if len(args) == 2 {
			m, err = c.GetServiceDependencies(ctx, args[0], args[1], w)
		} else {
			m, err = c.GetDependencies(ctx, args[0], w)
		}
		if err != nil {
			return err
		}
		return printModel(cmd, m)
	},
}

func init() {
	for _, c := range []*cobra.Command{graphCmd, depsCmd} {
		c.Flags().String("from", "", "window start: RFC3339, unix millis, or a duration ago (e.g. 2h)")
		c.Flags().String("to", "", "window end (default now)")
		rootCmd.AddCommand(c)
	}
}

func windowFlags(cmd *cobra.Command) (client.Window, error) {
	fromFlag, _ := cmd.Flags().GetString("from")
	toFlag, _ := cmd.Flags().GetString("to")
	now := time.Now()

	from, err := parseTime(fromFlag, now)
	if err != nil {
		return client.Window{}, err
	}
	to, err := parseTime(toFlag, now)
	if err != nil {
		return client.Window{}, err
	}
	if from.IsZero() && !to.IsZero() {
		return client.Window{}, fmt.Errorf("--to requires --from")
	}
	return client.Window{From: from, To: to}, nil
}

func printModel(cmd *cobra.Command, m *model.Model) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	writeSummary(out, m)
	return nil
}

func writeSummary(out io.Writer, m *model.Model) {
	if m.IsEmpty() {
		fmt.Fprintln(out, "(empty graph)")
		return
	}
	fmt.Fprintf(out, "%d nodes, %d edges\n\n", m.NodeCount(), m.EdgeCount())
	for _, n := range m.SortedNodes() {
		fmt.Fprintf(out, "%s\n", n.ID)
		if comps := n.Components.Sorted(); len(comps) > 0 {
			fmt.Fprintf(out, "  services: %s\n", strings.Join(comps, ", "))
		}
		for _, link := range n.SelfLinks() {
			fmt.Fprintf(out, "  local:    %s\n", link)
		}
	}
	fmt.Fprintln(out)
	for _, e := range m.SortedEdges() {
		if e.Service != "" {
			fmt.Fprintf(out, "%s -> %s  [%s]\n", e.Source, e.Target, e.Service)
		} else {
			fmt.Fprintf(out, "%s -> %s\n", e.Source, e.Target)
		}
	}
}
