package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/meshgraph/pkg/client"
)

var rootCmd = &cobra.Command{
	Use:           "meshgraph",
	Short:         "meshgraph inspects the service dependency graph",
	Long:          `meshgraph talks to a running meshgraph-d: it queries the live or historical service graph, submits call observations and triggers reconciliation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("endpoint", envOrDefault("MESHGRAPH_ENDPOINT", "http://127.0.0.1:8095"), "meshgraph-d base URL")
	rootCmd.PersistentFlags().Bool("json", false, "print raw JSON instead of a summary")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
}

func newClient(cmd *cobra.Command) *client.Client {
	endpoint, _ := cmd.Flags().GetString("endpoint")
	return client.NewClient(endpoint)
}

// parseTime accepts RFC3339, unix milliseconds, or a duration meaning "that
// long ago" (e.g. 2h).
func parseTime(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339, unix millis or a duration like 2h", value)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
