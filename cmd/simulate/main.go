// Command simulate drives synthetic visitors through the client SDK against a
// running collector and prints the resulting variant split.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	visitors        int
	pageViews       int
	concurrency     int
	collectorURL    string
	experimentsFile string
	redisURL        string
	conversionRate  float64
	lift            float64
	logLevel        string
)

var rootCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run synthetic visitors through active experiments",
	Long: `Creates one client per visitor, starts it against the active experiments,
records page views and conversions, and flushes them to the collector.

Each visitor keeps its own storage across page views, so a visitor that
reloads must see the same variant. Mismatches are reported.

Examples:
  simulate --visitors 10000
  simulate --visitors 500 --page-views 3 --collector http://localhost:8080
  simulate --redis redis://localhost:6379/0 --lift 0.02`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSimulation(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	f := rootCmd.Flags()
	f.IntVarP(&visitors, "visitors", "n", 1000, "number of synthetic visitors")
	f.IntVar(&pageViews, "page-views", 1, "page loads per visitor")
	f.IntVarP(&concurrency, "concurrency", "c", 32, "visitors simulated in parallel")
	f.StringVar(&collectorURL, "collector", "http://localhost:8080", "collector base URL")
	f.StringVarP(&experimentsFile, "experiments", "f", "configs/experiments.yaml", "experiment definitions")
	f.StringVar(&redisURL, "redis", "", "keep visitor storage in redis instead of memory")
	f.Float64Var(&conversionRate, "conversion-rate", 0.1, "baseline probability a page view converts")
	f.Float64Var(&lift, "lift", 0, "extra conversion probability for non-control variants")
	f.StringVar(&logLevel, "log-level", "warn", "log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
