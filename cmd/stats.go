package main

import (
	"github.com/spf13/cobra"
)

var (
	statsConnectors int
	statsMetrics    bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Network statistics, super-connectors and negotiation metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if statsMetrics {
			snap, err := env.collector.Collect(ctx)
			if err != nil {
				return err
			}
			return printJSON(snap)
		}

		if statsConnectors > 0 {
			connectors, err := env.reach.FindSuperConnectors(ctx, statsConnectors)
			if err != nil {
				return err
			}
			return printJSON(connectors)
		}

		stats, err := env.reach.NetworkStatistics(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsConnectors, "connectors", 0, "list the top N super-connectors instead")
	statsCmd.Flags().BoolVar(&statsMetrics, "metrics", false, "print negotiation health metrics instead")
	rootCmd.AddCommand(statsCmd)
}
