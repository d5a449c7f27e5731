package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pathCmd = &cobra.Command{
	Use:   "path <source> <target>",
	Short: "Find the best introduction path between two participants",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.reach.FindPath(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Printf("no path from %s to %s within %d hops\n", args[0], args[1], cfg.Reach.MaxHops)
			return nil
		}
		return printJSON(p)
	},
}

func init() {
	rootCmd.AddCommand(pathCmd)
}
