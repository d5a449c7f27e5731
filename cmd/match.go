package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/network-cli/internal/model"
)

var matchCmd = &cobra.Command{
	Use:   "match <source> [target]",
	Short: "Evaluate match candidates for a participant",
	Long:  "With a target, scores that single pair. Without, scores the source against every other participant and prints accepted candidates best first.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		source, err := env.store.Profile(ctx, args[0])
		if err != nil {
			return err
		}

		if len(args) == 2 {
			target, err := env.store.Profile(ctx, args[1])
			if err != nil {
				return err
			}
			cand, err := env.matcher.Evaluate(ctx, source, target)
			if err != nil {
				return err
			}
			if cand == nil {
				fmt.Printf("%s and %s do not qualify as a match\n", args[0], args[1])
				return nil
			}
			return printJSON(cand)
		}

		ids, err := env.store.Participants(ctx)
		if err != nil {
			return err
		}
		var targets []*model.Profile
		for _, id := range ids {
			if id == source.ParticipantID {
				continue
			}
			p, err := env.store.Profile(ctx, id)
			if err != nil {
				return err
			}
			targets = append(targets, p)
		}

		candidates, err := env.matcher.EvaluateAll(ctx, source, targets, cfg.Batch.MaxConcurrent)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Printf("no qualifying matches for %s\n", args[0])
			return nil
		}
		return printJSON(candidates)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}
