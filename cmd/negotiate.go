package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/negotiation"
)

var (
	negotiateStrategy string
	negotiateRounds   int
	negotiateSplit    float64
)

var negotiateCmd = &cobra.Command{
	Use:   "negotiate <source> <target>",
	Short: "Run a full negotiation between two participants",
	Long:  "Evaluates the pair, opens a session and lets both agents negotiate to a terminal state, printing the round transcript.",
	Args:  cobra.ExactArgs(2),
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
		target, err := env.store.Profile(ctx, args[1])
		if err != nil {
			return err
		}

		cand, err := env.matcher.Evaluate(ctx, source, target)
		if err != nil {
			return err
		}
		if cand == nil {
			fmt.Printf("%s and %s do not qualify as a match; nothing to negotiate\n", args[0], args[1])
			return nil
		}

		opts := negotiation.StartOptions{Strategy: negotiateStrategy, MaxRounds: negotiateRounds}
		sessionID, err := env.facilitator.Start(ctx, cand, opts)
		if err != nil {
			return err
		}

		opening := model.Proposal{
			From:  cand.SourceID,
			Split: negotiateSplit,
			Terms: openingTerms(source, target),
		}
		sess, err := env.facilitator.AutoRun(ctx, sessionID, opening)
		if err != nil {
			return err
		}

		fmt.Printf("session %s: %s vs %s (overall %.4f, mutuality %.4f)\n",
			sess.ID, sess.ParticipantA, sess.ParticipantB, cand.OverallScore, cand.MutualityScore)
		for _, rec := range sess.History {
			fmt.Printf("  round %2d  %-12s split %.2f  -> %s (confidence %.2f)\n",
				rec.Round, rec.Proposal.From, rec.Proposal.Split, rec.Decision, rec.Confidence)
		}
		fmt.Printf("outcome: %s", sess.Status)
		if sess.Reason != "" {
			fmt.Printf(" (%s)", sess.Reason)
		}
		fmt.Println()

		if sess.Status == model.SessionAgreed {
			agreement, err := env.store.GetAgreement(ctx, sess.ID)
			if err != nil {
				return err
			}
			if agreement != nil {
				return printJSON(agreement)
			}
		}
		return nil
	},
}

// openingTerms drafts the first proposal from each side's declared items:
// each participant gets the other's lead offering and gives their own.
func openingTerms(a, b *model.Profile) model.Terms {
	return model.Terms{
		WhatAGets:  []string{b.Offerings.Explicit[0].Text},
		WhatAGives: []string{a.Offerings.Explicit[0].Text},
		WhatBGets:  []string{a.Offerings.Explicit[0].Text},
		WhatBGives: []string{b.Offerings.Explicit[0].Text},
	}
}

func init() {
	negotiateCmd.Flags().StringVar(&negotiateStrategy, "strategy", "", "negotiation strategy (tit_for_tat, adaptive, ensemble; default from config)")
	negotiateCmd.Flags().IntVar(&negotiateRounds, "rounds", 0, "maximum rounds (default from config)")
	negotiateCmd.Flags().Float64Var(&negotiateSplit, "split", 0.7, "opening split kept by the proposer")
	rootCmd.AddCommand(negotiateCmd)
}
