package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/prompter"
	"github.com/zfogg/daredrop/pkg/service"
)

var (
	challengeFilter      string
	challengeTitle       string
	challengeDescription string
	challengeMax         int
	challengeDuration    time.Duration
)

var challengesCmd = &cobra.Command{
	Use:   "challenges",
	Short: "Live challenge commands",
	Long:  "Browse, join and start live challenges",
}

var challengesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active live challenges",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		live := service.NewLiveChallenges(a.deps)
		if err := live.Open(cmd.Context()); err != nil {
			return err
		}
		defer live.Close()

		return printChallenges(live.Filter(challengeFilter))
	},
}

var challengesWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the active challenge list up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := interruptible(cmd.Context())
		defer stop()

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.close()

		live := service.NewLiveChallenges(a.deps)
		if err := live.Open(ctx); err != nil {
			return err
		}
		defer live.Close()

		return watch(ctx, live.Updates(), func() error {
			if view := live.View(); view.State == service.ViewFailed {
				return offerRetry(ctx, view.Err, live.Retry)
			}
			return printChallenges(live.Filter(challengeFilter))
		})
	},
}

var challengesJoinCmd = &cobra.Command{
	Use:   "join <challenge-id>",
	Short: "Join a live challenge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		live := service.NewLiveChallenges(a.deps)
		if err := live.Open(cmd.Context()); err != nil {
			return err
		}
		defer live.Close()

		if _, err := live.Join(cmd.Context(), args[0]); err != nil {
			return err
		}
		a.deps.Dispatcher.Wait()
		for _, c := range live.View().Items {
			if c.ID == args[0] {
				formatter.PrintSuccess("Joined %s (%d/%d)", c.Title, c.CurrentParticipants, c.MaxParticipants)
			}
		}
		return nil
	},
}

var challengesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a live challenge",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		title := challengeTitle
		if title == "" {
			if title, err = prompter.PromptString("Title"); err != nil {
				return err
			}
		}

		out, err := service.NewLiveChallenges(a.deps).Create(cmd.Context(), service.ChallengeInput{
			Title:           title,
			Description:     challengeDescription,
			MaxParticipants: challengeMax,
			Duration:        challengeDuration,
		})
		if err != nil {
			return err
		}
		if out.Marker.Flagged {
			formatter.PrintWarning("Challenge created and flagged for review")
			return nil
		}
		formatter.PrintSuccess("Challenge created")
		return nil
	},
}

func printChallenges(items []models.LiveChallenge) error {
	now := time.Now()
	rows := make([][]string, 0, len(items))
	for _, c := range items {
		left := "open-ended"
		if c.EndTime != nil {
			left = formatter.TimeLeft(c.EndTime.Time, now)
		}
		rows = append(rows, []string{
			c.ID,
			formatter.Truncate(c.Title, 32),
			fmt.Sprintf("%d/%d", c.CurrentParticipants, c.MaxParticipants),
			left,
		})
	}
	return output.PrintList("Live challenges", items, []string{"ID", "TITLE", "PLAYERS", "TIME LEFT"}, rows)
}

func init() {
	challengesListCmd.Flags().StringVar(&challengeFilter, "filter", "", "Only show challenges whose title or description contains this text")
	challengesWatchCmd.Flags().StringVar(&challengeFilter, "filter", "", "Only show challenges whose title or description contains this text")

	challengesCreateCmd.Flags().StringVar(&challengeTitle, "title", "", "Challenge title (prompted when omitted)")
	challengesCreateCmd.Flags().StringVar(&challengeDescription, "description", "", "Challenge description")
	challengesCreateCmd.Flags().IntVar(&challengeMax, "max", models.DefaultMaxParticipants, "Maximum participants")
	challengesCreateCmd.Flags().DurationVar(&challengeDuration, "duration", models.DefaultChallengeDuration, "How long the challenge runs")

	challengesCmd.AddCommand(challengesListCmd)
	challengesCmd.AddCommand(challengesWatchCmd)
	challengesCmd.AddCommand(challengesJoinCmd)
	challengesCmd.AddCommand(challengesCreateCmd)
}
