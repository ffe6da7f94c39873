package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/service"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "People you might want to follow",
}

var recommendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recommended users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		recs := service.NewRecommendations(a.deps)
		if err := recs.Load(cmd.Context()); err != nil {
			return err
		}

		items := recs.View().Items
		rows := make([][]string, 0, len(items))
		for _, r := range items {
			rows = append(rows, []string{r.ID, r.Username, fmt.Sprintf("%d", r.MutualFriends), fmt.Sprintf("%d", r.FollowerCount), r.Reason})
		}
		return output.PrintList("Recommended", items, []string{"ID", "USERNAME", "MUTUAL", "FOLLOWERS", "WHY"}, rows)
	},
}

var recommendFollowCmd = &cobra.Command{
	Use:   "follow <user-id>",
	Short: "Follow a recommended user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		recs := service.NewRecommendations(a.deps)
		if err := recs.Load(cmd.Context()); err != nil {
			return err
		}
		if _, err := recs.Follow(cmd.Context(), args[0]); err != nil {
			return err
		}
		a.deps.Dispatcher.Wait()
		for _, r := range recs.View().Items {
			if r.ID == args[0] {
				return fmt.Errorf("follow did not take effect")
			}
		}
		formatter.PrintSuccess("Following %s", args[0])
		return nil
	},
}

func init() {
	recommendCmd.AddCommand(recommendListCmd)
	recommendCmd.AddCommand(recommendFollowCmd)
}
