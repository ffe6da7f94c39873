package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/service"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Social feed commands",
	Long:  "View recent videos from people you follow",
}

var feedShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		feed := service.NewFeed(a.deps)
		if err := feed.Open(cmd.Context()); err != nil {
			return err
		}
		defer feed.Close()

		return printFeed(feed)
	},
}

var feedLikeCmd = &cobra.Command{
	Use:   "like <post-id>",
	Short: "Like or unlike a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		feed := service.NewFeed(a.deps)
		if err := feed.Open(cmd.Context()); err != nil {
			return err
		}
		defer feed.Close()

		if _, err := feed.ToggleLike(cmd.Context(), args[0]); err != nil {
			return err
		}
		a.deps.Dispatcher.Wait()
		for _, p := range feed.View().Items {
			if p.ID != args[0] {
				continue
			}
			if p.IsLiked {
				formatter.PrintSuccess("Liked (%d likes)", p.LikeCount)
			} else {
				formatter.PrintSuccess("Unliked (%d likes)", p.LikeCount)
			}
		}
		return nil
	},
}

func printFeed(feed *service.Feed) error {
	items := feed.View().Items
	now := time.Now()
	rows := make([][]string, 0, len(items))
	for _, p := range items {
		author := ""
		if p.User != nil {
			author = p.User.Username
		}
		heart := " "
		if p.IsLiked {
			heart = "♥"
		}
		rows = append(rows, []string{
			p.ID,
			author,
			formatter.Truncate(p.Content, 40),
			fmt.Sprintf("%s %d", heart, p.LikeCount),
			formatter.TimeAgo(p.CreatedAt.Time, now),
		})
	}
	return output.PrintList("Feed", items, []string{"ID", "AUTHOR", "POST", "LIKES", "POSTED"}, rows)
}

func init() {
	feedCmd.AddCommand(feedShowCmd)
	feedCmd.AddCommand(feedLikeCmd)
}
