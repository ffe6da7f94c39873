package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/service"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Challenge room chat",
	Long:  "Read and post messages in a challenge chat room",
}

var chatWatchCmd = &cobra.Command{
	Use:   "watch <room-id>",
	Short: "Show the room history and stream new messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := interruptible(cmd.Context())
		defer stop()

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.close()

		room := service.NewChatRoom(a.deps)
		if err := room.Enter(ctx, args[0]); err != nil {
			return err
		}
		defer room.Leave()

		if output.GetOutputFormat() == output.FormatJSON {
			return output.Print("", room.View().Items)
		}

		formatter.PrintInfo("Watching room %s (Ctrl-C to stop)", args[0])
		shown := make(map[string]bool)
		return watch(ctx, room.Updates(), func() error {
			view := room.View()
			if view.State == service.ViewFailed {
				return offerRetry(ctx, view.Err, room.Retry)
			}
			for _, m := range view.Items {
				if shown[m.ID] {
					continue
				}
				shown[m.ID] = true
				printMessage(m)
			}
			return nil
		})
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <room-id> <text>",
	Short: "Post a message to a room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		room := service.NewChatRoom(a.deps)
		if err := room.Enter(cmd.Context(), args[0]); err != nil {
			return err
		}
		defer room.Leave()

		id, err := room.Send(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		a.deps.Dispatcher.Wait()
		if _, ok := findMessage(room.View().Items, id); !ok {
			return fmt.Errorf("message was not delivered")
		}
		formatter.PrintSuccess("Message sent")
		return nil
	},
}

func printMessage(m models.ChatMessage) {
	fmt.Printf("%s %s: %s\n",
		formatter.Info.Sprintf("[%s]", formatter.TimeAgo(m.CreatedAt.Time, time.Now())),
		formatter.Bold.Sprint(m.AuthorDisplay()),
		m.Text)
}

func findMessage(items []models.ChatMessage, id string) (models.ChatMessage, bool) {
	for _, m := range items {
		if m.ID == id {
			return m, true
		}
	}
	return models.ChatMessage{}, false
}

func init() {
	chatCmd.AddCommand(chatWatchCmd)
	chatCmd.AddCommand(chatSendCmd)
}
