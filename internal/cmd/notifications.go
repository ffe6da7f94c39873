package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/service"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Notification commands",
	Long:  "View and manage notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		center := service.NewNotificationCenter(a.deps)
		if err := center.Open(cmd.Context()); err != nil {
			return err
		}
		defer center.Close()

		return printNotifications(center)
	},
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream notifications as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := interruptible(cmd.Context())
		defer stop()

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.close()

		center := service.NewNotificationCenter(a.deps)
		center.OnNew = func(n models.Notification) {
			formatter.PrintInfo("%s %s", formatter.Bold.Sprint(n.Title), n.Body)
		}
		if err := center.Open(ctx); err != nil {
			return err
		}
		defer center.Close()

		formatter.PrintInfo("%d unread. Watching for new notifications (Ctrl-C to stop)", center.UnreadCount())
		return watch(ctx, center.Updates(), func() error {
			if view := center.View(); view.State == service.ViewFailed {
				return offerRetry(ctx, view.Err, center.Retry)
			}
			return nil
		})
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read [notification-id]",
	Short: "Mark one or all notifications as read",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		center := service.NewNotificationCenter(a.deps)
		if err := center.Open(cmd.Context()); err != nil {
			return err
		}
		defer center.Close()

		if len(args) == 0 {
			center.MarkAllRead(cmd.Context())
		} else if _, err := center.MarkRead(cmd.Context(), args[0]); err != nil {
			return err
		}
		a.deps.Dispatcher.Wait()
		formatter.PrintSuccess("%d unread remaining", center.UnreadCount())
		return nil
	},
}

func printNotifications(center *service.NotificationCenter) error {
	items := center.View().Items
	now := time.Now()
	rows := make([][]string, 0, len(items))
	for _, n := range items {
		mark := ""
		if !n.Read {
			mark = "*"
		}
		rows = append(rows, []string{mark, n.ID, string(n.Type), formatter.Truncate(n.Title, 40), formatter.TimeAgo(n.CreatedAt.Time, now)})
	}
	return output.PrintList("Notifications", items, []string{"", "ID", "TYPE", "TITLE", "WHEN"}, rows)
}

func init() {
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)
}
