package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/service"
)

var (
	reportsStatus     string
	reportUserID      string
	reportVideoID     string
	reportReason      string
	reportDescription string
)

var moderationCmd = &cobra.Command{
	Use:   "moderation",
	Short: "Moderation commands",
	Long:  "Review user reports and flagged videos",
}

var moderationReportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List reports in one status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		q := service.NewReportQueue(a.deps)
		if err := q.Open(cmd.Context(), models.ReportStatus(reportsStatus)); err != nil {
			return err
		}
		defer q.Close()

		return printReports(q.View().Items)
	},
}

var moderationResolveCmd = &cobra.Command{
	Use:   "resolve <report-id> <reviewed|resolved|dismissed>",
	Short: "Move a report to another status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		q, err := findReport(cmd.Context(), a, args[0])
		if err != nil {
			return err
		}
		defer q.Close()

		if _, err := q.UpdateStatus(cmd.Context(), args[0], models.ReportStatus(args[1])); err != nil {
			return err
		}
		a.deps.Dispatcher.Wait()
		formatter.PrintSuccess("Report %s is now %s", args[0], args[1])
		return nil
	},
}

var moderationFlaggedCmd = &cobra.Command{
	Use:   "flagged",
	Short: "List flagged videos waiting for review",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		f := service.NewFlaggedQueue(a.deps)
		if err := f.Open(cmd.Context()); err != nil {
			return err
		}
		defer f.Close()

		items := f.View().Items
		now := time.Now()
		rows := make([][]string, 0, len(items))
		for _, v := range items {
			rows = append(rows, []string{
				v.ID,
				formatter.Truncate(v.Title, 30),
				formatter.Flags(v.ScanFlags),
				formatter.Percent(v.ScanConfidence),
				formatter.TimeAgo(v.CreatedAt.Time, now),
			})
		}
		return output.PrintList("Flagged videos", items, []string{"ID", "TITLE", "FLAGS", "CONFIDENCE", "UPLOADED"}, rows)
	},
}

var moderationReviewCmd = &cobra.Command{
	Use:   "review <video-id> <approved|rejected>",
	Short: "Approve or reject a flagged video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		f := service.NewFlaggedQueue(a.deps)
		if err := f.Open(cmd.Context()); err != nil {
			return err
		}
		defer f.Close()

		if _, err := f.Review(cmd.Context(), args[0], models.ReviewStatus(args[1])); err != nil {
			return err
		}
		a.deps.Dispatcher.Wait()
		formatter.PrintSuccess("Video %s %s", args[0], args[1])
		return nil
	},
}

var moderationStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show moderation dashboard counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		stats, err := service.ModerationStats(cmd.Context(), a.gateway)
		if err != nil {
			return err
		}
		if output.GetOutputFormat() == output.FormatJSON {
			return output.Print("", stats)
		}
		return output.PrintRecord("Moderation", map[string]interface{}{
			"total reports":   stats.TotalReports,
			"pending reports": stats.PendingReports,
			"resolved":        stats.ResolvedReports,
			"resolution rate": formatter.Percent(stats.ResolutionRate),
			"users":           stats.TotalUsers,
			"videos":          stats.TotalVideos,
			"flagged videos":  stats.FlaggedContent,
			"flagged rate":    formatter.Percent(stats.FlaggedRate),
		})
	},
}

var moderationReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report a user or video",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		report := models.NewReport{
			ReportedUserID: reportUserID,
			Reason:         reportReason,
			Description:    reportDescription,
		}
		if reportVideoID != "" {
			report.VideoID = &reportVideoID
		}
		if err := service.NewReportQueue(a.deps).FileReport(cmd.Context(), report); err != nil {
			return err
		}
		formatter.PrintSuccess("Report submitted")
		return nil
	},
}

// findReport opens the tab that holds id, trying each status in order
func findReport(ctx context.Context, a *app, id string) (*service.ReportQueue, error) {
	q := service.NewReportQueue(a.deps)
	for _, status := range models.ReportStatuses {
		if err := q.Open(ctx, status); err != nil {
			q.Close()
			return nil, err
		}
		for _, r := range q.View().Items {
			if r.ID == id {
				return q, nil
			}
		}
	}
	q.Close()
	return nil, clierrors.NotFoundError("report", id)
}

func printReports(items []models.Report) error {
	now := time.Now()
	rows := make([][]string, 0, len(items))
	for _, r := range items {
		reporter, reported := "", ""
		if r.Reporter != nil {
			reporter = r.Reporter.Username
		}
		if r.ReportedUser != nil {
			reported = r.ReportedUser.Username
		}
		rows = append(rows, []string{r.ID, string(r.Status), reporter, reported, formatter.Truncate(r.Reason, 30), formatter.TimeAgo(r.CreatedAt.Time, now)})
	}
	return output.PrintList("Reports", items, []string{"ID", "STATUS", "REPORTER", "REPORTED", "REASON", "FILED"}, rows)
}

func init() {
	moderationReportsCmd.Flags().StringVar(&reportsStatus, "status", string(models.ReportPending), "Report status tab: pending, reviewed, resolved, dismissed")

	moderationReportCmd.Flags().StringVar(&reportUserID, "user", "", "ID of the user being reported")
	moderationReportCmd.Flags().StringVar(&reportVideoID, "video", "", "ID of the video being reported")
	moderationReportCmd.Flags().StringVar(&reportReason, "reason", "", "Why the content is being reported")
	moderationReportCmd.Flags().StringVar(&reportDescription, "description", "", "Extra detail for moderators")
	_ = moderationReportCmd.MarkFlagRequired("user")
	_ = moderationReportCmd.MarkFlagRequired("reason")

	moderationCmd.AddCommand(moderationReportsCmd)
	moderationCmd.AddCommand(moderationResolveCmd)
	moderationCmd.AddCommand(moderationFlaggedCmd)
	moderationCmd.AddCommand(moderationReviewCmd)
	moderationCmd.AddCommand(moderationStatsCmd)
	moderationCmd.AddCommand(moderationReportCmd)
}
