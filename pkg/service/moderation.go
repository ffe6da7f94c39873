package service

import (
	"context"
	"fmt"

	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/gateway"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/optimistic"
	"golang.org/x/sync/errgroup"
)

const (
	reportsTable = "reports"
	videosTable  = "videos"
	usersTable   = "users"

	reportSelect = "*,reporter:reporter_id(username,avatar_url)," +
		"reported_user:reported_user_id(username,avatar_url)," +
		"video:video_id(title,thumbnail_url)"
)

// ReportQueue shows the reports in one status tab
type ReportQueue struct {
	deps Deps
	list *reloadingList[models.Report]
}

// NewReportQueue creates a queue with no tab open
func NewReportQueue(deps Deps) *ReportQueue {
	q := &ReportQueue{deps: deps}
	q.list = newReloadingList(deps.Opener, reportsTable, models.ReportNewestFirst, validateReportStatus, q.query)
	return q
}

func validateReportStatus(status string) error {
	if !models.ReportStatus(status).Valid() {
		return fmt.Errorf("unknown report status %q", status)
	}
	return nil
}

// Open switches to the tab for status
func (q *ReportQueue) Open(ctx context.Context, status models.ReportStatus) error {
	return q.list.open(ctx, string(status))
}

// Retry reopens the current tab after a failure
func (q *ReportQueue) Retry(ctx context.Context) error {
	return q.list.retry(ctx)
}

// Close ends the subscription
func (q *ReportQueue) Close() {
	q.list.scope.Close()
}

// View returns the reports of the open tab, newest first
func (q *ReportQueue) View() Snapshot[models.Report] {
	return q.list.snapshot()
}

// Updates lists the signals that fire when View may have changed
func (q *ReportQueue) Updates() []<-chan struct{} {
	return q.list.updates()
}

// UpdateStatus moves a report to another status. The report leaves the tab at
// once and comes back if the update fails.
func (q *ReportQueue) UpdateStatus(ctx context.Context, id string, to models.ReportStatus) (optimistic.Result, error) {
	report, ok := q.list.cache.Get(id)
	if !ok {
		return optimistic.Result{}, clierrors.NotFoundError("report", id)
	}
	if err := report.Status.CanTransition(to); err != nil {
		return optimistic.Result{}, clierrors.NewCLIError(clierrors.ErrorTypeValidation, err.Error(), err)
	}

	patch := models.ReportStatusPatch{
		Status:     to,
		ReviewedAt: models.NewTime(q.deps.now()),
		ReviewedBy: q.deps.Session.UserID,
	}
	return q.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "report:" + id,
		Kind:   optimistic.Hard,
		Policy: optimistic.IgnoreWhilePending,
		Intent: to,
		Label:  "Update report",
		Apply:  discard(q.list.cache, id),
		Commit: func(ctx context.Context) error {
			return q.deps.Gateway.From(reportsTable).Eq("id", id).Update(ctx, patch, nil)
		},
	}), nil
}

// FileReport submits a user report
func (q *ReportQueue) FileReport(ctx context.Context, report models.NewReport) error {
	report.ReporterID = q.deps.Session.UserID
	if err := report.Validate(); err != nil {
		return clierrors.NewCLIError(clierrors.ErrorTypeValidation, err.Error(), err)
	}
	return q.deps.Gateway.From(reportsTable).Insert(ctx, report, nil)
}

func (q *ReportQueue) query(ctx context.Context, status string) ([]models.Report, error) {
	return gateway.FetchAll[models.Report](ctx, q.deps.Gateway.From(reportsTable).
		Select(reportSelect).
		Eq("status", status).
		Order("created_at", false))
}

// FlaggedQueue shows flagged videos waiting for review
type FlaggedQueue struct {
	deps Deps
	list *reloadingList[models.FlaggedVideo]
}

// NewFlaggedQueue creates a closed review queue
func NewFlaggedQueue(deps Deps) *FlaggedQueue {
	f := &FlaggedQueue{deps: deps}
	f.list = newReloadingList(deps.Opener, videosTable, models.FlaggedNewestFirst, nil, f.query)
	return f
}

// Open subscribes to videos and loads the pending flagged ones
func (f *FlaggedQueue) Open(ctx context.Context) error {
	return f.list.open(ctx, videosTable)
}

// Retry reopens after a failure
func (f *FlaggedQueue) Retry(ctx context.Context) error {
	return f.list.retry(ctx)
}

// Close ends the subscription
func (f *FlaggedQueue) Close() {
	f.list.scope.Close()
}

// View returns the pending flagged videos, newest first
func (f *FlaggedQueue) View() Snapshot[models.FlaggedVideo] {
	return f.list.snapshot()
}

// Review approves or rejects a flagged video. Both decisions are final.
func (f *FlaggedQueue) Review(ctx context.Context, id string, decision models.ReviewStatus) (optimistic.Result, error) {
	video, ok := f.list.cache.Get(id)
	if !ok {
		return optimistic.Result{}, clierrors.NotFoundError("flagged video", id)
	}
	if err := video.ReviewStatus.CanTransition(decision); err != nil {
		return optimistic.Result{}, clierrors.NewCLIError(clierrors.ErrorTypeValidation, err.Error(), err)
	}

	patch := models.ReviewPatch{
		ReviewStatus: decision,
		ReviewedAt:   models.NewTime(f.deps.now()),
		ReviewedBy:   f.deps.Session.UserID,
	}
	return f.deps.Dispatcher.Dispatch(ctx, optimistic.Mutation{
		Key:    "review:" + id,
		Kind:   optimistic.Hard,
		Policy: optimistic.IgnoreWhilePending,
		Intent: decision,
		Label:  "Review video",
		Apply:  discard(f.list.cache, id),
		Commit: func(ctx context.Context) error {
			return f.deps.Gateway.From(videosTable).Eq("id", id).Update(ctx, patch, nil)
		},
	}), nil
}

func (f *FlaggedQueue) query(ctx context.Context, _ string) ([]models.FlaggedVideo, error) {
	return gateway.FetchAll[models.FlaggedVideo](ctx, f.deps.Gateway.From(videosTable).
		Eq("is_flagged", true).
		Eq("review_status", string(models.ReviewPending)).
		Order("created_at", false))
}

// ModerationStats computes the dashboard counters
func ModerationStats(ctx context.Context, gw *gateway.Client) (models.ModerationStats, error) {
	var (
		stats   models.ModerationStats
		reports []struct {
			Status models.ReportStatus `json:"status"`
		}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.From(reportsTable).Select("status").Fetch(ctx, &reports)
	})
	g.Go(func() (err error) {
		stats.TotalUsers, err = gw.From(usersTable).Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalVideos, err = gw.From(videosTable).Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.FlaggedContent, err = gw.From(videosTable).Eq("is_flagged", true).Count(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.ModerationStats{}, err
	}

	stats.TotalReports = len(reports)
	for _, r := range reports {
		switch r.Status {
		case models.ReportPending:
			stats.PendingReports++
		case models.ReportResolved:
			stats.ResolvedReports++
		}
	}
	stats.ResolutionRate = ratio(stats.ResolvedReports, stats.TotalReports)
	stats.FlaggedRate = ratio(stats.FlaggedContent, stats.TotalVideos)
	return stats, nil
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
