package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/AlbertoV5/workstream/internal/index"
	"github.com/AlbertoV5/workstream/internal/plandoc"
)

// StageSync is one stage's sync outcome.
type StageSync struct {
	Stage int
	Title string
	URL   string
	Error error
}

// SyncReport buckets the per-stage outcomes of one sync run.
type SyncReport struct {
	Created  []StageSync
	Skipped  []StageSync
	Reopened []StageSync
	Closed   []StageSync
	Failed   []StageSync
}

// Summary renders a one-line human summary.
func (r *SyncReport) Summary() string {
	return fmt.Sprintf("%d created, %d skipped, %d reopened, %d closed, %d failed",
		len(r.Created), len(r.Skipped), len(r.Reopened), len(r.Closed), len(r.Failed))
}

// SyncStages reconciles one issue per plan stage:
//   - no issue yet: create it with the stream and stage labels
//   - open issue, stage approved: close it
//   - closed issue, stage no longer approved: reopen it
//   - otherwise: skip
//
// Failures are collected per stage rather than aborting the run, so one
// bad stage does not block the rest.
func (g *GitHub) SyncStages(ctx context.Context, stream *index.Workstream, plan *plandoc.Plan) (*SyncReport, error) {
	report := &SyncReport{}
	for _, stage := range plan.Stages {
		title := TitleFor(stream.ID, stage.ID, stage.Name)
		entry := StageSync{Stage: stage.ID, Title: title}
		approved := false
		if state, ok := stream.Approval.Stages[stage.ID]; ok {
			approved = state.Status == index.ApprovalApproved
		}

		issues, err := g.Search(ctx, title)
		if err != nil {
			entry.Error = err
			report.Failed = append(report.Failed, entry)
			continue
		}

		switch {
		case len(issues) == 0:
			labels := []string{
				g.Taxonomy["stream"].Label(stream.ID),
				g.Taxonomy["stage"].Label(fmt.Sprintf("%02d", stage.ID)),
			}
			if err := g.EnsureLabels(ctx, map[string]string{
				"stream": stream.ID,
				"stage":  fmt.Sprintf("%02d", stage.ID),
			}); err != nil {
				entry.Error = err
				report.Failed = append(report.Failed, entry)
				continue
			}
			url, err := g.Create(ctx, title, stageIssueBody(stage), labels)
			if err != nil {
				entry.Error = err
				report.Failed = append(report.Failed, entry)
				continue
			}
			entry.URL = url
			report.Created = append(report.Created, entry)

		case approved && strings.EqualFold(issues[0].State, "open"):
			if err := g.Close(ctx, issues[0].Number); err != nil {
				entry.Error = err
				report.Failed = append(report.Failed, entry)
				continue
			}
			entry.URL = issues[0].URL
			report.Closed = append(report.Closed, entry)

		case !approved && strings.EqualFold(issues[0].State, "closed"):
			if err := g.Reopen(ctx, issues[0].Number); err != nil {
				entry.Error = err
				report.Failed = append(report.Failed, entry)
				continue
			}
			entry.URL = issues[0].URL
			report.Reopened = append(report.Reopened, entry)

		default:
			entry.URL = issues[0].URL
			report.Skipped = append(report.Skipped, entry)
		}
	}
	g.logger.Info("stage issues synced", "summary", report.Summary())
	return report, nil
}

func stageIssueBody(stage plandoc.Stage) string {
	var b strings.Builder
	if stage.Definition != "" {
		b.WriteString(stage.Definition)
		b.WriteString("\n\n")
	}
	for _, batch := range stage.Batches {
		fmt.Fprintf(&b, "- Batch %02d: %s (%d threads)\n", batch.ID, batch.Name, len(batch.Threads))
	}
	if b.Len() == 0 {
		b.WriteString("Tracking issue for this stage.")
	}
	return b.String()
}
