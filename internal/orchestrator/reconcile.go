package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/taskstore"
	"github.com/AlbertoV5/workstream/internal/threadstore"
	"github.com/AlbertoV5/workstream/internal/tmux"
)

// ReconcileReport summarizes what reconciliation found after a batch run.
type ReconcileReport struct {
	Completed   []string
	Failed      []string
	Interrupted []string
	Syntheses   int
}

// Reconcile settles the ledger against what actually happened in the
// grid. Pane exit statuses are the ground truth for threads the watcher
// never saw finish: a dead pane with exit 0 is completed, a nonzero exit
// is failed, and a pane that no longer exists at all is interrupted.
// Sentinel files left in the marker dir are scraped for agent session
// IDs and synthesis output, then the marker dir is removed.
func (run *BatchRun) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	r := run.runner
	report := &ReconcileReport{}

	panes, err := tmux.ListPanes(ctx, run.Socket, run.Session)
	if err != nil {
		// Session already gone; every unfinished thread was interrupted.
		panes = nil
	}
	byPane := make(map[string]tmux.PaneStatus, len(panes))
	for _, p := range panes {
		byPane[p.ID] = p
	}

	var results []threadstore.SessionResult
	for _, threadID := range run.order {
		state := run.runs[threadID]
		if state.finished {
			if state.exitCode == 0 {
				report.Completed = append(report.Completed, threadID)
			} else {
				report.Failed = append(report.Failed, threadID)
			}
			continue
		}
		status := taskstore.SessionInterrupted
		var exit *int
		if pane, ok := byPane[state.paneID]; ok && pane.Dead {
			code := pane.ExitStatus
			exit = &code
			if code == 0 {
				status = taskstore.SessionCompleted
				report.Completed = append(report.Completed, threadID)
			} else {
				status = taskstore.SessionFailed
				report.Failed = append(report.Failed, threadID)
			}
		} else {
			report.Interrupted = append(report.Interrupted, threadID)
		}
		results = append(results, threadstore.SessionResult{
			ThreadID:  threadID,
			SessionID: state.sessionID,
			Status:    status,
			ExitCode:  exit,
		})
	}
	if len(results) > 0 {
		if err := r.threads.CompleteSessionsLocked(results); err != nil {
			return report, err
		}
	}

	for _, threadID := range run.order {
		state := run.runs[threadID]
		if agentSession := ReadSessionID(run.MarkerDir, threadID); agentSession != "" {
			if err := r.threads.SetWorkingAgentSession(threadID, agentSession); err != nil {
				r.logger.Warn("failed to record agent session", "thread", threadID, "error", err)
			}
		}
		if synthesis, err := ReadSynthesis(run.MarkerDir, threadID); err == nil && synthesis != nil {
			if err := r.threads.SetSynthesisOutput(threadID, state.sessionID, synthesis.Output); err != nil {
				r.logger.Warn("failed to record synthesis output", "thread", threadID, "error", err)
			} else {
				report.Syntheses++
			}
		}
	}

	if err := os.RemoveAll(run.MarkerDir); err != nil {
		r.logger.Warn("failed to remove marker directory", "dir", run.MarkerDir, "error", err)
	}
	r.logger.Info("batch reconciled",
		"stage", run.Stage, "batch", run.Batch,
		"completed", len(report.Completed),
		"failed", len(report.Failed),
		"interrupted", len(report.Interrupted))
	return report, nil
}

// Recover rebuilds the run state for a batch whose orchestrator process
// is gone, from the thread ledger's running sessions and whatever panes
// still exist. The result is only good for Reconcile and Shutdown.
func (r *Runner) Recover(ctx context.Context, stage, batch int) (*BatchRun, error) {
	tf, err := r.threads.Read()
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("%02d.%02d.", stage, batch)
	run := &BatchRun{
		Socket:    tmux.StreamSocket(r.streamID),
		Session:   tmux.BatchSession(r.streamID, stage, batch),
		MarkerDir: MarkerDir(r.streamID, stage, batch),
		Stage:     stage,
		Batch:     batch,
		runner:    r,
		runs:      make(map[string]*threadRun),
	}
	for i := range tf.Threads {
		thread := &tf.Threads[i]
		if !strings.HasPrefix(thread.ThreadID, prefix) {
			continue
		}
		session, ok := threadstore.RunningSession(thread)
		if !ok {
			continue
		}
		run.runs[thread.ThreadID] = &threadRun{
			summary:   taskstore.ThreadSummary{ThreadID: thread.ThreadID},
			sessionID: session.SessionID,
		}
		run.order = append(run.order, thread.ThreadID)
	}
	if len(run.order) == 0 {
		return nil, errors.NewNotFoundError("running sessions",
			fmt.Sprintf("%02d.%02d", stage, batch)).
			WithSuggestion("nothing to reconcile; the batch may already be settled")
	}
	// Pane titles start with the thread ID; use them to re-associate
	// surviving panes with sessions.
	panes, err := tmux.ListPanes(ctx, run.Socket, run.Session)
	if err == nil {
		for _, pane := range panes {
			fields := strings.Fields(strings.TrimPrefix(pane.Title, "["))
			for _, field := range fields {
				if state, ok := run.runs[field]; ok {
					state.paneID = pane.ID
					break
				}
			}
		}
	}
	return run, nil
}

// Shutdown tears the grid down, escalating from Ctrl+C through
// kill-session to SIGKILL on leftover descendants.
func (run *BatchRun) Shutdown() {
	tmux.GracefulShutdown(run.Socket, run.Session, tmux.DefaultGracefulStopTimeout)
}
