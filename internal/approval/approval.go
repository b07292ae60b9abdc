// Package approval implements the three approval tracks that gate the
// workstream lifecycle: plan approval (hash-stamped, auto-revoked on plan
// edits), per-stage approval (gated on task completion), and tasks
// approval (the one-way transition that serializes TASKS.md into the task
// ledger). Each track moves draft -> approved -> revoked -> approved;
// revocation is never terminal.
package approval

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/fstore"
	"github.com/AlbertoV5/workstream/internal/index"
	"github.com/AlbertoV5/workstream/internal/logging"
	"github.com/AlbertoV5/workstream/internal/plandoc"
	"github.com/AlbertoV5/workstream/internal/repo"
	"github.com/AlbertoV5/workstream/internal/taskid"
	"github.com/AlbertoV5/workstream/internal/tasksmd"
	"github.com/AlbertoV5/workstream/internal/taskstore"
)

// Gate binds the approval operations of one workstream.
type Gate struct {
	root     string
	streamID string
	locker   *fstore.Locker
	tasks    *taskstore.Store
	logger   *logging.Logger
}

// NewGate returns a Gate for the given workstream.
func NewGate(root, streamID string, locker *fstore.Locker, logger *logging.Logger) *Gate {
	if locker == nil {
		locker = fstore.NewLocker()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Gate{
		root:     root,
		streamID: streamID,
		locker:   locker,
		tasks:    taskstore.NewStore(root, streamID, locker),
		logger:   logger.WithStream(streamID).WithPhase("approval"),
	}
}

// PlanResult reports the outcome of a plan approval.
type PlanResult struct {
	PlanHash string
	Forced   bool
	// OpenQuestions is populated when Forced is set, so the caller can
	// show what was overridden.
	OpenQuestions []plandoc.StageQuestion
}

// ApprovePlan approves the plan track. It fails when the plan has
// unresolved questions unless force is given, and always stamps the
// current content hash so later edits are detectable.
func (g *Gate) ApprovePlan(force bool) (*PlanResult, error) {
	planPath := repo.PlanPath(g.root, g.streamID)
	data, err := os.ReadFile(planPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("plan file", planPath).
				WithCause(errors.ErrPlanNotFound)
		}
		return nil, errors.Wrap(err, "failed to read plan file")
	}
	plan, err := plandoc.Parse(data)
	if err != nil {
		return nil, err
	}

	open := plan.OpenQuestions()
	if len(open) > 0 && !force {
		lines := make([]string, 0, len(open))
		for _, q := range open {
			lines = append(lines, fmt.Sprintf("stage %d: %s", q.Stage, q.Question.Text))
		}
		return nil, errors.NewApprovalError("approve plan", fmt.Sprintf(
			"plan has %d unresolved question(s):\n  %s",
			len(open), strings.Join(lines, "\n  "))).
			WithForceHint()
	}

	result := &PlanResult{PlanHash: plandoc.Hash(data), Forced: force && len(open) > 0}
	if result.Forced {
		result.OpenQuestions = open
	}
	err = index.Modify(g.root, g.locker, func(idx *index.Index) error {
		stream, err := g.stream(idx)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		stream.Approval.Plan = index.PlanApproval{
			Status:     index.ApprovalApproved,
			PlanHash:   result.PlanHash,
			ApprovedAt: &now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.logger.Info("plan approved", "hash", result.PlanHash, "forced", result.Forced)
	return result, nil
}

// RevokePlan manually revokes the plan track with a reason.
func (g *Gate) RevokePlan(reason string) error {
	return index.Modify(g.root, g.locker, func(idx *index.Index) error {
		stream, err := g.stream(idx)
		if err != nil {
			return err
		}
		stream.Approval.Plan.Status = index.ApprovalRevoked
		stream.Approval.Plan.RevokedReason = reason
		return nil
	})
}

// IsPlanModified recomputes the plan hash and compares it to the one
// stamped at approval time.
func (g *Gate) IsPlanModified() (bool, error) {
	idx, err := index.Load(g.root)
	if err != nil {
		return false, err
	}
	stream, err := g.stream(idx)
	if err != nil {
		return false, err
	}
	if stream.Approval.Plan.Status != index.ApprovalApproved || stream.Approval.Plan.PlanHash == "" {
		return false, nil
	}
	hash, err := plandoc.HashFile(repo.PlanPath(g.root, g.streamID))
	if err != nil {
		return false, err
	}
	return hash != stream.Approval.Plan.PlanHash, nil
}

// CheckAndRevokeIfModified lazily enforces plan-hash staleness: when the
// plan file no longer matches the approved hash, the plan approval is
// revoked in place. Called by every mutating command before task-creation
// work, not by a watcher or timer. Returns whether a revocation happened.
func (g *Gate) CheckAndRevokeIfModified() (bool, error) {
	modified, err := g.IsPlanModified()
	if err != nil {
		return false, err
	}
	if !modified {
		return false, nil
	}
	err = index.Modify(g.root, g.locker, func(idx *index.Index) error {
		stream, err := g.stream(idx)
		if err != nil {
			return err
		}
		if stream.Approval.Plan.Status != index.ApprovalApproved {
			return nil
		}
		stream.Approval.Plan.Status = index.ApprovalRevoked
		stream.Approval.Plan.RevokedReason = "plan file modified after approval"
		return nil
	})
	if err != nil {
		return false, err
	}
	g.logger.Warn("plan approval revoked", "reason", "plan file modified after approval")
	return true, nil
}

// CreateTasksDecision is the result of the task-creation execution gate.
type CreateTasksDecision struct {
	Allowed bool
	Reason  string
}

// CanCreateTasks allows task creation only when plan approval is exactly
// approved. Draft and revoked block with distinct messages.
func (g *Gate) CanCreateTasks() (CreateTasksDecision, error) {
	if _, err := g.CheckAndRevokeIfModified(); err != nil {
		return CreateTasksDecision{}, err
	}
	idx, err := index.Load(g.root)
	if err != nil {
		return CreateTasksDecision{}, err
	}
	stream, err := g.stream(idx)
	if err != nil {
		return CreateTasksDecision{}, err
	}
	switch stream.Approval.Plan.Status {
	case index.ApprovalApproved:
		return CreateTasksDecision{Allowed: true}, nil
	case index.ApprovalRevoked:
		reason := stream.Approval.Plan.RevokedReason
		if reason == "" {
			reason = "plan approval was revoked"
		}
		return CreateTasksDecision{
			Reason: fmt.Sprintf("plan approval revoked (%s); re-approve with 'work plan approve'", reason),
		}, nil
	default:
		return CreateTasksDecision{
			Reason: "plan is still a draft; approve it first with 'work plan approve'",
		}, nil
	}
}

// StageResult reports the outcome of a stage approval.
type StageResult struct {
	Stage      int
	Forced     bool
	Incomplete []taskstore.Task
}

// ApproveStage approves one stage. It fails while any task under the
// stage prefix is neither completed nor cancelled, unless force is given.
// Stage entries are independent: approving stage 3 before stage 2 is
// representable, the CLI layer is what warns about ordering.
func (g *Gate) ApproveStage(stage int, force bool) (*StageResult, error) {
	if stage <= 0 {
		return nil, errors.NewValidationError("stage number must be positive").
			WithField("stage").WithValue(stage)
	}
	tf, err := g.tasks.Read()
	if err != nil {
		return nil, err
	}
	var incomplete []taskstore.Task
	for _, task := range taskstore.TasksUnderPrefix(tf, taskid.StagePrefix(stage)) {
		if !task.Status.Done() {
			incomplete = append(incomplete, task)
		}
	}
	if len(incomplete) > 0 && !force {
		ids := make([]string, 0, len(incomplete))
		for _, task := range incomplete {
			ids = append(ids, fmt.Sprintf("%s (%s)", task.ID, task.Status))
		}
		return nil, errors.NewApprovalError(fmt.Sprintf("approve stage %d", stage), fmt.Sprintf(
			"%d unfinished task(s): %s",
			len(incomplete), strings.Join(ids, ", "))).
			WithForceHint()
	}

	result := &StageResult{Stage: stage, Forced: force && len(incomplete) > 0, Incomplete: incomplete}
	err = index.Modify(g.root, g.locker, func(idx *index.Index) error {
		stream, err := g.stream(idx)
		if err != nil {
			return err
		}
		if stream.Approval.Stages == nil {
			stream.Approval.Stages = make(map[int]index.StageApproval)
		}
		now := time.Now().UTC()
		stream.Approval.Stages[stage] = index.StageApproval{
			Status:     index.ApprovalApproved,
			ApprovedAt: &now,
			Forced:     result.Forced,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.logger.Info("stage approved", "stage", stage, "forced", result.Forced)
	return result, nil
}

// RevokeStage moves one stage's approval back to revoked. Revoking a
// stage that was never approved is an error.
func (g *Gate) RevokeStage(stage int, reason string) error {
	if stage <= 0 {
		return errors.NewValidationError("stage number must be positive").
			WithField("stage").WithValue(stage)
	}
	err := index.Modify(g.root, g.locker, func(idx *index.Index) error {
		stream, err := g.stream(idx)
		if err != nil {
			return err
		}
		entry, ok := stream.Approval.Stages[stage]
		if !ok || entry.Status != index.ApprovalApproved {
			return errors.NewValidationError("stage is not approved").
				WithField("stage").WithValue(stage)
		}
		entry.Status = index.ApprovalRevoked
		entry.RevokedReason = reason
		stream.Approval.Stages[stage] = entry
		return nil
	})
	if err != nil {
		return err
	}
	g.logger.Info("stage approval revoked", "stage", stage, "reason", reason)
	return nil
}

// StageApproved reports whether a stage number is currently approved.
func StageApproved(stream *index.Workstream, stage int) bool {
	entry, ok := stream.Approval.Stages[stage]
	return ok && entry.Status == index.ApprovalApproved
}

// TasksResult reports the outcome of a tasks approval.
type TasksResult struct {
	TaskCount   int
	StagingPath string
}

// ApproveTasks serializes the TASKS.md staging file into the task ledger
// and deletes it. This is a one-way consuming transition: re-approval
// requires regenerating the staging file. The merge preserves execution
// state of tasks that already exist in the ledger.
func (g *Gate) ApproveTasks() (*TasksResult, error) {
	decision, err := g.CanCreateTasks()
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, errors.NewApprovalError("approve tasks", decision.Reason)
	}

	stagingPath := repo.TasksStagingPath(g.root, g.streamID)
	data, err := os.ReadFile(stagingPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("staging file", stagingPath).
				WithSuggestion("generate it with 'work tasks'")
		}
		return nil, errors.Wrap(err, "failed to read staging file")
	}
	tasks, err := tasksmd.Parse(data)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, errors.NewApprovalError("approve tasks", "staging file contains no task rows")
	}

	if err := g.tasks.AddTasks(tasks); err != nil {
		return nil, err
	}
	err = index.Modify(g.root, g.locker, func(idx *index.Index) error {
		stream, err := g.stream(idx)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		stream.Approval.Tasks = index.TasksApproval{
			Status:     index.ApprovalApproved,
			TaskCount:  len(tasks),
			ApprovedAt: &now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := os.Remove(stagingPath); err != nil {
		// The ledger merge already happened; a stray staging file is
		// recoverable, so report rather than fail.
		g.logger.Warn("failed to delete staging file", "path", stagingPath, "error", err)
	}
	g.logger.Info("tasks approved", "count", len(tasks))
	return &TasksResult{TaskCount: len(tasks), StagingPath: stagingPath}, nil
}

// GenerateStaging writes a fresh TASKS.md from the plan, echoing any
// existing ledger rows. Gated on plan approval.
func (g *Gate) GenerateStaging() (string, error) {
	return g.generateStaging(nil)
}

// AppendStages handles the plan-revision flow: after new stages are added
// to an approved plan, it regenerates a partial TASKS.md holding only the
// new stages' placeholders (completed prior work is echoed for context)
// and revokes the tasks track so the extended set needs re-approval. The
// plan track and prior stage approvals are left untouched; the caller
// re-approves the plan first, which refreshes the stamped hash.
func (g *Gate) AppendStages(newStages []int) (string, error) {
	if len(newStages) == 0 {
		return "", errors.NewValidationError("at least one stage number is required")
	}
	path, err := g.generateStaging(newStages)
	if err != nil {
		return "", err
	}
	err = index.Modify(g.root, g.locker, func(idx *index.Index) error {
		stream, err := g.stream(idx)
		if err != nil {
			return err
		}
		stream.Approval.Tasks.Status = index.ApprovalRevoked
		return nil
	})
	if err != nil {
		return "", err
	}
	g.logger.Info("stages appended", "stages", newStages)
	return path, nil
}

func (g *Gate) generateStaging(onlyStages []int) (string, error) {
	decision, err := g.CanCreateTasks()
	if err != nil {
		return "", err
	}
	if !decision.Allowed {
		return "", errors.NewApprovalError("approve tasks", decision.Reason)
	}
	plan, err := plandoc.ParseFile(repo.PlanPath(g.root, g.streamID))
	if err != nil {
		return "", err
	}
	for _, n := range onlyStages {
		if _, ok := plan.FindStage(n); !ok {
			return "", errors.NewNotFoundError("stage", fmt.Sprintf("%d", n)).
				WithSuggestion("add the stage to PLAN.md first")
		}
	}
	tf, err := g.tasks.Read()
	if err != nil {
		return "", err
	}
	data := tasksmd.Generate(plan, tasksmd.GenerateOptions{
		Existing:   tf.Tasks,
		OnlyStages: onlyStages,
	})
	stagingPath := repo.TasksStagingPath(g.root, g.streamID)
	if err := fstore.AtomicWrite(stagingPath, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write staging file")
	}
	return stagingPath, nil
}

// CanRunStage reports whether batch execution may start under a stage:
// the plan must be approved (fresh), the previous stage must be approved,
// and the serialized ledger must hold tasks for that stage.
func (g *Gate) CanRunStage(stage int) (CreateTasksDecision, error) {
	decision, err := g.CanCreateTasks()
	if err != nil || !decision.Allowed {
		return decision, err
	}
	if stage > 1 {
		idx, err := index.Load(g.root)
		if err != nil {
			return CreateTasksDecision{}, err
		}
		stream, err := g.stream(idx)
		if err != nil {
			return CreateTasksDecision{}, err
		}
		if !StageApproved(stream, stage-1) {
			return CreateTasksDecision{
				Reason: fmt.Sprintf("stage %d is not approved; approve it with 'work stage approve %d' first", stage-1, stage-1),
			}, nil
		}
	}
	tf, err := g.tasks.Read()
	if err != nil {
		return CreateTasksDecision{}, err
	}
	if len(taskstore.TasksUnderPrefix(tf, taskid.StagePrefix(stage))) == 0 {
		return CreateTasksDecision{
			Reason: fmt.Sprintf("no tasks exist for stage %d; generate and approve TASKS.md first", stage),
		}, nil
	}
	return CreateTasksDecision{Allowed: true}, nil
}

func (g *Gate) stream(idx *index.Index) (*index.Workstream, error) {
	stream, ok := index.FindStream(idx, g.streamID)
	if !ok {
		return nil, errors.NewNotFoundError("workstream", g.streamID).
			WithCause(errors.ErrStreamNotFound)
	}
	return stream, nil
}
