package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/index"
	"github.com/AlbertoV5/workstream/internal/repo"
	"github.com/AlbertoV5/workstream/internal/taskid"
	"github.com/AlbertoV5/workstream/internal/taskstore"
)

var addTaskCmd = &cobra.Command{
	Use:   "add-task <task-id> <name>",
	Short: "Add a single task to the ledger",
	Long: `Add one task directly to the ledger, bypassing TASKS.md staging. The
plan must be approved; the ID must be a full 4-segment task ID.`,
	Args: cobra.ExactArgs(2),
	RunE: runAddTask,
}

var updateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Update a task's status, report, or assignment",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <task-id-or-prefix>",
	Short: "Delete a task, a prefix of tasks, or a whole workstream",
	Long: `Delete one ledger task by full ID, with --prefix every task under a
stage, batch, or thread prefix (for example '02' or '02.01'), or with
--workstream an entire workstream and its files.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var (
	updateStatus  string
	updateReport  string
	updateAgent   string
	updateCrumb   string
	deleteByPrefx bool
	deleteStream  bool
)

func init() {
	rootCmd.AddCommand(addTaskCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)

	updateCmd.Flags().StringVar(&updateStatus, "status", "", "new status (pending|in_progress|completed|blocked|cancelled)")
	updateCmd.Flags().StringVar(&updateReport, "report", "", "one-line completion report")
	updateCmd.Flags().StringVar(&updateAgent, "agent", "", "assigned agent name")
	updateCmd.Flags().StringVar(&updateCrumb, "breadcrumb", "", "free-form progress note")
	deleteCmd.Flags().BoolVar(&deleteByPrefx, "prefix", false, "treat the argument as an ID prefix")
	deleteCmd.Flags().BoolVar(&deleteStream, "workstream", false, "delete the named workstream and its files")
}

func runAddTask(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	decision, err := a.Gate().CanCreateTasks()
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return errors.NewApprovalError("add task", decision.Reason)
	}
	if _, err := taskid.ParseTaskID(args[0]); err != nil {
		return err
	}
	now := time.Now().UTC()
	err = a.Tasks().AddTasks([]taskstore.Task{{
		ID:        args[0],
		Name:      args[1],
		Status:    taskstore.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}})
	if err != nil {
		return err
	}
	fmt.Printf("Added task %s\n", args[0])
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var update taskstore.TaskUpdate
	if updateStatus != "" {
		status := taskstore.TaskStatus(updateStatus)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q", updateStatus)
		}
		update.Status = &status
	}
	if cmd.Flags().Changed("report") {
		update.Report = &updateReport
	}
	if cmd.Flags().Changed("agent") {
		update.AssignedAgent = &updateAgent
	}
	if cmd.Flags().Changed("breadcrumb") {
		update.Breadcrumb = &updateCrumb
	}

	task, err := a.Tasks().UpdateTaskStatus(args[0], update)
	if err != nil {
		return err
	}
	fmt.Printf("Task %s is now %s\n", task.ID, task.Status)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, !deleteStream)
	if err != nil {
		return err
	}
	defer a.Close()

	if deleteStream {
		return deleteWorkstream(a, args[0])
	}
	if deleteByPrefx {
		removed, err := a.Tasks().DeleteByPrefix(args[0] + ".")
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d task(s) under %s:\n", len(removed), args[0])
		for _, task := range removed {
			fmt.Printf("  %s %s\n", task.ID, task.Name)
		}
		return nil
	}
	task, err := a.Tasks().DeleteTask(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Deleted task %s (%s)\n", task.ID, task.Name)
	return nil
}

func deleteWorkstream(a *app, idOrName string) error {
	var removed *index.Workstream
	err := index.Modify(a.Root, a.Locker, func(idx *index.Index) error {
		stream, ok := index.FindStream(idx, idOrName)
		if !ok {
			return fmt.Errorf("no workstream matches %q", idOrName)
		}
		deleted, err := index.Delete(idx, stream.ID)
		if err != nil {
			return err
		}
		removed = deleted
		return nil
	})
	if err != nil {
		return err
	}
	if err := os.RemoveAll(repo.StreamDir(a.Root, removed.ID)); err != nil {
		return fmt.Errorf("index entry removed, but deleting files failed: %w", err)
	}
	fmt.Printf("Deleted workstream %s (%s)\n", removed.ID, removed.Name)
	return nil
}
