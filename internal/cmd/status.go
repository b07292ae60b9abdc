package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/index"
	"github.com/AlbertoV5/workstream/internal/tasksmd"
	"github.com/AlbertoV5/workstream/internal/taskstore"
	"github.com/AlbertoV5/workstream/internal/threadstore"
	"github.com/AlbertoV5/workstream/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a workstream",
	Long: `Show a workstream's approval state, task ledger broken down by stage,
and any running agent sessions. A modified plan is detected here and
revokes a stale plan approval.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	// Surface a post-approval plan edit before reporting state.
	revoked, err := a.Gate().CheckAndRevokeIfModified()
	if err != nil {
		return err
	}
	if revoked {
		fmt.Println(warnStyle.Render("PLAN.md changed after approval; plan approval revoked."))
	}

	stream, err := a.Stream()
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", headerStyle.Render("Workstream"), stream.ID)
	fmt.Printf("  plan:  %s", approvalBadge(string(stream.Approval.Plan.Status)))
	if stream.Approval.Plan.RevokedReason != "" {
		fmt.Printf(" %s", dimStyle.Render("("+stream.Approval.Plan.RevokedReason+")"))
	}
	fmt.Println()
	fmt.Printf("  tasks: %s", approvalBadge(string(stream.Approval.Tasks.Status)))
	if stream.Approval.Tasks.TaskCount > 0 {
		fmt.Printf(" %s", dimStyle.Render(fmt.Sprintf("(%d tasks)", stream.Approval.Tasks.TaskCount)))
	}
	fmt.Println()
	printStageApprovals(stream)

	tf, err := a.Tasks().Read()
	if err != nil {
		return err
	}
	if len(tf.Tasks) == 0 {
		fmt.Println("\nNo tasks in the ledger yet.")
		return nil
	}

	fmt.Println()
	for _, stage := range taskstore.GroupTasks(tf.Tasks) {
		done, total := 0, 0
		for _, batch := range stage.Batches {
			for _, thread := range batch.Threads {
				for _, task := range thread.Tasks {
					total++
					if task.Status.Done() {
						done++
					}
				}
			}
		}
		fmt.Printf("%s %d/%d done\n",
			headerStyle.Render(fmt.Sprintf("Stage %d: %s", stage.Stage, stage.StageName)), done, total)
		for _, batch := range stage.Batches {
			for _, thread := range batch.Threads {
				var row strings.Builder
				for _, task := range thread.Tasks {
					row.WriteByte(tasksmd.StatusChar(task.Status))
				}
				fmt.Printf("  %s %s [%s]\n", thread.ThreadID,
					util.PadRight(util.Truncate(thread.ThreadName, 28), 28), row.String())
			}
		}
	}

	if err := a.EnsureSessionHistory(); err != nil {
		return err
	}
	threadFile, err := a.Threads().Read()
	if err != nil {
		return err
	}
	var running []string
	for i := range threadFile.Threads {
		if session, ok := threadstore.RunningSession(&threadFile.Threads[i]); ok {
			running = append(running, fmt.Sprintf("  %s %s (%s)",
				threadFile.Threads[i].ThreadID, session.SessionID, session.Model))
		}
	}
	if len(running) > 0 {
		fmt.Println("\n" + headerStyle.Render("Running sessions"))
		for _, line := range running {
			fmt.Println(line)
		}
	}
	return nil
}

func printStageApprovals(stream *index.Workstream) {
	if len(stream.Approval.Stages) == 0 {
		return
	}
	stages := make([]int, 0, len(stream.Approval.Stages))
	for stage := range stream.Approval.Stages {
		stages = append(stages, stage)
	}
	sort.Ints(stages)
	var parts []string
	for _, stage := range stages {
		entry := stream.Approval.Stages[stage]
		part := fmt.Sprintf("%d=%s", stage, approvalBadge(string(entry.Status)))
		if entry.Forced {
			part += dimStyle.Render("(forced)")
		}
		parts = append(parts, part)
	}
	fmt.Printf("  stages: %s\n", strings.Join(parts, " "))
}
