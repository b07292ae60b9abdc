package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Stage and approve the task ledger",
}

var tasksGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the TASKS.md staging file from the plan",
	Long: `Generate TASKS.md from the approved plan. Existing ledger tasks keep
their status and report lines; threads with no coverage yet get one
pending placeholder task each. Edit the file, then run
'work tasks approve'.`,
	RunE: runTasksGenerate,
}

var tasksApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Serialize TASKS.md into the task ledger",
	Long: `Approve the staged task list: parse TASKS.md, merge it into tasks.json
preserving execution state of existing tasks, and consume the staging
file. Re-approval requires regenerating it.`,
	RunE: runTasksApprove,
}

var tasksAppendCmd = &cobra.Command{
	Use:   "append <stage>[,<stage>...]",
	Short: "Stage additional stages into TASKS.md",
	Long: `Regenerate TASKS.md covering only the named stages, echoing completed
tasks from other stages for context. Moves the tasks approval back to
revoked until the new staging is approved.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksAppend,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksGenerateCmd)
	tasksCmd.AddCommand(tasksApproveCmd)
	tasksCmd.AddCommand(tasksAppendCmd)
}

func runTasksGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := a.Gate().GenerateStaging()
	if err != nil {
		return err
	}
	fmt.Printf("Staged task list at %s\n", path)
	fmt.Println("Review and edit it, then run 'work tasks approve'.")
	return nil
}

func runTasksApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Gate().ApproveTasks()
	if err != nil {
		return err
	}
	fmt.Printf("Tasks approved: %d task(s) in the ledger.\n", result.TaskCount)
	fmt.Println("Next: 'work multi <stage>.<batch>' to run a batch.")
	return nil
}

func runTasksAppend(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var stages []int
	for _, part := range strings.Split(args[0], ",") {
		stage, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || stage <= 0 {
			return fmt.Errorf("invalid stage number %q", part)
		}
		stages = append(stages, stage)
	}
	path, err := a.Gate().AppendStages(stages)
	if err != nil {
		return err
	}
	fmt.Printf("Staged stage(s) %s at %s\n", args[0], path)
	fmt.Println("Tasks approval is revoked until the new staging is approved.")
	return nil
}
