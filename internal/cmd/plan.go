package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/plandoc"
	"github.com/AlbertoV5/workstream/internal/repo"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage plan approval",
}

var planApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve the plan document",
	Long: `Approve PLAN.md, stamping a content hash so later edits revoke the
approval. Approval is blocked while any stage has unresolved questions,
unless --force is given.`,
	RunE: runPlanApprove,
}

var planRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke plan approval",
	RunE:  runPlanRevoke,
}

var planCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the plan changed since approval",
	RunE:  runPlanCheck,
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the parsed plan structure",
	RunE:  runPlanShow,
}

var (
	planForce        bool
	planRevokeReason string
)

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.AddCommand(planApproveCmd)
	planCmd.AddCommand(planRevokeCmd)
	planCmd.AddCommand(planCheckCmd)
	planCmd.AddCommand(planShowCmd)

	planApproveCmd.Flags().BoolVarP(&planForce, "force", "f", false, "approve despite unresolved questions")
	planRevokeCmd.Flags().StringVar(&planRevokeReason, "reason", "", "why the approval is being revoked")
}

func runPlanApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Gate().ApprovePlan(planForce)
	if err != nil {
		return err
	}
	if result.Forced {
		fmt.Printf("Plan approved with %d unresolved question(s) (--force).\n", len(result.OpenQuestions))
	} else {
		fmt.Println("Plan approved.")
	}
	fmt.Printf("Hash: %s\n", dimStyle.Render(result.PlanHash))
	fmt.Println("Next: 'work tasks generate' to stage the task list.")
	return nil
}

func runPlanRevoke(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Gate().RevokePlan(planRevokeReason); err != nil {
		return err
	}
	fmt.Println("Plan approval revoked.")
	return nil
}

func runPlanCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	revoked, err := a.Gate().CheckAndRevokeIfModified()
	if err != nil {
		return err
	}
	if revoked {
		fmt.Println(warnStyle.Render("PLAN.md changed after approval; plan approval revoked."))
		return nil
	}
	modified, err := a.Gate().IsPlanModified()
	if err != nil {
		return err
	}
	if modified {
		// Unreachable unless the file changed between the two reads.
		fmt.Println(warnStyle.Render("PLAN.md differs from the approved version."))
		return nil
	}
	fmt.Println("Plan matches its approval record.")
	return nil
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := plandoc.ParseFile(repo.PlanPath(a.Root, a.StreamID))
	if err != nil {
		return err
	}
	fmt.Println(headerStyle.Render(plan.Name))
	if plan.Summary != "" {
		fmt.Println(dimStyle.Render(plan.Summary))
	}
	for _, stage := range plan.Stages {
		fmt.Printf("\nStage %d: %s\n", stage.ID, stage.Name)
		for _, question := range stage.Questions {
			mark := okStyle.Render("resolved")
			if !question.Resolved {
				mark = warnStyle.Render("open")
			}
			fmt.Printf("  ? [%s] %s\n", mark, question.Text)
		}
		for _, batch := range stage.Batches {
			fmt.Printf("  Batch %s: %s\n", batch.Prefix, batch.Name)
			for _, thread := range batch.Threads {
				fmt.Printf("    Thread %02d: %s\n", thread.ID, thread.Name)
			}
		}
	}
	return nil
}
