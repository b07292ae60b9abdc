package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/plandoc"
	"github.com/AlbertoV5/workstream/internal/repo"
	"github.com/AlbertoV5/workstream/internal/tracker"
)

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "Mirror stage progress to the issue tracker",
}

var issuesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync stage issues with approval state",
	Long: `Ensure one tracker issue exists per plan stage, titled
'[stream] Stage NN: name'. Approved stages get their issue closed;
revoked ones get it reopened. Requires the gh CLI and tracker.provider
set to github.`,
	RunE: runIssuesSync,
}

var issuesCloseCmd = &cobra.Command{
	Use:   "close <stage>",
	Short: "Close the issue for one stage",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssuesClose,
}

func init() {
	rootCmd.AddCommand(issuesCmd)
	issuesCmd.AddCommand(issuesSyncCmd)
	issuesCmd.AddCommand(issuesCloseCmd)
}

func newTracker(a *app) (*tracker.GitHub, error) {
	if a.Config.Tracker.Provider != "github" {
		return nil, fmt.Errorf("tracker.provider is %q; set it to github to use issues",
			a.Config.Tracker.Provider)
	}
	return tracker.NewGitHub(a.Config.Tracker.Repo, a.Logger), nil
}

func runIssuesSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	gh, err := newTracker(a)
	if err != nil {
		return err
	}
	stream, err := a.Stream()
	if err != nil {
		return err
	}
	plan, err := plandoc.ParseFile(repo.PlanPath(a.Root, a.StreamID))
	if err != nil {
		return err
	}
	report, err := gh.SyncStages(contextOf(cmd), stream, plan)
	if err != nil {
		return err
	}
	fmt.Println(report.Summary())
	for _, failure := range report.Failed {
		fmt.Println(failStyle.Render(fmt.Sprintf("  stage %d: %v", failure.Stage, failure.Error)))
	}
	return nil
}

func runIssuesClose(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	stage, err := parseStageArg(args[0])
	if err != nil {
		return err
	}
	gh, err := newTracker(a)
	if err != nil {
		return err
	}
	plan, err := plandoc.ParseFile(repo.PlanPath(a.Root, a.StreamID))
	if err != nil {
		return err
	}
	planStage, ok := plan.FindStage(stage)
	if !ok {
		return fmt.Errorf("stage %d is not in the plan", stage)
	}

	ctx := contextOf(cmd)
	title := tracker.TitleFor(a.StreamID, stage, planStage.Name)
	issues, err := gh.Search(ctx, title)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		return fmt.Errorf("no issue titled %q", title)
	}
	if err := gh.Close(ctx, issues[0].Number); err != nil {
		return err
	}
	fmt.Printf("Closed issue #%d (%s)\n", issues[0].Number, title)
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
