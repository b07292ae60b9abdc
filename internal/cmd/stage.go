package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/approval"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Manage per-stage approval",
}

var stageApproveCmd = &cobra.Command{
	Use:   "approve <stage>",
	Short: "Approve a completed stage",
	Long: `Approve one stage. Fails while the stage still has unfinished tasks
unless --force is given. Approving stage N unlocks execution of stage
N+1.`,
	Args: cobra.ExactArgs(1),
	RunE: runStageApprove,
}

var stageRevokeCmd = &cobra.Command{
	Use:   "revoke <stage>",
	Short: "Revoke a stage approval",
	Args:  cobra.ExactArgs(1),
	RunE:  runStageRevoke,
}

var (
	stageForce        bool
	stageRevokeReason string
)

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.AddCommand(stageApproveCmd)
	stageCmd.AddCommand(stageRevokeCmd)

	stageApproveCmd.Flags().BoolVarP(&stageForce, "force", "f", false, "approve despite unfinished tasks")
	stageRevokeCmd.Flags().StringVar(&stageRevokeReason, "reason", "", "why the approval is being revoked")
}

func parseStageArg(arg string) (int, error) {
	stage, err := strconv.Atoi(arg)
	if err != nil || stage <= 0 {
		return 0, fmt.Errorf("invalid stage number %q", arg)
	}
	return stage, nil
}

func runStageApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	stage, err := parseStageArg(args[0])
	if err != nil {
		return err
	}
	// Out-of-order approval is representable in the data model; warn here
	// instead of forbidding it.
	if stage > 1 {
		stream, err := a.Stream()
		if err != nil {
			return err
		}
		if !approval.StageApproved(stream, stage-1) {
			fmt.Println(warnStyle.Render(fmt.Sprintf(
				"Warning: stage %d is not approved yet; approving out of order.", stage-1)))
		}
	}

	result, err := a.Gate().ApproveStage(stage, stageForce)
	if err != nil {
		return err
	}
	if result.Forced {
		fmt.Printf("Stage %d approved with %d unfinished task(s) (--force).\n",
			stage, len(result.Incomplete))
	} else {
		fmt.Printf("Stage %d approved.\n", stage)
	}
	return nil
}

func runStageRevoke(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	stage, err := parseStageArg(args[0])
	if err != nil {
		return err
	}
	if err := a.Gate().RevokeStage(stage, stageRevokeReason); err != nil {
		return err
	}
	fmt.Printf("Stage %d approval revoked.\n", stage)
	return nil
}
