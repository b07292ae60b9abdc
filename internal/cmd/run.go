package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/orchestrator"
	"github.com/AlbertoV5/workstream/internal/taskid"
)

var multiCmd = &cobra.Command{
	Use:   "multi <stage>.<batch>",
	Short: "Run every thread of a batch in a parallel pane grid",
	Long: `Run all runnable threads of one batch as parallel agent sessions in a
tmux grid: up to four visible panes, the rest in hidden windows reachable
with Alt-n / Alt-p. Completion is watched out of band; detaching
reconciles session outcomes into the ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: runMulti,
}

var startCmd = &cobra.Command{
	Use:   "start <thread-id>",
	Short: "Run a single thread",
	Long: `Run one thread's agent session in its own tmux pane. Same lifecycle as
'work multi' with the grid narrowed to one thread.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var fixCmd = &cobra.Command{
	Use:   "fix <stage>.<batch>",
	Short: "Reconcile a batch whose orchestrator died",
	Long: `Settle the ledger for a batch left with running sessions after a crash
or kill: dead panes map to completed/failed by exit code, vanished panes
to interrupted, and leftover sentinel files are folded in.`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

var runHeadless bool

func init() {
	rootCmd.AddCommand(multiCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(fixCmd)

	multiCmd.Flags().BoolVar(&runHeadless, "headless", false, "do not attach; wait for completion and reconcile")
	startCmd.Flags().BoolVar(&runHeadless, "headless", false, "do not attach; wait for completion and reconcile")
}

func parseBatchArg(arg string) (stage, batch int, err error) {
	parts := strings.Split(arg, ".")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected <stage>.<batch>, got %q", arg)
	}
	stage, err = strconv.Atoi(parts[0])
	if err == nil {
		batch, err = strconv.Atoi(parts[1])
	}
	if err != nil || stage <= 0 || batch <= 0 {
		return 0, 0, fmt.Errorf("expected <stage>.<batch>, got %q", arg)
	}
	return stage, batch, nil
}

func runMulti(cmd *cobra.Command, args []string) error {
	stage, batch, err := parseBatchArg(args[0])
	if err != nil {
		return err
	}
	return executeBatch(cmd, stage, batch)
}

func runStart(cmd *cobra.Command, args []string) error {
	id, err := taskid.ParseThreadID(args[0])
	if err != nil {
		return err
	}
	return executeBatch(cmd, id.Stage, id.Batch, args[0])
}

func executeBatch(cmd *cobra.Command, stage, batch int, only ...string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.EnsureSessionHistory(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runner := orchestrator.NewRunner(a.Config, a.Root, a.StreamID, a.Locker, a.Logger)
	run, err := runner.StartBatch(ctx, stage, batch, only...)
	if err != nil {
		return err
	}
	fmt.Printf("Started %d thread(s) in session %s\n", run.ThreadCount(), run.Session)

	watchDone := make(chan error, 1)
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() { watchDone <- run.Watch(watchCtx) }()

	if runHeadless {
		if err := <-watchDone; err != nil && err != context.Canceled {
			fmt.Println(warnStyle.Render("watcher stopped: " + err.Error()))
		}
	} else {
		if err := run.Attach(); err != nil {
			fmt.Println(warnStyle.Render("attach ended: " + err.Error()))
		}
		cancelWatch()
		<-watchDone
	}

	report, err := run.Reconcile(ctx)
	if err != nil {
		return err
	}
	printReconcileReport(report)
	if runHeadless {
		run.Shutdown()
	}
	return nil
}

func runFix(cmd *cobra.Command, args []string) error {
	stage, batch, err := parseBatchArg(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runner := orchestrator.NewRunner(a.Config, a.Root, a.StreamID, a.Locker, a.Logger)
	run, err := runner.Recover(ctx, stage, batch)
	if err != nil {
		return err
	}
	report, err := run.Reconcile(ctx)
	if err != nil {
		return err
	}
	printReconcileReport(report)
	run.Shutdown()
	return nil
}

func printReconcileReport(report *orchestrator.ReconcileReport) {
	fmt.Printf("Reconciled: %s completed, %s failed, %s interrupted\n",
		okStyle.Render(strconv.Itoa(len(report.Completed))),
		failStyle.Render(strconv.Itoa(len(report.Failed))),
		warnStyle.Render(strconv.Itoa(len(report.Interrupted))))
	if report.Syntheses > 0 {
		fmt.Printf("Captured %d synthesis output(s); view with 'work synth <thread-id>'.\n", report.Syntheses)
	}
}
