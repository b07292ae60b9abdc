package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/taskid"
	"github.com/AlbertoV5/workstream/internal/threadstore"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [thread-id]",
	Short: "Show agent session history",
	Long: `Show the session history of every thread, or of one thread when an ID
is given. Legacy embedded session data is migrated into threads.json on
first use.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

var sessionsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate legacy embedded sessions into threads.json",
	RunE:  runSessionsMigrate,
}

var synthCmd = &cobra.Command{
	Use:   "synth <thread-id>",
	Short: "Show a thread's synthesis output",
	Args:  cobra.ExactArgs(1),
	RunE:  runSynth,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsMigrateCmd)
	rootCmd.AddCommand(synthCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.EnsureSessionHistory(); err != nil {
		return err
	}
	f, err := a.Threads().Read()
	if err != nil {
		return err
	}

	var filter string
	if len(args) == 1 {
		if _, err := taskid.ParseThreadID(args[0]); err != nil {
			return err
		}
		filter = args[0]
	}

	shown := 0
	for i := range f.Threads {
		thread := &f.Threads[i]
		if filter != "" && thread.ThreadID != filter {
			continue
		}
		shown++
		fmt.Println(headerStyle.Render("Thread " + thread.ThreadID))
		if thread.WorkingAgentSessionID != "" {
			fmt.Printf("  resumable agent session: %s\n", thread.WorkingAgentSessionID)
		}
		for _, session := range thread.Sessions {
			line := fmt.Sprintf("  %s  %-11s %-10s started %s",
				session.SessionID, session.Status, session.Model,
				session.StartedAt.Format("2006-01-02 15:04:05"))
			if session.ExitCode != nil {
				line += fmt.Sprintf("  exit %d", *session.ExitCode)
			}
			fmt.Println(line)
		}
		if thread.Synthesis != nil {
			fmt.Println(dimStyle.Render("  synthesis captured " +
				thread.Synthesis.CompletedAt.Format("2006-01-02 15:04:05")))
		}
	}
	if shown == 0 {
		if filter != "" {
			return errors.NewNotFoundError("thread", filter)
		}
		fmt.Println("No session history yet.")
	}
	return nil
}

func runSessionsMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := threadstore.MigrateFromTasks(a.Tasks(), a.Threads(), a.Logger)
	if err != nil {
		return err
	}
	if !report.Migrated() {
		fmt.Println("No legacy session data to migrate.")
		return nil
	}
	fmt.Printf("Migrated %d session(s) across %d thread(s).\n",
		report.SessionsMigrated, report.ThreadsCreated)
	fmt.Printf("Backup: %s\n", report.BackupPath)
	if len(report.Errors) > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("%d item(s) skipped:", len(report.Errors))))
		fmt.Println("  " + strings.Join(report.Errors, "\n  "))
	}
	return nil
}

func runSynth(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := taskid.ParseThreadID(args[0]); err != nil {
		return err
	}
	f, err := a.Threads().Read()
	if err != nil {
		return err
	}
	thread, ok := threadstore.FindThread(f, args[0])
	if !ok || thread.Synthesis == nil {
		return errors.NewNotFoundError("synthesis output", args[0]).
			WithSuggestion("run the thread with synthesis.enabled set in config")
	}
	fmt.Println(thread.Synthesis.Output)
	return nil
}
