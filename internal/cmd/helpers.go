package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AlbertoV5/workstream/internal/approval"
	"github.com/AlbertoV5/workstream/internal/config"
	"github.com/AlbertoV5/workstream/internal/fstore"
	"github.com/AlbertoV5/workstream/internal/index"
	"github.com/AlbertoV5/workstream/internal/logging"
	"github.com/AlbertoV5/workstream/internal/repo"
	"github.com/AlbertoV5/workstream/internal/taskstore"
	"github.com/AlbertoV5/workstream/internal/threadstore"
)

// app bundles everything a subcommand needs: repository root, loaded
// config, shared lock settings, and the resolved workstream.
type app struct {
	Root     string
	Config   *config.Config
	Locker   *fstore.Locker
	Logger   *logging.Logger
	StreamID string
}

// newApp resolves the repository and, when resolveStream is set, the
// target workstream from --stream or the registry's current marker.
func newApp(cmd *cobra.Command, resolveStream bool) (*app, error) {
	root, err := repo.FindRootFromCwd()
	if err != nil {
		return nil, err
	}
	cfg := config.Get()

	locker := fstore.NewLocker()
	locker.StaleAfter = cfg.Lock.StaleAfter()
	locker.RetryInterval = cfg.Lock.RetryInterval()
	locker.MaxRetries = uint64(cfg.Lock.MaxRetries)

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		fileLogger, err := logging.NewLogger(repo.WorkDir(root), cfg.Logging.Level)
		if err == nil {
			logger = fileLogger
		}
	}

	a := &app{Root: root, Config: cfg, Locker: locker, Logger: logger}
	if resolveStream {
		idx, err := index.Load(root)
		if err != nil {
			return nil, err
		}
		streamID, err := index.ResolveStreamID(idx, streamFlag(cmd))
		if err != nil {
			return nil, err
		}
		a.StreamID = streamID
	}
	return a, nil
}

func (a *app) Close() {
	if a.Logger != nil {
		a.Logger.Close()
	}
}

func (a *app) Gate() *approval.Gate {
	return approval.NewGate(a.Root, a.StreamID, a.Locker, a.Logger)
}

func (a *app) Tasks() *taskstore.Store {
	return taskstore.NewStore(a.Root, a.StreamID, a.Locker)
}

func (a *app) Threads() *threadstore.Store {
	return threadstore.NewStore(a.Root, a.StreamID, a.Locker)
}

// EnsureSessionHistory runs the legacy-ledger migration before any read
// of session history, and reports when it did something.
func (a *app) EnsureSessionHistory() error {
	report, err := threadstore.EnsureMigrated(a.Tasks(), a.Threads(), a.Logger)
	if err != nil {
		return err
	}
	if report.Migrated() {
		fmt.Printf("Migrated %d session(s) across %d thread(s) into threads.json (backup: %s)\n",
			report.SessionsMigrated, report.ThreadsCreated, report.BackupPath)
	}
	return nil
}

func (a *app) Stream() (*index.Workstream, error) {
	idx, err := index.Load(a.Root)
	if err != nil {
		return nil, err
	}
	stream, ok := index.FindStream(idx, a.StreamID)
	if !ok {
		return nil, fmt.Errorf("workstream %s disappeared from the index", a.StreamID)
	}
	return stream, nil
}
