package tmux

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DefaultGracefulStopTimeout is how long shutdown waits after Ctrl+C
// before force-killing a pane's process tree.
const DefaultGracefulStopTimeout = 500 * time.Millisecond

// GetPanePID returns the PID of the process in a session's active pane,
// or 0 when it cannot be determined (session gone, tmux missing).
func GetPanePID(socket, session string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	output, err := CommandContext(ctx, socket, "display-message", "-t", session, "-p", "#{pane_pid}").Output()
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return 0
	}
	return pid
}

// GetDescendantPIDs returns all descendants of pid, found via pgrep -P.
func GetDescendantPIDs(pid int) []int {
	if pid <= 0 {
		return nil
	}
	return descendantPIDs(pid)
}

func descendantPIDs(pid int) []int {
	output, err := exec.Command("pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil
	}
	var descendants []int
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		childPID, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		descendants = append(descendants, childPID)
		descendants = append(descendants, descendantPIDs(childPID)...)
	}
	return descendants
}

// IsProcessAlive checks process existence with kill(pid, 0).
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// KillProcessTree SIGKILLs a process and its descendants, deepest
// children first so nothing gets reparented mid-walk.
func KillProcessTree(pid int) {
	if pid <= 0 {
		return
	}
	descendants := GetDescendantPIDs(pid)
	for i := len(descendants) - 1; i >= 0; i-- {
		if IsProcessAlive(descendants[i]) {
			_ = syscall.Kill(descendants[i], syscall.SIGKILL)
		}
	}
	if IsProcessAlive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

// KillServer terminates the tmux server for a socket, taking every
// session on it down with it.
func KillServer(socket string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return CommandContext(ctx, socket, "kill-server").Run()
}

// CollectProcessTree returns the pane PID and all its descendants.
// Called before shutdown so survivors can be verified dead afterwards.
func CollectProcessTree(socket, session string) []int {
	panePID := GetPanePID(socket, session)
	if panePID <= 0 {
		return nil
	}
	return append([]int{panePID}, GetDescendantPIDs(panePID)...)
}

// EnsureProcessesKilled force-kills any of the given PIDs still alive,
// including descendants spawned since collection.
func EnsureProcessesKilled(pids []int) {
	for _, pid := range pids {
		if IsProcessAlive(pid) {
			KillProcessTree(pid)
		}
	}
}

// GracefulShutdown is the canonical teardown for a batch session:
// capture the process tree, Ctrl+C, wait for exit, kill the session and
// its server, then force-kill survivors.
func GracefulShutdown(socket, session string, gracefulTimeout time.Duration) {
	processPIDs := CollectProcessTree(socket, session)
	panePID := 0
	if len(processPIDs) > 0 {
		panePID = processPIDs[0]
	}

	_ = Command(socket, "send-keys", "-t", session, "C-c").Run()
	WaitForProcessExit(panePID, gracefulTimeout)
	_ = Command(socket, "kill-session", "-t", session).Run()
	_ = KillServer(socket)
	EnsureProcessesKilled(processPIDs)
}

// WaitForProcessExit polls until pid exits or the timeout passes.
// Returns whether the process is gone.
func WaitForProcessExit(pid int, timeout time.Duration) bool {
	if pid <= 0 || !IsProcessAlive(pid) {
		return true
	}
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			return !IsProcessAlive(pid)
		case <-ticker.C:
			if !IsProcessAlive(pid) {
				return true
			}
		}
	}
}
