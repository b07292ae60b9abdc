// Package tmux wraps the terminal-multiplexer primitives the batch
// orchestrator builds on: socket-scoped command construction, session and
// pane lifecycle, and pane liveness inspection.
//
// Each workstream gets its own tmux socket named "work-{streamID}", so a
// crashed server in one stream's grid never takes down another stream's
// running batch. The bare "work" socket exists only for cross-stream
// operations like listing and cleanup.
package tmux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// SocketPrefix is the prefix shared by all workstream tmux sockets.
const SocketPrefix = "work"

// StreamSocket returns the socket name for one workstream's grid.
func StreamSocket(streamID string) string {
	return SocketPrefix + "-" + streamID
}

// BatchSession returns the session name for one batch run.
func BatchSession(streamID string, stage, batch int) string {
	return fmt.Sprintf("%s-%s-s%02db%02d", SocketPrefix, streamID, stage, batch)
}

// Command creates an exec.Cmd for tmux on the given socket.
func Command(socket string, args ...string) *exec.Cmd {
	return exec.Command("tmux", append([]string{"-L", socket}, args...)...)
}

// CommandContext is the context-aware variant of Command.
func CommandContext(ctx context.Context, socket string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "tmux", append([]string{"-L", socket}, args...)...)
}

// ListStreamSockets returns the workstream sockets present in the user's
// tmux socket directory.
func ListStreamSockets() ([]string, error) {
	socketDir, err := socketDir()
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(socketDir, SocketPrefix+"-*"))
	if err != nil {
		return nil, err
	}
	sockets := make([]string, 0, len(matches))
	for _, match := range matches {
		sockets = append(sockets, filepath.Base(match))
	}
	return sockets, nil
}

// ExtractStreamID returns the stream ID encoded in a socket name, or ""
// when the socket is not a workstream socket.
func ExtractStreamID(socket string) string {
	if id, found := strings.CutPrefix(socket, SocketPrefix+"-"); found {
		return id
	}
	return ""
}

func socketDir() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	// tmux keeps sockets under /tmp/tmux-{uid}.
	return filepath.Join("/tmp", "tmux-"+u.Uid), nil
}

// HasSession reports whether a session exists on the socket.
func HasSession(ctx context.Context, socket, session string) bool {
	return CommandContext(ctx, socket, "has-session", "-t", session).Run() == nil
}

// NewSession starts a detached session whose first pane runs argv in dir.
// remain-on-exit keeps finished panes visible for exit-status inspection
// and human review instead of collapsing the layout.
func NewSession(ctx context.Context, socket, session, dir string, argv []string) error {
	args := []string{"new-session", "-d", "-s", session, "-c", dir}
	args = append(args, argv...)
	if err := CommandContext(ctx, socket, args...).Run(); err != nil {
		return fmt.Errorf("failed to create session %s: %w", session, err)
	}
	if err := CommandContext(ctx, socket, "set-option", "-t", session, "remain-on-exit", "on").Run(); err != nil {
		return fmt.Errorf("failed to set remain-on-exit on %s: %w", session, err)
	}
	return nil
}

// SplitPane adds a pane running argv to the session's active window and
// returns the new pane ID.
func SplitPane(ctx context.Context, socket, session, dir string, argv []string) (string, error) {
	args := []string{"split-window", "-t", session, "-c", dir, "-P", "-F", "#{pane_id}"}
	args = append(args, argv...)
	output, err := CommandContext(ctx, socket, args...).Output()
	if err != nil {
		return "", fmt.Errorf("failed to split pane in %s: %w", session, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// NewWindow creates a hidden window running argv and returns its pane ID.
// Used for threads beyond the visible grid; the paging controller swaps
// them into view.
func NewWindow(ctx context.Context, socket, session, name, dir string, argv []string) (string, error) {
	args := []string{"new-window", "-d", "-t", session, "-n", name, "-c", dir, "-P", "-F", "#{pane_id}"}
	args = append(args, argv...)
	output, err := CommandContext(ctx, socket, args...).Output()
	if err != nil {
		return "", fmt.Errorf("failed to create window %s: %w", name, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// TiledLayout arranges the active window's panes into the even grid used
// for up-to-four visible threads.
func TiledLayout(ctx context.Context, socket, session string) error {
	return CommandContext(ctx, socket, "select-layout", "-t", session, "tiled").Run()
}

// RespawnPane restarts a pane with a new command, killing whatever ran
// there before. This is the retry primitive for model fallback.
func RespawnPane(ctx context.Context, socket, pane string, argv []string) error {
	args := append([]string{"respawn-pane", "-k", "-t", pane}, argv...)
	return CommandContext(ctx, socket, args...).Run()
}

// SwapPanes exchanges two panes by ID, the paging primitive.
func SwapPanes(ctx context.Context, socket, paneA, paneB string) error {
	return CommandContext(ctx, socket, "swap-pane", "-s", paneA, "-t", paneB).Run()
}

// SetPaneTitle labels a pane so the grid shows which thread it runs.
func SetPaneTitle(ctx context.Context, socket, pane, title string) error {
	return CommandContext(ctx, socket, "select-pane", "-t", pane, "-T", title).Run()
}

// SendKeys types keys into a pane.
func SendKeys(ctx context.Context, socket, target string, keys ...string) error {
	args := append([]string{"send-keys", "-t", target}, keys...)
	return CommandContext(ctx, socket, args...).Run()
}

// Attach replaces detached operation with an interactive attach. It
// blocks until the user detaches or the session ends.
func Attach(socket, session string) error {
	cmd := Command(socket, "attach-session", "-t", session)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// KillSession tears down one session.
func KillSession(ctx context.Context, socket, session string) error {
	return CommandContext(ctx, socket, "kill-session", "-t", session).Run()
}

// PaneStatus is a snapshot of one pane used by reconciliation.
type PaneStatus struct {
	ID    string
	Title string
	PID   int
	// Dead is set once the pane's process exited (remain-on-exit keeps
	// the pane itself around).
	Dead       bool
	ExitStatus int
}

// ListPanes returns the status of every pane in a session, across all
// windows. An error usually means the session is gone entirely.
func ListPanes(ctx context.Context, socket, session string) ([]PaneStatus, error) {
	cmd := CommandContext(ctx, socket, "list-panes", "-s", "-t", session,
		"-F", "#{pane_id}\t#{pane_title}\t#{pane_pid}\t#{pane_dead}\t#{pane_dead_status}")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list panes for %s: %w", session, err)
	}
	var panes []PaneStatus
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			continue
		}
		pane := PaneStatus{ID: fields[0], Title: fields[1]}
		pane.PID, _ = strconv.Atoi(fields[2])
		pane.Dead = fields[3] == "1"
		if pane.Dead && len(fields) > 4 && fields[4] != "" {
			pane.ExitStatus, _ = strconv.Atoi(fields[4])
		}
		panes = append(panes, pane)
	}
	return panes, nil
}
