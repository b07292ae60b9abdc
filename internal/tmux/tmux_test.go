package tmux

import (
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestStreamSocket(t *testing.T) {
	if got := StreamSocket("001-demo"); got != "work-001-demo" {
		t.Errorf("StreamSocket = %q", got)
	}
}

func TestBatchSession(t *testing.T) {
	if got := BatchSession("001-demo", 1, 2); got != "work-001-demo-s01b02" {
		t.Errorf("BatchSession = %q", got)
	}
}

func TestExtractStreamID(t *testing.T) {
	cases := map[string]string{
		"work-001-demo": "001-demo",
		"work-x":        "x",
		"other-socket":  "",
		"work":          "",
	}
	for socket, want := range cases {
		if got := ExtractStreamID(socket); got != want {
			t.Errorf("ExtractStreamID(%q) = %q, want %q", socket, got, want)
		}
	}
}

func TestCommandBuildsSocketArgs(t *testing.T) {
	cmd := Command("work-001-demo", "list-sessions")
	args := cmd.Args
	if len(args) != 4 || args[0] != "tmux" || args[1] != "-L" || args[2] != "work-001-demo" || args[3] != "list-sessions" {
		t.Errorf("args = %v", args)
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Error("current process reported dead")
	}
	if IsProcessAlive(0) || IsProcessAlive(-1) {
		t.Error("non-positive PIDs should be dead")
	}
	// A PID from the far end of the range is almost certainly unused.
	if IsProcessAlive(1 << 30) {
		t.Skip("improbable PID is alive on this system")
	}
}

func TestWaitForProcessExit(t *testing.T) {
	if !WaitForProcessExit(0, time.Millisecond) {
		t.Error("PID 0 should report exited")
	}

	cmd := exec.Command("sleep", "0.05")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	if !WaitForProcessExit(cmd.Process.Pid, 2*time.Second) {
		t.Error("short-lived process did not exit within timeout")
	}
	<-done
}

func TestGetDescendantPIDsOfLeaf(t *testing.T) {
	cmd := exec.Command("sleep", "1")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}()
	if pids := GetDescendantPIDs(cmd.Process.Pid); len(pids) != 0 {
		t.Errorf("sleep has descendants: %v", pids)
	}
}
