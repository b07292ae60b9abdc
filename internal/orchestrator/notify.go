package orchestrator

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/AlbertoV5/workstream/internal/config"
	"github.com/AlbertoV5/workstream/internal/logging"
)

// Notifier emits completion notifications. Sound playback is best-effort
// and never blocks the watcher.
type Notifier struct {
	cfg    config.NotificationConfig
	logger *logging.Logger
}

func NewNotifier(cfg config.NotificationConfig, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Notifier{cfg: cfg, logger: logger}
}

// ThreadComplete announces one thread finishing.
func (n *Notifier) ThreadComplete(threadID string, ok bool) {
	if !n.cfg.Enabled {
		return
	}
	if ok {
		n.logger.Info("thread complete", "thread", threadID)
	} else {
		n.logger.Warn("thread failed", "thread", threadID)
	}
	n.ring()
}

// SynthesisComplete announces a thread's synthesis output arriving.
func (n *Notifier) SynthesisComplete(threadID string) {
	if !n.cfg.Enabled {
		return
	}
	n.logger.Info("synthesis complete", "thread", threadID)
}

// BatchComplete announces every thread in a batch finishing.
func (n *Notifier) BatchComplete(stage, batch int) {
	if !n.cfg.Enabled {
		return
	}
	n.logger.Info("batch complete", "stage", stage, "batch", batch)
	n.ring()
}

// ring plays the configured sound, falling back to the terminal bell.
func (n *Notifier) ring() {
	if n.cfg.UseSound && n.cfg.SoundPath != "" {
		go func() {
			var cmd *exec.Cmd
			switch runtime.GOOS {
			case "darwin":
				cmd = exec.Command("afplay", n.cfg.SoundPath)
			default:
				cmd = exec.Command("paplay", n.cfg.SoundPath)
			}
			if err := cmd.Run(); err != nil {
				n.logger.Debug("sound playback failed", "error", err)
			}
		}()
		return
	}
	fmt.Fprint(os.Stderr, "\a")
}
