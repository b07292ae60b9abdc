package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ThreadCommand describes one agent invocation for one thread. The
// orchestrator drives model-retry chaining itself by respawning the pane
// with the next model, so a command always names exactly one model.
type ThreadCommand struct {
	ThreadID     string
	SessionID    string
	AgentCommand string
	Model        string
	ExtraArgs    []string
	PromptPath   string
	MarkerDir    string

	// Synthesis chains a second headless agent pass after the working
	// agent completes.
	Synthesis        bool
	SynthesisCommand string
	SynthesisModel   string
}

// AgentArgv is the discrete argument vector for the working agent.
func (c *ThreadCommand) AgentArgv() []string {
	argv := []string{c.AgentCommand}
	if c.Model != "" {
		argv = append(argv, "--model", c.Model)
	}
	if c.SessionID != "" {
		argv = append(argv, "--session-id", c.SessionID)
	}
	argv = append(argv, c.ExtraArgs...)
	return argv
}

// Script renders the pane command. The shell wrapper exists only for the
// sentinel writes after the agent exits; everything the agent itself
// receives is a quoted argv, and retry logic lives in the orchestrator
// process rather than in the script.
func (c *ThreadCommand) Script() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s < %s; status=$?\n", joinArgv(c.AgentArgv()), shellQuote(c.PromptPath))
	fmt.Fprintf(&b, "printf '%%s' %s > %s\n", shellQuote(c.SessionID), shellQuote(SessionPath(c.MarkerDir, c.ThreadID)))
	if c.Synthesis {
		b.WriteString(c.synthesisFragment())
	}
	fmt.Fprintf(&b, "printf '{\"thread_id\":%%s,\"exit_code\":%%d,\"model\":%%s}' %s \"$status\" %s > %s\n",
		shellQuote(jsonQuote(c.ThreadID)), shellQuote(jsonQuote(c.Model)), shellQuote(DonePath(c.MarkerDir, c.ThreadID)))
	b.WriteString("exit \"$status\"\n")
	return b.String()
}

// synthesisFragment exports the working agent's transcript and pipes the
// assistant-authored text into the synthesis agent headlessly. The
// working agent's session stays the resumable one; synthesis output goes
// to its own sentinel.
func (c *ThreadCommand) synthesisFragment() string {
	command := c.SynthesisCommand
	if command == "" {
		command = c.AgentCommand
	}
	argv := []string{command}
	if c.SynthesisModel != "" {
		argv = append(argv, "--model", c.SynthesisModel)
	}
	argv = append(argv, "--print", "--output-format", "json")

	var b strings.Builder
	fmt.Fprintf(&b, "if [ \"$status\" -eq 0 ]; then\n")
	fmt.Fprintf(&b, "  %s --resume %s --print 2>/dev/null | %s > %s\n",
		shellQuote(c.AgentCommand), shellQuote(c.SessionID),
		joinArgv(argv), shellQuote(SynthesisPath(c.MarkerDir, c.ThreadID)))
	b.WriteString("fi\n")
	return b.String()
}

// SpawnArgv is what gets handed to the pane primitive.
func (c *ThreadCommand) SpawnArgv() []string {
	return []string{"sh", "-c", c.Script()}
}

// jsonQuote renders s as a JSON string literal. The done sentinel is
// assembled by shell printf, so the values it carries are quoted here
// rather than interpolated into the format string.
func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// shellQuote single-quotes s for POSIX sh, escaping embedded quotes.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func joinArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}
