// Package tracker mirrors workstream stages into an external issue
// tracker. The GitHub provider shells out to the gh CLI; issues are keyed
// by a deterministic title template so repeated syncs find their own
// issues instead of duplicating them.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/AlbertoV5/workstream/internal/errors"
	"github.com/AlbertoV5/workstream/internal/logging"
)

// TitleFor renders the deterministic issue title for a stage:
// "[{streamId}] Stage {NN}: {stageName}".
func TitleFor(streamID string, stage int, stageName string) string {
	return fmt.Sprintf("[%s] Stage %02d: %s", streamID, stage, stageName)
}

// LabelCategory configures one label family: the prefix its labels share
// and the color they are created with.
type LabelCategory struct {
	Prefix string
	Color  string
}

// DefaultLabelTaxonomy is the standard label set. Keys are category
// names; values configure prefix and color.
func DefaultLabelTaxonomy() map[string]LabelCategory {
	return map[string]LabelCategory{
		"stream": {Prefix: "workstream", Color: "1D76DB"},
		"stage":  {Prefix: "stage", Color: "5319E7"},
		"kind":   {Prefix: "kind", Color: "0E8A16"},
	}
}

// Label renders "prefix:value" for a category.
func (c LabelCategory) Label(value string) string {
	return c.Prefix + ":" + value
}

// runner executes an external command and returns its combined output.
// Tests substitute a fake; the default shells out.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Issue is the subset of tracker issue fields the sync logic needs.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

// GitHub talks to the GitHub issue tracker through the gh CLI.
type GitHub struct {
	// Repo is "owner/name"; empty means gh's inferred repo for the
	// working directory.
	Repo     string
	Taxonomy map[string]LabelCategory
	logger   *logging.Logger
	run      runner
}

// NewGitHub returns a GitHub tracker client.
func NewGitHub(repo string, logger *logging.Logger) *GitHub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &GitHub{
		Repo:     repo,
		Taxonomy: DefaultLabelTaxonomy(),
		logger:   logger,
		run:      execRunner,
	}
}

func (g *GitHub) repoArgs() []string {
	if g.Repo == "" {
		return nil
	}
	return []string{"--repo", g.Repo}
}

// Search finds issues whose title contains the given string.
func (g *GitHub) Search(ctx context.Context, title string) ([]Issue, error) {
	args := append([]string{
		"issue", "list",
		"--state", "all",
		"--search", fmt.Sprintf("in:title %q", title),
		"--json", "number,title,state,url",
	}, g.repoArgs()...)
	output, err := g.run(ctx, "gh", args...)
	if err != nil {
		return nil, errors.Wrapf(err, "gh issue list failed: %s", strings.TrimSpace(string(output)))
	}
	var issues []Issue
	if err := json.Unmarshal(output, &issues); err != nil {
		return nil, errors.Wrap(err, "failed to decode gh issue list output")
	}
	// gh search is fuzzy; keep exact title matches only.
	exact := issues[:0]
	for _, issue := range issues {
		if issue.Title == title {
			exact = append(exact, issue)
		}
	}
	return exact, nil
}

// Create opens a new issue and returns its URL.
func (g *GitHub) Create(ctx context.Context, title, body string, labels []string) (string, error) {
	args := append([]string{"issue", "create", "--title", title, "--body", body}, g.repoArgs()...)
	for _, label := range labels {
		args = append(args, "--label", label)
	}
	output, err := g.run(ctx, "gh", args...)
	if err != nil {
		return "", errors.Wrapf(err, "gh issue create failed: %s", strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// Close closes an issue by number.
func (g *GitHub) Close(ctx context.Context, number int) error {
	args := append([]string{"issue", "close", fmt.Sprintf("%d", number)}, g.repoArgs()...)
	output, err := g.run(ctx, "gh", args...)
	if err != nil {
		return errors.Wrapf(err, "gh issue close failed: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// Reopen reopens a closed issue by number.
func (g *GitHub) Reopen(ctx context.Context, number int) error {
	args := append([]string{"issue", "reopen", fmt.Sprintf("%d", number)}, g.repoArgs()...)
	output, err := g.run(ctx, "gh", args...)
	if err != nil {
		return errors.Wrapf(err, "gh issue reopen failed: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// EnsureLabels creates the taxonomy labels, overwriting color on
// existing ones so drift heals on every sync.
func (g *GitHub) EnsureLabels(ctx context.Context, values map[string]string) error {
	for category, value := range values {
		spec, ok := g.Taxonomy[category]
		if !ok {
			continue
		}
		args := append([]string{
			"label", "create", spec.Label(value),
			"--color", spec.Color,
			"--force",
		}, g.repoArgs()...)
		if output, err := g.run(ctx, "gh", args...); err != nil {
			return errors.Wrapf(err, "gh label create failed: %s", strings.TrimSpace(string(output)))
		}
	}
	return nil
}
