// Package plandoc builds the in-memory plan document model from PLAN.md.
//
// The document follows a fixed heading convention: "# Plan: {name}" at the
// top, "## Summary" / "## References" / "## Stages" sections, then
// "### Stage N: {name}" with "#### Definition|Constitution|Questions|Batches"
// subsections, "##### Batch NN: {name}" and "###### Thread NN: {name}"
// nested below. Questions use checkbox list items; threads carry
// "**Summary:**" and "**Details:**" markers.
//
// Parsing is delegated to goldmark; this package only interprets the
// resulting token tree. Stage, batch, and thread IDs from the headings are
// the source of the canonical zero-padded task-ledger IDs, so the two ID
// systems stay congruent through the serialization step.
package plandoc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/AlbertoV5/workstream/internal/errors"
)

// Question is a plan question that must be resolved (checked off) before
// plan approval.
type Question struct {
	Text     string `json:"question"`
	Resolved bool   `json:"resolved"`
}

// Thread is the smallest independently-assignable unit of work in a batch.
type Thread struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
	Details string `json:"details,omitempty"`
}

// Batch groups threads that run concurrently.
type Batch struct {
	ID      int      `json:"id"`
	Prefix  string   `json:"prefix"`
	Name    string   `json:"name"`
	Summary string   `json:"summary,omitempty"`
	Threads []Thread `json:"threads"`
}

// Stage is the largest subdivision of a plan.
type Stage struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	Definition   string     `json:"definition,omitempty"`
	Constitution string     `json:"constitution,omitempty"`
	Questions    []Question `json:"questions,omitempty"`
	Batches      []Batch    `json:"batches"`
}

// Plan is the parsed document model. It is derived from PLAN.md on each
// parse and never persisted as its own file.
type Plan struct {
	Name       string  `json:"name"`
	Summary    string  `json:"summary,omitempty"`
	References string  `json:"references,omitempty"`
	Stages     []Stage `json:"stages"`
}

var (
	stageHeading  = regexp.MustCompile(`^Stage\s+(\d+):\s*(.+)$`)
	batchHeading  = regexp.MustCompile(`^Batch\s+(\d+):\s*(.+)$`)
	threadHeading = regexp.MustCompile(`^Thread\s+(\d+):\s*(.+)$`)
	planHeading   = regexp.MustCompile(`^Plan:\s*(.+)$`)
)

// markdown is the shared goldmark instance. TaskList support is needed for
// the question checkboxes.
var markdown = goldmark.New(goldmark.WithExtensions(extension.TaskList))

// Parse builds the document model from PLAN.md content.
func Parse(source []byte) (*Plan, error) {
	doc := markdown.Parser().Parse(text.NewReader(source))

	p := &Plan{}
	var (
		stage   *Stage
		batch   *Batch
		thread  *Thread
		section string // current H2/H4 section name, lowercased
	)

	flushThread := func() {
		if thread != nil && batch != nil {
			batch.Threads = append(batch.Threads, *thread)
		}
		thread = nil
	}
	flushBatch := func() {
		flushThread()
		if batch != nil && stage != nil {
			stage.Batches = append(stage.Batches, *batch)
		}
		batch = nil
	}
	flushStage := func() {
		flushBatch()
		if stage != nil {
			p.Stages = append(p.Stages, *stage)
		}
		stage = nil
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := nodeText(node, source)
			switch node.Level {
			case 1:
				if m := planHeading.FindStringSubmatch(title); m != nil {
					p.Name = strings.TrimSpace(m[1])
				}
			case 2:
				section = strings.ToLower(title)
			case 3:
				m := stageHeading.FindStringSubmatch(title)
				if m == nil {
					return nil, errors.NewValidationError("stage heading must be 'Stage N: name'").
						WithField("heading").WithValue(title)
				}
				flushStage()
				id, _ := strconv.Atoi(m[1])
				stage = &Stage{ID: id, Name: strings.TrimSpace(m[2])}
				section = ""
			case 4:
				if stage == nil {
					return nil, errors.NewValidationError("subsection outside a stage").
						WithField("heading").WithValue(title)
				}
				flushBatch()
				section = strings.ToLower(title)
			case 5:
				m := batchHeading.FindStringSubmatch(title)
				if m == nil || stage == nil {
					return nil, errors.NewValidationError("batch heading must be 'Batch NN: name' inside a stage").
						WithField("heading").WithValue(title)
				}
				flushBatch()
				id, _ := strconv.Atoi(m[1])
				batch = &Batch{
					ID:     id,
					Prefix: fmt.Sprintf("%02d.%02d", stage.ID, id),
					Name:   strings.TrimSpace(m[2]),
				}
			case 6:
				m := threadHeading.FindStringSubmatch(title)
				if m == nil || batch == nil {
					return nil, errors.NewValidationError("thread heading must be 'Thread NN: name' inside a batch").
						WithField("heading").WithValue(title)
				}
				flushThread()
				id, _ := strconv.Atoi(m[1])
				thread = &Thread{ID: id, Name: strings.TrimSpace(m[2])}
			}

		case *ast.List:
			if section == "questions" && stage != nil {
				stage.Questions = append(stage.Questions, parseQuestions(node, source)...)
			}

		case *ast.Paragraph:
			raw := rawLines(node, source)
			switch {
			case thread != nil:
				applyMarkedText(raw, &thread.Summary, &thread.Details)
			case batch != nil:
				applyMarkedText(raw, &batch.Summary, nil)
			case stage != nil:
				switch section {
				case "definition":
					stage.Definition = appendBlock(stage.Definition, raw)
				case "constitution":
					stage.Constitution = appendBlock(stage.Constitution, raw)
				}
			default:
				switch section {
				case "summary":
					p.Summary = appendBlock(p.Summary, raw)
				case "references":
					p.References = appendBlock(p.References, raw)
				}
			}
		}
	}
	flushStage()

	if p.Name == "" {
		return nil, errors.NewValidationError("document must start with '# Plan: {name}'")
	}
	if err := validateIDs(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseFile reads and parses a PLAN.md file.
func ParseFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("plan file", path).
				WithCause(errors.ErrPlanNotFound).
				WithSuggestion("run 'work create' to scaffold one")
		}
		return nil, errors.Wrap(err, "failed to read plan file")
	}
	return Parse(data)
}

// Hash returns the content digest of plan bytes, stamped into the approval
// record and compared later for staleness detection.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile hashes the plan file at path.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to read plan file for hashing")
	}
	return Hash(data), nil
}

// OpenQuestions returns every unresolved question with its owning stage
// number, used by the approval gate to block premature plan approval.
func (p *Plan) OpenQuestions() []StageQuestion {
	var open []StageQuestion
	for _, stage := range p.Stages {
		for _, q := range stage.Questions {
			if !q.Resolved {
				open = append(open, StageQuestion{Stage: stage.ID, Question: q})
			}
		}
	}
	return open
}

// StageQuestion pairs a question with its stage number for reporting.
type StageQuestion struct {
	Stage    int
	Question Question
}

// FindStage returns the stage with the given number.
func (p *Plan) FindStage(n int) (*Stage, bool) {
	for i := range p.Stages {
		if p.Stages[i].ID == n {
			return &p.Stages[i], true
		}
	}
	return nil, false
}

// validateIDs enforces that stage/batch/thread IDs are positive and unique
// within their parent, the invariant the task-ledger IDs are derived from.
func validateIDs(p *Plan) error {
	stageSeen := make(map[int]bool)
	for _, stage := range p.Stages {
		if stage.ID <= 0 {
			return errors.NewValidationError("stage numbers must be positive").
				WithField("stage").WithValue(stage.ID)
		}
		if stageSeen[stage.ID] {
			return errors.NewValidationError("duplicate stage number").
				WithField("stage").WithValue(stage.ID)
		}
		stageSeen[stage.ID] = true

		batchSeen := make(map[int]bool)
		for _, batch := range stage.Batches {
			if batch.ID <= 0 || batchSeen[batch.ID] {
				return errors.NewValidationError("batch numbers must be positive and unique within their stage").
					WithField("batch").WithValue(fmt.Sprintf("stage %d batch %d", stage.ID, batch.ID))
			}
			batchSeen[batch.ID] = true

			threadSeen := make(map[int]bool)
			for _, thread := range batch.Threads {
				if thread.ID <= 0 || threadSeen[thread.ID] {
					return errors.NewValidationError("thread numbers must be positive and unique within their batch").
						WithField("thread").WithValue(fmt.Sprintf("batch %s thread %d", batch.Prefix, thread.ID))
				}
				threadSeen[thread.ID] = true
			}
		}
	}
	return nil
}

// parseQuestions extracts checkbox questions from a list node.
func parseQuestions(list *ast.List, source []byte) []Question {
	var questions []Question
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		q := Question{Text: strings.TrimSpace(nodeText(item, source))}
		_ = ast.Walk(item, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if box, ok := n.(*east.TaskCheckBox); ok && entering {
				q.Resolved = box.IsChecked
				return ast.WalkStop, nil
			}
			return ast.WalkContinue, nil
		})
		if q.Text != "" {
			questions = append(questions, q)
		}
	}
	return questions
}

// applyMarkedText routes a raw paragraph into either the Summary or
// Details field depending on its "**Summary:**"/"**Details:**" marker.
// Unmarked paragraphs continue the most recent field; details is the
// fallback when no marker has been seen.
func applyMarkedText(raw string, summary, details *string) {
	const (
		summaryMarker = "**Summary:**"
		detailsMarker = "**Details:**"
	)
	switch {
	case strings.HasPrefix(raw, summaryMarker):
		*summary = appendBlock(*summary, strings.TrimSpace(strings.TrimPrefix(raw, summaryMarker)))
	case details != nil && strings.HasPrefix(raw, detailsMarker):
		*details = appendBlock(*details, strings.TrimSpace(strings.TrimPrefix(raw, detailsMarker)))
	case details != nil && *details != "":
		*details = appendBlock(*details, raw)
	case *summary != "" && details == nil:
		*summary = appendBlock(*summary, raw)
	case details != nil:
		*details = appendBlock(*details, raw)
	default:
		*summary = appendBlock(*summary, raw)
	}
}

func appendBlock(existing, block string) string {
	block = strings.TrimSpace(block)
	if block == "" {
		return existing
	}
	if existing == "" {
		return block
	}
	return existing + "\n\n" + block
}

// nodeText collects the plain text content of a node.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := node.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// rawLines returns the raw markdown text of a block node, preserving
// inline markers like "**Summary:**".
func rawLines(n ast.Node, source []byte) string {
	lines := n.Lines()
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return strings.TrimSpace(b.String())
}
