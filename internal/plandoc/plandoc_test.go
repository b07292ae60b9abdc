package plandoc

import (
	"strings"
	"testing"
)

const samplePlan = `# Plan: Auth Overhaul

## Summary

Replace the session cookie auth with token-based auth.

## References

docs/auth.md

## Stages

### Stage 1: Token issuance

#### Definition

Implement token minting and validation.

#### Constitution

No breaking changes to existing login endpoints.

#### Questions

- [x] Which signing algorithm do we use?
- [ ] Do refresh tokens rotate?

#### Batches

##### Batch 01: Core tokens

**Summary:** Minting and verification primitives.

###### Thread 01: Mint endpoint

**Summary:** Add the token mint endpoint.

**Details:** Wire the endpoint into the router and add handler tests.

###### Thread 02: Verify middleware

**Summary:** Request middleware that validates tokens.

### Stage 2: Rollout

#### Definition

Migrate clients to the new endpoints.

#### Batches

##### Batch 01: Migration

###### Thread 01: Client update

**Summary:** Update the CLI client.
`

func TestParse(t *testing.T) {
	plan, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if plan.Name != "Auth Overhaul" {
		t.Errorf("Name = %q", plan.Name)
	}
	if !strings.Contains(plan.Summary, "token-based auth") {
		t.Errorf("Summary = %q", plan.Summary)
	}
	if plan.References != "docs/auth.md" {
		t.Errorf("References = %q", plan.References)
	}
	if len(plan.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(plan.Stages))
	}

	stage := plan.Stages[0]
	if stage.ID != 1 || stage.Name != "Token issuance" {
		t.Errorf("stage 1 = %d %q", stage.ID, stage.Name)
	}
	if !strings.Contains(stage.Definition, "token minting") {
		t.Errorf("Definition = %q", stage.Definition)
	}
	if !strings.Contains(stage.Constitution, "No breaking changes") {
		t.Errorf("Constitution = %q", stage.Constitution)
	}
	if len(stage.Questions) != 2 {
		t.Fatalf("len(Questions) = %d, want 2", len(stage.Questions))
	}
	if !stage.Questions[0].Resolved || stage.Questions[1].Resolved {
		t.Errorf("question resolution = %v %v", stage.Questions[0].Resolved, stage.Questions[1].Resolved)
	}

	if len(stage.Batches) != 1 {
		t.Fatalf("len(Batches) = %d, want 1", len(stage.Batches))
	}
	batch := stage.Batches[0]
	if batch.Prefix != "01.01" {
		t.Errorf("batch Prefix = %q, want 01.01", batch.Prefix)
	}
	if !strings.Contains(batch.Summary, "verification primitives") {
		t.Errorf("batch Summary = %q", batch.Summary)
	}
	if len(batch.Threads) != 2 {
		t.Fatalf("len(Threads) = %d, want 2", len(batch.Threads))
	}
	if batch.Threads[0].Details == "" {
		t.Errorf("thread 1 details empty")
	}
	if batch.Threads[1].Name != "Verify middleware" {
		t.Errorf("thread 2 name = %q", batch.Threads[1].Name)
	}

	if plan.Stages[1].Batches[0].Prefix != "02.01" {
		t.Errorf("stage 2 batch prefix = %q", plan.Stages[1].Batches[0].Prefix)
	}
}

func TestParseRejectsMalformedHeadings(t *testing.T) {
	cases := map[string]string{
		"missing title":   "## Summary\n\ntext\n",
		"bad stage":       "# Plan: x\n\n### Stage one: name\n",
		"orphan batch":    "# Plan: x\n\n##### Batch 01: name\n",
		"duplicate stage": "# Plan: x\n\n### Stage 1: a\n\n### Stage 1: b\n",
		"zero thread": "# Plan: x\n\n### Stage 1: a\n\n#### Batches\n\n" +
			"##### Batch 01: b\n\n###### Thread 00: t\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestOpenQuestions(t *testing.T) {
	plan, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	open := plan.OpenQuestions()
	if len(open) != 1 {
		t.Fatalf("len(open) = %d, want 1", len(open))
	}
	if open[0].Stage != 1 || !strings.Contains(open[0].Question.Text, "refresh tokens") {
		t.Errorf("open question = %+v", open[0])
	}
}

func TestHashChangesWithContent(t *testing.T) {
	a := Hash([]byte(samplePlan))
	b := Hash([]byte(samplePlan + "\nedited"))
	if a == b {
		t.Error("hash did not change with content")
	}
	if a != Hash([]byte(samplePlan)) {
		t.Error("hash not deterministic")
	}
}

func TestTemplateParsesBack(t *testing.T) {
	data, err := Template(TemplateData{Name: "Demo Stream"})
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	plan, err := Parse(data)
	if err != nil {
		t.Fatalf("template output does not parse: %v", err)
	}
	if plan.Name != "Demo Stream" {
		t.Errorf("Name = %q", plan.Name)
	}
	if len(plan.OpenQuestions()) == 0 {
		t.Error("template should carry an unresolved question")
	}
	if len(plan.Stages) != 1 || len(plan.Stages[0].Batches) != 1 {
		t.Errorf("template structure unexpected: %+v", plan.Stages)
	}
}

func TestFindStage(t *testing.T) {
	plan, _ := Parse([]byte(samplePlan))
	if _, ok := plan.FindStage(2); !ok {
		t.Error("stage 2 not found")
	}
	if _, ok := plan.FindStage(9); ok {
		t.Error("stage 9 should not exist")
	}
}
