package plandoc

import (
	"bytes"
	"text/template"

	"github.com/AlbertoV5/workstream/internal/errors"
)

// planTemplate is the scaffold written by stream creation. It demonstrates
// the full heading convention, including an unresolved question, so the
// approval gate is exercised the first time a user tries to approve an
// unedited plan.
const planTemplate = `# Plan: {{.Name}}

## Summary

Describe what this workstream delivers and why.

## References

List source files, documents, or prior work relevant to this plan.

## Stages

### Stage 1: {{.FirstStage}}

#### Definition

Describe the goal of this stage.

#### Constitution

State the rules every thread in this stage must follow.

#### Questions

- [ ] Replace this question, or check it off once resolved.

#### Batches

##### Batch 01: Initial batch

**Summary:** Describe what this batch accomplishes.

###### Thread 01: First thread

**Summary:** One-line description of the thread.

**Details:** Step-by-step instructions for the agent working this thread.
`

// TemplateData parameterizes the plan scaffold.
type TemplateData struct {
	Name       string
	FirstStage string
}

// Template renders the PLAN.md scaffold for a new workstream.
func Template(data TemplateData) ([]byte, error) {
	if data.Name == "" {
		return nil, errors.NewValidationError("plan name is required").WithField("name")
	}
	if data.FirstStage == "" {
		data.FirstStage = "Implementation"
	}
	tmpl, err := template.New("plan").Parse(planTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse plan template")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, errors.Wrap(err, "failed to render plan template")
	}
	return buf.Bytes(), nil
}
