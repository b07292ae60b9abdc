// Package index manages the workstream registry: the single JSON file
// that records every workstream's identity, ordering, approval state, and
// the current-selection pointer. The registry exclusively owns Workstream
// records; per-stream ledgers live in their own files.
package index

import "time"

// IndexVersion is the schema version written into index.json.
const IndexVersion = 1

// StreamStatus is the rollup status of a workstream.
type StreamStatus string

const (
	StatusPending    StreamStatus = "pending"
	StatusInProgress StreamStatus = "in_progress"
	StatusCompleted  StreamStatus = "completed"
	StatusOnHold     StreamStatus = "on_hold"
)

// Valid reports whether s is a known stream status.
func (s StreamStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOnHold:
		return true
	}
	return false
}

// ApprovalStatus is the state of a single approval track.
type ApprovalStatus string

const (
	ApprovalDraft    ApprovalStatus = "draft"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRevoked  ApprovalStatus = "revoked"
)

// PlanApproval tracks approval of the plan document. The hash is a content
// digest of PLAN.md stamped at approval time; a later mismatch auto-revokes
// the approval.
type PlanApproval struct {
	Status        ApprovalStatus `json:"status"`
	PlanHash      string         `json:"plan_hash,omitempty"`
	ApprovedAt    *time.Time     `json:"approved_at,omitempty"`
	RevokedReason string         `json:"revoked_reason,omitempty"`
}

// StageApproval tracks per-stage sub-approval. Entries are independent per
// stage number; the data model does not enforce sequential approval.
type StageApproval struct {
	Status        ApprovalStatus `json:"status"`
	ApprovedAt    *time.Time     `json:"approved_at,omitempty"`
	RevokedReason string         `json:"revoked_reason,omitempty"`
	Forced        bool           `json:"forced,omitempty"`
}

// TasksApproval is the single gate for the serialized task ledger.
type TasksApproval struct {
	Status     ApprovalStatus `json:"status"`
	TaskCount  int            `json:"task_count,omitempty"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty"`
}

// ApprovalState holds the three independent approval tracks of a
// workstream.
type ApprovalState struct {
	Plan   PlanApproval          `json:"plan"`
	Stages map[int]StageApproval `json:"stages,omitempty"`
	Tasks  TasksApproval         `json:"tasks"`
}

// NewApprovalState returns the draft state for a fresh workstream.
func NewApprovalState() ApprovalState {
	return ApprovalState{
		Plan:   PlanApproval{Status: ApprovalDraft},
		Stages: make(map[int]StageApproval),
		Tasks:  TasksApproval{Status: ApprovalDraft},
	}
}

// Workstream is a registry entry. Field order here fixes the JSON key
// order for diff-friendly serialization.
type Workstream struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Order    int           `json:"order"`
	Status   StreamStatus  `json:"status,omitempty"`
	Approval ApprovalState `json:"approval"`
	Current  bool          `json:"current,omitempty"`
}

// Index is the full registry document.
type Index struct {
	Version       int          `json:"version"`
	LastUpdated   time.Time    `json:"last_updated"`
	CurrentStream string       `json:"current_stream,omitempty"`
	Streams       []Workstream `json:"streams"`
}

// NewIndex returns an empty registry.
func NewIndex() *Index {
	return &Index{
		Version: IndexVersion,
		Streams: []Workstream{},
	}
}
