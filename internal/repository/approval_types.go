package repository

import (
	"time"

	"github.com/limspace/be-lims-approvals/internal/approval"
)

// ── Domain types for the approval workflow ───────────────────────────────────

// ApprovalFlow is a named flow configuration. Nodes are stored as a JSONB
// array and parsed/validated on scan.
type ApprovalFlow struct {
	ID           string
	Code         string
	Name         string
	BusinessType string
	Description  *string
	Nodes        []approval.Node
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ApprovalInstance is one run of a flow against one business document.
// FlowNodes is the node list snapshotted at submission time, so flow edits
// never reinterpret CurrentStep for in-flight instances.
type ApprovalInstance struct {
	ID            string
	BizType       string
	BizID         string
	FlowCode      string
	FlowNodes     []approval.Node
	CurrentStep   int
	Status        approval.Status
	SubmitterID   string
	SubmitterName string
	SubmittedAt   time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ApprovalRecord is one immutable audit row: a single approve, reject or
// cancel action. Never updated or deleted in normal operation.
type ApprovalRecord struct {
	ID           string
	InstanceID   string
	Step         int
	NodeType     string
	TargetID     string
	TargetName   string
	Action       approval.Action
	ApproverID   string
	ApproverName string
	Comment      *string
	CreatedAt    time.Time
}

// TransitionParams describes one atomic state transition: the audit record
// and the instance update commit together, and the update is conditioned on
// the instance still being pending at the step the caller observed.
type TransitionParams struct {
	InstanceID   string
	ExpectedStep int
	NewStep      int
	NewStatus    approval.Status
	CompletedAt  *time.Time
	Record       *ApprovalRecord
}
