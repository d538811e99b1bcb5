package service

import (
	"context"
	"fmt"
	"time"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
	"github.com/limspace/be-lims-approvals/internal/approval"
	"github.com/limspace/be-lims-approvals/internal/logger"
	"github.com/limspace/be-lims-approvals/internal/repository"
)

// Notification event types published on approval activity.
const (
	EventApprovalSubmitted = "approval_submitted"
	EventApprovalRequired  = "approval_required"
	EventApprovalApproved  = "approval_approved"
	EventApprovalRejected  = "approval_rejected"
	EventApprovalCancelled = "approval_cancelled"
)

// ApprovalEngine drives business documents through configured, ordered
// sequences of approval nodes. It is stateless: all state lives in the
// stores, and concurrency correctness is delegated to the instance store's
// compare-and-swap transition.
type ApprovalEngine struct {
	flows     FlowStore
	instances InstanceStore
	records   RecordStore
	identity  IdentityStore
	notifier  Notifier
	log       *logger.Logger
}

// NewApprovalEngine creates a new ApprovalEngine.
func NewApprovalEngine(
	flows FlowStore,
	instances InstanceStore,
	records RecordStore,
	identity IdentityStore,
	notifier Notifier,
	log *logger.Logger,
) *ApprovalEngine {
	return &ApprovalEngine{
		flows:     flows,
		instances: instances,
		records:   records,
		identity:  identity,
		notifier:  notifier,
		log:       log,
	}
}

// ── Submit ────────────────────────────────────────────────────────────────────

// SubmitParams identifies the document, the flow to run it through, and the
// submitting actor.
type SubmitParams struct {
	BizType       string
	BizID         string
	FlowCode      string
	SubmitterID   string
	SubmitterName string
}

// Submit starts a new approval run. The flow must exist, be active and have
// at least one node; the document must not already have a pending instance.
// The flow's node list is snapshotted into the instance so later flow edits
// never reinterpret the current step.
//
// The caller owns the follow-up document status update; a partial failure
// between instance creation and that update is repaired by Reconciler.
func (e *ApprovalEngine) Submit(ctx context.Context, p SubmitParams) (*repository.ApprovalInstance, error) {
	flow, err := e.flows.GetByCode(ctx, p.FlowCode)
	if err != nil {
		return nil, err
	}
	if !flow.IsActive {
		return nil, apperrors.New(apperrors.CodeInvalidInput,
			fmt.Sprintf("approval flow is not active: %s", p.FlowCode))
	}
	if len(flow.Nodes) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput,
			fmt.Sprintf("approval flow has no nodes configured: %s", p.FlowCode))
	}

	existing, err := e.instances.GetPendingByBiz(ctx, p.BizType, p.BizID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.CodeInvalidInput,
			fmt.Sprintf("a pending approval already exists for %s %s", p.BizType, p.BizID))
	}

	inst := &repository.ApprovalInstance{
		BizType:       p.BizType,
		BizID:         p.BizID,
		FlowCode:      p.FlowCode,
		FlowNodes:     flow.Nodes,
		CurrentStep:   1,
		Status:        approval.StatusPending,
		SubmitterID:   p.SubmitterID,
		SubmitterName: p.SubmitterName,
		SubmittedAt:   time.Now(),
	}

	if err := e.instances.Create(ctx, inst); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("instance_id", inst.ID).
		Str("biz_type", p.BizType).
		Str("biz_id", p.BizID).
		Str("flow_code", p.FlowCode).
		Int("total_steps", len(flow.Nodes)).
		Msg("Approval instance created")

	e.notify(ctx, EventApprovalSubmitted, inst, p.SubmitterID, nil)
	if first, ok := approval.NodeAt(inst.FlowNodes, 1); ok {
		e.notify(ctx, EventApprovalRequired, inst, p.SubmitterID, map[string]any{
			"step":          1,
			"approver_name": approval.ExtractApproverName(first),
		})
	}

	return inst, nil
}

// ── Approve / Reject ──────────────────────────────────────────────────────────

// ApproveParams carries one approve or reject action against an instance.
type ApproveParams struct {
	InstanceID   string
	Action       approval.Action
	ApproverID   string
	ApproverName string
	Comment      *string
}

// ApproveResult tells the caller what the transition produced, so the
// owning document's status can be synced.
type ApproveResult struct {
	BizType  string
	BizID    string
	Status   approval.Status
	Step     int
	Complete bool
}

// Approve records an approval action and advances or terminates the
// instance. The audit record and the state change commit atomically, and
// the update is conditioned on the step the engine observed; a lost race
// surfaces as a conflict.
func (e *ApprovalEngine) Approve(ctx context.Context, p ApproveParams) (*ApproveResult, error) {
	if !p.Action.Valid() {
		return nil, apperrors.InvalidInput("action", "must be approve or reject")
	}

	inst, err := e.instances.GetByID(ctx, p.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != approval.StatusPending {
		return nil, apperrors.New(apperrors.CodeInvalidInput,
			fmt.Sprintf("instance is not pending (status: %s)", inst.Status))
	}

	nodes, err := e.resolveNodes(ctx, inst)
	if err != nil {
		return nil, err
	}
	node, ok := approval.NodeAt(nodes, inst.CurrentStep)
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidInput,
			fmt.Sprintf("no node configured for step %d of flow %s", inst.CurrentStep, inst.FlowCode))
	}

	if err := e.assertCanAct(ctx, node, p.ApproverID); err != nil {
		return nil, err
	}

	newStatus := approval.StatusPending
	newStep := inst.CurrentStep
	if p.Action == approval.ActionReject {
		newStatus = approval.StatusRejected
	} else if _, hasNext := approval.NodeAt(nodes, inst.CurrentStep+1); hasNext {
		newStep = inst.CurrentStep + 1
	} else {
		newStatus = approval.StatusApproved
	}

	var completedAt *time.Time
	if newStatus.IsTerminal() {
		now := time.Now()
		completedAt = &now
	}

	err = e.instances.Transition(ctx, repository.TransitionParams{
		InstanceID:   inst.ID,
		ExpectedStep: inst.CurrentStep,
		NewStep:      newStep,
		NewStatus:    newStatus,
		CompletedAt:  completedAt,
		Record: &repository.ApprovalRecord{
			Step:         inst.CurrentStep,
			NodeType:     string(node.Type),
			TargetID:     node.TargetID,
			TargetName:   node.TargetName,
			Action:       p.Action,
			ApproverID:   p.ApproverID,
			ApproverName: p.ApproverName,
			Comment:      p.Comment,
		},
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("instance_id", inst.ID).
		Str("action", p.Action.String()).
		Int("step", inst.CurrentStep).
		Str("new_status", newStatus.String()).
		Msg("Approval action recorded")

	switch {
	case newStatus == approval.StatusRejected:
		e.notify(ctx, EventApprovalRejected, inst, p.ApproverID, map[string]any{"step": inst.CurrentStep})
	case newStatus == approval.StatusApproved:
		e.notify(ctx, EventApprovalApproved, inst, p.ApproverID, nil)
	default:
		next, _ := approval.NodeAt(nodes, newStep)
		e.notify(ctx, EventApprovalRequired, inst, p.ApproverID, map[string]any{
			"step":          newStep,
			"approver_name": approval.ExtractApproverName(next),
		})
	}

	return &ApproveResult{
		BizType:  inst.BizType,
		BizID:    inst.BizID,
		Status:   newStatus,
		Step:     newStep,
		Complete: newStatus.IsTerminal(),
	}, nil
}

// ── Cancel ────────────────────────────────────────────────────────────────────

// CancelParams identifies the instance being withdrawn and the operator.
type CancelParams struct {
	InstanceID string
	OperatorID string
}

// Cancel withdraws an in-flight instance. Only the submitter may cancel,
// and only while the instance is pending. The cancellation is recorded as
// an audit row alongside the other actions.
func (e *ApprovalEngine) Cancel(ctx context.Context, p CancelParams) (*repository.ApprovalInstance, error) {
	inst, err := e.instances.GetByID(ctx, p.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != approval.StatusPending {
		return nil, apperrors.New(apperrors.CodeInvalidInput,
			fmt.Sprintf("only a pending approval can be cancelled (status: %s)", inst.Status))
	}
	if inst.SubmitterID != p.OperatorID {
		return nil, apperrors.Unauthorized("only the submitter can cancel the approval")
	}

	node, _ := approval.NodeAt(inst.FlowNodes, inst.CurrentStep)
	now := time.Now()

	err = e.instances.Transition(ctx, repository.TransitionParams{
		InstanceID:   inst.ID,
		ExpectedStep: inst.CurrentStep,
		NewStep:      inst.CurrentStep,
		NewStatus:    approval.StatusCancelled,
		CompletedAt:  &now,
		Record: &repository.ApprovalRecord{
			Step:         inst.CurrentStep,
			NodeType:     string(node.Type),
			TargetID:     node.TargetID,
			TargetName:   node.TargetName,
			Action:       approval.ActionCancel,
			ApproverID:   p.OperatorID,
			ApproverName: inst.SubmitterName,
		},
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("instance_id", inst.ID).
		Str("operator_id", p.OperatorID).
		Msg("Approval instance cancelled")

	e.notify(ctx, EventApprovalCancelled, inst, p.OperatorID, nil)

	inst.Status = approval.StatusCancelled
	inst.CompletedAt = &now
	return inst, nil
}

// ── Read accessors ────────────────────────────────────────────────────────────

// GetFlowConfig fetches a flow by code with its parsed node list.
func (e *ApprovalEngine) GetFlowConfig(ctx context.Context, flowCode string) (*repository.ApprovalFlow, error) {
	return e.flows.GetByCode(ctx, flowCode)
}

// GetInstance returns an instance together with its audit trail.
func (e *ApprovalEngine) GetInstance(ctx context.Context, id string) (*repository.ApprovalInstance, []*repository.ApprovalRecord, error) {
	inst, err := e.instances.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	records, err := e.records.ListByInstanceID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return inst, records, nil
}

// ListPendingForUser returns the pending instances the user may act on,
// evaluated fresh on every call — the correct approver changes whenever an
// approval action fires, so this is never cached.
func (e *ApprovalEngine) ListPendingForUser(ctx context.Context, userID string) ([]*repository.ApprovalInstance, error) {
	user, err := e.identity.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending, err := e.instances.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	// Instances predating node snapshots fall back to the live flow config,
	// tolerating the code-casing drift in legacy data.
	nodesByFlow := map[string][]approval.Node{}
	for _, inst := range pending {
		if len(inst.FlowNodes) > 0 {
			continue
		}
		if _, ok := nodesByFlow[inst.FlowCode]; ok {
			continue
		}
		flow, err := e.flows.GetByCode(ctx, inst.FlowCode)
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeNotFound {
				nodesByFlow[inst.FlowCode] = nil
				continue
			}
			return nil, err
		}
		nodesByFlow[inst.FlowCode] = flow.Nodes
	}

	visible := make([]*repository.ApprovalInstance, 0, len(pending))
	for _, inst := range pending {
		nodes := inst.FlowNodes
		if len(nodes) == 0 {
			nodes = approval.NodesForFlow(nodesByFlow, inst.FlowCode)
		}
		if approval.CanView(inst.Status, inst.CurrentStep, nodes, *user) {
			visible = append(visible, inst)
		}
	}
	return visible, nil
}

// ── Flow administration ───────────────────────────────────────────────────────

// CreateFlow validates and stores a new flow configuration.
func (e *ApprovalEngine) CreateFlow(ctx context.Context, flow *repository.ApprovalFlow) error {
	if err := normalizeFlowNodes(flow); err != nil {
		return err
	}
	return e.flows.Create(ctx, flow)
}

// UpdateFlow replaces a flow configuration. In-flight instances are
// unaffected; they resolve steps against their submission-time snapshot.
func (e *ApprovalEngine) UpdateFlow(ctx context.Context, flow *repository.ApprovalFlow) error {
	if err := normalizeFlowNodes(flow); err != nil {
		return err
	}
	return e.flows.Update(ctx, flow)
}

// ListFlows returns flow configurations, optionally filtered by business
// type and active state.
func (e *ApprovalEngine) ListFlows(ctx context.Context, businessType string, activeOnly bool) ([]*repository.ApprovalFlow, error) {
	return e.flows.List(ctx, businessType, activeOnly)
}

// normalizeFlowNodes round-trips the node list through the parser so step
// numbers are normalized and contiguity is enforced before storage.
func normalizeFlowNodes(flow *repository.ApprovalFlow) error {
	raw, err := approval.MarshalNodes(flow.Nodes)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal flow nodes")
	}
	nodes, err := approval.ParseNodes(raw)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return apperrors.InvalidInput("nodes", "a flow needs at least one node")
	}
	flow.Nodes = nodes
	return nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// resolveNodes prefers the instance's snapshot, falling back to the live
// flow for instances created before snapshots existed.
func (e *ApprovalEngine) resolveNodes(ctx context.Context, inst *repository.ApprovalInstance) ([]approval.Node, error) {
	if len(inst.FlowNodes) > 0 {
		return inst.FlowNodes, nil
	}
	flow, err := e.flows.GetByCode(ctx, inst.FlowCode)
	if err != nil {
		return nil, err
	}
	return flow.Nodes, nil
}

// assertCanAct enforces that the actor matches the current node's target.
// Who may act on a step is decided here, not left to callers.
func (e *ApprovalEngine) assertCanAct(ctx context.Context, node approval.Node, approverID string) error {
	user, err := e.identity.GetUser(ctx, approverID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return apperrors.New(apperrors.CodeInvalidInput, "approver is not a known user")
		}
		return err
	}
	if !approval.HasNodePermission(node, *user) {
		return apperrors.New(apperrors.CodeInvalidInput,
			"approver does not match the current approval step's target")
	}
	return nil
}

// notify publishes an event when a notifier is configured. Failures are the
// notifier's problem; publishing never affects the approval outcome.
func (e *ApprovalEngine) notify(ctx context.Context, eventType string, inst *repository.ApprovalInstance, actorID string, payload map[string]any) {
	if e.notifier == nil {
		return
	}
	e.notifier.PublishApprovalEvent(ctx, eventType, inst.BizType, inst.BizID, actorID, payload)
}
