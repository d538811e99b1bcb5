package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
	"github.com/limspace/be-lims-approvals/internal/approval"
	"github.com/limspace/be-lims-approvals/internal/logger"
	"github.com/limspace/be-lims-approvals/internal/repository"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zerolog.Nop()}
}

// ── fakeFlowStore ─────────────────────────────────────────────────────────────

type fakeFlowStore struct {
	flows map[string]*repository.ApprovalFlow
}

func newFakeFlowStore(flows ...*repository.ApprovalFlow) *fakeFlowStore {
	s := &fakeFlowStore{flows: map[string]*repository.ApprovalFlow{}}
	for _, f := range flows {
		s.flows[f.Code] = f
	}
	return s
}

func (s *fakeFlowStore) Create(_ context.Context, flow *repository.ApprovalFlow) error {
	if _, ok := s.flows[flow.Code]; ok {
		return apperrors.Conflict("approval flow code already exists: " + flow.Code)
	}
	flow.ID = uuid.NewString()
	s.flows[flow.Code] = flow
	return nil
}

func (s *fakeFlowStore) GetByCode(_ context.Context, code string) (*repository.ApprovalFlow, error) {
	flow, ok := s.flows[code]
	if !ok {
		return nil, apperrors.NotFound("approval_flow", code)
	}
	return flow, nil
}

func (s *fakeFlowStore) List(_ context.Context, businessType string, activeOnly bool) ([]*repository.ApprovalFlow, error) {
	var out []*repository.ApprovalFlow
	for _, f := range s.flows {
		if businessType != "" && f.BusinessType != businessType {
			continue
		}
		if activeOnly && !f.IsActive {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *fakeFlowStore) Update(_ context.Context, flow *repository.ApprovalFlow) error {
	existing, ok := s.flows[flow.Code]
	if !ok {
		return apperrors.NotFound("approval_flow", flow.Code)
	}
	flow.ID = existing.ID
	s.flows[flow.Code] = flow
	return nil
}

// ── fakeInstanceStore ─────────────────────────────────────────────────────────

// fakeInstanceStore mimics the CAS semantics of the real repository.
// beforeTransition, when set, runs between the engine's read and its
// Transition call, standing in for a concurrent actor.
type fakeInstanceStore struct {
	mu               sync.Mutex
	instances        []*repository.ApprovalInstance
	records          []*repository.ApprovalRecord
	beforeTransition func()
}

func (s *fakeInstanceStore) find(id string) *repository.ApprovalInstance {
	for _, inst := range s.instances {
		if inst.ID == id {
			return inst
		}
	}
	return nil
}

func (s *fakeInstanceStore) Create(_ context.Context, inst *repository.ApprovalInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.instances {
		if existing.BizType == inst.BizType && existing.BizID == inst.BizID &&
			existing.Status == approval.StatusPending {
			return apperrors.Conflict("a pending approval already exists for this document")
		}
	}
	inst.ID = uuid.NewString()
	s.instances = append(s.instances, inst)
	return nil
}

func (s *fakeInstanceStore) GetByID(_ context.Context, id string) (*repository.ApprovalInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.find(id)
	if inst == nil {
		return nil, apperrors.NotFound("approval_instance", id)
	}
	copied := *inst
	return &copied, nil
}

func (s *fakeInstanceStore) GetPendingByBiz(_ context.Context, bizType, bizID string) (*repository.ApprovalInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.BizType == bizType && inst.BizID == bizID && inst.Status == approval.StatusPending {
			copied := *inst
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeInstanceStore) ListPending(_ context.Context) ([]*repository.ApprovalInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.ApprovalInstance
	for _, inst := range s.instances {
		if inst.Status == approval.StatusPending {
			copied := *inst
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeInstanceStore) Transition(_ context.Context, p repository.TransitionParams) error {
	if s.beforeTransition != nil {
		hook := s.beforeTransition
		s.beforeTransition = nil
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inst := s.find(p.InstanceID)
	if inst == nil {
		return apperrors.NotFound("approval_instance", p.InstanceID)
	}
	if inst.Status != approval.StatusPending || inst.CurrentStep != p.ExpectedStep {
		return apperrors.Conflict("approval instance was advanced by another actor")
	}

	if p.Record != nil {
		p.Record.ID = uuid.NewString()
		p.Record.InstanceID = p.InstanceID
		s.records = append(s.records, p.Record)
	}
	inst.CurrentStep = p.NewStep
	inst.Status = p.NewStatus
	inst.CompletedAt = p.CompletedAt
	return nil
}

func (s *fakeInstanceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inst := range s.instances {
		if inst.ID == id {
			s.instances = append(s.instances[:i], s.instances[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("approval_instance", id)
}

func (s *fakeInstanceStore) recordsFor(instanceID string) []*repository.ApprovalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.ApprovalRecord
	for _, rec := range s.records {
		if rec.InstanceID == instanceID {
			out = append(out, rec)
		}
	}
	return out
}

// ── fakeRecordStore ───────────────────────────────────────────────────────────

type fakeRecordStore struct {
	instances *fakeInstanceStore
}

func (s *fakeRecordStore) ListByInstanceID(_ context.Context, instanceID string) ([]*repository.ApprovalRecord, error) {
	return s.instances.recordsFor(instanceID), nil
}

// ── fakeIdentityStore ─────────────────────────────────────────────────────────

type fakeIdentityStore struct {
	users map[string]*approval.User
}

func newFakeIdentityStore(users ...*approval.User) *fakeIdentityStore {
	s := &fakeIdentityStore{users: map[string]*approval.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeIdentityStore) GetUser(_ context.Context, userID string) (*approval.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, apperrors.NotFound("user", userID)
	}
	return user, nil
}

// ── fakeDocumentStore ─────────────────────────────────────────────────────────

type fakeDocumentStore struct {
	statuses map[string]string
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{statuses: map[string]string{}}
}

func docKey(bizType, bizID string) string {
	return fmt.Sprintf("%s/%s", bizType, bizID)
}

func (s *fakeDocumentStore) SyncApprovalStatus(_ context.Context, bizType, bizID string, status approval.Status, step int, _ *string) error {
	if _, ok := s.statuses[docKey(bizType, bizID)]; !ok {
		return apperrors.NotFound(bizType, bizID)
	}
	s.statuses[docKey(bizType, bizID)] = string(status)
	return nil
}

func (s *fakeDocumentStore) Status(_ context.Context, bizType, bizID string) (string, error) {
	status, ok := s.statuses[docKey(bizType, bizID)]
	if !ok {
		return "", apperrors.NotFound(bizType, bizID)
	}
	return status, nil
}

// ── fakeNotifier ──────────────────────────────────────────────────────────────

type fakeNotifier struct {
	events []string
}

func (n *fakeNotifier) PublishApprovalEvent(_ context.Context, eventType, _, _, _ string, _ map[string]any) {
	n.events = append(n.events, eventType)
}
