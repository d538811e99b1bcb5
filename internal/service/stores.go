package service

import (
	"context"

	"github.com/limspace/be-lims-approvals/internal/approval"
	"github.com/limspace/be-lims-approvals/internal/repository"
)

// Store interfaces decouple the engine from pgx so tests can run it over
// in-memory fakes. The repository package provides the real implementations.

// FlowStore reads and writes approval flow configuration.
type FlowStore interface {
	Create(ctx context.Context, flow *repository.ApprovalFlow) error
	GetByCode(ctx context.Context, code string) (*repository.ApprovalFlow, error)
	List(ctx context.Context, businessType string, activeOnly bool) ([]*repository.ApprovalFlow, error)
	Update(ctx context.Context, flow *repository.ApprovalFlow) error
}

// InstanceStore persists approval instances and their atomic transitions.
type InstanceStore interface {
	Create(ctx context.Context, inst *repository.ApprovalInstance) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalInstance, error)
	GetPendingByBiz(ctx context.Context, bizType, bizID string) (*repository.ApprovalInstance, error)
	ListPending(ctx context.Context) ([]*repository.ApprovalInstance, error)
	Transition(ctx context.Context, p repository.TransitionParams) error
	Delete(ctx context.Context, id string) error
}

// RecordStore reads the immutable audit trail.
type RecordStore interface {
	ListByInstanceID(ctx context.Context, instanceID string) ([]*repository.ApprovalRecord, error)
}

// IdentityStore resolves actors to their roles and department.
type IdentityStore interface {
	GetUser(ctx context.Context, userID string) (*approval.User, error)
}

// DocumentStore mirrors approval outcomes onto business documents. Consumed
// by the HTTP layer and the reconciler, never by the engine itself.
type DocumentStore interface {
	SyncApprovalStatus(ctx context.Context, bizType, bizID string, status approval.Status, step int, instanceID *string) error
	Status(ctx context.Context, bizType, bizID string) (string, error)
}

// Notifier publishes approval events. Implementations must be non-fatal:
// a failed publish never interrupts an approval operation.
type Notifier interface {
	PublishApprovalEvent(ctx context.Context, eventType, bizType, bizID, actorID string, payload map[string]any)
}
