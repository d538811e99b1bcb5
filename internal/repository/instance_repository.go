package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
	"github.com/limspace/be-lims-approvals/internal/approval"
	"github.com/limspace/be-lims-approvals/internal/database"
)

// InstanceRepository manages approval instances. State transitions run
// through Transition, which commits the audit record and the instance
// update as one transaction guarded by a compare-and-swap.
type InstanceRepository struct {
	db *database.DB
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(db *database.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

const instanceColumns = `
	id, biz_type, biz_id, flow_code, flow_nodes,
	current_step, status, submitter_id, submitter_name,
	submitted_at, completed_at, created_at, updated_at
`

// Create inserts a new pending instance. The partial unique index on
// (biz_type, biz_id) WHERE status='pending' backstops the application-level
// duplicate check; a violation surfaces as a conflict.
func (r *InstanceRepository) Create(ctx context.Context, inst *ApprovalInstance) error {
	nodesJSON, err := approval.MarshalNodes(inst.FlowNodes)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal node snapshot")
	}

	inst.ID = uuid.NewString()

	query := `
		INSERT INTO approval_instances
		    (id, biz_type, biz_id, flow_code, flow_nodes,
		     current_step, status, submitter_id, submitter_name, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		inst.ID,
		inst.BizType,
		inst.BizID,
		inst.FlowCode,
		nodesJSON,
		inst.CurrentStep,
		inst.Status,
		inst.SubmitterID,
		inst.SubmitterName,
		inst.SubmittedAt,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("a pending approval already exists for this document")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create approval instance")
	}
	return nil
}

// GetByID retrieves an instance by primary key.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*ApprovalInstance, error) {
	query := `SELECT` + instanceColumns + `FROM approval_instances WHERE id = $1`

	inst, err := r.scanInstance(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("approval_instance", id)
	}
	return inst, err
}

// GetPendingByBiz returns the pending instance for a document, or nil when
// none exists.
func (r *InstanceRepository) GetPendingByBiz(ctx context.Context, bizType, bizID string) (*ApprovalInstance, error) {
	query := `
		SELECT` + instanceColumns + `
		FROM approval_instances
		WHERE biz_type = $1 AND biz_id = $2 AND status = 'pending'
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	inst, err := r.scanInstance(r.db.QueryRow(ctx, query, bizType, bizID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

// ListPending returns all pending instances, oldest submission first.
// The visibility filter runs over this set fresh on every query; the correct
// approver changes each time an approval action fires, so nothing is cached.
func (r *InstanceRepository) ListPending(ctx context.Context) ([]*ApprovalInstance, error) {
	query := `
		SELECT` + instanceColumns + `
		FROM approval_instances
		WHERE status = 'pending'
		ORDER BY submitted_at ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list pending instances")
	}
	defer rows.Close()

	var instances []*ApprovalInstance
	for rows.Next() {
		inst, err := r.scanInstance(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan approval instance")
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Transition applies one state transition atomically: it appends the audit
// record and updates the instance in a single transaction. The update is a
// compare-and-swap on (status='pending', current_step=ExpectedStep); zero
// rows affected means another actor already advanced the instance, surfaced
// as a conflict rather than silently retried.
func (r *InstanceRepository) Transition(ctx context.Context, p TransitionParams) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if p.Record != nil {
			p.Record.ID = uuid.NewString()
			p.Record.InstanceID = p.InstanceID

			recordQuery := `
				INSERT INTO approval_records
				    (id, instance_id, step, node_type, target_id, target_name,
				     action, approver_id, approver_name, comment)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING created_at
			`

			err := tx.QueryRow(ctx, recordQuery,
				p.Record.ID,
				p.Record.InstanceID,
				p.Record.Step,
				p.Record.NodeType,
				p.Record.TargetID,
				p.Record.TargetName,
				p.Record.Action,
				p.Record.ApproverID,
				p.Record.ApproverName,
				p.Record.Comment,
			).Scan(&p.Record.CreatedAt)
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeInternal, "failed to append approval record")
			}
		}

		updateQuery := `
			UPDATE approval_instances
			SET current_step = $3,
			    status       = $4,
			    completed_at = $5,
			    updated_at   = NOW()
			WHERE id = $1
			  AND status = 'pending'
			  AND current_step = $2
		`

		tag, err := tx.Exec(ctx, updateQuery,
			p.InstanceID,
			p.ExpectedStep,
			p.NewStep,
			p.NewStatus,
			p.CompletedAt,
		)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to update approval instance")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.Conflict("approval instance was advanced by another actor")
		}
		return nil
	})
}

// Delete removes an instance and, by cascade, its records. Used only by
// reconciliation tooling, never by normal flow.
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM approval_instances WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to delete approval instance")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("approval_instance", id)
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type instanceScanner interface {
	Scan(dest ...any) error
}

func (r *InstanceRepository) scanInstance(row instanceScanner) (*ApprovalInstance, error) {
	inst := &ApprovalInstance{}
	var nodesJSON []byte

	err := row.Scan(
		&inst.ID,
		&inst.BizType,
		&inst.BizID,
		&inst.FlowCode,
		&nodesJSON,
		&inst.CurrentStep,
		&inst.Status,
		&inst.SubmitterID,
		&inst.SubmitterName,
		&inst.SubmittedAt,
		&inst.CompletedAt,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.FlowNodes, err = approval.ParseNodes(nodesJSON)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "stored node snapshot is invalid: "+inst.ID)
	}
	return inst, nil
}
