package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
	"github.com/limspace/be-lims-approvals/internal/approval"
	"github.com/limspace/be-lims-approvals/internal/database"
)

// FlowRepository handles CRUD for approval_flows.
type FlowRepository struct {
	db *database.DB
}

// NewFlowRepository creates a new FlowRepository.
func NewFlowRepository(db *database.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

// Create inserts a new flow. Nodes are validated before storage.
func (r *FlowRepository) Create(ctx context.Context, flow *ApprovalFlow) error {
	nodesJSON, err := approval.MarshalNodes(flow.Nodes)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal flow nodes")
	}

	flow.ID = uuid.NewString()

	query := `
		INSERT INTO approval_flows
		    (id, code, name, business_type, description, nodes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		flow.ID,
		flow.Code,
		flow.Name,
		flow.BusinessType,
		flow.Description,
		nodesJSON,
		flow.IsActive,
	).Scan(&flow.CreatedAt, &flow.UpdatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("approval flow code already exists: " + flow.Code)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create approval flow")
	}
	return nil
}

// GetByCode retrieves a flow by its unique code.
func (r *FlowRepository) GetByCode(ctx context.Context, code string) (*ApprovalFlow, error) {
	query := `
		SELECT id, code, name, business_type, description,
		       nodes, is_active, created_at, updated_at
		FROM approval_flows
		WHERE code = $1
	`

	flow, err := r.scanFlow(r.db.QueryRow(ctx, query, code))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("approval_flow", code)
	}
	return flow, err
}

// List returns flows, optionally filtered by business type and active state.
func (r *FlowRepository) List(ctx context.Context, businessType string, activeOnly bool) ([]*ApprovalFlow, error) {
	query := `
		SELECT id, code, name, business_type, description,
		       nodes, is_active, created_at, updated_at
		FROM approval_flows
		WHERE ($1 = '' OR business_type = $1)
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY business_type ASC, code ASC"

	rows, err := r.db.Query(ctx, query, businessType)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list approval flows")
	}
	defer rows.Close()

	var flows []*ApprovalFlow
	for rows.Next() {
		flow, err := r.scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

// Update persists changes to an existing flow, addressed by code. Editing a
// flow never touches in-flight instances; they carry their own snapshot.
func (r *FlowRepository) Update(ctx context.Context, flow *ApprovalFlow) error {
	nodesJSON, err := approval.MarshalNodes(flow.Nodes)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal flow nodes")
	}

	query := `
		UPDATE approval_flows
		SET name          = $2,
		    business_type = $3,
		    description   = $4,
		    nodes         = $5,
		    is_active     = $6,
		    updated_at    = NOW()
		WHERE code = $1
		RETURNING id, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		flow.Code,
		flow.Name,
		flow.BusinessType,
		flow.Description,
		nodesJSON,
		flow.IsActive,
	).Scan(&flow.ID, &flow.UpdatedAt)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("approval_flow", flow.Code)
	}
	return err
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type flowScanner interface {
	Scan(dest ...any) error
}

func (r *FlowRepository) scanFlow(row flowScanner) (*ApprovalFlow, error) {
	flow := &ApprovalFlow{}
	var nodesJSON []byte

	err := row.Scan(
		&flow.ID,
		&flow.Code,
		&flow.Name,
		&flow.BusinessType,
		&flow.Description,
		&nodesJSON,
		&flow.IsActive,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	flow.Nodes, err = approval.ParseNodes(nodesJSON)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "stored flow nodes are invalid: "+flow.Code)
	}
	return flow, nil
}
