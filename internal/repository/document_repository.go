package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
	"github.com/limspace/be-lims-approvals/internal/approval"
	"github.com/limspace/be-lims-approvals/internal/database"
)

// Business document kinds an approval instance may point at.
const (
	BizTypeQuotation = "quotation"
	BizTypeContract  = "contract"
	BizTypeClient    = "client"
	BizTypeReport    = "report"
)

// documentTables maps a biz type to the table carrying its approval columns.
var documentTables = map[string]string{
	BizTypeQuotation: "quotations",
	BizTypeContract:  "contracts",
	BizTypeClient:    "clients",
	BizTypeReport:    "test_reports",
}

// DocumentRepository maintains the redundant approval-status columns on the
// business document tables. The engine never touches these tables; the HTTP
// layer calls in here after an engine operation succeeds, and the
// reconciler reads document status to detect orphaned instances.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// SyncApprovalStatus mirrors an approval outcome onto the document row.
// Quotations additionally get their legacy status field moved through the
// per-step ladder the frontend still renders from.
func (r *DocumentRepository) SyncApprovalStatus(
	ctx context.Context,
	bizType, bizID string,
	status approval.Status,
	step int,
	instanceID *string,
) error {
	table, ok := documentTables[bizType]
	if !ok {
		return apperrors.InvalidInput("bizType", "unsupported business type: "+bizType)
	}

	legacy := ""
	if bizType == BizTypeQuotation {
		legacy = quotationLegacyStatus(status, step)
	}

	var query string
	args := []any{bizID, string(status), step, instanceID}
	if legacy != "" {
		query = fmt.Sprintf(`
			UPDATE %s
			SET status               = $5,
			    approval_status      = $2,
			    approval_step        = $3,
			    approval_instance_id = COALESCE($4, approval_instance_id)
			WHERE id = $1
			RETURNING id
		`, table)
		args = append(args, legacy)
	} else {
		query = fmt.Sprintf(`
			UPDATE %s
			SET approval_status      = $2,
			    approval_step        = $3,
			    approval_instance_id = COALESCE($4, approval_instance_id)
			WHERE id = $1
			RETURNING id
		`, table)
	}

	var returnedID string
	err := r.db.QueryRow(ctx, query, args...).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound(bizType, bizID)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to sync document approval status")
	}
	return nil
}

// Status returns the document's own status field.
func (r *DocumentRepository) Status(ctx context.Context, bizType, bizID string) (string, error) {
	table, ok := documentTables[bizType]
	if !ok {
		return "", apperrors.InvalidInput("bizType", "unsupported business type: "+bizType)
	}

	var status string
	query := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, table)
	err := r.db.QueryRow(ctx, query, bizID).Scan(&status)
	if err == pgx.ErrNoRows {
		return "", apperrors.NotFound(bizType, bizID)
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "failed to get document status")
	}
	return status, nil
}

// quotationLegacyStatus maps an approval state onto the quotation status
// ladder. Unknown pending steps leave the legacy field untouched.
func quotationLegacyStatus(status approval.Status, step int) string {
	switch status {
	case approval.StatusPending:
		switch step {
		case 1:
			return "pending_sales"
		case 2:
			return "pending_finance"
		case 3:
			return "pending_lab"
		}
		return ""
	case approval.StatusApproved:
		return "approved"
	case approval.StatusRejected:
		return "rejected"
	case approval.StatusCancelled:
		return "draft"
	}
	return ""
}
