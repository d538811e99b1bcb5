package repository

import (
	"context"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
	"github.com/limspace/be-lims-approvals/internal/database"
)

// RecordRepository reads the immutable audit trail. Writes happen only
// inside InstanceRepository.Transition so a record can never exist without
// its state transition.
type RecordRepository struct {
	db *database.DB
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *database.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// ListByInstanceID returns the full audit trail for an instance,
// oldest action first.
func (r *RecordRepository) ListByInstanceID(ctx context.Context, instanceID string) ([]*ApprovalRecord, error) {
	query := `
		SELECT id, instance_id, step, node_type, target_id, target_name,
		       action, approver_id, approver_name, comment, created_at
		FROM approval_records
		WHERE instance_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, instanceID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get approval records")
	}
	defer rows.Close()

	var records []*ApprovalRecord
	for rows.Next() {
		rec := &ApprovalRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.InstanceID,
			&rec.Step,
			&rec.NodeType,
			&rec.TargetID,
			&rec.TargetName,
			&rec.Action,
			&rec.ApproverID,
			&rec.ApproverName,
			&rec.Comment,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan approval record")
		}
		records = append(records, rec)
	}
	return records, nil
}
