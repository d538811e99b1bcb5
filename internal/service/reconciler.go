package service

import (
	"context"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
	"github.com/limspace/be-lims-approvals/internal/logger"
)

// Reconciler repairs the accepted inconsistency between instance creation
// and the caller's document-status update: a pending instance whose
// document is missing, or still sitting in draft, is an orphan from a
// partial failure and gets deleted. Run from the fixapprovals CLI, never
// automatically.
type Reconciler struct {
	instances InstanceStore
	documents DocumentStore
	log       *logger.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(instances InstanceStore, documents DocumentStore, log *logger.Logger) *Reconciler {
	return &Reconciler{instances: instances, documents: documents, log: log}
}

// Run scans all pending instances and deletes the orphans. Returns the
// number of instances removed.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	pending, err := r.instances.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	r.log.Info().Int("pending", len(pending)).Msg("Checking approval data consistency")

	fixed := 0
	for _, inst := range pending {
		status, err := r.documents.Status(ctx, inst.BizType, inst.BizID)
		switch {
		case err != nil && apperrors.CodeOf(err) == apperrors.CodeNotFound:
			r.log.Warn().
				Str("instance_id", inst.ID).
				Str("biz_type", inst.BizType).
				Str("biz_id", inst.BizID).
				Msg("Document missing; deleting orphan instance")
		case err != nil:
			return fixed, err
		case status == "draft":
			r.log.Warn().
				Str("instance_id", inst.ID).
				Str("biz_type", inst.BizType).
				Str("biz_id", inst.BizID).
				Msg("Document still in draft but approval pending; deleting orphan instance")
		default:
			continue
		}

		if err := r.instances.Delete(ctx, inst.ID); err != nil {
			return fixed, err
		}
		fixed++
	}

	r.log.Info().Int("fixed", fixed).Msg("Approval reconciliation complete")
	return fixed, nil
}
