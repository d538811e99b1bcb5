package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
	"github.com/limspace/be-lims-approvals/internal/approval"
	"github.com/limspace/be-lims-approvals/internal/logger"
	"github.com/limspace/be-lims-approvals/internal/repository"
	"github.com/limspace/be-lims-approvals/internal/service"
)

// HTTPHandler exposes the approval engine over HTTP. It owns the step the
// engine deliberately does not: syncing the outcome onto the business
// document after an engine call succeeds.
type HTTPHandler struct {
	engine    *service.ApprovalEngine
	documents service.DocumentStore
	validate  *validator.Validate
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(engine *service.ApprovalEngine, documents service.DocumentStore, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		engine:    engine,
		documents: documents,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log,
	}
}

// Register mounts all routes on the given router.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/approvals", func(r chi.Router) {
			r.Post("/submit", h.SubmitApproval)
			r.Get("/pending", h.ListPendingApprovals)
			r.Get("/{id}", h.GetApproval)
			r.Post("/{id}/approve", h.ApproveInstance)
			r.Post("/{id}/cancel", h.CancelInstance)
		})
		r.Route("/flows", func(r chi.Router) {
			r.Get("/", h.ListFlows)
			r.Post("/", h.CreateFlow)
			r.Get("/{code}", h.GetFlow)
			r.Put("/{code}", h.UpdateFlow)
		})
	})
}

// ── Request / response shapes ─────────────────────────────────────────────────

// SubmitApprovalRequest starts an approval run for a document.
type SubmitApprovalRequest struct {
	BizType       string `json:"bizType" validate:"required,oneof=quotation contract client report"`
	BizID         string `json:"bizId" validate:"required"`
	FlowCode      string `json:"flowCode" validate:"required"`
	SubmitterID   string `json:"submitterId" validate:"required"`
	SubmitterName string `json:"submitterName" validate:"required"`
}

// ApproveRequest carries one approve/reject action.
type ApproveRequest struct {
	Action       string  `json:"action" validate:"required,oneof=approve reject"`
	ApproverID   string  `json:"approverId" validate:"required"`
	ApproverName string  `json:"approverName" validate:"required"`
	Comment      *string `json:"comment"`
}

// CancelRequest withdraws a pending approval.
type CancelRequest struct {
	OperatorID string `json:"operatorId" validate:"required"`
}

// FlowRequest creates or updates a flow configuration.
type FlowRequest struct {
	Code         string          `json:"code" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	BusinessType string          `json:"businessType" validate:"required"`
	Description  *string         `json:"description"`
	Nodes        []approval.Node `json:"nodes" validate:"required,min=1"`
	IsActive     bool            `json:"isActive"`
}

type instanceResponse struct {
	ID                  string     `json:"id"`
	BizType             string     `json:"bizType"`
	BizID               string     `json:"bizId"`
	FlowCode            string     `json:"flowCode"`
	CurrentStep         int        `json:"currentStep"`
	Status              string     `json:"status"`
	SubmitterID         string     `json:"submitterId"`
	SubmitterName       string     `json:"submitterName"`
	SubmittedAt         time.Time  `json:"submittedAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	CurrentApproverName string     `json:"currentApproverName,omitempty"`
}

type recordResponse struct {
	Step         int       `json:"step"`
	Action       string    `json:"action"`
	ApproverID   string    `json:"approverId"`
	ApproverName string    `json:"approverName"`
	Comment      *string   `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type flowResponse struct {
	Code         string              `json:"code"`
	Name         string              `json:"name"`
	BusinessType string              `json:"businessType"`
	Description  *string             `json:"description,omitempty"`
	IsActive     bool                `json:"isActive"`
	Nodes        []approval.NodeView `json:"nodes"`
}

func instanceView(inst *repository.ApprovalInstance) instanceResponse {
	resp := instanceResponse{
		ID:            inst.ID,
		BizType:       inst.BizType,
		BizID:         inst.BizID,
		FlowCode:      inst.FlowCode,
		CurrentStep:   inst.CurrentStep,
		Status:        inst.Status.String(),
		SubmitterID:   inst.SubmitterID,
		SubmitterName: inst.SubmitterName,
		SubmittedAt:   inst.SubmittedAt,
		CompletedAt:   inst.CompletedAt,
	}
	if inst.Status == approval.StatusPending {
		if node, ok := approval.NodeAt(inst.FlowNodes, inst.CurrentStep); ok {
			resp.CurrentApproverName = approval.ExtractApproverName(node)
		}
	}
	return resp
}

func flowView(flow *repository.ApprovalFlow) flowResponse {
	return flowResponse{
		Code:         flow.Code,
		Name:         flow.Name,
		BusinessType: flow.BusinessType,
		Description:  flow.Description,
		IsActive:     flow.IsActive,
		Nodes:        approval.FormatNodes(flow.Nodes),
	}
}

// ── Approval endpoints ────────────────────────────────────────────────────────

// SubmitApproval starts an approval run and flips the document into its
// pending state. The document update is deliberately outside the engine's
// transaction; failures are logged and repaired by the reconciler.
func (h *HTTPHandler) SubmitApproval(w http.ResponseWriter, r *http.Request) {
	var req SubmitApprovalRequest
	if !h.decode(w, r, &req) {
		return
	}

	inst, err := h.engine.Submit(r.Context(), service.SubmitParams{
		BizType:       req.BizType,
		BizID:         req.BizID,
		FlowCode:      req.FlowCode,
		SubmitterID:   req.SubmitterID,
		SubmitterName: req.SubmitterName,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.syncDocument(r, inst.BizType, inst.BizID, approval.StatusPending, 1, &inst.ID)

	h.writeJSON(w, http.StatusCreated, instanceView(inst))
}

// ApproveInstance records an approve or reject action.
func (h *HTTPHandler) ApproveInstance(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.Approve(r.Context(), service.ApproveParams{
		InstanceID:   chi.URLParam(r, "id"),
		Action:       approval.Action(req.Action),
		ApproverID:   req.ApproverID,
		ApproverName: req.ApproverName,
		Comment:      req.Comment,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.syncDocument(r, res.BizType, res.BizID, res.Status, res.Step, nil)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      res.Status.String(),
		"currentStep": res.Step,
		"complete":    res.Complete,
	})
}

// CancelInstance withdraws a pending approval.
func (h *HTTPHandler) CancelInstance(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}

	inst, err := h.engine.Cancel(r.Context(), service.CancelParams{
		InstanceID: chi.URLParam(r, "id"),
		OperatorID: req.OperatorID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.syncDocument(r, inst.BizType, inst.BizID, approval.StatusCancelled, inst.CurrentStep, nil)

	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(approval.StatusCancelled)})
}

// GetApproval returns an instance with its audit trail.
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	inst, records, err := h.engine.GetInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	recordViews := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		recordViews = append(recordViews, recordResponse{
			Step:         rec.Step,
			Action:       rec.Action.String(),
			ApproverID:   rec.ApproverID,
			ApproverName: rec.ApproverName,
			Comment:      rec.Comment,
			CreatedAt:    rec.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"instance": instanceView(inst),
		"records":  recordViews,
		"nodes":    approval.FormatNodes(inst.FlowNodes),
	})
}

// ListPendingApprovals returns the pending instances visible to the
// requesting user, as resolved by the identity headers set upstream.
func (h *HTTPHandler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, apperrors.InvalidInput("X-User-ID", "header is required"))
		return
	}

	instances, err := h.engine.ListPendingForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	views := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		views = append(views, instanceView(inst))
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"approvals": views,
		"total":     len(views),
	})
}

// ── Flow administration endpoints ─────────────────────────────────────────────

// ListFlows returns flow configurations, optionally filtered.
func (h *HTTPHandler) ListFlows(w http.ResponseWriter, r *http.Request) {
	businessType := r.URL.Query().Get("businessType")
	activeOnly := r.URL.Query().Get("active") == "true"

	flows, err := h.engine.ListFlows(r.Context(), businessType, activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}

	views := make([]flowResponse, 0, len(flows))
	for _, flow := range flows {
		views = append(views, flowView(flow))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"flows": views})
}

// GetFlow returns one flow with display-formatted nodes.
func (h *HTTPHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.engine.GetFlowConfig(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, flowView(flow))
}

// CreateFlow creates a flow configuration.
func (h *HTTPHandler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var req FlowRequest
	if !h.decode(w, r, &req) {
		return
	}

	flow := &repository.ApprovalFlow{
		Code:         req.Code,
		Name:         req.Name,
		BusinessType: req.BusinessType,
		Description:  req.Description,
		Nodes:        req.Nodes,
		IsActive:     req.IsActive,
	}
	if err := h.engine.CreateFlow(r.Context(), flow); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, flowView(flow))
}

// UpdateFlow replaces a flow configuration. In-flight instances keep their
// submission-time node snapshot and are unaffected.
func (h *HTTPHandler) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	var req FlowRequest
	if !h.decode(w, r, &req) {
		return
	}

	flow := &repository.ApprovalFlow{
		Code:         chi.URLParam(r, "code"),
		Name:         req.Name,
		BusinessType: req.BusinessType,
		Description:  req.Description,
		Nodes:        req.Nodes,
		IsActive:     req.IsActive,
	}
	if err := h.engine.UpdateFlow(r.Context(), flow); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, flowView(flow))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// syncDocument mirrors an approval outcome onto the owning document.
// A failure here is the known two-phase gap: it is logged and left for the
// reconciler rather than rolling back the approval state.
func (h *HTTPHandler) syncDocument(r *http.Request, bizType, bizID string, status approval.Status, step int, instanceID *string) {
	if err := h.documents.SyncApprovalStatus(r.Context(), bizType, bizID, status, step, instanceID); err != nil {
		h.log.Warn().Err(err).
			Str("biz_type", bizType).
			Str("biz_id", bizID).
			Str("status", status.String()).
			Msg("Failed to sync document approval status")
	}
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, apperrors.New(apperrors.CodeInvalidInput, "invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			h.writeError(w, apperrors.InvalidInput(verrs[0].Field(), "failed validation on '"+verrs[0].Tag()+"'"))
		} else {
			h.writeError(w, apperrors.New(apperrors.CodeInvalidInput, "invalid request"))
		}
		return false
	}
	return true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := err.Error()
	if code == apperrors.CodeInternal {
		h.log.Error().Err(err).Msg("Internal error")
		message = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    string(code),
			"message": message,
		},
	})
}
