/*
handlers.go - HTTP API handlers for the visit lifecycle engine

PURPOSE:
  Exposes the visit lifecycle and reconciliation engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Visits:
    POST   /api/visits/{visitId}/draft    Create or update a draft
    POST   /api/visits/{visitId}/submit   Submit a draft
    POST   /api/visits/{visitId}/signoff  Sign off a submitted visit
    GET    /api/visits/{visitId}          Get visit details

  Summary:
    GET    /api/summary/{month}           Monthly reconciliation summary
    GET    /api/summary/{month}/export    Summary as an XLSX download

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Visits: Lifecycle service (eligibility, transitions, persistence)
  - Summary: Reconciliation builder (concurrent scans, aggregation)
  - Logger: Structured logging

REQUEST FLOW:
  1. Parse HTTP request
  2. Call domain logic
  3. Map domain errors to HTTP status
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Visit or member not found
  - 409: Eligibility or lifecycle rule denied the action
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication. The social worker email in the request
  body identifies the caller; an auth layer in front of this service
  is expected to verify it.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jcbloome/calaim-visit-engine/member"
	"github.com/jcbloome/calaim-visit-engine/reconcile"
	"github.com/jcbloome/calaim-visit-engine/report"
	"github.com/jcbloome/calaim-visit-engine/visit"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Visits  *visit.Service
	Summary *reconcile.Builder
	Logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(visits *visit.Service, summary *reconcile.Builder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Visits: visits, Summary: summary, Logger: logger}
}

// =============================================================================
// VISIT HANDLERS
// =============================================================================

// SaveDraft creates or updates a draft visit.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	visitID := chi.URLParam(r, "visitId")

	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Visits.CreateOrUpdateDraft(r.Context(), visit.DraftInput{
		VisitID:           visitID,
		SocialWorkerEmail: req.SocialWorkerEmail,
		SocialWorkerName:  req.SocialWorkerName,
		MemberID:          req.MemberID,
		ClaimDay:          req.ClaimDay,
		Flagged:           req.Flagged,
		TotalScore:        req.TotalScore,
		Extra:             req.Extra,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to save draft", err)
		return
	}

	writeJSON(w, http.StatusOK, toVisitDTO(rec))
}

// SubmitVisit moves a draft to submitted.
func (h *Handler) SubmitVisit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Visits.Submit, "Failed to submit visit")
}

// SignOffVisit moves a submitted visit to signed off.
func (h *Handler) SignOffVisit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Visits.SignOff, "Failed to sign off visit")
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, visitID, workerEmail string) (*visit.Record, error), failMsg string) {
	visitID := chi.URLParam(r, "visitId")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := fn(r.Context(), visitID, req.SocialWorkerEmail)
	if err != nil {
		h.writeDomainError(w, failMsg, err)
		return
	}

	writeJSON(w, http.StatusOK, toVisitDTO(rec))
}

// GetVisit returns a single visit.
func (h *Handler) GetVisit(w http.ResponseWriter, r *http.Request) {
	visitID := chi.URLParam(r, "visitId")

	rec, err := h.Visits.Get(r.Context(), visitID)
	if err != nil {
		h.writeDomainError(w, "Failed to get visit", err)
		return
	}

	writeJSON(w, http.StatusOK, toVisitDTO(rec))
}

// =============================================================================
// SUMMARY HANDLERS
// =============================================================================

// GetSummary runs a reconciliation for the requested month.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")

	sum, err := h.Summary.BuildSummary(r.Context(), month)
	if err != nil {
		h.writeDomainError(w, "Failed to build summary", err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}

// ExportSummary runs a reconciliation and streams it as an XLSX workbook.
func (h *Handler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	month := chi.URLParam(r, "month")

	sum, err := h.Summary.BuildSummary(r.Context(), month)
	if err != nil {
		h.writeDomainError(w, "Failed to build summary", err)
		return
	}

	wb, err := report.BuildWorkbook(sum)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build workbook", err)
		return
	}
	defer wb.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="visit-summary-`+month+`.xlsx"`)
	if err := wb.Write(w); err != nil {
		// Headers are already sent; nothing left to do but log.
		h.Logger.Warn("xlsx write aborted", zap.String("month", month), zap.Error(err))
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorDTO{Error: message}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case visit.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case visit.IsNotFound(err) || errors.Is(err, member.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case visit.IsPrecondition(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Logger.Error("request failed", zap.String("message", message), zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
