package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/flashcards-ai-queue/internal/api/shared"
	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
	"github.com/phrazzld/flashcards-ai-queue/internal/platform/logger"
	"github.com/phrazzld/flashcards-ai-queue/internal/service"
)

// requestIDParam is the chi URL parameter naming a request id.
const requestIDParam = "request_id"

// Gateway is the part of service.RequestGateway the handlers use.
type Gateway interface {
	Submit(ctx context.Context, appCode, requestType, payload string) (uuid.UUID, error)
	Poll(ctx context.Context, id uuid.UUID) (service.Snapshot, error)
	Stats() service.Stats
	Apps() []domain.AppProfile
}

// RequestHandler handles submission and polling of AI requests.
type RequestHandler struct {
	gateway Gateway
}

// NewRequestHandler creates a new RequestHandler
func NewRequestHandler(gateway Gateway) *RequestHandler {
	return &RequestHandler{gateway: gateway}
}

// SubmitRequest handles POST /ai_request requests
func (h *RequestHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req AIRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
			CodeInvalidRequest, "Request body must be valid JSON", err)
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
			CodeInvalidRequest, "Missing required fields: app_code, request_type, request", err)
		return
	}

	id, err := h.gateway.Submit(r.Context(), req.AppCode, req.RequestType, req.Request)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, SubmitResponse{
		Status:    statusSuccess,
		RequestID: id.String(),
		Message:   "Request queued successfully",
	})
}

// GetRequest handles GET /get_request/{request_id} requests
func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRequestID(w, r)
	if !ok {
		return
	}

	snap, err := h.gateway.Poll(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, snapshotToResponse(snap))
}

// parseRequestID reads the request id path parameter. Malformed ids are
// reported as not found, since no request could have that id.
func parseRequestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, requestIDParam)
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.FromContext(r.Context()).Debug("malformed request id", "value", raw)
		HandleAPIError(w, r, domain.ErrJobNotFound)
		return uuid.Nil, false
	}
	return id, true
}
