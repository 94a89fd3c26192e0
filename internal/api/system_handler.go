package api

import (
	"net/http"
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/api/shared"
)

// Provider status values reported by /health.
const (
	providerConnected    = "connected"
	providerDisconnected = "disconnected"
)

// SystemHandler serves the service banner, health and app listing.
type SystemHandler struct {
	gateway Gateway
	version string
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(gateway Gateway, version string) *SystemHandler {
	return &SystemHandler{gateway: gateway, version: version}
}

// Health handles GET /health requests
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.gateway.Stats()

	providerStatus := providerDisconnected
	if stats.ProviderReady {
		providerStatus = providerConnected
	}

	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:           statusHealthy,
		QueueSize:        stats.QueueSize,
		ActiveWorkers:    stats.ActiveWorkers,
		Uptime:           stats.Uptime.Round(time.Second).String(),
		Provider:         stats.Provider,
		TogetherAIStatus: providerStatus,
		Stats:            statsToResponse(stats),
	})
}

// Index handles GET / requests
func (h *SystemHandler) Index(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, IndexResponse{
		Message: "AI request queue is running",
		Status:  statusHealthy,
		Version: h.version,
		Endpoints: []string{
			"/health",
			"/apps",
			"/ai_request",
			"/get_request/{request_id}",
			"/ws/requests/{request_id}",
			"/metrics",
		},
		Stats: statsToResponse(h.gateway.Stats()),
	})
}

// Apps handles GET /apps requests
func (h *SystemHandler) Apps(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, appsToResponse(h.gateway.Apps()))
}

// NotFound answers requests for unknown endpoints.
func NotFound(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithError(w, r, http.StatusNotFound, CodeEndpointNotFound, "Endpoint not found")
}

// MethodNotAllowed answers requests with an unsupported method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithError(w, r, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}
