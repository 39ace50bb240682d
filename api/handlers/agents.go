package handlers

import (
	"net/http"

	"github.com/convodesk/convodesk/agent"
	"go.uber.org/zap"
)

// AgentsHandler exposes the capability registry over HTTP.
type AgentsHandler struct {
	registry *agent.Registry
	logger   *zap.Logger
}

// NewAgentsHandler creates an AgentsHandler.
func NewAgentsHandler(registry *agent.Registry, logger *zap.Logger) *AgentsHandler {
	return &AgentsHandler{
		registry: registry,
		logger:   logger.With(zap.String("component", "agents_handler")),
	}
}

// SetAvailabilityRequest toggles whether a handler accepts dispatch.
type SetAvailabilityRequest struct {
	Available bool `json:"available"`
}

// HandleList handles GET /api/v1/agents.
func (h *AgentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.registry.List())
}

// HandleGet handles GET /api/v1/agents/{name}.
func (h *AgentsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	capability, err := h.registry.Get(r.PathValue("name"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, capability)
}

// HandleSetAvailability handles PATCH /api/v1/agents/{name}/availability.
func (h *AgentsHandler) HandleSetAvailability(w http.ResponseWriter, r *http.Request) {
	var req SetAvailabilityRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	name := r.PathValue("name")
	if err := h.registry.SetAvailable(name, req.Available); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	capability, err := h.registry.Get(name)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, capability)
}

// Register wires the agent routes onto mux.
func (h *AgentsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/agents", h.HandleList)
	mux.HandleFunc("GET /api/v1/agents/{name}", h.HandleGet)
	mux.HandleFunc("PATCH /api/v1/agents/{name}/availability", h.HandleSetAvailability)
}
