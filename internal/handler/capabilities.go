package handler

import (
	"net/http"

	"github.com/flipdesk/flipquery/internal/models"
	"github.com/flipdesk/flipquery/internal/processor"
)

// CapabilitiesHandler exposes the loaded capability documents so clients
// can render metric and item pickers.
type CapabilitiesHandler struct {
	proc *processor.Processor
}

func NewCapabilitiesHandler(proc *processor.Processor) *CapabilitiesHandler {
	return &CapabilitiesHandler{proc: proc}
}

// Get handles GET /api/v1/capabilities
func (h *CapabilitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	set := h.proc.Capabilities()
	if set == nil {
		models.WriteError(w, http.StatusServiceUnavailable, "query processor not initialized")
		return
	}
	models.WriteJSON(w, http.StatusOK, models.CapabilitiesResponse{
		Capabilities: set.Capabilities,
		Rules:        set.Rules,
	})
}
