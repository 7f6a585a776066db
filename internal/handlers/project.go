package handlers

import (
	"net/http"
)

// HandleProjects covers GET /projects: the projects the caller can see,
// which are also the only valid targets for new tasks.
func (h *Handler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	if user == nil {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	projects, err := h.Service.ListProjects(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, projects)
}
