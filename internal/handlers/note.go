package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// handleTaskNotes covers GET/POST /tasks/{id}/notes.
func (h *Handler) handleTaskNotes(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	user := userFrom(r)
	if user == nil {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		notes, err := h.Service.ListNotes(r.Context(), user, taskID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		sendJSON(w, http.StatusOK, notes)

	case http.MethodPost:
		body, ok := decodeNoteBody(w, r)
		if !ok {
			return
		}
		note, err := h.Service.CreateNote(r.Context(), user, taskID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		sendJSON(w, http.StatusCreated, note)

	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleNoteByID covers PUT/PATCH /notes/{id}.
func (h *Handler) HandleNoteByID(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	if user == nil {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	noteIDStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/notes/"), "/")
	noteID, err := uuid.Parse(noteIDStr)
	if err != nil {
		sendError(w, "note_id must be a valid uuid", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodPut && r.Method != http.MethodPatch {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, ok := decodeNoteBody(w, r)
	if !ok {
		return
	}
	note, err := h.Service.UpdateNote(r.Context(), user, noteID, body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, note)
}

func decodeNoteBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	var input struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return "", false
	}
	return input.Body, true
}
