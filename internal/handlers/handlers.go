package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/chepyr/go-minitask/internal/db"
	"github.com/chepyr/go-minitask/internal/models"
	"github.com/chepyr/go-minitask/internal/service"
)

type Handler struct {
	Users       db.UserRepositoryInterface
	Service     *service.TaskService
	RateLimiter *RateLimiter
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func sendError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func sendJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeServiceError maps the service error taxonomy onto status codes:
// not-visible 404, stale version 409, missing permission 403, bad input 400.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrNotVisible):
		sendError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, db.ErrVersionConflict):
		sendError(w, "The task was changed by someone else; reload and retry", http.StatusConflict)
	case errors.Is(err, service.ErrPermission):
		sendError(w, "Forbidden", http.StatusForbidden)
	case errors.As(err, &validationErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{Error: "Validation failed", Fields: validationErr.Fields})
	default:
		log.Printf("Internal error: %v", err)
		sendError(w, "Internal error", http.StatusInternalServerError)
	}
}

func userFrom(r *http.Request) *models.User {
	user, _ := r.Context().Value("user").(*models.User)
	return user
}

func isJSONContentType(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
