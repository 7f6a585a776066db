package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chepyr/go-minitask/internal/db"
	"github.com/chepyr/go-minitask/internal/models"
	"github.com/chepyr/go-minitask/internal/service"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

/*
handles routes:
- GET /tasks - list visible tasks, filtered and sorted
- POST /tasks - create a new task
*/
func (h *Handler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTasks(w, r)
	case http.MethodPost:
		h.createTask(w, r)
	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type taskListResponse struct {
	Tasks         []*models.Task `json:"tasks"`
	DueDateAfter  string         `json:"due_date_after,omitempty"`
	DueDateBefore string         `json:"due_date_before,omitempty"`
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	if user == nil {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	filter := db.TaskFilter{}

	if v := q.Get("project"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			sendError(w, "project must be a valid uuid", http.StatusBadRequest)
			return
		}
		filter.ProjectID = &id
	}

	after, err := parseDateParam(q.Get("due_date_after"))
	if err != nil {
		sendError(w, "due_date_after must be an ISO date", http.StatusBadRequest)
		return
	}
	before, err := parseDateParam(q.Get("due_date_before"))
	if err != nil {
		sendError(w, "due_date_before must be an ISO date", http.StatusBadRequest)
		return
	}
	// The shift directives re-center a complete window by its own span;
	// with an open-ended window there is nothing to shift.
	if after != nil && before != nil {
		window := service.DateRange{After: *after, Before: *before}
		if q.Has("previous_due_date") {
			window = window.Previous()
		} else if q.Has("next_due_date") {
			window = window.Next()
		}
		after, before = &window.After, &window.Before
	}
	filter.DueDateAfter = after
	filter.DueDateBefore = before

	if v := q.Get("status"); v != "" {
		if !models.TaskStatus(strings.TrimPrefix(v, "!")).Valid() {
			sendError(w, "Invalid status value", http.StatusBadRequest)
			return
		}
		filter.Status = v
	}
	if v := q.Get("assignee"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			sendError(w, "assignee must be a valid uuid", http.StatusBadRequest)
			return
		}
		filter.AssigneeID = &id
	}
	filter.Tags = parseTags(q.Get("tags"))
	if v := q.Get("is_archived"); v != "" {
		isArchived, err := strconv.ParseBool(v)
		if err != nil {
			sendError(w, "is_archived must be a boolean", http.StatusBadRequest)
			return
		}
		filter.IsArchived = isArchived
	}

	tasks, err := h.Service.ListTasks(r.Context(), user, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := taskListResponse{Tasks: tasks}
	if after != nil {
		resp.DueDateAfter = after.Format(dateLayout)
	}
	if before != nil {
		resp.DueDateBefore = before.Format(dateLayout)
	}
	sendJSON(w, http.StatusOK, resp)
}

type taskPayload struct {
	Version     *int   `json:"version"`
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	AssigneeID  string `json:"assignee_id"`
	Tags        string `json:"tags"` // comma-separated list of tag names
}

func (payload taskPayload) toInput() (service.TaskInput, error) {
	input := service.TaskInput{
		Title:       payload.Title,
		Description: payload.Description,
		Status:      models.TaskStatus(payload.Status),
		Priority:    payload.Priority,
		Tags:        parseTags(payload.Tags),
	}
	if payload.ProjectID != "" {
		projectID, err := uuid.Parse(payload.ProjectID)
		if err != nil {
			return input, fmt.Errorf("project_id must be a valid uuid")
		}
		input.ProjectID = projectID
	}
	if payload.DueDate != "" {
		dueDate, err := time.Parse(dateLayout, payload.DueDate)
		if err != nil {
			return input, fmt.Errorf("due_date must be an ISO date")
		}
		input.DueDate = &dueDate
	}
	if payload.AssigneeID != "" {
		assigneeID, err := uuid.Parse(payload.AssigneeID)
		if err != nil {
			return input, fmt.Errorf("assignee_id must be a valid uuid")
		}
		input.AssigneeID = &assigneeID
	}
	return input, nil
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	if user == nil {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var payload taskPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	// New tasks always start their version history at 0.
	if payload.Version != nil && *payload.Version != 0 {
		sendError(w, "version must be 0 for a new task", http.StatusBadRequest)
		return
	}
	input, err := payload.toInput()
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if input.ProjectID == uuid.Nil {
		sendError(w, "project_id is required (uuid)", http.StatusBadRequest)
		return
	}

	task, err := h.Service.CreateTask(r.Context(), user, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/tasks/"+task.ID.String())
	sendJSON(w, http.StatusCreated, task)
}

/*
routes:
- GET /tasks/{id},
- PUT/PATCH /tasks/{id},
- POST /tasks/{id}/archive,
- GET/POST /tasks/{id}/notes
*/
func (h *Handler) HandleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		sendError(w, "task_id is required", http.StatusBadRequest)
		return
	}
	taskID, err := uuid.Parse(parts[0])
	if err != nil {
		sendError(w, "task_id must be a valid uuid", http.StatusBadRequest)
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "archive":
			h.archiveTaskByID(w, r, taskID)
		case "notes":
			h.handleTaskNotes(w, r, taskID)
		default:
			sendError(w, "Not found", http.StatusNotFound)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getTaskByID(w, r, taskID)
	case http.MethodPut, http.MethodPatch:
		h.updateTaskByID(w, r, taskID)
	default:
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type taskDetailResponse struct {
	Task  *models.Task   `json:"task"`
	Notes []*models.Note `json:"notes"`
}

func (h *Handler) getTaskByID(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	user := userFrom(r)
	if user == nil {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	task, err := h.Service.GetTask(r.Context(), user, taskID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	notes, err := h.Service.ListNotes(r.Context(), user, taskID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, taskDetailResponse{Task: task, Notes: notes})
}

func (h *Handler) updateTaskByID(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	user := userFrom(r)
	if user == nil {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var payload taskPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if payload.Version == nil {
		sendError(w, "version is required", http.StatusBadRequest)
		return
	}
	input, err := payload.toInput()
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	task, err := h.Service.UpdateTask(r.Context(), user, taskID, *payload.Version, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) archiveTaskByID(w http.ResponseWriter, r *http.Request, taskID uuid.UUID) {
	user := userFrom(r)
	if user == nil {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var input struct {
		Version    *int  `json:"version"`
		IsArchived *bool `json:"is_archived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if input.Version == nil || input.IsArchived == nil {
		sendError(w, "version and is_archived are required", http.StatusBadRequest)
		return
	}

	task, err := h.Service.ArchiveTask(r.Context(), user, taskID, *input.Version, *input.IsArchived)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

// parseTags splits a comma-separated tag list, dropping blanks.
func parseTags(value string) []string {
	var tags []string
	for _, tag := range strings.Split(value, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func parseDateParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
