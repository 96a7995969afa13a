// Package handlers exposes the auth and task services over HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/apperr"
	"github.com/sridharsr7/personal-task-manager/httpx"
	"github.com/sridharsr7/personal-task-manager/middleware"
)

// AuthService is the part of auth.Service the handlers call.
type AuthService interface {
	middleware.Authenticator
	Register(ctx context.Context, req api.RegisterRequest) (api.AuthResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (api.AuthResponse, error)
}

// TaskService is the part of tasks.Service the handlers call.
type TaskService interface {
	List(ctx context.Context, ownerID string) ([]api.Task, error)
	Get(ctx context.Context, ownerID, id string) (api.Task, error)
	Create(ctx context.Context, ownerID string, req api.CreateTaskRequest) (api.Task, error)
	Update(ctx context.Context, ownerID, id string, req api.UpdateTaskRequest) (api.Task, error)
	Delete(ctx context.Context, ownerID, id string) error
}

var errNoPrincipal = apperr.New(apperr.CodeUnauthenticated, "Not authorized")

// Handlers holds the services, allowing methods to share them.
type Handlers struct {
	Auth  AuthService
	Tasks TaskService
	// Timeout bounds the store work of one request. Zero means no bound.
	Timeout time.Duration
}

// NewHandlers is a constructor for the Handlers struct.
func NewHandlers(authSvc AuthService, taskSvc TaskService, timeout time.Duration) *Handlers {
	return &Handlers{Auth: authSvc, Tasks: taskSvc, Timeout: timeout}
}

func (h *Handlers) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.Timeout)
}

// Root answers health checks.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("API running"))
}

// Register handles a new user registration.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	resp, err := h.Auth.Register(ctx, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// Login handles user authentication and returns a token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	resp, err := h.Auth.Login(ctx, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// principal returns the id of the user attached by the auth middleware.
func principal(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok || user.ID == "" {
		httpx.WriteError(w, r, errNoPrincipal)
		return "", false
	}
	return user.ID, true
}

// ListTasks returns the caller's tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := principal(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	tasks, err := h.Tasks.List(ctx, ownerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tasks)
}

// GetTask returns a single task by its ID.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := principal(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	task, err := h.Tasks.Get(ctx, ownerID, mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// CreateTask creates a task owned by the caller.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := principal(w, r)
	if !ok {
		return
	}
	var req api.CreateTaskRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	task, err := h.Tasks.Create(ctx, ownerID, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, task)
}

// UpdateTask applies a partial update to one of the caller's tasks.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := principal(w, r)
	if !ok {
		return
	}
	var req api.UpdateTaskRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	task, err := h.Tasks.Update(ctx, ownerID, mux.Vars(r)["id"], req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// DeleteTask deletes one of the caller's tasks.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := principal(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	if err := h.Tasks.Delete(ctx, ownerID, mux.Vars(r)["id"]); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
