package handlers

import (
	"io"
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/httpx"
	"github.com/sridharsr7/personal-task-manager/middleware"
)

// RouterOptions configures the cross-cutting wrappers around the routes.
type RouterOptions struct {
	// AllowedOrigins is the single cross-origin policy; "*" allows any.
	AllowedOrigins []string
	// AccessLog receives one combined-format line per request. Nil disables it.
	AccessLog io.Writer
}

// NewRouter defines the API routes and links them to the handler functions.
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusNotFound, api.ErrorResponse{Message: "Not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, api.ErrorResponse{Message: "Method not allowed"})
	})

	router.HandleFunc("/", h.Root).Methods(http.MethodGet)

	authRoutes := router.PathPrefix("/api/auth").Subrouter()
	authRoutes.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	authRoutes.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	taskRoutes := router.PathPrefix("/api/tasks").Subrouter()
	taskRoutes.Use(middleware.Auth(h.Auth, h.Timeout))
	taskRoutes.HandleFunc("", h.ListTasks).Methods(http.MethodGet)
	taskRoutes.HandleFunc("", h.CreateTask).Methods(http.MethodPost)
	taskRoutes.HandleFunc("/{id}", h.GetTask).Methods(http.MethodGet)
	taskRoutes.HandleFunc("/{id}", h.UpdateTask).Methods(http.MethodPut)
	taskRoutes.HandleFunc("/{id}", h.DeleteTask).Methods(http.MethodDelete)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	var handler http.Handler = gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(origins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(router)
	if opts.AccessLog != nil {
		handler = gorillahandlers.CombinedLoggingHandler(opts.AccessLog, handler)
	}
	return gorillahandlers.RecoveryHandler(gorillahandlers.PrintRecoveryStack(true))(handler)
}
