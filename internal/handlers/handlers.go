package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fresh-hub/internal/engine"
	"fresh-hub/internal/engine/actors"
	"fresh-hub/internal/middleware"
	"fresh-hub/internal/utils"
)

// Server holds all server dependencies: the engine for reads and the actor
// dispatcher for writes.
type Server struct {
	Engine         *engine.Engine
	Dispatcher     *actors.Dispatcher
	Metrics        *utils.MetricsCollector
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	eng *engine.Engine,
	dispatcher *actors.Dispatcher,
	metrics *utils.MetricsCollector,
	logger *slog.Logger,
	requestTimeout time.Duration,
) *Server {
	return &Server{
		Engine:         eng,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
		RequestTimeout: requestTimeout,
	}
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes(metricsEnabled bool) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users", s.HandleCreateUser())
	mux.HandleFunc("GET /api/users/{id}", s.HandleGetUser())
	mux.HandleFunc("PUT /api/users/{id}", s.HandleUpdateUser())
	mux.HandleFunc("GET /api/users/{id}/posts", s.HandleGetUserPosts())
	mux.HandleFunc("GET /api/users/{id}/rank", s.HandleGetUserRank())
	mux.HandleFunc("GET /api/leaderboard", s.HandleLeaderboard())

	mux.HandleFunc("POST /api/posts", s.HandleCreatePost())
	mux.HandleFunc("GET /api/posts", s.HandleGetPosts())
	mux.HandleFunc("POST /api/posts/{id}/like", s.HandleToggleLike())

	mux.HandleFunc("GET /health", s.HandleHealth())
	if metricsEnabled {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}
	return mux
}

// Handler wraps the routes with the standard middleware stack.
func (s *Server) Handler(metricsEnabled bool, cors *middleware.CORSConfig) http.Handler {
	return middleware.Chain(s.Routes(metricsEnabled),
		middleware.RequestID,
		middleware.Logging(s.Logger),
		middleware.Metrics(s.Metrics),
		middleware.CORSMiddleware(cors),
	)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

// writeError maps err onto a status code. Internal failures are logged and
// reported with fallback instead of the driver message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	appErr := utils.AsAppError(err)
	status := utils.AppErrorToHTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		s.Logger.Error(fallback,
			"error", err,
			"requestId", middleware.RequestIDFromContext(r.Context()),
		)
		writeMessage(w, status, fallback)
		return
	}
	writeMessage(w, status, appErr.Message)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.RequestTimeout)
}
