package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/p-n-ai/pai-dashboard/internal/content"
	"github.com/p-n-ai/pai-dashboard/internal/lessontree"
)

const readyTimeout = 2 * time.Second

// HealthChecker is a dependency checked by /readyz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler is the dashboard HTTP API.
type Handler struct {
	router  chi.Router
	manager *Manager
	checks  map[string]HealthChecker
	log     *slog.Logger
}

// NewHandler creates the router. checks are run by /readyz.
func NewHandler(manager *Manager, checks map[string]HealthChecker, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		manager: manager,
		checks:  checks,
		log:     log,
	}
	h.setupRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.log))

	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleDeleteSession)
			r.Post("/scroll", h.handleScroll)
			r.Post("/search", h.handleSearch)
			r.Post("/refresh", h.handleRefresh)
			r.Put("/course", h.handleChangeCourse)
			r.Post("/nodes/{nodeID}/expand", h.handleExpand)
			r.Post("/nodes/{nodeID}/collapse", h.handleCollapse)
			r.Get("/nodes/{nodeID}/children", h.handleChildren)
			r.Get("/export.xlsx", h.handleExport)
			r.Get("/ws", h.handleStream)
		})
	})

	h.router = r
}

// RequestLogger logs every request with its status and duration.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			h.log.Warn("readiness check failed", "dependency", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":     "not ready",
				"dependency": name,
			})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type courseRequest struct {
	CourseID string `json:"course_id"`
}

type scrollRequest struct {
	Distance int `json:"distance"`
}

type searchRequest struct {
	Query string `json:"query"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CourseID == "" {
		jsonError(w, "course_id is required", http.StatusBadRequest)
		return
	}

	s, err := h.manager.Create(r.Context(), req.CourseID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleScroll(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req scrollRequest
	if !decodeBody(w, r, &req) {
		return
	}
	added, err := s.OnScrollNearEnd(req.Distance)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"added":    added,
		"loaded":   s.loader.Loaded(),
		"has_more": s.HasMore(),
	})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.OnSearch(req.Query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Refresh(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleChangeCourse(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req courseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CourseID == "" {
		jsonError(w, "course_id is required", http.StatusBadRequest)
		return
	}
	if err := s.Open(r.Context(), req.CourseID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleExpand(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id := lessontree.NodeID(chi.URLParam(r, "nodeID"))
	children, err := s.OnExpand(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":  id,
		"children": children,
	})
}

func (h *Handler) handleCollapse(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.OnCollapse(lessontree.NodeID(chi.URLParam(r, "nodeID"))); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChildren(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id := lessontree.NodeID(chi.URLParam(r, "nodeID"))
	children, loaded := s.NodeChildren(id)
	if children == nil {
		children = []lessontree.LessonNode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":  id,
		"loaded":   loaded,
		"loading":  s.IsLoadingNode(id),
		"children": children,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	courseID := s.CourseID()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="course-%s.xlsx"`, courseID))
	if err := WriteWorkbook(w, courseID, s.VisibleLessons()); err != nil {
		h.log.Error("export failed", "session_id", s.ID(), "error", err)
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return s, true
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionClosed):
		status = http.StatusNotFound
	case errors.Is(err, ErrUnknownNode), errors.Is(err, content.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lessontree.ErrMalformedNode), errors.Is(err, lessontree.ErrStaleResult):
		status = http.StatusConflict
	case errors.Is(err, ErrNoCourse):
		status = http.StatusConflict
	default:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed", "status", status, "error", err)
	}
	jsonError(w, err.Error(), status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
