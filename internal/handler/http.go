package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/suji-games/leaderboard-service/internal/domain"
	"github.com/suji-games/leaderboard-service/internal/service"
	"github.com/suji-games/leaderboard-service/internal/websocket"
)

// Handler provides HTTP handlers for the leaderboard API
type Handler struct {
	service *service.LeaderboardService
	hub     *websocket.Hub
	metrics http.Handler
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.LeaderboardService, hub *websocket.Hub, metrics http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// Prometheus metrics
	r.Handle("/metrics", h.metrics)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Score operations
		r.Post("/scores", h.AddScore)

		// Leaderboard operations
		r.Route("/leaderboards", func(r chi.Router) {
			r.Post("/", h.CreateLeaderboard)
			r.Get("/", h.ListLeaderboards)

			r.Route("/{leaderboardID}", func(r chi.Router) {
				r.Get("/", h.GetView)
				r.Delete("/", h.DeleteLeaderboard)
				r.Post("/close", h.CloseLeaderboard)
				r.Get("/archives/{cycle}", h.GetArchive)
			})
		})

		// Player operations
		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Put("/profile", h.UpsertProfile)
			r.Get("/score", h.GetAllTimeScore)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps shared error cases to HTTP statuses
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrBackendUnavailable):
		h.logger.Error("ranking backend unavailable", "action", action, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrBackendUnavailable)
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidLimit):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("request failed", "action", action, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// CreateLeaderboard handles leaderboard creation
func (h *Handler) CreateLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLeaderboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	lb, err := h.service.CreateLeaderboard(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLeaderboardExists):
			h.writeError(w, http.StatusConflict, err)
		case errors.Is(err, domain.ErrInvalidLeaderboard), errors.Is(err, domain.ErrInvalidRewardTier):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.logger.Error("failed to create leaderboard", "error", err)
			h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    lb,
	})
}

// leaderboardListItem is one row of the open-leaderboard listing
type leaderboardListItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Cycle         int64  `json:"cycle"`
	TimeRemaining *int64 `json:"time_remaining_seconds"`
}

// ListLeaderboards returns the leaderboards currently open, each with the
// seconds until its cycle closes. Infinite leaderboards report null.
func (h *Handler) ListLeaderboards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.service.ListOpen(r.Context())
	if err != nil {
		h.logger.Error("failed to list leaderboards", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	now := time.Now()
	items := make([]leaderboardListItem, 0, len(boards))
	for i := range boards {
		lb := &boards[i]
		item := leaderboardListItem{
			ID:    lb.ID,
			Name:  lb.Name,
			Cycle: lb.Cycle,
		}
		if remaining, ok := lb.TimeRemaining(now); ok {
			secs := int64(remaining.Seconds())
			if secs < 0 {
				secs = 0
			}
			item.TimeRemaining = &secs
		}
		items = append(items, item)
	}

	h.writeSuccess(w, items)
}

// GetView returns the composite leaderboard view. The optional player query
// parameter selects whose rank and surrounding window to include.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	leaderboardID := chi.URLParam(r, "leaderboardID")
	if leaderboardID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	playerID := r.URL.Query().Get("player")

	view, err := h.service.GetView(r.Context(), leaderboardID, playerID)
	if err != nil {
		h.writeServiceError(w, err, "get view")
		return
	}

	h.writeSuccess(w, view)
}

// DeleteLeaderboard deletes a leaderboard
func (h *Handler) DeleteLeaderboard(w http.ResponseWriter, r *http.Request) {
	leaderboardID := chi.URLParam(r, "leaderboardID")
	if leaderboardID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.DeleteLeaderboard(r.Context(), leaderboardID); err != nil {
		h.writeServiceError(w, err, "delete leaderboard")
		return
	}

	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// CloseLeaderboard manually closes the current cycle, the same sequence the
// scheduled trigger runs.
func (h *Handler) CloseLeaderboard(w http.ResponseWriter, r *http.Request) {
	leaderboardID := chi.URLParam(r, "leaderboardID")
	if leaderboardID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	lb, err := h.service.GetLeaderboard(r.Context(), leaderboardID)
	if err != nil {
		h.writeServiceError(w, err, "close leaderboard")
		return
	}

	if err := h.service.CloseCycle(r.Context(), leaderboardID, lb.Cycle); err != nil {
		h.writeServiceError(w, err, "close leaderboard")
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"status": "closed",
		"cycle":  lb.Cycle,
	})
}

// GetArchive returns the archived standings of a past cycle
func (h *Handler) GetArchive(w http.ResponseWriter, r *http.Request) {
	leaderboardID := chi.URLParam(r, "leaderboardID")
	cycle, err := strconv.ParseInt(chi.URLParam(r, "cycle"), 10, 64)
	if leaderboardID == "" || err != nil || cycle < 1 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	record, err := h.service.GetArchive(r.Context(), leaderboardID, cycle)
	if err != nil {
		h.writeServiceError(w, err, "get archive")
		return
	}

	h.writeSuccess(w, record)
}

// scoreRequest is the direct score-credit request body
type scoreRequest struct {
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
}

// AddScore credits a score directly, outside the match-event stream
func (h *Handler) AddScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.AddScore(r.Context(), req.PlayerID, req.Score); err != nil {
		h.writeServiceError(w, err, "add score")
		return
	}

	h.writeSuccess(w, map[string]string{"status": "accepted"})
}

// UpsertProfile stores a player's cached profile
func (h *Handler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var profile domain.PlayerProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	profile.ID = playerID

	if err := h.service.UpsertProfile(r.Context(), profile); err != nil {
		h.writeServiceError(w, err, "upsert profile")
		return
	}

	h.writeSuccess(w, profile)
}

// GetAllTimeScore returns a player's cumulative score
func (h *Handler) GetAllTimeScore(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	score, err := h.service.GetAllTimeScore(r.Context(), playerID)
	if err != nil {
		h.writeServiceError(w, err, "get all-time score")
		return
	}

	h.writeSuccess(w, score)
}
