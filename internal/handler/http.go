package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/snakebase/snakebase/internal/domain"
	"github.com/snakebase/snakebase/internal/service"
	"github.com/snakebase/snakebase/internal/websocket"
)

type contextKey string

const userContextKey contextKey = "user"

// Handler provides HTTP handlers for the game API
type Handler struct {
	service *service.GameService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. hub may be nil when the
// websocket subsystem is disabled.
func NewHandler(service *service.GameService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
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

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Wallet login handshake
		r.Route("/auth", func(r chi.Router) {
			r.Post("/nonce", h.RequestNonce)
			r.Post("/verify", h.VerifyLogin)
		})

		// Public leaderboard
		r.Get("/leaderboard/top", h.GetTop)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Post("/scores", h.SubmitScore)

			r.Route("/players/me", func(r chi.Router) {
				r.Get("/", h.GetMe)
				r.Get("/stats", h.GetMyStats)
				r.Get("/history", h.GetMyHistory)
				r.Put("/username", h.UpdateUsername)
				r.Put("/avatar", h.UpdateAvatar)
			})
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

// requireSession resolves the bearer token into a user and stores it
// in the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			h.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		user, err := h.service.ResolveSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				h.writeError(w, http.StatusUnauthorized, errors.New("invalid or expired session"))
				return
			}
			h.logger.Error("failed to resolve session", "error", err)
			h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionUser(r *http.Request) *domain.User {
	user, _ := r.Context().Value(userContextKey).(*domain.User)
	return user
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

// writeServiceError maps domain errors to status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrUserMismatch):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrUsernameTaken):
		h.writeError(w, http.StatusConflict, err)
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusServiceUnavailable, errors.New("websocket disabled"))
		return
	}
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	total := 0
	if h.hub != nil {
		total = h.hub.GetTotalConnections()
	}
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": total,
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

// RequestNonce issues a login challenge for a wallet
func (h *Handler) RequestNonce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	challenge, message, err := h.service.RequestNonce(r.Context(), req.WalletAddress)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"nonce":     challenge.Nonce,
		"issued_at": challenge.IssuedAt,
		"message":   message,
	})
}

// VerifyLogin completes the nonce handshake and returns a session token
func (h *Handler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WalletAddress string `json:"wallet_address"`
		Signature     string `json:"signature"`
		Username      string `json:"username,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.WalletAddress == "" || req.Signature == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	user, token, err := h.service.VerifyLogin(r.Context(), req.WalletAddress, req.Signature, req.Username)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// SubmitScore handles score submission for the session user
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var submission domain.ScoreSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	stats, err := h.service.SubmitScore(r.Context(), sessionUser(r), &submission)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, stats)
}

// GetTop returns the top leaderboard entries
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = n
	}

	entries, err := h.service.GetLeaderboard(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetMe returns the session user
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, sessionUser(r))
}

// GetMyStats returns the session user's stats
func (h *Handler) GetMyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.PlayerStats(r.Context(), sessionUser(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetMyHistory returns the session user's score history
func (h *Handler) GetMyHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.PlayerHistory(r.Context(), sessionUser(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"entries": history,
		"count":   len(history),
	})
}

// UpdateUsername renames the session user
func (h *Handler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	user, err := h.service.UpdateUsername(r.Context(), sessionUser(r), req.Username)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeSuccess(w, user)
}

// UpdateAvatar sets the session user's avatar URL
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	user, err := h.service.UpdateAvatar(r.Context(), sessionUser(r), req.AvatarURL)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeSuccess(w, user)
}
