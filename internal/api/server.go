// Package api exposes the integration's HTTP command surface: ride state,
// manual refresh, trip history, OAuth authorization, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/erbarraud/ha-uber-ride-tracker/internal/coordinator"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/uber"
)

// ProfileSource fetches the authenticated rider's profile. Implemented by
// the uber client.
type ProfileSource interface {
	GetProfile(ctx context.Context) (*uber.Profile, error)
}

// Server provides the HTTP API for the ride tracker
type Server struct {
	coord   *coordinator.Coordinator
	tokens  *uber.TokenManager
	profile ProfileSource
	logger  *zap.Logger
	server  *http.Server

	historyLimit int
	redirectURI  string
}

// NewServer creates a new API server
func NewServer(
	coord *coordinator.Coordinator,
	tokens *uber.TokenManager,
	profile ProfileSource,
	historyLimit int,
	redirectURI string,
	logger *zap.Logger,
	port int,
) *Server {
	s := &Server{
		coord:        coord,
		tokens:       tokens,
		profile:      profile,
		historyLimit: historyLimit,
		redirectURI:  redirectURI,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/ride", s.handleGetRide)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/profile", s.handleProfile)
	mux.HandleFunc("/api/authorize", s.handleAuthorize)
	mux.HandleFunc("/api/authorize/url", s.handleAuthorizeURL)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Handler returns the server's HTTP handler, for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// RideResponse is the JSON response for the ride endpoint
type RideResponse struct {
	HasActiveRide bool             `json:"has_active_ride"`
	Ride          *uber.RideRecord `json:"ride,omitempty"`
	Receipt       json.RawMessage  `json:"receipt,omitempty"`
	Map           json.RawMessage  `json:"map,omitempty"`
	LastUpdate    time.Time        `json:"last_update"`
	PollInterval  string           `json:"poll_interval"`
}

// handleGetRide returns the current ride snapshot as JSON
func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.coord.Data()
	response := RideResponse{
		HasActiveRide: snap.HasActiveRide,
		Ride:          snap.Ride,
		Receipt:       snap.Receipt,
		Map:           snap.Map,
		LastUpdate:    snap.LastUpdate,
		PollInterval:  s.coord.Interval().String(),
	}

	s.writeJSON(w, http.StatusOK, response)

	s.logger.Debug("Ride request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("active", snap.HasActiveRide))
}

// handleRefresh triggers an immediate poll
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.coord.RefreshNow()
	s.logger.Info("Manual refresh requested", zap.String("remote_addr", r.RemoteAddr))

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "refresh scheduled",
	})
}

// handleHistory returns recent trip history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 50 {
			http.Error(w, "limit must be an integer between 1 and 50", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	items, err := s.coord.RideHistory(r.Context(), limit)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(items),
		"history": items,
	})
}

// handleProfile returns the authenticated rider's profile
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	profile, err := s.profile.GetProfile(r.Context())
	if err != nil {
		s.writeAPIError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, profile)
}

// AuthorizeRequest is the JSON body for the authorize endpoint
type AuthorizeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// handleAuthorize exchanges an OAuth authorization code for tokens
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = s.redirectURI
	}

	if err := s.tokens.ExchangeCode(r.Context(), req.Code, redirectURI); err != nil {
		s.logger.Error("Authorization code exchange failed", zap.Error(err))
		s.writeAPIError(w, err)
		return
	}

	s.logger.Info("Authorization completed")
	s.coord.RefreshNow()

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "authorized",
	})
}

// handleAuthorizeURL returns the URL to visit to start the OAuth flow
func (s *Server) handleAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := uuid.NewString()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"url":   s.tokens.AuthorizeURL(state),
		"state": state,
	})
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "ok"
	if !s.tokens.HasToken() {
		status = "unauthorized"
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": status,
	})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoints := []Endpoint{
		{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
		{Path: "/health", Method: "GET", Description: "Health check - reports ok or unauthorized"},
		{Path: "/api/ride", Method: "GET", Description: "Current ride snapshot with receipt and map when available"},
		{Path: "/api/refresh", Method: "POST", Description: "Schedule an immediate poll of the Uber API"},
		{Path: "/api/history", Method: "GET", Description: "Recent trip history (?limit=1..50)"},
		{Path: "/api/profile", Method: "GET", Description: "The authenticated rider's profile"},
		{Path: "/api/authorize", Method: "POST", Description: "Exchange an OAuth authorization code ({\"code\": ...})"},
		{Path: "/api/authorize/url", Method: "GET", Description: "URL to start the OAuth authorization flow"},
		{Path: "/metrics", Method: "GET", Description: "Prometheus metrics"},
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "uber-ride-tracker",
		"endpoints": endpoints,
	})
}

// writeAPIError maps a client error onto an HTTP status
func (s *Server) writeAPIError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case uber.IsAuthenticationError(err):
		status = http.StatusUnauthorized
	case uber.IsRateLimitError(err):
		status = http.StatusTooManyRequests
	case uber.IsNotFoundError(err):
		status = http.StatusNotFound
	}

	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
