// Package api provides the HTTP REST API server for CryptoPulse.
//
// It exposes the dashboard view, the view-state mutation endpoints (search,
// pagination, view mode), per-asset detail, manual refresh, market news, and
// a WebSocket stream that pushes every reconciled view to connected pages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fteduche/cryptopluse/internal/config"
	"github.com/fteduche/cryptopluse/internal/coinlore"
	"github.com/fteduche/cryptopluse/internal/dashboard"
	"github.com/fteduche/cryptopluse/internal/news"
	"github.com/fteduche/cryptopluse/internal/prefs"
	"github.com/fteduche/cryptopluse/pkg/models"
	"github.com/fteduche/cryptopluse/web"
)

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	dash    *dashboard.Dashboard
	news    *news.Service
	wsHub   *WSHub
	logger  *slog.Logger
	serveUI bool // when true, serve the embedded web UI at /
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pref, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		return nil, fmt.Errorf("preference store: %w", err)
	}

	client := coinlore.New(coinlore.Config{
		BaseURL:     cfg.Provider.BaseURL,
		Limit:       cfg.Provider.Limit,
		MaxAttempts: cfg.Provider.MaxAttempts,
		BackoffBase: time.Duration(cfg.Provider.BackoffBaseMs) * time.Millisecond,
		RatePerSec:  cfg.Provider.RatePerSec,
	})

	dash := dashboard.New(client, pref, dashboard.Options{
		ItemsPerPage:   cfg.View.ItemsPerPage,
		DefaultMode:    models.ViewMode(cfg.View.DefaultMode),
		SearchDebounce: time.Duration(cfg.Refresh.SearchDebounceMs) * time.Millisecond,
		BannerDismiss:  time.Duration(cfg.Refresh.BannerSuccessSec) * time.Second,
		Logger:         logger,
	})

	srv := &Server{
		cfg:     cfg,
		dash:    dash,
		news:    news.New(cfg.News.Sources, time.Duration(cfg.News.CacheTTLSec)*time.Second),
		wsHub:   NewWSHub(),
		logger:  logger,
		serveUI: true,
	}

	// Push every reconciled view to connected pages.
	dash.SetListener(func(view models.DerivedView, banner dashboard.Banner) {
		srv.wsHub.Broadcast(WSMessage{
			Type: "view_updated",
			Data: viewPayload(dash, view, banner),
		})
	})

	srv.router = srv.buildRouter()
	return srv, nil
}

// Dashboard returns the underlying dashboard state object.
func (s *Server) Dashboard() *dashboard.Dashboard {
	return s.dash
}

// SetServeUI controls whether the embedded web UI is served.
// Must be called before ListenAndServe.
func (s *Server) SetServeUI(enabled bool) {
	s.serveUI = enabled
	s.router = s.buildRouter()
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start WebSocket hub
	go s.wsHub.Run()

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}
	s.logger.Info("shutting down server")

	s.dash.StopAutoRefresh()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Dashboard view
		r.Get("/view", s.handleView)

		// View-state mutations
		r.Post("/search", s.handleSearch)
		r.Put("/page", s.handleSetPage)
		r.Post("/page/next", s.handleNextPage)
		r.Post("/page/prev", s.handlePrevPage)
		r.Put("/viewmode", s.handleViewMode)

		// Asset detail
		r.Get("/assets/{id}", s.handleAsset)

		// Market data
		r.Post("/refresh", s.handleRefresh)
		r.Get("/global", s.handleGlobal)
		r.Get("/news", s.handleNews)

		// WebSocket stream
		r.Get("/ws", s.handleWebSocket)
	})

	// Serve embedded web UI (SPA with fallback to index.html)
	if s.serveUI {
		s.mountSPA(r, web.DistFS())
	}

	return r
}

// mountSPA serves the embedded static dashboard as a single-page app.
// Unknown paths fall back to index.html for client-side routing.
func (s *Server) mountSPA(r chi.Router, distFS fs.FS) {
	fileServer := http.FileServerFS(distFS)

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		rPath := strings.TrimPrefix(r.URL.Path, "/")
		if rPath == "" {
			rPath = "index.html"
		}

		f, err := distFS.Open(rPath)
		if err != nil {
			serveIndexHTML(w, distFS)
			return
		}
		f.Close()

		if rPath == "index.html" || strings.HasSuffix(rPath, ".html") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		}

		fileServer.ServeHTTP(w, r)
	})
}

// serveIndexHTML reads and serves the embedded index.html for SPA fallback.
func serveIndexHTML(w http.ResponseWriter, distFS fs.FS) {
	data, err := fs.ReadFile(distFS, "index.html")
	if err != nil {
		http.Error(w, "web UI not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SearchRequest is the body for POST /api/v1/search.
type SearchRequest struct {
	Query     string `json:"query"`
	Immediate bool   `json:"immediate,omitempty"` // skip the debounce delay
}

// PageRequest is the body for PUT /api/v1/page.
type PageRequest struct {
	Page int `json:"page"`
}

// ViewModeRequest is the body for PUT /api/v1/viewmode.
type ViewModeRequest struct {
	Mode string `json:"mode"` // "table" or "card"
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":       "ok",
			"loaded":       s.dash.Loaded(),
			"refreshing":   s.dash.Refreshing(),
			"last_updated": s.dash.LastUpdated(),
		},
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    viewPayload(s.dash, s.dash.View(), s.dash.Banner()),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Immediate {
		s.dash.SetSearchNow(req.Query)
	} else {
		s.dash.SetSearch(req.Query)
	}

	writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]string{"query": req.Query},
	})
}

func (s *Server) handleSetPage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.dash.SetPage(req.Page)
	s.respondView(w)
}

func (s *Server) handleNextPage(w http.ResponseWriter, r *http.Request) {
	s.dash.NextPage()
	s.respondView(w)
}

func (s *Server) handlePrevPage(w http.ResponseWriter, r *http.Request) {
	s.dash.PrevPage()
	s.respondView(w)
}

func (s *Server) handleViewMode(w http.ResponseWriter, r *http.Request) {
	var req ViewModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.dash.SetViewMode(models.ViewMode(req.Mode)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondView(w)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "asset id is required")
		return
	}

	asset, ok := s.dash.AssetByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("asset %q not in current snapshot", id))
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    asset,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := s.dash.Refresh(ctx, false); err != nil {
		if errors.Is(err, dashboard.ErrRefreshBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.respondView(w)
}

func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.dash.Global(),
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	articles, err := s.news.Latest(ctx, s.cfg.News.Limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    articles,
	})
}

// ============================================================
// Helpers
// ============================================================

// viewPayload assembles the full render-adapter payload: derived view,
// aggregates, banner, and view state.
func viewPayload(d *dashboard.Dashboard, view models.DerivedView, banner dashboard.Banner) map[string]interface{} {
	return map[string]interface{}{
		"view":         view,
		"global":       d.Global(),
		"state":        d.State(),
		"banner":       banner,
		"last_updated": d.LastUpdated(),
	}
}

func (s *Server) respondView(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    viewPayload(s.dash, s.dash.View(), s.dash.Banner()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// ============================================================
// WebSocket Hub
// ============================================================

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSHub manages WebSocket connections and message broadcasting.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
}

// WSClient represents a single WebSocket connection. The send channel is
// never closed; the hub signals disconnect by closing done, so senders race
// a select against done instead of risking a send on a closed channel.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage
	done chan struct{}
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.done)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client; disconnect
					delete(h.clients, client)
					close(client.done)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected WebSocket clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		// Drop message if broadcast channel is full
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *WSHub) Register(client *WSClient) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	h.unregister <- client
}
