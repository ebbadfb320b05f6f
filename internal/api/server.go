// Package api provides the HTTP peer protocol served to ShelfSync
// clients on the LAN.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shelfsyncapp/shelfsync-agent/internal/auth"
	"github.com/shelfsyncapp/shelfsync-agent/internal/events"
	"github.com/shelfsyncapp/shelfsync-agent/internal/http/response"
	"github.com/shelfsyncapp/shelfsync-agent/internal/library"
	"github.com/shelfsyncapp/shelfsync-agent/internal/media/covers"
	"github.com/shelfsyncapp/shelfsync-agent/internal/progress"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	auth       *auth.Service
	library    *library.Service
	progress   *progress.Store
	thumbs     *covers.Thumbnailer
	sseHandler *events.Handler
	router     *chi.Mux
	logger     *slog.Logger
	port       int
	hostname   string
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(authService *auth.Service, libraryService *library.Service, progressStore *progress.Store, thumbs *covers.Thumbnailer, sseHandler *events.Handler, port int, hostname string, logger *slog.Logger) *Server {
	s := &Server{
		auth:       authService,
		library:    libraryService,
		progress:   progressStore,
		thumbs:     thumbs,
		sseHandler: sseHandler,
		router:     chi.NewRouter(),
		logger:     logger,
		port:       port,
		hostname:   hostname,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack. CORS is wide open:
// every peer on the LAN is a different origin and the PIN handshake is
// the actual gate.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Health check.
	s.router.Get("/health", s.handleHealthCheck)

	s.router.Route("/api", func(r chi.Router) {
		// Pairing and local UI endpoints (public).
		r.Post("/check-pin", s.handleCheckPIN)
		r.Get("/connection-info", s.handleConnectionInfo)
		r.Get("/events", s.sseHandler.ServeHTTP)

		// Peer endpoints (bearer token required).
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/manifest", s.handleManifest)
			r.Get("/cover/{id}", s.handleCover)
			r.Get("/download/{id}/{format}", s.handleDownload)
			r.Get("/progress", s.handleGetProgress)
			r.Post("/progress", s.handlePostProgress)
		})
	})
}

// handleHealthCheck returns server health status.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]string{
		"status": "healthy",
	}, s.logger)
}
