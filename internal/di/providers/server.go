package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/samber/do/v2"

	"github.com/shelfsyncapp/shelfsync-agent/internal/api"
	"github.com/shelfsyncapp/shelfsync-agent/internal/auth"
	"github.com/shelfsyncapp/shelfsync-agent/internal/config"
	"github.com/shelfsyncapp/shelfsync-agent/internal/events"
	"github.com/shelfsyncapp/shelfsync-agent/internal/library"
	"github.com/shelfsyncapp/shelfsync-agent/internal/logger"
	"github.com/shelfsyncapp/shelfsync-agent/internal/progress"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the peer protocol HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	authService := do.MustInvoke[*auth.Service](i)
	libraryService := do.MustInvoke[*library.Service](i)
	progressStore := do.MustInvoke[*progress.Store](i)
	thumbsHandle := do.MustInvoke[*ThumbnailerHandle](i)
	sseHandler := do.MustInvoke[*events.Handler](i)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "shelfsync-agent"
	}

	server := api.NewServer(
		authService,
		libraryService,
		progressStore,
		thumbsHandle.Thumbnailer,
		sseHandler,
		cfg.Server.Port,
		hostname,
		log.Logger,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)
	return &HTTPServerHandle{Server: srv}, nil
}
