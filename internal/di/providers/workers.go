package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/shelfsyncapp/shelfsync-agent/internal/calibre"
	"github.com/shelfsyncapp/shelfsync-agent/internal/config"
	"github.com/shelfsyncapp/shelfsync-agent/internal/discovery"
	"github.com/shelfsyncapp/shelfsync-agent/internal/library"
	"github.com/shelfsyncapp/shelfsync-agent/internal/logger"
	"github.com/shelfsyncapp/shelfsync-agent/internal/transfer"
	"github.com/shelfsyncapp/shelfsync-agent/internal/watcher"
)

// TransferEngineHandle wraps the transfer engine with its worker
// context.
type TransferEngineHandle struct {
	*transfer.Engine
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *TransferEngineHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideTransferEngine provides the download queue worker.
func ProvideTransferEngine(i do.Injector) (*TransferEngineHandle, error) {
	busHandle := do.MustInvoke[*EventBusHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	engine := transfer.NewEngine(busHandle.Bus, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Start(ctx)

	return &TransferEngineHandle{Engine: engine, cancel: cancel}, nil
}

// WatcherHandle wraps the catalog watcher; Watcher is nil when
// watching is disabled or no library is configured.
type WatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *WatcherHandle) Shutdown() error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// ProvideWatcher provides the metadata.db watcher.
func ProvideWatcher(i do.Injector) (*WatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	libraryService := do.MustInvoke[*library.Service](i)

	if cfg.Library.Path == "" || !cfg.Library.WatchMetadata {
		log.Info("Catalog watching disabled")
		return &WatcherHandle{}, nil
	}

	catalogPath := filepath.Join(cfg.Library.Path, calibre.MetadataFile)
	w, err := watcher.New(catalogPath, func(ctx context.Context) error {
		_, err := libraryService.Refresh(ctx)
		return err
	}, log.Logger)
	if err != nil {
		// Non-fatal: manual refresh still works.
		log.Warn("Catalog watcher unavailable", "error", err)
		return &WatcherHandle{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	log.Info("Watching catalog", "path", catalogPath)
	return &WatcherHandle{Watcher: w, cancel: cancel}, nil
}

// DiscoveryHandle wraps the discovery service; Service is nil when
// discovery is disabled or Avahi is unreachable.
type DiscoveryHandle struct {
	*discovery.Service
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *DiscoveryHandle) Shutdown() error {
	if h.Service == nil {
		return nil
	}
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Service.Shutdown(ctx)
}

// ProvideDiscovery provides mDNS announcement and peer browsing.
func ProvideDiscovery(i do.Injector) (*DiscoveryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)

	if !cfg.Discovery.Enabled {
		log.Info("LAN discovery disabled by configuration")
		return &DiscoveryHandle{}, nil
	}

	svc, err := discovery.NewService(busHandle.Bus, log.Logger)
	if err != nil {
		// Non-fatal: the agent works without mDNS, peers type the
		// address manually.
		log.Warn("LAN discovery unavailable", "error", err)
		return &DiscoveryHandle{}, nil
	}

	if err := svc.Announce(cfg.Server.Port); err != nil {
		log.Warn("mDNS announcement failed", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := svc.Browse(ctx); err != nil {
			log.Warn("peer browsing stopped", "error", err)
		}
	}()

	return &DiscoveryHandle{Service: svc, cancel: cancel}, nil
}
