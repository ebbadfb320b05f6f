package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shelfsyncapp/shelfsync-agent/internal/auth"
	"github.com/shelfsyncapp/shelfsync-agent/internal/config"
	"github.com/shelfsyncapp/shelfsync-agent/internal/events"
	"github.com/shelfsyncapp/shelfsync-agent/internal/library"
	"github.com/shelfsyncapp/shelfsync-agent/internal/logger"
)

// EventBusHandle wraps the event bus with its broadcast context.
type EventBusHandle struct {
	*events.Bus
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *EventBusHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Bus.Shutdown(ctx)
}

// ProvideEventBus provides the in-process event bus.
func ProvideEventBus(i do.Injector) (*EventBusHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	bus := events.NewBus(log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go bus.Start(ctx)

	log.Info("Event bus started")
	return &EventBusHandle{Bus: bus, cancel: cancel}, nil
}

// ProvideSSEHandler provides the SSE endpoint handler.
func ProvideSSEHandler(i do.Injector) (*events.Handler, error) {
	busHandle := do.MustInvoke[*EventBusHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return events.NewHandler(busHandle.Bus, log.Logger), nil
}

// ProvideAuthService provides the PIN and token service.
func ProvideAuthService(i do.Injector) (*auth.Service, error) {
	log := do.MustInvoke[*logger.Logger](i)

	svc, err := auth.NewService(log.Logger)
	if err != nil {
		return nil, err
	}

	// The PIN is the pairing secret; surface it where the operator
	// will see it.
	log.Info("Pairing PIN generated", "pin", svc.PIN())
	return svc, nil
}

// ProvideLibraryService provides the library snapshot service and
// performs the initial catalog load when a path is configured.
func ProvideLibraryService(i do.Injector) (*library.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)

	svc := library.NewService(nil, busHandle.Bus, log.Logger)

	if cfg.Library.Path != "" {
		if _, err := svc.Load(context.Background(), cfg.Library.Path); err != nil {
			// Not fatal: the agent runs with an empty manifest until
			// the catalog appears.
			log.Warn("Initial library load failed",
				"path", cfg.Library.Path,
				"error", err)
		}
	}

	return svc, nil
}
