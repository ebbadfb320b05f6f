// Package di provides dependency injection configuration for the
// ShelfSync agent.
package di

import (
	"github.com/samber/do/v2"

	"github.com/shelfsyncapp/shelfsync-agent/internal/auth"
	"github.com/shelfsyncapp/shelfsync-agent/internal/config"
	"github.com/shelfsyncapp/shelfsync-agent/internal/di/providers"
	"github.com/shelfsyncapp/shelfsync-agent/internal/events"
	"github.com/shelfsyncapp/shelfsync-agent/internal/library"
	"github.com/shelfsyncapp/shelfsync-agent/internal/logger"
	"github.com/shelfsyncapp/shelfsync-agent/internal/media/images"
	"github.com/shelfsyncapp/shelfsync-agent/internal/progress"
)

// NewContainer creates and configures the DI container with all
// providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideEventBus)
	do.Provide(injector, providers.ProvideSSEHandler)

	// Storage layer
	do.Provide(injector, providers.ProvideDatabase)
	do.Provide(injector, providers.ProvideProgressStore)
	do.Provide(injector, providers.ProvideImageStorage)
	do.Provide(injector, providers.ProvideThumbnailer)

	// Core services
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideLibraryService)

	// Workers
	do.Provide(injector, providers.ProvideTransferEngine)
	do.Provide(injector, providers.ProvideWatcher)
	do.Provide(injector, providers.ProvideDiscovery)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns once the agent is
// serving. This triggers lazy initialization of every provider in
// dependency order.
func Bootstrap(injector *do.RootScope) error {
	invocations := []func() error{
		invoke[*config.Config](injector),
		invoke[*logger.Logger](injector),
		invoke[*providers.EventBusHandle](injector),
		invoke[*events.Handler](injector),

		invoke[*providers.DatabaseHandle](injector),
		invoke[*progress.Store](injector),
		invoke[*images.Storage](injector),
		invoke[*providers.ThumbnailerHandle](injector),

		invoke[*auth.Service](injector),
		invoke[*library.Service](injector),

		invoke[*providers.TransferEngineHandle](injector),
		invoke[*providers.WatcherHandle](injector),
		invoke[*providers.DiscoveryHandle](injector),

		invoke[*providers.HTTPServerHandle](injector),
	}

	for _, inv := range invocations {
		if err := inv(); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](injector *do.RootScope) func() error {
	return func() error {
		_, err := do.Invoke[T](injector)
		return err
	}
}
