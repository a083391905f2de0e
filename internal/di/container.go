// Package di provides dependency injection configuration for the fitconv server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/fitconvapp/fitconv-server/internal/di/providers"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Conversion
	do.Provide(injector, providers.ProvideConverter)

	// Workers
	do.Provide(injector, providers.ProvidePipeline)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns once they are running.
// This triggers lazy initialization in dependency order.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*providers.PipelineHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	return nil
}
