// Package providers wires application components into the DI container.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/fitconvapp/fitconv-server/internal/config"
	"github.com/fitconvapp/fitconv-server/internal/logger"
)

// ProvideConfig resolves the application configuration from flags,
// environment, and the optional TOML config file.
func ProvideConfig(_ do.Injector) (*config.Config, error) {
	return config.Load(config.ParseFlags())
}

// ProvideLogger provides the application logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}

	return logger.New(logger.Config{
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	}), nil
}
