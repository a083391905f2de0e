package providers

import (
	"net/http"

	"github.com/samber/do/v2"

	"github.com/fitconvapp/fitconv-server/internal/api"
	"github.com/fitconvapp/fitconv-server/internal/config"
	"github.com/fitconvapp/fitconv-server/internal/converter"
	"github.com/fitconvapp/fitconv-server/internal/logger"
)

// HTTPServerHandle wraps the HTTP server with shutdown capability.
type HTTPServerHandle struct {
	*api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	return h.Server.Shutdown()
}

// ProvideHTTPServer provides the HTTP front end and starts serving.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	log, err := do.Invoke[*logger.Logger](i)
	if err != nil {
		return nil, err
	}
	conv, err := do.Invoke[*converter.FIT](i)
	if err != nil {
		return nil, err
	}
	pipe, err := do.Invoke[*PipelineHandle](i)
	if err != nil {
		return nil, err
	}

	srv := api.New(cfg, conv, pipe.Controller, log.Logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("HTTP server started", "port", cfg.Server.Port)

	return &HTTPServerHandle{Server: srv}, nil
}
