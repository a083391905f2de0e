package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do/v2"

	"github.com/fitconvapp/fitconv-server/internal/config"
	"github.com/fitconvapp/fitconv-server/internal/converter"
	"github.com/fitconvapp/fitconv-server/internal/logger"
	"github.com/fitconvapp/fitconv-server/internal/pipeline"
	"github.com/fitconvapp/fitconv-server/internal/watcher"
)

// ProvideConverter provides the FIT to CSV converter.
func ProvideConverter(i do.Injector) (*converter.FIT, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	log, err := do.Invoke[*logger.Logger](i)
	if err != nil {
		return nil, err
	}

	return converter.NewFIT(cfg.Paths.Outbox, cfg.Pipeline.Transform, log.Logger), nil
}

// PipelineHandle wraps the running pipeline controller with shutdown
// capability. Shutdown reports an error when the drain outlives the grace
// period, so the process exit status reflects a forced termination.
type PipelineHandle struct {
	*pipeline.Controller
	grace time.Duration
}

// Shutdown implements do.Shutdownable.
func (h *PipelineHandle) Shutdown() error {
	if !h.Controller.Stop(h.grace) {
		return fmt.Errorf("pipeline drain incomplete after %s grace period", h.grace)
	}
	return nil
}

// ProvidePipeline builds the watch-convert pipeline and starts it. A startup
// failure here (unusable directories, unwatchable inbox) is fatal for the
// whole bootstrap.
func ProvidePipeline(i do.Injector) (*PipelineHandle, error) {
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

	source, err := watcher.New(cfg.Pipeline.Backend, log.Logger, watcher.Options{
		PollInterval: cfg.Pipeline.PollInterval,
	})
	if err != nil {
		return nil, err
	}

	prober := pipeline.NewProber(
		cfg.Pipeline.ProbeInterval,
		cfg.Pipeline.MaxSettleWait,
		cfg.Pipeline.MaxProbeRounds,
		log.Logger,
	)
	dispatcher := pipeline.NewDispatcher(conv, cfg.Paths.Processed, cfg.Paths.Quarantine, log.Logger)
	policy := pipeline.Policy{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Base:        cfg.Pipeline.BackoffBase,
		Cap:         cfg.Pipeline.BackoffCap,
	}

	ctrl := pipeline.NewController(source, prober, dispatcher, policy, pipeline.Options{
		Inbox:          cfg.Paths.Inbox,
		Outbox:         cfg.Paths.Outbox,
		Quarantine:     cfg.Paths.Quarantine,
		Processed:      cfg.Paths.Processed,
		DebounceWindow: cfg.Pipeline.DebounceWindow,
	}, log.Logger)

	if err := ctrl.Start(context.Background()); err != nil {
		return nil, err
	}

	log.Info("Pipeline started", "inbox", cfg.Paths.Inbox, "outbox", cfg.Paths.Outbox)

	return &PipelineHandle{
		Controller: ctrl,
		grace:      cfg.Pipeline.GracePeriod,
	}, nil
}
