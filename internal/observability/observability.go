// Package observability starts tracing, profiling and the pprof listener
// for one process.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/config"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
)

// Runtime holds whatever Start enabled.
type Runtime struct {
	Pprof *http.Server

	shutdownUptrace func(context.Context) error
	stopPyroscope   func() error
	logger          *logging.Logger
}

// Start enables every configured backend. On error the ones already started
// are stopped again.
func Start(cfg config.Config, logger *logging.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Named("observability")

	rt := &Runtime{logger: logger}

	var err error
	if rt.shutdownUptrace, err = InitUptrace(cfg, logger); err != nil {
		return nil, fmt.Errorf("init uptrace: %w", err)
	}
	if rt.stopPyroscope, err = InitPyroscope(cfg, logger); err != nil {
		_ = rt.Shutdown(context.Background())
		return nil, fmt.Errorf("init pyroscope: %w", err)
	}
	if rt.Pprof, err = StartPprofServer(cfg, logger); err != nil {
		_ = rt.Shutdown(context.Background())
		return nil, fmt.Errorf("start pprof: %w", err)
	}
	return rt, nil
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	if r.Pprof != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := StopPprofServer(r.Pprof, r.logger, timeout); err != nil {
			errs = append(errs, fmt.Errorf("stop pprof: %w", err))
		}
	}
	if r.stopPyroscope != nil {
		if err := r.stopPyroscope(); err != nil {
			errs = append(errs, fmt.Errorf("stop pyroscope: %w", err))
		}
	}
	if r.shutdownUptrace != nil {
		if err := r.shutdownUptrace(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown uptrace: %w", err))
		}
	}
	return errors.Join(errs...)
}
