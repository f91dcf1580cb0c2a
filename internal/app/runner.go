package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/riskibarqy/tm-alerts/internal/usecase"
	"github.com/sourcegraph/conc/pool"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP server, the local queue workers and the periodic
// triggers until ctx is done or one of them fails.
func (c *Container) Serve(ctx context.Context) error {
	srv, err := c.NewHTTPServer()
	if err != nil {
		return err
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()

	p.Go(func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			c.Logger.Info("http server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
				return
			}
			errCh <- nil
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		c.Logger.Info("http server stopped")
		return <-errCh
	})

	if c.LocalQueue != nil {
		p.Go(func(ctx context.Context) error {
			return c.LocalQueue.Run(ctx)
		})
	}

	if c.Config.CycleInterval > 0 {
		p.Go(func(ctx context.Context) error {
			c.every(ctx, "daily cycle", c.Config.CycleInterval, func(ctx context.Context) error {
				result, err := c.Scheduler.RunDailyCycle(ctx)
				if err == nil {
					c.Logger.InfoContext(ctx, "daily cycle queued", "processing_date", result.ProcessingDate, "jobs_queued", result.JobsQueued)
				}
				return err
			})
			return nil
		})
	}

	if c.Config.ComposeFlushInterval > 0 {
		p.Go(func(ctx context.Context) error {
			c.every(ctx, "compose flush", c.Config.ComposeFlushInterval, func(ctx context.Context) error {
				_, err := c.Composer.FlushExpired(ctx)
				return err
			})
			return nil
		})
	}

	return p.Wait()
}

// every calls fn on each tick until ctx is done. Failures are logged and the
// next tick runs as usual.
func (c *Container) every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				c.Logger.ErrorContext(ctx, "periodic task failed", "task", name, "error", err)
			}
		}
	}
}

// RunCycle fans out one daily cycle. With the local queue it also waits for
// every queued job to finish.
func (c *Container) RunCycle(ctx context.Context) (usecase.CycleResult, error) {
	result, err := c.Scheduler.RunDailyCycle(ctx)
	if err != nil {
		return result, err
	}
	if c.LocalQueue == nil {
		return result, nil
	}

	if err := c.LocalQueue.Drain(ctx); err != nil {
		return result, fmt.Errorf("drain local queue: %w", err)
	}
	flushed, err := c.Composer.FlushExpired(ctx)
	if err != nil {
		return result, fmt.Errorf("flush pending emails: %w", err)
	}
	c.Logger.InfoContext(ctx, "local cycle finished",
		"jobs_queued", result.JobsQueued,
		"emails_flushed", flushed.Sent,
	)
	return result, nil
}
