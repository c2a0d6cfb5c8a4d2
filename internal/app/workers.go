package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/verilab/verilab/internal/adapter/observability"
	"github.com/verilab/verilab/internal/config"
	"github.com/verilab/verilab/internal/domain"
	"github.com/verilab/verilab/internal/usecase"
)

// Workers runs the background integration loops: pulling samples from
// pull-mode LIS tenants, uploading finalized results, and rescheduling
// failed uploads. Loop errors are logged and counted, never propagated;
// a broken tenant must not stall the others.
type Workers struct {
	Cfg config.Config
	LIS *usecase.LISService
}

// NewWorkers constructs the background loops over the LIS service.
func NewWorkers(cfg config.Config, lis *usecase.LISService) *Workers {
	return &Workers{Cfg: cfg, LIS: lis}
}

// Run starts all loops and blocks until ctx is cancelled.
func (w *Workers) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loops := []struct {
		name   string
		period time.Duration
		pass   func(context.Context)
	}{
		{"pull", w.Cfg.PullInterval, w.pullPass},
		{"upload", w.Cfg.UploadInterval, w.uploadPass},
		{"retry", w.Cfg.RetryInterval, w.retryPass},
	}
	for _, l := range loops {
		wg.Add(1)
		go func(name string, period time.Duration, pass func(context.Context)) {
			defer wg.Done()
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			slog.Info("worker loop started", slog.String("loop", name), slog.Duration("period", period))
			for {
				select {
				case <-ctx.Done():
					slog.Info("worker loop stopped", slog.String("loop", name))
					return
				case <-ticker.C:
					pass(ctx)
				}
			}
		}(l.name, l.period, l.pass)
	}
	wg.Wait()
}

// pullPass ingests samples for every pull-mode tenant whose configured
// interval has elapsed since the last successful retrieval.
func (w *Workers) pullPass(ctx context.Context) {
	configs, err := w.LIS.Configs.List(ctx)
	if err != nil {
		slog.Error("pull pass: list configs", slog.Any("err", err))
		observability.WorkerPass("pull", err)
		return
	}
	var passErr error
	for _, c := range configs {
		if c.IntegrationModel != domain.ModelPull {
			continue
		}
		if !pullDue(c, time.Now()) {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, w.Cfg.WorkerTimeout)
		report, err := w.LIS.Pull(callCtx, c.TenantID)
		cancel()
		if err != nil {
			passErr = err
			slog.Warn("pull pass: tenant pull failed",
				slog.String("tenant_id", c.TenantID), slog.Any("err", err))
			continue
		}
		observability.LISPullsTotal.WithLabelValues("ok").Inc()
		if report.SamplesCreated > 0 || report.ResultsCreated > 0 {
			slog.Info("pull pass: ingested",
				slog.String("tenant_id", c.TenantID),
				slog.Int("samples_created", report.SamplesCreated),
				slog.Int("results_created", report.ResultsCreated))
		}
	}
	if passErr != nil {
		observability.LISPullsTotal.WithLabelValues("error").Inc()
	}
	observability.WorkerPass("pull", passErr)
}

// pullDue reports whether a tenant's configured pull interval has elapsed.
func pullDue(c domain.LISConfig, now time.Time) bool {
	if c.LastSuccessfulRetrieval == nil {
		return true
	}
	interval := time.Duration(c.PullIntervalMinutes) * time.Minute
	return now.Sub(*c.LastSuccessfulRetrieval) >= interval
}

// uploadPass uploads finalized results for every auto-upload tenant. A
// transient upstream failure is retried with exponential backoff within the
// pass; anything left over is picked up by the retry loop.
func (w *Workers) uploadPass(ctx context.Context) {
	configs, err := w.LIS.Configs.List(ctx)
	if err != nil {
		slog.Error("upload pass: list configs", slog.Any("err", err))
		observability.WorkerPass("upload", err)
		return
	}
	var passErr error
	for _, c := range configs {
		if !c.AutoUploadEnabled {
			continue
		}
		report, err := w.uploadTenant(ctx, c.TenantID)
		if err != nil {
			passErr = err
			slog.Warn("upload pass: tenant upload failed",
				slog.String("tenant_id", c.TenantID), slog.Any("err", err))
			continue
		}
		if report.Sent > 0 || report.Failed > 0 {
			observability.LISUploadsTotal.WithLabelValues("sent").Add(float64(report.Sent))
			observability.LISUploadsTotal.WithLabelValues("failed").Add(float64(report.Failed))
			slog.Info("upload pass: batch done",
				slog.String("tenant_id", c.TenantID),
				slog.Int("sent", report.Sent),
				slog.Int("failed", report.Failed))
		}
	}
	observability.WorkerPass("upload", passErr)
}

func (w *Workers) uploadTenant(ctx context.Context, tenantID string) (usecase.UploadReport, error) {
	var report usecase.UploadReport
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.Cfg.RetryInitialDelay
	bo.MaxInterval = w.Cfg.RetryMaxDelay
	bo.Multiplier = w.Cfg.RetryMultiplier
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, w.Cfg.WorkerTimeout)
		defer cancel()
		var err error
		report, err = w.LIS.Upload(callCtx, tenantID)
		if err != nil && !errors.Is(err, domain.ErrUpstream) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(w.Cfg.RetryMaxRetries)), ctx))
	return report, err
}

// retryPass moves capped-out failed uploads back to pending.
func (w *Workers) retryPass(ctx context.Context) {
	configs, err := w.LIS.Configs.List(ctx)
	if err != nil {
		slog.Error("retry pass: list configs", slog.Any("err", err))
		observability.WorkerPass("retry", err)
		return
	}
	var passErr error
	for _, c := range configs {
		if !c.AutoUploadEnabled {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, w.Cfg.WorkerTimeout)
		n, err := w.LIS.RetryFailedUploads(callCtx, c.TenantID)
		cancel()
		if err != nil {
			passErr = err
			slog.Warn("retry pass: tenant retry failed",
				slog.String("tenant_id", c.TenantID), slog.Any("err", err))
			continue
		}
		if n > 0 {
			slog.Info("retry pass: rescheduled",
				slog.String("tenant_id", c.TenantID), slog.Int("count", n))
		}
	}
	observability.WorkerPass("retry", passErr)
}
