package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/verilab/verilab/internal/domain"
)

// LISService owns the per-tenant LIS configuration lifecycle, pull ingestion,
// and the outbound upload pipeline with its retry counters.
type LISService struct {
	Configs domain.LISConfigRepository
	Samples domain.SampleRepository
	Results domain.ResultRepository
	Adapter domain.LISAdapter

	// MaxUploadRetries caps automatic rescheduling of failed uploads.
	MaxUploadRetries int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLISService constructs a LISService over the given ports.
func NewLISService(configs domain.LISConfigRepository, samples domain.SampleRepository, results domain.ResultRepository, adapter domain.LISAdapter, maxRetries int) *LISService {
	return &LISService{
		Configs:          configs,
		Samples:          samples,
		Results:          results,
		Adapter:          adapter,
		MaxUploadRetries: maxRetries,
		limiters:         make(map[string]*rate.Limiter),
	}
}

// CreateConfig creates the tenant's single LIS configuration. Pull mode
// requires an endpoint URL; push mode issues a fresh tenant API key.
func (s *LISService) CreateConfig(ctx context.Context, c domain.LISConfig) (domain.LISConfig, error) {
	if c.IntegrationModel == domain.ModelPull && c.APIEndpointURL == "" {
		return domain.LISConfig{}, fmt.Errorf("op=lis.create_config: pull mode requires api_endpoint_url: %w", domain.ErrInvalidArgument)
	}
	if c.IntegrationModel == domain.ModelPush {
		key, err := newOpaqueToken()
		if err != nil {
			return domain.LISConfig{}, err
		}
		c.TenantAPIKey = key
	}
	if _, err := s.Configs.Create(ctx, c); err != nil {
		return domain.LISConfig{}, err
	}
	return s.Configs.GetByTenant(ctx, c.TenantID)
}

// GetConfig loads the tenant's configuration.
func (s *LISService) GetConfig(ctx context.Context, tenantID string) (domain.LISConfig, error) {
	return s.Configs.GetByTenant(ctx, tenantID)
}

// UpdateConfig writes connection-side settings. Switching pull to push
// issues a tenant API key iff none exists yet.
func (s *LISService) UpdateConfig(ctx context.Context, tenantID string, model domain.IntegrationModel, lisType, endpointURL, authCreds string, pullIntervalMinutes int) (domain.LISConfig, error) {
	c, err := s.Configs.GetByTenant(ctx, tenantID)
	if err != nil {
		return domain.LISConfig{}, err
	}
	if model == domain.ModelPull && endpointURL == "" {
		return domain.LISConfig{}, fmt.Errorf("op=lis.update_config: pull mode requires api_endpoint_url: %w", domain.ErrInvalidArgument)
	}
	if model == domain.ModelPush && c.TenantAPIKey == "" {
		key, err := newOpaqueToken()
		if err != nil {
			return domain.LISConfig{}, err
		}
		c.TenantAPIKey = key
	}
	c.IntegrationModel = model
	c.LISType = lisType
	c.APIEndpointURL = endpointURL
	if authCreds != "" {
		c.APIAuthCreds = authCreds
	}
	if pullIntervalMinutes > 0 {
		c.PullIntervalMinutes = pullIntervalMinutes
	}
	if err := s.Configs.Update(ctx, c); err != nil {
		return domain.LISConfig{}, err
	}
	return s.Configs.GetByTenant(ctx, tenantID)
}

// UpdateUploadSettings writes the upload-side settings.
func (s *LISService) UpdateUploadSettings(ctx context.Context, tenantID string, autoUpload, uploadVerified, uploadRejected bool, batchSize, rateLimit int) (domain.LISConfig, error) {
	c, err := s.Configs.GetByTenant(ctx, tenantID)
	if err != nil {
		return domain.LISConfig{}, err
	}
	if batchSize <= 0 || rateLimit <= 0 {
		return domain.LISConfig{}, fmt.Errorf("op=lis.update_upload_settings: batch size and rate limit must be positive: %w", domain.ErrInvalidArgument)
	}
	c.AutoUploadEnabled = autoUpload
	c.UploadVerifiedResults = uploadVerified
	c.UploadRejectedResults = uploadRejected
	c.UploadBatchSize = batchSize
	c.UploadRateLimit = rateLimit
	if err := s.Configs.Update(ctx, c); err != nil {
		return domain.LISConfig{}, err
	}
	// Rate change invalidates the tenant's cached limiter.
	s.mu.Lock()
	delete(s.limiters, tenantID)
	s.mu.Unlock()
	return s.Configs.GetByTenant(ctx, tenantID)
}

// RegenerateAPIKey issues a fresh tenant API key; push mode only.
func (s *LISService) RegenerateAPIKey(ctx context.Context, tenantID string) (domain.LISConfig, error) {
	c, err := s.Configs.GetByTenant(ctx, tenantID)
	if err != nil {
		return domain.LISConfig{}, err
	}
	if c.IntegrationModel != domain.ModelPush {
		return domain.LISConfig{}, fmt.Errorf("op=lis.regenerate_key: key regeneration requires push mode: %w", domain.ErrInvalidArgument)
	}
	key, err := newOpaqueToken()
	if err != nil {
		return domain.LISConfig{}, err
	}
	c.TenantAPIKey = key
	if err := s.Configs.Update(ctx, c); err != nil {
		return domain.LISConfig{}, err
	}
	return s.Configs.GetByTenant(ctx, tenantID)
}

// TestConnection probes the LIS through the adapter and applies the 3-strike
// policy to the connection counters.
func (s *LISService) TestConnection(ctx context.Context, tenantID string) (domain.ConnectionTestResult, error) {
	c, err := s.Configs.GetByTenant(ctx, tenantID)
	if err != nil {
		return domain.ConnectionTestResult{}, err
	}
	res, probeErr := s.Adapter.TestConnection(ctx)
	now := time.Now().UTC()
	c.LastTestedAt = &now
	if probeErr == nil && res.IsConnected {
		c.ConnectionFailureCount = 0
		c.ConnectionStatus = domain.ConnectionActive
	} else {
		c.ConnectionFailureCount++
		if c.ConnectionFailureCount >= domain.FailureThreshold {
			c.ConnectionStatus = domain.ConnectionFailed
		}
		if probeErr != nil {
			res = domain.ConnectionTestResult{IsConnected: false, LastTestedAt: now, ErrorMessage: probeErr.Error()}
		}
	}
	if err := s.Configs.Update(ctx, c); err != nil {
		return domain.ConnectionTestResult{}, err
	}
	return res, nil
}

// PullReport aggregates one pull-ingestion pass.
type PullReport struct {
	SamplesSeen    int
	SamplesCreated int
	ResultsCreated int
}

// Pull ingests new samples and their results from the LIS. Re-retrieval of
// already-ingested entities is a silent no-op; failures feed the 3-strike
// policy and never propagate past the counters.
func (s *LISService) Pull(ctx context.Context, tenantID string) (PullReport, error) {
	c, err := s.Configs.GetByTenant(ctx, tenantID)
	if err != nil {
		return PullReport{}, err
	}
	samples, err := s.Adapter.GetSamples(ctx, c.LastSuccessfulRetrieval)
	if err != nil {
		s.recordPullFailure(ctx, c, err)
		return PullReport{}, fmt.Errorf("op=lis.pull: %w: %w", domain.ErrUpstream, err)
	}

	report := PullReport{SamplesSeen: len(samples)}
	for _, sd := range samples {
		sampleID, created, err := s.upsertSample(ctx, tenantID, sd)
		if err != nil {
			slog.Warn("sample upsert failed", slog.String("external_lis_id", sd.ExternalLISID), slog.Any("error", err))
			continue
		}
		if !created {
			continue
		}
		report.SamplesCreated++
		n, err := s.ingestResults(ctx, tenantID, sampleID, sd.ExternalLISID)
		if err != nil {
			slog.Warn("result ingestion failed", slog.String("external_lis_id", sd.ExternalLISID), slog.Any("error", err))
			continue
		}
		report.ResultsCreated += n
	}

	now := time.Now().UTC()
	c.LastSuccessfulRetrieval = &now
	c.ConnectionFailureCount = 0
	c.ConnectionStatus = domain.ConnectionActive
	if err := s.Configs.Update(ctx, c); err != nil {
		return report, err
	}
	return report, nil
}

func (s *LISService) upsertSample(ctx context.Context, tenantID string, sd domain.SampleData) (string, bool, error) {
	existing, err := s.Samples.GetByExternalLISID(ctx, tenantID, sd.ExternalLISID)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", false, err
	}
	id, err := s.Samples.Create(ctx, domain.Sample{
		TenantID:       tenantID,
		ExternalLISID:  sd.ExternalLISID,
		PatientID:      sd.PatientID,
		SpecimenType:   sd.SpecimenType,
		CollectionDate: sd.CollectionDate,
		ReceivedDate:   sd.ReceivedDate,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Raced with another pull pass.
			existing, gerr := s.Samples.GetByExternalLISID(ctx, tenantID, sd.ExternalLISID)
			if gerr == nil {
				return existing.ID, false, nil
			}
		}
		return "", false, err
	}
	return id, true, nil
}

func (s *LISService) ingestResults(ctx context.Context, tenantID, sampleID, externalLISID string) (int, error) {
	results, err := s.Adapter.GetResults(ctx, externalLISID)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, rd := range results {
		_, err := s.Results.Create(ctx, domain.Result{
			TenantID:            tenantID,
			ExternalLISResultID: rd.ExternalLISResultID,
			SampleID:            sampleID,
			TestCode:            rd.TestCode,
			TestName:            rd.TestName,
			Value:               rd.Value,
			Unit:                rd.Unit,
			ReferenceRangeLow:   rd.ReferenceRangeLow,
			ReferenceRangeHigh:  rd.ReferenceRangeHigh,
			LISFlags:            rd.LISFlags,
		})
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue // already ingested
			}
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *LISService) recordPullFailure(ctx context.Context, c domain.LISConfig, cause error) {
	c.ConnectionFailureCount++
	if c.ConnectionFailureCount >= domain.FailureThreshold {
		c.ConnectionStatus = domain.ConnectionFailed
	}
	if err := s.Configs.Update(ctx, c); err != nil {
		slog.Error("failed to record pull failure", slog.Any("error", err))
	}
	slog.Warn("LIS pull failed",
		slog.String("tenant_id", c.TenantID),
		slog.Int("failure_count", c.ConnectionFailureCount),
		slog.Any("error", cause))
}

// UploadReport aggregates one upload pass.
type UploadReport struct {
	Eligible int
	Sent     int
	Failed   int
}

// Upload ships one batch of upload-eligible results to the LIS, oldest
// first, observing the tenant's results-per-minute rate limit.
func (s *LISService) Upload(ctx context.Context, tenantID string) (UploadReport, error) {
	c, err := s.Configs.GetByTenant(ctx, tenantID)
	if err != nil {
		return UploadReport{}, err
	}
	batch, err := s.Results.ListUploadEligible(ctx, tenantID, c.UploadVerifiedResults, c.UploadRejectedResults, c.UploadBatchSize)
	if err != nil {
		return UploadReport{}, err
	}
	if len(batch) == 0 {
		return UploadReport{}, nil
	}
	lim := s.limiterFor(tenantID, c.UploadRateLimit)
	// A batch wider than the bucket would make WaitN fail outright; ship
	// what the bucket can hold and leave the rest for the next pass.
	if b := lim.Burst(); len(batch) > b {
		batch = batch[:b]
	}
	if err := lim.WaitN(ctx, len(batch)); err != nil {
		return UploadReport{}, fmt.Errorf("op=lis.upload: rate wait: %w", err)
	}

	sampleExt := make(map[string]string)
	payloads := make([]domain.ResultPayload, 0, len(batch))
	for _, r := range batch {
		if r.SampleID != "" {
			if _, ok := sampleExt[r.SampleID]; !ok {
				if smp, err := s.Samples.GetByID(ctx, tenantID, r.SampleID); err == nil {
					sampleExt[r.SampleID] = smp.ExternalLISID
				}
			}
		}
		payloads = append(payloads, domain.ResultPayload{
			ResultID:            r.ID,
			ExternalLISResultID: r.ExternalLISResultID,
			SampleExternalLISID: sampleExt[r.SampleID],
			TestCode:            r.TestCode,
			Value:               r.Value,
			Unit:                r.Unit,
			VerificationStatus:  r.VerificationStatus,
			VerificationMethod:  r.VerificationMethod,
			VerifiedAt:          r.UpdatedAt,
		})
	}

	outcome, sendErr := s.Adapter.SendResults(ctx, payloads)
	now := time.Now().UTC()
	if sendErr != nil {
		// Whole-batch failure: every result in it failed.
		outcome = domain.UploadOutcome{
			TotalFailed:  len(batch),
			ErrorMessage: sendErr.Error(),
		}
		for _, r := range batch {
			outcome.FailedResultIDs = append(outcome.FailedResultIDs, r.ID)
		}
	}

	failedSet := make(map[string]bool, len(outcome.FailedResultIDs))
	for _, id := range outcome.FailedResultIDs {
		failedSet[id] = true
	}
	report := UploadReport{Eligible: len(batch)}
	for _, r := range batch {
		if failedSet[r.ID] {
			r.UploadStatus = domain.UploadFailed
			r.UploadFailureCount++
			r.UploadFailureReason = outcome.ErrorMessage
			if r.UploadFailureReason == "" {
				r.UploadFailureReason = "upload rejected by LIS"
			}
			report.Failed++
		} else {
			r.UploadStatus = domain.UploadSent
			r.SentToLISAt = &now
			r.UploadFailureCount = 0
			r.UploadFailureReason = ""
			report.Sent++
		}
		if err := s.Results.UpdateUpload(ctx, r); err != nil {
			slog.Error("upload status write failed", slog.String("result_id", r.ID), slog.Any("error", err))
		}
	}

	if report.Sent > 0 {
		c.LastSuccessfulUploadAt = &now
	}
	if report.Failed > 0 {
		c.LastUploadFailureAt = &now
		c.UploadFailureCount++
	} else if report.Sent > 0 {
		c.UploadFailureCount = 0
	}
	if err := s.Configs.Update(ctx, c); err != nil {
		return report, err
	}
	slog.Info("upload pass finished",
		slog.String("tenant_id", tenantID),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed))
	if sendErr != nil {
		return report, fmt.Errorf("op=lis.upload: send: %w: %w", domain.ErrUpstream, sendErr)
	}
	return report, nil
}

// RetryFailedUploads reschedules failed uploads back to pending while their
// failure count stays under the retry cap.
func (s *LISService) RetryFailedUploads(ctx context.Context, tenantID string) (int, error) {
	failed, err := s.Results.List(ctx, tenantID, domain.ResultFilter{UploadStatus: domain.UploadFailed})
	if err != nil {
		return 0, err
	}
	rescheduled := 0
	for _, r := range failed {
		if s.MaxUploadRetries > 0 && r.UploadFailureCount > s.MaxUploadRetries {
			continue
		}
		r.UploadStatus = domain.UploadPending
		if err := s.Results.UpdateUpload(ctx, r); err != nil {
			slog.Warn("retry reschedule failed", slog.String("result_id", r.ID), slog.Any("error", err))
			continue
		}
		rescheduled++
	}
	return rescheduled, nil
}

// Acknowledge confirms receipt of uploaded results to the LIS; idempotent.
func (s *LISService) Acknowledge(ctx context.Context, tenantID string, externalLISResultIDs []string) (bool, error) {
	if len(externalLISResultIDs) == 0 {
		return true, nil
	}
	ok, err := s.Adapter.AcknowledgeResults(ctx, externalLISResultIDs)
	if err != nil {
		return false, fmt.Errorf("op=lis.acknowledge: %w: %w", domain.ErrUpstream, err)
	}
	return ok, nil
}

// limiterFor returns the tenant's token bucket: ratePerMinute results/minute
// with a burst of one full minute.
func (s *LISService) limiterFor(tenantID string, ratePerMinute int) *rate.Limiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[tenantID]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute)
	s.limiters[tenantID] = l
	return l
}
