package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lismock "github.com/verilab/verilab/internal/adapter/lis/mock"
	"github.com/verilab/verilab/internal/config"
	"github.com/verilab/verilab/internal/domain"
)

func workerConfig() config.Config {
	return config.Config{
		AppEnv:                 "test",
		SecretKey:              "worker-test-secret",
		TokenLifetime:          time.Hour,
		EnableAutoVerification: true,
		WorkerTimeout:          5 * time.Second,
		RetryMaxRetries:        2,
		RetryInitialDelay:      time.Millisecond,
		RetryMaxDelay:          5 * time.Millisecond,
		RetryMultiplier:        2.0,
	}
}

func TestParseOrigins(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
	assert.Equal(t, []string{"*"}, ParseOrigins(" , , "))
	assert.Equal(t,
		[]string{"https://a.example", "https://b.example"},
		ParseOrigins(" https://a.example, https://b.example "))
}

func TestPullDue(t *testing.T) {
	t.Parallel()
	now := time.Now()
	past := now.Add(-10 * time.Minute)
	recent := now.Add(-time.Minute)

	assert.True(t, pullDue(domain.LISConfig{PullIntervalMinutes: 5}, now), "never pulled")
	assert.True(t, pullDue(domain.LISConfig{PullIntervalMinutes: 5, LastSuccessfulRetrieval: &past}, now))
	assert.False(t, pullDue(domain.LISConfig{PullIntervalMinutes: 5, LastSuccessfulRetrieval: &recent}, now))
}

func TestPullPassIngests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := workerConfig()
	repos := BuildRepos(nil)
	adapter := lismock.New()
	adapter.SamplesQueue = []domain.SampleData{
		{ExternalLISID: "S-1", PatientID: "P-1", SpecimenType: "serum"},
	}
	adapter.ResultsBySID["S-1"] = []domain.ResultData{
		{ExternalLISResultID: "R-1", TestCode: "GLU", Value: "85"},
	}
	svcs := BuildServices(cfg, repos, adapter)

	tenant, _, err := svcs.Identity.CreateTenantWithAdmin(ctx, "Acme", "acme", "a@acme.test", "Admin", "correct horse")
	require.NoError(t, err)
	_, err = svcs.LIS.CreateConfig(ctx, domain.LISConfig{
		TenantID:         tenant.ID,
		LISType:          "epic",
		IntegrationModel: domain.ModelPull,
		APIEndpointURL:   "https://lis.acme.test",
	})
	require.NoError(t, err)

	w := NewWorkers(cfg, svcs.LIS)
	w.pullPass(ctx)

	samples, err := svcs.Samples.List(ctx, tenant.ID, domain.SampleFilter{})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "S-1", samples[0].ExternalLISID)

	results, err := svcs.Results.List(ctx, tenant.ID, domain.ResultFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The retrieval timestamp gates the next pass.
	c, err := svcs.LIS.GetConfig(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, c.LastSuccessfulRetrieval)
	assert.False(t, pullDue(c, time.Now()))

	// A second immediate pass is a no-op.
	w.pullPass(ctx)
	samples, err = svcs.Samples.List(ctx, tenant.ID, domain.SampleFilter{})
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestPullPassSkipsPushTenants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := workerConfig()
	repos := BuildRepos(nil)
	adapter := lismock.New()
	adapter.SamplesQueue = []domain.SampleData{{ExternalLISID: "S-1"}}
	svcs := BuildServices(cfg, repos, adapter)

	tenant, _, err := svcs.Identity.CreateTenantWithAdmin(ctx, "Acme", "acme", "a@acme.test", "Admin", "correct horse")
	require.NoError(t, err)
	_, err = svcs.LIS.CreateConfig(ctx, domain.LISConfig{
		TenantID:         tenant.ID,
		LISType:          "epic",
		IntegrationModel: domain.ModelPush,
	})
	require.NoError(t, err)

	w := NewWorkers(cfg, svcs.LIS)
	w.pullPass(ctx)

	samples, err := svcs.Samples.List(ctx, tenant.ID, domain.SampleFilter{})
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestUploadPassSendsVerified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := workerConfig()
	repos := BuildRepos(nil)
	adapter := lismock.New()
	svcs := BuildServices(cfg, repos, adapter)

	tenant, _, err := svcs.Identity.CreateTenantWithAdmin(ctx, "Acme", "acme", "a@acme.test", "Admin", "correct horse")
	require.NoError(t, err)
	_, err = svcs.LIS.CreateConfig(ctx, domain.LISConfig{
		TenantID:         tenant.ID,
		LISType:          "epic",
		IntegrationModel: domain.ModelPush,
	})
	require.NoError(t, err)
	_, err = svcs.LIS.UpdateUploadSettings(ctx, tenant.ID, true, true, false, 10, 600)
	require.NoError(t, err)

	smp, err := svcs.Samples.Create(ctx, domain.Sample{TenantID: tenant.ID, ExternalLISID: "S-1"})
	require.NoError(t, err)
	// No settings configured, so route the result through manual settings
	// first: create it verified via the settings-backed path.
	_, err = svcs.Settings.Create(ctx, domain.AutoVerificationSettings{
		TenantID: tenant.ID, TestCode: "GLU",
		ReferenceRangeLow: f64(70), ReferenceRangeHigh: f64(100),
	})
	require.NoError(t, err)
	res, err := svcs.Results.Create(ctx, domain.Result{
		TenantID: tenant.ID, SampleID: smp.ID, TestCode: "GLU", Value: "85",
	})
	require.NoError(t, err)
	require.Equal(t, domain.VerificationVerified, res.VerificationStatus)

	w := NewWorkers(cfg, svcs.LIS)
	w.uploadPass(ctx)

	require.Len(t, adapter.SentBatches, 1)
	require.Len(t, adapter.SentBatches[0], 1)
	assert.Equal(t, "S-1", adapter.SentBatches[0][0].SampleExternalLISID)

	got, err := svcs.Results.Get(ctx, tenant.ID, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadSent, got.UploadStatus)

	// Nothing left for the next pass.
	w.uploadPass(ctx)
	assert.Len(t, adapter.SentBatches, 1)
}

func TestUploadPassUpstreamFailureThenRetryLoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := workerConfig()
	repos := BuildRepos(nil)
	adapter := lismock.New()
	svcs := BuildServices(cfg, repos, adapter)

	tenant, _, err := svcs.Identity.CreateTenantWithAdmin(ctx, "Acme", "acme", "a@acme.test", "Admin", "correct horse")
	require.NoError(t, err)
	_, err = svcs.LIS.CreateConfig(ctx, domain.LISConfig{
		TenantID:         tenant.ID,
		LISType:          "epic",
		IntegrationModel: domain.ModelPush,
	})
	require.NoError(t, err)
	_, err = svcs.LIS.UpdateUploadSettings(ctx, tenant.ID, true, true, false, 10, 600)
	require.NoError(t, err)

	smp, err := svcs.Samples.Create(ctx, domain.Sample{TenantID: tenant.ID, ExternalLISID: "S-1"})
	require.NoError(t, err)
	_, err = svcs.Settings.Create(ctx, domain.AutoVerificationSettings{
		TenantID: tenant.ID, TestCode: "GLU",
		ReferenceRangeLow: f64(70), ReferenceRangeHigh: f64(100),
	})
	require.NoError(t, err)
	res, err := svcs.Results.Create(ctx, domain.Result{
		TenantID: tenant.ID, SampleID: smp.ID, TestCode: "GLU", Value: "85",
	})
	require.NoError(t, err)

	// The LIS is down: the batch fails, its results land in upload_failed,
	// and the in-pass backoff retry finds nothing further to ship.
	adapter.SendErr = assert.AnError
	w := NewWorkers(cfg, svcs.LIS)
	w.uploadPass(ctx)

	assert.Len(t, adapter.SentBatches, 1)
	got, err := svcs.Results.Get(ctx, tenant.ID, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadFailed, got.UploadStatus)
	assert.Equal(t, 1, got.UploadFailureCount)

	// Once the LIS recovers, the retry loop reschedules and the next
	// upload pass ships the batch.
	adapter.SendErr = nil
	w.retryPass(ctx)
	w.uploadPass(ctx)

	require.Len(t, adapter.SentBatches, 2)
	got, err = svcs.Results.Get(ctx, tenant.ID, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadSent, got.UploadStatus)
}

func f64(v float64) *float64 { return &v }
