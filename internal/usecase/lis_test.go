package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/domain"
)

func (f *fixture) pullConfig(t *testing.T) domain.LISConfig {
	t.Helper()
	c, err := f.lis.CreateConfig(context.Background(), domain.LISConfig{
		TenantID:         tenantID,
		LISType:          "generic-rest",
		IntegrationModel: domain.ModelPull,
		APIEndpointURL:   "https://lis.example.test/api",
	})
	require.NoError(t, err)
	return c
}

func TestCreateConfig_PullRequiresEndpoint(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	_, err := f.lis.CreateConfig(context.Background(), domain.LISConfig{
		TenantID:         tenantID,
		IntegrationModel: domain.ModelPull,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCreateConfig_Defaults(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	c := f.pullConfig(t)
	assert.Equal(t, domain.ConnectionInactive, c.ConnectionStatus)
	assert.Equal(t, 5, c.PullIntervalMinutes)
	assert.Equal(t, 50, c.UploadBatchSize)
	assert.Equal(t, 60, c.UploadRateLimit)
	assert.Empty(t, c.TenantAPIKey)
}

func TestCreateConfig_PushIssuesAPIKey(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	c, err := f.lis.CreateConfig(context.Background(), domain.LISConfig{
		TenantID:         tenantID,
		IntegrationModel: domain.ModelPush,
	})
	require.NoError(t, err)
	// 32 random bytes, base64url without padding.
	assert.GreaterOrEqual(t, len(c.TenantAPIKey), 43)
}

func TestRegenerateAPIKey_PushOnly(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	f.pullConfig(t)

	_, err := f.lis.RegenerateAPIKey(ctx, tenantID)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	c, err := f.lis.UpdateConfig(ctx, tenantID, domain.ModelPush, "generic-rest", "", "", 0)
	require.NoError(t, err)
	first := c.TenantAPIKey
	require.NotEmpty(t, first)

	c, err = f.lis.RegenerateAPIKey(ctx, tenantID)
	require.NoError(t, err)
	assert.NotEqual(t, first, c.TenantAPIKey)
}

func TestTestConnection_ThreeStrikes(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	f.pullConfig(t)
	f.lisMock.Connected = false

	for i := 1; i <= 3; i++ {
		res, err := f.lis.TestConnection(ctx, tenantID)
		require.NoError(t, err)
		assert.False(t, res.IsConnected)

		c, err := f.lis.GetConfig(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, i, c.ConnectionFailureCount)
		if i < 3 {
			assert.Equal(t, domain.ConnectionInactive, c.ConnectionStatus)
		} else {
			assert.Equal(t, domain.ConnectionFailed, c.ConnectionStatus)
		}
	}

	// A success resets the counter and reactivates the connection.
	f.lisMock.Connected = true
	res, err := f.lis.TestConnection(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, res.IsConnected)
	c, err := f.lis.GetConfig(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, c.ConnectionFailureCount)
	assert.Equal(t, domain.ConnectionActive, c.ConnectionStatus)
}

func TestPull_IngestsAndIsIdempotent(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	f.pullConfig(t)
	f.lisMock.SamplesQueue = []domain.SampleData{
		{ExternalLISID: "S-1", PatientID: "pat-1", SpecimenType: "serum"},
		{ExternalLISID: "S-2", PatientID: "pat-2", SpecimenType: "serum"},
	}
	f.lisMock.ResultsBySID = map[string][]domain.ResultData{
		"S-1": {
			{ExternalLISResultID: "R-1", TestCode: "GLU", Value: "85", Unit: "mg/dL"},
			{ExternalLISResultID: "R-2", TestCode: "NA", Value: "140", Unit: "mmol/L"},
		},
		"S-2": {
			{ExternalLISResultID: "R-3", TestCode: "GLU", Value: "92", Unit: "mg/dL"},
		},
	}

	rep, err := f.lis.Pull(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.SamplesSeen)
	assert.Equal(t, 2, rep.SamplesCreated)
	assert.Equal(t, 3, rep.ResultsCreated)

	c, err := f.lis.GetConfig(ctx, tenantID)
	require.NoError(t, err)
	assert.NotNil(t, c.LastSuccessfulRetrieval)
	assert.Equal(t, domain.ConnectionActive, c.ConnectionStatus)

	// Re-pulling the same script creates nothing new.
	rep, err = f.lis.Pull(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.SamplesSeen)
	assert.Zero(t, rep.SamplesCreated)
	assert.Zero(t, rep.ResultsCreated)
}

func TestPull_FailureFeedsThreeStrikes(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	f.pullConfig(t)
	f.lisMock.SamplesErr = assert.AnError

	for i := 1; i <= 3; i++ {
		_, err := f.lis.Pull(ctx, tenantID)
		assert.ErrorIs(t, err, domain.ErrUpstream)
	}
	c, err := f.lis.GetConfig(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ConnectionFailureCount)
	assert.Equal(t, domain.ConnectionFailed, c.ConnectionStatus)
}

// uploadFixture seeds a pull config with verified-result uploads on and one
// verified result ready to ship.
func (f *fixture) uploadFixture(t *testing.T) (resultID string) {
	t.Helper()
	ctx := context.Background()
	f.pullConfig(t)
	_, err := f.lis.UpdateUploadSettings(ctx, tenantID, true, true, false, 10, 60)
	require.NoError(t, err)

	f.seedGlucose(t, false)
	sampleID := f.mkSample(t, "S-1")
	resultID = f.mkResult(t, sampleID, "85", "")
	_, err = f.verify.VerifyResult(ctx, tenantID, resultID)
	require.NoError(t, err)
	return resultID
}

func TestUpload_SendsVerifiedAndResetsCounters(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	resultID := f.uploadFixture(t)

	rep, err := f.lis.Upload(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Eligible)
	assert.Equal(t, 1, rep.Sent)
	assert.Zero(t, rep.Failed)

	require.Len(t, f.lisMock.SentBatches, 1)
	require.Len(t, f.lisMock.SentBatches[0], 1)
	assert.Equal(t, "S-1", f.lisMock.SentBatches[0][0].SampleExternalLISID)

	r := f.result(t, resultID)
	assert.Equal(t, domain.UploadSent, r.UploadStatus)
	assert.NotNil(t, r.SentToLISAt)
	assert.Zero(t, r.UploadFailureCount)

	// Nothing left to ship: the next pass is a no-op.
	rep, err = f.lis.Upload(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, rep.Eligible)
}

func TestUpload_RejectedResultsNeedTheFlag(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	f.pullConfig(t)
	_, err := f.lis.UpdateUploadSettings(ctx, tenantID, true, true, false, 10, 60)
	require.NoError(t, err)

	f.seedGlucose(t, false)
	sampleID := f.mkSample(t, "S-1")
	resultID := f.mkResult(t, sampleID, "85", "")
	require.NoError(t, f.store.Results().UpdateVerification(ctx, tenantID, resultID, domain.VerificationRejected, domain.MethodManual))

	rep, err := f.lis.Upload(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, rep.Eligible)

	_, err = f.lis.UpdateUploadSettings(ctx, tenantID, true, true, true, 10, 60)
	require.NoError(t, err)
	rep, err = f.lis.Upload(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
}

func TestUpload_FailureThenRetrySucceeds(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	resultID := f.uploadFixture(t)

	f.lisMock.SendErr = assert.AnError
	rep, err := f.lis.Upload(ctx, tenantID)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, 1, rep.Failed)

	r := f.result(t, resultID)
	assert.Equal(t, domain.UploadFailed, r.UploadStatus)
	assert.Equal(t, 1, r.UploadFailureCount)
	assert.NotEmpty(t, r.UploadFailureReason)

	c, err := f.lis.GetConfig(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UploadFailureCount)
	assert.NotNil(t, c.LastUploadFailureAt)

	n, err := f.lis.RetryFailedUploads(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.UploadPending, f.result(t, resultID).UploadStatus)

	f.lisMock.SendErr = nil
	rep, err = f.lis.Upload(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)

	r = f.result(t, resultID)
	assert.Equal(t, domain.UploadSent, r.UploadStatus)
	assert.Zero(t, r.UploadFailureCount)
	assert.Empty(t, r.UploadFailureReason)

	c, err = f.lis.GetConfig(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, c.UploadFailureCount)
	assert.NotNil(t, c.LastSuccessfulUploadAt)
}

func TestUpload_BatchClampedToRateLimitBurst(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	f.pullConfig(t)
	// Batch size 5 against a bucket holding 2.
	_, err := f.lis.UpdateUploadSettings(ctx, tenantID, true, true, false, 5, 2)
	require.NoError(t, err)

	f.seedGlucose(t, false)
	sampleID := f.mkSample(t, "S-1")
	for i := 0; i < 5; i++ {
		id := f.mkResult(t, sampleID, "85", "")
		_, err := f.verify.VerifyResult(ctx, tenantID, id)
		require.NoError(t, err)
	}

	// The pass ships what the bucket can hold instead of erroring out.
	rep, err := f.lis.Upload(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Eligible)
	assert.Equal(t, 2, rep.Sent)
	assert.Zero(t, rep.Failed)
	require.Len(t, f.lisMock.SentBatches, 1)
	assert.Len(t, f.lisMock.SentBatches[0], 2)

	// The other three stay pending for the next pass.
	left, err := f.store.Results().ListUploadEligible(ctx, tenantID, true, false, 10)
	require.NoError(t, err)
	assert.Len(t, left, 3)
}

func TestRetryFailedUploads_HonorsCap(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	resultID := f.uploadFixture(t)

	r := f.result(t, resultID)
	r.UploadStatus = domain.UploadFailed
	r.UploadFailureCount = 4 // past the cap of 3
	require.NoError(t, f.store.Results().UpdateUpload(ctx, r))

	n, err := f.lis.RetryFailedUploads(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.UploadFailed, f.result(t, resultID).UploadStatus)
}

func TestUpdateUploadSettings_RejectsNonPositive(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.pullConfig(t)
	_, err := f.lis.UpdateUploadSettings(context.Background(), tenantID, true, true, false, 0, 60)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAcknowledge(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()

	ok, err := f.lis.Acknowledge(ctx, tenantID, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.lisMock.AckedIDs)

	ok, err = f.lis.Acknowledge(ctx, tenantID, []string{"R-1", "R-2"})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, f.lisMock.AckedIDs, 1)
	assert.Equal(t, []string{"R-1", "R-2"}, f.lisMock.AckedIDs[0])

	f.lisMock.AckErr = assert.AnError
	_, err = f.lis.Acknowledge(ctx, tenantID, []string{"R-3"})
	assert.ErrorIs(t, err, domain.ErrUpstream)
}
