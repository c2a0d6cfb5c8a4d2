package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/domain"
)

func TestVerifyResult_HappyPathAutoVerify(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)
	sampleID := f.mkSample(t, "S-1")
	resultID := f.mkResult(t, sampleID, "85", "")

	d, err := f.verify.VerifyResult(context.Background(), tenantID, resultID)
	require.NoError(t, err)
	assert.True(t, d.CanAutoVerify)

	r := f.result(t, resultID)
	assert.Equal(t, domain.VerificationVerified, r.VerificationStatus)
	assert.Equal(t, domain.MethodAuto, r.VerificationMethod)

	_, err = f.store.Reviews().GetBySampleID(context.Background(), tenantID, sampleID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyResult_InstrumentFlagBlocks(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)
	sampleID := f.mkSample(t, "S-1")
	resultID := f.mkResult(t, sampleID, "85", "C")

	d, err := f.verify.VerifyResult(context.Background(), tenantID, resultID)
	require.NoError(t, err)
	assert.False(t, d.CanAutoVerify)
	assert.Equal(t, []domain.RuleType{domain.RuleInstrumentFlag}, d.FailedRules)

	r := f.result(t, resultID)
	assert.Equal(t, domain.VerificationNeedsReview, r.VerificationStatus)
	assert.Empty(t, r.VerificationMethod)

	v, err := f.store.Reviews().GetBySampleID(context.Background(), tenantID, sampleID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewPending, v.State)
	assert.Equal(t, domain.SampleNeedsReview, f.sample(t, sampleID).Status)
}

func TestVerifyResult_DeltaFailure(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, true)
	sampleID := f.mkSample(t, "S-1")

	priorID := f.mkResult(t, sampleID, "100", "")
	require.NoError(t, f.store.Results().UpdateVerification(context.Background(), tenantID, priorID, domain.VerificationVerified, domain.MethodAuto))

	// 88 sits inside the reference range so only the delta rule can fail:
	// |88-100|/100*100 = 12% > 10%.
	currentID := f.mkResult(t, sampleID, "88", "")
	d, err := f.verify.VerifyResult(context.Background(), tenantID, currentID)
	require.NoError(t, err)
	assert.False(t, d.CanAutoVerify)
	assert.Equal(t, []domain.RuleType{domain.RuleDeltaCheck}, d.FailedRules)
	require.Len(t, d.FailureReasons, 1)
	assert.Contains(t, d.FailureReasons[0], "12.0%")
}

func TestVerifyResult_TerminalIsImmutable(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)
	sampleID := f.mkSample(t, "S-1")
	resultID := f.mkResult(t, sampleID, "85", "")

	_, err := f.verify.VerifyResult(context.Background(), tenantID, resultID)
	require.NoError(t, err)
	_, err = f.verify.VerifyResult(context.Background(), tenantID, resultID)
	assert.ErrorIs(t, err, domain.ErrImmutable)
}

func TestVerifyResult_MissingSettingsNeedsReview(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	// Rules exist, settings do not.
	_, err := f.settings.SeedDefaultRules(context.Background(), tenantID)
	require.NoError(t, err)
	sampleID := f.mkSample(t, "S-1")
	resultID := f.mkResult(t, sampleID, "85", "")

	d, err := f.verify.VerifyResult(context.Background(), tenantID, resultID)
	require.NoError(t, err)
	assert.False(t, d.CanAutoVerify)
	assert.Equal(t, []domain.RuleType{domain.RuleSettingsMissing}, d.FailedRules)
	assert.Equal(t, domain.VerificationNeedsReview, f.result(t, resultID).VerificationStatus)
}

func TestVerifyResult_AutoVerifyDisabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOpts{autoVerify: false, deltaCheck: true, escalation: true})
	f.seedGlucose(t, false)
	sampleID := f.mkSample(t, "S-1")
	resultID := f.mkResult(t, sampleID, "85", "")

	d, err := f.verify.VerifyResult(context.Background(), tenantID, resultID)
	require.NoError(t, err)
	assert.False(t, d.CanAutoVerify)
	assert.Equal(t, domain.VerificationNeedsReview, f.result(t, resultID).VerificationStatus)
}

func TestVerifyBatch_Counters(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)
	sampleID := f.mkSample(t, "S-1")
	good := f.mkResult(t, sampleID, "85", "")
	flagged := f.mkResult(t, sampleID, "85", "H")
	terminal := f.mkResult(t, sampleID, "90", "")
	require.NoError(t, f.store.Results().UpdateVerification(context.Background(), tenantID, terminal, domain.VerificationVerified, domain.MethodAuto))

	out, err := f.verify.VerifyBatch(context.Background(), tenantID, []string{good, flagged, terminal, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 4, out.Total)
	assert.Equal(t, 1, out.Verified)
	assert.Equal(t, 1, out.NeedsReview)
	assert.Equal(t, 2, out.Errors)
}

func TestVerifySampleResults_Converges(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)
	sampleID := f.mkSample(t, "S-1")
	f.mkResult(t, sampleID, "85", "")
	f.mkResult(t, sampleID, "92", "")

	out, err := f.verify.VerifySampleResults(context.Background(), tenantID, sampleID)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Verified)
	assert.Zero(t, out.NeedsReview)
	assert.Equal(t, domain.SampleVerified, f.sample(t, sampleID).Status)
}

func TestVerifyBatch_EquivalentToSingleCalls(t *testing.T) {
	t.Parallel()
	single := defaultFixture(t)
	batch := defaultFixture(t)
	for _, f := range []*fixture{single, batch} {
		f.seedGlucose(t, false)
	}

	values := []struct{ value, flags string }{
		{"85", ""}, {"120", ""}, {"85", "C"}, {"abc", ""},
	}
	ctx := context.Background()

	sSample := single.mkSample(t, "S-1")
	bSample := batch.mkSample(t, "S-1")
	var singleStatuses, batchIDs []string
	for _, v := range values {
		id := single.mkResult(t, sSample, v.value, v.flags)
		_, err := single.verify.VerifyResult(ctx, tenantID, id)
		require.NoError(t, err)
		singleStatuses = append(singleStatuses, string(single.result(t, id).VerificationStatus))
		batchIDs = append(batchIDs, batch.mkResult(t, bSample, v.value, v.flags))
	}
	_, err := batch.verify.VerifyBatch(ctx, tenantID, batchIDs)
	require.NoError(t, err)
	for i, id := range batchIDs {
		assert.Equal(t, singleStatuses[i], string(batch.result(t, id).VerificationStatus), "value %q", values[i].value)
	}
}
