// Package repotest holds the repository contract suite. Both repository
// realizations (postgres and in-memory) must pass it unchanged; tests hand
// it a factory for a fresh, empty realization.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/domain"
)

// Repos bundles one realization of every repository port.
type Repos struct {
	Samples     domain.SampleRepository
	Orders      domain.OrderRepository
	Results     domain.ResultRepository
	Reviews     domain.ReviewRepository
	Decisions   domain.DecisionRepository
	Settings    domain.SettingsRepository
	Rules       domain.RuleRepository
	LISConfigs  domain.LISConfigRepository
	Instruments domain.InstrumentRepository
	Queries     domain.InstrumentQueryRepository
	Tenants     domain.TenantRepository
	Users       domain.UserRepository
}

// Factory yields a fresh, empty realization for each subtest.
type Factory func(t *testing.T) Repos

// Run executes the full contract against the given factory.
func Run(t *testing.T, factory Factory) {
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, factory(t)) })
	t.Run("SampleUniqueness", func(t *testing.T) { testSampleUniqueness(t, factory(t)) })
	t.Run("SampleDateValidation", func(t *testing.T) { testSampleDates(t, factory(t)) })
	t.Run("ResultImmutability", func(t *testing.T) { testResultImmutability(t, factory(t)) })
	t.Run("ResultUploadEligibility", func(t *testing.T) { testUploadEligibility(t, factory(t)) })
	t.Run("ResultFindPrior", func(t *testing.T) { testFindPrior(t, factory(t)) })
	t.Run("ReviewUniquePerSample", func(t *testing.T) { testReviewUnique(t, factory(t)) })
	t.Run("ReviewTerminalImmutable", func(t *testing.T) { testReviewTerminal(t, factory(t)) })
	t.Run("ReviewQueueFilters", func(t *testing.T) { testReviewQueue(t, factory(t)) })
	t.Run("SettingsUniquePerTestCode", func(t *testing.T) { testSettingsUnique(t, factory(t)) })
	t.Run("RulesOrderedByPriority", func(t *testing.T) { testRulesOrdered(t, factory(t)) })
	t.Run("LISConfigOnePerTenant", func(t *testing.T) { testLISConfigUnique(t, factory(t)) })
	t.Run("InstrumentTokenGloballyUnique", func(t *testing.T) { testInstrumentToken(t, factory(t)) })
}

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
)

func mkSample(t *testing.T, r Repos, tenant, ext string) string {
	t.Helper()
	id, err := r.Samples.Create(context.Background(), domain.Sample{
		TenantID:      tenant,
		ExternalLISID: ext,
		PatientID:     "pat-1",
		SpecimenType:  "serum",
	})
	require.NoError(t, err)
	return id
}

func mkResult(t *testing.T, r Repos, tenant, sampleID, ext, testCode, value string) string {
	t.Helper()
	id, err := r.Results.Create(context.Background(), domain.Result{
		TenantID:            tenant,
		SampleID:            sampleID,
		ExternalLISResultID: ext,
		TestCode:            testCode,
		Value:               value,
	})
	require.NoError(t, err)
	return id
}

func testTenantIsolation(t *testing.T, r Repos) {
	ctx := context.Background()
	sid := mkSample(t, r, tenantA, "S-1")

	_, err := r.Samples.GetByID(ctx, tenantB, sid)
	assert.ErrorIs(t, err, domain.ErrNotFound, "wrong tenant must read as not found")

	err = r.Samples.Delete(ctx, tenantB, sid)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := r.Samples.List(ctx, tenantB, domain.SampleFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	rid := mkResult(t, r, tenantA, sid, "R-1", "GLU", "85")
	_, err = r.Results.GetByID(ctx, tenantB, rid)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testSampleUniqueness(t *testing.T, r Repos) {
	ctx := context.Background()
	mkSample(t, r, tenantA, "S-1")

	_, err := r.Samples.Create(ctx, domain.Sample{TenantID: tenantA, ExternalLISID: "S-1"})
	assert.ErrorIs(t, err, domain.ErrConflict, "duplicate external id within tenant")

	_, err = r.Samples.Create(ctx, domain.Sample{TenantID: tenantB, ExternalLISID: "S-1"})
	assert.NoError(t, err, "same external id in another tenant is fine")
}

func testSampleDates(t *testing.T, r Repos) {
	ctx := context.Background()
	rec := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	_, err := r.Samples.Create(ctx, domain.Sample{
		TenantID:       tenantA,
		ExternalLISID:  "S-dates",
		CollectionDate: rec.Add(24 * time.Hour),
		ReceivedDate:   rec,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func testResultImmutability(t *testing.T, r Repos) {
	ctx := context.Background()
	sid := mkSample(t, r, tenantA, "S-1")
	rid := mkResult(t, r, tenantA, sid, "R-1", "GLU", "85")

	require.NoError(t, r.Results.UpdateVerification(ctx, tenantA, rid, domain.VerificationVerified, domain.MethodAuto))

	err := r.Results.UpdateVerification(ctx, tenantA, rid, domain.VerificationNeedsReview, "")
	assert.ErrorIs(t, err, domain.ErrImmutable, "verified is terminal")

	// Upload transitions stay open on verification-terminal results.
	got, err := r.Results.GetByID(ctx, tenantA, rid)
	require.NoError(t, err)
	sent := time.Now().UTC()
	got.UploadStatus = domain.UploadSent
	got.SentToLISAt = &sent
	assert.NoError(t, r.Results.UpdateUpload(ctx, got))
}

func testUploadEligibility(t *testing.T, r Repos) {
	ctx := context.Background()
	sid := mkSample(t, r, tenantA, "S-1")

	verified := mkResult(t, r, tenantA, sid, "R-1", "GLU", "85")
	rejected := mkResult(t, r, tenantA, sid, "R-2", "NA", "140")
	pending := mkResult(t, r, tenantA, sid, "R-3", "K", "4.5")
	require.NoError(t, r.Results.UpdateVerification(ctx, tenantA, verified, domain.VerificationVerified, domain.MethodAuto))
	require.NoError(t, r.Results.UpdateVerification(ctx, tenantA, rejected, domain.VerificationRejected, domain.MethodManual))
	_ = pending

	both, err := r.Results.ListUploadEligible(ctx, tenantA, true, true, 0)
	require.NoError(t, err)
	require.Len(t, both, 2)
	assert.True(t, !both[0].CreatedAt.After(both[1].CreatedAt), "oldest first")

	onlyVerified, err := r.Results.ListUploadEligible(ctx, tenantA, true, false, 0)
	require.NoError(t, err)
	require.Len(t, onlyVerified, 1)
	assert.Equal(t, verified, onlyVerified[0].ID)

	// Sent results leave the projection.
	v := onlyVerified[0]
	sent := time.Now().UTC()
	v.UploadStatus = domain.UploadSent
	v.SentToLISAt = &sent
	require.NoError(t, r.Results.UpdateUpload(ctx, v))
	after, err := r.Results.ListUploadEligible(ctx, tenantA, true, true, 0)
	require.NoError(t, err)
	assert.Len(t, after, 1)
}

func testFindPrior(t *testing.T, r Repos) {
	ctx := context.Background()
	sid := mkSample(t, r, tenantA, "S-1")
	old := mkResult(t, r, tenantA, sid, "R-old", "GLU", "100")
	cur := mkResult(t, r, tenantA, sid, "R-cur", "GLU", "120")
	mkResult(t, r, tenantA, sid, "R-other", "NA", "140")

	since := time.Now().UTC().AddDate(0, 0, -30)
	prior, err := r.Results.FindPrior(ctx, tenantA, sid, "GLU", cur, since)
	require.NoError(t, err)
	assert.Equal(t, old, prior.ID, "current result is excluded; same test code only")

	_, err = r.Results.FindPrior(ctx, tenantA, sid, "GLU", cur, time.Now().UTC().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotFound, "window excludes everything")
}

func testReviewUnique(t *testing.T, r Repos) {
	ctx := context.Background()
	sid := mkSample(t, r, tenantA, "S-1")
	_, err := r.Reviews.Create(ctx, domain.Review{TenantID: tenantA, SampleID: sid})
	require.NoError(t, err)
	_, err = r.Reviews.Create(ctx, domain.Review{TenantID: tenantA, SampleID: sid})
	assert.ErrorIs(t, err, domain.ErrConflict, "one review per (tenant, sample)")
}

func testReviewTerminal(t *testing.T, r Repos) {
	ctx := context.Background()
	sid := mkSample(t, r, tenantA, "S-1")
	vid, err := r.Reviews.Create(ctx, domain.Review{TenantID: tenantA, SampleID: sid})
	require.NoError(t, err)

	v, err := r.Reviews.GetByID(ctx, tenantA, vid)
	require.NoError(t, err)
	done := time.Now().UTC()
	v.State = domain.ReviewApproved
	v.Decision = domain.DecisionApproveAll
	v.CompletedAt = &done
	require.NoError(t, r.Reviews.Update(ctx, v))

	v.Comments = "late edit"
	err = r.Reviews.Update(ctx, v)
	assert.ErrorIs(t, err, domain.ErrImmutable)
}

func testReviewQueue(t *testing.T, r Repos) {
	ctx := context.Background()
	s1 := mkSample(t, r, tenantA, "S-1")
	s2 := mkSample(t, r, tenantA, "S-2")
	s3 := mkSample(t, r, tenantA, "S-3")

	id1, err := r.Reviews.Create(ctx, domain.Review{TenantID: tenantA, SampleID: s1, ReviewerUserID: "u1", State: domain.ReviewInProgress})
	require.NoError(t, err)
	id2, err := r.Reviews.Create(ctx, domain.Review{TenantID: tenantA, SampleID: s2})
	require.NoError(t, err)
	id3, err := r.Reviews.Create(ctx, domain.Review{TenantID: tenantA, SampleID: s3, State: domain.ReviewEscalated})
	require.NoError(t, err)

	all, err := r.Reviews.List(ctx, tenantA, domain.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.True(t, !all[i-1].CreatedAt.Before(all[i].CreatedAt), "created_at descending")
	}

	esc, err := r.Reviews.List(ctx, tenantA, domain.ReviewFilter{EscalatedOnly: true})
	require.NoError(t, err)
	require.Len(t, esc, 1)
	assert.Equal(t, id3, esc[0].ID)

	byReviewer, err := r.Reviews.List(ctx, tenantA, domain.ReviewFilter{ReviewerUserID: "u1"})
	require.NoError(t, err)
	require.Len(t, byReviewer, 1)
	assert.Equal(t, id1, byReviewer[0].ID)

	pend, err := r.Reviews.List(ctx, tenantA, domain.ReviewFilter{State: domain.ReviewPending})
	require.NoError(t, err)
	require.Len(t, pend, 1)
	assert.Equal(t, id2, pend[0].ID)
}

func testSettingsUnique(t *testing.T, r Repos) {
	ctx := context.Background()
	low, high := 70.0, 100.0
	_, err := r.Settings.Create(ctx, domain.AutoVerificationSettings{
		TenantID: tenantA, TestCode: "GLU",
		ReferenceRangeLow: &low, ReferenceRangeHigh: &high,
		InstrumentFlagsToBlock: []string{"C", "H"},
	})
	require.NoError(t, err)

	_, err = r.Settings.Create(ctx, domain.AutoVerificationSettings{TenantID: tenantA, TestCode: "GLU"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := r.Settings.GetByTestCode(ctx, tenantA, "GLU")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"C", "H"}, got.InstrumentFlagsToBlock, "flag list round-trips")

	_, err = r.Settings.GetByTestCode(ctx, tenantB, "GLU")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testRulesOrdered(t *testing.T, r Repos) {
	ctx := context.Background()
	for _, rule := range []domain.VerificationRule{
		{TenantID: tenantA, RuleType: domain.RuleDeltaCheck, Priority: 4},
		{TenantID: tenantA, RuleType: domain.RuleReferenceRange, Priority: 1, Enabled: true},
		{TenantID: tenantA, RuleType: domain.RuleInstrumentFlag, Priority: 3, Enabled: true},
		{TenantID: tenantA, RuleType: domain.RuleCriticalRange, Priority: 2, Enabled: true},
	} {
		_, err := r.Rules.Create(ctx, rule)
		require.NoError(t, err)
	}
	rules, err := r.Rules.List(ctx, tenantA)
	require.NoError(t, err)
	require.Len(t, rules, 4)
	for i := 1; i < len(rules); i++ {
		assert.Less(t, rules[i-1].Priority, rules[i].Priority)
	}

	_, err = r.Rules.Create(ctx, domain.VerificationRule{TenantID: tenantA, RuleType: domain.RuleDeltaCheck, Priority: 9})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func testLISConfigUnique(t *testing.T, r Repos) {
	ctx := context.Background()
	_, err := r.LISConfigs.Create(ctx, domain.LISConfig{TenantID: tenantA, LISType: "hl7", IntegrationModel: domain.ModelPull, APIEndpointURL: "https://lis.example"})
	require.NoError(t, err)
	_, err = r.LISConfigs.Create(ctx, domain.LISConfig{TenantID: tenantA, LISType: "hl7", IntegrationModel: domain.ModelPull})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = r.LISConfigs.GetByTenant(ctx, tenantB)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testInstrumentToken(t *testing.T, r Repos) {
	ctx := context.Background()
	_, err := r.Instruments.Create(ctx, domain.Instrument{TenantID: tenantA, Name: "cobas-1", APIToken: "tok-1"})
	require.NoError(t, err)

	_, err = r.Instruments.Create(ctx, domain.Instrument{TenantID: tenantA, Name: "cobas-1", APIToken: "tok-2"})
	assert.ErrorIs(t, err, domain.ErrConflict, "name unique per tenant")

	_, err = r.Instruments.Create(ctx, domain.Instrument{TenantID: tenantB, Name: "cobas-1", APIToken: "tok-1"})
	assert.ErrorIs(t, err, domain.ErrConflict, "token unique across tenants")

	got, err := r.Instruments.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, tenantA, got.TenantID, "token resolves tenant")
}
