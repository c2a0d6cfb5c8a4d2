package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	instrmock "github.com/verilab/verilab/internal/adapter/instrument/mock"
	lismock "github.com/verilab/verilab/internal/adapter/lis/mock"
	"github.com/verilab/verilab/internal/adapter/repo/memory"
	"github.com/verilab/verilab/internal/domain"
	"github.com/verilab/verilab/internal/usecase"
)

const tenantID = "tenant-1"

// fixture wires the full service graph over a fresh in-memory store.
type fixture struct {
	store    *memory.Store
	lisMock  *lismock.Adapter
	instMock *instrmock.Adapter

	verify   *usecase.VerificationService
	review   *usecase.ReviewService
	lis      *usecase.LISService
	instr    *usecase.InstrumentService
	settings *usecase.SettingsService
	identity *usecase.IdentityService
}

type fixtureOpts struct {
	autoVerify bool
	deltaCheck bool
	escalation bool
}

func newFixture(t *testing.T, opt fixtureOpts) *fixture {
	t.Helper()
	store := memory.NewStore()
	lm := lismock.New()
	im := instrmock.New()

	verify := usecase.NewVerificationService(
		store.Results(), store.Samples(), store.Settings(), store.Rules(), store.Reviews(),
		opt.autoVerify, opt.deltaCheck)
	settings := usecase.NewSettingsService(store.Settings(), store.Rules())
	f := &fixture{
		store:    store,
		lisMock:  lm,
		instMock: im,
		verify:   verify,
		review:   usecase.NewReviewService(store.Reviews(), store.Decisions(), store.Results(), store.Samples(), opt.escalation),
		lis:      usecase.NewLISService(store.LISConfigs(), store.Samples(), store.Results(), lm, 3),
		instr:    usecase.NewInstrumentService(store.Instruments(), store.InstrumentQueries(), store.Orders(), store.Results(), store.Samples(), verify),
		settings: settings,
		identity: usecase.NewIdentityService(store.Tenants(), store.Users(), settings, "test-secret", time.Hour),
	}
	return f
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t, fixtureOpts{autoVerify: true, deltaCheck: true, escalation: true})
}

func f64(v float64) *float64 { return &v }

// seedGlucose installs settings and the default rule table with delta
// enabled or not: Glucose ref [70,100], crit [40,400], block {C,H},
// threshold 10%.
func (f *fixture) seedGlucose(t *testing.T, deltaEnabled bool) {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.Settings().Create(ctx, domain.AutoVerificationSettings{
		TenantID:                   tenantID,
		TestCode:                   "GLU",
		ReferenceRangeLow:          f64(70),
		ReferenceRangeHigh:         f64(100),
		CriticalRangeLow:           f64(40),
		CriticalRangeHigh:          f64(400),
		InstrumentFlagsToBlock:     []string{"C", "H"},
		DeltaCheckThresholdPercent: f64(10),
	})
	require.NoError(t, err)
	_, err = f.settings.SeedDefaultRules(ctx, tenantID)
	require.NoError(t, err)
	if deltaEnabled {
		_, err = f.settings.SetRuleEnabled(ctx, tenantID, domain.RuleDeltaCheck, true)
		require.NoError(t, err)
	}
}

func (f *fixture) mkSample(t *testing.T, ext string) string {
	t.Helper()
	id, err := f.store.Samples().Create(context.Background(), domain.Sample{
		TenantID:      tenantID,
		ExternalLISID: ext,
		PatientID:     "pat-1",
		SpecimenType:  "serum",
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) mkResult(t *testing.T, sampleID, value, flags string) string {
	t.Helper()
	id, err := f.store.Results().Create(context.Background(), domain.Result{
		TenantID: tenantID,
		SampleID: sampleID,
		TestCode: "GLU",
		TestName: "Glucose",
		Value:    value,
		Unit:     "mg/dL",
		LISFlags: flags,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) result(t *testing.T, id string) domain.Result {
	t.Helper()
	r, err := f.store.Results().GetByID(context.Background(), tenantID, id)
	require.NoError(t, err)
	return r
}

func (f *fixture) sample(t *testing.T, id string) domain.Sample {
	t.Helper()
	s, err := f.store.Samples().GetByID(context.Background(), tenantID, id)
	require.NoError(t, err)
	return s
}
