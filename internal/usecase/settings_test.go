package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/domain"
	"github.com/verilab/verilab/internal/usecase"
)

func TestSettingsUpdate_PartialKeepsOtherFields(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)
	ctx := context.Background()

	st, err := f.settings.Update(ctx, tenantID, "GLU", usecase.SettingsPatch{
		ReferenceRangeHigh: f64(110),
	})
	require.NoError(t, err)
	assert.Equal(t, 110.0, *st.ReferenceRangeHigh)
	assert.Equal(t, 70.0, *st.ReferenceRangeLow)
	assert.Equal(t, []string{"C", "H"}, st.InstrumentFlagsToBlock)
	assert.Equal(t, 10.0, *st.DeltaCheckThresholdPercent)
}

func TestSettingsUpdate_RevalidatesRanges(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)

	// Lowering the high bound under the low bound is rejected.
	_, err := f.settings.Update(context.Background(), tenantID, "GLU", usecase.SettingsPatch{
		ReferenceRangeHigh: f64(50),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSettingsUpdate_ClearFlagsWithEmptySlice(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)

	st, err := f.settings.Update(context.Background(), tenantID, "GLU", usecase.SettingsPatch{
		InstrumentFlagsToBlock: []string{},
	})
	require.NoError(t, err)
	assert.Empty(t, st.InstrumentFlagsToBlock)
}

func TestSettingsCreate_DuplicateTestCodeConflicts(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)

	_, err := f.settings.Create(context.Background(), domain.AutoVerificationSettings{
		TenantID: tenantID,
		TestCode: "GLU",
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSetRuleEnabled_UnknownTypeRejected(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)

	_, err := f.settings.SetRuleEnabled(context.Background(), tenantID, "sigma_check", true)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSeedDefaultRules_Idempotent(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()

	rules, err := f.settings.SeedDefaultRules(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, rules, 4)
	byType := make(map[domain.RuleType]domain.VerificationRule, len(rules))
	for _, r := range rules {
		byType[r.RuleType] = r
	}
	assert.True(t, byType[domain.RuleReferenceRange].Enabled)
	assert.Equal(t, 1, byType[domain.RuleReferenceRange].Priority)
	assert.True(t, byType[domain.RuleCriticalRange].Enabled)
	assert.True(t, byType[domain.RuleInstrumentFlag].Enabled)
	assert.False(t, byType[domain.RuleDeltaCheck].Enabled)
	assert.Equal(t, 4, byType[domain.RuleDeltaCheck].Priority)

	// A toggle survives re-seeding.
	_, err = f.settings.SetRuleEnabled(ctx, tenantID, domain.RuleDeltaCheck, true)
	require.NoError(t, err)
	rules, err = f.settings.SeedDefaultRules(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, rules, 4)
	for _, r := range rules {
		if r.RuleType == domain.RuleDeltaCheck {
			assert.True(t, r.Enabled)
		}
	}
}

func TestListRules_PriorityOrder(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	ctx := context.Background()
	_, err := f.settings.SeedDefaultRules(ctx, tenantID)
	require.NoError(t, err)

	rules, err := f.settings.ListRules(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, rules, 4)
	for i := 1; i < len(rules); i++ {
		assert.Less(t, rules[i-1].Priority, rules[i].Priority)
	}
}

func TestSettingsDelete(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedGlucose(t, false)
	ctx := context.Background()

	require.NoError(t, f.settings.Delete(ctx, tenantID, "GLU"))
	_, err := f.settings.Get(ctx, tenantID, "GLU")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.settings.Delete(ctx, tenantID, "GLU"), domain.ErrNotFound)
}
