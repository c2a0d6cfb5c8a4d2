package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/verilab/verilab/internal/domain"
)

// SettingsService manages per-test-code auto-verification settings and the
// tenant's rule enablement table.
type SettingsService struct {
	Settings domain.SettingsRepository
	Rules    domain.RuleRepository
}

// NewSettingsService constructs a SettingsService over the given repositories.
func NewSettingsService(settings domain.SettingsRepository, rules domain.RuleRepository) *SettingsService {
	return &SettingsService{Settings: settings, Rules: rules}
}

// Create validates and stores settings for one test code.
func (s *SettingsService) Create(ctx context.Context, st domain.AutoVerificationSettings) (domain.AutoVerificationSettings, error) {
	if _, err := s.Settings.Create(ctx, st); err != nil {
		return domain.AutoVerificationSettings{}, err
	}
	return s.Settings.GetByTestCode(ctx, st.TenantID, st.TestCode)
}

// Get loads settings for one test code.
func (s *SettingsService) Get(ctx context.Context, tenantID, testCode string) (domain.AutoVerificationSettings, error) {
	return s.Settings.GetByTestCode(ctx, tenantID, testCode)
}

// List returns all of a tenant's settings.
func (s *SettingsService) List(ctx context.Context, tenantID string) ([]domain.AutoVerificationSettings, error) {
	return s.Settings.List(ctx, tenantID)
}

// SettingsPatch carries a partial update; nil fields keep the stored value.
type SettingsPatch struct {
	ReferenceRangeLow          *float64
	ReferenceRangeHigh         *float64
	CriticalRangeLow           *float64
	CriticalRangeHigh          *float64
	InstrumentFlagsToBlock     []string
	DeltaCheckThresholdPercent *float64
	DeltaCheckLookbackDays     *int
}

// Update applies a partial update to the stored settings and revalidates.
func (s *SettingsService) Update(ctx context.Context, tenantID, testCode string, p SettingsPatch) (domain.AutoVerificationSettings, error) {
	st, err := s.Settings.GetByTestCode(ctx, tenantID, testCode)
	if err != nil {
		return domain.AutoVerificationSettings{}, err
	}
	if p.ReferenceRangeLow != nil {
		st.ReferenceRangeLow = p.ReferenceRangeLow
	}
	if p.ReferenceRangeHigh != nil {
		st.ReferenceRangeHigh = p.ReferenceRangeHigh
	}
	if p.CriticalRangeLow != nil {
		st.CriticalRangeLow = p.CriticalRangeLow
	}
	if p.CriticalRangeHigh != nil {
		st.CriticalRangeHigh = p.CriticalRangeHigh
	}
	if p.InstrumentFlagsToBlock != nil {
		st.InstrumentFlagsToBlock = p.InstrumentFlagsToBlock
	}
	if p.DeltaCheckThresholdPercent != nil {
		st.DeltaCheckThresholdPercent = p.DeltaCheckThresholdPercent
	}
	if p.DeltaCheckLookbackDays != nil {
		st.DeltaCheckLookbackDays = *p.DeltaCheckLookbackDays
	}
	if err := st.Validate(); err != nil {
		return domain.AutoVerificationSettings{}, err
	}
	if err := s.Settings.Update(ctx, st); err != nil {
		return domain.AutoVerificationSettings{}, err
	}
	return s.Settings.GetByTestCode(ctx, tenantID, testCode)
}

// Delete hard-removes settings for a test code.
func (s *SettingsService) Delete(ctx context.Context, tenantID, testCode string) error {
	return s.Settings.Delete(ctx, tenantID, testCode)
}

// SetRuleEnabled toggles one rule. Unknown rule types are an invalid
// configuration.
func (s *SettingsService) SetRuleEnabled(ctx context.Context, tenantID string, ruleType domain.RuleType, enabled bool) (domain.VerificationRule, error) {
	if !domain.ValidRuleType(ruleType) {
		return domain.VerificationRule{}, fmt.Errorf("op=settings.set_rule: unknown rule type %q: %w", ruleType, domain.ErrInvalidArgument)
	}
	rule, err := s.Rules.GetByType(ctx, tenantID, ruleType)
	if err != nil {
		return domain.VerificationRule{}, err
	}
	rule.Enabled = enabled
	if err := s.Rules.Update(ctx, rule); err != nil {
		return domain.VerificationRule{}, err
	}
	return s.Rules.GetByType(ctx, tenantID, ruleType)
}

// ListRules returns the tenant's rules in priority order.
func (s *SettingsService) ListRules(ctx context.Context, tenantID string) ([]domain.VerificationRule, error) {
	return s.Rules.List(ctx, tenantID)
}

// defaultRules is the seed set for a new tenant: delta_check ships disabled.
var defaultRules = []domain.VerificationRule{
	{RuleType: domain.RuleReferenceRange, Priority: 1, Enabled: true, Description: "value within the configured reference range"},
	{RuleType: domain.RuleCriticalRange, Priority: 2, Enabled: true, Description: "value outside the configured critical range"},
	{RuleType: domain.RuleInstrumentFlag, Priority: 3, Enabled: true, Description: "no blocked instrument flags present"},
	{RuleType: domain.RuleDeltaCheck, Priority: 4, Enabled: false, Description: "change versus prior result under threshold"},
}

// SeedDefaultRules seeds the default rule table for a new tenant. Idempotent:
// when any rules already exist they are returned unchanged.
func (s *SettingsService) SeedDefaultRules(ctx context.Context, tenantID string) ([]domain.VerificationRule, error) {
	existing, err := s.Rules.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}
	for _, r := range defaultRules {
		r.TenantID = tenantID
		if _, err := s.Rules.Create(ctx, r); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue // concurrent seeding
			}
			return nil, err
		}
	}
	slog.Info("default verification rules seeded", slog.String("tenant_id", tenantID))
	return s.Rules.List(ctx, tenantID)
}
