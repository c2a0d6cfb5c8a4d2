package domain

import (
	"fmt"
	"time"
)

// RuleType identifies one of the built-in verification rules.
type RuleType string

const (
	RuleReferenceRange RuleType = "reference_range"
	RuleCriticalRange  RuleType = "critical_range"
	RuleInstrumentFlag RuleType = "instrument_flag"
	RuleDeltaCheck     RuleType = "delta_check"

	// Pseudo-rules reported by batch verification; never persisted as
	// VerificationRule rows.
	RuleSettingsMissing   RuleType = "settings_missing"
	RuleVerificationError RuleType = "verification_error"
)

// KnownRuleTypes enumerates the configurable rule types in default priority
// order.
var KnownRuleTypes = []RuleType{RuleReferenceRange, RuleCriticalRange, RuleInstrumentFlag, RuleDeltaCheck}

// ValidRuleType reports whether t names a configurable rule.
func ValidRuleType(t RuleType) bool {
	for _, k := range KnownRuleTypes {
		if k == t {
			return true
		}
	}
	return false
}

// DefaultDeltaLookbackDays applies when settings omit a lookback window.
const DefaultDeltaLookbackDays = 30

// AutoVerificationSettings is the per-(tenant, test_code) rule
// configuration. At most one row exists per pair.
type AutoVerificationSettings struct {
	ID       string
	TenantID string
	TestCode string

	ReferenceRangeLow  *float64
	ReferenceRangeHigh *float64
	CriticalRangeLow   *float64
	CriticalRangeHigh  *float64

	InstrumentFlagsToBlock []string

	DeltaCheckThresholdPercent *float64
	DeltaCheckLookbackDays     int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the write-time constraints on settings.
func (s AutoVerificationSettings) Validate() error {
	if s.TenantID == "" {
		return fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	if s.TestCode == "" {
		return fmt.Errorf("%w: test_code required", ErrInvalidArgument)
	}
	if s.ReferenceRangeLow != nil && s.ReferenceRangeHigh != nil && *s.ReferenceRangeLow >= *s.ReferenceRangeHigh {
		return fmt.Errorf("%w: reference_range_low must be below reference_range_high", ErrInvalidArgument)
	}
	if s.CriticalRangeLow != nil && s.CriticalRangeHigh != nil && *s.CriticalRangeLow >= *s.CriticalRangeHigh {
		return fmt.Errorf("%w: critical_range_low must be below critical_range_high", ErrInvalidArgument)
	}
	if s.DeltaCheckThresholdPercent != nil && (*s.DeltaCheckThresholdPercent < 0 || *s.DeltaCheckThresholdPercent > 1000) {
		return fmt.Errorf("%w: delta_check_threshold_percent out of range [0,1000]", ErrInvalidArgument)
	}
	if s.DeltaCheckLookbackDays != 0 && (s.DeltaCheckLookbackDays < 1 || s.DeltaCheckLookbackDays > 365) {
		return fmt.Errorf("%w: delta_check_lookback_days out of range [1,365]", ErrInvalidArgument)
	}
	return nil
}

// LookbackDays returns the configured delta lookback window or the default.
func (s AutoVerificationSettings) LookbackDays() int {
	if s.DeltaCheckLookbackDays > 0 {
		return s.DeltaCheckLookbackDays
	}
	return DefaultDeltaLookbackDays
}

// VerificationRule is the per-(tenant, rule_type) enablement record.
type VerificationRule struct {
	ID          string
	TenantID    string
	RuleType    RuleType
	Enabled     bool
	Priority    int
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
