// Package verification implements the auto-verification rule engine: a
// prioritized, short-circuiting evaluator that classifies a result as
// auto-verifiable or needing human review. The engine reads settings, rules,
// and prior results; it never writes.
package verification

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/verilab/verilab/internal/domain"
)

// Decision is the engine's verdict for one result.
type Decision struct {
	CanAutoVerify  bool
	FailedRules    []domain.RuleType
	FailureReasons []string
}

func failed(rule domain.RuleType, reason string) Decision {
	return Decision{FailedRules: []domain.RuleType{rule}, FailureReasons: []string{reason}}
}

// PriorFn locates the most recent prior result for (sampleID, testCode)
// created on or after since, excluding excludeID. It returns nil when no
// prior exists. Callers typically back this with ResultRepository.FindPrior.
type PriorFn func(ctx context.Context, tenantID, sampleID, testCode, excludeID string, since time.Time) (*domain.Result, error)

// Engine evaluates enabled rules in ascending priority and short-circuits at
// the first failure.
type Engine struct {
	Prior PriorFn          // nil disables prior lookups; delta passes without one
	Now   func() time.Time // defaults to time.Now
}

// New constructs an Engine with the given prior-result lookup.
func New(prior PriorFn) *Engine { return &Engine{Prior: prior} }

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Verify applies the tenant's enabled rules to one result. Rules arrive
// pre-sorted by the repository; the engine re-sorts defensively only by
// skipping disabled entries in order. Unknown rule types are ignored.
func (e *Engine) Verify(ctx context.Context, r domain.Result, s domain.AutoVerificationSettings, rules []domain.VerificationRule) (Decision, error) {
	for _, rule := range sortRules(rules) {
		if !rule.Enabled {
			continue
		}
		pass, reason, err := e.applyRule(ctx, rule.RuleType, r, s)
		if err != nil {
			return Decision{}, fmt.Errorf("op=engine.verify rule=%s: %w", rule.RuleType, err)
		}
		if !pass {
			return failed(rule.RuleType, reason), nil
		}
	}
	return Decision{CanAutoVerify: true}, nil
}

// VerifyBatch evaluates many results with settings loaded once per test
// code. Results whose test code has no settings fail with the
// settings_missing pseudo-rule; a rule error on one result is isolated to
// that result as verification_error and never corrupts the rest.
func (e *Engine) VerifyBatch(ctx context.Context, results []domain.Result, settingsByCode map[string]domain.AutoVerificationSettings, rules []domain.VerificationRule) map[string]Decision {
	out := make(map[string]Decision, len(results))
	for _, r := range results {
		s, ok := settingsByCode[r.TestCode]
		if !ok {
			out[r.ID] = failed(domain.RuleSettingsMissing, fmt.Sprintf("no auto-verification settings for test code %q", r.TestCode))
			continue
		}
		d, err := e.verifyIsolated(ctx, r, s, rules)
		if err != nil {
			out[r.ID] = failed(domain.RuleVerificationError, err.Error())
			continue
		}
		out[r.ID] = d
	}
	return out
}

// verifyIsolated shields the batch from panics in a single evaluation.
func (e *Engine) verifyIsolated(ctx context.Context, r domain.Result, s domain.AutoVerificationSettings, rules []domain.VerificationRule) (d Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rule evaluation panic: %v", rec)
		}
	}()
	return e.Verify(ctx, r, s, rules)
}

func (e *Engine) applyRule(ctx context.Context, t domain.RuleType, r domain.Result, s domain.AutoVerificationSettings) (bool, string, error) {
	switch t {
	case domain.RuleReferenceRange:
		pass, reason := CheckReferenceRange(r, s)
		return pass, reason, nil
	case domain.RuleCriticalRange:
		pass, reason := CheckCriticalRange(r, s)
		return pass, reason, nil
	case domain.RuleInstrumentFlag:
		pass, reason := CheckInstrumentFlags(r, s)
		return pass, reason, nil
	case domain.RuleDeltaCheck:
		prior, err := e.findPrior(ctx, r, s)
		if err != nil {
			return false, "", err
		}
		pass, reason := CheckDelta(r, s, prior)
		return pass, reason, nil
	default:
		return true, "", nil
	}
}

func (e *Engine) findPrior(ctx context.Context, r domain.Result, s domain.AutoVerificationSettings) (*domain.Result, error) {
	if e.Prior == nil || s.DeltaCheckThresholdPercent == nil {
		return nil, nil
	}
	since := e.now().AddDate(0, 0, -s.LookbackDays())
	return e.Prior(ctx, r.TenantID, r.SampleID, r.TestCode, r.ID, since)
}

func sortRules(rules []domain.VerificationRule) []domain.VerificationRule {
	out := make([]domain.VerificationRule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
