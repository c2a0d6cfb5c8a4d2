package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/verilab/verilab/internal/domain"
)

type settingsRepo struct{ s *Store }

func (r *settingsRepo) Create(_ context.Context, st domain.AutoVerificationSettings) (string, error) {
	if err := st.Validate(); err != nil {
		return "", fmt.Errorf("op=settings.create: %w", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.settings {
		if e.TenantID == st.TenantID && e.TestCode == st.TestCode {
			return "", fmt.Errorf("op=settings.create test_code=%s: %w", st.TestCode, domain.ErrConflict)
		}
	}
	if st.ID == "" {
		st.ID = newID()
	}
	st.CreatedAt, st.UpdatedAt = now(), now()
	r.s.settings[st.ID] = st
	return st.ID, nil
}

func (r *settingsRepo) GetByTestCode(_ context.Context, tenantID, testCode string) (domain.AutoVerificationSettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, st := range r.s.settings {
		if st.TenantID == tenantID && st.TestCode == testCode {
			return st, nil
		}
	}
	return domain.AutoVerificationSettings{}, fmt.Errorf("op=settings.get test_code=%s: %w", testCode, domain.ErrNotFound)
}

func (r *settingsRepo) List(_ context.Context, tenantID string) ([]domain.AutoVerificationSettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.AutoVerificationSettings
	for _, st := range r.s.settings {
		if st.TenantID == tenantID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestCode < out[j].TestCode })
	return out, nil
}

func (r *settingsRepo) Update(_ context.Context, st domain.AutoVerificationSettings) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("op=settings.update: %w", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, e := range r.s.settings {
		if e.TenantID == st.TenantID && e.TestCode == st.TestCode {
			st.ID = id
			st.CreatedAt = e.CreatedAt
			st.UpdatedAt = now()
			r.s.settings[id] = st
			return nil
		}
	}
	return fmt.Errorf("op=settings.update test_code=%s: %w", st.TestCode, domain.ErrNotFound)
}

func (r *settingsRepo) Delete(_ context.Context, tenantID, testCode string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, e := range r.s.settings {
		if e.TenantID == tenantID && e.TestCode == testCode {
			delete(r.s.settings, id)
			return nil
		}
	}
	return fmt.Errorf("op=settings.delete test_code=%s: %w", testCode, domain.ErrNotFound)
}

type ruleRepo struct{ s *Store }

func (r *ruleRepo) Create(_ context.Context, rule domain.VerificationRule) (string, error) {
	if !domain.ValidRuleType(rule.RuleType) {
		return "", fmt.Errorf("op=rule.create rule_type=%s: %w", rule.RuleType, domain.ErrInvalidArgument)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.rules {
		if e.TenantID == rule.TenantID && e.RuleType == rule.RuleType {
			return "", fmt.Errorf("op=rule.create rule_type=%s: %w", rule.RuleType, domain.ErrConflict)
		}
	}
	if rule.ID == "" {
		rule.ID = newID()
	}
	rule.CreatedAt, rule.UpdatedAt = now(), now()
	r.s.rules[rule.ID] = rule
	return rule.ID, nil
}

func (r *ruleRepo) GetByType(_ context.Context, tenantID string, ruleType domain.RuleType) (domain.VerificationRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rule := range r.s.rules {
		if rule.TenantID == tenantID && rule.RuleType == ruleType {
			return rule, nil
		}
	}
	return domain.VerificationRule{}, fmt.Errorf("op=rule.get rule_type=%s: %w", ruleType, domain.ErrNotFound)
}

func (r *ruleRepo) List(_ context.Context, tenantID string) ([]domain.VerificationRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.VerificationRule
	for _, rule := range r.s.rules {
		if rule.TenantID == tenantID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *ruleRepo) Update(_ context.Context, rule domain.VerificationRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, e := range r.s.rules {
		if e.TenantID == rule.TenantID && e.RuleType == rule.RuleType {
			rule.ID = id
			rule.CreatedAt = e.CreatedAt
			rule.UpdatedAt = now()
			r.s.rules[id] = rule
			return nil
		}
	}
	return fmt.Errorf("op=rule.update rule_type=%s: %w", rule.RuleType, domain.ErrNotFound)
}
