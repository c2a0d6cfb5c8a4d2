package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/verilab/verilab/internal/domain"
)

// SettingsRepo persists per-test-code auto-verification settings. Blocked
// flags are a JSON array in a text column.
type SettingsRepo struct{ Pool PgxPool }

// NewSettingsRepo constructs a SettingsRepo with the given pool.
func NewSettingsRepo(p PgxPool) *SettingsRepo { return &SettingsRepo{Pool: p} }

const settingsCols = `id, tenant_id, test_code, reference_range_low, reference_range_high,
	critical_range_low, critical_range_high, instrument_flags_to_block,
	delta_check_threshold_percent, delta_check_lookback_days, created_at, updated_at`

func scanSettings(row pgx.Row) (domain.AutoVerificationSettings, error) {
	var s domain.AutoVerificationSettings
	var flags string
	err := row.Scan(&s.ID, &s.TenantID, &s.TestCode, &s.ReferenceRangeLow, &s.ReferenceRangeHigh,
		&s.CriticalRangeLow, &s.CriticalRangeHigh, &flags,
		&s.DeltaCheckThresholdPercent, &s.DeltaCheckLookbackDays, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.AutoVerificationSettings{}, err
	}
	s.InstrumentFlagsToBlock, err = decodeJSONList(flags)
	return s, err
}

// Create inserts settings for a test code and returns the id.
func (r *SettingsRepo) Create(ctx context.Context, s domain.AutoVerificationSettings) (string, error) {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.Create")
	defer span.End()
	if err := s.Validate(); err != nil {
		return "", mapErr("settings.create", err)
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.DeltaCheckLookbackDays == 0 {
		s.DeltaCheckLookbackDays = domain.DefaultDeltaLookbackDays
	}
	flags, err := encodeJSONList(s.InstrumentFlagsToBlock)
	if err != nil {
		return "", mapErr("settings.create", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO auto_verification_settings (id, tenant_id, test_code, reference_range_low, reference_range_high,
		critical_range_low, critical_range_high, instrument_flags_to_block,
		delta_check_threshold_percent, delta_check_lookback_days, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err = r.Pool.Exec(ctx, q, s.ID, s.TenantID, s.TestCode, s.ReferenceRangeLow, s.ReferenceRangeHigh,
		s.CriticalRangeLow, s.CriticalRangeHigh, flags,
		s.DeltaCheckThresholdPercent, s.DeltaCheckLookbackDays, now, now)
	if err != nil {
		return "", mapErr("settings.create", err)
	}
	return s.ID, nil
}

// GetByTestCode loads settings for one test code.
func (r *SettingsRepo) GetByTestCode(ctx context.Context, tenantID, testCode string) (domain.AutoVerificationSettings, error) {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.GetByTestCode")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+settingsCols+` FROM auto_verification_settings
		WHERE test_code=$1 AND tenant_id=$2`, testCode, tenantID)
	s, err := scanSettings(row)
	if err != nil {
		return domain.AutoVerificationSettings{}, mapErr("settings.get", err)
	}
	return s, nil
}

// List returns a tenant's settings ordered by test code.
func (r *SettingsRepo) List(ctx context.Context, tenantID string) ([]domain.AutoVerificationSettings, error) {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.List")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+settingsCols+` FROM auto_verification_settings
		WHERE tenant_id=$1 ORDER BY test_code ASC`, tenantID)
	if err != nil {
		return nil, mapErr("settings.list", err)
	}
	defer rows.Close()
	var out []domain.AutoVerificationSettings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, mapErr("settings.list", err)
		}
		out = append(out, s)
	}
	return out, mapErr("settings.list", rows.Err())
}

// Update overwrites settings for a test code.
func (r *SettingsRepo) Update(ctx context.Context, s domain.AutoVerificationSettings) error {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.Update")
	defer span.End()
	if err := s.Validate(); err != nil {
		return mapErr("settings.update", err)
	}
	flags, err := encodeJSONList(s.InstrumentFlagsToBlock)
	if err != nil {
		return mapErr("settings.update", err)
	}
	q := `UPDATE auto_verification_settings SET reference_range_low=$3, reference_range_high=$4,
		critical_range_low=$5, critical_range_high=$6, instrument_flags_to_block=$7,
		delta_check_threshold_percent=$8, delta_check_lookback_days=$9, updated_at=$10
		WHERE tenant_id=$1 AND test_code=$2`
	tag, err := r.Pool.Exec(ctx, q, s.TenantID, s.TestCode, s.ReferenceRangeLow, s.ReferenceRangeHigh,
		s.CriticalRangeLow, s.CriticalRangeHigh, flags,
		s.DeltaCheckThresholdPercent, s.DeltaCheckLookbackDays, time.Now().UTC())
	return mustAffect("settings.update", tag, err)
}

// Delete hard-removes the settings row.
func (r *SettingsRepo) Delete(ctx context.Context, tenantID, testCode string) error {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM auto_verification_settings WHERE tenant_id=$1 AND test_code=$2`, tenantID, testCode)
	return mustAffect("settings.delete", tag, err)
}

// RuleRepo persists verification rule enablement.
type RuleRepo struct{ Pool PgxPool }

// NewRuleRepo constructs a RuleRepo with the given pool.
func NewRuleRepo(p PgxPool) *RuleRepo { return &RuleRepo{Pool: p} }

const ruleCols = `id, tenant_id, rule_type, enabled, priority, description, created_at, updated_at`

func scanRule(row pgx.Row) (domain.VerificationRule, error) {
	var v domain.VerificationRule
	err := row.Scan(&v.ID, &v.TenantID, &v.RuleType, &v.Enabled, &v.Priority, &v.Description, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// Create inserts a rule row and returns its id.
func (r *RuleRepo) Create(ctx context.Context, v domain.VerificationRule) (string, error) {
	tracer := otel.Tracer("repo.rules")
	ctx, span := tracer.Start(ctx, "rules.Create")
	defer span.End()
	if !domain.ValidRuleType(v.RuleType) {
		return "", mapErr("rule.create", fmt.Errorf("%w: unknown rule type %q", domain.ErrInvalidArgument, v.RuleType))
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO verification_rules (id, tenant_id, rule_type, enabled, priority, description, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.Pool.Exec(ctx, q, v.ID, v.TenantID, v.RuleType, v.Enabled, v.Priority, v.Description, now, now)
	if err != nil {
		return "", mapErr("rule.create", err)
	}
	return v.ID, nil
}

// GetByType loads one rule row.
func (r *RuleRepo) GetByType(ctx context.Context, tenantID string, ruleType domain.RuleType) (domain.VerificationRule, error) {
	tracer := otel.Tracer("repo.rules")
	ctx, span := tracer.Start(ctx, "rules.GetByType")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+ruleCols+` FROM verification_rules WHERE rule_type=$1 AND tenant_id=$2`, ruleType, tenantID)
	v, err := scanRule(row)
	if err != nil {
		return domain.VerificationRule{}, mapErr("rule.get", err)
	}
	return v, nil
}

// List returns a tenant's rules ordered by ascending priority.
func (r *RuleRepo) List(ctx context.Context, tenantID string) ([]domain.VerificationRule, error) {
	tracer := otel.Tracer("repo.rules")
	ctx, span := tracer.Start(ctx, "rules.List")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+ruleCols+` FROM verification_rules
		WHERE tenant_id=$1 ORDER BY priority ASC`, tenantID)
	if err != nil {
		return nil, mapErr("rule.list", err)
	}
	defer rows.Close()
	var out []domain.VerificationRule
	for rows.Next() {
		v, err := scanRule(rows)
		if err != nil {
			return nil, mapErr("rule.list", err)
		}
		out = append(out, v)
	}
	return out, mapErr("rule.list", rows.Err())
}

// Update overwrites a rule's enablement, priority, and description.
func (r *RuleRepo) Update(ctx context.Context, v domain.VerificationRule) error {
	tracer := otel.Tracer("repo.rules")
	ctx, span := tracer.Start(ctx, "rules.Update")
	defer span.End()
	q := `UPDATE verification_rules SET enabled=$3, priority=$4, description=$5, updated_at=$6
		WHERE tenant_id=$1 AND rule_type=$2`
	tag, err := r.Pool.Exec(ctx, q, v.TenantID, v.RuleType, v.Enabled, v.Priority, v.Description, time.Now().UTC())
	return mustAffect("rule.update", tag, err)
}
