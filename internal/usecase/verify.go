// Package usecase holds the domain services: verification orchestration, the
// review workflow, LIS and instrument integration, settings, and identity.
// Services consume repository and adapter ports; the HTTP layer consumes
// services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/verilab/verilab/internal/domain"
	"github.com/verilab/verilab/internal/verification"
)

// BatchOutcome aggregates a batch verification run.
type BatchOutcome struct {
	Total       int
	Verified    int
	NeedsReview int
	Errors      int
}

// VerificationService wraps the rule engine and applies its decisions:
// results that pass every enabled rule become verified/auto, everything else
// lands in needs_review with a review bound to the sample.
type VerificationService struct {
	Results  domain.ResultRepository
	Samples  domain.SampleRepository
	Settings domain.SettingsRepository
	Rules    domain.RuleRepository
	Reviews  domain.ReviewRepository
	Engine   *verification.Engine

	// AutoVerifyEnabled=false routes every result to needs_review without
	// consulting the engine. DeltaCheckEnabled=false drops the delta_check
	// rule from the evaluated set.
	AutoVerifyEnabled bool
	DeltaCheckEnabled bool
}

// NewVerificationService wires the service and its engine over the given
// repositories.
func NewVerificationService(results domain.ResultRepository, samples domain.SampleRepository, settings domain.SettingsRepository, rules domain.RuleRepository, reviews domain.ReviewRepository, autoVerify, deltaCheck bool) *VerificationService {
	s := &VerificationService{
		Results:           results,
		Samples:           samples,
		Settings:          settings,
		Rules:             rules,
		Reviews:           reviews,
		AutoVerifyEnabled: autoVerify,
		DeltaCheckEnabled: deltaCheck,
	}
	s.Engine = verification.New(func(ctx context.Context, tenantID, sampleID, testCode, excludeID string, since time.Time) (*domain.Result, error) {
		prior, err := results.FindPrior(ctx, tenantID, sampleID, testCode, excludeID, since)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &prior, nil
	})
	return s
}

// VerifyResult runs the pipeline for one result. Reverifying a terminal
// result fails with ErrImmutable.
func (s *VerificationService) VerifyResult(ctx context.Context, tenantID, resultID string) (verification.Decision, error) {
	r, err := s.Results.GetByID(ctx, tenantID, resultID)
	if err != nil {
		return verification.Decision{}, err
	}
	if r.VerificationStatus.Terminal() {
		return verification.Decision{}, fmt.Errorf("op=verify.result id=%s: %w", resultID, domain.ErrImmutable)
	}

	d := s.decide(ctx, r)
	if err := s.apply(ctx, r, d); err != nil {
		return verification.Decision{}, err
	}
	return d, nil
}

// VerifyBatch runs the pipeline for many results, loading settings and rules
// once, and returns aggregate counters. A failure on one result is counted
// and never aborts the rest.
func (s *VerificationService) VerifyBatch(ctx context.Context, tenantID string, resultIDs []string) (BatchOutcome, error) {
	out := BatchOutcome{Total: len(resultIDs)}
	var results []domain.Result
	for _, id := range resultIDs {
		r, err := s.Results.GetByID(ctx, tenantID, id)
		if err != nil {
			slog.Warn("batch verify: result load failed", slog.String("result_id", id), slog.Any("error", err))
			out.Errors++
			continue
		}
		if r.VerificationStatus.Terminal() {
			slog.Warn("batch verify: result already terminal", slog.String("result_id", id), slog.String("status", string(r.VerificationStatus)))
			out.Errors++
			continue
		}
		results = append(results, r)
	}
	s.verifyMany(ctx, tenantID, results, &out)
	return out, nil
}

// VerifySampleResults verifies every non-terminal result of a sample. When
// everything ends verified, the sample converges to verified.
func (s *VerificationService) VerifySampleResults(ctx context.Context, tenantID, sampleID string) (BatchOutcome, error) {
	all, err := s.Results.ListBySample(ctx, tenantID, sampleID)
	if err != nil {
		return BatchOutcome{}, err
	}
	var pending []domain.Result
	for _, r := range all {
		if !r.VerificationStatus.Terminal() {
			pending = append(pending, r)
		}
	}
	out := BatchOutcome{Total: len(pending)}
	s.verifyMany(ctx, tenantID, pending, &out)

	if out.Errors == 0 && out.NeedsReview == 0 && out.Total > 0 {
		if err := s.converge(ctx, tenantID, sampleID); err != nil {
			slog.Warn("sample convergence failed", slog.String("sample_id", sampleID), slog.Any("error", err))
		}
	}
	return out, nil
}

func (s *VerificationService) verifyMany(ctx context.Context, tenantID string, results []domain.Result, out *BatchOutcome) {
	if len(results) == 0 {
		return
	}
	settings := make(map[string]domain.AutoVerificationSettings)
	for _, r := range results {
		if _, ok := settings[r.TestCode]; ok {
			continue
		}
		st, err := s.Settings.GetByTestCode(ctx, tenantID, r.TestCode)
		if err == nil {
			settings[r.TestCode] = st
		} else if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("settings load failed", slog.String("test_code", r.TestCode), slog.Any("error", err))
		}
	}
	rules := s.loadRules(ctx, tenantID)

	var decisions map[string]verification.Decision
	if s.AutoVerifyEnabled {
		decisions = s.Engine.VerifyBatch(ctx, results, settings, rules)
	} else {
		decisions = make(map[string]verification.Decision, len(results))
		for _, r := range results {
			decisions[r.ID] = verification.Decision{}
		}
	}

	for _, r := range results {
		if err := s.apply(ctx, r, decisions[r.ID]); err != nil {
			slog.Error("verification apply failed", slog.String("result_id", r.ID), slog.Any("error", err))
			out.Errors++
			continue
		}
		if decisions[r.ID].CanAutoVerify {
			out.Verified++
		} else {
			out.NeedsReview++
		}
	}
}

// decide evaluates one result without writing.
func (s *VerificationService) decide(ctx context.Context, r domain.Result) verification.Decision {
	if !s.AutoVerifyEnabled {
		return verification.Decision{}
	}
	settings := map[string]domain.AutoVerificationSettings{}
	st, err := s.Settings.GetByTestCode(ctx, r.TenantID, r.TestCode)
	if err == nil {
		settings[r.TestCode] = st
	}
	rules := s.loadRules(ctx, r.TenantID)
	return s.Engine.VerifyBatch(ctx, []domain.Result{r}, settings, rules)[r.ID]
}

func (s *VerificationService) loadRules(ctx context.Context, tenantID string) []domain.VerificationRule {
	rules, err := s.Rules.List(ctx, tenantID)
	if err != nil {
		slog.Warn("rule load failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return nil
	}
	if s.DeltaCheckEnabled {
		return rules
	}
	out := rules[:0]
	for _, r := range rules {
		if r.RuleType != domain.RuleDeltaCheck {
			out = append(out, r)
		}
	}
	return out
}

// apply persists the decision and opens a review on needs_review.
func (s *VerificationService) apply(ctx context.Context, r domain.Result, d verification.Decision) error {
	if d.CanAutoVerify {
		slog.Info("result auto-verified", slog.String("result_id", r.ID), slog.String("test_code", r.TestCode))
		return s.Results.UpdateVerification(ctx, r.TenantID, r.ID, domain.VerificationVerified, domain.MethodAuto)
	}
	slog.Info("result needs review",
		slog.String("result_id", r.ID),
		slog.String("test_code", r.TestCode),
		slog.Any("failed_rules", d.FailedRules),
		slog.Any("reasons", d.FailureReasons))
	if err := s.Results.UpdateVerification(ctx, r.TenantID, r.ID, domain.VerificationNeedsReview, ""); err != nil {
		return err
	}
	return s.ensureReview(ctx, r.TenantID, r.SampleID)
}

// ensureReview opens a review for the sample unless one already exists.
func (s *VerificationService) ensureReview(ctx context.Context, tenantID, sampleID string) error {
	if sampleID == "" {
		return nil
	}
	_, err := s.Reviews.GetBySampleID(ctx, tenantID, sampleID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, err := s.Reviews.Create(ctx, domain.Review{TenantID: tenantID, SampleID: sampleID, State: domain.ReviewPending}); err != nil {
		// A concurrent verification may have created it; unique index wins.
		if errors.Is(err, domain.ErrConflict) {
			return nil
		}
		return err
	}
	return s.Samples.UpdateStatus(ctx, tenantID, sampleID, domain.SampleNeedsReview)
}

// converge marks the sample verified once every result is verified.
func (s *VerificationService) converge(ctx context.Context, tenantID, sampleID string) error {
	all, err := s.Results.ListBySample(ctx, tenantID, sampleID)
	if err != nil {
		return err
	}
	for _, r := range all {
		if r.VerificationStatus != domain.VerificationVerified {
			return nil
		}
	}
	return s.Samples.UpdateStatus(ctx, tenantID, sampleID, domain.SampleVerified)
}
