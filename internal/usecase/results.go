package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/verilab/verilab/internal/domain"
)

// ResultService is the result read/create surface used by the HTTP boundary.
// Results created here run through verification synchronously, the same way
// instrument submissions do.
type ResultService struct {
	Results  domain.ResultRepository
	Samples  domain.SampleRepository
	Verifier *VerificationService
}

// NewResultService constructs a ResultService.
func NewResultService(results domain.ResultRepository, samples domain.SampleRepository, verifier *VerificationService) *ResultService {
	return &ResultService{Results: results, Samples: samples, Verifier: verifier}
}

// Create stores a manually entered result and verifies it synchronously.
func (s *ResultService) Create(ctx context.Context, r domain.Result) (domain.Result, error) {
	if r.TestCode == "" {
		return domain.Result{}, fmt.Errorf("op=result.create: test_code required: %w", domain.ErrInvalidArgument)
	}
	if r.SampleID != "" {
		if _, err := s.Samples.GetByID(ctx, r.TenantID, r.SampleID); err != nil {
			return domain.Result{}, err
		}
	}
	id, err := s.Results.Create(ctx, r)
	if err != nil {
		return domain.Result{}, err
	}
	if s.Verifier != nil {
		if _, err := s.Verifier.VerifyResult(ctx, r.TenantID, id); err != nil {
			slog.Warn("result verification failed", slog.String("result_id", id), slog.Any("error", err))
		}
	}
	return s.Results.GetByID(ctx, r.TenantID, id)
}

// Get loads one result.
func (s *ResultService) Get(ctx context.Context, tenantID, id string) (domain.Result, error) {
	return s.Results.GetByID(ctx, tenantID, id)
}

// List returns results matching the filter, newest first.
func (s *ResultService) List(ctx context.Context, tenantID string, f domain.ResultFilter) ([]domain.Result, error) {
	return s.Results.List(ctx, tenantID, f)
}

// ListBySample returns every result of one sample.
func (s *ResultService) ListBySample(ctx context.Context, tenantID, sampleID string) ([]domain.Result, error) {
	if _, err := s.Samples.GetByID(ctx, tenantID, sampleID); err != nil {
		return nil, err
	}
	return s.Results.ListBySample(ctx, tenantID, sampleID)
}
