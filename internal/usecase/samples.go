package usecase

import (
	"context"
	"fmt"

	"github.com/verilab/verilab/internal/domain"
)

// SampleService is the thin CRUD surface over the sample repository used by
// the HTTP boundary. Lifecycle transitions happen in the verification and
// review services; this one only validates and delegates.
type SampleService struct {
	Samples domain.SampleRepository
}

// NewSampleService constructs a SampleService.
func NewSampleService(samples domain.SampleRepository) *SampleService {
	return &SampleService{Samples: samples}
}

// Create registers a sample received outside the LIS pull path.
func (s *SampleService) Create(ctx context.Context, smp domain.Sample) (domain.Sample, error) {
	if smp.ExternalLISID == "" {
		return domain.Sample{}, fmt.Errorf("op=sample.create: external_lis_id required: %w", domain.ErrInvalidArgument)
	}
	id, err := s.Samples.Create(ctx, smp)
	if err != nil {
		return domain.Sample{}, err
	}
	return s.Samples.GetByID(ctx, smp.TenantID, id)
}

// Get loads one sample.
func (s *SampleService) Get(ctx context.Context, tenantID, id string) (domain.Sample, error) {
	return s.Samples.GetByID(ctx, tenantID, id)
}

// List returns samples matching the filter, newest first.
func (s *SampleService) List(ctx context.Context, tenantID string, f domain.SampleFilter) ([]domain.Sample, error) {
	return s.Samples.List(ctx, tenantID, f)
}

// Update writes patient and specimen fields. Status is owned by the
// verification and review flows and is not writable here.
func (s *SampleService) Update(ctx context.Context, tenantID, id, patientID, specimenType string) (domain.Sample, error) {
	smp, err := s.Samples.GetByID(ctx, tenantID, id)
	if err != nil {
		return domain.Sample{}, err
	}
	if patientID != "" {
		smp.PatientID = patientID
	}
	if specimenType != "" {
		smp.SpecimenType = specimenType
	}
	if err := s.Samples.Update(ctx, smp); err != nil {
		return domain.Sample{}, err
	}
	return s.Samples.GetByID(ctx, tenantID, id)
}

// Delete removes a sample.
func (s *SampleService) Delete(ctx context.Context, tenantID, id string) error {
	return s.Samples.Delete(ctx, tenantID, id)
}
