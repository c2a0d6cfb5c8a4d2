package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/verilab/verilab/internal/domain"
)

type sampleRepo struct{ s *Store }

func (r *sampleRepo) Create(_ context.Context, smp domain.Sample) (string, error) {
	if err := smp.Validate(); err != nil {
		return "", fmt.Errorf("op=sample.create: %w", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.samples {
		if e.TenantID == smp.TenantID && e.ExternalLISID == smp.ExternalLISID {
			return "", fmt.Errorf("op=sample.create external_lis_id=%s: %w", smp.ExternalLISID, domain.ErrConflict)
		}
	}
	if smp.ID == "" {
		smp.ID = newID()
	}
	if smp.Status == "" {
		smp.Status = domain.SamplePending
	}
	smp.CreatedAt, smp.UpdatedAt = now(), now()
	r.s.samples[smp.ID] = smp
	return smp.ID, nil
}

func (r *sampleRepo) GetByID(_ context.Context, tenantID, id string) (domain.Sample, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	smp, ok := r.s.samples[id]
	if !ok || smp.TenantID != tenantID {
		return domain.Sample{}, fmt.Errorf("op=sample.get id=%s: %w", id, domain.ErrNotFound)
	}
	return smp, nil
}

func (r *sampleRepo) GetByExternalLISID(_ context.Context, tenantID, externalLISID string) (domain.Sample, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, smp := range r.s.samples {
		if smp.TenantID == tenantID && smp.ExternalLISID == externalLISID {
			return smp, nil
		}
	}
	return domain.Sample{}, fmt.Errorf("op=sample.get_external id=%s: %w", externalLISID, domain.ErrNotFound)
}

func (r *sampleRepo) List(_ context.Context, tenantID string, f domain.SampleFilter) ([]domain.Sample, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Sample
	for _, smp := range r.s.samples {
		if smp.TenantID != tenantID {
			continue
		}
		if f.Status != "" && smp.Status != f.Status {
			continue
		}
		if f.PatientID != "" && smp.PatientID != f.PatientID {
			continue
		}
		out = append(out, smp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Offset, f.Limit), nil
}

func (r *sampleRepo) Update(_ context.Context, smp domain.Sample) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.samples[smp.ID]
	if !ok || cur.TenantID != smp.TenantID {
		return fmt.Errorf("op=sample.update id=%s: %w", smp.ID, domain.ErrNotFound)
	}
	// Mutable fields only; identity and creation metadata never move.
	cur.PatientID = smp.PatientID
	cur.SpecimenType = smp.SpecimenType
	cur.CollectionDate = smp.CollectionDate
	cur.ReceivedDate = smp.ReceivedDate
	cur.Status = smp.Status
	cur.UpdatedAt = now()
	r.s.samples[cur.ID] = cur
	return nil
}

func (r *sampleRepo) UpdateStatus(_ context.Context, tenantID, id string, status domain.SampleStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.samples[id]
	if !ok || cur.TenantID != tenantID {
		return fmt.Errorf("op=sample.update_status id=%s: %w", id, domain.ErrNotFound)
	}
	cur.Status = status
	cur.UpdatedAt = now()
	r.s.samples[id] = cur
	return nil
}

func (r *sampleRepo) Delete(_ context.Context, tenantID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.samples[id]
	if !ok || cur.TenantID != tenantID {
		return fmt.Errorf("op=sample.delete id=%s: %w", id, domain.ErrNotFound)
	}
	delete(r.s.samples, id)
	return nil
}

func paginate[T any](in []T, offset, limit int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
