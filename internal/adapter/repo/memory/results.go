package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/verilab/verilab/internal/domain"
)

type resultRepo struct{ s *Store }

func (r *resultRepo) Create(_ context.Context, res domain.Result) (string, error) {
	if err := res.Validate(); err != nil {
		return "", fmt.Errorf("op=result.create: %w", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.results {
		if e.TenantID != res.TenantID {
			continue
		}
		if res.ExternalLISResultID != "" && e.ExternalLISResultID == res.ExternalLISResultID {
			return "", fmt.Errorf("op=result.create external_lis_result_id=%s: %w", res.ExternalLISResultID, domain.ErrConflict)
		}
		if res.InstrumentID != "" && res.ExternalInstrumentResultID != "" &&
			e.InstrumentID == res.InstrumentID && e.ExternalInstrumentResultID == res.ExternalInstrumentResultID {
			return "", fmt.Errorf("op=result.create instrument_result_id=%s: %w", res.ExternalInstrumentResultID, domain.ErrConflict)
		}
	}
	if res.ID == "" {
		res.ID = newID()
	}
	if res.VerificationStatus == "" {
		res.VerificationStatus = domain.VerificationPending
	}
	if res.UploadStatus == "" {
		res.UploadStatus = domain.UploadPending
	}
	res.CreatedAt, res.UpdatedAt = now(), now()
	r.s.results[res.ID] = res
	return res.ID, nil
}

func (r *resultRepo) GetByID(_ context.Context, tenantID, id string) (domain.Result, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.results[id]
	if !ok || res.TenantID != tenantID {
		return domain.Result{}, fmt.Errorf("op=result.get id=%s: %w", id, domain.ErrNotFound)
	}
	return res, nil
}

func (r *resultRepo) GetByExternalLISResultID(_ context.Context, tenantID, externalID string) (domain.Result, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, res := range r.s.results {
		if res.TenantID == tenantID && res.ExternalLISResultID == externalID {
			return res, nil
		}
	}
	return domain.Result{}, fmt.Errorf("op=result.get_external id=%s: %w", externalID, domain.ErrNotFound)
}

func (r *resultRepo) GetByInstrumentResultID(_ context.Context, tenantID, instrumentID, externalID string) (domain.Result, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, res := range r.s.results {
		if res.TenantID == tenantID && res.InstrumentID == instrumentID && res.ExternalInstrumentResultID == externalID {
			return res, nil
		}
	}
	return domain.Result{}, fmt.Errorf("op=result.get_instrument id=%s: %w", externalID, domain.ErrNotFound)
}

func (r *resultRepo) List(_ context.Context, tenantID string, f domain.ResultFilter) ([]domain.Result, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Result
	for _, res := range r.s.results {
		if res.TenantID != tenantID {
			continue
		}
		if f.VerificationStatus != "" && res.VerificationStatus != f.VerificationStatus {
			continue
		}
		if f.UploadStatus != "" && res.UploadStatus != f.UploadStatus {
			continue
		}
		if f.SampleID != "" && res.SampleID != f.SampleID {
			continue
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Offset, f.Limit), nil
}

func (r *resultRepo) ListBySample(ctx context.Context, tenantID, sampleID string) ([]domain.Result, error) {
	return r.List(ctx, tenantID, domain.ResultFilter{SampleID: sampleID})
}

func (r *resultRepo) ListUploadEligible(_ context.Context, tenantID string, includeVerified, includeRejected bool, limit int) ([]domain.Result, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Result
	for _, res := range r.s.results {
		if res.TenantID != tenantID || res.UploadStatus != domain.UploadPending {
			continue
		}
		if (includeVerified && res.VerificationStatus == domain.VerificationVerified) ||
			(includeRejected && res.VerificationStatus == domain.VerificationRejected) {
			out = append(out, res)
		}
	}
	// FIFO by created_at: oldest results upload first.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *resultRepo) FindPrior(_ context.Context, tenantID, sampleID, testCode, excludeID string, since time.Time) (domain.Result, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var best *domain.Result
	for _, res := range r.s.results {
		if res.TenantID != tenantID || res.SampleID != sampleID || res.TestCode != testCode || res.ID == excludeID {
			continue
		}
		if res.CreatedAt.Before(since) {
			continue
		}
		res := res
		if best == nil || res.CreatedAt.After(best.CreatedAt) {
			best = &res
		}
	}
	if best == nil {
		return domain.Result{}, fmt.Errorf("op=result.find_prior sample=%s test=%s: %w", sampleID, testCode, domain.ErrNotFound)
	}
	return *best, nil
}

func (r *resultRepo) UpdateVerification(_ context.Context, tenantID, id string, status domain.VerificationStatus, method domain.VerificationMethod) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.results[id]
	if !ok || cur.TenantID != tenantID {
		return fmt.Errorf("op=result.update_verification id=%s: %w", id, domain.ErrNotFound)
	}
	if cur.VerificationStatus.Terminal() {
		return fmt.Errorf("op=result.update_verification id=%s status=%s: %w", id, cur.VerificationStatus, domain.ErrImmutable)
	}
	cur.VerificationStatus = status
	cur.VerificationMethod = method
	cur.UpdatedAt = now()
	r.s.results[id] = cur
	return nil
}

func (r *resultRepo) UpdateUpload(_ context.Context, res domain.Result) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.results[res.ID]
	if !ok || cur.TenantID != res.TenantID {
		return fmt.Errorf("op=result.update_upload id=%s: %w", res.ID, domain.ErrNotFound)
	}
	// Upload transitions stay open on verification-terminal results.
	cur.UploadStatus = res.UploadStatus
	cur.UploadFailureCount = res.UploadFailureCount
	cur.UploadFailureReason = res.UploadFailureReason
	cur.SentToLISAt = res.SentToLISAt
	cur.UpdatedAt = now()
	r.s.results[cur.ID] = cur
	return nil
}
