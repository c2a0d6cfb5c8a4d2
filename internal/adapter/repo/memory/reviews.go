package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/verilab/verilab/internal/domain"
)

type reviewRepo struct{ s *Store }

func (r *reviewRepo) Create(_ context.Context, v domain.Review) (string, error) {
	if v.TenantID == "" || v.SampleID == "" {
		return "", fmt.Errorf("op=review.create: %w: tenant_id and sample_id required", domain.ErrInvalidArgument)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.reviews {
		if e.TenantID == v.TenantID && e.SampleID == v.SampleID {
			return "", fmt.Errorf("op=review.create sample=%s: %w", v.SampleID, domain.ErrConflict)
		}
	}
	if v.ID == "" {
		v.ID = newID()
	}
	if v.State == "" {
		v.State = domain.ReviewPending
	}
	v.CreatedAt, v.UpdatedAt = now(), now()
	r.s.reviews[v.ID] = v
	return v.ID, nil
}

func (r *reviewRepo) GetByID(_ context.Context, tenantID, id string) (domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.reviews[id]
	if !ok || v.TenantID != tenantID {
		return domain.Review{}, fmt.Errorf("op=review.get id=%s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

func (r *reviewRepo) GetBySampleID(_ context.Context, tenantID, sampleID string) (domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, v := range r.s.reviews {
		if v.TenantID == tenantID && v.SampleID == sampleID {
			return v, nil
		}
	}
	return domain.Review{}, fmt.Errorf("op=review.get_sample sample=%s: %w", sampleID, domain.ErrNotFound)
}

func (r *reviewRepo) List(_ context.Context, tenantID string, f domain.ReviewFilter) ([]domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Review
	for _, v := range r.s.reviews {
		if v.TenantID != tenantID {
			continue
		}
		if f.State != "" && v.State != f.State {
			continue
		}
		if f.ReviewerUserID != "" && v.ReviewerUserID != f.ReviewerUserID {
			continue
		}
		if f.EscalatedOnly && v.State != domain.ReviewEscalated {
			continue
		}
		if f.CreatedFrom != nil && v.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && v.CreatedAt.After(*f.CreatedTo) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Offset, f.Limit), nil
}

func (r *reviewRepo) Update(_ context.Context, v domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.reviews[v.ID]
	if !ok || cur.TenantID != v.TenantID {
		return fmt.Errorf("op=review.update id=%s: %w", v.ID, domain.ErrNotFound)
	}
	if cur.State.Terminal() {
		return fmt.Errorf("op=review.update id=%s state=%s: review cannot be modified: %w", v.ID, cur.State, domain.ErrImmutable)
	}
	cur.State = v.State
	cur.Decision = v.Decision
	cur.ReviewerUserID = v.ReviewerUserID
	cur.Comments = v.Comments
	cur.EscalationReason = v.EscalationReason
	cur.SubmittedAt = v.SubmittedAt
	cur.CompletedAt = v.CompletedAt
	cur.UpdatedAt = now()
	r.s.reviews[cur.ID] = cur
	return nil
}

type decisionRepo struct{ s *Store }

func (r *decisionRepo) Create(_ context.Context, d domain.ResultDecision) (string, error) {
	if d.TenantID == "" || d.ReviewID == "" || d.ResultID == "" {
		return "", fmt.Errorf("op=decision.create: %w: tenant_id, review_id, result_id required", domain.ErrInvalidArgument)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.ID == "" {
		d.ID = newID()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = now()
	}
	d.CreatedAt = now()
	r.s.decisions[d.ID] = d
	return d.ID, nil
}

func (r *decisionRepo) ListByReview(_ context.Context, tenantID, reviewID string) ([]domain.ResultDecision, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.ResultDecision
	for _, d := range r.s.decisions {
		if d.TenantID == tenantID && d.ReviewID == reviewID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.Before(out[j].DecidedAt) })
	return out, nil
}
