package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/verilab/verilab/internal/domain"
)

type orderRepo struct{ s *Store }

func (r *orderRepo) Create(_ context.Context, o domain.Order) (string, error) {
	if o.TenantID == "" || o.ExternalLISOrderID == "" {
		return "", fmt.Errorf("op=order.create: %w: tenant_id and external_lis_order_id required", domain.ErrInvalidArgument)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.orders {
		if e.TenantID == o.TenantID && e.ExternalLISOrderID == o.ExternalLISOrderID {
			return "", fmt.Errorf("op=order.create external_lis_order_id=%s: %w", o.ExternalLISOrderID, domain.ErrConflict)
		}
	}
	if o.ID == "" {
		o.ID = newID()
	}
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	if o.Priority == "" {
		o.Priority = domain.PriorityRoutine
	}
	o.CreatedAt, o.UpdatedAt = now(), now()
	r.s.orders[o.ID] = o
	return o.ID, nil
}

func (r *orderRepo) GetByID(_ context.Context, tenantID, id string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok || o.TenantID != tenantID {
		return domain.Order{}, fmt.Errorf("op=order.get id=%s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (r *orderRepo) GetByExternalLISOrderID(_ context.Context, tenantID, externalID string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, o := range r.s.orders {
		if o.TenantID == tenantID && o.ExternalLISOrderID == externalID {
			return o, nil
		}
	}
	return domain.Order{}, fmt.Errorf("op=order.get_external id=%s: %w", externalID, domain.ErrNotFound)
}

func (r *orderRepo) List(_ context.Context, tenantID string, f domain.OrderFilter) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Order
	for _, o := range r.s.orders {
		if o.TenantID != tenantID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.PatientID != "" && o.PatientID != f.PatientID {
			continue
		}
		if f.SampleID != "" && o.SampleID != f.SampleID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *orderRepo) Update(_ context.Context, o domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.orders[o.ID]
	if !ok || cur.TenantID != o.TenantID {
		return fmt.Errorf("op=order.update id=%s: %w", o.ID, domain.ErrNotFound)
	}
	cur.Status = o.Status
	cur.AssignedInstrumentID = o.AssignedInstrumentID
	cur.AssignedAt = o.AssignedAt
	cur.CompletedAt = o.CompletedAt
	cur.TestCodes = o.TestCodes
	cur.Priority = o.Priority
	cur.UpdatedAt = now()
	r.s.orders[cur.ID] = cur
	return nil
}

func (r *orderRepo) Delete(_ context.Context, tenantID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.orders[id]
	if !ok || cur.TenantID != tenantID {
		return fmt.Errorf("op=order.delete id=%s: %w", id, domain.ErrNotFound)
	}
	delete(r.s.orders, id)
	return nil
}
