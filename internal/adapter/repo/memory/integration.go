package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/verilab/verilab/internal/domain"
)

type lisConfigRepo struct{ s *Store }

func (r *lisConfigRepo) Create(_ context.Context, c domain.LISConfig) (string, error) {
	if c.TenantID == "" {
		return "", fmt.Errorf("op=lisconfig.create: %w: tenant_id required", domain.ErrInvalidArgument)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.lisConfigs[c.TenantID]; exists {
		return "", fmt.Errorf("op=lisconfig.create tenant=%s: %w", c.TenantID, domain.ErrConflict)
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if c.ConnectionStatus == "" {
		c.ConnectionStatus = domain.ConnectionInactive
	}
	if c.PullIntervalMinutes <= 0 {
		c.PullIntervalMinutes = 5
	}
	if c.UploadBatchSize <= 0 {
		c.UploadBatchSize = 50
	}
	if c.UploadRateLimit <= 0 {
		c.UploadRateLimit = 60
	}
	c.CreatedAt, c.UpdatedAt = now(), now()
	r.s.lisConfigs[c.TenantID] = c
	return c.ID, nil
}

func (r *lisConfigRepo) GetByTenant(_ context.Context, tenantID string) (domain.LISConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.lisConfigs[tenantID]
	if !ok {
		return domain.LISConfig{}, fmt.Errorf("op=lisconfig.get tenant=%s: %w", tenantID, domain.ErrNotFound)
	}
	return c, nil
}

func (r *lisConfigRepo) List(_ context.Context) ([]domain.LISConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.LISConfig, 0, len(r.s.lisConfigs))
	for _, c := range r.s.lisConfigs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (r *lisConfigRepo) Update(_ context.Context, c domain.LISConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.lisConfigs[c.TenantID]
	if !ok {
		return fmt.Errorf("op=lisconfig.update tenant=%s: %w", c.TenantID, domain.ErrNotFound)
	}
	c.ID = cur.ID
	c.CreatedAt = cur.CreatedAt
	c.UpdatedAt = now()
	r.s.lisConfigs[c.TenantID] = c
	return nil
}

type instrumentRepo struct{ s *Store }

func (r *instrumentRepo) Create(_ context.Context, i domain.Instrument) (string, error) {
	if i.TenantID == "" || i.Name == "" || i.APIToken == "" {
		return "", fmt.Errorf("op=instrument.create: %w: tenant_id, name, api_token required", domain.ErrInvalidArgument)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.instruments {
		if e.TenantID == i.TenantID && e.Name == i.Name {
			return "", fmt.Errorf("op=instrument.create name=%s: %w", i.Name, domain.ErrConflict)
		}
		if e.APIToken == i.APIToken {
			return "", fmt.Errorf("op=instrument.create: api_token already in use: %w", domain.ErrConflict)
		}
	}
	if i.ID == "" {
		i.ID = newID()
	}
	if i.Status == "" {
		i.Status = domain.InstrumentInactive
	}
	i.CreatedAt, i.UpdatedAt = now(), now()
	r.s.instruments[i.ID] = i
	return i.ID, nil
}

func (r *instrumentRepo) GetByID(_ context.Context, tenantID, id string) (domain.Instrument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	i, ok := r.s.instruments[id]
	if !ok || i.TenantID != tenantID {
		return domain.Instrument{}, fmt.Errorf("op=instrument.get id=%s: %w", id, domain.ErrNotFound)
	}
	return i, nil
}

func (r *instrumentRepo) GetByToken(_ context.Context, token string) (domain.Instrument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, i := range r.s.instruments {
		if i.APIToken == token {
			return i, nil
		}
	}
	return domain.Instrument{}, fmt.Errorf("op=instrument.get_token: %w", domain.ErrNotFound)
}

func (r *instrumentRepo) List(_ context.Context, tenantID string) ([]domain.Instrument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Instrument
	for _, i := range r.s.instruments {
		if i.TenantID == tenantID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *instrumentRepo) Update(_ context.Context, i domain.Instrument) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.instruments[i.ID]
	if !ok || cur.TenantID != i.TenantID {
		return fmt.Errorf("op=instrument.update id=%s: %w", i.ID, domain.ErrNotFound)
	}
	for _, e := range r.s.instruments {
		if e.ID != i.ID && e.TenantID == i.TenantID && e.Name == i.Name {
			return fmt.Errorf("op=instrument.update name=%s: %w", i.Name, domain.ErrConflict)
		}
		if e.ID != i.ID && e.APIToken == i.APIToken {
			return fmt.Errorf("op=instrument.update: api_token already in use: %w", domain.ErrConflict)
		}
	}
	i.CreatedAt = cur.CreatedAt
	i.UpdatedAt = now()
	r.s.instruments[i.ID] = i
	return nil
}

func (r *instrumentRepo) Delete(_ context.Context, tenantID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.instruments[id]
	if !ok || cur.TenantID != tenantID {
		return fmt.Errorf("op=instrument.delete id=%s: %w", id, domain.ErrNotFound)
	}
	delete(r.s.instruments, id)
	return nil
}

type queryRepo struct{ s *Store }

func (r *queryRepo) Create(_ context.Context, q domain.InstrumentQuery) (string, error) {
	if q.TenantID == "" || q.InstrumentID == "" {
		return "", fmt.Errorf("op=query.create: %w: tenant_id and instrument_id required", domain.ErrInvalidArgument)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if q.ID == "" {
		q.ID = newID()
	}
	q.CreatedAt = now()
	r.s.queries[q.ID] = q
	return q.ID, nil
}

func (r *queryRepo) ListByInstrument(_ context.Context, tenantID, instrumentID string, limit int) ([]domain.InstrumentQuery, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.InstrumentQuery
	for _, q := range r.s.queries {
		if q.TenantID == tenantID && q.InstrumentID == instrumentID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueryTimestamp.After(out[j].QueryTimestamp) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
