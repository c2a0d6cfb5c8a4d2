package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/verilab/verilab/internal/domain"
)

type tenantRepo struct{ s *Store }

func (r *tenantRepo) Create(_ context.Context, t domain.Tenant) (string, error) {
	if t.Name == "" || t.Slug == "" {
		return "", fmt.Errorf("op=tenant.create: %w: name and slug required", domain.ErrInvalidArgument)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.tenants {
		if e.Slug == t.Slug {
			return "", fmt.Errorf("op=tenant.create slug=%s: %w", t.Slug, domain.ErrConflict)
		}
	}
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt, t.UpdatedAt = now(), now()
	r.s.tenants[t.ID] = t
	return t.ID, nil
}

func (r *tenantRepo) GetByID(_ context.Context, id string) (domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return domain.Tenant{}, fmt.Errorf("op=tenant.get id=%s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

func (r *tenantRepo) GetBySlug(_ context.Context, slug string) (domain.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return domain.Tenant{}, fmt.Errorf("op=tenant.get_slug slug=%s: %w", slug, domain.ErrNotFound)
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, u domain.User) (string, error) {
	if err := u.Validate(); err != nil {
		return "", fmt.Errorf("op=user.create: %w", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.users {
		if e.TenantID == u.TenantID && strings.EqualFold(e.Email, u.Email) {
			return "", fmt.Errorf("op=user.create email=%s: %w", u.Email, domain.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = newID()
	}
	u.CreatedAt, u.UpdatedAt = now(), now()
	r.s.users[u.ID] = u
	return u.ID, nil
}

func (r *userRepo) GetByID(_ context.Context, tenantID, id string) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok || u.TenantID != tenantID {
		return domain.User{}, fmt.Errorf("op=user.get id=%s: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

func (r *userRepo) GetByEmail(_ context.Context, tenantID, email string) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("op=user.get_email email=%s: %w", email, domain.ErrNotFound)
}
