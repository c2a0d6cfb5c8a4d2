package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/verilab/verilab/internal/domain"
)

// TenantRepo persists tenants. Slug is globally unique.
type TenantRepo struct{ Pool PgxPool }

// NewTenantRepo constructs a TenantRepo with the given pool.
func NewTenantRepo(p PgxPool) *TenantRepo { return &TenantRepo{Pool: p} }

// Create inserts a tenant and returns its id.
func (r *TenantRepo) Create(ctx context.Context, t domain.Tenant) (string, error) {
	tracer := otel.Tracer("repo.tenants")
	ctx, span := tracer.Start(ctx, "tenants.Create")
	defer span.End()
	if t.Name == "" || t.Slug == "" {
		return "", mapErr("tenant.create", fmt.Errorf("%w: name and slug required", domain.ErrInvalidArgument))
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := r.Pool.Exec(ctx, `INSERT INTO tenants (id, name, slug, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)`, t.ID, t.Name, strings.ToLower(t.Slug), now, now)
	if err != nil {
		return "", mapErr("tenant.create", err)
	}
	return t.ID, nil
}

// GetByID loads a tenant.
func (r *TenantRepo) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	tracer := otel.Tracer("repo.tenants")
	ctx, span := tracer.Start(ctx, "tenants.GetByID")
	defer span.End()
	var t domain.Tenant
	row := r.Pool.QueryRow(ctx, `SELECT id, name, slug, created_at, updated_at FROM tenants WHERE id=$1`, id)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Tenant{}, mapErr("tenant.get", err)
	}
	return t, nil
}

// GetBySlug loads a tenant by its slug.
func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	tracer := otel.Tracer("repo.tenants")
	ctx, span := tracer.Start(ctx, "tenants.GetBySlug")
	defer span.End()
	var t domain.Tenant
	row := r.Pool.QueryRow(ctx, `SELECT id, name, slug, created_at, updated_at FROM tenants WHERE slug=$1`, strings.ToLower(slug))
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Tenant{}, mapErr("tenant.get_slug", err)
	}
	return t, nil
}

// UserRepo persists users. Email is unique per tenant and stored lowercased.
type UserRepo struct{ Pool PgxPool }

// NewUserRepo constructs a UserRepo with the given pool.
func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

const userCols = `id, tenant_id, email, full_name, role, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Create inserts a user and returns its id.
func (r *UserRepo) Create(ctx context.Context, u domain.User) (string, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.Create")
	defer span.End()
	if err := u.Validate(); err != nil {
		return "", mapErr("user.create", err)
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO users (id, tenant_id, email, full_name, role, password_hash, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.Pool.Exec(ctx, q, u.ID, u.TenantID, strings.ToLower(u.Email), u.FullName, u.Role, u.PasswordHash, now, now)
	if err != nil {
		return "", mapErr("user.create", err)
	}
	return u.ID, nil
}

// GetByID loads a user scoped by tenant.
func (r *UserRepo) GetByID(ctx context.Context, tenantID, id string) (domain.User, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.GetByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapErr("user.get", err)
	}
	return u, nil
}

// GetByEmail loads a user by email within a tenant, case-insensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, tenantID, email string) (domain.User, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.GetByEmail")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email=$1 AND tenant_id=$2`, strings.ToLower(email), tenantID)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapErr("user.get_email", err)
	}
	return u, nil
}
