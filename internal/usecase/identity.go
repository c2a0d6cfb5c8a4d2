package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/verilab/verilab/internal/domain"
)

// IdentityService authenticates users and manages tenants. Tokens are HS256
// JWTs carrying {sub, tenant_id, role, iat, exp}.
type IdentityService struct {
	Tenants domain.TenantRepository
	Users   domain.UserRepository
	// Settings seeds default verification rules for new tenants.
	Settings *SettingsService

	SecretKey     []byte
	TokenLifetime time.Duration
}

// NewIdentityService constructs an IdentityService over the given ports.
func NewIdentityService(tenants domain.TenantRepository, users domain.UserRepository, settings *SettingsService, secretKey string, tokenLifetime time.Duration) *IdentityService {
	return &IdentityService{
		Tenants:       tenants,
		Users:         users,
		Settings:      settings,
		SecretKey:     []byte(secretKey),
		TokenLifetime: tokenLifetime,
	}
}

type accessClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Login exchanges tenant slug, email, and password for an access token. All
// failure modes collapse into ErrUnauthorized so the response does not leak
// which part was wrong.
func (s *IdentityService) Login(ctx context.Context, tenantSlug, email, password string) (string, domain.User, error) {
	tenant, err := s.Tenants.GetBySlug(ctx, tenantSlug)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("op=identity.login: %w", domain.ErrUnauthorized)
	}
	user, err := s.Users.GetByEmail(ctx, tenant.ID, email)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("op=identity.login: %w", domain.ErrUnauthorized)
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return "", domain.User{}, fmt.Errorf("op=identity.login: %w", domain.ErrUnauthorized)
	}
	token, err := s.issueToken(user)
	if err != nil {
		return "", domain.User{}, err
	}
	user.PasswordHash = ""
	return token, user, nil
}

func (s *IdentityService) issueToken(u domain.User) (string, error) {
	now := time.Now().UTC()
	claims := accessClaims{
		TenantID: u.TenantID,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenLifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.SecretKey)
	if err != nil {
		return "", fmt.Errorf("op=identity.issue_token: %w", err)
	}
	return signed, nil
}

// Authenticate validates a bearer token and yields the caller's identity.
func (s *IdentityService) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.SecretKey, nil
	})
	if err != nil || !parsed.Valid {
		return domain.Identity{}, fmt.Errorf("op=identity.authenticate: %w", domain.ErrUnauthorized)
	}
	role := domain.Role(claims.Role)
	if claims.TenantID == "" || claims.Subject == "" || !domain.ValidRole(role) {
		return domain.Identity{}, fmt.Errorf("op=identity.authenticate: malformed claims: %w", domain.ErrUnauthorized)
	}
	return domain.Identity{TenantID: claims.TenantID, UserID: claims.Subject, Role: role}, nil
}

// Me loads the authenticated user's record without its password hash.
func (s *IdentityService) Me(ctx context.Context, ident domain.Identity) (domain.User, error) {
	u, err := s.Users.GetByID(ctx, ident.TenantID, ident.UserID)
	if err != nil {
		return domain.User{}, err
	}
	u.PasswordHash = ""
	return u, nil
}

// CreateUser adds a user to the tenant with an argon2id password hash.
func (s *IdentityService) CreateUser(ctx context.Context, tenantID, email, fullName, password string, role domain.Role) (domain.User, error) {
	if len(password) < 8 {
		return domain.User{}, fmt.Errorf("op=identity.create_user: password must be at least 8 characters: %w", domain.ErrInvalidArgument)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=identity.create_user: %w", err)
	}
	id, err := s.Users.Create(ctx, domain.User{
		TenantID:     tenantID,
		Email:        email,
		FullName:     fullName,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.Users.GetByID(ctx, tenantID, id)
	if err != nil {
		return domain.User{}, err
	}
	u.PasswordHash = ""
	return u, nil
}

// CreateTenantWithAdmin creates a tenant, its first admin user, and the
// default verification rules in one call.
func (s *IdentityService) CreateTenantWithAdmin(ctx context.Context, name, slug, adminEmail, adminFullName, adminPassword string) (domain.Tenant, domain.User, error) {
	if len(adminPassword) < 8 {
		return domain.Tenant{}, domain.User{}, fmt.Errorf("op=identity.create_tenant: password must be at least 8 characters: %w", domain.ErrInvalidArgument)
	}
	tenantID, err := s.Tenants.Create(ctx, domain.Tenant{Name: name, Slug: slug})
	if err != nil {
		return domain.Tenant{}, domain.User{}, err
	}
	admin, err := s.CreateUser(ctx, tenantID, adminEmail, adminFullName, adminPassword, domain.RoleAdmin)
	if err != nil {
		// The tenant row stays; the caller can retry user creation. There is
		// no cross-repository transaction.
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrConflict) {
			return domain.Tenant{}, domain.User{}, err
		}
		return domain.Tenant{}, domain.User{}, fmt.Errorf("op=identity.create_tenant: admin create: %w", err)
	}
	if s.Settings != nil {
		if _, err := s.Settings.SeedDefaultRules(ctx, tenantID); err != nil {
			slog.Warn("default rule seeding failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		}
	}
	tenant, err := s.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return domain.Tenant{}, domain.User{}, err
	}
	return tenant, admin, nil
}
