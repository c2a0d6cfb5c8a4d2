package httpserver

import (
	"net/http"

	"github.com/verilab/verilab/internal/domain"
)

type loginRequest struct {
	TenantSlug string `json:"tenant_slug" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
}

// LoginHandler exchanges credentials for an access token.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		token, user, err := s.Identity.Login(r.Context(), req.TenantSlug, req.Email, req.Password)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": token,
			"token_type":   "bearer",
			"user":         toUserDTO(user),
		})
	}
}

// MeHandler returns the authenticated user.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		u, err := s.Identity.Me(r.Context(), ident)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toUserDTO(u))
	}
}

type createTenantRequest struct {
	Name          string `json:"name" validate:"required"`
	Slug          string `json:"slug" validate:"required"`
	AdminEmail    string `json:"admin_email" validate:"required,email"`
	AdminFullName string `json:"admin_full_name" validate:"required"`
	AdminPassword string `json:"admin_password" validate:"required,min=8"`
}

// CreateTenantHandler provisions a tenant with its first admin and the
// default verification rules.
func (s *Server) CreateTenantHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTenantRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		tenant, admin, err := s.Identity.CreateTenantWithAdmin(r.Context(), req.Name, req.Slug, req.AdminEmail, req.AdminFullName, req.AdminPassword)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"tenant": toTenantDTO(tenant),
			"admin":  toUserDTO(admin),
		})
	}
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
}

// CreateUserHandler adds a user to the caller's tenant.
func (s *Server) CreateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req createUserRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		u, err := s.Identity.CreateUser(r.Context(), ident.TenantID, req.Email, req.FullName, req.Password, domain.Role(req.Role))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toUserDTO(u))
	}
}
