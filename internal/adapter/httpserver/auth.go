package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/verilab/verilab/internal/domain"
)

type identityKey struct{}
type instrumentKey struct{}

// IdentityFrom returns the authenticated caller placed by BearerAuth.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// InstrumentFrom returns the authenticated instrument placed by InstrumentAuth.
func InstrumentFrom(ctx context.Context) (domain.Instrument, bool) {
	i, ok := ctx.Value(instrumentKey{}).(domain.Instrument)
	return i, ok
}

// BearerAuth validates the Authorization bearer token and stores the
// resolved identity on the request context.
func (s *Server) BearerAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				s.writeError(w, r, fmt.Errorf("missing bearer token: %w", domain.ErrUnauthorized), nil)
				return
			}
			ident, err := s.Identity.Authenticate(r.Context(), token)
			if err != nil {
				s.writeError(w, r, err, nil)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey{}, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers below the minimum role with 403.
func (s *Server) RequireRole(min domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := IdentityFrom(r.Context())
			if !ok {
				s.writeError(w, r, fmt.Errorf("no identity: %w", domain.ErrUnauthorized), nil)
				return
			}
			if !ident.Role.AtLeast(min) {
				s.writeError(w, r, fmt.Errorf("requires %s or higher: %w", min, domain.ErrForbidden), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InstrumentAuth resolves the X-Instrument-Token header to an active
// instrument and stores it on the request context.
func (s *Server) InstrumentAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inst, err := s.Instruments.Authenticate(r.Context(), r.Header.Get("X-Instrument-Token"))
			if err != nil {
				s.writeError(w, r, err, nil)
				return
			}
			ctx := context.WithValue(r.Context(), instrumentKey{}, inst)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
