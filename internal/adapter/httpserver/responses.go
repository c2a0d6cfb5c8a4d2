// Package httpserver contains the HTTP handlers and middleware of the
// middleware's REST boundary. It is the single place where domain errors
// become status codes; handlers stay thin and delegate to the services.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/verilab/verilab/internal/domain"
)

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorKind maps a domain error to its wire kind and status.
func errorKind(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument", http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition", http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return "conflict", http.StatusConflict
	case errors.Is(err, domain.ErrImmutable):
		return "immutable", http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden", http.StatusForbidden
	case errors.Is(err, domain.ErrUpstream):
		return "upstream_failure", http.StatusInternalServerError
	default:
		return "internal", http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, _ *http.Request, err error, detail any) {
	kind, status := errorKind(err)
	msg := err.Error()
	// Internal error text never leaves a production deployment.
	if kind == "internal" && s.Cfg.IsProd() {
		msg = http.StatusText(status)
		detail = nil
	}
	writeJSON(w, status, errorEnvelope{Error: kind, Message: msg, Detail: detail})
}
