package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/verilab/verilab/internal/config"
	"github.com/verilab/verilab/internal/domain"
	"github.com/verilab/verilab/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg config.Config

	Identity    *usecase.IdentityService
	Samples     *usecase.SampleService
	Results     *usecase.ResultService
	Verify      *usecase.VerificationService
	Review      *usecase.ReviewService
	LIS         *usecase.LISService
	Instruments *usecase.InstrumentService
	Settings    *usecase.SettingsService

	DBCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, identity *usecase.IdentityService, samples *usecase.SampleService, results *usecase.ResultService, verify *usecase.VerificationService, review *usecase.ReviewService, lis *usecase.LISService, instruments *usecase.InstrumentService, settings *usecase.SettingsService, dbCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:         cfg,
		Identity:    identity,
		Samples:     samples,
		Results:     results,
		Verify:      verify,
		Review:      review,
		LIS:         lis,
		Instruments: instruments,
		Settings:    settings,
		DBCheck:     dbCheck,
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// decodeValid decodes a JSON body into v and runs struct validation.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidArgument), nil)
		return false
	}
	if err := getValidator().Struct(v); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
		return false
	}
	return true
}

// mustIdentity returns the caller identity or writes a 401.
func (s *Server) mustIdentity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	ident, ok := IdentityFrom(r.Context())
	if !ok {
		s.writeError(w, r, fmt.Errorf("no identity: %w", domain.ErrUnauthorized), nil)
	}
	return ident, ok
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ReadyzHandler reports dependency readiness.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.DBCheck != nil {
			if err := s.DBCheck(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "db": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
