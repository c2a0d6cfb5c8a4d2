package httpserver

import (
	"net/http"
	"time"

	"github.com/verilab/verilab/internal/domain"
)

type lisConfigRequest struct {
	LISType             string `json:"lis_type" validate:"required"`
	IntegrationModel    string `json:"integration_model" validate:"required,oneof=push pull"`
	APIEndpointURL      string `json:"api_endpoint_url"`
	APIAuthCreds        string `json:"api_auth_credentials"`
	PullIntervalMinutes int    `json:"pull_interval_minutes" validate:"omitempty,min=1"`
}

// CreateLISConfigHandler creates the tenant's single LIS configuration.
func (s *Server) CreateLISConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req lisConfigRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		c, err := s.LIS.CreateConfig(r.Context(), domain.LISConfig{
			TenantID:            ident.TenantID,
			LISType:             req.LISType,
			IntegrationModel:    domain.IntegrationModel(req.IntegrationModel),
			APIEndpointURL:      req.APIEndpointURL,
			APIAuthCreds:        req.APIAuthCreds,
			PullIntervalMinutes: req.PullIntervalMinutes,
		})
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toLISConfigDTO(c))
	}
}

// GetLISConfigHandler returns the tenant's configuration.
func (s *Server) GetLISConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		c, err := s.LIS.GetConfig(r.Context(), ident.TenantID)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toLISConfigDTO(c))
	}
}

// UpdateLISConfigHandler rewrites connection-side settings.
func (s *Server) UpdateLISConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req lisConfigRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		c, err := s.LIS.UpdateConfig(r.Context(), ident.TenantID,
			domain.IntegrationModel(req.IntegrationModel), req.LISType, req.APIEndpointURL, req.APIAuthCreds, req.PullIntervalMinutes)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toLISConfigDTO(c))
	}
}

// ConnectionStatusHandler probes the LIS and returns the test outcome.
func (s *Server) ConnectionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		res, err := s.LIS.TestConnection(r.Context(), ident.TenantID)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"is_connected":   res.IsConnected,
			"last_tested_at": res.LastTestedAt.Format(time.RFC3339),
			"error_message":  res.ErrorMessage,
		})
	}
}

type uploadSettingsRequest struct {
	AutoUploadEnabled     bool `json:"auto_upload_enabled"`
	UploadVerifiedResults bool `json:"upload_verified_results"`
	UploadRejectedResults bool `json:"upload_rejected_results"`
	UploadBatchSize       int  `json:"upload_batch_size" validate:"required,min=1,max=1000"`
	UploadRateLimit       int  `json:"upload_rate_limit" validate:"required,min=1"`
}

// UploadSettingsHandler rewrites the upload-side settings.
func (s *Server) UploadSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req uploadSettingsRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		c, err := s.LIS.UpdateUploadSettings(r.Context(), ident.TenantID,
			req.AutoUploadEnabled, req.UploadVerifiedResults, req.UploadRejectedResults, req.UploadBatchSize, req.UploadRateLimit)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toLISConfigDTO(c))
	}
}

// RegenerateAPIKeyHandler rotates the push-mode tenant API key.
func (s *Server) RegenerateAPIKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		c, err := s.LIS.RegenerateAPIKey(r.Context(), ident.TenantID)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toLISConfigDTO(c))
	}
}
