package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verilab/verilab/internal/domain"
	"github.com/verilab/verilab/internal/usecase"
)

type createSettingsRequest struct {
	TestCode                   string   `json:"test_code" validate:"required"`
	ReferenceRangeLow          *float64 `json:"reference_range_low"`
	ReferenceRangeHigh         *float64 `json:"reference_range_high"`
	CriticalRangeLow           *float64 `json:"critical_range_low"`
	CriticalRangeHigh          *float64 `json:"critical_range_high"`
	InstrumentFlagsToBlock     []string `json:"instrument_flags_to_block"`
	DeltaCheckThresholdPercent *float64 `json:"delta_check_threshold_percent" validate:"omitempty,gt=0"`
	DeltaCheckLookbackDays     int      `json:"delta_check_lookback_days" validate:"omitempty,min=1"`
}

// CreateSettingsHandler stores auto-verification settings for one test code.
func (s *Server) CreateSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req createSettingsRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		st, err := s.Settings.Create(r.Context(), domain.AutoVerificationSettings{
			TenantID:                   ident.TenantID,
			TestCode:                   req.TestCode,
			ReferenceRangeLow:          req.ReferenceRangeLow,
			ReferenceRangeHigh:         req.ReferenceRangeHigh,
			CriticalRangeLow:           req.CriticalRangeLow,
			CriticalRangeHigh:          req.CriticalRangeHigh,
			InstrumentFlagsToBlock:     req.InstrumentFlagsToBlock,
			DeltaCheckThresholdPercent: req.DeltaCheckThresholdPercent,
			DeltaCheckLookbackDays:     req.DeltaCheckLookbackDays,
		})
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toSettingsDTO(st))
	}
}

// ListSettingsHandler lists every configured test code.
func (s *Server) ListSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		all, err := s.Settings.List(r.Context(), ident.TenantID)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		out := make([]settingsDTO, 0, len(all))
		for _, st := range all {
			out = append(out, toSettingsDTO(st))
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": out})
	}
}

// GetSettingsHandler returns the settings for one test code.
func (s *Server) GetSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		st, err := s.Settings.Get(r.Context(), ident.TenantID, chi.URLParam(r, "testCode"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsDTO(st))
	}
}

type updateSettingsRequest struct {
	ReferenceRangeLow          *float64 `json:"reference_range_low"`
	ReferenceRangeHigh         *float64 `json:"reference_range_high"`
	CriticalRangeLow           *float64 `json:"critical_range_low"`
	CriticalRangeHigh          *float64 `json:"critical_range_high"`
	InstrumentFlagsToBlock     []string `json:"instrument_flags_to_block"`
	DeltaCheckThresholdPercent *float64 `json:"delta_check_threshold_percent" validate:"omitempty,gt=0"`
	DeltaCheckLookbackDays     *int     `json:"delta_check_lookback_days" validate:"omitempty,min=1"`
}

// UpdateSettingsHandler applies a partial update; absent fields are kept.
func (s *Server) UpdateSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req updateSettingsRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		st, err := s.Settings.Update(r.Context(), ident.TenantID, chi.URLParam(r, "testCode"), usecase.SettingsPatch{
			ReferenceRangeLow:          req.ReferenceRangeLow,
			ReferenceRangeHigh:         req.ReferenceRangeHigh,
			CriticalRangeLow:           req.CriticalRangeLow,
			CriticalRangeHigh:          req.CriticalRangeHigh,
			InstrumentFlagsToBlock:     req.InstrumentFlagsToBlock,
			DeltaCheckThresholdPercent: req.DeltaCheckThresholdPercent,
			DeltaCheckLookbackDays:     req.DeltaCheckLookbackDays,
		})
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsDTO(st))
	}
}

// DeleteSettingsHandler removes the settings for one test code.
func (s *Server) DeleteSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		if err := s.Settings.Delete(r.Context(), ident.TenantID, chi.URLParam(r, "testCode")); err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListRulesHandler returns the tenant's rule table in priority order.
func (s *Server) ListRulesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		rules, err := s.Settings.ListRules(r.Context(), ident.TenantID)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": toRuleDTOs(rules)})
	}
}

type updateRuleRequest struct {
	RuleType string `json:"rule_type" validate:"required"`
	Enabled  *bool  `json:"enabled" validate:"required"`
}

// UpdateRuleHandler toggles one verification rule.
func (s *Server) UpdateRuleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req updateRuleRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		rule, err := s.Settings.SetRuleEnabled(r.Context(), ident.TenantID, domain.RuleType(req.RuleType), *req.Enabled)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRuleDTO(rule))
	}
}
