package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verilab/verilab/internal/adapter/observability"
	"github.com/verilab/verilab/internal/domain"
)

type registerInstrumentRequest struct {
	Name           string `json:"name" validate:"required"`
	InstrumentType string `json:"instrument_type"`
	APIToken       string `json:"api_token" validate:"omitempty,min=32"`
}

// RegisterInstrumentHandler adds an instrument; the response is the only
// place the generated token is returned in full.
func (s *Server) RegisterInstrumentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req registerInstrumentRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		inst, err := s.Instruments.Register(r.Context(), ident.TenantID, req.Name, req.InstrumentType, req.APIToken)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toInstrumentDTO(inst, true))
	}
}

// ListInstrumentsHandler returns the tenant's registry.
func (s *Server) ListInstrumentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		instruments, err := s.Instruments.List(r.Context(), ident.TenantID)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		out := make([]instrumentDTO, 0, len(instruments))
		for _, i := range instruments {
			out = append(out, toInstrumentDTO(i, false))
		}
		writeJSON(w, http.StatusOK, map[string]any{"instruments": out})
	}
}

// GetInstrumentHandler returns one instrument without its token.
func (s *Server) GetInstrumentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		inst, err := s.Instruments.Get(r.Context(), ident.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toInstrumentDTO(inst, false))
	}
}

// InstrumentStatusHandler returns the health projection of one instrument.
func (s *Server) InstrumentStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		inst, err := s.Instruments.Get(r.Context(), ident.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":                       inst.ID,
			"status":                   inst.Status,
			"is_healthy":               inst.IsHealthy(),
			"connection_failure_count": inst.ConnectionFailureCount,
			"last_successful_query_at": inst.LastSuccessfulQueryAt,
			"last_failure_at":          inst.LastFailureAt,
			"last_failure_reason":      inst.LastFailureReason,
		})
	}
}

type updateInstrumentRequest struct {
	Name           string `json:"name"`
	InstrumentType string `json:"instrument_type"`
	Status         string `json:"status" validate:"omitempty,oneof=active inactive disconnected"`
}

// UpdateInstrumentHandler writes name, type, and status.
func (s *Server) UpdateInstrumentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req updateInstrumentRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		inst, err := s.Instruments.Update(r.Context(), ident.TenantID, chi.URLParam(r, "id"), req.Name, req.InstrumentType, domain.InstrumentStatus(req.Status))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toInstrumentDTO(inst, false))
	}
}

// DeleteInstrumentHandler removes an instrument from the registry.
func (s *Server) DeleteInstrumentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		if err := s.Instruments.Delete(r.Context(), ident.TenantID, chi.URLParam(r, "id")); err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RegenerateTokenHandler rotates an instrument token; the full token is
// returned once.
func (s *Server) RegenerateTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		inst, err := s.Instruments.RegenerateToken(r.Context(), ident.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toInstrumentDTO(inst, true))
	}
}

// InstrumentQueryLogHandler returns the newest host-query audit rows.
func (s *Server) InstrumentQueryLogHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		limit := queryInt(r, "limit")
		if limit == 0 {
			limit = 50
		}
		log, err := s.Instruments.QueryLog(r.Context(), ident.TenantID, chi.URLParam(r, "id"), limit)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"queries": toQueryAuditDTOs(log)})
	}
}

type queryHostRequest struct {
	PatientID     string `json:"patient_id"`
	SampleBarcode string `json:"sample_barcode"`
}

// QueryHostHandler serves an instrument's request for pending orders.
func (s *Server) QueryHostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, ok := InstrumentFrom(r.Context())
		if !ok {
			s.writeError(w, r, fmt.Errorf("no instrument: %w", domain.ErrUnauthorized), nil)
			return
		}
		var req queryHostRequest
		// An empty body means an unfiltered query.
		if r.ContentLength > 0 && !s.decodeValid(w, r, &req) {
			return
		}
		resp, err := s.Instruments.QueryHost(r.Context(), inst, req.PatientID, req.SampleBarcode)
		if err != nil {
			observability.InstrumentQueriesTotal.WithLabelValues("failure").Inc()
			s.writeError(w, r, err, nil)
			return
		}
		observability.InstrumentQueriesTotal.WithLabelValues("success").Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"orders":            toOrderDTOs(resp.Orders),
			"query_timestamp":   resp.QueryTimestamp.Format(time.RFC3339Nano),
			"instrument_status": resp.InstrumentStatus,
		})
	}
}

type submitResultRequest struct {
	ExternalInstrumentResultID string   `json:"external_instrument_result_id"`
	SampleBarcode              string   `json:"sample_barcode"`
	TestCode                   string   `json:"test_code" validate:"required"`
	TestName                   string   `json:"test_name"`
	Value                      string   `json:"value" validate:"required"`
	Unit                       string   `json:"unit"`
	ReferenceRangeLow          *float64 `json:"reference_range_low"`
	ReferenceRangeHigh         *float64 `json:"reference_range_high"`
	Flags                      string   `json:"flags"`
}

// SubmitResultHandler accepts a measurement pushed by an instrument.
// Duplicates are accepted idempotently with 202.
func (s *Server) SubmitResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, ok := InstrumentFrom(r.Context())
		if !ok {
			s.writeError(w, r, fmt.Errorf("no instrument: %w", domain.ErrUnauthorized), nil)
			return
		}
		var req submitResultRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		out, err := s.Instruments.SubmitResult(r.Context(), inst, domain.InstrumentResultPayload{
			ExternalInstrumentResultID: req.ExternalInstrumentResultID,
			SampleBarcode:              req.SampleBarcode,
			TestCode:                   req.TestCode,
			TestName:                   req.TestName,
			Value:                      req.Value,
			Unit:                       req.Unit,
			ReferenceRangeLow:          req.ReferenceRangeLow,
			ReferenceRangeHigh:         req.ReferenceRangeHigh,
			Flags:                      req.Flags,
		})
		if err != nil {
			observability.InstrumentResultsTotal.WithLabelValues("rejected").Inc()
			s.writeError(w, r, err, map[string]any{"status": out.Status, "error_message": out.ErrorMessage})
			return
		}
		observability.InstrumentResultsTotal.WithLabelValues("accepted").Inc()
		writeJSON(w, http.StatusAccepted, map[string]any{
			"result_id":           out.ResultID,
			"status":              out.Status,
			"verification_queued": out.VerificationQueued,
		})
	}
}
