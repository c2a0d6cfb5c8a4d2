package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verilab/verilab/internal/adapter/observability"
	"github.com/verilab/verilab/internal/domain"
)

type createResultRequest struct {
	SampleID           string   `json:"sample_id"`
	TestCode           string   `json:"test_code" validate:"required"`
	TestName           string   `json:"test_name"`
	Value              string   `json:"value" validate:"required"`
	Unit               string   `json:"unit"`
	ReferenceRangeLow  *float64 `json:"reference_range_low"`
	ReferenceRangeHigh *float64 `json:"reference_range_high"`
	LISFlags           string   `json:"lis_flags"`
}

// CreateResultHandler stores a manually entered result; verification runs
// synchronously before the response is written.
func (s *Server) CreateResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req createResultRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		created, err := s.Results.Create(r.Context(), domain.Result{
			TenantID:           ident.TenantID,
			SampleID:           req.SampleID,
			TestCode:           req.TestCode,
			TestName:           req.TestName,
			Value:              req.Value,
			Unit:               req.Unit,
			ReferenceRangeLow:  req.ReferenceRangeLow,
			ReferenceRangeHigh: req.ReferenceRangeHigh,
			LISFlags:           req.LISFlags,
		})
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		observability.VerificationsTotal.WithLabelValues(string(created.VerificationStatus)).Inc()
		writeJSON(w, http.StatusCreated, toResultDTO(created))
	}
}

// ListResultsHandler lists results filtered by verification and upload status.
func (s *Server) ListResultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		f := domain.ResultFilter{
			VerificationStatus: domain.VerificationStatus(r.URL.Query().Get("status")),
			UploadStatus:       domain.UploadStatus(r.URL.Query().Get("upload_status")),
			SampleID:           r.URL.Query().Get("sample_id"),
			Limit:              queryInt(r, "limit"),
			Offset:             queryInt(r, "offset"),
		}
		results, err := s.Results.List(r.Context(), ident.TenantID, f)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": toResultDTOs(results)})
	}
}

// GetResultHandler returns one result.
func (s *Server) GetResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		res, err := s.Results.Get(r.Context(), ident.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toResultDTO(res))
	}
}

type verifyBatchRequest struct {
	ResultIDs []string `json:"result_ids" validate:"required,min=1"`
}

// VerifyBatchHandler re-runs verification over a set of pending results.
func (s *Server) VerifyBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req verifyBatchRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		out, err := s.Verify.VerifyBatch(r.Context(), ident.TenantID, req.ResultIDs)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		observability.VerificationsTotal.WithLabelValues("verified").Add(float64(out.Verified))
		observability.VerificationsTotal.WithLabelValues("needs_review").Add(float64(out.NeedsReview))
		writeJSON(w, http.StatusOK, toBatchReportDTO(out))
	}
}
