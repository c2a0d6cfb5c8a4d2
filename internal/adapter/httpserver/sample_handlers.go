package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verilab/verilab/internal/domain"
)

type createSampleRequest struct {
	ExternalLISID  string     `json:"external_lis_id" validate:"required"`
	PatientID      string     `json:"patient_id"`
	SpecimenType   string     `json:"specimen_type"`
	CollectionDate *time.Time `json:"collection_date"`
	ReceivedDate   *time.Time `json:"received_date"`
}

// CreateSampleHandler registers a sample received outside the pull path.
func (s *Server) CreateSampleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req createSampleRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		smp := domain.Sample{
			TenantID:      ident.TenantID,
			ExternalLISID: req.ExternalLISID,
			PatientID:     req.PatientID,
			SpecimenType:  req.SpecimenType,
		}
		if req.CollectionDate != nil {
			smp.CollectionDate = *req.CollectionDate
		}
		if req.ReceivedDate != nil {
			smp.ReceivedDate = *req.ReceivedDate
		}
		created, err := s.Samples.Create(r.Context(), smp)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toSampleDTO(created))
	}
}

// ListSamplesHandler lists the tenant's samples, filtered and paginated.
func (s *Server) ListSamplesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		f := domain.SampleFilter{
			Status:    domain.SampleStatus(r.URL.Query().Get("status")),
			PatientID: r.URL.Query().Get("patient_id"),
			Limit:     queryInt(r, "limit"),
			Offset:    queryInt(r, "offset"),
		}
		samples, err := s.Samples.List(r.Context(), ident.TenantID, f)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"samples": toSampleDTOs(samples)})
	}
}

// GetSampleHandler returns one sample.
func (s *Server) GetSampleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		smp, err := s.Samples.Get(r.Context(), ident.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSampleDTO(smp))
	}
}

type updateSampleRequest struct {
	PatientID    string `json:"patient_id"`
	SpecimenType string `json:"specimen_type"`
}

// UpdateSampleHandler writes patient and specimen fields.
func (s *Server) UpdateSampleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req updateSampleRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		smp, err := s.Samples.Update(r.Context(), ident.TenantID, chi.URLParam(r, "id"), req.PatientID, req.SpecimenType)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSampleDTO(smp))
	}
}

// DeleteSampleHandler removes a sample.
func (s *Server) DeleteSampleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		if err := s.Samples.Delete(r.Context(), ident.TenantID, chi.URLParam(r, "id")); err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SampleResultsHandler lists every result of one sample.
func (s *Server) SampleResultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		results, err := s.Results.ListBySample(r.Context(), ident.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": toResultDTOs(results)})
	}
}
