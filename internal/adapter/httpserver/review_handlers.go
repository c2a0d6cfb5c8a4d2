package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verilab/verilab/internal/domain"
)

// ReviewQueueHandler lists the tenant's reviews, newest first.
func (s *Server) ReviewQueueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		f := domain.ReviewFilter{
			State:          domain.ReviewState(r.URL.Query().Get("state")),
			ReviewerUserID: r.URL.Query().Get("reviewer_user_id"),
			Limit:          queryInt(r, "limit"),
			Offset:         queryInt(r, "offset"),
		}
		reviews, err := s.Review.Queue(r.Context(), ident.TenantID, f)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reviews": toReviewDTOs(reviews)})
	}
}

// GetReviewHandler returns one review.
func (s *Server) GetReviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		rev, err := s.Review.Get(r.Context(), ident.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toReviewDTO(rev))
	}
}

type createReviewRequest struct {
	SampleID string `json:"sample_id" validate:"required"`
	Assign   bool   `json:"assign"`
}

// CreateReviewHandler opens a review for a sample in needs_review. With
// assign set, the caller claims it immediately.
func (s *Server) CreateReviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req createReviewRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		reviewer := ""
		if req.Assign {
			reviewer = ident.UserID
		}
		rev, err := s.Review.CreateReview(r.Context(), ident.TenantID, req.SampleID, reviewer)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toReviewDTO(rev))
	}
}

type reviewDecisionRequest struct {
	Comments string `json:"comments"`
}

// ApproveReviewHandler approves every undecided result of the review's sample.
func (s *Server) ApproveReviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req reviewDecisionRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		rev, err := s.Review.ApproveSample(r.Context(), ident.TenantID, chi.URLParam(r, "id"), ident.UserID, req.Comments)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toReviewDTO(rev))
	}
}

// RejectReviewHandler rejects every undecided result; comments are mandatory.
func (s *Server) RejectReviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req reviewDecisionRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		rev, err := s.Review.RejectSample(r.Context(), ident.TenantID, chi.URLParam(r, "id"), ident.UserID, req.Comments)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toReviewDTO(rev))
	}
}

type resultDecisionRequest struct {
	ResultID string `json:"result_id" validate:"required"`
	Comments string `json:"comments"`
}

// ApproveResultHandler approves a single result within the review.
func (s *Server) ApproveResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req resultDecisionRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		rev, err := s.Review.ApproveResult(r.Context(), ident.TenantID, chi.URLParam(r, "id"), req.ResultID, ident.UserID, req.Comments)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toReviewDTO(rev))
	}
}

// RejectResultHandler rejects a single result; comments are mandatory.
func (s *Server) RejectResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req resultDecisionRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		rev, err := s.Review.RejectResult(r.Context(), ident.TenantID, chi.URLParam(r, "id"), req.ResultID, ident.UserID, req.Comments)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toReviewDTO(rev))
	}
}

type escalateRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// EscalateReviewHandler escalates a review to a pathologist.
func (s *Server) EscalateReviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := s.mustIdentity(w, r)
		if !ok {
			return
		}
		var req escalateRequest
		if !s.decodeValid(w, r, &req) {
			return
		}
		rev, err := s.Review.Escalate(r.Context(), ident.TenantID, chi.URLParam(r, "id"), ident.UserID, req.Reason)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toReviewDTO(rev))
	}
}
