package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/verilab/verilab/internal/domain"
)

// ReviewService drives the sample-scoped review state machine: sample-wide
// approve/reject, per-result decisions with auto-completion, and escalation.
type ReviewService struct {
	Reviews   domain.ReviewRepository
	Decisions domain.DecisionRepository
	Results   domain.ResultRepository
	Samples   domain.SampleRepository

	EscalationEnabled bool
}

// NewReviewService constructs a ReviewService over the given repositories.
func NewReviewService(reviews domain.ReviewRepository, decisions domain.DecisionRepository, results domain.ResultRepository, samples domain.SampleRepository, escalation bool) *ReviewService {
	return &ReviewService{Reviews: reviews, Decisions: decisions, Results: results, Samples: samples, EscalationEnabled: escalation}
}

// CreateReview opens a review for a sample. The sample must exist and carry
// no review yet; the review starts in_progress iff a reviewer is supplied.
func (s *ReviewService) CreateReview(ctx context.Context, tenantID, sampleID, reviewerUserID string) (domain.Review, error) {
	if _, err := s.Samples.GetByID(ctx, tenantID, sampleID); err != nil {
		return domain.Review{}, err
	}
	if _, err := s.Reviews.GetBySampleID(ctx, tenantID, sampleID); err == nil {
		return domain.Review{}, fmt.Errorf("op=review.create sample_id=%s: review already exists: %w", sampleID, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Review{}, err
	}
	state := domain.ReviewPending
	if reviewerUserID != "" {
		state = domain.ReviewInProgress
	}
	id, err := s.Reviews.Create(ctx, domain.Review{
		TenantID:       tenantID,
		SampleID:       sampleID,
		State:          state,
		ReviewerUserID: reviewerUserID,
	})
	if err != nil {
		return domain.Review{}, err
	}
	return s.Reviews.GetByID(ctx, tenantID, id)
}

// Get loads one review.
func (s *ReviewService) Get(ctx context.Context, tenantID, id string) (domain.Review, error) {
	return s.Reviews.GetByID(ctx, tenantID, id)
}

// Queue lists reviews with filters, newest first.
func (s *ReviewService) Queue(ctx context.Context, tenantID string, f domain.ReviewFilter) ([]domain.Review, error) {
	return s.Reviews.List(ctx, tenantID, f)
}

// ApproveSample decides every needs-review result of the bound sample as
// approved and completes the review with decision approve_all.
func (s *ReviewService) ApproveSample(ctx context.Context, tenantID, reviewID, userID, comments string) (domain.Review, error) {
	return s.decideSample(ctx, tenantID, reviewID, userID, comments, domain.VerdictApproved)
}

// RejectSample is the symmetric sample-wide rejection; comments are required.
func (s *ReviewService) RejectSample(ctx context.Context, tenantID, reviewID, userID, comments string) (domain.Review, error) {
	if comments == "" {
		return domain.Review{}, fmt.Errorf("op=review.reject_sample: comments required: %w", domain.ErrInvalidArgument)
	}
	return s.decideSample(ctx, tenantID, reviewID, userID, comments, domain.VerdictRejected)
}

func (s *ReviewService) decideSample(ctx context.Context, tenantID, reviewID, userID, comments string, verdict domain.DecisionVerdict) (domain.Review, error) {
	v, err := s.Reviews.GetByID(ctx, tenantID, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	target := domain.ReviewApproved
	decision := domain.DecisionApproveAll
	resultStatus := domain.VerificationVerified
	sampleStatus := domain.SampleVerified
	if verdict == domain.VerdictRejected {
		target = domain.ReviewRejected
		decision = domain.DecisionRejectAll
		resultStatus = domain.VerificationRejected
		sampleStatus = domain.SampleRejected
	}
	if err := checkTransition(v, target); err != nil {
		return domain.Review{}, err
	}

	results, err := s.Results.ListBySample(ctx, tenantID, v.SampleID)
	if err != nil {
		return domain.Review{}, err
	}
	decided := 0
	for _, r := range results {
		if r.VerificationStatus != domain.VerificationNeedsReview {
			continue
		}
		if _, err := s.Decisions.Create(ctx, domain.ResultDecision{
			TenantID: tenantID,
			ReviewID: v.ID,
			ResultID: r.ID,
			Decision: verdict,
			Comments: comments,
		}); err != nil {
			return domain.Review{}, err
		}
		if err := s.Results.UpdateVerification(ctx, tenantID, r.ID, resultStatus, domain.MethodManual); err != nil {
			return domain.Review{}, err
		}
		decided++
	}
	if decided == 0 {
		slog.Warn("sample-wide decision with no needs-review results",
			slog.String("review_id", v.ID), slog.String("sample_id", v.SampleID))
	}

	now := time.Now().UTC()
	v.State = target
	v.Decision = decision
	v.Comments = comments
	if v.ReviewerUserID == "" {
		v.ReviewerUserID = userID
	}
	if v.SubmittedAt == nil {
		v.SubmittedAt = &now
	}
	v.CompletedAt = &now
	if err := s.Reviews.Update(ctx, v); err != nil {
		return domain.Review{}, err
	}
	if err := s.Samples.UpdateStatus(ctx, tenantID, v.SampleID, sampleStatus); err != nil {
		return domain.Review{}, err
	}
	return s.Reviews.GetByID(ctx, tenantID, v.ID)
}

// ApproveResult decides a single result as approved, then evaluates
// auto-completion.
func (s *ReviewService) ApproveResult(ctx context.Context, tenantID, reviewID, resultID, userID, comments string) (domain.Review, error) {
	return s.decideResult(ctx, tenantID, reviewID, resultID, userID, comments, domain.VerdictApproved)
}

// RejectResult decides a single result as rejected; comments are required.
func (s *ReviewService) RejectResult(ctx context.Context, tenantID, reviewID, resultID, userID, comments string) (domain.Review, error) {
	if comments == "" {
		return domain.Review{}, fmt.Errorf("op=review.reject_result: comments required: %w", domain.ErrInvalidArgument)
	}
	return s.decideResult(ctx, tenantID, reviewID, resultID, userID, comments, domain.VerdictRejected)
}

func (s *ReviewService) decideResult(ctx context.Context, tenantID, reviewID, resultID, userID, comments string, verdict domain.DecisionVerdict) (domain.Review, error) {
	v, err := s.Reviews.GetByID(ctx, tenantID, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if v.State.Terminal() {
		return domain.Review{}, fmt.Errorf("op=review.decide_result review_id=%s: %w", reviewID, domain.ErrImmutable)
	}
	r, err := s.Results.GetByID(ctx, tenantID, resultID)
	if err != nil {
		return domain.Review{}, err
	}
	if r.SampleID != v.SampleID {
		return domain.Review{}, fmt.Errorf("op=review.decide_result: result %s does not belong to review's sample: %w", resultID, domain.ErrInvalidArgument)
	}
	// Guard before the decision row is written: a re-decided result would
	// otherwise leave a stray decision behind and skew auto-completion.
	if r.VerificationStatus != domain.VerificationNeedsReview {
		return domain.Review{}, fmt.Errorf("op=review.decide_result: result %s already %s: %w", resultID, r.VerificationStatus, domain.ErrImmutable)
	}

	resultStatus := domain.VerificationVerified
	if verdict == domain.VerdictRejected {
		resultStatus = domain.VerificationRejected
	}
	if _, err := s.Decisions.Create(ctx, domain.ResultDecision{
		TenantID: tenantID,
		ReviewID: v.ID,
		ResultID: r.ID,
		Decision: verdict,
		Comments: comments,
	}); err != nil {
		return domain.Review{}, err
	}
	if err := s.Results.UpdateVerification(ctx, tenantID, r.ID, resultStatus, domain.MethodManual); err != nil {
		return domain.Review{}, err
	}

	// First decision moves a pending review in_progress and claims it.
	if v.State == domain.ReviewPending {
		v.State = domain.ReviewInProgress
		if v.ReviewerUserID == "" {
			v.ReviewerUserID = userID
		}
		if err := s.Reviews.Update(ctx, v); err != nil {
			return domain.Review{}, err
		}
	}

	if err := s.autoComplete(ctx, tenantID, v.ID); err != nil {
		return domain.Review{}, err
	}
	return s.Reviews.GetByID(ctx, tenantID, v.ID)
}

// autoComplete re-scans the sample after a per-result decision. When nothing
// remains in needs_review the review completes: all-approved → approve_all,
// all-rejected → reject_all, mixed → partial (state approved, sample
// verified, since some results are releasable).
func (s *ReviewService) autoComplete(ctx context.Context, tenantID, reviewID string) error {
	v, err := s.Reviews.GetByID(ctx, tenantID, reviewID)
	if err != nil {
		return err
	}
	results, err := s.Results.ListBySample(ctx, tenantID, v.SampleID)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.VerificationStatus == domain.VerificationNeedsReview {
			return nil
		}
	}
	decisions, err := s.Decisions.ListByReview(ctx, tenantID, v.ID)
	if err != nil {
		return err
	}
	approved, rejected := 0, 0
	for _, d := range decisions {
		if d.Decision == domain.VerdictApproved {
			approved++
		} else {
			rejected++
		}
	}

	sampleStatus := domain.SampleVerified
	switch {
	case rejected == 0:
		v.State = domain.ReviewApproved
		v.Decision = domain.DecisionApproveAll
	case approved == 0:
		v.State = domain.ReviewRejected
		v.Decision = domain.DecisionRejectAll
		sampleStatus = domain.SampleRejected
	default:
		v.State = domain.ReviewApproved
		v.Decision = domain.DecisionPartial
	}
	now := time.Now().UTC()
	if v.SubmittedAt == nil {
		v.SubmittedAt = &now
	}
	v.CompletedAt = &now
	if err := s.Reviews.Update(ctx, v); err != nil {
		return err
	}
	slog.Info("review auto-completed",
		slog.String("review_id", v.ID),
		slog.String("decision", string(v.Decision)),
		slog.Int("approved", approved),
		slog.Int("rejected", rejected))
	return s.Samples.UpdateStatus(ctx, tenantID, v.SampleID, sampleStatus)
}

// Escalate moves a pending or in-progress review to escalated; the reason is
// required. Escalated reviews can still be approved or rejected.
func (s *ReviewService) Escalate(ctx context.Context, tenantID, reviewID, userID, reason string) (domain.Review, error) {
	if !s.EscalationEnabled {
		return domain.Review{}, fmt.Errorf("op=review.escalate: escalation disabled: %w", domain.ErrForbidden)
	}
	if reason == "" {
		return domain.Review{}, fmt.Errorf("op=review.escalate: reason required: %w", domain.ErrInvalidArgument)
	}
	v, err := s.Reviews.GetByID(ctx, tenantID, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if err := checkTransition(v, domain.ReviewEscalated); err != nil {
		return domain.Review{}, err
	}
	now := time.Now().UTC()
	v.State = domain.ReviewEscalated
	v.EscalationReason = reason
	if v.ReviewerUserID == "" {
		v.ReviewerUserID = userID
	}
	if v.SubmittedAt == nil {
		v.SubmittedAt = &now
	}
	if err := s.Reviews.Update(ctx, v); err != nil {
		return domain.Review{}, err
	}
	return s.Reviews.GetByID(ctx, tenantID, v.ID)
}

func checkTransition(v domain.Review, to domain.ReviewState) error {
	if v.State.Terminal() {
		return fmt.Errorf("op=review.transition review_id=%s state=%s: %w", v.ID, v.State, domain.ErrImmutable)
	}
	if !domain.CanTransition(v.State, to) {
		return fmt.Errorf("op=review.transition review_id=%s %s->%s: %w", v.ID, v.State, to, domain.ErrInvalidTransition)
	}
	return nil
}
