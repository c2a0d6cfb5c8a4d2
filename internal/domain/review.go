package domain

import "time"

// ReviewState is the sample-scoped review state machine.
type ReviewState string

const (
	ReviewPending    ReviewState = "pending"
	ReviewInProgress ReviewState = "in_progress"
	ReviewApproved   ReviewState = "approved"
	ReviewRejected   ReviewState = "rejected"
	ReviewEscalated  ReviewState = "escalated"
)

// Terminal reports whether the review may no longer be mutated.
func (s ReviewState) Terminal() bool {
	return s == ReviewApproved || s == ReviewRejected
}

var reviewTransitions = map[ReviewState][]ReviewState{
	ReviewPending:    {ReviewInProgress, ReviewApproved, ReviewRejected, ReviewEscalated},
	ReviewInProgress: {ReviewApproved, ReviewRejected, ReviewEscalated},
	ReviewEscalated:  {ReviewApproved, ReviewRejected},
}

// CanTransition reports whether from → to is a legal review transition.
func CanTransition(from, to ReviewState) bool {
	for _, s := range reviewTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ReviewDecision is the aggregate verdict derived at review completion.
type ReviewDecision string

const (
	DecisionApproveAll ReviewDecision = "approve_all"
	DecisionRejectAll  ReviewDecision = "reject_all"
	DecisionPartial    ReviewDecision = "partial"
)

// Review is a sample-scoped decision record created when any of that
// sample's results require manual review. At most one review exists per
// (tenant_id, sample_id).
type Review struct {
	ID               string
	TenantID         string
	SampleID         string
	State            ReviewState
	Decision         ReviewDecision
	ReviewerUserID   string
	Comments         string
	EscalationReason string
	SubmittedAt      *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DecisionVerdict is the per-result verdict inside a review.
type DecisionVerdict string

const (
	VerdictApproved DecisionVerdict = "approved"
	VerdictRejected DecisionVerdict = "rejected"
)

// ResultDecision is an immutable per-result verdict. The repository exposes
// no update; once written it is only readable.
type ResultDecision struct {
	ID        string
	TenantID  string
	ReviewID  string
	ResultID  string
	Decision  DecisionVerdict
	Comments  string
	DecidedAt time.Time
	CreatedAt time.Time
}
