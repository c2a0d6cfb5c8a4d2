package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/verilab/verilab/internal/domain"
)

// ReviewRepo persists reviews. The (tenant_id, sample_id) unique index is
// the authority for the one-review-per-sample invariant; terminal-state
// immutability is enforced in the update's WHERE clause.
type ReviewRepo struct{ Pool PgxPool }

// NewReviewRepo constructs a ReviewRepo with the given pool.
func NewReviewRepo(p PgxPool) *ReviewRepo { return &ReviewRepo{Pool: p} }

const reviewCols = `id, tenant_id, sample_id, state, decision, reviewer_user_id, comments,
	escalation_reason, submitted_at, completed_at, created_at, updated_at`

func scanReview(row pgx.Row) (domain.Review, error) {
	var v domain.Review
	err := row.Scan(&v.ID, &v.TenantID, &v.SampleID, &v.State, &v.Decision, &v.ReviewerUserID, &v.Comments,
		&v.EscalationReason, &v.SubmittedAt, &v.CompletedAt, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// Create inserts a new review and returns its id.
func (r *ReviewRepo) Create(ctx context.Context, v domain.Review) (string, error) {
	tracer := otel.Tracer("repo.reviews")
	ctx, span := tracer.Start(ctx, "reviews.Create")
	defer span.End()
	if v.TenantID == "" || v.SampleID == "" {
		return "", mapErr("review.create", fmt.Errorf("%w: tenant_id and sample_id required", domain.ErrInvalidArgument))
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.State == "" {
		v.State = domain.ReviewPending
	}
	now := time.Now().UTC()
	q := `INSERT INTO reviews (id, tenant_id, sample_id, state, decision, reviewer_user_id, comments,
		escalation_reason, submitted_at, completed_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.Pool.Exec(ctx, q, v.ID, v.TenantID, v.SampleID, v.State, v.Decision, v.ReviewerUserID, v.Comments,
		v.EscalationReason, v.SubmittedAt, v.CompletedAt, now, now)
	if err != nil {
		return "", mapErr("review.create", err)
	}
	return v.ID, nil
}

// GetByID loads a review scoped by tenant.
func (r *ReviewRepo) GetByID(ctx context.Context, tenantID, id string) (domain.Review, error) {
	tracer := otel.Tracer("repo.reviews")
	ctx, span := tracer.Start(ctx, "reviews.GetByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+reviewCols+` FROM reviews WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	v, err := scanReview(row)
	if err != nil {
		return domain.Review{}, mapErr("review.get", err)
	}
	return v, nil
}

// GetBySampleID loads the review bound to a sample.
func (r *ReviewRepo) GetBySampleID(ctx context.Context, tenantID, sampleID string) (domain.Review, error) {
	tracer := otel.Tracer("repo.reviews")
	ctx, span := tracer.Start(ctx, "reviews.GetBySampleID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+reviewCols+` FROM reviews WHERE sample_id=$1 AND tenant_id=$2`, sampleID, tenantID)
	v, err := scanReview(row)
	if err != nil {
		return domain.Review{}, mapErr("review.get_sample", err)
	}
	return v, nil
}

// List returns the review queue, created_at descending.
func (r *ReviewRepo) List(ctx context.Context, tenantID string, f domain.ReviewFilter) ([]domain.Review, error) {
	tracer := otel.Tracer("repo.reviews")
	ctx, span := tracer.Start(ctx, "reviews.List")
	defer span.End()
	q := `SELECT ` + reviewCols + ` FROM reviews WHERE tenant_id=$1
		AND ($2 = '' OR state = $2)
		AND ($3 = '' OR reviewer_user_id = $3)
		AND (NOT $4 OR state = 'escalated')
		AND ($5::timestamptz IS NULL OR created_at >= $5)
		AND ($6::timestamptz IS NULL OR created_at <= $6)
		ORDER BY created_at DESC
		LIMIT CASE WHEN $7 > 0 THEN $7 ELSE NULL END OFFSET $8`
	rows, err := r.Pool.Query(ctx, q, tenantID, string(f.State), f.ReviewerUserID, f.EscalatedOnly,
		f.CreatedFrom, f.CreatedTo, f.Limit, f.Offset)
	if err != nil {
		return nil, mapErr("review.list", err)
	}
	defer rows.Close()
	var out []domain.Review
	for rows.Next() {
		v, err := scanReview(rows)
		if err != nil {
			return nil, mapErr("review.list", err)
		}
		out = append(out, v)
	}
	return out, mapErr("review.list", rows.Err())
}

// Update writes a non-terminal review; terminal rows refuse with ErrImmutable.
func (r *ReviewRepo) Update(ctx context.Context, v domain.Review) error {
	tracer := otel.Tracer("repo.reviews")
	ctx, span := tracer.Start(ctx, "reviews.Update")
	defer span.End()
	q := `UPDATE reviews SET state=$3, decision=$4, reviewer_user_id=$5, comments=$6,
		escalation_reason=$7, submitted_at=$8, completed_at=$9, updated_at=$10
		WHERE id=$1 AND tenant_id=$2 AND state NOT IN ('approved','rejected')`
	tag, err := r.Pool.Exec(ctx, q, v.ID, v.TenantID, v.State, v.Decision, v.ReviewerUserID, v.Comments,
		v.EscalationReason, v.SubmittedAt, v.CompletedAt, time.Now().UTC())
	if err != nil {
		return mapErr("review.update", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, v.TenantID, v.ID); err != nil {
			return err
		}
		return mapErr("review.update", domain.ErrImmutable)
	}
	return nil
}

// DecisionRepo persists immutable per-result decisions; no update exists.
type DecisionRepo struct{ Pool PgxPool }

// NewDecisionRepo constructs a DecisionRepo with the given pool.
func NewDecisionRepo(p PgxPool) *DecisionRepo { return &DecisionRepo{Pool: p} }

// Create inserts a decision and returns its id.
func (r *DecisionRepo) Create(ctx context.Context, d domain.ResultDecision) (string, error) {
	tracer := otel.Tracer("repo.decisions")
	ctx, span := tracer.Start(ctx, "decisions.Create")
	defer span.End()
	if d.TenantID == "" || d.ReviewID == "" || d.ResultID == "" {
		return "", mapErr("decision.create", fmt.Errorf("%w: tenant_id, review_id, result_id required", domain.ErrInvalidArgument))
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	q := `INSERT INTO result_decisions (id, tenant_id, review_id, result_id, decision, comments, decided_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.Pool.Exec(ctx, q, d.ID, d.TenantID, d.ReviewID, d.ResultID, d.Decision, d.Comments, d.DecidedAt, time.Now().UTC())
	if err != nil {
		return "", mapErr("decision.create", err)
	}
	return d.ID, nil
}

// ListByReview returns a review's decisions in decision order.
func (r *DecisionRepo) ListByReview(ctx context.Context, tenantID, reviewID string) ([]domain.ResultDecision, error) {
	tracer := otel.Tracer("repo.decisions")
	ctx, span := tracer.Start(ctx, "decisions.ListByReview")
	defer span.End()
	q := `SELECT id, tenant_id, review_id, result_id, decision, comments, decided_at, created_at
		FROM result_decisions WHERE tenant_id=$1 AND review_id=$2 ORDER BY decided_at ASC`
	rows, err := r.Pool.Query(ctx, q, tenantID, reviewID)
	if err != nil {
		return nil, mapErr("decision.list", err)
	}
	defer rows.Close()
	var out []domain.ResultDecision
	for rows.Next() {
		var d domain.ResultDecision
		if err := rows.Scan(&d.ID, &d.TenantID, &d.ReviewID, &d.ResultID, &d.Decision, &d.Comments, &d.DecidedAt, &d.CreatedAt); err != nil {
			return nil, mapErr("decision.list", err)
		}
		out = append(out, d)
	}
	return out, mapErr("decision.list", rows.Err())
}
