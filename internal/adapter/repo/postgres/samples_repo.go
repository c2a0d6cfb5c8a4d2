package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/verilab/verilab/internal/domain"
)

// SampleRepo persists samples in PostgreSQL.
type SampleRepo struct{ Pool PgxPool }

// NewSampleRepo constructs a SampleRepo with the given pool.
func NewSampleRepo(p PgxPool) *SampleRepo { return &SampleRepo{Pool: p} }

const sampleCols = `id, tenant_id, external_lis_id, patient_id, specimen_type,
	collection_date, received_date, status, created_at, updated_at`

func scanSample(row pgx.Row) (domain.Sample, error) {
	var s domain.Sample
	var coll, recv *time.Time
	err := row.Scan(&s.ID, &s.TenantID, &s.ExternalLISID, &s.PatientID, &s.SpecimenType,
		&coll, &recv, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Sample{}, err
	}
	if coll != nil {
		s.CollectionDate = *coll
	}
	if recv != nil {
		s.ReceivedDate = *recv
	}
	return s, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Create inserts a new sample and returns its id.
func (r *SampleRepo) Create(ctx context.Context, s domain.Sample) (string, error) {
	tracer := otel.Tracer("repo.samples")
	ctx, span := tracer.Start(ctx, "samples.Create")
	defer span.End()
	if err := s.Validate(); err != nil {
		return "", mapErr("sample.create", err)
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = domain.SamplePending
	}
	now := time.Now().UTC()
	q := `INSERT INTO samples (id, tenant_id, external_lis_id, patient_id, specimen_type,
		collection_date, received_date, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, s.ID, s.TenantID, s.ExternalLISID, s.PatientID, s.SpecimenType,
		nullTime(s.CollectionDate), nullTime(s.ReceivedDate), s.Status, now, now)
	if err != nil {
		return "", mapErr("sample.create", err)
	}
	return s.ID, nil
}

// GetByID loads a sample scoped by tenant.
func (r *SampleRepo) GetByID(ctx context.Context, tenantID, id string) (domain.Sample, error) {
	tracer := otel.Tracer("repo.samples")
	ctx, span := tracer.Start(ctx, "samples.GetByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+sampleCols+` FROM samples WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	s, err := scanSample(row)
	if err != nil {
		return domain.Sample{}, mapErr("sample.get", err)
	}
	return s, nil
}

// GetByExternalLISID loads a sample by its LIS identifier.
func (r *SampleRepo) GetByExternalLISID(ctx context.Context, tenantID, externalLISID string) (domain.Sample, error) {
	tracer := otel.Tracer("repo.samples")
	ctx, span := tracer.Start(ctx, "samples.GetByExternalLISID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+sampleCols+` FROM samples WHERE external_lis_id=$1 AND tenant_id=$2`, externalLISID, tenantID)
	s, err := scanSample(row)
	if err != nil {
		return domain.Sample{}, mapErr("sample.get_external", err)
	}
	return s, nil
}

// List returns samples for a tenant, newest first.
func (r *SampleRepo) List(ctx context.Context, tenantID string, f domain.SampleFilter) ([]domain.Sample, error) {
	tracer := otel.Tracer("repo.samples")
	ctx, span := tracer.Start(ctx, "samples.List")
	defer span.End()
	q := `SELECT ` + sampleCols + ` FROM samples WHERE tenant_id=$1
		AND ($2 = '' OR status = $2)
		AND ($3 = '' OR patient_id = $3)
		ORDER BY created_at DESC
		LIMIT CASE WHEN $4 > 0 THEN $4 ELSE NULL END OFFSET $5`
	rows, err := r.Pool.Query(ctx, q, tenantID, string(f.Status), f.PatientID, f.Limit, f.Offset)
	if err != nil {
		return nil, mapErr("sample.list", err)
	}
	defer rows.Close()
	var out []domain.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, mapErr("sample.list", err)
		}
		out = append(out, s)
	}
	return out, mapErr("sample.list", rows.Err())
}

// Update writes the mutable sample fields.
func (r *SampleRepo) Update(ctx context.Context, s domain.Sample) error {
	tracer := otel.Tracer("repo.samples")
	ctx, span := tracer.Start(ctx, "samples.Update")
	defer span.End()
	q := `UPDATE samples SET patient_id=$3, specimen_type=$4, collection_date=$5,
		received_date=$6, status=$7, updated_at=$8 WHERE id=$1 AND tenant_id=$2`
	tag, err := r.Pool.Exec(ctx, q, s.ID, s.TenantID, s.PatientID, s.SpecimenType,
		nullTime(s.CollectionDate), nullTime(s.ReceivedDate), s.Status, time.Now().UTC())
	return mustAffect("sample.update", tag, err)
}

// UpdateStatus moves the sample-level pipeline status.
func (r *SampleRepo) UpdateStatus(ctx context.Context, tenantID, id string, status domain.SampleStatus) error {
	tracer := otel.Tracer("repo.samples")
	ctx, span := tracer.Start(ctx, "samples.UpdateStatus")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `UPDATE samples SET status=$3, updated_at=$4 WHERE id=$1 AND tenant_id=$2`,
		id, tenantID, status, time.Now().UTC())
	return mustAffect("sample.update_status", tag, err)
}

// Delete removes a sample.
func (r *SampleRepo) Delete(ctx context.Context, tenantID, id string) error {
	tracer := otel.Tracer("repo.samples")
	ctx, span := tracer.Start(ctx, "samples.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM samples WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	return mustAffect("sample.delete", tag, err)
}
