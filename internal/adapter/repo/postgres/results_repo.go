package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/verilab/verilab/internal/domain"
)

// ResultRepo persists results in PostgreSQL. Verification immutability is
// enforced in SQL: UpdateVerification's WHERE clause refuses terminal rows,
// and the zero-rows case is disambiguated into ErrImmutable vs ErrNotFound.
type ResultRepo struct{ Pool PgxPool }

// NewResultRepo constructs a ResultRepo with the given pool.
func NewResultRepo(p PgxPool) *ResultRepo { return &ResultRepo{Pool: p} }

const resultCols = `id, tenant_id, external_lis_result_id, sample_id, test_code, test_name,
	value, unit, reference_range_low, reference_range_high, lis_flags,
	instrument_id, external_instrument_result_id,
	verification_status, verification_method,
	upload_status, upload_failure_count, upload_failure_reason, sent_to_lis_at,
	created_at, updated_at`

func scanResult(row pgx.Row) (domain.Result, error) {
	var res domain.Result
	err := row.Scan(&res.ID, &res.TenantID, &res.ExternalLISResultID, &res.SampleID, &res.TestCode, &res.TestName,
		&res.Value, &res.Unit, &res.ReferenceRangeLow, &res.ReferenceRangeHigh, &res.LISFlags,
		&res.InstrumentID, &res.ExternalInstrumentResultID,
		&res.VerificationStatus, &res.VerificationMethod,
		&res.UploadStatus, &res.UploadFailureCount, &res.UploadFailureReason, &res.SentToLISAt,
		&res.CreatedAt, &res.UpdatedAt)
	return res, err
}

// Create inserts a new result and returns its id.
func (r *ResultRepo) Create(ctx context.Context, res domain.Result) (string, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Create")
	defer span.End()
	if err := res.Validate(); err != nil {
		return "", mapErr("result.create", err)
	}
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.VerificationStatus == "" {
		res.VerificationStatus = domain.VerificationPending
	}
	if res.UploadStatus == "" {
		res.UploadStatus = domain.UploadPending
	}
	now := time.Now().UTC()
	q := `INSERT INTO results (id, tenant_id, external_lis_result_id, sample_id, test_code, test_name,
		value, unit, reference_range_low, reference_range_high, lis_flags,
		instrument_id, external_instrument_result_id,
		verification_status, verification_method,
		upload_status, upload_failure_count, upload_failure_reason, sent_to_lis_at,
		created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	_, err := r.Pool.Exec(ctx, q, res.ID, res.TenantID, res.ExternalLISResultID, res.SampleID, res.TestCode, res.TestName,
		res.Value, res.Unit, res.ReferenceRangeLow, res.ReferenceRangeHigh, res.LISFlags,
		res.InstrumentID, res.ExternalInstrumentResultID,
		res.VerificationStatus, res.VerificationMethod,
		res.UploadStatus, res.UploadFailureCount, res.UploadFailureReason, res.SentToLISAt,
		now, now)
	if err != nil {
		return "", mapErr("result.create", err)
	}
	return res.ID, nil
}

// GetByID loads a result scoped by tenant.
func (r *ResultRepo) GetByID(ctx context.Context, tenantID, id string) (domain.Result, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.GetByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+resultCols+` FROM results WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	res, err := scanResult(row)
	if err != nil {
		return domain.Result{}, mapErr("result.get", err)
	}
	return res, nil
}

// GetByExternalLISResultID loads a result by its LIS identifier.
func (r *ResultRepo) GetByExternalLISResultID(ctx context.Context, tenantID, externalID string) (domain.Result, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.GetByExternalLISResultID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+resultCols+` FROM results
		WHERE external_lis_result_id=$1 AND tenant_id=$2 AND external_lis_result_id <> ''`, externalID, tenantID)
	res, err := scanResult(row)
	if err != nil {
		return domain.Result{}, mapErr("result.get_external", err)
	}
	return res, nil
}

// GetByInstrumentResultID loads a result by its instrument-side identifier.
func (r *ResultRepo) GetByInstrumentResultID(ctx context.Context, tenantID, instrumentID, externalID string) (domain.Result, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.GetByInstrumentResultID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+resultCols+` FROM results
		WHERE tenant_id=$1 AND instrument_id=$2 AND external_instrument_result_id=$3 AND external_instrument_result_id <> ''`,
		tenantID, instrumentID, externalID)
	res, err := scanResult(row)
	if err != nil {
		return domain.Result{}, mapErr("result.get_instrument", err)
	}
	return res, nil
}

// List returns results for a tenant, newest first.
func (r *ResultRepo) List(ctx context.Context, tenantID string, f domain.ResultFilter) ([]domain.Result, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.List")
	defer span.End()
	q := `SELECT ` + resultCols + ` FROM results WHERE tenant_id=$1
		AND ($2 = '' OR verification_status = $2)
		AND ($3 = '' OR upload_status = $3)
		AND ($4 = '' OR sample_id = $4)
		ORDER BY created_at DESC
		LIMIT CASE WHEN $5 > 0 THEN $5 ELSE NULL END OFFSET $6`
	rows, err := r.Pool.Query(ctx, q, tenantID, string(f.VerificationStatus), string(f.UploadStatus), f.SampleID, f.Limit, f.Offset)
	if err != nil {
		return nil, mapErr("result.list", err)
	}
	defer rows.Close()
	return collectResults(rows, "result.list")
}

// ListBySample returns every result of one sample.
func (r *ResultRepo) ListBySample(ctx context.Context, tenantID, sampleID string) ([]domain.Result, error) {
	return r.List(ctx, tenantID, domain.ResultFilter{SampleID: sampleID})
}

// ListUploadEligible projects the upload queue: pending upload status and a
// verification status admitted by the config flags, oldest first (FIFO).
func (r *ResultRepo) ListUploadEligible(ctx context.Context, tenantID string, includeVerified, includeRejected bool, limit int) ([]domain.Result, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.ListUploadEligible")
	defer span.End()
	q := `SELECT ` + resultCols + ` FROM results
		WHERE tenant_id=$1 AND upload_status='pending'
		AND ((verification_status='verified' AND $2) OR (verification_status='rejected' AND $3))
		ORDER BY created_at ASC
		LIMIT CASE WHEN $4 > 0 THEN $4 ELSE NULL END`
	rows, err := r.Pool.Query(ctx, q, tenantID, includeVerified, includeRejected, limit)
	if err != nil {
		return nil, mapErr("result.list_upload_eligible", err)
	}
	defer rows.Close()
	return collectResults(rows, "result.list_upload_eligible")
}

// FindPrior locates the most recent prior result for the delta check.
func (r *ResultRepo) FindPrior(ctx context.Context, tenantID, sampleID, testCode, excludeID string, since time.Time) (domain.Result, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.FindPrior")
	defer span.End()
	q := `SELECT ` + resultCols + ` FROM results
		WHERE tenant_id=$1 AND sample_id=$2 AND test_code=$3 AND id <> $4 AND created_at >= $5
		ORDER BY created_at DESC LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, tenantID, sampleID, testCode, excludeID, since)
	res, err := scanResult(row)
	if err != nil {
		return domain.Result{}, mapErr("result.find_prior", err)
	}
	return res, nil
}

// UpdateVerification moves the verification status; terminal rows refuse the
// write with ErrImmutable.
func (r *ResultRepo) UpdateVerification(ctx context.Context, tenantID, id string, status domain.VerificationStatus, method domain.VerificationMethod) error {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.UpdateVerification")
	defer span.End()
	q := `UPDATE results SET verification_status=$3, verification_method=$4, updated_at=$5
		WHERE id=$1 AND tenant_id=$2 AND verification_status NOT IN ('verified','rejected')`
	tag, err := r.Pool.Exec(ctx, q, id, tenantID, status, method, time.Now().UTC())
	if err != nil {
		return mapErr("result.update_verification", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row does not exist for this tenant or it is terminal.
		if _, err := r.GetByID(ctx, tenantID, id); err != nil {
			return err
		}
		return mapErr("result.update_verification", domain.ErrImmutable)
	}
	return nil
}

// UpdateUpload writes the upload-side fields; allowed on terminal results.
func (r *ResultRepo) UpdateUpload(ctx context.Context, res domain.Result) error {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.UpdateUpload")
	defer span.End()
	q := `UPDATE results SET upload_status=$3, upload_failure_count=$4, upload_failure_reason=$5,
		sent_to_lis_at=$6, updated_at=$7 WHERE id=$1 AND tenant_id=$2`
	tag, err := r.Pool.Exec(ctx, q, res.ID, res.TenantID, res.UploadStatus, res.UploadFailureCount,
		res.UploadFailureReason, res.SentToLISAt, time.Now().UTC())
	return mustAffect("result.update_upload", tag, err)
}

func collectResults(rows pgx.Rows, op string) ([]domain.Result, error) {
	var out []domain.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, res)
	}
	return out, mapErr(op, rows.Err())
}
