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

// InstrumentRepo persists the instrument registry. Name is unique per tenant
// and api_token is globally unique; both surface as ErrConflict.
type InstrumentRepo struct{ Pool PgxPool }

// NewInstrumentRepo constructs an InstrumentRepo with the given pool.
func NewInstrumentRepo(p PgxPool) *InstrumentRepo { return &InstrumentRepo{Pool: p} }

const instrumentCols = `id, tenant_id, name, instrument_type, status,
	api_token, api_token_created_at,
	connection_failure_count, last_successful_query_at, last_successful_result_at,
	last_failure_at, last_failure_reason, created_at, updated_at`

func scanInstrument(row pgx.Row) (domain.Instrument, error) {
	var i domain.Instrument
	err := row.Scan(&i.ID, &i.TenantID, &i.Name, &i.InstrumentType, &i.Status,
		&i.APIToken, &i.APITokenCreatedAt,
		&i.ConnectionFailureCount, &i.LastSuccessfulQueryAt, &i.LastSuccessfulResultAt,
		&i.LastFailureAt, &i.LastFailureReason, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

// Create inserts an instrument and returns its id.
func (r *InstrumentRepo) Create(ctx context.Context, i domain.Instrument) (string, error) {
	tracer := otel.Tracer("repo.instruments")
	ctx, span := tracer.Start(ctx, "instruments.Create")
	defer span.End()
	if i.TenantID == "" || i.Name == "" || i.APIToken == "" {
		return "", mapErr("instrument.create", fmt.Errorf("%w: tenant_id, name, api_token required", domain.ErrInvalidArgument))
	}
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.Status == "" {
		i.Status = domain.InstrumentInactive
	}
	now := time.Now().UTC()
	q := `INSERT INTO instruments (id, tenant_id, name, instrument_type, status,
		api_token, api_token_created_at,
		connection_failure_count, last_successful_query_at, last_successful_result_at,
		last_failure_at, last_failure_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := r.Pool.Exec(ctx, q, i.ID, i.TenantID, i.Name, i.InstrumentType, i.Status,
		i.APIToken, i.APITokenCreatedAt,
		i.ConnectionFailureCount, i.LastSuccessfulQueryAt, i.LastSuccessfulResultAt,
		i.LastFailureAt, i.LastFailureReason, now, now)
	if err != nil {
		return "", mapErr("instrument.create", err)
	}
	return i.ID, nil
}

// GetByID loads an instrument scoped by tenant.
func (r *InstrumentRepo) GetByID(ctx context.Context, tenantID, id string) (domain.Instrument, error) {
	tracer := otel.Tracer("repo.instruments")
	ctx, span := tracer.Start(ctx, "instruments.GetByID")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+instrumentCols+` FROM instruments WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	i, err := scanInstrument(row)
	if err != nil {
		return domain.Instrument{}, mapErr("instrument.get", err)
	}
	return i, nil
}

// GetByToken resolves an instrument by its API token. This is the only
// tenant-less lookup: the token is the whole credential and the row carries
// the tenant.
func (r *InstrumentRepo) GetByToken(ctx context.Context, token string) (domain.Instrument, error) {
	tracer := otel.Tracer("repo.instruments")
	ctx, span := tracer.Start(ctx, "instruments.GetByToken")
	defer span.End()
	if token == "" {
		return domain.Instrument{}, mapErr("instrument.get_token", domain.ErrNotFound)
	}
	row := r.Pool.QueryRow(ctx, `SELECT `+instrumentCols+` FROM instruments WHERE api_token=$1`, token)
	i, err := scanInstrument(row)
	if err != nil {
		return domain.Instrument{}, mapErr("instrument.get_token", err)
	}
	return i, nil
}

// List returns a tenant's instruments ordered by name.
func (r *InstrumentRepo) List(ctx context.Context, tenantID string) ([]domain.Instrument, error) {
	tracer := otel.Tracer("repo.instruments")
	ctx, span := tracer.Start(ctx, "instruments.List")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+instrumentCols+` FROM instruments
		WHERE tenant_id=$1 ORDER BY name ASC`, tenantID)
	if err != nil {
		return nil, mapErr("instrument.list", err)
	}
	defer rows.Close()
	var out []domain.Instrument
	for rows.Next() {
		i, err := scanInstrument(rows)
		if err != nil {
			return nil, mapErr("instrument.list", err)
		}
		out = append(out, i)
	}
	return out, mapErr("instrument.list", rows.Err())
}

// Update writes the mutable instrument fields, token rotation included.
func (r *InstrumentRepo) Update(ctx context.Context, i domain.Instrument) error {
	tracer := otel.Tracer("repo.instruments")
	ctx, span := tracer.Start(ctx, "instruments.Update")
	defer span.End()
	q := `UPDATE instruments SET name=$3, instrument_type=$4, status=$5,
		api_token=$6, api_token_created_at=$7,
		connection_failure_count=$8, last_successful_query_at=$9, last_successful_result_at=$10,
		last_failure_at=$11, last_failure_reason=$12, updated_at=$13
		WHERE id=$1 AND tenant_id=$2`
	tag, err := r.Pool.Exec(ctx, q, i.ID, i.TenantID, i.Name, i.InstrumentType, i.Status,
		i.APIToken, i.APITokenCreatedAt,
		i.ConnectionFailureCount, i.LastSuccessfulQueryAt, i.LastSuccessfulResultAt,
		i.LastFailureAt, i.LastFailureReason, time.Now().UTC())
	return mustAffect("instrument.update", tag, err)
}

// Delete removes an instrument from the registry.
func (r *InstrumentRepo) Delete(ctx context.Context, tenantID, id string) error {
	tracer := otel.Tracer("repo.instruments")
	ctx, span := tracer.Start(ctx, "instruments.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM instruments WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	return mustAffect("instrument.delete", tag, err)
}

// InstrumentQueryRepo records immutable host-query audit rows.
type InstrumentQueryRepo struct{ Pool PgxPool }

// NewInstrumentQueryRepo constructs an InstrumentQueryRepo with the given pool.
func NewInstrumentQueryRepo(p PgxPool) *InstrumentQueryRepo { return &InstrumentQueryRepo{Pool: p} }

// Create inserts an audit row and returns its id.
func (r *InstrumentQueryRepo) Create(ctx context.Context, q domain.InstrumentQuery) (string, error) {
	tracer := otel.Tracer("repo.instrument_queries")
	ctx, span := tracer.Start(ctx, "instrument_queries.Create")
	defer span.End()
	if q.TenantID == "" || q.InstrumentID == "" {
		return "", mapErr("instrument_query.create", fmt.Errorf("%w: tenant_id and instrument_id required", domain.ErrInvalidArgument))
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	stmt := `INSERT INTO instrument_queries (id, tenant_id, instrument_id, query_timestamp, response_timestamp,
		response_time_ms, orders_returned_count, response_status, query_patient_id, query_sample_barcode,
		error_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.Pool.Exec(ctx, stmt, q.ID, q.TenantID, q.InstrumentID, q.QueryTimestamp, q.ResponseTimestamp,
		q.ResponseTimeMS, q.OrdersReturnedCount, q.ResponseStatus, q.QueryPatientID, q.QuerySampleBarcode,
		q.ErrorReason, time.Now().UTC())
	if err != nil {
		return "", mapErr("instrument_query.create", err)
	}
	return q.ID, nil
}

// ListByInstrument returns the newest audit rows for an instrument.
func (r *InstrumentQueryRepo) ListByInstrument(ctx context.Context, tenantID, instrumentID string, limit int) ([]domain.InstrumentQuery, error) {
	tracer := otel.Tracer("repo.instrument_queries")
	ctx, span := tracer.Start(ctx, "instrument_queries.ListByInstrument")
	defer span.End()
	stmt := `SELECT id, tenant_id, instrument_id, query_timestamp, response_timestamp,
		response_time_ms, orders_returned_count, response_status, query_patient_id, query_sample_barcode,
		error_reason, created_at
		FROM instrument_queries WHERE tenant_id=$1 AND instrument_id=$2
		ORDER BY query_timestamp DESC
		LIMIT CASE WHEN $3 > 0 THEN $3 ELSE NULL END`
	rows, err := r.Pool.Query(ctx, stmt, tenantID, instrumentID, limit)
	if err != nil {
		return nil, mapErr("instrument_query.list", err)
	}
	defer rows.Close()
	var out []domain.InstrumentQuery
	for rows.Next() {
		var q domain.InstrumentQuery
		if err := rows.Scan(&q.ID, &q.TenantID, &q.InstrumentID, &q.QueryTimestamp, &q.ResponseTimestamp,
			&q.ResponseTimeMS, &q.OrdersReturnedCount, &q.ResponseStatus, &q.QueryPatientID, &q.QuerySampleBarcode,
			&q.ErrorReason, &q.CreatedAt); err != nil {
			return nil, mapErr("instrument_query.list", err)
		}
		out = append(out, q)
	}
	return out, mapErr("instrument_query.list", rows.Err())
}
