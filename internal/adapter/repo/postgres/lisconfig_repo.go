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

// LISConfigRepo persists the single per-tenant LIS configuration. The UNIQUE
// constraint on tenant_id makes a second Create surface ErrConflict.
type LISConfigRepo struct{ Pool PgxPool }

// NewLISConfigRepo constructs a LISConfigRepo with the given pool.
func NewLISConfigRepo(p PgxPool) *LISConfigRepo { return &LISConfigRepo{Pool: p} }

const lisConfigCols = `id, tenant_id, lis_type, integration_model, api_endpoint_url,
	api_auth_credentials, tenant_api_key, pull_interval_minutes,
	connection_status, connection_failure_count, upload_failure_count,
	last_tested_at, last_successful_retrieval, last_successful_upload_at, last_upload_failure_at,
	auto_upload_enabled, upload_verified_results, upload_rejected_results,
	upload_batch_size, upload_rate_limit, created_at, updated_at`

func scanLISConfig(row pgx.Row) (domain.LISConfig, error) {
	var c domain.LISConfig
	err := row.Scan(&c.ID, &c.TenantID, &c.LISType, &c.IntegrationModel, &c.APIEndpointURL,
		&c.APIAuthCreds, &c.TenantAPIKey, &c.PullIntervalMinutes,
		&c.ConnectionStatus, &c.ConnectionFailureCount, &c.UploadFailureCount,
		&c.LastTestedAt, &c.LastSuccessfulRetrieval, &c.LastSuccessfulUploadAt, &c.LastUploadFailureAt,
		&c.AutoUploadEnabled, &c.UploadVerifiedResults, &c.UploadRejectedResults,
		&c.UploadBatchSize, &c.UploadRateLimit, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Create inserts the tenant's configuration and returns its id.
func (r *LISConfigRepo) Create(ctx context.Context, c domain.LISConfig) (string, error) {
	tracer := otel.Tracer("repo.lisconfig")
	ctx, span := tracer.Start(ctx, "lisconfig.Create")
	defer span.End()
	if c.TenantID == "" {
		return "", mapErr("lisconfig.create", fmt.Errorf("%w: tenant_id required", domain.ErrInvalidArgument))
	}
	if c.IntegrationModel != domain.ModelPush && c.IntegrationModel != domain.ModelPull {
		return "", mapErr("lisconfig.create", fmt.Errorf("%w: invalid integration model %q", domain.ErrInvalidArgument, c.IntegrationModel))
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.ConnectionStatus == "" {
		c.ConnectionStatus = domain.ConnectionInactive
	}
	if c.PullIntervalMinutes == 0 {
		c.PullIntervalMinutes = 5
	}
	if c.UploadBatchSize == 0 {
		c.UploadBatchSize = 50
	}
	if c.UploadRateLimit == 0 {
		c.UploadRateLimit = 60
	}
	now := time.Now().UTC()
	q := `INSERT INTO lis_configs (id, tenant_id, lis_type, integration_model, api_endpoint_url,
		api_auth_credentials, tenant_api_key, pull_interval_minutes,
		connection_status, connection_failure_count, upload_failure_count,
		last_tested_at, last_successful_retrieval, last_successful_upload_at, last_upload_failure_at,
		auto_upload_enabled, upload_verified_results, upload_rejected_results,
		upload_batch_size, upload_rate_limit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	_, err := r.Pool.Exec(ctx, q, c.ID, c.TenantID, c.LISType, c.IntegrationModel, c.APIEndpointURL,
		c.APIAuthCreds, c.TenantAPIKey, c.PullIntervalMinutes,
		c.ConnectionStatus, c.ConnectionFailureCount, c.UploadFailureCount,
		c.LastTestedAt, c.LastSuccessfulRetrieval, c.LastSuccessfulUploadAt, c.LastUploadFailureAt,
		c.AutoUploadEnabled, c.UploadVerifiedResults, c.UploadRejectedResults,
		c.UploadBatchSize, c.UploadRateLimit, now, now)
	if err != nil {
		return "", mapErr("lisconfig.create", err)
	}
	return c.ID, nil
}

// GetByTenant loads the tenant's configuration.
func (r *LISConfigRepo) GetByTenant(ctx context.Context, tenantID string) (domain.LISConfig, error) {
	tracer := otel.Tracer("repo.lisconfig")
	ctx, span := tracer.Start(ctx, "lisconfig.GetByTenant")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+lisConfigCols+` FROM lis_configs WHERE tenant_id=$1`, tenantID)
	c, err := scanLISConfig(row)
	if err != nil {
		return domain.LISConfig{}, mapErr("lisconfig.get", err)
	}
	return c, nil
}

// List returns every tenant's configuration, ordered by tenant.
func (r *LISConfigRepo) List(ctx context.Context) ([]domain.LISConfig, error) {
	tracer := otel.Tracer("repo.lisconfig")
	ctx, span := tracer.Start(ctx, "lisconfig.List")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+lisConfigCols+` FROM lis_configs ORDER BY tenant_id`)
	if err != nil {
		return nil, mapErr("lisconfig.list", err)
	}
	defer rows.Close()
	var out []domain.LISConfig
	for rows.Next() {
		c, err := scanLISConfig(rows)
		if err != nil {
			return nil, mapErr("lisconfig.list", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update overwrites the configuration, counters and timestamps included.
func (r *LISConfigRepo) Update(ctx context.Context, c domain.LISConfig) error {
	tracer := otel.Tracer("repo.lisconfig")
	ctx, span := tracer.Start(ctx, "lisconfig.Update")
	defer span.End()
	q := `UPDATE lis_configs SET lis_type=$2, integration_model=$3, api_endpoint_url=$4,
		api_auth_credentials=$5, tenant_api_key=$6, pull_interval_minutes=$7,
		connection_status=$8, connection_failure_count=$9, upload_failure_count=$10,
		last_tested_at=$11, last_successful_retrieval=$12, last_successful_upload_at=$13, last_upload_failure_at=$14,
		auto_upload_enabled=$15, upload_verified_results=$16, upload_rejected_results=$17,
		upload_batch_size=$18, upload_rate_limit=$19, updated_at=$20
		WHERE tenant_id=$1`
	tag, err := r.Pool.Exec(ctx, q, c.TenantID, c.LISType, c.IntegrationModel, c.APIEndpointURL,
		c.APIAuthCreds, c.TenantAPIKey, c.PullIntervalMinutes,
		c.ConnectionStatus, c.ConnectionFailureCount, c.UploadFailureCount,
		c.LastTestedAt, c.LastSuccessfulRetrieval, c.LastSuccessfulUploadAt, c.LastUploadFailureAt,
		c.AutoUploadEnabled, c.UploadVerifiedResults, c.UploadRejectedResults,
		c.UploadBatchSize, c.UploadRateLimit, time.Now().UTC())
	return mustAffect("lisconfig.update", tag, err)
}
