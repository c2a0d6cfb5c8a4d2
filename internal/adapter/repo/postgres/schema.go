package postgres

import "context"

// Schema is the relational layout, one entity per table. Composite unique
// indexes enforce the tenant-scoped uniqueness invariants; string lists
// (test codes, blocked flags) are JSON arrays in text columns.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	slug        TEXT NOT NULL UNIQUE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	email         TEXT NOT NULL,
	full_name     TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, email)
);

CREATE TABLE IF NOT EXISTS samples (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	external_lis_id TEXT NOT NULL,
	patient_id      TEXT NOT NULL DEFAULT '',
	specimen_type   TEXT NOT NULL DEFAULT '',
	collection_date TIMESTAMPTZ,
	received_date   TIMESTAMPTZ,
	status          TEXT NOT NULL DEFAULT 'pending',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, external_lis_id)
);

CREATE TABLE IF NOT EXISTS orders (
	id                     TEXT PRIMARY KEY,
	tenant_id              TEXT NOT NULL,
	external_lis_order_id  TEXT NOT NULL,
	sample_id              TEXT NOT NULL DEFAULT '',
	patient_id             TEXT NOT NULL DEFAULT '',
	test_codes             TEXT NOT NULL DEFAULT '[]',
	priority               TEXT NOT NULL DEFAULT 'routine',
	status                 TEXT NOT NULL DEFAULT 'pending',
	assigned_instrument_id TEXT NOT NULL DEFAULT '',
	assigned_at            TIMESTAMPTZ,
	completed_at           TIMESTAMPTZ,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, external_lis_order_id)
);

CREATE TABLE IF NOT EXISTS results (
	id                            TEXT PRIMARY KEY,
	tenant_id                     TEXT NOT NULL,
	external_lis_result_id        TEXT NOT NULL DEFAULT '',
	sample_id                     TEXT NOT NULL DEFAULT '',
	test_code                     TEXT NOT NULL,
	test_name                     TEXT NOT NULL DEFAULT '',
	value                         TEXT NOT NULL DEFAULT '',
	unit                          TEXT NOT NULL DEFAULT '',
	reference_range_low           DOUBLE PRECISION,
	reference_range_high          DOUBLE PRECISION,
	lis_flags                     TEXT NOT NULL DEFAULT '',
	instrument_id                 TEXT NOT NULL DEFAULT '',
	external_instrument_result_id TEXT NOT NULL DEFAULT '',
	verification_status           TEXT NOT NULL DEFAULT 'pending',
	verification_method           TEXT NOT NULL DEFAULT '',
	upload_status                 TEXT NOT NULL DEFAULT 'pending',
	upload_failure_count          INTEGER NOT NULL DEFAULT 0,
	upload_failure_reason         TEXT NOT NULL DEFAULT '',
	sent_to_lis_at                TIMESTAMPTZ,
	created_at                    TIMESTAMPTZ NOT NULL,
	updated_at                    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS results_tenant_external
	ON results (tenant_id, external_lis_result_id) WHERE external_lis_result_id <> '';
CREATE UNIQUE INDEX IF NOT EXISTS results_tenant_instrument_external
	ON results (tenant_id, instrument_id, external_instrument_result_id)
	WHERE external_instrument_result_id <> '';
CREATE INDEX IF NOT EXISTS results_upload_projection
	ON results (tenant_id, upload_status, verification_status, created_at);

CREATE TABLE IF NOT EXISTS reviews (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	sample_id         TEXT NOT NULL,
	state             TEXT NOT NULL DEFAULT 'pending',
	decision          TEXT NOT NULL DEFAULT '',
	reviewer_user_id  TEXT NOT NULL DEFAULT '',
	comments          TEXT NOT NULL DEFAULT '',
	escalation_reason TEXT NOT NULL DEFAULT '',
	submitted_at      TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, sample_id)
);

CREATE TABLE IF NOT EXISTS result_decisions (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	review_id  TEXT NOT NULL,
	result_id  TEXT NOT NULL,
	decision   TEXT NOT NULL,
	comments   TEXT NOT NULL DEFAULT '',
	decided_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS result_decisions_review ON result_decisions (tenant_id, review_id);

CREATE TABLE IF NOT EXISTS auto_verification_settings (
	id                            TEXT PRIMARY KEY,
	tenant_id                     TEXT NOT NULL,
	test_code                     TEXT NOT NULL,
	reference_range_low           DOUBLE PRECISION,
	reference_range_high          DOUBLE PRECISION,
	critical_range_low            DOUBLE PRECISION,
	critical_range_high           DOUBLE PRECISION,
	instrument_flags_to_block     TEXT NOT NULL DEFAULT '[]',
	delta_check_threshold_percent DOUBLE PRECISION,
	delta_check_lookback_days     INTEGER NOT NULL DEFAULT 30,
	created_at                    TIMESTAMPTZ NOT NULL,
	updated_at                    TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, test_code)
);

CREATE TABLE IF NOT EXISTS verification_rules (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	rule_type   TEXT NOT NULL,
	enabled     BOOLEAN NOT NULL DEFAULT FALSE,
	priority    INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, rule_type)
);

CREATE TABLE IF NOT EXISTS lis_configs (
	id                        TEXT PRIMARY KEY,
	tenant_id                 TEXT NOT NULL UNIQUE,
	lis_type                  TEXT NOT NULL DEFAULT '',
	integration_model         TEXT NOT NULL,
	api_endpoint_url          TEXT NOT NULL DEFAULT '',
	api_auth_credentials      TEXT NOT NULL DEFAULT '',
	tenant_api_key            TEXT NOT NULL DEFAULT '',
	pull_interval_minutes     INTEGER NOT NULL DEFAULT 5,
	connection_status         TEXT NOT NULL DEFAULT 'inactive',
	connection_failure_count  INTEGER NOT NULL DEFAULT 0,
	upload_failure_count      INTEGER NOT NULL DEFAULT 0,
	last_tested_at            TIMESTAMPTZ,
	last_successful_retrieval TIMESTAMPTZ,
	last_successful_upload_at TIMESTAMPTZ,
	last_upload_failure_at    TIMESTAMPTZ,
	auto_upload_enabled       BOOLEAN NOT NULL DEFAULT FALSE,
	upload_verified_results   BOOLEAN NOT NULL DEFAULT TRUE,
	upload_rejected_results   BOOLEAN NOT NULL DEFAULT FALSE,
	upload_batch_size         INTEGER NOT NULL DEFAULT 50,
	upload_rate_limit         INTEGER NOT NULL DEFAULT 60,
	created_at                TIMESTAMPTZ NOT NULL,
	updated_at                TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS instruments (
	id                        TEXT PRIMARY KEY,
	tenant_id                 TEXT NOT NULL,
	name                      TEXT NOT NULL,
	instrument_type           TEXT NOT NULL DEFAULT '',
	status                    TEXT NOT NULL DEFAULT 'inactive',
	api_token                 TEXT NOT NULL UNIQUE,
	api_token_created_at      TIMESTAMPTZ,
	connection_failure_count  INTEGER NOT NULL DEFAULT 0,
	last_successful_query_at  TIMESTAMPTZ,
	last_successful_result_at TIMESTAMPTZ,
	last_failure_at           TIMESTAMPTZ,
	last_failure_reason       TEXT NOT NULL DEFAULT '',
	created_at                TIMESTAMPTZ NOT NULL,
	updated_at                TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS instrument_queries (
	id                    TEXT PRIMARY KEY,
	tenant_id             TEXT NOT NULL,
	instrument_id         TEXT NOT NULL,
	query_timestamp       TIMESTAMPTZ NOT NULL,
	response_timestamp    TIMESTAMPTZ NOT NULL,
	response_time_ms      BIGINT NOT NULL DEFAULT 0,
	orders_returned_count INTEGER NOT NULL DEFAULT 0,
	response_status       TEXT NOT NULL,
	query_patient_id      TEXT NOT NULL DEFAULT '',
	query_sample_barcode  TEXT NOT NULL DEFAULT '',
	error_reason          TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS instrument_queries_instrument
	ON instrument_queries (tenant_id, instrument_id, query_timestamp DESC);
`

// EnsureSchema applies the schema idempotently.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	_, err := pool.Exec(ctx, Schema)
	return mapErr("schema.ensure", err)
}
